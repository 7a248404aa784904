package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"launchpad/internal/domain"
	"launchpad/internal/engine/auth"
	"launchpad/internal/events"
	"launchpad/internal/notify"
	"launchpad/internal/repo"
)

const maxTitleLen = 200

// ContractDetail is a contract with its full signature set.
type ContractDetail struct {
	Contract   domain.Contract    `json:"contract"`
	Signatures []domain.Signature `json:"signatures"`
}

type ContractCreateOptions struct {
	Title    string
	Template string
	Content  string
}

// ContractPatch holds the fields to change; nil leaves a field as is.
type ContractPatch struct {
	Title    *string
	Template *string
	Content  *string
}

func validateContractTitle(title string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(title))
	if n < 1 || n > maxTitleLen {
		return domain.InvalidArgument("title must be between 1 and %d characters", maxTitleLen)
	}
	return nil
}

func (e Engine) CreateContract(ctx context.Context, actor auth.Actor, opts ContractCreateOptions) (c domain.Contract, err error) {
	ctx, end := startSpan(ctx, "contract.create", actor)
	defer end(&err)
	e = e.clock()

	if err := validateContractTitle(opts.Title); err != nil {
		return domain.Contract{}, err
	}
	if strings.TrimSpace(opts.Template) == "" {
		return domain.Contract{}, domain.InvalidArgument("template is required")
	}
	if strings.TrimSpace(opts.Content) == "" {
		return domain.Contract{}, domain.InvalidArgument("content is required")
	}
	c = domain.Contract{
		ID:        uuid.NewString(),
		CreatorID: actor.UserID,
		Title:     strings.TrimSpace(opts.Title),
		Template:  strings.TrimSpace(opts.Template),
		Content:   opts.Content,
		Status:    domain.ContractDraft,
		CreatedAt: e.timestamp(),
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Contract{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertContract(ctx, tx, c); err != nil {
		return domain.Contract{}, fmt.Errorf("insert contract: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "contract.created", actor.WorkspaceID, "contract", c.ID, actor.UserID, events.EventPayload{
		"title":    c.Title,
		"template": c.Template,
	}); err != nil {
		return domain.Contract{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Contract{}, err
	}
	return c, nil
}

func (e Engine) UpdateContract(ctx context.Context, actor auth.Actor, id string, patch ContractPatch) (c domain.Contract, err error) {
	ctx, end := startSpan(ctx, "contract.update", actor, attribute.String("contract.id", id))
	defer end(&err)
	e = e.clock()

	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Contract{}, err
	}
	defer tx.Rollback()

	c, err = e.Repo.GetContract(ctx, tx, id)
	if err != nil {
		return domain.Contract{}, notFound(err, "contract not found")
	}
	if c.CreatorID != actor.UserID {
		return domain.Contract{}, domain.Forbidden("only the creator can edit the contract")
	}
	if c.Status != domain.ContractDraft {
		return domain.Contract{}, domain.InvalidState("contract can only be edited while DRAFT")
	}
	changed := map[string]any{}
	if patch.Title != nil {
		if err := validateContractTitle(*patch.Title); err != nil {
			return domain.Contract{}, err
		}
		c.Title = strings.TrimSpace(*patch.Title)
		changed["title"] = c.Title
	}
	if patch.Template != nil {
		if strings.TrimSpace(*patch.Template) == "" {
			return domain.Contract{}, domain.InvalidArgument("template must not be empty")
		}
		c.Template = strings.TrimSpace(*patch.Template)
		changed["template"] = c.Template
	}
	if patch.Content != nil {
		if strings.TrimSpace(*patch.Content) == "" {
			return domain.Contract{}, domain.InvalidArgument("content must not be empty")
		}
		c.Content = *patch.Content
		changed["content"] = true
	}
	if len(changed) == 0 {
		return c, nil
	}
	if err := e.Repo.UpdateContract(ctx, tx, c); err != nil {
		return domain.Contract{}, fmt.Errorf("update contract: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "contract.updated", actor.WorkspaceID, "contract", c.ID, actor.UserID, events.EventPayload(changed)); err != nil {
		return domain.Contract{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Contract{}, err
	}
	return c, nil
}

// normalizeParties deduplicates ids, drops blanks and the creator, and
// returns them sorted for stable ordering.
func normalizeParties(creatorID string, ids []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || id == creatorID || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// SendContract dispatches a DRAFT contract to its parties.
func (e Engine) SendContract(ctx context.Context, actor auth.Actor, id string, partyIDs []string) (d ContractDetail, err error) {
	ctx, end := startSpan(ctx, "contract.send", actor, attribute.String("contract.id", id), attribute.Int("parties.requested", len(partyIDs)))
	defer end(&err)
	e = e.clock()

	tx, err := e.begin(ctx)
	if err != nil {
		return ContractDetail{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetContract(ctx, tx, id)
	if err != nil {
		return ContractDetail{}, notFound(err, "contract not found")
	}
	if c.CreatorID != actor.UserID {
		return ContractDetail{}, domain.Forbidden("only the creator can send the contract")
	}
	if c.Status != domain.ContractDraft {
		return ContractDetail{}, domain.InvalidState("contract can only be sent while DRAFT")
	}
	parties := normalizeParties(c.CreatorID, partyIDs)
	if len(parties) == 0 {
		return ContractDetail{}, domain.InvalidArgument("you must select at least one other party")
	}
	found, err := e.Repo.ExistingUserIDs(ctx, tx, parties)
	if err != nil {
		return ContractDetail{}, fmt.Errorf("resolve parties: %w", err)
	}
	var missing []string
	for _, p := range parties {
		if !found[p] {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return ContractDetail{}, domain.NotFound("some users do not exist: %s", strings.Join(missing, ", ")).
			WithDetails(map[string]any{"missing": missing})
	}

	now := e.timestamp()
	var outbox notify.Outbox
	for _, p := range parties {
		created, err := e.Repo.InsertSignature(ctx, tx, domain.Signature{
			ContractID: c.ID,
			PartyID:    p,
			Status:     domain.SignaturePending,
			CreatedAt:  now,
		})
		if err != nil {
			return ContractDetail{}, fmt.Errorf("insert signature: %w", err)
		}
		// A party already holding a row has been asked before.
		if !created {
			continue
		}
		outbox.Add(p, fmt.Sprintf("Contract '%s' requires your signature.", c.Title), domain.NotificationContract, c.ID)
	}
	c.Status = domain.ContractSent
	if err := e.Repo.UpdateContract(ctx, tx, c); err != nil {
		return ContractDetail{}, fmt.Errorf("update contract: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "contract.sent", actor.WorkspaceID, "contract", c.ID, actor.UserID, events.EventPayload{
		"parties": parties,
	}); err != nil {
		return ContractDetail{}, err
	}
	sigs, err := e.Repo.ListSignatures(ctx, tx, c.ID)
	if err != nil {
		return ContractDetail{}, err
	}
	if err := tx.Commit(); err != nil {
		return ContractDetail{}, err
	}
	e.Notify.Flush(ctx, &outbox)
	return ContractDetail{Contract: c, Signatures: sigs}, nil
}

// SignContract records the actor's signature. When every party has signed,
// the contract flips to SIGNED in the same transaction.
func (e Engine) SignContract(ctx context.Context, actor auth.Actor, id string) (d ContractDetail, err error) {
	ctx, end := startSpan(ctx, "contract.sign", actor, attribute.String("contract.id", id))
	defer end(&err)
	e = e.clock()

	tx, err := e.begin(ctx)
	if err != nil {
		return ContractDetail{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetContract(ctx, tx, id)
	if err != nil {
		return ContractDetail{}, notFound(err, "contract not found")
	}
	sig, err := e.Repo.GetSignature(ctx, tx, c.ID, actor.UserID)
	hasSig := err == nil
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return ContractDetail{}, fmt.Errorf("load signature: %w", err)
	}
	// Re-signing after completion is answered with the current state.
	if c.Status == domain.ContractSigned && hasSig && sig.Status == domain.SignatureSigned {
		return e.detailTx(ctx, tx, c)
	}
	if c.Status != domain.ContractSent {
		return ContractDetail{}, domain.InvalidState("contract must be SENT before signing")
	}
	if !hasSig {
		return ContractDetail{}, domain.Forbidden("you are not a party in this contract")
	}
	switch sig.Status {
	case domain.SignatureSigned:
		return e.detailTx(ctx, tx, c)
	case domain.SignatureRejected:
		return ContractDetail{}, domain.InvalidState("signature was already rejected")
	}

	now := e.timestamp()
	sig.Status = domain.SignatureSigned
	sig.SignedAt = &now
	if err := e.Repo.UpdateSignature(ctx, tx, sig); err != nil {
		return ContractDetail{}, fmt.Errorf("update signature: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "signature.signed", actor.WorkspaceID, "contract", c.ID, actor.UserID, nil); err != nil {
		return ContractDetail{}, err
	}

	// Resolution is derived from the full set as it stands in this transaction.
	sigs, err := e.Repo.ListSignatures(ctx, tx, c.ID)
	if err != nil {
		return ContractDetail{}, err
	}
	var outbox notify.Outbox
	if domain.AllSigned(sigs) {
		c.Status = domain.ContractSigned
		if err := e.Repo.UpdateContract(ctx, tx, c); err != nil {
			return ContractDetail{}, fmt.Errorf("update contract: %w", err)
		}
		if err := e.Events.Append(ctx, tx, "contract.signed", actor.WorkspaceID, "contract", c.ID, actor.UserID, events.EventPayload{
			"signatures": len(sigs),
		}); err != nil {
			return ContractDetail{}, err
		}
		msg := fmt.Sprintf("Contract '%s' is fully signed.", c.Title)
		outbox.Add(c.CreatorID, msg, domain.NotificationContract, c.ID)
		for _, s := range sigs {
			outbox.Add(s.PartyID, msg, domain.NotificationContract, c.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return ContractDetail{}, err
	}
	e.Notify.Flush(ctx, &outbox)
	return ContractDetail{Contract: c, Signatures: sigs}, nil
}

// RejectContract vetoes the contract; the first rejection cancels it.
func (e Engine) RejectContract(ctx context.Context, actor auth.Actor, id string) (d ContractDetail, err error) {
	ctx, end := startSpan(ctx, "contract.reject", actor, attribute.String("contract.id", id))
	defer end(&err)
	e = e.clock()

	tx, err := e.begin(ctx)
	if err != nil {
		return ContractDetail{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetContract(ctx, tx, id)
	if err != nil {
		return ContractDetail{}, notFound(err, "contract not found")
	}
	sig, err := e.Repo.GetSignature(ctx, tx, c.ID, actor.UserID)
	hasSig := err == nil
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return ContractDetail{}, fmt.Errorf("load signature: %w", err)
	}
	if c.Status == domain.ContractCancelled && hasSig && sig.Status == domain.SignatureRejected {
		return e.detailTx(ctx, tx, c)
	}
	if c.Status != domain.ContractSent {
		return ContractDetail{}, domain.InvalidState("contract must be SENT before rejecting")
	}
	if !hasSig {
		return ContractDetail{}, domain.Forbidden("you are not a party in this contract")
	}
	switch sig.Status {
	case domain.SignatureRejected:
		return e.detailTx(ctx, tx, c)
	case domain.SignatureSigned:
		return ContractDetail{}, domain.InvalidState("signature was already signed")
	}

	now := e.timestamp()
	sig.Status = domain.SignatureRejected
	sig.SignedAt = &now
	if err := e.Repo.UpdateSignature(ctx, tx, sig); err != nil {
		return ContractDetail{}, fmt.Errorf("update signature: %w", err)
	}
	c.Status = domain.ContractCancelled
	if err := e.Repo.UpdateContract(ctx, tx, c); err != nil {
		return ContractDetail{}, fmt.Errorf("update contract: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "signature.rejected", actor.WorkspaceID, "contract", c.ID, actor.UserID, nil); err != nil {
		return ContractDetail{}, err
	}
	if err := e.Events.Append(ctx, tx, "contract.cancelled", actor.WorkspaceID, "contract", c.ID, actor.UserID, events.EventPayload{
		"rejected_by": actor.UserID,
	}); err != nil {
		return ContractDetail{}, err
	}
	sigs, err := e.Repo.ListSignatures(ctx, tx, c.ID)
	if err != nil {
		return ContractDetail{}, err
	}
	if err := tx.Commit(); err != nil {
		return ContractDetail{}, err
	}
	var outbox notify.Outbox
	outbox.Add(c.CreatorID, fmt.Sprintf("Contract '%s' was rejected and cancelled.", c.Title), domain.NotificationContract, c.ID)
	e.Notify.Flush(ctx, &outbox)
	return ContractDetail{Contract: c, Signatures: sigs}, nil
}

func (e Engine) detailTx(ctx context.Context, tx *sql.Tx, c domain.Contract) (ContractDetail, error) {
	sigs, err := e.Repo.ListSignatures(ctx, tx, c.ID)
	if err != nil {
		return ContractDetail{}, err
	}
	return ContractDetail{Contract: c, Signatures: sigs}, nil
}

// GetContractDetail returns a contract visible to its creator and parties.
func (e Engine) GetContractDetail(ctx context.Context, actor auth.Actor, id string) (ContractDetail, error) {
	c, err := e.Repo.GetContract(ctx, nil, id)
	if err != nil {
		return ContractDetail{}, notFound(err, "contract not found")
	}
	sigs, err := e.Repo.ListSignatures(ctx, nil, c.ID)
	if err != nil {
		return ContractDetail{}, err
	}
	if c.CreatorID != actor.UserID && !hasParty(sigs, actor.UserID) {
		return ContractDetail{}, domain.Forbidden("not allowed to view this contract")
	}
	return ContractDetail{Contract: c, Signatures: sigs}, nil
}

// ListMyContracts returns contracts the actor created or must sign, newest first.
func (e Engine) ListMyContracts(ctx context.Context, actor auth.Actor) ([]domain.Contract, error) {
	return e.Repo.ListContractsForUser(ctx, actor.UserID)
}

func hasParty(sigs []domain.Signature, userID string) bool {
	for _, s := range sigs {
		if s.PartyID == userID {
			return true
		}
	}
	return false
}
