package repo

import (
	"context"
	"database/sql"

	"launchpad/internal/domain"
)

const contractColumns = `id,creator_id,title,template,content,status,created_at`

func scanContract(row rowScanner) (domain.Contract, error) {
	var c domain.Contract
	err := row.Scan(&c.ID, &c.CreatorID, &c.Title, &c.Template, &c.Content, &c.Status, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) InsertContract(ctx context.Context, tx *sql.Tx, c domain.Contract) error {
	_, err := r.exec(ctx, tx, `INSERT INTO contracts(id,creator_id,title,template,content,status,created_at) VALUES (?,?,?,?,?,?,?)`,
		c.ID, c.CreatorID, c.Title, c.Template, c.Content, c.Status, c.CreatedAt)
	return err
}

// GetContract loads a contract. Inside a transaction the row is locked on
// drivers that support it.
func (r Repo) GetContract(ctx context.Context, tx *sql.Tx, id string) (domain.Contract, error) {
	return scanContract(r.queryRow(ctx, tx, `SELECT `+contractColumns+` FROM contracts WHERE id=?`+r.forUpdate(tx), id))
}

func (r Repo) UpdateContract(ctx context.Context, tx *sql.Tx, c domain.Contract) error {
	res, err := r.exec(ctx, tx, `UPDATE contracts SET title=?, template=?, content=?, status=? WHERE id=?`,
		c.Title, c.Template, c.Content, c.Status, c.ID)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

// ListContractsForUser returns contracts the user created or is a party to,
// newest first.
func (r Repo) ListContractsForUser(ctx context.Context, userID string) ([]domain.Contract, error) {
	rows, err := r.query(ctx, nil, `SELECT `+contractColumns+` FROM contracts
WHERE creator_id=? OR id IN (SELECT contract_id FROM signatures WHERE party_id=?)
ORDER BY created_at DESC, id DESC`, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

const signatureColumns = `contract_id,party_id,status,signed_at,created_at`

func scanSignature(row rowScanner) (domain.Signature, error) {
	var s domain.Signature
	var signedAt sql.NullString
	err := row.Scan(&s.ContractID, &s.PartyID, &s.Status, &signedAt, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	s.SignedAt = stringPtr(signedAt)
	return s, err
}

// InsertSignature creates a signature row unless one already exists for the
// (contract, party) pair. It reports whether a row was created.
func (r Repo) InsertSignature(ctx context.Context, tx *sql.Tx, s domain.Signature) (bool, error) {
	res, err := r.exec(ctx, tx, `INSERT INTO signatures(contract_id,party_id,status,signed_at,created_at) VALUES (?,?,?,?,?)
ON CONFLICT(contract_id,party_id) DO NOTHING`,
		s.ContractID, s.PartyID, s.Status, nullableStringPtr(s.SignedAt), s.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r Repo) GetSignature(ctx context.Context, tx *sql.Tx, contractID, partyID string) (domain.Signature, error) {
	return scanSignature(r.queryRow(ctx, tx, `SELECT `+signatureColumns+` FROM signatures WHERE contract_id=? AND party_id=?`, contractID, partyID))
}

func (r Repo) ListSignatures(ctx context.Context, tx *sql.Tx, contractID string) ([]domain.Signature, error) {
	rows, err := r.query(ctx, tx, `SELECT `+signatureColumns+` FROM signatures WHERE contract_id=? ORDER BY created_at ASC, party_id ASC`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Signature
	for rows.Next() {
		s, err := scanSignature(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) UpdateSignature(ctx context.Context, tx *sql.Tx, s domain.Signature) error {
	res, err := r.exec(ctx, tx, `UPDATE signatures SET status=?, signed_at=? WHERE contract_id=? AND party_id=?`,
		s.Status, nullableStringPtr(s.SignedAt), s.ContractID, s.PartyID)
	if err != nil {
		return err
	}
	return mustAffect(res)
}
