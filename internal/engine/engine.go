package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"launchpad/internal/config"
	"launchpad/internal/domain"
	"launchpad/internal/engine/auth"
	"launchpad/internal/events"
	"launchpad/internal/notify"
	"launchpad/internal/repo"
	"launchpad/internal/score"
)

var tracer = otel.Tracer("launchpad/engine")

// Engine runs the contract and task workflows. Every mutation happens in one
// transaction; notifications are delivered after commit.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Ledger score.Ledger
	Notify notify.Dispatcher
	Config *config.Config
	Log    *zap.Logger
	Now    func() time.Time
}

// New builds an engine that stores notifications in the database. Callers
// may replace Notify.Sink to fan out elsewhere.
func New(db *sql.DB, driver string, cfg *config.Config, log *zap.Logger) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}
	r := repo.Repo{DB: db, Driver: driver}
	ev := events.Writer{Driver: driver}
	return Engine{
		DB:     db,
		Repo:   r,
		Events: ev,
		Ledger: score.Ledger{DB: db, Repo: r, Events: ev},
		Notify: notify.Dispatcher{Sink: notify.Store{Repo: r}, Log: log.With(zap.String("component", "notify"))},
		Config: cfg,
		Log:    log,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return domain.FormatTime(e.now())
}

// clock keeps the event writer and ledger on the engine's time source.
func (e Engine) clock() Engine {
	e.Events.Now = e.now
	e.Ledger.Events.Now = e.now
	e.Ledger.Now = e.now
	e.Notify.Now = e.now
	return e
}

// ResolveActor computes the authorization context for a user id.
func (e Engine) ResolveActor(ctx context.Context, userID string) (auth.Actor, error) {
	return auth.Resolve(ctx, e.Repo, userID)
}

func (e Engine) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return tx, nil
}

func startSpan(ctx context.Context, name string, actor auth.Actor, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	attrs = append(attrs, attribute.String("actor.id", actor.UserID))
	ctx, span := tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal), trace.WithAttributes(attrs...))
	return ctx, func(errp *error) {
		if errp != nil && *errp != nil {
			span.RecordError(*errp)
			if domain.KindOf(*errp) == "" {
				span.SetStatus(codes.Error, (*errp).Error())
			}
		}
		span.End()
	}
}

// notFound converts repo.ErrNotFound into a user-facing NotFound error.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, repo.ErrNotFound) {
		return domain.NotFound(format, args...)
	}
	return err
}
