package notify

import (
	"context"
	"errors"
	"fmt"

	"launchpad/internal/domain"
	"launchpad/internal/repo"
)

// Sink accepts a notification for delivery.
type Sink interface {
	Enqueue(ctx context.Context, n domain.Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n domain.Notification) error

func (f SinkFunc) Enqueue(ctx context.Context, n domain.Notification) error { return f(ctx, n) }

// Store persists notifications to the notifications table.
type Store struct {
	Repo repo.Repo
}

func (s Store) Enqueue(ctx context.Context, n domain.Notification) error {
	if err := s.Repo.InsertNotification(ctx, nil, n); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	return nil
}

// Fanout delivers to every sink in order and joins their errors.
type Fanout []Sink

func (f Fanout) Enqueue(ctx context.Context, n domain.Notification) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Enqueue(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
