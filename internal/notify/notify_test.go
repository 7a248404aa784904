package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"launchpad/internal/domain"
)

type memorySink struct {
	got []domain.Notification
}

func (m *memorySink) Enqueue(_ context.Context, n domain.Notification) error {
	m.got = append(m.got, n)
	return nil
}

func TestFlushStampsAndDrains(t *testing.T) {
	sink := &memorySink{}
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	d := Dispatcher{Sink: sink, Now: func() time.Time { return fixed }}

	var o Outbox
	o.Add("u1", "Contract 'NDA' requires your signature.", domain.NotificationContract, "c1")
	o.Add("u2", "Contract 'NDA' requires your signature.", domain.NotificationContract, "c1")

	assert.Equal(t, 2, d.Flush(context.Background(), &o))
	assert.Equal(t, 0, o.Len())
	require.Len(t, sink.got, 2)
	assert.NotEmpty(t, sink.got[0].ID)
	assert.Equal(t, "2024-01-02T03:04:05.000000Z", sink.got[0].CreatedAt)
	require.NotNil(t, sink.got[0].RelatedID)
	assert.Equal(t, "c1", *sink.got[0].RelatedID)

	assert.Equal(t, 0, d.Flush(context.Background(), &o))
}

func TestFlushLogsFailuresWithoutReturning(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	failing := SinkFunc(func(context.Context, domain.Notification) error { return errors.New("sink down") })
	d := Dispatcher{Sink: failing, Log: zap.New(core)}

	var o Outbox
	o.Add("u1", "hello", domain.NotificationTask, "")
	assert.Equal(t, 0, d.Flush(context.Background(), &o))
	assert.Equal(t, 1, logs.FilterMessage("notification delivery failed").Len())
}

func TestFanoutJoinsErrors(t *testing.T) {
	first := &memorySink{}
	failing := SinkFunc(func(context.Context, domain.Notification) error { return errors.New("boom") })
	last := &memorySink{}
	err := Fanout{first, failing, last}.Enqueue(context.Background(), domain.Notification{UserID: "u1"})
	require.Error(t, err)
	assert.Len(t, first.got, 1)
	assert.Len(t, last.got, 1)
}

// Requires a running Redis; skipped otherwise.
func TestRedisPublisherIntegration(t *testing.T) {
	p := NewRedisPublisher("localhost:6379", "", 0, "launchpad:test")
	defer p.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}
	sub := p.Subscribe(ctx, "u1")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	require.NoError(t, p.Enqueue(ctx, domain.Notification{ID: "n1", UserID: "u1", Message: "hi", Kind: domain.NotificationTask}))
	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "launchpad:test:u1", msg.Channel)
	assert.Contains(t, msg.Payload, `"message":"hi"`)
}
