package kafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/heartlink/onboardgate"
)

var _ onboardgate.AuditSink = (*Sink)(nil)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("publish without deadline")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestEmitPublishesJSONKeyedByUser(t *testing.T) {
	w := &fakeWriter{}
	s := NewWithWriter(w, Config{Topic: "onboarding.audit"})

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Emit(context.Background(), onboardgate.AuditEvent{
		Timestamp: ts,
		EventType: onboardgate.AuditRedirect,
		UserID:    "u1",
		Path:      "/dashboard",
		Target:    "/verify",
	})

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	require.Equal(t, []byte("u1"), msg.Key)
	require.Equal(t, ts, msg.Time)
	require.Equal(t, "event_type", msg.Headers[0].Key)

	var got onboardgate.AuditEvent
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	require.Equal(t, "/verify", got.Target)
	require.Equal(t, onboardgate.AuditRedirect, got.EventType)
	require.Zero(t, s.Failed())
}

func TestEmitFailureIsLoggedAndCounted(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	w := &fakeWriter{err: errors.New("broker down")}
	s := NewWithWriter(w, Config{Topic: "audit", Logger: zap.New(core)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Emit(ctx, onboardgate.AuditEvent{EventType: onboardgate.AuditFailOpen, UserID: "u2"})

	require.Equal(t, uint64(1), s.Failed())
	require.Equal(t, 1, logs.FilterMessage("audit publish failed").Len())
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{Topic: "audit"})
	require.Error(t, err)
	_, err = New(Config{Brokers: []string{"localhost:9092"}})
	require.Error(t, err)
}

func TestCloseClosesWriter(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, NewWithWriter(w, Config{Topic: "audit"}).Close())
	require.True(t, w.closed)
}
