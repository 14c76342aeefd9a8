package onboardgate

import (
	"io"

	"github.com/heartlink/onboardgate/internal/audit"
)

// AuditEvent is one gate or record event.
type AuditEvent = audit.Event

// AuditSink receives audit events from the dispatcher goroutine. A sink that
// also implements io.Closer is closed by Gate.Close.
type AuditSink = audit.Sink

// NoOpSink drops every event.
type NoOpSink = audit.NoOpSink

// ChannelSink forwards events to a buffered channel.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON event per line.
type JSONWriterSink = audit.JSONWriterSink

// Audit event types.
const (
	AuditRedirect      = audit.EventRedirect
	AuditFailOpen      = audit.EventFailOpen
	AuditRecordCreated = audit.EventRecordCreated
	AuditRecordDenied  = audit.EventRecordDenied
)

// NewChannelSink returns a ChannelSink buffering up to buffer events.
func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing JSON lines to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}
