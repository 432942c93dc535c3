// This file provides the CloudEvents-backed implementation of EventSink,
// wrapping outbound notifications in the CloudEvents envelope for
// interoperability with external event/syslog subsystems. See events.go
// for the EventSink interface and the event taxonomy.
package esexec

import (
	"context"
	"fmt"
	"io"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// CloudEventPublisher is the narrow capability CloudEventSink needs from a
// CloudEvents transport.
type CloudEventPublisher interface {
	Send(ctx context.Context, event cloudevents.Event) error
}

// HTTPCloudEventClient adapts a cloudevents.Client to CloudEventPublisher,
// converting the SDK's protocol.Result into a plain error.
type HTTPCloudEventClient struct {
	client cloudevents.Client
}

// NewHTTPCloudEventClient builds a CloudEvents HTTP client targeting the
// given URL (typically the ingest endpoint of an external event/syslog
// subsystem).
func NewHTTPCloudEventClient(target string) (*HTTPCloudEventClient, error) {
	c, err := cloudevents.NewClientHTTP(cloudevents.WithTarget(target))
	if err != nil {
		return nil, fmt.Errorf("build cloudevents client: %w", err)
	}
	return &HTTPCloudEventClient{client: c}, nil
}

// Send publishes event, returning an error only when the SDK reports the
// delivery as undelivered.
func (h *HTTPCloudEventClient) Send(ctx context.Context, event cloudevents.Event) error {
	result := h.client.Send(ctx, event)
	if cloudevents.IsUndelivered(result) {
		return result
	}
	return nil
}

// CloudEventSink emits structured event records as CloudEvents (source
// "esexec") and writes syslog lines to an append-only writer, matching
// the "structured event records plus append-only syslog sink" outbound
// notification model in spec.md section 6.
type CloudEventSink struct {
	publisher CloudEventPublisher
	syslog    io.Writer
	source    string
}

// NewCloudEventSink builds a sink that publishes through publisher (nil
// is allowed; events are then dropped, matching a disconnected EVS) and
// appends syslog lines to w.
func NewCloudEventSink(publisher CloudEventPublisher, w io.Writer) *CloudEventSink {
	return &CloudEventSink{publisher: publisher, syslog: w, source: "esexec"}
}

// Event publishes one structured notification. id is a reverse-domain
// event type such as EventRestartAppInf; severity and the formatted
// message become the CloudEvent's data payload.
func (s *CloudEventSink) Event(id string, severity Severity, format string, args ...any) {
	if s.publisher == nil {
		return
	}
	ev := cloudevents.NewEvent()
	ev.SetID(newEventID())
	ev.SetSource(s.source)
	ev.SetType(id)
	ev.SetTime(time.Now())
	ev.SetSpecVersion(cloudevents.VersionV1)
	_ = ev.SetData(cloudevents.ApplicationJSON, map[string]any{
		"severity": severity.String(),
		"message":  fmt.Sprintf(format, args...),
	})
	_ = s.publisher.Send(context.Background(), ev)
}

// Syslog appends one line to the append-only syslog stream.
func (s *CloudEventSink) Syslog(format string, args ...any) {
	if s.syslog == nil {
		return
	}
	fmt.Fprintf(s.syslog, format+"\n", args...)
}

// newEventID mints a time-ordered CloudEvent ID using UUIDv7, falling
// back to UUIDv4 if the v7 generator ever fails.
func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}
