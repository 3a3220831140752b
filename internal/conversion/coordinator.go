// Package conversion drives a single MT to MX conversion through the remote
// API and classifies what happened.
//
// Submit makes exactly one call and never retries. Every outcome is one of
// success, quota_exceeded, anonymous_limit_reached or failure; after a
// success the coordinator publishes refresh_credits so the owner can update
// the balance it shows.
package conversion

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/swiftbridge/convert-client/internal/apierr"
	"github.com/swiftbridge/convert-client/internal/events"
	"github.com/swiftbridge/convert-client/internal/journal"
	"github.com/swiftbridge/convert-client/internal/monitoring"
	"github.com/swiftbridge/convert-client/internal/transport"
	"github.com/swiftbridge/convert-client/internal/utils"
)

// ConvertPath is the conversion endpoint.
const ConvertPath = "/api/v1/conversion/mt-to-mx"

// ErrEmptySource is returned by Validate for a blank message.
var ErrEmptySource = errors.New("conversion: source message is empty")

// Doer executes API requests. *transport.Transport satisfies it.
type Doer interface {
	Do(ctx context.Context, req transport.Request) (*transport.Response, error)
}

// Recorder persists outcomes. *journal.SQLiteJournal satisfies it.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Coordinator submits conversions.
type Coordinator struct {
	api       Doer
	publisher events.Publisher
	recorder  Recorder
	metrics   *monitoring.Metrics
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPublisher sets where refresh_credits is published.
func WithPublisher(p events.Publisher) Option {
	return func(c *Coordinator) { c.publisher = p }
}

// WithRecorder enables the local journal.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

// WithMetrics enables outcome counters.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// NewCoordinator creates a coordinator.
func NewCoordinator(api Doer, opts ...Option) *Coordinator {
	c := &Coordinator{api: api}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate checks the request preconditions Submit assumes.
func Validate(req Request) error {
	if strings.TrimSpace(req.Source) == "" {
		return ErrEmptySource
	}
	if _, err := ParseMessageType(string(req.MessageType)); err != nil {
		return err
	}
	return nil
}

// Submit runs one conversion and returns its classified outcome.
func (c *Coordinator) Submit(ctx context.Context, req Request) Outcome {
	outcome := c.submit(ctx, req)

	log.Info().
		Str("message_type", string(req.MessageType)).
		Str("outcome", string(outcome.Tag)).
		Str("kind", string(outcome.Kind)).
		Int("bytes", len(req.Source)).
		Msg("conversion: classified")

	if outcome.OK() && c.publisher != nil {
		c.publisher.Publish(events.Event{Kind: events.KindRefreshCredits, Path: ConvertPath, Reason: "conversion succeeded"})
	}
	if c.metrics != nil {
		c.metrics.RecordConversion(string(outcome.Tag))
	}
	if c.recorder != nil {
		entry := journal.Entry{
			MessageType:  string(req.MessageType),
			Outcome:      string(outcome.Tag),
			Message:      outcome.Message,
			PayloadBytes: len(req.Source),
		}
		// The conversion already happened; a cancelled caller must not lose the record.
		if err := c.recorder.Record(context.WithoutCancel(ctx), entry); err != nil {
			log.Warn().Err(err).Msg("conversion: journal write failed")
		}
	}
	return outcome
}

func (c *Coordinator) submit(ctx context.Context, req Request) Outcome {
	body, _ := sjson.SetBytes([]byte(`{}`), "mtMessage", req.Source)
	body, _ = sjson.SetBytes(body, "messageType", string(req.MessageType))

	resp, err := c.api.Do(ctx, transport.Request{Method: http.MethodPost, Path: ConvertPath, Body: body})
	if err != nil {
		return classifyFailure(err)
	}
	if resp.Superseded {
		return Outcome{
			Tag:         TagFailure,
			Message:     apierr.MessageAuthorizationExpired,
			Remediation: apierr.RemediationLogin,
			Kind:        apierr.KindAuthorizationExpired,
		}
	}
	return Outcome{Tag: TagSuccess, XML: extractXML(resp.Body)}
}

// classifyFailure maps a failed call onto an outcome. The quota and anonymous
// codes win over any message the server sent.
func classifyFailure(err error) Outcome {
	classified := apierr.Classify(err)
	out := Outcome{Kind: classified.Kind, Err: err}

	switch classified.Kind {
	case apierr.KindQuotaExceeded:
		out.Tag = TagQuotaExceeded
		out.Message = apierr.MessageQuotaExceeded
		out.Remediation = apierr.RemediationPurchaseCredits
	case apierr.KindAnonymousLimitReached:
		out.Tag = TagAnonymousLimitReached
		out.Message = apierr.MessageAnonymousLimitReached
		out.Remediation = apierr.RemediationRegister
	case apierr.KindNetworkUnreachable:
		out.Tag = TagFailure
		out.Message = apierr.MessageNetworkUnreachable
	default:
		out.Tag = TagFailure
		out.Message = MessageFallback
		if classified.ServerMessage != "" {
			out.Message = classified.ServerMessage
		}
	}
	return out
}

// extractXML returns the xml field of a JSON body, or the body itself when
// the server answered with a bare document.
func extractXML(body []byte) string {
	if parsed, ok := utils.ParseJSON(body); ok {
		if parsed.IsObject() {
			return parsed.Get("xml").String()
		}
		if parsed.Type == gjson.String {
			return parsed.String()
		}
	}
	return string(body)
}
