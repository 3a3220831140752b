package conversion

import (
	"fmt"
	"strings"

	"github.com/swiftbridge/convert-client/internal/apierr"
	"github.com/swiftbridge/convert-client/internal/monitoring"
)

// MessageType is a supported SWIFT MT message type.
type MessageType string

const (
	MT103    MessageType = "MT103"
	MT202    MessageType = "MT202"
	MT202COV MessageType = "MT202COV"
	MT940    MessageType = "MT940"
	MT102    MessageType = "MT102"
)

// MessageTypes lists the supported types in display order.
var MessageTypes = []MessageType{MT103, MT202, MT202COV, MT940, MT102}

// ParseMessageType accepts any case and an optional "MT" prefix.
func ParseMessageType(s string) (MessageType, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	if norm != "" && !strings.HasPrefix(norm, "MT") {
		norm = "MT" + norm
	}
	for _, mt := range MessageTypes {
		if string(mt) == norm {
			return mt, nil
		}
	}
	return "", fmt.Errorf("unsupported message type %q", s)
}

// Request is one conversion to run. Source must be non-empty.
type Request struct {
	Source      string
	MessageType MessageType
}

// Tag classifies an Outcome.
type Tag string

const (
	TagSuccess               Tag = monitoring.OutcomeSuccess
	TagQuotaExceeded         Tag = monitoring.OutcomeQuotaExceeded
	TagAnonymousLimitReached Tag = monitoring.OutcomeAnonymousLimit
	TagFailure               Tag = monitoring.OutcomeFailure
)

// MessageFallback is shown when the server gave nothing usable.
const MessageFallback = "Unable to process your SWIFT message. Please verify the message format and try again."

// Outcome is the single result of Submit.
type Outcome struct {
	Tag Tag
	// XML is the converted document, set only on success.
	XML string
	// Message is the user-visible text for non-success outcomes.
	Message     string
	Remediation apierr.Remediation
	// Kind is the classified error kind, empty on success.
	Kind apierr.Kind
	// Err is the underlying error, if any. Never shown to the user.
	Err error
}

// OK reports whether the conversion succeeded.
func (o Outcome) OK() bool { return o.Tag == TagSuccess }
