// Package apierr defines the client error taxonomy and classifies transport
// failures into it.
//
// Transport failures travel as go-errors envelopes built by NewHTTPError and
// NewNetworkError. Classify turns any error into exactly one Kind, so callers
// switch over a value instead of inspecting errors.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Kind is the error taxonomy exposed to callers.
type Kind string

const (
	KindAuthenticationRejected Kind = "authentication_rejected"
	KindAuthorizationExpired   Kind = "authorization_expired"
	KindQuotaExceeded          Kind = "quota_exceeded"
	KindAnonymousLimitReached  Kind = "anonymous_limit_reached"
	KindNetworkUnreachable     Kind = "network_unreachable"
	KindServerRejected         Kind = "server_rejected"
	KindUnclassified           Kind = "unclassified"
)

// Machine-readable codes sent by the conversion API.
const (
	CodeInsufficientCredits   = "INSUFFICIENT_CREDITS"
	CodeAnonymousLimitReached = "ANONYMOUS_LIMIT_REACHED"
)

// Remediation is the action suggested alongside an error.
type Remediation string

const (
	RemediationNone            Remediation = ""
	RemediationPurchaseCredits Remediation = "purchase_credits"
	RemediationRegister        Remediation = "register"
	RemediationLogin           Remediation = "login"
)

// Fixed user-visible messages.
const (
	MessageNetworkUnreachable     = "Unable to connect to server. Please check your connection and try again."
	MessageQuotaExceeded          = "You have run out of credits. Please purchase more to continue converting."
	MessageAnonymousLimitReached  = "You have reached the free conversion limit. Sign up to get 5 free credits."
	MessageAuthenticationRejected = "Invalid email or password"
	MessageAuthorizationExpired   = "Your session has expired. Please sign in again."
	MessageUnclassified           = "Something went wrong. Please try again."
)

// Error is a classified failure.
type Error struct {
	Kind          Kind
	Status        int    // HTTP status, 0 when no response was received
	Code          string // server code, if any
	Message       string // user-visible message
	ServerMessage string // verbatim server message, if any
	Remediation   Remediation
	Err           error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, classifying it if needed.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return Classify(err).Kind
}

// Classify maps any error onto the taxonomy. It never returns nil for a non-nil error.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return classifyEnvelope(rich, err)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindNetworkUnreachable, Message: MessageNetworkUnreachable, Err: err}
	default:
		return &Error{Kind: KindUnclassified, Message: MessageUnclassified, Err: err}
	}
}

func classifyEnvelope(rich *goerrors.Error, source error) *Error {
	serverCode := ServerCode(rich)
	serverMsg := ServerMessage(rich)

	out := &Error{
		Status:        rich.Code,
		Code:          serverCode,
		ServerMessage: serverMsg,
		Err:           source,
	}

	switch {
	case rich.TextCode == TextCodeNetworkUnreachable:
		out.Kind = KindNetworkUnreachable
		out.Message = MessageNetworkUnreachable
	case serverCode == CodeInsufficientCredits:
		out.Kind = KindQuotaExceeded
		out.Message = MessageQuotaExceeded
		out.Remediation = RemediationPurchaseCredits
	case serverCode == CodeAnonymousLimitReached:
		out.Kind = KindAnonymousLimitReached
		out.Message = MessageAnonymousLimitReached
		out.Remediation = RemediationRegister
	case rich.Code == 401:
		out.Kind = KindAuthenticationRejected
		out.Message = firstNonEmpty(serverMsg, MessageAuthenticationRejected)
		out.Remediation = RemediationLogin
	case rich.Code >= 400 && serverMsg != "":
		out.Kind = KindServerRejected
		out.Message = serverMsg
	default:
		out.Kind = KindUnclassified
		out.Message = MessageUnclassified
	}
	return out
}

// Expired builds the error used when a superseded response must be surfaced
// to code that cannot express a no-op.
func Expired(path string) *Error {
	return &Error{
		Kind:        KindAuthorizationExpired,
		Status:      401,
		Message:     MessageAuthorizationExpired,
		Remediation: RemediationLogin,
		Err:         fmt.Errorf("protected request %s superseded by logout", path),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// As is errors.As for *Error.
func As(err error, target **Error) bool {
	return errors.As(err, target)
}
