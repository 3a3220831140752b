package apierr

import (
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/swiftbridge/convert-client/internal/utils"
)

// Text codes set by the transport when the server did not supply one.
const (
	TextCodeNetworkUnreachable = "NETWORK_UNREACHABLE"
	TextCodeHTTPError          = "HTTP_ERROR"
	TextCodeDecodeFailed       = "DECODE_FAILED"
)

const (
	metaServerCode    = "server_code"
	metaServerMessage = "server_message"
	metaMethod        = "method"
	metaPath          = "path"
)

// NewHTTPError builds the envelope for a non-2xx response.
// The server's code and message (message, falling back to error) are kept verbatim.
func NewHTTPError(method, path string, status int, body []byte) *goerrors.Error {
	var serverCode, serverMsg string
	if parsed, ok := utils.ParseJSON(body); ok {
		serverCode = utils.FirstString(parsed, "code")
		serverMsg = utils.FirstString(parsed, "message", "error")
	}

	message := serverMsg
	if message == "" {
		message = fmt.Sprintf("unexpected status %d", status)
	}

	textCode := serverCode
	if textCode == "" {
		textCode = TextCodeHTTPError
	}

	err := goerrors.New(message, categoryForStatus(status)).
		WithCode(status).
		WithTextCode(textCode)
	err.WithMetadata(map[string]any{
		metaMethod:        method,
		metaPath:          path,
		metaServerCode:    serverCode,
		metaServerMessage: serverMsg,
	})
	return err
}

// NewNetworkError builds the envelope for a request that never got a response.
func NewNetworkError(source error, method, path string) *goerrors.Error {
	err := goerrors.Wrap(source, goerrors.CategoryExternal, "transport: execute http request").
		WithTextCode(TextCodeNetworkUnreachable)
	err.WithMetadata(map[string]any{
		metaMethod: method,
		metaPath:   path,
	})
	return err
}

// NewDecodeError builds the envelope for a 2xx response whose body could not be decoded.
func NewDecodeError(source error, method, path string, status int) *goerrors.Error {
	err := goerrors.Wrap(source, goerrors.CategoryExternal, "transport: decode response").
		WithCode(status).
		WithTextCode(TextCodeDecodeFailed)
	err.WithMetadata(map[string]any{
		metaMethod: method,
		metaPath:   path,
	})
	return err
}

// ServerCode returns the server-supplied code carried by an envelope.
func ServerCode(err *goerrors.Error) string {
	return metadataString(err, metaServerCode)
}

// ServerMessage returns the verbatim server message carried by an envelope.
func ServerMessage(err *goerrors.Error) string {
	return metadataString(err, metaServerMessage)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.Code
	}
	var classified *Error
	if As(err, &classified) {
		return classified.Status
	}
	return 0
}

func metadataString(err *goerrors.Error, key string) string {
	if err == nil || err.Metadata == nil {
		return ""
	}
	v, _ := err.Metadata[key].(string)
	return v
}

func categoryForStatus(status int) goerrors.Category {
	switch {
	case status == http.StatusUnauthorized:
		return goerrors.CategoryAuth
	case status == http.StatusForbidden:
		return goerrors.CategoryAuthz
	case status == http.StatusNotFound:
		return goerrors.CategoryNotFound
	case status == http.StatusConflict:
		return goerrors.CategoryConflict
	case status == http.StatusPaymentRequired, status == http.StatusTooManyRequests:
		return goerrors.CategoryRateLimit
	case status >= 400 && status < 500:
		return goerrors.CategoryBadInput
	default:
		return goerrors.CategoryExternal
	}
}
