package apierr

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// Outcome describes a finished (failed) call: either a transport error with no
// response, or a response status with its body.
type Outcome struct {
	StatusCode int
	Body       []byte
	Err        error
}

// Classify maps a failed call outcome onto the error taxonomy
func Classify(o Outcome) error {
	if o.Err != nil {
		return classifyTransport(o.Err)
	}

	message := payloadMessage(o.Body)

	switch o.StatusCode {
	case http.StatusUnauthorized:
		unauthorized := NewUnauthorizedError(message)
		unauthorized.Data = rawPayload(o.Body)
		return unauthorized
	}

	if message == "" {
		message = defaultStatusMessage(o.StatusCode)
	}
	return NewAPIError(message, o.StatusCode, rawPayload(o.Body))
}

func classifyTransport(err error) error {
	// Already classified (e.g. a waiter receiving the recovery error)
	if KindOf(err) != KindNone {
		return err
	}

	if isTimeout(err) {
		return &NetworkError{Message: MsgTimeout, Timeout: true, Err: err}
	}

	message := MsgNetwork
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		message = msg
	}
	return &NetworkError{Message: message, Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// payloadMessage extracts a string "message" field from a JSON payload
func payloadMessage(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}
	msg := gjson.GetBytes(body, "message")
	if msg.Type != gjson.String {
		return ""
	}
	return strings.TrimSpace(msg.String())
}

func defaultStatusMessage(status int) string {
	switch status {
	case http.StatusForbidden:
		return MsgForbidden
	case http.StatusNotFound:
		return MsgNotFound
	case http.StatusInternalServerError:
		return MsgServerError
	default:
		return statusTemplate(status)
	}
}

func rawPayload(body []byte) []byte {
	if len(body) == 0 {
		return nil
	}
	out := make([]byte, len(body))
	copy(out, body)
	return out
}
