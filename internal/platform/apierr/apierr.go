// Package apierr shapes domain errors into the JSON envelope the HTTP
// layer returns. The envelope exposes the error kind as a stable code so
// clients can branch without parsing messages.
package apierr

import (
	"net/http"

	"github.com/clara-platform/clara-backend/internal/core/clerror"
)

// Envelope is the wire form of a failed request.
type Envelope struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"error"`
}

var statusByKind = map[clerror.Kind]int{
	clerror.Validation:            http.StatusBadRequest,
	clerror.ToolUnsupported:       http.StatusBadRequest,
	clerror.ResourceMissing:       http.StatusNotFound,
	clerror.CostExhausted:         http.StatusPaymentRequired,
	clerror.Concurrency:           http.StatusConflict,
	clerror.InternalisationFailed: http.StatusUnprocessableEntity,
	clerror.ContentPolicyRejected: http.StatusUnprocessableEntity,
	clerror.AICallFailed:          http.StatusBadGateway,
}

// FromDomain maps a domain error to its envelope. Unrecognised kinds
// become a 500 with the generic internal code.
func FromDomain(err error) Envelope {
	kind := clerror.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		return Envelope{
			Status:  http.StatusInternalServerError,
			Code:    "internal",
			Message: err.Error(),
		}
	}
	return Envelope{Status: status, Code: string(kind), Message: err.Error()}
}
