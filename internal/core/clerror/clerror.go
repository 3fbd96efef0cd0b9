package clerror

import (
	"errors"
	"fmt"
)

// Kind classifies a core error so callers can decide between surfacing,
// retrying, and repairing without string-matching messages.
type Kind string

const (
	Validation            Kind = "validation"
	InternalisationFailed Kind = "internalisation_failed"
	ToolUnsupported       Kind = "tool_unsupported"
	AICallFailed          Kind = "ai_call_failed"
	ContentPolicyRejected Kind = "content_policy_rejected"
	ResourceMissing       Kind = "resource_missing"
	CostExhausted         Kind = "cost_exhausted"
	Concurrency           Kind = "concurrency"
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error

	// Region points at the offending part of user-edited text, when known.
	// 1-based; zero means unknown.
	Page    int
	Segment int
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Page > 0 || e.Segment > 0 {
		return fmt.Sprintf("%s: %s (page %d, segment %d)", e.Kind, msg, e.Page, e.Segment)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func At(kind Kind, page, segment int, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Page: page, Segment: segment}
}

// KindOf extracts the Kind from anywhere in err's chain, or "" if err is not
// a core error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool { return KindOf(err) == kind }

// Retryable reports whether the pipeline may retry the failed call.
// Validation and tool errors are never retried.
func Retryable(err error) bool {
	switch KindOf(err) {
	case AICallFailed:
		return true
	default:
		return false
	}
}
