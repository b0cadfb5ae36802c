package problems

import (
	"errors"
	"fmt"
	"net/http"
)

// ContentType is the media type for problem-details responses per RFC 9457.
const ContentType = "application/problem+json"

// TypeNamespace is the registry error namespace prefixed to each kind to form
// the stable "type" URI of a problem.
const TypeNamespace = "https://xregistry.io/problems/"

// Kind identifies one member of the closed set of error kinds. Every non-2xx
// response produced by pkghub carries exactly one of these.
type Kind string

const (
	KindBadRequest          Kind = "bad-request"
	KindUnauthorized        Kind = "unauthorized"
	KindForbidden           Kind = "forbidden"
	KindNotFound            Kind = "not-found"
	KindConflict            Kind = "conflict"
	KindUnprocessableEntity Kind = "unprocessable-entity"
	KindTooManyRequests     Kind = "too-many-requests"
	KindInternalError       Kind = "internal-error"
	KindBadGateway          Kind = "bad-gateway"
	KindServiceUnavailable  Kind = "service-unavailable"
)

// Status returns the HTTP status code associated with the kind.
func (k Kind) Status() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnprocessableEntity:
		return http.StatusUnprocessableEntity
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	case KindBadGateway:
		return http.StatusBadGateway
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Title returns the human-readable short title for the kind.
func (k Kind) Title() string {
	switch k {
	case KindBadRequest:
		return "Bad Request"
	case KindUnauthorized:
		return "Unauthorized"
	case KindForbidden:
		return "Forbidden"
	case KindNotFound:
		return "Not Found"
	case KindConflict:
		return "Conflict"
	case KindUnprocessableEntity:
		return "Unprocessable Entity"
	case KindTooManyRequests:
		return "Too Many Requests"
	case KindBadGateway:
		return "Bad Gateway"
	case KindServiceUnavailable:
		return "Service Unavailable"
	default:
		return "Internal Server Error"
	}
}

// Problem is an RFC 9457 problem-details value. It implements error so domain
// code can return it directly; the HTTP error middleware serializes it.
type Problem struct {
	Type     string                 `json:"type"`
	Title    string                 `json:"title"`
	Status   int                    `json:"status"`
	Detail   string                 `json:"detail,omitempty"`
	Instance string                 `json:"instance,omitempty"`
	Data     map[string]interface{} `json:"data,omitempty"`

	kind    Kind
	wrapped error
}

// New creates a Problem of the given kind with a formatted detail message.
func New(kind Kind, detailFmt string, args ...interface{}) *Problem {
	detail := detailFmt
	if len(args) > 0 {
		detail = fmt.Sprintf(detailFmt, args...)
	}
	return &Problem{
		Type:   TypeNamespace + string(kind),
		Title:  kind.Title(),
		Status: kind.Status(),
		Detail: detail,
		kind:   kind,
	}
}

// BadRequest creates a 400 problem.
func BadRequest(detailFmt string, args ...interface{}) *Problem {
	return New(KindBadRequest, detailFmt, args...)
}

// Unauthorized creates a 401 problem.
func Unauthorized(detailFmt string, args ...interface{}) *Problem {
	return New(KindUnauthorized, detailFmt, args...)
}

// Forbidden creates a 403 problem.
func Forbidden(detailFmt string, args ...interface{}) *Problem {
	return New(KindForbidden, detailFmt, args...)
}

// NotFound creates a 404 problem.
func NotFound(detailFmt string, args ...interface{}) *Problem {
	return New(KindNotFound, detailFmt, args...)
}

// Conflict creates a 409 problem.
func Conflict(detailFmt string, args ...interface{}) *Problem {
	return New(KindConflict, detailFmt, args...)
}

// UnprocessableEntity creates a 422 problem.
func UnprocessableEntity(detailFmt string, args ...interface{}) *Problem {
	return New(KindUnprocessableEntity, detailFmt, args...)
}

// TooManyRequests creates a 429 problem.
func TooManyRequests(detailFmt string, args ...interface{}) *Problem {
	return New(KindTooManyRequests, detailFmt, args...)
}

// Internal creates a 500 problem.
func Internal(detailFmt string, args ...interface{}) *Problem {
	return New(KindInternalError, detailFmt, args...)
}

// BadGateway creates a 502 problem.
func BadGateway(detailFmt string, args ...interface{}) *Problem {
	return New(KindBadGateway, detailFmt, args...)
}

// ServiceUnavailable creates a 503 problem.
func ServiceUnavailable(detailFmt string, args ...interface{}) *Problem {
	return New(KindServiceUnavailable, detailFmt, args...)
}

// Error implements the error interface.
func (p *Problem) Error() string {
	if p.Detail != "" {
		return fmt.Sprintf("%s: %s", p.Title, p.Detail)
	}
	return p.Title
}

// Unwrap exposes the cause for errors.Is/As chains.
func (p *Problem) Unwrap() error {
	return p.wrapped
}

// Kind returns the problem's error kind.
func (p *Problem) Kind() Kind {
	return p.kind
}

// WithInstance sets the originating request path and returns the problem.
func (p *Problem) WithInstance(path string) *Problem {
	p.Instance = path
	return p
}

// WithData attaches an implementation-defined extension field.
func (p *Problem) WithData(key string, value interface{}) *Problem {
	if p.Data == nil {
		p.Data = map[string]interface{}{}
	}
	p.Data[key] = value
	return p
}

// WithCause records the underlying error without exposing it to clients.
func (p *Problem) WithCause(err error) *Problem {
	p.wrapped = err
	return p
}

// As extracts a Problem from an error chain.
func As(err error) (*Problem, bool) {
	var p *Problem
	if errors.As(err, &p) {
		return p, true
	}
	return nil, false
}

// From converts an arbitrary error into a Problem. Errors that already are
// (or wrap) a Problem pass through; anything else becomes internal-error with
// the error text hidden from the client.
func From(err error) *Problem {
	if p, ok := As(err); ok {
		return p
	}
	return Internal("an internal error occurred").WithCause(err)
}

// IsKind reports whether err is (or wraps) a Problem of the given kind.
func IsKind(err error, kind Kind) bool {
	if p, ok := As(err); ok {
		return p.kind == kind
	}
	return false
}
