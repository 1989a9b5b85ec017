package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the coarse error class surfaced to callers.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindConflict        Kind = "conflict"
	KindExternalService Kind = "external_service"
	KindNotFound        Kind = "not_found"
	KindInvalidArgument Kind = "invalid_argument"
	KindInternal        Kind = "internal"
)

type Error struct {
	Kind    Kind
	Status  int
	Code    string
	Err     error
	Details map[string]any
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Kind: kindForStatus(status), Status: status, Code: code, Err: err}
}

func Validation(code string, err error) *Error {
	return &Error{Kind: KindValidation, Status: http.StatusUnprocessableEntity, Code: code, Err: err}
}

func Conflict(code string, err error) *Error {
	return &Error{Kind: KindConflict, Status: http.StatusConflict, Code: code, Err: err}
}

func ExternalService(code string, err error) *Error {
	return &Error{Kind: KindExternalService, Status: http.StatusBadGateway, Code: code, Err: err}
}

func NotFound(code string, err error) *Error {
	return &Error{Kind: KindNotFound, Status: http.StatusNotFound, Code: code, Err: err}
}

func InvalidArgument(code string, err error) *Error {
	return &Error{Kind: KindInvalidArgument, Status: http.StatusBadRequest, Code: code, Err: err}
}

func Internal(code string, err error) *Error {
	return &Error{Kind: KindInternal, Status: http.StatusInternalServerError, Code: code, Err: err}
}

// WithDetail returns a copy of e carrying an extra detail entry.
func (e *Error) WithDetail(key string, val any) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = val
	return &cp
}

// As extracts the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) && ae != nil {
		return ae, true
	}
	return nil, false
}

// KindOf reports the kind of err; errors outside the taxonomy are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if ae, ok := As(err); ok && ae.Kind != "" {
		return ae.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Ensure wraps err as internal unless it already belongs to the taxonomy.
func Ensure(code string, err error) *Error {
	if err == nil {
		return nil
	}
	if ae, ok := As(err); ok {
		return ae
	}
	return Internal(code, err)
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnprocessableEntity:
		return KindValidation
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable:
		return KindExternalService
	case status >= 400 && status < 500:
		return KindInvalidArgument
	default:
		return KindInternal
	}
}
