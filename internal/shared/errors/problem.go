// Package errors renders gateway failures as RFC 7807 problem details.
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ProblemDetail is an RFC 7807 problem. Extensions are serialized as
// top-level members next to the standard ones.
type ProblemDetail struct {
	Type       string
	Title      string
	Status     int
	Detail     string
	Instance   string
	Extensions map[string]any
}

func (p ProblemDetail) Error() string {
	if p.Detail == "" {
		return p.Title
	}
	return p.Title + ": " + p.Detail
}

func (p ProblemDetail) WithDetail(detail string) ProblemDetail {
	p.Detail = detail
	return p
}

func (p ProblemDetail) WithInstance(instance string) ProblemDetail {
	p.Instance = instance
	return p
}

// WithExtension returns a copy carrying one more extension member.
// The receiver's map is never mutated, so package templates stay clean.
func (p ProblemDetail) WithExtension(key string, value any) ProblemDetail {
	ext := make(map[string]any, len(p.Extensions)+1)
	for k, v := range p.Extensions {
		ext[k] = v
	}
	ext[key] = value
	p.Extensions = ext
	return p
}

var reservedMembers = map[string]struct{}{"type": {}, "title": {}, "status": {}, "detail": {}, "instance": {}}

func (p ProblemDetail) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extensions)+5)
	for k, v := range p.Extensions {
		if _, reserved := reservedMembers[k]; !reserved {
			out[k] = v
		}
	}
	out["type"] = p.Type
	out["title"] = p.Title
	out["status"] = p.Status
	if p.Detail != "" {
		out["detail"] = p.Detail
	}
	if p.Instance != "" {
		out["instance"] = p.Instance
	}
	return json.Marshal(out)
}

func (p *ProblemDetail) UnmarshalJSON(data []byte) error {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return err
	}
	*p = ProblemDetail{}
	for key, raw := range members {
		var err error
		switch key {
		case "type":
			err = json.Unmarshal(raw, &p.Type)
		case "title":
			err = json.Unmarshal(raw, &p.Title)
		case "status":
			err = json.Unmarshal(raw, &p.Status)
		case "detail":
			err = json.Unmarshal(raw, &p.Detail)
		case "instance":
			err = json.Unmarshal(raw, &p.Instance)
		default:
			var v any
			if err = json.Unmarshal(raw, &v); err == nil {
				if p.Extensions == nil {
					p.Extensions = map[string]any{}
				}
				p.Extensions[key] = v
			}
		}
		if err != nil {
			return fmt.Errorf("decode problem member %q: %w", key, err)
		}
	}
	return nil
}

const (
	TypeValidation         = "/problems/validation-error"
	TypeNotFound           = "/problems/not-found"
	TypeConflict           = "/problems/conflict"
	TypeDuplicateRequest   = "/problems/duplicate-request"
	TypeInternal           = "/problems/internal-error"
	TypeBadRequest         = "/problems/bad-request"
	TypeServiceUnavailable = "/problems/service-unavailable"
)

func problem(typ, title string, status int) ProblemDetail {
	return ProblemDetail{Type: typ, Title: title, Status: status}
}

var (
	ErrNotFound   = problem(TypeNotFound, "Resource Not Found", http.StatusNotFound)
	ErrValidation = problem(TypeValidation, "Validation Error", http.StatusBadRequest)
	ErrBadRequest = problem(TypeBadRequest, "Bad Request", http.StatusBadRequest)
	ErrConflict   = problem(TypeConflict, "Conflict", http.StatusConflict)
	// ErrDuplicateRequest is returned when an idempotency key is replayed with the same payload.
	ErrDuplicateRequest = problem(TypeDuplicateRequest, "Duplicate Request", http.StatusConflict).WithDetail("This request has already been processed")
	ErrInternal = problem(TypeInternal, "Internal Server Error", http.StatusInternalServerError)
	// ErrServiceUnavailable is returned while an upstream breaker refuses calls.
	ErrServiceUnavailable = problem(TypeServiceUnavailable, "Service Unavailable", http.StatusServiceUnavailable)
)

// NewValidationProblem reports field-level failures under the "fields" member.
func NewValidationProblem(fieldErrors map[string]string) ProblemDetail {
	return ErrValidation.WithExtension("fields", fieldErrors)
}

func NewNotFoundProblem(resourceType string, identifier any) ProblemDetail {
	return ErrNotFound.
		WithDetail(fmt.Sprintf("%s with identifier '%v' not found", resourceType, identifier)).
		WithExtension("resourceType", resourceType).
		WithExtension("identifier", identifier)
}
