package errors

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
)

const ContentTypeProblemJSON = "application/problem+json"

const unexpectedDetail = "an unexpected error occurred"

// Responder writes problem details onto gin responses.
type Responder struct {
	baseURI   string
	requestID func(*gin.Context) string
}

type ResponderOption func(*Responder)

// WithBaseURI makes relative problem types absolute.
func WithBaseURI(uri string) ResponderOption {
	return func(r *Responder) {
		r.baseURI = strings.TrimRight(uri, "/")
	}
}

// WithRequestID adds a "requestId" member taken from the gin context.
func WithRequestID(lookup func(*gin.Context) string) ResponderOption {
	return func(r *Responder) {
		r.requestID = lookup
	}
}

func NewResponder(opts ...ResponderOption) *Responder {
	r := &Responder{}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

var defaultResponder = NewResponder()

func (r *Responder) Respond(c *gin.Context, problem ProblemDetail) {
	if r.baseURI != "" && strings.HasPrefix(problem.Type, "/") {
		problem.Type = r.baseURI + problem.Type
	}
	if problem.Instance == "" {
		problem.Instance = c.Request.URL.Path
	}
	if r.requestID != nil {
		if id := r.requestID(c); id != "" {
			problem = problem.WithExtension("requestId", id)
		}
	}
	c.Header("Content-Type", ContentTypeProblemJSON)
	c.JSON(problem.Status, problem)
}

// RespondError passes problem details through unchanged. Any other error
// becomes a 500 whose detail does not reveal the cause.
func (r *Responder) RespondError(c *gin.Context, err error) {
	var problem ProblemDetail
	if errors.As(err, &problem) {
		r.Respond(c, problem)
		return
	}
	_ = c.Error(err)
	r.Respond(c, ErrInternal.WithDetail(unexpectedDetail))
}

func (r *Responder) NotFound(c *gin.Context, resourceType string, identifier any) {
	r.Respond(c, NewNotFoundProblem(resourceType, identifier))
}

func (r *Responder) BadRequest(c *gin.Context, detail string) {
	r.Respond(c, ErrBadRequest.WithDetail(detail))
}

func (r *Responder) ValidationFailed(c *gin.Context, fieldErrors map[string]string) {
	r.Respond(c, NewValidationProblem(fieldErrors))
}

func (r *Responder) ServiceUnavailable(c *gin.Context, detail string) {
	r.Respond(c, ErrServiceUnavailable.WithDetail(detail))
}

// Respond uses a responder without base URI or request ids.
func Respond(c *gin.Context, problem ProblemDetail) {
	defaultResponder.Respond(c, problem)
}

func RespondError(c *gin.Context, err error) {
	defaultResponder.RespondError(c, err)
}

// ErrorMapper translates an application error into a problem, reporting false when it does not apply.
type ErrorMapper func(err error) (ProblemDetail, bool)

// ChainedResponder consults its mappers in order before the default handling.
type ChainedResponder struct {
	*Responder
	mappers []ErrorMapper
}

// Chain returns a responder sharing r's options that tries mappers first.
func (r *Responder) Chain(mappers ...ErrorMapper) *ChainedResponder {
	return &ChainedResponder{Responder: r, mappers: mappers}
}

func (r *ChainedResponder) RespondError(c *gin.Context, err error) {
	for _, mapper := range r.mappers {
		if problem, ok := mapper(err); ok {
			r.Respond(c, problem)
			return
		}
	}
	r.Responder.RespondError(c, err)
}
