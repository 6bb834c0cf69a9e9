package application

import (
	"errors"
	"fmt"

	"github.com/Apurer/catalog-gateway/internal/domains/products/domain"
)

var (
	// ErrInvalidInput signals the request violated a domain invariant.
	ErrInvalidInput = errors.New("invalid product input")
	// ErrUpstream matches every AggregationError.
	ErrUpstream = errors.New("upstream failure")
)

// AggregationError wraps an upstream failure with the operation and product id.
// Its message depends only on those two fields; the cause is kept for Unwrap.
type AggregationError struct {
	Op  string
	ID  string
	Err error
}

func (e *AggregationError) Error() string {
	if e.ID == "" {
		return "failed to " + e.Op
	}
	return fmt.Sprintf("failed to %s %s", e.Op, e.ID)
}

func (e *AggregationError) Unwrap() error { return e.Err }

func (e *AggregationError) Is(target error) bool { return target == ErrUpstream }

func wrap(op, id string, err error) error {
	if err == nil {
		return nil
	}
	return &AggregationError{Op: op, ID: id, Err: err}
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrEmptyName) ||
		errors.Is(err, domain.ErrMissingPrice) ||
		errors.Is(err, domain.ErrNegativePrice) {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return err
}
