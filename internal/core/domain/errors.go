package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrProofNotFound         = errors.New("proof not found")
	ErrPriceNotFound         = errors.New("price not found")
	ErrPriceTagNotFound      = errors.New("price tag not found")
	ErrReceiptItemNotFound   = errors.New("receipt item not found")
	ErrPredictionNotFound    = errors.New("prediction not found")
	ErrLocationNotFound      = errors.New("location not found")
	ErrInvalidInput          = errors.New("invalid input")
	ErrUnknownLanguagePrefix = errors.New("unknown language prefix")
	ErrAmbiguousMatch        = errors.New("ambiguous match")
	ErrExternalService       = errors.New("external service failure")
	ErrTemporary             = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// FieldErrors maps an entity field name to the validation failures recorded
// against it. An empty map means the entity passed validation.
type FieldErrors map[string][]string

func (fe FieldErrors) Add(field, message string) {
	fe[field] = append(fe[field], message)
}

func (fe FieldErrors) Merge(other FieldErrors) {
	for field, messages := range other {
		fe[field] = append(fe[field], messages...)
	}
}

func (fe FieldErrors) Empty() bool {
	return len(fe) == 0
}

// AsError returns a ValidationError carrying the map, or nil when the map is
// empty. Callers must abort persistence on a non-nil result.
func (fe FieldErrors) AsError() error {
	if fe.Empty() {
		return nil
	}
	return &ValidationError{Fields: fe}
}

// ValidationError is the structured, field-attributed validation failure.
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(e.Fields[field], "; ")))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// AsValidationError unwraps err into a *ValidationError when it is one.
func AsValidationError(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
