package classifier

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	// ErrInvalidInput is returned for input that is not text at all
	ErrInvalidInput = errors.New("invalid input")

	// ErrLengthConstraint is the sentinel every LengthError unwraps to
	ErrLengthConstraint = errors.New("length constraint violated")
)

const (
	BoundMin = "min"
	BoundMax = "max"
)

// LengthError names the bound a text violated.
type LengthError struct {
	Bound  string // BoundMin or BoundMax
	Limit  int
	Actual int
}

func (e *LengthError) Error() string {
	if e.Bound == BoundMin {
		return fmt.Sprintf("text too short: %d characters, minimum is %d", e.Actual, e.Limit)
	}
	return fmt.Sprintf("text too long: %d characters, maximum is %d", e.Actual, e.Limit)
}

func (e *LengthError) Unwrap() error {
	return ErrLengthConstraint
}

// ValidateText enforces the configured length bounds, counted in runes.
func (c *Classifier) ValidateText(text string) error {
	if !utf8.ValidString(text) {
		return fmt.Errorf("%w: text is not valid UTF-8", ErrInvalidInput)
	}
	n := utf8.RuneCountInString(text)
	if c.cfg.MinLength > 0 && n < c.cfg.MinLength {
		return &LengthError{Bound: BoundMin, Limit: c.cfg.MinLength, Actual: n}
	}
	if c.cfg.MaxLength > 0 && n > c.cfg.MaxLength {
		return &LengthError{Bound: BoundMax, Limit: c.cfg.MaxLength, Actual: n}
	}
	return nil
}
