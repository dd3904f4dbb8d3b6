package shapelet

import (
	"errors"
	"fmt"
)

var (
	// ErrDomain is matched by every *DomainError
	ErrDomain = errors.New("shapelet: value outside valid domain")

	// ErrDimensionMismatch is matched by every *DimensionMismatchError
	ErrDimensionMismatch = errors.New("shapelet: dimension mismatch")
)

// DomainError reports an invalid scale, order or dimension
type DomainError struct {
	Param string
	Value float64
	Want  string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("shapelet: invalid %s %v (must be %s)", e.Param, e.Value, e.Want)
}

// Is lets errors.Is(err, ErrDomain) match
func (e *DomainError) Is(target error) bool {
	return target == ErrDomain
}

// DimensionMismatchError reports operands whose sizes disagree
type DimensionMismatchError struct {
	What     string
	Got      int
	Expected int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("shapelet: %s has size %d, expected %d", e.What, e.Got, e.Expected)
}

// Is lets errors.Is(err, ErrDimensionMismatch) match
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}
