package cuke

import (
	"github.com/pkg/errors"
)

// ErrContractViolation is wrapped by the panic value raised when a producer
// references a Feature or Rule whose Started event was never delivered.
//
// Such a stream cannot be ordered correctly, so writers abort instead of
// guessing.
var ErrContractViolation = errors.New("cuke: event stream contract violation")

func violation(format string, args ...any) error {
	return errors.Wrapf(ErrContractViolation, format, args...)
}

func featureName(f *Feature) string {
	if f == nil {
		return "<nil>"
	}
	return f.Name
}

func ruleName(r *Rule) string {
	if r == nil {
		return "<nil>"
	}
	return r.Name
}
