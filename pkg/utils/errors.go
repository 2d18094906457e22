package utils

import "fmt"

// XError attaches a short reason to a lower level failure while keeping it
// reachable through errors.Is and errors.As.
type XError struct {
	Reason string
	Meta   error
}

func (xe XError) Error() string {
	if xe.Meta == nil {
		return xe.Reason
	}
	return fmt.Sprintf("%s: %v", xe.Reason, xe.Meta)
}

func (xe XError) Unwrap() error { return xe.Meta }

func (xe XError) ToError() error {
	return xe
}
