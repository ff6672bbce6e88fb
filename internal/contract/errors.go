package contract

import (
	"fmt"
	"strings"
)

// FieldError is one contract violation. Path is a JSON pointer; the
// document root is "/".
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// String formats the error as "path: message".
func (e FieldError) String() string {
	return e.Path + ": " + e.Message
}

// ValidationError reports every violation found in one document.
type ValidationError struct {
	Kind   Kind         `json:"kind"`
	Errors []FieldError `json:"errors"`
}

// maxListedErrors bounds how many violations Error() spells out.
const maxListedErrors = 5

func (e *ValidationError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s contract validation failed with %d error(s)", e.Kind, len(e.Errors))
	for i, fe := range e.Errors {
		if i == maxListedErrors {
			fmt.Fprintf(&sb, "; and %d more", len(e.Errors)-maxListedErrors)
			break
		}
		sb.WriteString("; ")
		sb.WriteString(fe.String())
	}
	return sb.String()
}

// Lines returns one "path: message" line per violation.
func (e *ValidationError) Lines() []string {
	out := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		out[i] = fe.String()
	}
	return out
}
