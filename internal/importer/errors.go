package importer

import "fmt"

// InputError means the import file itself is unusable (malformed, oversized
// or structurally abusive). It is fatal to the whole migration.
type InputError struct {
	Message string
}

func (e *InputError) Error() string {
	return "import file rejected: " + e.Message
}

func inputErrorf(format string, args ...interface{}) *InputError {
	return &InputError{Message: fmt.Sprintf(format, args...)}
}

// ValidationError means a single player record failed validation. It is
// recovered locally: the record is skipped and counted, the file continues.
type ValidationError struct {
	Index   int
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("players[%d].%s: %s", e.Index, e.Field, e.Message)
}

func validationErrorf(index int, field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Index: index, Field: field, Message: fmt.Sprintf(format, args...)}
}

// TransportError means the tenant store became unreachable mid-batch. It is
// fatal to the migration; chunks already written stay written.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("store unreachable during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
