package connectivity

import "fmt"

// ErrProcedureNotFound is returned when Call targets a name with no handler.
type ErrProcedureNotFound struct {
	Procedure string
}

func (e *ErrProcedureNotFound) Error() string {
	return fmt.Sprintf("connectivity: procedure not registered: %s", e.Procedure)
}

// ErrCallTimeout is returned when a procedure exceeds the Timeout middleware
// deadline.
type ErrCallTimeout struct {
	Procedure string
}

func (e *ErrCallTimeout) Error() string {
	return fmt.Sprintf("connectivity: call timeout: %s", e.Procedure)
}

// ErrPanic wraps a recovered panic value as an error.
type ErrPanic struct {
	Procedure string
	Value     any
}

func (e *ErrPanic) Error() string {
	return fmt.Sprintf("connectivity: procedure %s panicked: %v", e.Procedure, e.Value)
}
