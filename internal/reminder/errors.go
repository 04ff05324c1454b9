package reminder

import (
	"errors"
	"fmt"
)

// Kind classifies a scheduling failure.
type Kind int

const (
	KindPermission Kind = iota + 1
	KindFetch
	KindList
	KindCancel
	KindSubmit
)

func (k Kind) String() string {
	switch k {
	case KindPermission:
		return "permission"
	case KindFetch:
		return "fetch"
	case KindList:
		return "list"
	case KindCancel:
		return "cancel"
	case KindSubmit:
		return "submit"
	default:
		return "unknown"
	}
}

// SchedulingError is returned by scheduler operations.
type SchedulingError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *SchedulingError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("reminder %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("reminder %s %s: %v", e.Kind, e.Op, e.Err)
}

func (e *SchedulingError) Unwrap() error { return e.Err }

// IsKind reports whether err is a SchedulingError of kind k.
func IsKind(err error, k Kind) bool {
	var se *SchedulingError
	return errors.As(err, &se) && se.Kind == k
}
