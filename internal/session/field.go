package session

type fieldState uint8

const (
	stateUnloaded fieldState = iota
	stateAbsent
	statePresent
)

// Field is a value supplied by the sync layer. It is Unloaded until the
// source has answered, then either Absent or Present.
type Field[T any] struct {
	state fieldState
	value T
}

// Unloaded returns a field whose source has not answered yet.
func Unloaded[T any]() Field[T] { return Field[T]{} }

// Absent returns a field whose source answered with nothing.
func Absent[T any]() Field[T] { return Field[T]{state: stateAbsent} }

// Present returns a loaded field holding v.
func Present[T any](v T) Field[T] { return Field[T]{state: statePresent, value: v} }

// Loaded reports whether the source has answered, with or without a value.
func (f Field[T]) Loaded() bool { return f.state != stateUnloaded }

// Present reports whether the field holds a value.
func (f Field[T]) Present() bool { return f.state == statePresent }

// Get returns the value and whether it is present.
func (f Field[T]) Get() (T, bool) { return f.value, f.state == statePresent }

func (f Field[T]) String() string {
	switch f.state {
	case stateAbsent:
		return "absent"
	case statePresent:
		return "present"
	default:
		return "unloaded"
	}
}
