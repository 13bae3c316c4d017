package entity

import "errors"

// FaultKind is the closed set of failure classes the queue layer bases its
// requeue decision on. Anything unclassified is Transient.
type FaultKind int

const (
	FaultTransient FaultKind = iota
	FaultDependencyMissing
	FaultInputNotFound
	FaultDecode
)

func (k FaultKind) String() string {
	switch k {
	case FaultDependencyMissing:
		return "dependency_missing"
	case FaultInputNotFound:
		return "input_not_found"
	case FaultDecode:
		return "decode_error"
	default:
		return "transient"
	}
}

// Permanent reports whether a fault of this kind cannot be fixed by
// redelivering the message.
func (k FaultKind) Permanent() bool {
	switch k {
	case FaultDependencyMissing, FaultInputNotFound, FaultDecode:
		return true
	default:
		return false
	}
}

// Fault tags an underlying error with its kind.
type Fault struct {
	Kind FaultKind
	Err  error
}

func NewFault(kind FaultKind, err error) *Fault {
	return &Fault{Kind: kind, Err: err}
}

func (f *Fault) Error() string {
	return f.Kind.String() + ": " + f.Err.Error()
}

func (f *Fault) Unwrap() error { return f.Err }

// FaultKindOf classifies any error; errors that are not tagged Faults are
// treated as transient.
func FaultKindOf(err error) FaultKind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return FaultTransient
}
