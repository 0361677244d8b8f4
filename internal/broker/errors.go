// Package broker holds what every broker adapter shares: error classification
// and the session keeper.
package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrTransient marks failures worth retrying: network, timeout, throttling, 5xx.
	ErrTransient = errors.New("transient broker error")
	// ErrTerminal marks failures that must not be retried: auth, invalid params, rejections.
	ErrTerminal = errors.New("terminal broker error")
)

type Kind int

const (
	KindTerminal Kind = iota
	KindTransient
)

func (k Kind) String() string {
	if k == KindTransient {
		return "transient"
	}
	return "terminal"
}

// Error is a classified broker failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Kind == KindTransient
	case ErrTerminal:
		return e.Kind == KindTerminal
	}
	return false
}

func Transient(op string, err error) error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

func Terminal(op string, err error) error {
	return &Error{Kind: KindTerminal, Op: op, Err: err}
}

// transienter is implemented by errors that know their own retryability, e.g. api.HTTPError.
type transienter interface {
	Transient() bool
}

// IsTransient classifies err. Unknown errors are terminal.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Kind == KindTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te transienter
	if errors.As(err, &te) {
		return te.Transient()
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe)
}
