package worker

import (
	"context"
	"errors"
)

// RetryDecision tells the worker how to settle a failed message. Retry or
// Nack redelivers it; the zero decision acks and drops it.
type RetryDecision struct {
	Retry bool
	Nack  bool
}

// RetryPolicy settles messages whose decode or handler failed. evt is nil
// when the message could not be decoded.
type RetryPolicy interface {
	OnError(ctx context.Context, evt *Event, err error) RetryDecision
}

// NoRetry nacks every failure, including ones redelivery cannot fix.
type NoRetry struct{}

func (NoRetry) OnError(ctx context.Context, evt *Event, err error) RetryDecision {
	return RetryDecision{Nack: true}
}

// DropPermanent is the default policy: permanent failures are acked and
// dropped, everything else is nacked for redelivery.
type DropPermanent struct{}

func (DropPermanent) OnError(_ context.Context, _ *Event, err error) RetryDecision {
	if IsPermanent(err) {
		return RetryDecision{}
	}
	return RetryDecision{Nack: true}
}

// PermanentError marks a failure that will repeat on every delivery.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so DropPermanent and RunRiver give up on the message.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with Permanent or is
// ErrNoPipeline.
func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm) || errors.Is(err, ErrNoPipeline)
}
