package usecase

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

type ctxKey int

const (
	correlationKey ctxKey = iota
	abortKey
)

var newUUID = func() string {
	return uuid.NewString()
}

// WithCorrelationID tags ctx with the id logged on every line of a turn.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey, id)
}

// CorrelationID returns the id set by WithCorrelationID, or "".
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey).(string)
	return id
}

// WithAbort attaches a signal that stops a turn at its next external call.
// Calls already in flight are left to finish and their results are dropped.
func WithAbort(ctx context.Context, abort <-chan struct{}) context.Context {
	return context.WithValue(ctx, abortKey, abort)
}

var errAborted = errors.New("usecase: turn aborted")

func aborted(ctx context.Context) bool {
	ch, _ := ctx.Value(abortKey).(<-chan struct{})
	if ch == nil {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
