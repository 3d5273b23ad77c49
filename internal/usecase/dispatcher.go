package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"dispatch-bot/internal/domain"
)

// TurnHandler is implemented by *Engine.
type TurnHandler interface {
	Handle(ctx context.Context, ev Event) []domain.Reply
}

// DeliverFunc sends the replies of one finished turn.
type DeliverFunc func(ctx context.Context, sessionID string, replies []domain.Reply)

type pending struct {
	ctx context.Context
	ev  Event
}

type sessionQueue struct {
	events []pending
	abort  chan struct{}
}

// Dispatcher runs turns of one session strictly in arrival order while different
// sessions proceed concurrently. A /cancel drops queued input of its session and
// signals the turn in flight.
type Dispatcher struct {
	handler TurnHandler
	deliver DeliverFunc
	logger  *slog.Logger

	mu     sync.Mutex
	queues map[string]*sessionQueue
	wg     sync.WaitGroup
}

type DispatcherOption func(*Dispatcher)

func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func NewDispatcher(handler TurnHandler, deliver DeliverFunc, opts ...DispatcherOption) (*Dispatcher, error) {
	if handler == nil {
		return nil, errors.New("usecase: handler must not be nil")
	}
	if deliver == nil {
		return nil, errors.New("usecase: deliver must not be nil")
	}
	d := &Dispatcher{
		handler: handler,
		deliver: deliver,
		logger:  slog.Default(),
		queues:  map[string]*sessionQueue{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Submit queues ev behind earlier input of the same session. It never blocks on
// a running turn.
func (d *Dispatcher) Submit(ctx context.Context, ev Event) {
	if CorrelationID(ctx) == "" {
		ctx = WithCorrelationID(ctx, newUUID())
	}
	ctx = context.WithoutCancel(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	q, ok := d.queues[ev.SessionID]
	if !ok {
		q = &sessionQueue{}
		d.queues[ev.SessionID] = q
		d.wg.Add(1)
		go d.run(ev.SessionID, q)
	}
	if ev.Input.Command() == "cancel" {
		if len(q.events) > 0 {
			d.logger.InfoContext(ctx, "dropping queued input", "session", ev.SessionID, "count", len(q.events))
		}
		q.events = nil
		if q.abort != nil {
			close(q.abort)
			q.abort = nil
		}
	}
	q.events = append(q.events, pending{ctx: ctx, ev: ev})
}

// Wait blocks until every queued turn has been delivered.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(id string, q *sessionQueue) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		if len(q.events) == 0 {
			delete(d.queues, id)
			d.mu.Unlock()
			return
		}
		next := q.events[0]
		q.events = q.events[1:]
		abort := make(chan struct{})
		q.abort = abort
		d.mu.Unlock()

		replies := d.handler.Handle(WithAbort(next.ctx, abort), next.ev)

		d.mu.Lock()
		if q.abort == abort {
			q.abort = nil
		}
		d.mu.Unlock()

		if len(replies) > 0 {
			d.deliver(next.ctx, id, replies)
		}
	}
}
