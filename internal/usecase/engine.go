package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"dispatch-bot/internal/domain"
	"dispatch-bot/internal/session"
)

const (
	msgNotAuthorized = "You are not authorized to use this bot."
	msgCancelled     = "Operation cancelled."
	msgNothingActive = "No operation in progress."
	msgCrashed       = "Something went wrong and the operation was stopped. Start again from /start."
	maxUploadBytes   = 20 << 20
)

// Event is one user turn addressed to a session.
type Event struct {
	SessionID string
	UserID    string
	Input     domain.Input
}

// Deps are the collaborators every workflow may call.
type Deps struct {
	Store       session.Store
	Roster      *domain.Roster
	Ledger      Ledger
	Blobs       BlobStore
	Attachments AttachmentStore
	Files       FileFetcher
	Mailer      Mailer
	Router      Router
	Counters    Counters
	Customers   Customers
}

// Folders are blob store destinations.
type Folders struct {
	Statements string
	Documents  string
}

// Engine drives the workflow state graphs one turn at a time.
type Engine struct {
	Deps
	folders   Folders
	authorize func(userID string) bool
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time
	graphs    map[domain.WorkflowKind]*graph
	order     []domain.WorkflowKind
}

type Option func(*Engine)

func WithFolders(f Folders) Option {
	return func(e *Engine) {
		e.folders = f
	}
}

// WithAuthorizer restricts who may drive workflows.
func WithAuthorizer(fn func(userID string) bool) Option {
	return func(e *Engine) {
		e.authorize = fn
	}
}

// WithNotifier delivers progress replies while a turn is still running.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEngine(deps Deps, opts ...Option) (*Engine, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("usecase: session store must not be nil")
	case deps.Roster == nil:
		return nil, errors.New("usecase: roster must not be nil")
	case deps.Ledger == nil:
		return nil, errors.New("usecase: ledger must not be nil")
	case deps.Blobs == nil:
		return nil, errors.New("usecase: blob store must not be nil")
	case deps.Attachments == nil:
		return nil, errors.New("usecase: attachment store must not be nil")
	case deps.Files == nil:
		return nil, errors.New("usecase: file fetcher must not be nil")
	case deps.Mailer == nil:
		return nil, errors.New("usecase: mailer must not be nil")
	case deps.Router == nil:
		return nil, errors.New("usecase: router must not be nil")
	case deps.Counters == nil:
		return nil, errors.New("usecase: counters must not be nil")
	case deps.Customers == nil:
		return nil, errors.New("usecase: customers must not be nil")
	}
	e := &Engine{
		Deps:   deps,
		logger: slog.Default(),
		now:    time.Now,
		graphs: map[domain.WorkflowKind]*graph{},
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, g := range []*graph{salaryGraph(), invoiceGraph(), rateConGraph(), iftaGraph()} {
		e.graphs[g.kind] = g
		e.order = append(e.order, g.kind)
	}
	return e, nil
}

// Handle applies one event and returns the replies to deliver, in order. Errors
// never escape: they end the affected session with a message naming the failure.
func (e *Engine) Handle(ctx context.Context, ev Event) (replies []domain.Reply) {
	logger := e.logger.With(
		slog.String("session", ev.SessionID),
		slog.String("correlation_id", CorrelationID(ctx)),
	)
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "turn panicked", "panic", r, "stack", string(debug.Stack()))
			if err := e.Store.Destroy(ctx, ev.SessionID); err != nil {
				logger.WarnContext(ctx, "destroy after panic failed", "err", err)
			}
			replies = []domain.Reply{domain.Text(msgCrashed)}
		}
	}()

	if e.authorize != nil && !e.authorize(ev.UserID) {
		logger.WarnContext(ctx, "unauthorized user", "user", ev.UserID)
		return []domain.Reply{domain.Text(msgNotAuthorized)}
	}

	switch ev.Input.Command() {
	case "cancel":
		return e.cancel(ctx, logger, ev.SessionID)
	case "start", "menu":
		return []domain.Reply{e.menu("What would you like to do?")}
	case "help":
		return []domain.Reply{e.help()}
	case "restart":
		s, err := e.Store.Get(ctx, ev.SessionID)
		if err != nil {
			return []domain.Reply{e.failure(ctx, logger, ev.SessionID, classify("Could not load your session", err))}
		}
		if s == nil {
			return []domain.Reply{e.menu(msgNothingActive)}
		}
		return e.begin(ctx, logger, ev.SessionID, s.Kind)
	}
	if kind, ok := e.entry(ev.Input); ok {
		return e.begin(ctx, logger, ev.SessionID, kind)
	}

	s, err := e.Store.Get(ctx, ev.SessionID)
	if err != nil {
		return []domain.Reply{e.failure(ctx, logger, ev.SessionID, classify("Could not load your session", err))}
	}
	if s == nil {
		return []domain.Reply{e.menu(msgNothingActive)}
	}
	return e.advance(ctx, logger, s, ev.Input)
}

func (e *Engine) entry(in domain.Input) (domain.WorkflowKind, bool) {
	var name string
	switch in.Kind {
	case domain.InputCommand:
		name = in.Command()
	case domain.InputChoice:
		var ok bool
		if name, ok = strings.CutPrefix(in.Text, "wf:"); !ok {
			return "", false
		}
	default:
		return "", false
	}
	for _, g := range e.graphs {
		if name == string(g.kind) || name == g.command {
			return g.kind, true
		}
	}
	return "", false
}

func (e *Engine) cancel(ctx context.Context, logger *slog.Logger, id string) []domain.Reply {
	s, err := e.Store.Get(ctx, id)
	if err != nil {
		logger.WarnContext(ctx, "cancel lookup failed", "err", err)
	}
	if s == nil && err == nil {
		return []domain.Reply{domain.Text(msgNothingActive)}
	}
	if err := e.Store.Destroy(ctx, id); err != nil {
		logger.ErrorContext(ctx, "cancel failed", "err", err)
		return []domain.Reply{domain.Text("Could not cancel: " + rootCause(err).Error())}
	}
	if s != nil {
		logger.InfoContext(ctx, "session cancelled", "workflow", s.Kind, "state", s.State)
	}
	return []domain.Reply{domain.Text(msgCancelled)}
}

func (e *Engine) begin(ctx context.Context, logger *slog.Logger, id string, kind domain.WorkflowKind) []domain.Reply {
	g := e.graphs[kind]
	s, err := e.Store.Create(ctx, id, kind, g.initial)
	if err != nil {
		var dup *session.DuplicateSessionError
		if errors.As(err, &dup) {
			logger.InfoContext(ctx, "workflow already active", "active", dup.Active, "wanted", dup.Wanted)
			return []domain.Reply{domain.Text(fmt.Sprintf(
				"You have an unfinished %s operation. Send /cancel to drop it first.", e.graphs[dup.Active].title))}
		}
		return []domain.Reply{e.failure(ctx, logger, id, classify("Could not start "+g.title, err))}
	}
	logger.InfoContext(ctx, "workflow started", "workflow", kind)
	t := e.newTurn(ctx, logger, s, domain.Input{})
	return e.finish(t, e.enter(t, g.initial))
}

func (e *Engine) advance(ctx context.Context, logger *slog.Logger, s *domain.Session, in domain.Input) []domain.Reply {
	g, ok := e.graphs[s.Kind]
	if !ok {
		return []domain.Reply{e.failure(ctx, logger, s.ID, newError(ErrorInternal, "Unknown operation "+string(s.Kind), nil))}
	}
	n, ok := g.nodes[s.State]
	if !ok || n.input == nil {
		return []domain.Reply{e.failure(ctx, logger, s.ID, newError(ErrorInternal, "Operation is in an unexpected step "+string(s.State), nil))}
	}
	t := e.newTurn(ctx, logger, s, in)
	next, err := n.input(t)
	switch {
	case err != nil:
	case next == s.State:
		// Repeated collection (uploads, e-mail lists) acknowledges on its own.
	default:
		err = e.enter(t, next)
	}
	return e.finish(t, err)
}

// enter moves the turn's session into state, sending its prompt and running
// automatic steps until a state that waits for input (or a terminal one).
func (e *Engine) enter(t *turn, state domain.State) error {
	g := e.graphs[t.s.Kind]
	for {
		t.s.State = state
		if state.IsTerminal() {
			return nil
		}
		n, ok := g.nodes[state]
		if !ok {
			return newError(ErrorInternal, "Operation reached an unknown step "+string(state), nil)
		}
		if n.prompt != nil {
			r, err := n.prompt(t)
			if err != nil {
				return err
			}
			t.say(r)
		}
		if n.run == nil {
			return nil
		}
		if err := t.checkpoint(); err != nil {
			return err
		}
		next, err := n.run(t)
		if err != nil {
			return err
		}
		state = next
	}
}

func (e *Engine) finish(t *turn, err error) []domain.Reply {
	ctx, logger := t.ctx, t.logger.With(slog.String("workflow", string(t.s.Kind)), slog.String("state", string(t.s.State)))
	switch {
	case err == nil:
	case errors.Is(err, errAborted):
		t.discard()
		logger.InfoContext(ctx, "turn aborted by cancel")
		return nil
	case recoverable(err):
		t.discard()
		logger.InfoContext(ctx, "input rejected", "reason", userMessage(err))
		return []domain.Reply{domain.Text(userMessage(err))}
	default:
		t.discard()
		return []domain.Reply{e.failure(ctx, logger, t.s.ID, err)}
	}

	if t.s.State.IsTerminal() {
		logger.InfoContext(ctx, "workflow finished")
		if err := e.Store.Destroy(ctx, t.s.ID); err != nil {
			logger.WarnContext(ctx, "destroy finished session failed", "err", err)
		}
		// Destroy only sees keys saved by earlier turns.
		t.discard()
		return t.replies
	}

	saved := t.s
	err = e.Store.Update(ctx, saved.ID, func(s *domain.Session) {
		s.State = saved.State
		s.Fields = saved.Fields
		s.Attachments = saved.Attachments
	})
	if errors.Is(err, session.ErrNotFound) {
		t.discard()
		logger.InfoContext(ctx, "session ended during turn")
		return nil
	}
	if err != nil {
		t.discard()
		return []domain.Reply{e.failure(ctx, logger, saved.ID, classify("Could not save your progress", err))}
	}
	logger.DebugContext(ctx, "turn applied")
	return t.replies
}

// failure ends the session and builds the message naming what failed.
func (e *Engine) failure(ctx context.Context, logger *slog.Logger, id string, err error) domain.Reply {
	code := ErrorInternal
	var ue *Error
	if errors.As(err, &ue) {
		code = ue.Code
	}
	logger.ErrorContext(ctx, "workflow failed", "code", code, "err", err)
	if derr := e.Store.Destroy(ctx, id); derr != nil {
		logger.WarnContext(ctx, "destroy failed session failed", "err", derr)
	}
	return domain.Text("Operation failed: " + userMessage(err) + "\nStart again from /start.")
}

func (e *Engine) menu(text string) domain.Reply {
	r := domain.Reply{Text: text}
	for _, kind := range e.order {
		g := e.graphs[kind]
		r.Choices = append(r.Choices, []domain.Choice{{Label: g.title, Data: "wf:" + string(kind)}})
	}
	return r
}

func (e *Engine) help() domain.Reply {
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, kind := range e.order {
		g := e.graphs[kind]
		fmt.Fprintf(&b, "/%s - %s\n", g.command, g.title)
	}
	b.WriteString("/restart - start the current operation over\n")
	b.WriteString("/cancel - drop the current operation\n")
	b.WriteString("/menu - show the menu")
	return domain.Text(b.String())
}
