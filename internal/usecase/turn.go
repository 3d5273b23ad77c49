package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"dispatch-bot/internal/domain"
)

// node is one state of a workflow graph. A state either waits for input or, when
// run is set, executes as soon as it is entered.
type node struct {
	prompt func(t *turn) (domain.Reply, error)
	input  func(t *turn) (domain.State, error)
	run    func(t *turn) (domain.State, error)
}

type graph struct {
	kind    domain.WorkflowKind
	title   string
	command string
	initial domain.State
	nodes   map[domain.State]node
}

// turn is the working copy of a session while one input is applied. Nothing it
// holds is persisted unless the turn succeeds.
type turn struct {
	ctx     context.Context
	e       *Engine
	logger  *slog.Logger
	s       *domain.Session
	in      domain.Input
	replies []domain.Reply
	added   []string
}

func (e *Engine) newTurn(ctx context.Context, logger *slog.Logger, s *domain.Session, in domain.Input) *turn {
	return &turn{ctx: ctx, e: e, logger: logger, s: s.Clone(), in: in}
}

func (t *turn) say(r domain.Reply) {
	t.replies = append(t.replies, r)
}

func (t *turn) sayf(format string, args ...any) {
	t.say(domain.Text(fmt.Sprintf(format, args...)))
}

// progress reaches the user immediately when a notifier is configured.
func (t *turn) progress(r domain.Reply) {
	if t.e.notifier == nil {
		t.say(r)
		return
	}
	if err := t.e.notifier.Notify(t.ctx, t.s.ID, r); err != nil {
		t.logger.WarnContext(t.ctx, "progress notify failed", "err", err)
	}
}

func (t *turn) field(name string) string {
	return t.s.Field(name)
}

func (t *turn) set(name, value string) {
	t.s.Fields[name] = value
}

// text is the trimmed answer carried by a text or button input.
func (t *turn) text() string {
	if t.in.Kind == domain.InputText || t.in.Kind == domain.InputChoice {
		return strings.TrimSpace(t.in.Text)
	}
	return ""
}

func (t *turn) command(name string) bool {
	return t.in.Command() == name
}

// checkpoint stops the turn when a cancel arrived while it was running.
func (t *turn) checkpoint() error {
	if aborted(t.ctx) {
		return errAborted
	}
	return nil
}

func (t *turn) entity() (domain.Entity, error) {
	e, ok := t.e.Roster.Entity(t.field("entity"))
	if !ok {
		return domain.Entity{}, newError(ErrorInternal, fmt.Sprintf("Driver %q is no longer in the roster", t.field("entity")), nil)
	}
	return e, nil
}

// upload returns the bytes of the document carried by the input.
func (t *turn) upload(accept func(doc *domain.Document, data []byte) error) ([]byte, error) {
	doc := t.in.Document
	if t.in.Kind != domain.InputDocument || doc == nil {
		return nil, invalid("Please upload a file.")
	}
	if err := t.checkpoint(); err != nil {
		return nil, err
	}
	data, err := t.e.Files.DownloadFile(t.ctx, doc.FileID)
	if err != nil {
		return nil, classify("Could not download "+displayName(doc), err)
	}
	if len(data) > maxUploadBytes {
		return nil, invalid("%s is too large.", displayName(doc))
	}
	if accept != nil {
		if err := accept(doc, data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

func displayName(doc *domain.Document) string {
	if doc.Name != "" {
		return doc.Name
	}
	return "the file"
}

// keep stores data as a session attachment and returns its key.
func (t *turn) keep(name, mimeType string, data []byte) (string, error) {
	if err := t.checkpoint(); err != nil {
		return "", err
	}
	key := t.s.ID + "/" + newUUID()
	if err := t.e.Attachments.Put(t.ctx, key, data, mimeType); err != nil {
		return "", classify("Could not store "+name, err)
	}
	t.s.Attachments = append(t.s.Attachments, domain.Attachment{Key: key, Name: name, MimeType: mimeType})
	t.added = append(t.added, key)
	return key, nil
}

// replace overwrites an attachment already held by the session.
func (t *turn) replace(key, mimeType string, data []byte) error {
	if err := t.checkpoint(); err != nil {
		return err
	}
	if err := t.e.Attachments.Put(t.ctx, key, data, mimeType); err != nil {
		return classify("Could not store the updated document", err)
	}
	return nil
}

func (t *turn) attachment(key string) ([]byte, error) {
	if err := t.checkpoint(); err != nil {
		return nil, err
	}
	data, err := t.e.Attachments.Get(t.ctx, key)
	if err != nil {
		return nil, classify("Could not read a stored upload", err)
	}
	return data, nil
}

// discard deletes attachments stored by a turn that will not be persisted.
func (t *turn) discard() {
	for _, key := range t.added {
		if err := t.e.Attachments.Delete(t.ctx, key); err != nil {
			t.logger.WarnContext(t.ctx, "attachment cleanup failed", "key", key, "err", err)
		}
	}
	t.added = nil
}

// chooseEntity is the shared ChooseEntity state: one button per roster entity.
func chooseEntity(question string, filter func(domain.Entity) bool, next func(t *turn, e domain.Entity) (domain.State, error)) node {
	return node{
		prompt: func(t *turn) (domain.Reply, error) {
			r := domain.Reply{Text: question}
			var row []domain.Choice
			for _, e := range t.e.Roster.Entities {
				if filter != nil && !filter(e) {
					continue
				}
				row = append(row, domain.Choice{Label: e.Name, Data: e.Name})
				if len(row) == 2 {
					r.Choices = append(r.Choices, row)
					row = nil
				}
			}
			if len(row) > 0 {
				r.Choices = append(r.Choices, row)
			}
			return r, nil
		},
		input: func(t *turn) (domain.State, error) {
			name := t.text()
			e, ok := t.e.Roster.Entity(name)
			if !ok || (filter != nil && !filter(e)) {
				return "", invalid("%q is not a driver I know. Pick one of the buttons.", name)
			}
			t.set("entity", e.Name)
			return next(t, e)
		},
	}
}

// ask is a prompt with an optional row of fixed answers.
func ask(text string, answers ...string) func(*turn) (domain.Reply, error) {
	return func(*turn) (domain.Reply, error) {
		r := domain.Reply{Text: text}
		if len(answers) > 0 {
			row := make([]domain.Choice, 0, len(answers))
			for _, a := range answers {
				row = append(row, domain.Choice{Label: a, Data: strings.ToLower(a)})
			}
			r.Choices = [][]domain.Choice{row}
		}
		return r, nil
	}
}
