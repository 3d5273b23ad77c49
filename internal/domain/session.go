package domain

import (
	"maps"
	"slices"
	"time"
)

// WorkflowKind names one of the fixed conversation graphs.
type WorkflowKind string

const (
	WorkflowSalary           WorkflowKind = "salary"
	WorkflowInvoice          WorkflowKind = "invoice"
	WorkflowRateConfirmation WorkflowKind = "rate_confirmation"
	WorkflowIfta             WorkflowKind = "ifta"
)

// State is a node of a workflow graph. Values are unique per workflow kind.
type State string

// Terminal states shared by every workflow.
const (
	StateDone      State = "done"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// IsTerminal reports whether no further input is accepted in s.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

// Attachment references a temporary blob collected during a conversation.
type Attachment struct {
	Key      string
	Name     string
	MimeType string
}

// Session is the per-user scratch state of one active conversation.
type Session struct {
	ID             string
	Kind           WorkflowKind
	State          State
	Fields         map[string]string
	Attachments    []Attachment
	CreatedAt      time.Time
	LastActivityAt time.Time
	TTL            int64
}

// NewSession returns a session positioned at the given initial state.
func NewSession(id string, kind WorkflowKind, initial State, now time.Time) *Session {
	return &Session{
		ID:             id,
		Kind:           kind,
		State:          initial,
		Fields:         map[string]string{},
		CreatedAt:      now.UTC(),
		LastActivityAt: now.UTC(),
	}
}

// Clone returns a deep copy so a turn can be evaluated without touching stored state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Fields = maps.Clone(s.Fields)
	if out.Fields == nil {
		out.Fields = map[string]string{}
	}
	out.Attachments = slices.Clone(s.Attachments)
	return &out
}

// Field returns the accumulated answer for name, or "" when unset.
func (s *Session) Field(name string) string {
	if s == nil || s.Fields == nil {
		return ""
	}
	return s.Fields[name]
}

// AttachmentKeys lists the blob keys held by the session in upload order.
func (s *Session) AttachmentKeys() []string {
	keys := make([]string, 0, len(s.Attachments))
	for _, a := range s.Attachments {
		keys = append(keys, a.Key)
	}
	return keys
}
