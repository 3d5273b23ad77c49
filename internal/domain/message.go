package domain

// InputKind distinguishes the shapes a chat event can take.
type InputKind string

const (
	InputText     InputKind = "text"
	InputCommand  InputKind = "command"
	InputChoice   InputKind = "choice"
	InputDocument InputKind = "document"
)

// Document is an uploaded file as delivered by the chat transport.
// Data is filled lazily by the engine when a workflow needs the bytes.
type Document struct {
	FileID   string
	Name     string
	MimeType string
	Data     []byte
}

// Input is one raw user turn.
type Input struct {
	Kind     InputKind
	Text     string
	Document *Document
}

// Command returns the command name without the leading slash, or "" for non-commands.
func (in Input) Command() string {
	if in.Kind != InputCommand || len(in.Text) < 2 {
		return ""
	}
	return in.Text[1:]
}

// Choice is an inline option offered with a reply. URL choices open a link instead of
// sending Data back.
type Choice struct {
	Label string
	Data  string
	URL   string
}

// File is an outbound attachment.
type File struct {
	Name string
	Data []byte
}

// Reply is one outbound message.
type Reply struct {
	Text     string
	Choices  [][]Choice
	File     *File
	Markdown bool
}

// Text builds a plain reply.
func Text(s string) Reply {
	return Reply{Text: s}
}
