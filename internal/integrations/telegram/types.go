package telegram

import (
	"strconv"
	"strings"

	"dispatch-bot/internal/domain"
)

// Update is one Bot API update. Only the fields the bot reacts to are decoded.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type Message struct {
	MessageID int64       `json:"message_id"`
	From      *User       `json:"from,omitempty"`
	Chat      Chat        `json:"chat"`
	Text      string      `json:"text,omitempty"`
	Caption   string      `json:"caption,omitempty"`
	Document  *FileRef    `json:"document,omitempty"`
	Photo     []PhotoSize `json:"photo,omitempty"`
}

type FileRef struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

type PhotoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int    `json:"file_size,omitempty"`
}

type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

// Event is an update reduced to what the conversation engine consumes.
type Event struct {
	ChatID     int64
	UserID     string
	Input      domain.Input
	CallbackID string
}

// SessionID keys conversations by chat.
func (e Event) SessionID() string {
	return strconv.FormatInt(e.ChatID, 10)
}

// Event converts an update. ok is false for update kinds the bot ignores.
func (u Update) Event() (Event, bool) {
	switch {
	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		if cq.Message == nil {
			return Event{}, false
		}
		return Event{
			ChatID:     cq.Message.Chat.ID,
			UserID:     strconv.FormatInt(cq.From.ID, 10),
			Input:      domain.Input{Kind: domain.InputChoice, Text: cq.Data},
			CallbackID: cq.ID,
		}, true
	case u.Message != nil:
		m := u.Message
		ev := Event{ChatID: m.Chat.ID}
		if m.From != nil {
			ev.UserID = strconv.FormatInt(m.From.ID, 10)
		}
		switch {
		case m.Document != nil:
			ev.Input = domain.Input{Kind: domain.InputDocument, Text: m.Caption, Document: &domain.Document{
				FileID: m.Document.FileID, Name: m.Document.FileName, MimeType: m.Document.MimeType,
			}}
		case len(m.Photo) > 0:
			// Photos arrive in ascending sizes; keep the largest.
			p := m.Photo[len(m.Photo)-1]
			ev.Input = domain.Input{Kind: domain.InputDocument, Text: m.Caption, Document: &domain.Document{
				FileID: p.FileID, Name: p.FileID + ".jpg", MimeType: "image/jpeg",
			}}
		case strings.HasPrefix(strings.TrimSpace(m.Text), "/"):
			cmd := strings.Fields(strings.TrimSpace(m.Text))[0]
			// "/cancel@bot" addresses a bot in group chats.
			cmd, _, _ = strings.Cut(cmd, "@")
			ev.Input = domain.Input{Kind: domain.InputCommand, Text: strings.ToLower(cmd)}
		case strings.TrimSpace(m.Text) != "":
			ev.Input = domain.Input{Kind: domain.InputText, Text: strings.TrimSpace(m.Text)}
		default:
			return Event{}, false
		}
		return ev, true
	}
	return Event{}, false
}

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

type replyMarkup struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

func keyboard(choices [][]domain.Choice) *replyMarkup {
	if len(choices) == 0 {
		return nil
	}
	rows := make([][]inlineButton, 0, len(choices))
	for _, row := range choices {
		buttons := make([]inlineButton, 0, len(row))
		for _, c := range row {
			b := inlineButton{Text: c.Label, URL: c.URL}
			if c.URL == "" {
				b.CallbackData = c.Data
			}
			buttons = append(buttons, b)
		}
		rows = append(rows, buttons)
	}
	return &replyMarkup{InlineKeyboard: rows}
}

type apiResponse[T any] struct {
	OK          bool   `json:"ok"`
	Result      T      `json:"result"`
	Description string `json:"description,omitempty"`
	ErrorCode   int    `json:"error_code,omitempty"`
}

type fileInfo struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path"`
}
