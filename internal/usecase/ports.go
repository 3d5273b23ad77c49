package usecase

import (
	"context"

	"github.com/shopspring/decimal"

	"dispatch-bot/internal/domain"
	"dispatch-bot/internal/integrations/mailer"
	"dispatch-bot/internal/ledger"
)

// Ledger is the subset of *ledger.Gateway the workflows use.
type Ledger interface {
	ReadRows(ctx context.Context, entity string, from, to int) ([]domain.LedgerRow, error)
	ReadRow(ctx context.Context, entity string, row int) (domain.LedgerRow, error)
	WriteCell(ctx context.Context, entity string, row int, column, value string) error
	Highlight(ctx context.Context, entity string, row int) error
	FindAppendRow(ctx context.Context, entity, column string, refresh bool) (int, error)
	NoteAppended(ctx context.Context, entity, column string, row int)
	FindPeriodEnd(ctx context.Context, entity string, startRow int) (int, error)
	LastMarker(ctx context.Context, entity, column string, upTo int, match func(string) bool) (string, error)
	BatchColumns(ctx context.Context, pairs []ledger.ColumnPair) ([][][2]string, error)
}

// BlobStore keeps finished documents and hands out share links.
type BlobStore interface {
	Upload(ctx context.Context, name, folder string, data []byte) (string, error)
	Download(ctx context.Context, linkOrID string) ([]byte, error)
}

// AttachmentStore holds uploads collected mid-conversation.
type AttachmentStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// FileFetcher downloads a file the user sent through the chat transport.
type FileFetcher interface {
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
}

type Mailer interface {
	Send(ctx context.Context, msg mailer.Message) (string, error)
}

// Router looks up driving distances. Failures are expected and degrade to zero.
type Router interface {
	Distance(ctx context.Context, origin, destination string) (decimal.Decimal, error)
	StateMiles(ctx context.Context, origin, destination string) (map[string]decimal.Decimal, error)
}

// Counters are running per-name integers, e.g. trailer installments.
type Counters interface {
	Counter(ctx context.Context, name string) (int, error)
	AdvanceCounter(ctx context.Context, name string) (int, error)
}

// Customers stores broker billing records.
type Customers interface {
	Customer(ctx context.Context, broker string) (*domain.Customer, error)
	SaveCustomer(ctx context.Context, c domain.Customer) error
}

// Notifier pushes a reply to a session before the turn finishes, used for
// progress on long computations.
type Notifier interface {
	Notify(ctx context.Context, sessionID string, r domain.Reply) error
}
