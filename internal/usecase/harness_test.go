package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"dispatch-bot/internal/domain"
	"dispatch-bot/internal/integrations/mailer"
	"dispatch-bot/internal/integrations/objectstore"
	"dispatch-bot/internal/ledger"
	"dispatch-bot/internal/ledger/ledgertest"
	"dispatch-bot/internal/render"
	"dispatch-bot/internal/session"
)

const testSession = "chat-1"

type fakeBlobs struct {
	mu        sync.Mutex
	uploads   map[string][]byte
	folders   map[string]string
	files     map[string][]byte
	uploadErr error
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{uploads: map[string][]byte{}, folders: map[string]string{}, files: map[string][]byte{}}
}

func (b *fakeBlobs) Upload(_ context.Context, name, folder string, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.uploadErr != nil {
		return "", b.uploadErr
	}
	link := "https://drive.test/" + strings.ReplaceAll(name, " ", "_")
	b.uploads[name] = data
	b.folders[name] = folder
	b.files[link] = data
	return link, nil
}

func (b *fakeBlobs) Download(_ context.Context, link string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.files[link]
	if !ok {
		return nil, fmt.Errorf("no file %s", link)
	}
	return data, nil
}

type fakeFiles map[string][]byte

func (f fakeFiles) DownloadFile(_ context.Context, id string) ([]byte, error) {
	data, ok := f[id]
	if !ok {
		return nil, errors.New("file not found")
	}
	return data, nil
}

type fakeMailer struct {
	sent []mailer.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg mailer.Message) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, msg)
	return fmt.Sprintf("msg-%d", len(m.sent)), nil
}

type fakeRouter struct {
	distances map[string]decimal.Decimal
	states    map[string]map[string]decimal.Decimal
	calls     []string
	block     chan struct{}
}

func (r *fakeRouter) Distance(_ context.Context, o, d string) (decimal.Decimal, error) {
	r.calls = append(r.calls, o+"|"+d)
	m, ok := r.distances[o+"|"+d]
	if !ok {
		return decimal.Zero, errors.New("no route")
	}
	return m, nil
}

func (r *fakeRouter) StateMiles(_ context.Context, o, d string) (map[string]decimal.Decimal, error) {
	if r.block != nil {
		<-r.block
	}
	r.calls = append(r.calls, o+"|"+d)
	m, ok := r.states[o+"|"+d]
	if !ok {
		return nil, errors.New("no route")
	}
	return m, nil
}

type fakeCounters struct {
	values   map[string]int
	advanced []string
}

func (c *fakeCounters) Counter(_ context.Context, name string) (int, error) {
	return c.values[name], nil
}

func (c *fakeCounters) AdvanceCounter(_ context.Context, name string) (int, error) {
	c.values[name]++
	c.advanced = append(c.advanced, name)
	return c.values[name], nil
}

type fakeCustomers struct {
	records map[string]domain.Customer
}

func (c *fakeCustomers) Customer(_ context.Context, broker string) (*domain.Customer, error) {
	rec, ok := c.records[strings.ToLower(broker)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (c *fakeCustomers) SaveCustomer(_ context.Context, rec domain.Customer) error {
	c.records[strings.ToLower(rec.Broker)] = rec
	return nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testRoster() *domain.Roster {
	return &domain.Roster{
		Company:             domain.Company{Name: "Acme Freight LLC", MCNumber: "123456"},
		Dispatcher:          "Dispatch: Jane Roe",
		DefaultOrigin:       "Chicago, IL",
		EmailLookupEntities: []string{"CompanyA"},
		Entities: []domain.Entity{
			{
				Name:              "CompanyA",
				Classification:    domain.CompanyDriver,
				StartRow:          3,
				CommissionPercent: dec("20"),
				Signature:         "John Smith",
			},
			{
				Name:              "OwnerOpX",
				Classification:    domain.OwnerOperator,
				Payee:             "X Trucking Inc",
				StartRow:          3,
				CommissionPercent: dec("10"),
				WeeklyInsurance:   dec("200"),
				WeeklyTrailer:     dec("100"),
			},
		},
	}
}

type harness struct {
	t         *testing.T
	engine    *Engine
	sheet     *ledgertest.Sheet
	store     *session.Manager
	objects   *objectstore.Memory
	blobs     *fakeBlobs
	files     fakeFiles
	mail      *fakeMailer
	router    *fakeRouter
	counters  *fakeCounters
	customers *fakeCustomers
	roster    *domain.Roster
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		sheet:     ledgertest.New(),
		objects:   objectstore.NewMemory(),
		blobs:     newFakeBlobs(),
		files:     fakeFiles{},
		mail:      &fakeMailer{},
		router:    &fakeRouter{distances: map[string]decimal.Decimal{}, states: map[string]map[string]decimal.Decimal{}},
		counters:  &fakeCounters{values: map[string]int{}},
		customers: &fakeCustomers{records: map[string]domain.Customer{}},
		roster:    testRoster(),
	}
	var err error
	h.store, err = session.NewManager(session.NewMemory(), h.objects)
	require.NoError(t, err)
	gw, err := ledger.NewGateway(h.sheet, h.roster)
	require.NoError(t, err)

	now := time.Date(2023, 7, 15, 12, 0, 0, 0, time.UTC)
	opts = append([]Option{
		WithFolders(Folders{Statements: "statements", Documents: "documents"}),
		WithClock(func() time.Time { return now }),
	}, opts...)
	h.engine, err = NewEngine(Deps{
		Store:       h.store,
		Roster:      h.roster,
		Ledger:      gw,
		Blobs:       h.blobs,
		Attachments: h.objects,
		Files:       h.files,
		Mailer:      h.mail,
		Router:      h.router,
		Counters:    h.counters,
		Customers:   h.customers,
	}, opts...)
	require.NoError(t, err)
	return h
}

func (h *harness) send(in domain.Input) []domain.Reply {
	return h.engine.Handle(context.Background(), Event{SessionID: testSession, UserID: "42", Input: in})
}

func (h *harness) text(s string) []domain.Reply {
	return h.send(domain.Input{Kind: domain.InputText, Text: s})
}

func (h *harness) choose(s string) []domain.Reply {
	return h.send(domain.Input{Kind: domain.InputChoice, Text: s})
}

func (h *harness) command(name string) []domain.Reply {
	return h.send(domain.Input{Kind: domain.InputCommand, Text: "/" + name})
}

// upload registers data under a fresh file id and sends it as a document.
func (h *harness) upload(name string, data []byte) []domain.Reply {
	id := fmt.Sprintf("file-%d", len(h.files)+1)
	h.files[id] = data
	return h.send(domain.Input{Kind: domain.InputDocument, Document: &domain.Document{FileID: id, Name: name}})
}

func (h *harness) session() *domain.Session {
	h.t.Helper()
	s, err := h.store.Get(context.Background(), testSession)
	require.NoError(h.t, err)
	return s
}

func (h *harness) state() domain.State {
	s := h.session()
	if s == nil {
		return ""
	}
	return s.State
}

func lastText(replies []domain.Reply) string {
	if len(replies) == 0 {
		return ""
	}
	return replies[len(replies)-1].Text
}

func allText(replies []domain.Reply) string {
	parts := make([]string, 0, len(replies))
	for _, r := range replies {
		parts = append(parts, r.Text)
	}
	return strings.Join(parts, "\n")
}

// samplePDF renders a one-page document usable wherever a PDF upload is expected.
func samplePDF(t *testing.T) []byte {
	t.Helper()
	doc, err := render.Invoice(domain.Invoice{
		Company:    domain.Company{Name: "Broker Co"},
		Number:     "RC",
		BalanceDue: dec("1"),
	})
	require.NoError(t, err)
	return doc
}
