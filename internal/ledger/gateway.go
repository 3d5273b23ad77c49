package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"dispatch-bot/internal/domain"
)

// Ledger column letters.
const (
	ColPickupDate      = "A"
	ColPickupTime      = "B"
	ColDeliveryDate    = "C"
	ColDeliveryTime    = "D"
	ColOrigin          = "E"
	ColDestination     = "F"
	ColBroker          = "G"
	ColLoadNumber      = "H"
	ColRateCon         = "I"
	ColGross           = "J"
	ColMiles           = "K"
	ColRatePerMile     = "L"
	ColNotes           = "M"
	ColPOD             = "N"
	ColLumperCarrier   = "O"
	ColLumperBroker    = "P"
	ColBrokerEmails    = "Q"
	ColInvoice         = "R"
	ColInvoiceNumber   = "S"
	ColAccountingEmail = "T"
	ColCommission      = "U"
	ColEmptyTime       = "V"
	ColStatement       = "X"
	ColInsurance       = "Y"
	ColDeductionAmount = "Z"
	ColDeductionLabel  = "AA"

	// LastColumn is the rightmost column a row read covers.
	LastColumn = ColDeductionLabel
)

const defaultScanChunk = 50

// Backend is the tabular store behind the gateway. Ranges are sheet-qualified A1
// strings. Trailing empty rows and cells may be omitted from results.
type Backend interface {
	GetValues(ctx context.Context, rng string) ([][]string, error)
	BatchGetValues(ctx context.Context, ranges []string) ([][][]string, error)
	UpdateValue(ctx context.Context, rng, value string) error
	HighlightRow(ctx context.Context, entity string, row, fromCol, toCol int) error
}

// RowCache remembers append positions between calls.
type RowCache interface {
	CachedAppendRow(ctx context.Context, entity, column string) (int, bool, error)
	StoreAppendRow(ctx context.Context, entity, column string, row int) error
}

// RangeUnavailableError reports a failed read or write against the tabular store.
type RangeUnavailableError struct {
	Range string
	Err   error
}

func (e *RangeUnavailableError) Error() string {
	return fmt.Sprintf("ledger: range %s unavailable: %v", e.Range, e.Err)
}

func (e *RangeUnavailableError) Unwrap() error {
	return e.Err
}

// Gateway provides range-addressed access to entity tabs.
type Gateway struct {
	backend Backend
	roster  *domain.Roster
	cache   RowCache
	chunk   int
	logger  *slog.Logger
}

type Option func(*Gateway)

// WithRowCache enables the stale-read append-row mode.
func WithRowCache(cache RowCache) Option {
	return func(g *Gateway) {
		g.cache = cache
	}
}

func WithScanChunk(rows int) Option {
	return func(g *Gateway) {
		if rows > 0 {
			g.chunk = rows
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGateway creates a Gateway. The roster supplies each entity's first data row.
func NewGateway(backend Backend, roster *domain.Roster, opts ...Option) (*Gateway, error) {
	if backend == nil {
		return nil, errors.New("ledger: backend must not be nil")
	}
	if roster == nil {
		return nil, errors.New("ledger: roster must not be nil")
	}
	g := &Gateway{
		backend: backend,
		roster:  roster,
		chunk:   defaultScanChunk,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// ReadRange returns the row tuples of entity!start:end.
func (g *Gateway) ReadRange(ctx context.Context, entity, start, end string) ([][]string, error) {
	rng := Range(entity, start, end)
	values, err := g.backend.GetValues(ctx, rng)
	if err != nil {
		return nil, &RangeUnavailableError{Range: rng, Err: err}
	}
	return values, nil
}

// BatchRead reads several ranges of one entity in a single round trip.
func (g *Gateway) BatchRead(ctx context.Context, entity string, ranges [][2]string) ([][][]string, error) {
	qualified := make([]string, len(ranges))
	for i, r := range ranges {
		qualified[i] = Range(entity, r[0], r[1])
	}
	return g.batch(ctx, qualified)
}

func (g *Gateway) batch(ctx context.Context, ranges []string) ([][][]string, error) {
	out, err := g.backend.BatchGetValues(ctx, ranges)
	if err != nil {
		return nil, &RangeUnavailableError{Range: strings.Join(ranges, ","), Err: err}
	}
	if len(out) != len(ranges) {
		return nil, &RangeUnavailableError{
			Range: strings.Join(ranges, ","),
			Err:   fmt.Errorf("got %d value ranges for %d requested", len(out), len(ranges)),
		}
	}
	return out, nil
}

// WriteCell overwrites a single cell. There is no locking; last write wins.
func (g *Gateway) WriteCell(ctx context.Context, entity string, row int, column, value string) error {
	rng := Range(entity, Cell(column, row), "")
	if err := g.backend.UpdateValue(ctx, rng, value); err != nil {
		return &RangeUnavailableError{Range: rng, Err: err}
	}
	return nil
}

// Highlight marks a row A..V as freshly written.
func (g *Gateway) Highlight(ctx context.Context, entity string, row int) error {
	to, _ := ColumnIndex(ColEmptyTime)
	if err := g.backend.HighlightRow(ctx, entity, row, 0, to+1); err != nil {
		return &RangeUnavailableError{Range: Range(entity, Cell(ColPickupDate, row), Cell(ColEmptyTime, row)), Err: err}
	}
	return nil
}

func (g *Gateway) startRow(entity string) (int, error) {
	e, ok := g.roster.Entity(entity)
	if !ok {
		return 0, fmt.Errorf("ledger: unknown entity %q", entity)
	}
	return e.StartRow, nil
}

// FindAppendRow returns the first row at or after the entity's start row whose
// anchor column is empty. With a row cache and refresh=false the cached value is
// returned without touching the ledger.
func (g *Gateway) FindAppendRow(ctx context.Context, entity, column string, refresh bool) (int, error) {
	start, err := g.startRow(entity)
	if err != nil {
		return 0, err
	}
	if g.cache != nil && !refresh {
		row, ok, err := g.cache.CachedAppendRow(ctx, entity, column)
		if err != nil {
			g.logger.WarnContext(ctx, "append row cache read failed", "entity", entity, "column", column, "err", err)
		} else if ok && row >= start {
			return row, nil
		}
	}
	row, err := g.scanForEmpty(ctx, entity, column, start)
	if err != nil {
		return 0, err
	}
	g.remember(ctx, entity, column, row)
	return row, nil
}

// NoteAppended records that row was just filled so the next append goes below it.
func (g *Gateway) NoteAppended(ctx context.Context, entity, column string, row int) {
	g.remember(ctx, entity, column, row+1)
}

func (g *Gateway) remember(ctx context.Context, entity, column string, row int) {
	if g.cache == nil {
		return
	}
	if err := g.cache.StoreAppendRow(ctx, entity, column, row); err != nil {
		g.logger.WarnContext(ctx, "append row cache write failed", "entity", entity, "column", column, "err", err)
	}
}

// FindPeriodEnd returns the first row at or after startRow whose pickup date is
// empty. Rows [startRow, end) form the settlement period.
func (g *Gateway) FindPeriodEnd(ctx context.Context, entity string, startRow int) (int, error) {
	if startRow < 1 {
		return 0, fmt.Errorf("ledger: invalid start row %d", startRow)
	}
	return g.scanForEmpty(ctx, entity, ColPickupDate, startRow)
}

func (g *Gateway) scanForEmpty(ctx context.Context, entity, column string, from int) (int, error) {
	for n := from; ; n += g.chunk {
		values, err := g.ReadRange(ctx, entity, Cell(column, n), Cell(column, n+g.chunk-1))
		if err != nil {
			return 0, err
		}
		for i := 0; i < g.chunk; i++ {
			if i >= len(values) || cellAt(values[i], 0) == "" {
				return n + i, nil
			}
		}
	}
}

// LastMarker returns the last value of column in rows 1..upTo accepted by match.
// A nil match accepts any non-empty value.
func (g *Gateway) LastMarker(ctx context.Context, entity, column string, upTo int, match func(string) bool) (string, error) {
	values, err := g.ReadRange(ctx, entity, Cell(column, 1), Cell(column, upTo))
	if err != nil {
		return "", err
	}
	for i := len(values) - 1; i >= 0; i-- {
		if v := cellAt(values[i], 0); v != "" && (match == nil || match(v)) {
			return v, nil
		}
	}
	return "", nil
}

// ReadRows reads and decodes rows [from, to) of entity in one request.
func (g *Gateway) ReadRows(ctx context.Context, entity string, from, to int) ([]domain.LedgerRow, error) {
	if to <= from {
		return nil, nil
	}
	values, err := g.ReadRange(ctx, entity, Cell(ColPickupDate, from), Cell(LastColumn, to-1))
	if err != nil {
		return nil, err
	}
	rows := make([]domain.LedgerRow, 0, to-from)
	for i := 0; i < to-from; i++ {
		var raw []string
		if i < len(values) {
			raw = values[i]
		}
		row := DecodeRow(entity, from+i, raw)
		for _, col := range row.ParseRecoveredAt {
			g.logger.WarnContext(ctx, "ledger cell not numeric, using 0", "entity", entity, "row", row.Row, "column", col)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ReadRow reads a single row.
func (g *Gateway) ReadRow(ctx context.Context, entity string, row int) (domain.LedgerRow, error) {
	rows, err := g.ReadRows(ctx, entity, row, row+1)
	if err != nil {
		return domain.LedgerRow{}, err
	}
	return rows[0], nil
}

// ColumnPair is one (anchor, value) lookup column pair for BatchColumns.
type ColumnPair struct {
	Entity string
	Key    string
	Value  string
}

// BatchColumns reads whole columns for each pair in one request and returns
// (key, value) rows per pair, aligned by row.
func (g *Gateway) BatchColumns(ctx context.Context, pairs []ColumnPair) ([][][2]string, error) {
	ranges := make([]string, 0, len(pairs)*2)
	for _, p := range pairs {
		ranges = append(ranges, Range(p.Entity, p.Key+"1", p.Key), Range(p.Entity, p.Value+"1", p.Value))
	}
	out, err := g.batch(ctx, ranges)
	if err != nil {
		return nil, err
	}
	result := make([][][2]string, len(pairs))
	for i := range pairs {
		keys, vals := out[2*i], out[2*i+1]
		rows := make([][2]string, len(keys))
		for r := range keys {
			rows[r][0] = cellAt(keys[r], 0)
			if r < len(vals) {
				rows[r][1] = cellAt(vals[r], 0)
			}
		}
		result[i] = rows
	}
	return result, nil
}

func cellAt(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
