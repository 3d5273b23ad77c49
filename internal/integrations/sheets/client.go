package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// Client reads and writes one spreadsheet through the Sheets v4 API. It
// satisfies ledger.Backend.
type Client struct {
	svc           *sheetsapi.Service
	spreadsheetID string

	mu       sync.Mutex
	sheetIDs map[string]int64
}

// New builds a Client for spreadsheetID. Credentials and endpoint come from opts,
// typically option.WithCredentialsJSON.
func New(ctx context.Context, spreadsheetID string, opts ...option.ClientOption) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("sheets: spreadsheet id must not be empty")
	}
	svc, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets: new service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetIDs: map[string]int64{}}, nil
}

func (c *Client) GetValues(ctx context.Context, rng string) ([][]string, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("sheets: get %s: %w", rng, err)
	}
	return toStrings(resp.Values), nil
}

func (c *Client) BatchGetValues(ctx context.Context, ranges []string) ([][][]string, error) {
	if len(ranges) == 0 {
		return nil, nil
	}
	resp, err := c.svc.Spreadsheets.Values.BatchGet(c.spreadsheetID).
		Ranges(ranges...).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("sheets: batch get: %w", err)
	}
	out := make([][][]string, len(ranges))
	for i, vr := range resp.ValueRanges {
		if i >= len(out) || vr == nil {
			continue
		}
		out[i] = toStrings(vr.Values)
	}
	return out, nil
}

// UpdateValue writes a single cell as if typed by a user, so dates and numbers
// keep their spreadsheet types.
func (c *Client) UpdateValue(ctx context.Context, rng, value string) error {
	body := &sheetsapi.ValueRange{Values: [][]interface{}{{value}}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, body).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("sheets: update %s: %w", rng, err)
	}
	return nil
}

// highlight is the fill applied to freshly appended rows.
var highlight = &sheetsapi.Color{Red: 0.85, Green: 0.92, Blue: 0.83}

// HighlightRow paints columns [fromCol, toCol) of a 1-based row.
func (c *Client) HighlightRow(ctx context.Context, entity string, row, fromCol, toCol int) error {
	sheetID, err := c.sheetID(ctx, entity)
	if err != nil {
		return err
	}
	req := &sheetsapi.BatchUpdateSpreadsheetRequest{Requests: []*sheetsapi.Request{{
		RepeatCell: &sheetsapi.RepeatCellRequest{
			Range: &sheetsapi.GridRange{
				SheetId:          sheetID,
				StartRowIndex:    int64(row - 1),
				EndRowIndex:      int64(row),
				StartColumnIndex: int64(fromCol),
				EndColumnIndex:   int64(toCol),
				ForceSendFields:  []string{"SheetId", "StartRowIndex", "StartColumnIndex"},
			},
			Cell:   &sheetsapi.CellData{UserEnteredFormat: &sheetsapi.CellFormat{BackgroundColor: highlight}},
			Fields: "userEnteredFormat.backgroundColor",
		},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("sheets: highlight %s row %d: %w", entity, row, err)
	}
	return nil
}

func (c *Client) sheetID(ctx context.Context, title string) (int64, error) {
	c.mu.Lock()
	id, ok := c.sheetIDs[title]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("sheets: list tabs: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range ss.Sheets {
		if s == nil || s.Properties == nil {
			continue
		}
		c.sheetIDs[s.Properties.Title] = s.Properties.SheetId
	}
	id, ok = c.sheetIDs[title]
	if !ok {
		return 0, fmt.Errorf("sheets: no tab named %q", title)
	}
	return id, nil
}

func toStrings(values [][]interface{}) [][]string {
	out := make([][]string, len(values))
	for i, row := range values {
		out[i] = make([]string, len(row))
		for j, v := range row {
			if v == nil {
				continue
			}
			out[i][j] = fmt.Sprint(v)
		}
	}
	return out
}
