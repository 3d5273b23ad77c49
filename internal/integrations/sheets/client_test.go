package sheets

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

type recorder struct {
	mu       sync.Mutex
	requests []string
	bodies   []string
}

func (r *recorder) add(req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req.Method+" "+req.URL.Path+"?"+req.URL.RawQuery)
	r.bodies = append(r.bodies, string(body))
}

func newTestClient(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Client, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r)
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), "sheet-1",
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	return c, rec
}

func TestNew_RequiresSpreadsheet(t *testing.T) {
	_, err := New(context.Background(), " ", option.WithoutAuthentication())
	require.ErrorContains(t, err, "must not be empty")
}

func TestGetValues(t *testing.T) {
	c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"range":"Walter!A1:B2","values":[["01/02/2024","8:00"],["01/03/2024"]]}`)
	})
	rows, err := c.GetValues(context.Background(), "'Walter'!A1:B2")
	require.NoError(t, err)
	require.Equal(t, [][]string{{"01/02/2024", "8:00"}, {"01/03/2024"}}, rows)
	require.Len(t, rec.requests, 1)
	require.Contains(t, rec.requests[0], "/v4/spreadsheets/sheet-1/values/")
	require.Contains(t, rec.requests[0], "valueRenderOption=FORMATTED_VALUE")
}

func TestGetValues_Error(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":{"code":503,"message":"backend"}}`)
	})
	_, err := c.GetValues(context.Background(), "'Walter'!A1")
	require.ErrorContains(t, err, "sheets: get")
}

func TestBatchGetValues(t *testing.T) {
	c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"valueRanges":[{"values":[["Acme"]]},{"values":[["ap@acme.test"]]}]}`)
	})
	out, err := c.BatchGetValues(context.Background(), []string{"'Walter'!G1:G", "'Walter'!T1:T"})
	require.NoError(t, err)
	require.Equal(t, [][][]string{{{"Acme"}}, {{"ap@acme.test"}}}, out)
	require.Contains(t, rec.requests[0], "values:batchGet")

	empty, err := c.BatchGetValues(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, empty)
}

func TestUpdateValue(t *testing.T) {
	c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"updatedCells":1}`)
	})
	require.NoError(t, c.UpdateValue(context.Background(), "'Walter'!X50", "https://link"))
	require.Contains(t, rec.requests[0], "PUT ")
	require.Contains(t, rec.requests[0], "valueInputOption=USER_ENTERED")

	var body struct {
		Values [][]string `json:"values"`
	}
	require.NoError(t, json.Unmarshal([]byte(rec.bodies[0]), &body))
	require.Equal(t, [][]string{{"https://link"}}, body.Values)
}

func TestHighlightRow_ResolvesSheetOnce(t *testing.T) {
	c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ":batchUpdate") {
			_, _ = io.WriteString(w, `{"spreadsheetId":"sheet-1"}`)
			return
		}
		_, _ = io.WriteString(w, `{"sheets":[{"properties":{"sheetId":0,"title":"Walter"}},{"properties":{"sheetId":7,"title":"Nestor"}}]}`)
	})
	require.NoError(t, c.HighlightRow(context.Background(), "Walter", 30, 0, 22))
	require.NoError(t, c.HighlightRow(context.Background(), "Nestor", 12, 0, 22))
	require.Len(t, rec.requests, 3)

	var req struct {
		Requests []struct {
			RepeatCell struct {
				Range struct {
					SheetID       *int64 `json:"sheetId"`
					StartRowIndex int64  `json:"startRowIndex"`
					EndRowIndex   int64  `json:"endRowIndex"`
					EndColumn     int64  `json:"endColumnIndex"`
				} `json:"range"`
				Fields string `json:"fields"`
			} `json:"repeatCell"`
		} `json:"requests"`
	}
	require.NoError(t, json.Unmarshal([]byte(rec.bodies[1]), &req))
	rng := req.Requests[0].RepeatCell.Range
	require.NotNil(t, rng.SheetID)
	require.Equal(t, int64(0), *rng.SheetID)
	require.Equal(t, int64(29), rng.StartRowIndex)
	require.Equal(t, int64(30), rng.EndRowIndex)
	require.Equal(t, int64(22), rng.EndColumn)
	require.Equal(t, "userEnteredFormat.backgroundColor", req.Requests[0].RepeatCell.Fields)
}

func TestHighlightRow_UnknownTab(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"sheets":[]}`)
	})
	err := c.HighlightRow(context.Background(), "Ghost", 3, 0, 22)
	require.ErrorContains(t, err, `no tab named "Ghost"`)
}
