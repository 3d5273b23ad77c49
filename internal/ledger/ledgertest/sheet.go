// Package ledgertest provides an in-memory ledger backend for tests.
package ledgertest

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"dispatch-bot/internal/ledger"
)

var rangeRe = regexp.MustCompile(`^'((?:[^']|'')+)'!([A-Z]+)(\d*)(?::([A-Z]+)(\d*))?$`)

// Sheet is a ledger.Backend over per-entity grids. Rows and columns are 1-based in
// Set/Get and reads trim trailing empty rows and cells like the real service.
type Sheet struct {
	mu          sync.Mutex
	grids       map[string]map[int]map[int]string
	Reads       []string
	Writes      []string
	Highlighted []string
	ReadErr     error
	WriteErr    error
}

func New() *Sheet {
	return &Sheet{grids: map[string]map[int]map[int]string{}}
}

// Set stores value at entity!col+row.
func (s *Sheet) Set(entity, col string, row int, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(entity, col, row, value)
}

func (s *Sheet) set(entity, col string, row int, value string) {
	idx, err := ledger.ColumnIndex(col)
	if err != nil {
		panic(err)
	}
	g, ok := s.grids[entity]
	if !ok {
		g = map[int]map[int]string{}
		s.grids[entity] = g
	}
	if g[row] == nil {
		g[row] = map[int]string{}
	}
	g[row][idx] = value
}

// SetRow stores values starting at column A.
func (s *Sheet) SetRow(entity string, row int, values ...string) {
	for i, v := range values {
		s.Set(entity, ledger.ColumnLetter(i), row, v)
	}
}

// Get returns the value at entity!col+row.
func (s *Sheet) Get(entity, col string, row int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, _ := ledger.ColumnIndex(col)
	return s.grids[entity][row][idx]
}

func (s *Sheet) maxRow(entity string) int {
	m := 0
	for r := range s.grids[entity] {
		if r > m {
			m = r
		}
	}
	return m
}

func (s *Sheet) read(rng string) ([][]string, error) {
	m := rangeRe.FindStringSubmatch(rng)
	if m == nil {
		return nil, fmt.Errorf("ledgertest: bad range %q", rng)
	}
	entity := strings.ReplaceAll(m[1], "''", "'")
	c0, _ := ledger.ColumnIndex(m[2])
	c1 := c0
	if m[4] != "" {
		c1, _ = ledger.ColumnIndex(m[4])
	}
	r0 := 1
	if m[3] != "" {
		r0, _ = strconv.Atoi(m[3])
	}
	r1 := r0
	switch {
	case m[4] != "" && m[5] != "":
		r1, _ = strconv.Atoi(m[5])
	case m[4] != "" && m[5] == "":
		r1 = s.maxRow(entity)
	}

	var out [][]string
	for r := r0; r <= r1; r++ {
		var row []string
		for c := c0; c <= c1; c++ {
			row = append(row, s.grids[entity][r][c])
		}
		for len(row) > 0 && row[len(row)-1] == "" {
			row = row[:len(row)-1]
		}
		out = append(out, row)
	}
	for len(out) > 0 && len(out[len(out)-1]) == 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (s *Sheet) GetValues(_ context.Context, rng string) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Reads = append(s.Reads, rng)
	if s.ReadErr != nil {
		return nil, s.ReadErr
	}
	return s.read(rng)
}

func (s *Sheet) BatchGetValues(_ context.Context, ranges []string) ([][][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Reads = append(s.Reads, strings.Join(ranges, ","))
	if s.ReadErr != nil {
		return nil, s.ReadErr
	}
	out := make([][][]string, 0, len(ranges))
	for _, r := range ranges {
		v, err := s.read(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Sheet) UpdateValue(_ context.Context, rng, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return s.WriteErr
	}
	m := rangeRe.FindStringSubmatch(rng)
	if m == nil || m[3] == "" {
		return fmt.Errorf("ledgertest: bad cell %q", rng)
	}
	row, _ := strconv.Atoi(m[3])
	s.set(strings.ReplaceAll(m[1], "''", "'"), m[2], row, value)
	s.Writes = append(s.Writes, rng+"="+value)
	return nil
}

func (s *Sheet) HighlightRow(_ context.Context, entity string, row, fromCol, toCol int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Highlighted = append(s.Highlighted, fmt.Sprintf("%s!%d[%d:%d]", entity, row, fromCol, toCol))
	return nil
}

// ReadCount returns the number of read requests served.
func (s *Sheet) ReadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Reads)
}
