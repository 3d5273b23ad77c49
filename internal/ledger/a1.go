package ledger

import (
	"fmt"
	"strings"
)

// ColumnIndex converts a column letter ("A", "AA") to its 0-based index.
func ColumnIndex(col string) (int, error) {
	col = strings.ToUpper(strings.TrimSpace(col))
	if col == "" {
		return 0, fmt.Errorf("ledger: empty column")
	}
	n := 0
	for _, r := range col {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("ledger: invalid column %q", col)
		}
		n = n*26 + int(r-'A'+1)
	}
	return n - 1, nil
}

// ColumnLetter converts a 0-based column index to its letter form.
func ColumnLetter(idx int) string {
	var b []byte
	for idx >= 0 {
		b = append([]byte{byte('A' + idx%26)}, b...)
		idx = idx/26 - 1
	}
	return string(b)
}

// Cell formats a column/row pair as "AA12".
func Cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}

// Range formats a sheet-qualified A1 range. Sheet names are always quoted.
func Range(entity, start, end string) string {
	sheet := "'" + strings.ReplaceAll(entity, "'", "''") + "'"
	if end == "" || end == start {
		return sheet + "!" + start
	}
	return sheet + "!" + start + ":" + end
}
