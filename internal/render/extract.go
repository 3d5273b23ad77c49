package render

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"

	pdftext "github.com/ledongthuc/pdf"
	"github.com/shopspring/decimal"
)

// ExtractLines returns the text rows of the first maxPages pages (all pages when
// maxPages <= 0), top to bottom.
func ExtractLines(doc []byte, maxPages int) ([]string, error) {
	r, err := pdftext.NewReader(bytes.NewReader(doc), int64(len(doc)))
	if err != nil {
		return nil, fmt.Errorf("render: open pdf: %w", err)
	}
	n := r.NumPage()
	if maxPages > 0 && maxPages < n {
		n = maxPages
	}
	var lines []string
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		rows, err := p.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("render: read page %d: %w", i, err)
		}
		for _, row := range rows {
			var sb strings.Builder
			for _, t := range row.Content {
				sb.WriteString(t.S)
			}
			if s := strings.TrimSpace(sb.String()); s != "" {
				lines = append(lines, s)
			}
		}
	}
	return lines, nil
}

var (
	totalsRe   = regexp.MustCompile(`^Totals\s*\$?(\d[\d,]*(?:\.\d+)?)`)
	discountRe = regexp.MustCompile(`^Total Discount\s*\$?(\d[\d,]*(?:\.\d+)?)`)
)

// FuelTotals are the summary figures of a fuel card statement.
type FuelTotals struct {
	AfterDiscount decimal.Decimal
	Discount      decimal.Decimal
}

// ParseFuelTotals finds the "Totals" and "Total Discount" lines. A statement with
// no Totals line is rejected; a missing discount is zero.
func ParseFuelTotals(lines []string) (FuelTotals, error) {
	var out FuelTotals
	found := false
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if m := discountRe.FindStringSubmatch(l); m != nil {
			out.Discount = parseNumber(m[1])
			continue
		}
		if m := totalsRe.FindStringSubmatch(l); m != nil && !found {
			out.AfterDiscount = parseNumber(m[1])
			found = true
		}
	}
	if !found {
		return FuelTotals{}, fmt.Errorf("render: no Totals line in fuel statement")
	}
	return out, nil
}

func parseNumber(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return decimal.Zero
	}
	return d
}

var (
	fuelStateRe = regexp.MustCompile(`.*?([A-Z]{2})\s*[\d\s.]*?(?:ULSD|ULSR|FUEL|RFR)`)
	fuelItemRe  = regexp.MustCompile(`(ULSD|ULSR|FUEL|RFR)`)
	fuelQtyRe   = regexp.MustCompile(`\s(0\.\d{2,3}?)(\d*\.\d{2})`)
)

var usStates = map[string]bool{}

func init() {
	for _, s := range strings.Fields("AL AZ AR CA CO CT DE FL GA ID IL IN IA KS KY LA ME MD MA MI MN MS MO MT NE NV NH NJ NM NY NC ND OH OK OR PA RI SC SD TN TX UT VT VA WA WV WI WY") {
		usStates[s] = true
	}
}

// StateQuantity is the fuel volume purchased in one jurisdiction.
type StateQuantity struct {
	State    string
	Quantity decimal.Decimal
}

// FuelByState attributes each fuel line item to the last state code seen and sums
// quantities per state. Parsing stops at the statement's summary section. Results
// are sorted by state; unattributed items use "XX".
func FuelByState(lines []string) ([]StateQuantity, decimal.Decimal) {
	totals := map[string]decimal.Decimal{}
	current := "XX"
	for _, l := range lines {
		if strings.Contains(l, "Amount Quantity Avg PPU") || strings.HasPrefix(strings.TrimSpace(l), "Total Fuel") {
			break
		}
		if m := fuelStateRe.FindStringSubmatch(l); m != nil && usStates[m[1]] {
			current = m[1]
		}
		if !fuelItemRe.MatchString(l) {
			continue
		}
		m := fuelQtyRe.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		qty, err := decimal.NewFromString(m[2])
		if err != nil || !qty.IsPositive() {
			continue
		}
		totals[current] = totals[current].Add(qty)
	}

	out := make([]StateQuantity, 0, len(totals))
	grand := decimal.Zero
	for st, q := range totals {
		out = append(out, StateQuantity{State: st, Quantity: q})
		grand = grand.Add(q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].State < out[j].State })
	return out, grand
}
