package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"

	"dispatch-bot/internal/domain"
)

const barWidth = 177.0

// BarWeight is the fraction of the bar width drawn under a deduction line:
// min(|amount| / totalNet, 1).
func BarWeight(amount, totalNet decimal.Decimal) float64 {
	if amount.IsZero() {
		return 0
	}
	if !totalNet.IsPositive() {
		return 1
	}
	w, _ := amount.Abs().Div(totalNet).Float64()
	if w > 1 {
		return 1
	}
	return w
}

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1])
}

// Statement renders a settlement statement page.
func Statement(st domain.Statement) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(190, 10, tr(st.Company), "", 1, "L", false, 0, "")
	pdf.CellFormat(190, 10, tr("Pay to: "+st.Payee), "", 1, "L", false, 0, "")
	pdf.CellFormat(190, 10, tr(fmt.Sprintf("Statement %s - %s", st.PeriodStart, st.PeriodEnd)), "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(15, 15, "Loads Complete:", "", 1, "L", false, 0, "")

	widths := []float64{15, 15, 30, 30, 30, 15, 10, 17, 15}
	pdf.SetFont("Helvetica", "B", 8)
	for i, h := range []string{"PU date", "Del date", "From:", "To:", "Broker", "Gross", "Miles", "Comm.", "Gross - %"} {
		ln := 0
		if i == len(widths)-1 {
			ln = 1
		}
		pdf.CellFormat(widths[i], 5, h, "1", ln, "L", false, 0, "")
	}

	pdf.SetFont("Helvetica", "", 7)
	for _, l := range st.Lines {
		cells := []string{
			l.PickupDate, l.DeliveryDate,
			clip(l.Origin, 20), clip(l.Destination, 20), clip(l.Broker, 20),
			l.Gross.StringFixed(2), l.Miles.String(), l.Commission.StringFixed(2), l.Net.StringFixed(2),
		}
		for i, c := range cells {
			ln := 0
			if i == len(cells)-1 {
				ln = 1
			}
			pdf.CellFormat(widths[i], 5, tr(c), "1", ln, "L", false, 0, "")
		}
	}

	pdf.SetFont("Helvetica", "B", 8)
	totals := []string{"", "", "", "", "Totals:",
		st.TotalGross.StringFixed(2), st.TotalMiles.String(), st.TotalCommission.StringFixed(2), st.TotalNet.StringFixed(2)}
	for i, c := range totals {
		ln, align := 0, "L"
		if i == len(totals)-1 {
			ln = 1
		}
		if i == 4 {
			align = "R"
		}
		pdf.CellFormat(widths[i], 5, c, "1", ln, align, false, 0, "")
	}

	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetFillColor(232, 253, 226)
	pdf.CellFormat(barWidth, 15, "Total for loads: "+money(st.TotalNet), "", 1, "L", true, 0, "")

	for _, c := range st.Credits {
		line(pdf, tr, c, st.TotalNet, [3]int{85, 252, 37})
	}
	var final strings.Builder
	final.WriteString("Final pay: " + money(st.TotalNet))
	for _, d := range st.Deductions {
		color := [3]int{252, 66, 37}
		if d.Amount.IsNegative() {
			color = [3]int{85, 252, 37}
			final.WriteString(" + " + money(d.Amount.Abs()))
		} else {
			final.WriteString(" - " + money(d.Amount))
		}
		line(pdf, tr, d, st.TotalNet, color)
	}

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(15, 15, final.String(), "", 1, "L", false, 0, "")
	pdf.SetFillColor(74, 245, 44)
	pdf.CellFormat(barWidth, 15, "Settlement Total: "+money(st.Settlement), "", 1, "C", true, 0, "")

	if st.FooterNote != "" {
		pdf.SetFont("Helvetica", "", 8)
		pdf.CellFormat(barWidth, 30, tr(st.FooterNote), "", 1, "C", false, 0, "")
	}
	return output(pdf)
}

func line(pdf *fpdf.Fpdf, tr func(string) string, d domain.DeductionEntry, totalNet decimal.Decimal, color [3]int) {
	text := fmt.Sprintf("%s: %s", d.Label, money(d.Amount.Abs()))
	if d.Note != "" {
		text += " (" + d.Note + ")"
	}
	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(barWidth, 10, tr(text), "", 1, "L", false, 0, "")
	if w := BarWeight(d.Amount, totalNet) * barWidth; w > 0 {
		pdf.SetFillColor(color[0], color[1], color[2])
		pdf.CellFormat(w, 0.5, "", "", 1, "L", true, 0, "")
	}
}

func output(pdf *fpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render: output: %w", err)
	}
	return buf.Bytes(), nil
}
