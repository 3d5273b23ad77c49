package render

import (
	"strings"

	"github.com/go-pdf/fpdf"

	"dispatch-bot/internal/domain"
)

// Invoice renders the broker invoice cover page.
func Invoice(inv domain.Invoice) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	addr := append([]string{inv.Company.Name}, inv.Company.MailingAddress...)
	pdf.SetFont("Times", "", 12)
	pdf.SetTextColor(0, 0, 0)
	pdf.MultiCell(0, 5, tr(strings.Join(addr, "\n")), "", "L", false)

	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetTextColor(25, 126, 134)
	pdf.CellFormat(0, 10, "INVOICE", "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(50, 5, "BILL TO", "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 5, tr("INVOICE # "+inv.Number), "", 1, "R", false, 0, "")

	billTo := inv.BillToAddress
	if strings.TrimSpace(billTo) == "" {
		billTo = inv.BillTo
	}
	pdf.SetFont("Times", "", 12)
	pdf.MultiCell(0, 5, tr(billTo), "", "L", false)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(160, 5, "DATE", "", 0, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(30, 5, inv.Date, "", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(32, 30, "TRK#/DRIVER", "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(63, 30, tr(inv.Driver), "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(35, 30, "LOAD/ORDER #", "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(60, 30, tr(inv.LoadNumber), "", 1, "L", false, 0, "")

	pdf.CellFormat(0, 8, "LOAD DESCRIPTION", "1", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(25, 126, 134)
	pdf.CellFormat(10, 8, "SO", "1", 0, "L", false, 0, "")
	pdf.CellFormat(160, 8, "ADDRESS", "1", 0, "L", false, 0, "")
	pdf.CellFormat(20, 8, "DATE", "1", 1, "L", false, 0, "")

	pdf.SetTextColor(0, 0, 0)
	for _, stop := range [][3]string{{"PU", inv.Pickup, inv.PickupDate}, {"DEL", inv.Delivery, inv.DeliveryDate}} {
		pdf.CellFormat(10, 10, stop[0], "1", 0, "L", false, 0, "")
		pdf.CellFormat(160, 10, tr(clip(stop[1], 90)), "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 10, stop[2], "1", 1, "L", false, 0, "")
	}

	lumper := inv.LumperNote
	if lumper == "" {
		lumper = "<none>"
	}
	label := func(s string) {
		pdf.SetTextColor(25, 126, 134)
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(95, 8, s, "1", 0, "L", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	}
	label("LUMPER")
	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(95, 8, tr(lumper), "1", 1, "R", false, 0, "")
	label("BALANCE DUE")
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(95, 8, money(inv.BalanceDue), "1", 1, "R", false, 0, "")

	if len(inv.Company.PaymentInfo) > 0 {
		pdf.SetTextColor(25, 126, 134)
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, 15, "PAYMENT INFO:", "1", 1, "C", false, 0, "")
		for _, p := range inv.Company.PaymentInfo {
			label(p.Label)
			pdf.SetFont("Helvetica", "B", 10)
			pdf.CellFormat(95, 8, tr(p.Value), "1", 1, "L", false, 0, "")
		}
	}
	return output(pdf)
}
