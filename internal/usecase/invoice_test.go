package usecase

import (
	"testing"

	"github.com/stretchr/testify/require"

	"dispatch-bot/internal/domain"
	"dispatch-bot/internal/render"
)

const rcLink = "https://drive.test/rc-l123"

func seedInvoiceRow(t *testing.T, h *harness) {
	h.sheet.SetRow("CompanyA", 20,
		"07/01/2023", "08:00", "07/03/2023", "14:00", "Chicago, IL", "Dallas, TX", "BrokerA", "L123",
		rcLink, "2000", "930", "2.15", "", "", "100", "", "ops@brokera.com", "", "7", "ap@brokera.com")
	h.blobs.files[rcLink] = samplePDF(t)
}

func TestInvoice_EndToEnd(t *testing.T) {
	h := newHarness(t)
	seedInvoiceRow(t, h)
	h.customers.records["brokera"] = domain.Customer{Broker: "BrokerA", Address: "1 Main St, Dallas, TX"}

	h.command("invoice")
	h.choose("CompanyA")
	replies := h.text("20")
	require.Contains(t, lastText(replies), "Upload the POD")
	require.Equal(t, invoicePOD, h.state())

	replies = h.upload("pod1.pdf", samplePDF(t))
	require.Equal(t, "Got 1 file. Upload more or send /done.", lastText(replies))
	replies = h.upload("pod2.pdf", samplePDF(t))
	require.Equal(t, "Got 2 files. Upload more or send /done.", lastText(replies))
	require.Equal(t, invoicePOD, h.state())

	replies = h.command("done")
	require.Len(t, replies, 2)
	inv := replies[0]
	require.NotNil(t, inv.File)
	require.Equal(t, "Invoice 7 L123.pdf", inv.File.Name)
	require.True(t, render.IsPDF(inv.File.Data))
	require.Contains(t, inv.Text, "Invoice #7 for load L123 (BrokerA): balance due $2100.00")
	require.Equal(t, "Email the invoice to ap@brokera.com (cc ops@brokera.com)?", replies[1].Text)

	require.Equal(t, "https://drive.test/POD_L123.pdf", h.sheet.Get("CompanyA", "N", 20))
	require.Equal(t, "https://drive.test/Invoice_7_L123.pdf", h.sheet.Get("CompanyA", "R", 20))
	require.Equal(t, "documents", h.blobs.folders["Invoice 7 L123.pdf"])

	replies = h.choose("send")
	require.Equal(t, "Invoice emailed to ap@brokera.com.", lastText(replies))
	require.Len(t, h.mail.sent, 1)
	msg := h.mail.sent[0]
	require.Equal(t, []string{"ap@brokera.com"}, msg.To)
	require.Equal(t, []string{"ops@brokera.com"}, msg.Cc)
	require.Equal(t, "POD/Invoice Order L123 Carrier Acme Freight LLC MC 123456", msg.Subject)
	require.Len(t, msg.Attachments, 1)
	require.Equal(t, "Invoice 7 L123.pdf", msg.Attachments[0].Name)
	require.Nil(t, h.session())
	require.Empty(t, h.objects.Keys())
}

func TestInvoice_ReusesExistingPOD(t *testing.T) {
	h := newHarness(t)
	seedInvoiceRow(t, h)
	podLink := "https://drive.test/old-pod"
	h.sheet.Set("CompanyA", "N", 20, podLink)
	h.sheet.Set("CompanyA", "T", 20, "")
	h.blobs.files[podLink] = samplePDF(t)

	h.command("invoice")
	h.choose("CompanyA")
	replies := h.text("20")
	require.Equal(t, "This load already has a POD. Use it?", lastText(replies))

	replies = h.choose("yes")
	require.Contains(t, allText(replies), "Invoice #7")
	require.Contains(t, lastText(replies), "No accounting email on file for BrokerA")
	require.Equal(t, podLink, h.sheet.Get("CompanyA", "N", 20))
	require.Empty(t, h.mail.sent)
	require.Nil(t, h.session())
}

func TestInvoice_SkipEmail(t *testing.T) {
	h := newHarness(t)
	seedInvoiceRow(t, h)
	h.command("invoice")
	h.choose("CompanyA")
	h.text("20")
	h.upload("pod.pdf", samplePDF(t))
	h.command("done")

	replies := h.choose("skip")
	require.Equal(t, "Invoice not emailed.", lastText(replies))
	require.Empty(t, h.mail.sent)
	require.Nil(t, h.session())
}

func TestInvoice_PODValidation(t *testing.T) {
	h := newHarness(t)
	seedInvoiceRow(t, h)
	h.command("invoice")
	h.choose("CompanyA")

	replies := h.text("21")
	require.Contains(t, lastText(replies), "Row 21 of CompanyA has no load on it.")

	h.text("20")
	replies = h.command("done")
	require.Equal(t, "Upload at least one POD page first.", lastText(replies))

	replies = h.upload("pod.docx", []byte("not a document"))
	require.Contains(t, lastText(replies), "pod.docx is neither a PDF nor a photo.")
	require.Equal(t, invoicePOD, h.state())
	require.Empty(t, h.objects.Keys())
}

func TestLumper(t *testing.T) {
	note, extra := lumper(domain.LedgerRow{LumperCarrier: dec("100")})
	require.Equal(t, "(Company paid, receipt attached) $100.00", note)
	require.True(t, dec("100").Equal(extra))

	note, extra = lumper(domain.LedgerRow{LumperBroker: dec("80")})
	require.Equal(t, "(Broker paid, receipt attached) $80.00", note)
	require.True(t, extra.IsZero())

	note, _ = lumper(domain.LedgerRow{})
	require.Empty(t, note)
}
