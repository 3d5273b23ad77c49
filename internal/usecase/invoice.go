package usecase

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"dispatch-bot/internal/domain"
	"dispatch-bot/internal/integrations/mailer"
	"dispatch-bot/internal/ledger"
	"dispatch-bot/internal/render"
)

const (
	invoiceEntity   domain.State = "invoice.entity"
	invoiceAnchor   domain.State = "invoice.anchor"
	invoicePODReuse domain.State = "invoice.pod_reuse"
	invoicePOD      domain.State = "invoice.pod"
	invoiceGenerate domain.State = "invoice.generate"
	invoiceConfirm  domain.State = "invoice.confirm"
)

const podPage = "POD page"

func invoiceGraph() *graph {
	return &graph{
		kind:    domain.WorkflowInvoice,
		title:   "Send invoice",
		command: "invoice",
		initial: invoiceEntity,
		nodes: map[domain.State]node{
			invoiceEntity: chooseEntity("Which driver hauled the load?", nil, func(*turn, domain.Entity) (domain.State, error) {
				return invoiceAnchor, nil
			}),
			invoiceAnchor: {
				prompt: ask("Enter the ledger row of the load:"),
				input:  invoiceAnchorInput,
			},
			invoicePODReuse: {
				prompt: ask("This load already has a POD. Use it?", "Yes", "No"),
				input: func(t *turn) (domain.State, error) {
					reuse, err := yesNo(t.text())
					if err != nil {
						return "", err
					}
					if reuse {
						return invoiceGenerate, nil
					}
					t.set("pod_link", "")
					return invoicePOD, nil
				},
			},
			invoicePOD: {
				prompt: ask("Upload the POD as PDF or photos. Send /done when every page is uploaded."),
				input:  podInput,
			},
			invoiceGenerate: {
				run: generateInvoice,
			},
			invoiceConfirm: {
				prompt: func(t *turn) (domain.Reply, error) {
					text := "Email the invoice to " + t.field("mail_to")
					if cc := t.field("mail_cc"); cc != "" {
						text += " (cc " + cc + ")"
					}
					return ask(text+"?", "Send", "Skip")(t)
				},
				input: confirmSendInput,
			},
		},
	}
}

func invoiceAnchorInput(t *turn) (domain.State, error) {
	ent, err := t.entity()
	if err != nil {
		return "", err
	}
	n, err := validRow(t.text())
	if err != nil {
		return "", err
	}
	if err := t.checkpoint(); err != nil {
		return "", err
	}
	row, err := t.e.Ledger.ReadRow(t.ctx, ent.Name, n)
	if err != nil {
		return "", classify(fmt.Sprintf("Could not read %s row %d", ent.Name, n), err)
	}
	if row.PickupDate == "" || row.Broker == "" {
		return "", invalid("Row %d of %s has no load on it.", n, ent.Name)
	}
	t.set("anchor", itoa(n))
	if row.PODLink != "" {
		t.set("pod_link", row.PODLink)
		return invoicePODReuse, nil
	}
	return invoicePOD, nil
}

func podInput(t *turn) (domain.State, error) {
	if t.command("done") {
		return finishPOD(t)
	}
	var mimeType string
	data, err := t.upload(func(doc *domain.Document, data []byte) error {
		mimeType = sniff(doc, data)
		switch mimeType {
		case "application/pdf", "image/jpeg", "image/png", "image/gif":
			return nil
		}
		return invalid("%s is neither a PDF nor a photo.", displayName(doc))
	})
	if err != nil {
		return "", err
	}
	if _, err := t.keep(podPage, mimeType, data); err != nil {
		return "", err
	}
	t.sayf("Got %s. Upload more or send /done.", plural(len(podKeys(t.s)), "file"))
	return invoicePOD, nil
}

func sniff(doc *domain.Document, data []byte) string {
	if render.IsPDF(data) {
		return "application/pdf"
	}
	ct := http.DetectContentType(data)
	if strings.HasPrefix(ct, "image/") {
		return ct
	}
	return doc.MimeType
}

func podKeys(s *domain.Session) []domain.Attachment {
	var out []domain.Attachment
	for _, a := range s.Attachments {
		if a.Name == podPage {
			out = append(out, a)
		}
	}
	return out
}

// finishPOD merges the uploaded pages into one POD and links it on the row.
func finishPOD(t *turn) (domain.State, error) {
	pages := podKeys(t.s)
	if len(pages) == 0 {
		return "", invalid("Upload at least one POD page first.")
	}
	ent, err := t.entity()
	if err != nil {
		return "", err
	}
	docs := make([][]byte, 0, len(pages))
	for _, a := range pages {
		data, err := t.attachment(a.Key)
		if err != nil {
			return "", err
		}
		if a.MimeType != "application/pdf" {
			if data, err = render.ImageToPDF(data, a.MimeType); err != nil {
				return "", newError(ErrorInternal, "Could not convert a POD photo", err)
			}
		}
		docs = append(docs, data)
	}
	pod, err := render.Merge(docs...)
	if err != nil {
		return "", newError(ErrorInternal, "Could not merge the POD pages", err)
	}

	anchor := intField(t.field("anchor"))
	row, err := t.e.Ledger.ReadRow(t.ctx, ent.Name, anchor)
	if err != nil {
		return "", classify(fmt.Sprintf("Could not read %s row %d", ent.Name, anchor), err)
	}
	if err := t.checkpoint(); err != nil {
		return "", err
	}
	link, err := t.e.Blobs.Upload(t.ctx, fileName("POD "+row.LoadNumber+".pdf"), t.e.folders.Documents, pod)
	if err != nil {
		return "", classify("POD upload failed", err)
	}
	if err := t.checkpoint(); err != nil {
		return "", err
	}
	if err := t.e.Ledger.WriteCell(t.ctx, ent.Name, anchor, ledger.ColPOD, link); err != nil {
		return "", classify("POD uploaded to "+link+" but the ledger link could not be written", err)
	}
	t.set("pod_link", link)
	return invoiceGenerate, nil
}

// lumper returns the invoice note and the amount added to the balance.
func lumper(row domain.LedgerRow) (string, decimal.Decimal) {
	switch {
	case row.LumperCarrier.IsPositive():
		return "(Company paid, receipt attached) " + money(row.LumperCarrier), row.LumperCarrier
	case row.LumperBroker.IsPositive():
		return "(Broker paid, receipt attached) " + money(row.LumperBroker), decimal.Zero
	default:
		return "", decimal.Zero
	}
}

func generateInvoice(t *turn) (domain.State, error) {
	ent, err := t.entity()
	if err != nil {
		return "", err
	}
	anchor := intField(t.field("anchor"))
	row, err := t.e.Ledger.ReadRow(t.ctx, ent.Name, anchor)
	if err != nil {
		return "", classify(fmt.Sprintf("Could not read %s row %d", ent.Name, anchor), err)
	}

	number := row.InvoiceNumber
	if number == "" {
		number = row.LoadNumber
	}
	note, extra := lumper(row)
	inv := domain.Invoice{
		Company:      t.e.Roster.Company,
		Number:       number,
		Date:         t.e.now().Format(dateLayout),
		Driver:       ent.Name,
		LoadNumber:   row.LoadNumber,
		BillTo:       row.Broker,
		Pickup:       row.Origin,
		PickupDate:   row.PickupDate,
		Delivery:     row.Destination,
		DeliveryDate: row.DeliveryDate,
		LumperNote:   note,
		BalanceDue:   row.Gross.Add(extra),
	}
	if err := t.checkpoint(); err != nil {
		return "", err
	}
	cust, err := t.e.Customers.Customer(t.ctx, row.Broker)
	switch {
	case err != nil:
		t.logger.WarnContext(t.ctx, "customer lookup failed", "broker", row.Broker, "err", err)
	case cust != nil:
		inv.BillToAddress = cust.Address
	}

	page, err := render.Invoice(inv)
	if err != nil {
		return "", newError(ErrorInternal, "Could not render the invoice", err)
	}
	docs := [][]byte{page}
	for _, att := range []struct{ what, link string }{
		{"rate confirmation", row.RateConLink},
		{"POD", t.field("pod_link")},
	} {
		if att.link == "" {
			t.logger.WarnContext(t.ctx, "invoice attachment missing", "what", att.what, "row", anchor)
			continue
		}
		if err := t.checkpoint(); err != nil {
			return "", err
		}
		data, err := t.e.Blobs.Download(t.ctx, att.link)
		if err != nil {
			return "", classify("Could not download the "+att.what, err)
		}
		if !render.IsPDF(data) {
			if data, err = render.ImageToPDF(data, http.DetectContentType(data)); err != nil {
				return "", newError(ErrorInternal, "The "+att.what+" is neither a PDF nor a photo", err)
			}
		}
		docs = append(docs, data)
	}
	merged, err := render.Merge(docs...)
	if err != nil {
		return "", newError(ErrorInternal, "Could not merge the invoice documents", err)
	}

	name := fileName(fmt.Sprintf("Invoice %s %s.pdf", number, row.LoadNumber))
	if err := t.checkpoint(); err != nil {
		return "", err
	}
	link, err := t.e.Blobs.Upload(t.ctx, name, t.e.folders.Documents, merged)
	if err != nil {
		return "", classify("Invoice upload failed, the ledger was not changed", err)
	}
	if err := t.checkpoint(); err != nil {
		return "", err
	}
	if err := t.e.Ledger.WriteCell(t.ctx, ent.Name, anchor, ledger.ColInvoice, link); err != nil {
		return "", classify("Invoice uploaded to "+link+" but the ledger link could not be written", err)
	}

	t.say(domain.Reply{
		Text: fmt.Sprintf("Invoice #%s for load %s (%s): balance due %s\n%s",
			number, row.LoadNumber, row.Broker, money(inv.BalanceDue), link),
		File: &domain.File{Name: name, Data: merged},
	})

	if row.AccountingEmail == "" {
		t.sayf("No accounting email on file for %s; the invoice was not emailed.", row.Broker)
		return domain.StateDone, nil
	}
	key, err := t.keep("invoice", "application/pdf", merged)
	if err != nil {
		return "", err
	}
	t.set("invoice_key", key)
	t.set("invoice_name", name)
	t.set("load", row.LoadNumber)
	t.set("mail_to", row.AccountingEmail)
	t.set("mail_cc", strings.Join(row.BrokerEmails, ", "))
	return invoiceConfirm, nil
}

func invoiceSubject(load string, c domain.Company) string {
	return fmt.Sprintf("POD/Invoice Order %s Carrier %s MC %s", load, c.Name, c.MCNumber)
}

func confirmSendInput(t *turn) (domain.State, error) {
	switch strings.ToLower(t.text()) {
	case "skip", "no":
		t.say(domain.Text("Invoice not emailed."))
		return domain.StateDone, nil
	case "send", "yes":
	default:
		return "", invalid("Choose Send or Skip.")
	}
	data, err := t.attachment(t.field("invoice_key"))
	if err != nil {
		return "", err
	}
	company := t.e.Roster.Company
	msg := mailer.Message{
		To:      []string{t.field("mail_to")},
		Cc:      splitList(t.field("mail_cc")),
		Subject: invoiceSubject(t.field("load"), company),
		Body: fmt.Sprintf("Hello,\n\nPlease find attached the invoice and POD for order %s.\n\nThank you,\n%s",
			t.field("load"), company.Name),
		Attachments: []mailer.Attachment{{Name: t.field("invoice_name"), ContentType: "application/pdf", Data: data}},
	}
	if err := t.checkpoint(); err != nil {
		return "", err
	}
	if _, err := t.e.Mailer.Send(t.ctx, msg); err != nil {
		return "", classify("Could not email the invoice to "+t.field("mail_to"), err)
	}
	t.sayf("Invoice emailed to %s.", t.field("mail_to"))
	return domain.StateDone, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
