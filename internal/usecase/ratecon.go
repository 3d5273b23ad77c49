package usecase

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"dispatch-bot/internal/domain"
	"dispatch-bot/internal/ledger"
	"dispatch-bot/internal/render"
)

const (
	rcAction     domain.State = "rc.action"
	rcViewEntity domain.State = "rc.view_entity"
	rcEntity     domain.State = "rc.entity"
	rcDocument   domain.State = "rc.document"
	rcSign       domain.State = "rc.sign"
	rcEmails     domain.State = "rc.emails"
	rcCommit     domain.State = "rc.commit"
	rcAccounting domain.State = "rc.accounting"
	rcBrokerInfo domain.State = "rc.broker_info"
)

// rcField is one entry of the fixed load field sequence.
type rcField struct {
	name     string
	prompt   string
	validate func(string) (string, error)
}

// rcFields precede the broker e-mail list and the empty time, which close the
// sequence.
var rcFields = []rcField{
	{"pickup_date", "Pickup date (MM/DD/YYYY):", validDate},
	{"pickup_time", "Pickup time or window (e.g. 08:00-14:00):", validText},
	{"delivery_date", "Delivery date (MM/DD/YYYY):", validDate},
	{"delivery_time", "Delivery time or window:", validText},
	{"origin", "Pickup location (City, ST; separate stops with ;):", validLocation},
	{"destination", "Delivery location (City, ST; separate stops with ;):", validLocation},
	{"broker", "Broker name:", validText},
	{"load_number", "Load / order number:", validText},
	{"gross", "Rate (gross $):", validAmount},
	{"temperature", "Temperature (- if dry):", optionalText},
	{"pu_number", "PU number (- if none):", optionalText},
	{"notes", "Notes (- if none):", optionalText},
}

const rcEmptyTime = "empty_time"

func rcFieldState(name string) domain.State {
	return domain.State("rc.field." + name)
}

func rateConGraph() *graph {
	g := &graph{
		kind:    domain.WorkflowRateConfirmation,
		title:   "Rate confirmation",
		command: "ratecon",
		initial: rcAction,
		nodes: map[domain.State]node{
			rcAction: {
				prompt: ask("Rate confirmation:", "Add new", "View current", "Refresh rows"),
				input: func(t *turn) (domain.State, error) {
					switch strings.ToLower(t.text()) {
					case "add new", "add":
						return rcEntity, nil
					case "view current", "view":
						return rcViewEntity, nil
					case "refresh rows", "refresh":
						return refreshRows(t)
					}
					return "", invalid("Choose Add new, View current or Refresh rows.")
				},
			},
			rcViewEntity: chooseEntity("Whose current load?", nil, viewCurrent),
			rcEntity: chooseEntity("Which driver takes the load?", nil, func(*turn, domain.Entity) (domain.State, error) {
				return rcDocument, nil
			}),
			rcDocument: {
				prompt: ask("Upload the rate confirmation (PDF)."),
				input:  rcDocumentInput,
			},
			rcSign: {
				prompt: ask("Sign the rate confirmation?", "Yes", "No"),
				input:  rcSignInput,
			},
			rcEmails: {
				prompt: ask("Broker e-mail addresses, one per message. Send /done when finished."),
				input:  rcEmailsInput,
			},
			rcFieldState(rcEmptyTime): {
				prompt: ask("Truck empty time (date and time the truck is free):"),
				input: func(t *turn) (domain.State, error) {
					v, err := validText(t.text())
					if err != nil {
						return "", err
					}
					t.set(rcEmptyTime, v)
					return rcCommit, nil
				},
			},
			rcCommit: {
				run: commitRateCon,
			},
			rcAccounting: {
				prompt: func(t *turn) (domain.Reply, error) {
					return domain.Text(fmt.Sprintf("No accounting e-mail found for %s. Enter it:", t.field("broker"))), nil
				},
				input: func(t *turn) (domain.State, error) {
					email, err := validEmail(t.text())
					if err != nil {
						return "", err
					}
					if err := t.checkpoint(); err != nil {
						return "", err
					}
					if err := t.e.Ledger.WriteCell(t.ctx, t.field("entity"), intField(t.field("row")), ledger.ColAccountingEmail, email); err != nil {
						return "", classify("Could not write the accounting e-mail", err)
					}
					t.set("accounting", email)
					return rcBrokerInfo, nil
				},
			},
			rcBrokerInfo: {
				prompt: func(t *turn) (domain.Reply, error) {
					return domain.Text(fmt.Sprintf("Enter %s's company info (billing address) for invoices:", t.field("broker"))), nil
				},
				input: func(t *turn) (domain.State, error) {
					info, err := validText(t.text())
					if err != nil {
						return "", err
					}
					if err := t.checkpoint(); err != nil {
						return "", err
					}
					err = t.e.Customers.SaveCustomer(t.ctx, domain.Customer{
						Broker:          t.field("broker"),
						Address:         info,
						AccountingEmail: t.field("accounting"),
					})
					if err != nil {
						return "", classify("Could not save the customer record", err)
					}
					t.sayf("Saved %s as a customer.", t.field("broker"))
					return domain.StateDone, nil
				},
			},
		},
	}
	for i, f := range rcFields {
		next := rcEmails
		if i+1 < len(rcFields) {
			next = rcFieldState(rcFields[i+1].name)
		}
		g.nodes[rcFieldState(f.name)] = collectField(f, next)
	}
	return g
}

func collectField(f rcField, next domain.State) node {
	return node{
		prompt: ask(f.prompt),
		input: func(t *turn) (domain.State, error) {
			v, err := f.validate(t.text())
			if err != nil {
				return "", err
			}
			t.set(f.name, v)
			return next, nil
		},
	}
}

func refreshRows(t *turn) (domain.State, error) {
	var b strings.Builder
	b.WriteString("Append rows:")
	for _, ent := range t.e.Roster.Entities {
		if err := t.checkpoint(); err != nil {
			return "", err
		}
		row, err := t.e.Ledger.FindAppendRow(t.ctx, ent.Name, ledger.ColPickupDate, true)
		if err != nil {
			return "", classify("Could not rescan "+ent.Name, err)
		}
		fmt.Fprintf(&b, "\n%s: %d", ent.Name, row)
	}
	t.say(domain.Text(b.String()))
	return domain.StateDone, nil
}

func viewCurrent(t *turn, ent domain.Entity) (domain.State, error) {
	if err := t.checkpoint(); err != nil {
		return "", err
	}
	next, err := t.e.Ledger.FindAppendRow(t.ctx, ent.Name, ledger.ColPickupDate, false)
	if err != nil {
		return "", classify("Could not find "+ent.Name+"'s current row", err)
	}
	if next <= ent.StartRow {
		t.sayf("%s has no loads yet.", ent.Name)
		return domain.StateDone, nil
	}
	row, err := t.e.Ledger.ReadRow(t.ctx, ent.Name, next-1)
	if err != nil {
		return "", classify(fmt.Sprintf("Could not read %s row %d", ent.Name, next-1), err)
	}
	summary := domain.Reply{Text: fmt.Sprintf(
		"%s, row %d\n%s -> %s\nPU: %s %s\nDEL: %s %s\nBroker: %s, load %s\nMiles: %s, gross %s, RPM %s\nNotes: %s",
		ent.Name, row.Row, row.Origin, row.Destination,
		row.PickupDate, row.PickupTime, row.DeliveryDate, row.DeliveryTime,
		row.Broker, row.LoadNumber,
		row.Miles.String(), money(row.Gross), row.RatePerMile, row.Notes,
	)}
	if row.RateConLink != "" {
		if err := t.checkpoint(); err != nil {
			return "", err
		}
		doc, err := t.e.Blobs.Download(t.ctx, row.RateConLink)
		if err != nil {
			t.logger.WarnContext(t.ctx, "rate confirmation download failed", "entity", ent.Name, "row", row.Row, "err", err)
			summary.Text += "\nRC: " + row.RateConLink
		} else {
			summary.File = &domain.File{Name: fileName("RC " + row.LoadNumber + ".pdf"), Data: doc}
		}
	}
	t.say(summary)
	return domain.StateDone, nil
}

func rcDocumentInput(t *turn) (domain.State, error) {
	data, err := t.upload(func(doc *domain.Document, data []byte) error {
		if !render.IsPDF(data) {
			return invalid("%s is not a PDF. Upload the rate confirmation PDF.", displayName(doc))
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	key, err := t.keep("rate confirmation", "application/pdf", data)
	if err != nil {
		return "", err
	}
	t.set("rc_key", key)
	return rcSign, nil
}

func rcSignInput(t *turn) (domain.State, error) {
	sign, err := yesNo(t.text())
	if err != nil {
		return "", err
	}
	first := rcFieldState(rcFields[0].name)
	if !sign {
		return first, nil
	}
	ent, err := t.entity()
	if err != nil {
		return "", err
	}
	doc, err := t.attachment(t.field("rc_key"))
	if err != nil {
		return "", err
	}
	signed, err := render.Stamp(doc, ent.Signature, t.e.Roster.Dispatcher)
	if err != nil {
		return "", newError(ErrorInternal, "Could not sign the rate confirmation", err)
	}
	if err := t.replace(t.field("rc_key"), "application/pdf", signed); err != nil {
		return "", err
	}
	t.set("signed", "yes")
	t.say(domain.Text("Signed."))
	return first, nil
}

func rcEmailsInput(t *turn) (domain.State, error) {
	if t.command("done") {
		return rcFieldState(rcEmptyTime), nil
	}
	email, err := validEmail(t.text())
	if err != nil {
		return "", err
	}
	list := splitList(t.field("emails"))
	for _, e := range list {
		if e == email {
			t.sayf("%s is already on the list. Send another or /done.", email)
			return rcEmails, nil
		}
	}
	list = append(list, email)
	t.set("emails", strings.Join(list, ", "))
	t.sayf("Added %s (%d total). Send another or /done.", email, len(list))
	return rcEmails, nil
}

// nextInvoiceNumber carries the previous row's invoice number forward.
func nextInvoiceNumber(prev string) int {
	n := intField(strings.TrimPrefix(strings.TrimSpace(prev), "#"))
	if n < 1 {
		return 1
	}
	return n + 1
}

func lastStop(s string) string {
	stops := strings.Split(s, ";")
	return strings.TrimSpace(stops[len(stops)-1])
}

func stops(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ";") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// loadMiles is deadhead from where the truck is plus the loaded legs. Legs the
// router cannot resolve count as zero and are reported as missing.
func (t *turn) loadMiles(from string, route []string) (decimal.Decimal, int, error) {
	total, missing := decimal.Zero, 0
	prev := from
	for _, stop := range route {
		if prev == "" || strings.EqualFold(prev, stop) {
			prev = stop
			continue
		}
		if err := t.checkpoint(); err != nil {
			return decimal.Zero, 0, err
		}
		miles, err := t.e.Router.Distance(t.ctx, prev, stop)
		if err != nil {
			t.logger.WarnContext(t.ctx, "distance lookup failed", "from", prev, "to", stop, "err", err)
			missing++
		} else {
			total = total.Add(miles)
		}
		prev = stop
	}
	return total, missing, nil
}

// accountingEmail looks the broker up in the lookup tabs, newest rows first,
// then in the saved customer records.
func (t *turn) accountingEmail(broker string) (string, error) {
	var pairs []ledger.ColumnPair
	for _, name := range t.e.Roster.EmailLookupEntities {
		pairs = append(pairs, ledger.ColumnPair{Entity: name, Key: ledger.ColBroker, Value: ledger.ColAccountingEmail})
	}
	if len(pairs) > 0 {
		if err := t.checkpoint(); err != nil {
			return "", err
		}
		cols, err := t.e.Ledger.BatchColumns(t.ctx, pairs)
		if err != nil {
			return "", classify("Could not search accounting e-mails", err)
		}
		for _, rows := range cols {
			for i := len(rows) - 1; i >= 0; i-- {
				if strings.EqualFold(rows[i][0], broker) && rows[i][1] != "" {
					return rows[i][1], nil
				}
			}
		}
	}
	if err := t.checkpoint(); err != nil {
		return "", err
	}
	cust, err := t.e.Customers.Customer(t.ctx, broker)
	if err != nil {
		t.logger.WarnContext(t.ctx, "customer lookup failed", "broker", broker, "err", err)
		return "", nil
	}
	if cust != nil {
		return cust.AccountingEmail, nil
	}
	return "", nil
}

func notesCell(t *turn) string {
	var parts []string
	if v := t.field("temperature"); v != "" {
		parts = append(parts, "Temp: "+v)
	}
	if v := t.field("pu_number"); v != "" {
		parts = append(parts, "PU#: "+v)
	}
	if v := t.field("notes"); v != "" {
		parts = append(parts, v)
	}
	return strings.Join(parts, "; ")
}

func commitRateCon(t *turn) (domain.State, error) {
	ent, err := t.entity()
	if err != nil {
		return "", err
	}
	row, err := t.e.Ledger.FindAppendRow(t.ctx, ent.Name, ledger.ColPickupDate, false)
	if err != nil {
		return "", classify("Could not find "+ent.Name+"'s next free row", err)
	}

	from := t.e.Roster.DefaultOrigin
	invoice := 1
	if row > ent.StartRow {
		prev, err := t.e.Ledger.ReadRow(t.ctx, ent.Name, row-1)
		if err != nil {
			return "", classify(fmt.Sprintf("Could not read %s row %d", ent.Name, row-1), err)
		}
		invoice = nextInvoiceNumber(prev.InvoiceNumber)
		if prev.Destination != "" {
			from = lastStop(prev.Destination)
		}
	}

	route := append(stops(t.field("origin")), stops(t.field("destination"))...)
	miles, missing, err := t.loadMiles(from, route)
	if err != nil {
		return "", err
	}
	gross := decimalField(t.field("gross"))
	rpm := ""
	if miles.IsPositive() {
		rpm = gross.Div(miles).StringFixed(2)
	}

	accounting, err := t.accountingEmail(t.field("broker"))
	if err != nil {
		return "", err
	}

	doc, err := t.attachment(t.field("rc_key"))
	if err != nil {
		return "", err
	}
	if err := t.checkpoint(); err != nil {
		return "", err
	}
	link, err := t.e.Blobs.Upload(t.ctx, fileName(fmt.Sprintf("RC %s %s.pdf", t.field("load_number"), ent.Name)), t.e.folders.Documents, doc)
	if err != nil {
		return "", classify("Rate confirmation upload failed, the ledger was not changed", err)
	}

	cells := []struct{ col, value string }{
		{ledger.ColPickupDate, t.field("pickup_date")},
		{ledger.ColPickupTime, t.field("pickup_time")},
		{ledger.ColDeliveryDate, t.field("delivery_date")},
		{ledger.ColDeliveryTime, t.field("delivery_time")},
		{ledger.ColOrigin, t.field("origin")},
		{ledger.ColDestination, t.field("destination")},
		{ledger.ColBroker, t.field("broker")},
		{ledger.ColLoadNumber, t.field("load_number")},
		{ledger.ColRateCon, link},
		{ledger.ColGross, t.field("gross")},
		{ledger.ColMiles, miles.String()},
		{ledger.ColRatePerMile, rpm},
		{ledger.ColNotes, notesCell(t)},
		{ledger.ColBrokerEmails, t.field("emails")},
		{ledger.ColInvoiceNumber, itoa(invoice)},
		{ledger.ColAccountingEmail, accounting},
		{ledger.ColCommission, ent.CommissionPercent.String()},
		{ledger.ColEmptyTime, t.field(rcEmptyTime)},
	}
	for _, c := range cells {
		if c.value == "" {
			continue
		}
		if err := t.checkpoint(); err != nil {
			return "", err
		}
		if err := t.e.Ledger.WriteCell(t.ctx, ent.Name, row, c.col, c.value); err != nil {
			return "", classify(fmt.Sprintf("Writing %s row %d stopped at column %s", ent.Name, row, c.col), err)
		}
	}
	t.e.Ledger.NoteAppended(t.ctx, ent.Name, ledger.ColPickupDate, row)
	if err := t.e.Ledger.Highlight(t.ctx, ent.Name, row); err != nil {
		t.logger.WarnContext(t.ctx, "row highlight failed", "entity", ent.Name, "row", row, "err", err)
	}

	summary := fmt.Sprintf("Load %s added to %s row %d.\nMiles: %s, RPM: %s, invoice #%d",
		t.field("load_number"), ent.Name, row, miles.String(), rpmOrDash(rpm), invoice)
	if missing > 0 {
		summary += fmt.Sprintf("\n%s without mileage; fill column K by hand.", plural(missing, "leg"))
	}
	t.say(domain.Reply{
		Text: summary,
		File: &domain.File{Name: fileName("RC " + t.field("load_number") + ".pdf"), Data: doc},
	})

	t.set("row", itoa(row))
	if accounting == "" {
		return rcAccounting, nil
	}
	return domain.StateDone, nil
}

func rpmOrDash(rpm string) string {
	if rpm == "" {
		return "-"
	}
	return rpm
}
