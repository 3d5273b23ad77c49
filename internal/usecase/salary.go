package usecase

import (
	"fmt"
	"strings"
	"time"

	"dispatch-bot/internal/domain"
	"dispatch-bot/internal/ledger"
	"dispatch-bot/internal/render"
)

const (
	salaryEntity    domain.State = "salary.entity"
	salaryAnchor    domain.State = "salary.anchor"
	salaryInsurance domain.State = "salary.insurance"
	salaryFuel      domain.State = "salary.fuel"
	salaryReconcile domain.State = "salary.reconcile"
)

const noInsuranceMarker = "no insurance"

// salaryGraph: company drivers go straight from the anchor row to
// reconciliation; owner-operators first supply the insurance period end and the
// fuel statement.
func salaryGraph() *graph {
	return &graph{
		kind:    domain.WorkflowSalary,
		title:   "Count salary",
		command: "salary",
		initial: salaryEntity,
		nodes: map[domain.State]node{
			salaryEntity: chooseEntity("Whose salary?", nil, func(*turn, domain.Entity) (domain.State, error) {
				return salaryAnchor, nil
			}),
			salaryAnchor: {
				prompt: func(t *turn) (domain.Reply, error) {
					return domain.Text(fmt.Sprintf("Enter the first row of %s's settlement period:", t.field("entity"))), nil
				},
				input: salaryAnchorInput,
			},
			salaryInsurance: {
				prompt: insurancePrompt,
				input:  insuranceInput,
			},
			salaryFuel: {
				prompt: ask("Upload the fuel statement (PDF), or send /skip if there was no fuel this period."),
				input:  fuelInput,
			},
			salaryReconcile: {
				run: reconcileSalary,
			},
		},
	}
}

func salaryAnchorInput(t *turn) (domain.State, error) {
	ent, err := t.entity()
	if err != nil {
		return "", err
	}
	row, err := validRow(t.text())
	if err != nil {
		return "", err
	}
	if row < ent.StartRow {
		return "", invalid("Row %d is above %s's first ledger row %d.", row, ent.Name, ent.StartRow)
	}
	if err := t.checkpoint(); err != nil {
		return "", err
	}
	end, err := t.e.Ledger.FindPeriodEnd(t.ctx, ent.Name, row)
	if err != nil {
		return "", classify(fmt.Sprintf("Could not scan %s's ledger from row %d", ent.Name, row), err)
	}
	if end == row {
		return "", invalid("Row %d of %s has no pickup date. Enter the first row of the period.", row, ent.Name)
	}
	t.set("anchor", itoa(row))
	t.set("end_row", itoa(end))

	switch ent.Classification {
	case domain.OwnerOperator:
		return salaryInsurance, nil
	default:
		return salaryReconcile, nil
	}
}

func isMarker(s string) bool {
	_, _, ok := parseMarker(s)
	return ok
}

func insurancePrompt(t *turn) (domain.Reply, error) {
	ent, err := t.entity()
	if err != nil {
		return domain.Reply{}, err
	}
	if err := t.checkpoint(); err != nil {
		return domain.Reply{}, err
	}
	marker, err := t.e.Ledger.LastMarker(t.ctx, ent.Name, ledger.ColInsurance, intField(t.field("anchor")), isMarker)
	if err != nil {
		return domain.Reply{}, classify("Could not read the previous insurance period of "+ent.Name, err)
	}
	if _, end, ok := parseMarker(marker); ok {
		t.set("prev_insurance", end.Format(dateLayout))
		return domain.Text(fmt.Sprintf("Previous insurance period ended %s. Enter the new end date (MM/DD/YYYY):",
			end.Format(dateLayout))), nil
	}
	t.set("prev_insurance", "")
	return domain.Text("No previous insurance period found. Enter the period as MM/DD/YYYY-MM/DD/YYYY:"), nil
}

func insuranceInput(t *turn) (domain.State, error) {
	answer := t.text()
	var start, end time.Time
	if s, e, ok := parseMarker(answer); ok {
		start, end = s, e
	} else {
		prev := t.field("prev_insurance")
		if prev == "" {
			return "", invalid("Enter the period as MM/DD/YYYY-MM/DD/YYYY.")
		}
		var err error
		if end, err = ParseDate(answer); err != nil {
			return "", err
		}
		start, _ = ParseDate(prev)
	}
	weeks, err := WeeksBilled(start, end)
	if err != nil {
		return "", err
	}
	t.set("insurance", formatMarker(start, end))
	t.set("weeks", itoa(weeks))
	return salaryFuel, nil
}

func fuelInput(t *turn) (domain.State, error) {
	if t.command("skip") {
		return salaryReconcile, nil
	}
	var totals render.FuelTotals
	data, err := t.upload(func(doc *domain.Document, data []byte) error {
		if !render.IsPDF(data) {
			return invalid("%s is not a PDF. Upload the fuel statement PDF.", displayName(doc))
		}
		lines, err := render.ExtractLines(data, 1)
		if err != nil {
			return invalid("Could not read %s: %v", displayName(doc), err)
		}
		if totals, err = render.ParseFuelTotals(lines); err != nil {
			return invalid("%s has no Totals line on its first page. Upload the fuel statement.", displayName(doc))
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	key, err := t.keep("fuel statement", "application/pdf", data)
	if err != nil {
		return "", err
	}
	t.set("fuel_key", key)
	t.set("fuel_total", totals.AfterDiscount.StringFixed(2))
	t.set("fuel_discount", totals.Discount.StringFixed(2))
	return salaryReconcile, nil
}

func trailerCounter(entity string) string {
	return "trailer/" + entity
}

func reconcileSalary(t *turn) (domain.State, error) {
	ent, err := t.entity()
	if err != nil {
		return "", err
	}
	anchor, end := intField(t.field("anchor")), intField(t.field("end_row"))
	rows, err := t.e.Ledger.ReadRows(t.ctx, ent.Name, anchor, end)
	if err != nil {
		return "", classify(fmt.Sprintf("Could not read %s rows %d-%d", ent.Name, anchor, end-1), err)
	}

	st := buildStatement(t.e.Roster.Company.Name, ent, rows)
	st.FooterNote = strings.ReplaceAll(t.e.Roster.Dispatcher, "\n", "  ")
	st.Deductions, _ = scanDeductions(rows, end-anchor)

	marker := noInsuranceMarker
	advanceTrailer := false
	if ent.Classification == domain.OwnerOperator {
		weeks := intField(t.field("weeks"))
		marker = t.field("insurance")
		periodic, advance, err := t.periodicDeductions(ent, weeks, marker)
		if err != nil {
			return "", err
		}
		st.Deductions = append(periodic, st.Deductions...)
		advanceTrailer = advance

		if fuel := decimalField(t.field("fuel_total")); fuel.IsPositive() {
			st.Deductions = append(st.Deductions, domain.DeductionEntry{Label: "Fuel", Amount: fuel, Note: "after discount"})
		}
		if discount := decimalField(t.field("fuel_discount")); discount.IsPositive() {
			st.Credits = append(st.Credits, domain.DeductionEntry{Label: "Fuel discount", Amount: discount, Note: "already applied"})
		}
	}
	settle(&st)

	doc, err := render.Statement(st)
	if err != nil {
		return "", newError(ErrorInternal, "Could not render the statement", err)
	}
	if key := t.field("fuel_key"); key != "" {
		fuel, err := t.attachment(key)
		if err != nil {
			return "", err
		}
		if doc, err = render.Merge(doc, fuel); err != nil {
			return "", newError(ErrorInternal, "Could not attach the fuel statement", err)
		}
	}

	name := fileName(fmt.Sprintf("%s %s-%s.pdf", ent.Name, st.PeriodStart, st.PeriodEnd))
	if err := t.checkpoint(); err != nil {
		return "", err
	}
	link, err := t.e.Blobs.Upload(t.ctx, name, t.e.folders.Statements, doc)
	if err != nil {
		return "", classify("Statement upload failed, the ledger was not changed", err)
	}
	if err := t.checkpoint(); err != nil {
		return "", err
	}
	if err := t.e.Ledger.WriteCell(t.ctx, ent.Name, anchor, ledger.ColStatement, link); err != nil {
		return "", classify("Statement uploaded to "+link+" but the ledger link could not be written", err)
	}
	if err := t.e.Ledger.WriteCell(t.ctx, ent.Name, anchor, ledger.ColInsurance, marker); err != nil {
		return "", classify("Statement uploaded to "+link+" but the period marker could not be written", err)
	}
	if advanceTrailer {
		if _, err := t.e.Counters.AdvanceCounter(t.ctx, trailerCounter(ent.Name)); err != nil {
			t.logger.ErrorContext(t.ctx, "trailer counter advance failed", "entity", ent.Name, "err", err)
			t.sayf("Warning: the trailer payment counter for %s was not advanced.", ent.Name)
		}
	}

	t.say(domain.Reply{
		Text: fmt.Sprintf("Statement for %s (%s - %s)\n%s, net %s\nDeductions: %s\nSettlement: %s\n%s",
			ent.Name, st.PeriodStart, st.PeriodEnd,
			plural(len(st.Lines), "load"), money(st.TotalNet), money(st.TotalDeductions()), money(st.Settlement), link),
		File: &domain.File{Name: name, Data: doc},
	})
	return domain.StateDone, nil
}

// periodicDeductions are the owner-operator weekly charges for the billed weeks.
// advance reports whether a lease-purchase installment was charged.
func (t *turn) periodicDeductions(ent domain.Entity, weeks int, marker string) (entries []domain.DeductionEntry, advance bool, err error) {
	w := decimalFromInt(weeks)
	if ins := ent.WeeklyInsurance.Mul(w); ins.IsPositive() {
		entries = append(entries, domain.DeductionEntry{
			Label:  "Insurance",
			Amount: ins,
			Note:   fmt.Sprintf("%s, %s", marker, plural(weeks, "week")),
		})
	}
	trailer := ent.WeeklyTrailer.Mul(w)
	if !trailer.IsPositive() {
		return entries, false, nil
	}
	note := plural(weeks, "week")
	if ent.TrailerPayments > 0 {
		if err := t.checkpoint(); err != nil {
			return nil, false, err
		}
		paid, err := t.e.Counters.Counter(t.ctx, trailerCounter(ent.Name))
		if err != nil {
			return nil, false, classify("Could not read the trailer payment counter of "+ent.Name, err)
		}
		next := paid + 1
		if next > ent.TrailerPayments {
			return entries, false, nil
		}
		note = fmt.Sprintf("lease-purchase payment %d out of %d", next, ent.TrailerPayments)
		advance = true
	}
	entries = append(entries, domain.DeductionEntry{Label: "Trailer", Amount: trailer, Note: note})
	return entries, advance, nil
}

var fileNameReplacer = strings.NewReplacer("/", ".", "\\", ".", ":", ".", "\"", "", "'", "")

func fileName(s string) string {
	return fileNameReplacer.Replace(s)
}
