package usecase

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"dispatch-bot/internal/domain"
	"dispatch-bot/internal/ledger"
	"dispatch-bot/internal/render"
)

const (
	iftaAction  domain.State = "ifta.action"
	iftaEntity  domain.State = "ifta.entity"
	iftaQuarter domain.State = "ifta.quarter"
	iftaCompute domain.State = "ifta.compute"
	iftaFuelDoc domain.State = "ifta.fuel_doc"
)

const iftaProgressEvery = 5

func iftaGraph() *graph {
	return &graph{
		kind:    domain.WorkflowIfta,
		title:   "IFTA",
		command: "ifta",
		initial: iftaAction,
		nodes: map[domain.State]node{
			iftaAction: {
				prompt: ask("IFTA report:", "Mileage", "Fuel"),
				input: func(t *turn) (domain.State, error) {
					switch strings.ToLower(t.text()) {
					case "mileage", "miles":
						return iftaEntity, nil
					case "fuel":
						return iftaFuelDoc, nil
					}
					return "", invalid("Choose Mileage or Fuel.")
				},
			},
			iftaEntity: chooseEntity("Whose mileage?", nil, func(*turn, domain.Entity) (domain.State, error) {
				return iftaQuarter, nil
			}),
			iftaQuarter: {
				prompt: ask("Which quarter? (add a year like \"Q3 2025\" for an earlier year)", "Q1", "Q2", "Q3", "Q4"),
				input: func(t *turn) (domain.State, error) {
					q, year, err := parseQuarter(t.text(), t.e.now())
					if err != nil {
						return "", err
					}
					t.set("quarter", itoa(q))
					t.set("year", itoa(year))
					return iftaCompute, nil
				},
			},
			iftaCompute: {
				run: computeStateMiles,
			},
			iftaFuelDoc: {
				prompt: ask("Upload the fuel statement (PDF)."),
				input:  iftaFuelInput,
			},
		},
	}
}

// leg is one driven stretch between two stops.
type leg struct {
	from, to string
}

// quarterLegs builds the loaded legs of every row plus the deadhead from each
// row's last delivery to the next row's first pickup. Rows outside the window
// contribute nothing, including deadhead into or out of the window.
func quarterLegs(rows []domain.LedgerRow, inWindow func(domain.LedgerRow) bool) []leg {
	var legs []leg
	var prevEnd string
	for _, r := range rows {
		if !inWindow(r) {
			prevEnd = ""
			continue
		}
		route := append(stops(r.Origin), stops(r.Destination)...)
		if len(route) == 0 {
			prevEnd = ""
			continue
		}
		if prevEnd != "" && !strings.EqualFold(prevEnd, route[0]) {
			legs = append(legs, leg{prevEnd, route[0]})
		}
		for i := 1; i < len(route); i++ {
			if !strings.EqualFold(route[i-1], route[i]) {
				legs = append(legs, leg{route[i-1], route[i]})
			}
		}
		prevEnd = route[len(route)-1]
	}
	return legs
}

func computeStateMiles(t *turn) (domain.State, error) {
	ent, err := t.entity()
	if err != nil {
		return "", err
	}
	q, year := intField(t.field("quarter")), intField(t.field("year"))
	after, before, err := QuarterWindow(q, year)
	if err != nil {
		return "", newError(ErrorInternal, "Bad quarter", err)
	}

	end, err := t.e.Ledger.FindAppendRow(t.ctx, ent.Name, ledger.ColPickupDate, true)
	if err != nil {
		return "", classify("Could not find the end of "+ent.Name+"'s ledger", err)
	}
	if err := t.checkpoint(); err != nil {
		return "", err
	}
	rows, err := t.e.Ledger.ReadRows(t.ctx, ent.Name, ent.StartRow, end)
	if err != nil {
		return "", classify(fmt.Sprintf("Could not read %s's loads", ent.Name), err)
	}

	legs := quarterLegs(rows, func(r domain.LedgerRow) bool {
		d, err := ParseDate(r.PickupDate)
		return err == nil && d.After(after) && d.Before(before)
	})
	label := fmt.Sprintf("Q%d %d", q, year)
	if len(legs) == 0 {
		t.sayf("%s has no loads in %s.", ent.Name, label)
		return domain.StateDone, nil
	}

	totals := map[string]decimal.Decimal{}
	missing := 0
	for i, l := range legs {
		if err := t.checkpoint(); err != nil {
			return "", err
		}
		miles, err := t.e.Router.StateMiles(t.ctx, l.from, l.to)
		if err != nil {
			t.logger.WarnContext(t.ctx, "state mileage failed", "from", l.from, "to", l.to, "err", err)
			missing++
		}
		for st, m := range miles {
			totals[st] = totals[st].Add(m)
		}
		if done := i + 1; done%iftaProgressEvery == 0 && done < len(legs) {
			t.progress(domain.Text(fmt.Sprintf("Processed %d of %d legs...", done, len(legs))))
		}
	}

	t.say(domain.Text(stateMilesReport(ent.Name, label, totals, missing)))
	return domain.StateDone, nil
}

func stateMilesReport(entity, quarter string, totals map[string]decimal.Decimal, missing int) string {
	type stateMiles struct {
		state string
		miles decimal.Decimal
	}
	list := make([]stateMiles, 0, len(totals))
	grand := decimal.Zero
	for st, m := range totals {
		list = append(list, stateMiles{st, m.Round(0)})
		grand = grand.Add(m)
	}
	sort.Slice(list, func(i, j int) bool {
		if c := list[i].miles.Cmp(list[j].miles); c != 0 {
			return c > 0
		}
		return list[i].state < list[j].state
	})

	var b strings.Builder
	fmt.Fprintf(&b, "IFTA miles for %s, %s\n", entity, quarter)
	for _, s := range list {
		fmt.Fprintf(&b, "%s: %s\n", s.state, s.miles.String())
	}
	fmt.Fprintf(&b, "Total: %s", grand.Round(0).String())
	if missing > 0 {
		fmt.Fprintf(&b, "\n%s without mileage.", plural(missing, "leg"))
	}
	return b.String()
}

func iftaFuelInput(t *turn) (domain.State, error) {
	var (
		byState []render.StateQuantity
		total   decimal.Decimal
	)
	_, err := t.upload(func(doc *domain.Document, data []byte) error {
		if !render.IsPDF(data) {
			return invalid("%s is not a PDF. Upload the fuel statement PDF.", displayName(doc))
		}
		lines, err := render.ExtractLines(data, 0)
		if err != nil {
			return invalid("Could not read %s: %v", displayName(doc), err)
		}
		byState, total = render.FuelByState(lines)
		if len(byState) == 0 {
			return invalid("%s has no fuel purchases I can read. Upload the fuel statement.", displayName(doc))
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("IFTA fuel by state\n")
	for _, s := range byState {
		fmt.Fprintf(&b, "%s: %s\n", s.State, s.Quantity.StringFixed(2))
	}
	fmt.Fprintf(&b, "Total: %s", total.StringFixed(2))
	t.say(domain.Text(b.String()))
	return domain.StateDone, nil
}
