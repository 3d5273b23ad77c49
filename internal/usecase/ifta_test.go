package usecase

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"dispatch-bot/internal/domain"
)

type recordingNotifier struct {
	replies []domain.Reply
}

func (n *recordingNotifier) Notify(_ context.Context, _ string, r domain.Reply) error {
	n.replies = append(n.replies, r)
	return nil
}

func TestQuarterLegs(t *testing.T) {
	rows := []domain.LedgerRow{
		{PickupDate: "07/05/2023", Origin: "Chicago, IL", Destination: "Gary, IN"},
		{PickupDate: "07/09/2023", Origin: "Gary, IN", Destination: "Detroit, MI; Toledo, OH"},
		{PickupDate: "07/12/2023", Origin: "Columbus, OH", Destination: "Pittsburgh, PA"},
		{PickupDate: "10/02/2023", Origin: "Pittsburgh, PA", Destination: "Boston, MA"},
		{PickupDate: "07/20/2023", Origin: "Boston, MA", Destination: "Albany, NY"},
	}
	inQ3 := func(r domain.LedgerRow) bool {
		d, err := ParseDate(r.PickupDate)
		return err == nil && d.Month() >= 7 && d.Month() <= 9
	}
	require.Equal(t, []leg{
		{"Chicago, IL", "Gary, IN"},
		{"Gary, IN", "Detroit, MI"},
		{"Detroit, MI", "Toledo, OH"},
		{"Toledo, OH", "Columbus, OH"},
		{"Columbus, OH", "Pittsburgh, PA"},
		{"Boston, MA", "Albany, NY"},
	}, quarterLegs(rows, inQ3))
}

func seedIfta(h *harness) {
	h.sheet.SetRow("CompanyA", 3, "06/30/2023", "", "07/01/2023", "", "Milwaukee, WI", "Chicago, IL")
	h.sheet.SetRow("CompanyA", 4, "07/05/2023", "", "07/06/2023", "", "Chicago, IL", "Gary, IN")
	h.sheet.SetRow("CompanyA", 5, "08/01/2023", "", "08/02/2023", "", "Gary, IN", "Detroit, MI; Toledo, OH")
	h.sheet.SetRow("CompanyA", 6, "10/01/2023", "", "10/02/2023", "", "Toledo, OH", "Erie, PA")
	h.router.states["Chicago, IL|Gary, IN"] = map[string]decimal.Decimal{"IL": dec("20.4"), "IN": dec("9.6")}
	h.router.states["Gary, IN|Detroit, MI"] = map[string]decimal.Decimal{"IN": dec("40"), "MI": dec("200")}
}

func TestIfta_MileageByState(t *testing.T) {
	h := newHarness(t)
	seedIfta(h)

	require.Equal(t, "IFTA report:", lastText(h.command("ifta")))
	require.Equal(t, "Whose mileage?", lastText(h.choose("mileage")))
	require.Contains(t, lastText(h.choose("CompanyA")), "Which quarter?")

	replies := h.choose("q3")
	require.Len(t, replies, 1)
	require.Equal(t, "IFTA miles for CompanyA, Q3 2023\nMI: 200\nIN: 50\nIL: 20\nTotal: 270\n1 leg without mileage.", replies[0].Text)
	require.Equal(t, []string{"Chicago, IL|Gary, IN", "Gary, IN|Detroit, MI", "Detroit, MI|Toledo, OH"}, h.router.calls)
	require.Nil(t, h.session())
}

func TestIfta_ProgressEveryFiveLegs(t *testing.T) {
	notifier := &recordingNotifier{}
	h := newHarness(t, WithNotifier(notifier))
	cities := []string{"A, IL", "B, IL", "C, IL", "D, IL", "E, IL", "F, IL", "G, IL"}
	for i := 0; i+1 < len(cities); i++ {
		h.sheet.SetRow("CompanyA", 3+i, "07/10/2023", "", "", "", cities[i], cities[i+1])
		h.router.states[cities[i]+"|"+cities[i+1]] = map[string]decimal.Decimal{"IL": dec("10")}
	}

	h.command("ifta")
	h.choose("mileage")
	h.choose("CompanyA")
	replies := h.choose("Q3")

	require.Len(t, notifier.replies, 1)
	require.Equal(t, "Processed 5 of 6 legs...", notifier.replies[0].Text)
	require.Equal(t, "IFTA miles for CompanyA, Q3 2023\nIL: 60\nTotal: 60", lastText(replies))
}

func TestIfta_EmptyQuarter(t *testing.T) {
	h := newHarness(t)
	seedIfta(h)
	h.command("ifta")
	h.choose("mileage")
	h.choose("CompanyA")

	replies := h.choose("Q1 2022")
	require.Equal(t, "CompanyA has no loads in Q1 2022.", lastText(replies))
	require.Empty(t, h.router.calls)
}

func TestIfta_RejectsBadQuarter(t *testing.T) {
	h := newHarness(t)
	h.command("ifta")
	h.choose("mileage")
	h.choose("CompanyA")

	replies := h.text("Q7")
	require.Contains(t, lastText(replies), "is not a quarter")
	require.Equal(t, iftaQuarter, h.state())
}

func TestIfta_FuelRejectsNonPDF(t *testing.T) {
	h := newHarness(t)
	h.command("ifta")
	require.Contains(t, lastText(h.choose("fuel")), "fuel statement")

	replies := h.upload("fuel.csv", []byte("IL,100"))
	require.Contains(t, lastText(replies), "fuel.csv is not a PDF")
	require.Equal(t, iftaFuelDoc, h.state())
}

func TestStateMilesReport(t *testing.T) {
	got := stateMilesReport("CompanyA", "Q2 2024", map[string]decimal.Decimal{
		"TX": dec("100.4"),
		"OK": dec("100.2"),
		"AR": dec("300"),
	}, 2)
	require.Equal(t, "IFTA miles for CompanyA, Q2 2024\nAR: 300\nOK: 100\nTX: 100\nTotal: 501\n2 legs without mileage.", got)
}
