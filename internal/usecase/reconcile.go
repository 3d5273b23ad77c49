package usecase

import (
	"strings"

	"github.com/shopspring/decimal"

	"dispatch-bot/internal/domain"
	"dispatch-bot/internal/ledger"
)

var hundred = decimal.NewFromInt(100)

// buildStatement totals the loads of one period. A row with a blank commission
// cell uses the entity's rate; an explicit or unparsable cell is taken as decoded.
func buildStatement(company string, ent domain.Entity, rows []domain.LedgerRow) domain.Statement {
	st := domain.Statement{
		Company:         company,
		Entity:          ent.Name,
		Payee:           ent.Payee,
		TotalGross:      decimal.Zero,
		TotalMiles:      decimal.Zero,
		TotalCommission: decimal.Zero,
		TotalNet:        decimal.Zero,
	}
	if st.Payee == "" {
		st.Payee = ent.Name
	}
	if len(rows) > 0 {
		st.PeriodStart = rows[0].PickupDate
		st.PeriodEnd = rows[len(rows)-1].DeliveryDate
		if st.PeriodEnd == "" {
			st.PeriodEnd = rows[len(rows)-1].PickupDate
		}
	}
	for _, r := range rows {
		rate := r.CommissionRate
		if !r.HasCommission {
			rate = ent.CommissionPercent
		}
		commission := r.Gross.Mul(rate).Div(hundred).Round(2)
		net := r.Gross.Sub(commission)
		st.Lines = append(st.Lines, domain.StatementLine{
			PickupDate:   r.PickupDate,
			DeliveryDate: r.DeliveryDate,
			Origin:       r.Origin,
			Destination:  r.Destination,
			Broker:       r.Broker,
			Gross:        r.Gross,
			Miles:        r.Miles,
			Commission:   commission,
			Net:          net,
		})
		st.TotalGross = st.TotalGross.Add(r.Gross)
		st.TotalMiles = st.TotalMiles.Add(r.Miles)
		st.TotalCommission = st.TotalCommission.Add(commission)
		st.TotalNet = st.TotalNet.Add(net)
	}
	return st
}

// scanDeductions walks n positions backward from the last row over the
// amount/label columns. Every position counts against n whether or not it holds
// a usable entry; the returned scanned count is always min(n, len(rows)).
func scanDeductions(rows []domain.LedgerRow, n int) (entries []domain.DeductionEntry, scanned int) {
	for i := 0; i < n && i < len(rows); i++ {
		r := rows[len(rows)-1-i]
		scanned++
		label := strings.TrimSpace(r.DeductionLabel)
		if strings.TrimSpace(r.DeductionAmount) == "" || label == "" {
			continue
		}
		amount, ok := ledger.ParseAmount(r.DeductionAmount)
		if !ok || amount.IsZero() {
			continue
		}
		entries = append(entries, domain.DeductionEntry{Label: label, Amount: amount})
	}
	return entries, scanned
}

func settle(st *domain.Statement) {
	st.Settlement = st.TotalNet.Sub(st.TotalDeductions())
}
