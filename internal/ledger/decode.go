package ledger

import (
	"strings"

	"github.com/shopspring/decimal"

	"dispatch-bot/internal/domain"
)

// DecodeRow maps a raw A..AA tuple onto a LedgerRow. Non-numeric money, mileage and
// rate cells decode as zero and are listed in ParseRecoveredAt.
func DecodeRow(entity string, row int, raw []string) domain.LedgerRow {
	at := func(col string) string {
		idx, _ := ColumnIndex(col)
		return cellAt(raw, idx)
	}
	r := domain.LedgerRow{
		Entity:          entity,
		Row:             row,
		PickupDate:      at(ColPickupDate),
		PickupTime:      at(ColPickupTime),
		DeliveryDate:    at(ColDeliveryDate),
		DeliveryTime:    at(ColDeliveryTime),
		Origin:          at(ColOrigin),
		Destination:     at(ColDestination),
		Broker:          at(ColBroker),
		LoadNumber:      at(ColLoadNumber),
		RateConLink:     at(ColRateCon),
		RatePerMile:     at(ColRatePerMile),
		Notes:           at(ColNotes),
		PODLink:         at(ColPOD),
		BrokerEmails:    SplitEmails(at(ColBrokerEmails)),
		InvoiceLink:     at(ColInvoice),
		InvoiceNumber:   at(ColInvoiceNumber),
		AccountingEmail: at(ColAccountingEmail),
		EmptyTime:       at(ColEmptyTime),
		StatementLink:   at(ColStatement),
		InsurancePeriod: at(ColInsurance),
		DeductionAmount: at(ColDeductionAmount),
		DeductionLabel:  at(ColDeductionLabel),
	}
	num := func(col string) decimal.Decimal {
		d, ok := ParseAmount(at(col))
		if !ok {
			r.ParseRecoveredAt = append(r.ParseRecoveredAt, col)
		}
		return d
	}
	r.Gross = num(ColGross)
	r.Miles = num(ColMiles)
	r.CommissionRate = num(ColCommission)
	r.HasCommission = at(ColCommission) != ""
	r.LumperCarrier = num(ColLumperCarrier)
	r.LumperBroker = num(ColLumperBroker)
	return r
}

// ParseAmount parses a ledger money/number cell. Empty cells are zero and ok;
// anything else that does not parse is zero and not ok.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, true
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "", "%", "").Replace(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// SplitEmails splits the broker e-mail cell, which may use commas, semicolons or spaces.
func SplitEmails(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\n'
	})
	if len(fields) == 0 {
		return nil
	}
	return fields
}
