package domain

import "github.com/shopspring/decimal"

// LedgerRow is one load record of an entity tab, identified by (Entity, Row).
type LedgerRow struct {
	Entity           string
	Row              int
	PickupDate       string
	PickupTime       string
	DeliveryDate     string
	DeliveryTime     string
	Origin           string
	Destination      string
	Broker           string
	LoadNumber       string
	RateConLink      string
	Gross            decimal.Decimal
	Miles            decimal.Decimal
	RatePerMile      string
	Notes            string
	PODLink          string
	LumperCarrier    decimal.Decimal
	LumperBroker     decimal.Decimal
	BrokerEmails     []string
	InvoiceLink      string
	InvoiceNumber    string
	AccountingEmail  string
	CommissionRate   decimal.Decimal
	HasCommission    bool // the commission cell is not blank, even if it did not parse
	EmptyTime        string
	StatementLink    string
	InsurancePeriod  string
	DeductionAmount  string
	DeductionLabel   string
	ParseRecoveredAt []string
}

// DeductionEntry is a labeled adjustment against settlement. A positive amount is
// deducted, a negative amount is added.
type DeductionEntry struct {
	Label  string
	Amount decimal.Decimal
	Note   string
}

// StatementLine is one load of a settlement statement.
type StatementLine struct {
	PickupDate   string
	DeliveryDate string
	Origin       string
	Destination  string
	Broker       string
	Gross        decimal.Decimal
	Miles        decimal.Decimal
	Commission   decimal.Decimal
	Net          decimal.Decimal
}

// Statement is the derived settlement document for one entity period.
type Statement struct {
	Company         string
	Entity          string
	Payee           string
	PeriodStart     string
	PeriodEnd       string
	Lines           []StatementLine
	TotalGross      decimal.Decimal
	TotalMiles      decimal.Decimal
	TotalCommission decimal.Decimal
	TotalNet        decimal.Decimal
	Deductions      []DeductionEntry
	Credits         []DeductionEntry // shown for reference, not applied
	Settlement      decimal.Decimal
	FooterNote      string
}

// TotalDeductions sums every deduction amount with its sign.
func (s Statement) TotalDeductions() decimal.Decimal {
	total := decimal.Zero
	for _, d := range s.Deductions {
		total = total.Add(d.Amount)
	}
	return total
}

// Invoice is the derived document billed to a broker for one load.
type Invoice struct {
	Company       Company
	Number        string
	Date          string
	Driver        string
	LoadNumber    string
	BillTo        string
	BillToAddress string
	Pickup        string
	PickupDate    string
	Delivery      string
	DeliveryDate  string
	LumperNote    string
	BalanceDue    decimal.Decimal
}

// Customer is a broker's billing record, keyed by broker name.
type Customer struct {
	Broker          string
	Address         string
	AccountingEmail string
}
