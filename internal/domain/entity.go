package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Classification tags how an entity is settled.
type Classification string

const (
	CompanyDriver Classification = "company_driver"
	OwnerOperator Classification = "owner_operator"
)

// ParseClassification accepts the roster spelling of a classification.
func ParseClassification(s string) (Classification, error) {
	switch Classification(strings.ToLower(strings.TrimSpace(s))) {
	case CompanyDriver:
		return CompanyDriver, nil
	case OwnerOperator:
		return OwnerOperator, nil
	default:
		return "", fmt.Errorf("domain: unknown classification %q", s)
	}
}

// Entity is a driver/contractor tab in the ledger together with its payee metadata.
type Entity struct {
	Name              string
	Classification    Classification
	Payee             string
	StartRow          int
	CommissionPercent decimal.Decimal
	Signature         string
	WeeklyInsurance   decimal.Decimal
	WeeklyTrailer     decimal.Decimal
	TrailerPayments   int
}

// Company describes the carrier issuing statements and invoices.
type Company struct {
	Name           string
	MCNumber       string
	MailingAddress []string
	PaymentInfo    []LabeledValue
}

// LabeledValue is one "label: value" pair printed on documents.
type LabeledValue struct {
	Label string
	Value string
}

// Roster is the entity classification table plus carrier-level metadata.
type Roster struct {
	Company             Company
	Dispatcher          string
	DefaultOrigin       string
	EmailLookupEntities []string
	Entities            []Entity
}

// Entity looks up an entity by tab name.
func (r *Roster) Entity(name string) (Entity, bool) {
	if r == nil {
		return Entity{}, false
	}
	for _, e := range r.Entities {
		if e.Name == name {
			return e, true
		}
	}
	return Entity{}, false
}

// Names lists entity tab names in roster order.
func (r *Roster) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.Entities))
	for _, e := range r.Entities {
		names = append(names, e.Name)
	}
	return names
}
