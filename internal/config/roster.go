package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"dispatch-bot/internal/domain"
)

type rosterFile struct {
	Company struct {
		Name           string   `yaml:"name"`
		MCNumber       string   `yaml:"mc_number"`
		MailingAddress []string `yaml:"mailing_address"`
		PaymentInfo    []struct {
			Label string `yaml:"label"`
			Value string `yaml:"value"`
		} `yaml:"payment_info"`
	} `yaml:"company"`
	Dispatcher          string        `yaml:"dispatcher"`
	DefaultOrigin       string        `yaml:"default_origin"`
	EmailLookupEntities []string      `yaml:"email_lookup_entities"`
	Entities            []entityEntry `yaml:"entities"`
}

type entityEntry struct {
	Name              string  `yaml:"name"`
	Classification    string  `yaml:"classification"`
	Payee             string  `yaml:"payee"`
	StartRow          int     `yaml:"start_row"`
	CommissionPercent float64 `yaml:"commission_percent"`
	Signature         string  `yaml:"signature"`
	WeeklyInsurance   float64 `yaml:"weekly_insurance"`
	WeeklyTrailer     float64 `yaml:"weekly_trailer"`
	TrailerPayments   int     `yaml:"trailer_payments"`
}

// ParseRoster decodes and validates a roster YAML payload.
func ParseRoster(data []byte) (*domain.Roster, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("config: roster payload is empty")
	}
	var f rosterFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: decode roster: %w", err)
	}
	if strings.TrimSpace(f.Company.Name) == "" {
		return nil, fmt.Errorf("config: roster company name is required")
	}
	if len(f.Entities) == 0 {
		return nil, fmt.Errorf("config: roster lists no entities")
	}

	r := &domain.Roster{
		Company: domain.Company{
			Name:           strings.TrimSpace(f.Company.Name),
			MCNumber:       strings.TrimSpace(f.Company.MCNumber),
			MailingAddress: f.Company.MailingAddress,
		},
		Dispatcher:          f.Dispatcher,
		DefaultOrigin:       strings.TrimSpace(f.DefaultOrigin),
		EmailLookupEntities: f.EmailLookupEntities,
	}
	for _, p := range f.Company.PaymentInfo {
		r.Company.PaymentInfo = append(r.Company.PaymentInfo, domain.LabeledValue{Label: p.Label, Value: p.Value})
	}
	seen := map[string]bool{}
	for i, e := range f.Entities {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return nil, fmt.Errorf("config: roster entity %d has no name", i)
		}
		if seen[name] {
			return nil, fmt.Errorf("config: roster entity %q listed twice", name)
		}
		seen[name] = true
		class, err := domain.ParseClassification(e.Classification)
		if err != nil {
			return nil, fmt.Errorf("config: roster entity %q: %w", name, err)
		}
		if e.StartRow < 1 {
			return nil, fmt.Errorf("config: roster entity %q: start_row must be positive", name)
		}
		r.Entities = append(r.Entities, domain.Entity{
			Name:              name,
			Classification:    class,
			Payee:             strings.TrimSpace(e.Payee),
			StartRow:          e.StartRow,
			CommissionPercent: decimal.NewFromFloat(e.CommissionPercent),
			Signature:         e.Signature,
			WeeklyInsurance:   decimal.NewFromFloat(e.WeeklyInsurance),
			WeeklyTrailer:     decimal.NewFromFloat(e.WeeklyTrailer),
			TrailerPayments:   e.TrailerPayments,
		})
	}
	for _, name := range r.EmailLookupEntities {
		if !seen[name] {
			return nil, fmt.Errorf("config: email lookup entity %q is not in the roster", name)
		}
	}
	return r, nil
}

// LoadRosterFile reads a roster from disk.
func LoadRosterFile(path string) (*domain.Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	r, err := ParseRoster(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return r, nil
}
