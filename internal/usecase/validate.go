package usecase

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"dispatch-bot/internal/ledger"
)

const dateLayout = "01/02/2006"

// ParseDate accepts M/D/YYYY with or without leading zeros.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse("1/2/2006", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, invalid("%q is not a date. Use MM/DD/YYYY.", s)
	}
	return t, nil
}

func validDate(s string) (string, error) {
	t, err := ParseDate(s)
	if err != nil {
		return "", err
	}
	return t.Format(dateLayout), nil
}

var locationRe = regexp.MustCompile(`^([A-Za-z][A-Za-z .'\-]*?)\s*,\s*([A-Za-z]{2})$`)

// validLocation normalizes "City, ST" and ";"-separated multi-stop lists of them.
func validLocation(s string) (string, error) {
	parts := strings.Split(s, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		m := locationRe.FindStringSubmatch(p)
		if m == nil {
			return "", invalid("%q is not a location. Use City, ST (stops separated by ;).", p)
		}
		out = append(out, m[1]+", "+strings.ToUpper(m[2]))
	}
	return strings.Join(out, "; "), nil
}

var emailRe = regexp.MustCompile(`^[^@\s,;]+@[^@\s,;]+\.[A-Za-z]{2,}$`)

func validEmail(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !emailRe.MatchString(s) {
		return "", invalid("%q is not an email address.", s)
	}
	return strings.ToLower(s), nil
}

// validRow accepts a 1-based ledger row number.
func validRow(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 0, invalid("%q is not a row number. Enter a positive whole number.", s)
	}
	return n, nil
}

func validAmount(s string) (string, error) {
	d, ok := ledger.ParseAmount(s)
	if !ok || !d.IsPositive() {
		return "", invalid("%q is not an amount. Enter a positive number like 1850 or 1,850.00.", s)
	}
	return d.StringFixed(2), nil
}

func validText(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", invalid("This field cannot be empty.")
	}
	return s, nil
}

// optionalText maps "-" to an empty value.
func optionalText(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "-" {
		return "", nil
	}
	return s, nil
}

func decimalField(s string) decimal.Decimal {
	d, _ := ledger.ParseAmount(s)
	return d
}

func intField(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func yesNo(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y":
		return true, nil
	case "no", "n":
		return false, nil
	}
	return false, invalid("Answer yes or no.")
}

func itoa(n int) string { return strconv.Itoa(n) }

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

func decimalFromInt(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}
