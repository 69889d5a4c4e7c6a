package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var zeroDecimal = map[string]bool{
	"BIF": true, "CLF": true, "DJF": true, "GNF": true, "ISK": true, "JPY": true,
	"KMF": true, "KRW": true, "PYG": true, "RWF": true, "UGX": true, "VND": true,
	"VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

var threeDecimal = map[string]bool{
	"BHD": true, "IQD": true, "JOD": true, "KWD": true, "LYD": true, "OMR": true, "TND": true,
}

// Exponent returns the number of minor-unit digits for an ISO 4217 currency.
func Exponent(currency string) int32 {
	c := strings.ToUpper(currency)
	switch {
	case zeroDecimal[c]:
		return 0
	case threeDecimal[c]:
		return 3
	default:
		return 2
	}
}

// ToMinor converts a major-unit decimal string ("12.34") to minor units.
// Fractions beyond the currency exponent are rounded half away from zero.
func ToMinor(amount string, currency string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", amount, err)
	}
	return d.Shift(Exponent(currency)).Round(0).IntPart(), nil
}

// Format renders minor units as a major-unit string with the currency code,
// e.g. 1050 EUR -> "10.50 EUR".
func Format(minor int64, currency string) string {
	exp := Exponent(currency)
	s := decimal.New(minor, -exp).StringFixed(exp)
	if currency == "" {
		return s
	}
	return s + " " + strings.ToUpper(currency)
}
