package cctp

import (
	"math/big"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// FormatUSD renders d with two decimals and thousands separators.
func FormatUSD(d decimal.Decimal) string {
	fixed := d.StringFixed(2)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	intPart, frac, _ := strings.Cut(fixed, ".")
	whole, ok := new(big.Int).SetString(intPart, 10)
	if !ok {
		return sign + fixed
	}
	return sign + humanize.BigComma(whole) + "." + frac
}

// FormatCount renders n with thousands separators.
func FormatCount(n int64) string { return humanize.Comma(n) }
