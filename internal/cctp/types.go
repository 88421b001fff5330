package cctp

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Chain identifies one of the supported source chains.
type Chain string

const (
	ChainETH     Chain = "ETH"
	ChainBase    Chain = "BASE"
	ChainAvax    Chain = "AVAX"
	ChainArb     Chain = "ARB"
	ChainPolygon Chain = "POLYGON"
	ChainOP      Chain = "OP"
)

// KnownChains lists the supported chains in fetch order.
var KnownChains = []Chain{ChainETH, ChainBase, ChainAvax, ChainArb, ChainPolygon, ChainOP}

// Known reports whether c is one of KnownChains.
func (c Chain) Known() bool {
	for _, k := range KnownChains {
		if c == k {
			return true
		}
	}
	return false
}

// EventType tags the burn event schema version.
type EventType string

const (
	EventV1 EventType = "v1"
	EventV2 EventType = "v2"
)

// USDDecimals is the fixed scale of raw USDC amounts.
const USDDecimals = 6

// TransferRecord is one burn event normalized to USD units.
type TransferRecord struct {
	Chain          Chain
	ID             string
	From           string
	Type           EventType
	AmountUSD      decimal.Decimal
	BlockTimestamp int64
}

// GasFeeRecord holds the fee breakdown of the transfer with the same (Chain, ID).
// Fees are in native token units and must not be summed across native symbols.
type GasFeeRecord struct {
	Chain          Chain
	ID             string
	From           string
	Type           EventType
	FeeNative      decimal.Decimal
	FeeGasNative   decimal.Decimal
	NativeSymbol   string
	BlockTimestamp int64
}

// Dataset is an append-only pair of record collections.
type Dataset struct {
	Transfers []TransferRecord
	GasFees   []GasFeeRecord
}

// Append adds the records of other after the records already held.
func (d *Dataset) Append(other Dataset) {
	d.Transfers = append(d.Transfers, other.Transfers...)
	d.GasFees = append(d.GasFees, other.GasFees...)
}

// Len returns the number of transfer records.
func (d *Dataset) Len() int { return len(d.Transfers) }

// ErrInvalidAmount is returned for raw amounts that are not plain decimal digits.
var ErrInvalidAmount = errors.New("invalid raw amount")

var rawDigits = regexp.MustCompile(`^[0-9]+$`)

// ScaleUnits divides a raw non-negative integer string by 10^decimals.
// An empty string scales to zero.
func ScaleUnits(raw string, decimals int32) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	if !rawDigits.MatchString(raw) {
		return decimal.Zero, fmt.Errorf("%w %q: not a non-negative integer", ErrInvalidAmount, raw)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w %q: %v", ErrInvalidAmount, raw, err)
	}
	return d.Shift(-decimals), nil
}
