package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/devblac/cctp-stats/internal/cctp"
	"github.com/shopspring/decimal"
)

// Transfers is a loaded transfer table.
type Transfers struct {
	Records []cctp.TransferRecord
	// HasFrom is false when the file has no from column; user analyses are skipped then.
	HasFrom bool
}

// ReadTransfers loads a transfers CSV from path.
func ReadTransfers(path string) (Transfers, error) {
	f, err := os.Open(path)
	if err != nil {
		return Transfers{}, fmt.Errorf("open transfers: %w", err)
	}
	defer f.Close()
	t, err := DecodeTransfers(f)
	if err != nil {
		return Transfers{}, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ReadGasFees loads a gas fee CSV from path.
func ReadGasFees(path string) ([]cctp.GasFeeRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gas fees: %w", err)
	}
	defer f.Close()
	recs, err := DecodeGasFees(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}

// DecodeTransfers parses a transfers CSV, locating columns by header name.
func DecodeTransfers(r io.Reader) (Transfers, error) {
	tab, err := readTable(r, []string{"chain", "id", "type", "amount_usd", "blockTimestamp"})
	if err != nil {
		return Transfers{}, err
	}
	_, hasFrom := tab.cols["from"]
	out := Transfers{HasFrom: hasFrom, Records: make([]cctp.TransferRecord, 0, len(tab.rows))}
	for i, row := range tab.rows {
		line := i + 2
		amount, err := tab.decimalAt(row, "amount_usd")
		if err != nil {
			return Transfers{}, fmt.Errorf("line %d: %w", line, err)
		}
		ts, err := tab.int64At(row, "blockTimestamp")
		if err != nil {
			return Transfers{}, fmt.Errorf("line %d: %w", line, err)
		}
		out.Records = append(out.Records, cctp.TransferRecord{
			Chain:          cctp.Chain(tab.get(row, "chain")),
			ID:             tab.get(row, "id"),
			From:           tab.get(row, "from"),
			Type:           cctp.EventType(tab.get(row, "type")),
			AmountUSD:      amount,
			BlockTimestamp: ts,
		})
	}
	return out, nil
}

// DecodeGasFees parses a gas fee CSV, locating columns by header name.
func DecodeGasFees(r io.Reader) ([]cctp.GasFeeRecord, error) {
	tab, err := readTable(r, []string{"chain", "fee_native", "fee_gas_native", "native_symbol", "blockTimestamp"})
	if err != nil {
		return nil, err
	}
	out := make([]cctp.GasFeeRecord, 0, len(tab.rows))
	for i, row := range tab.rows {
		line := i + 2
		fee, err := tab.decimalAt(row, "fee_native")
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		gas, err := tab.decimalAt(row, "fee_gas_native")
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ts, err := tab.int64At(row, "blockTimestamp")
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, cctp.GasFeeRecord{
			Chain:          cctp.Chain(tab.get(row, "chain")),
			ID:             tab.get(row, "id"),
			From:           tab.get(row, "from"),
			Type:           cctp.EventType(tab.get(row, "type")),
			FeeNative:      fee,
			FeeGasNative:   gas,
			NativeSymbol:   tab.get(row, "native_symbol"),
			BlockTimestamp: ts,
		})
	}
	return out, nil
}

type table struct {
	cols map[string]int
	rows [][]string
}

func readTable(r io.Reader, required []string) (*table, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty file", ErrMissingColumn)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return &table{cols: cols, rows: rows}, nil
}

func (t *table) get(row []string, col string) string {
	i, ok := t.cols[col]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func (t *table) decimalAt(row []string, col string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(t.get(row, col))
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s %q: %w", col, raw, err)
	}
	return d, nil
}

func (t *table) int64At(row []string, col string) (int64, error) {
	raw := strings.TrimSpace(t.get(row, col))
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", col, raw, err)
	}
	return n, nil
}
