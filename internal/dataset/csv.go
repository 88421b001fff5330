package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/devblac/cctp-stats/internal/cctp"
	"github.com/shopspring/decimal"
)

const (
	usdPlaces = 6
	feePlaces = 12
)

// Column headers of the two fetch output files.
var (
	TransferColumns = []string{"chain", "id", "from", "type", "amount_usd", "blockTimestamp"}
	GasColumns      = []string{"chain", "id", "from", "type", "fee_native", "fee_gas_native", "native_symbol", "blockTimestamp"}

	ErrMissingColumn = errors.New("missing column")
)

// EncodeTransfers writes the header and one row per record.
func EncodeTransfers(w io.Writer, records []cctp.TransferRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(TransferColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		row := []string{
			string(r.Chain),
			r.ID,
			r.From,
			string(r.Type),
			fixed(r.AmountUSD, usdPlaces),
			strconv.FormatInt(r.BlockTimestamp, 10),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// EncodeGasFees writes the header and one row per record.
func EncodeGasFees(w io.Writer, records []cctp.GasFeeRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(GasColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		row := []string{
			string(r.Chain),
			r.ID,
			r.From,
			string(r.Type),
			fixed(r.FeeNative, feePlaces),
			fixed(r.FeeGasNative, feePlaces),
			r.NativeSymbol,
			strconv.FormatInt(r.BlockTimestamp, 10),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTransfers persists records to path. An empty collection writes nothing and reports false.
func WriteTransfers(path string, records []cctp.TransferRecord) (bool, error) {
	if len(records) == 0 {
		return false, nil
	}
	return true, WriteFile(path, func(w io.Writer) error { return EncodeTransfers(w, records) })
}

// WriteGasFees persists records to path. An empty collection writes nothing and reports false.
func WriteGasFees(path string, records []cctp.GasFeeRecord) (bool, error) {
	if len(records) == 0 {
		return false, nil
	}
	return true, WriteFile(path, func(w io.Writer) error { return EncodeGasFees(w, records) })
}

// WriteFile writes through a temp file in the target directory and renames it into place,
// so path either keeps its previous content or holds the complete new one.
func WriteFile(path string, encode func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := encode(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}

// fixed truncates d to places and renders it without exponent notation.
func fixed(d decimal.Decimal, places int32) string {
	return d.Truncate(places).StringFixed(places)
}
