package subgraph

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BurnEvent is one depositForBurn or depositForBurnV2 entity as returned by the subgraph.
// Numeric fields are kept as raw integer strings.
type BurnEvent struct {
	ID             string
	From           string
	Amount         string
	BlockTimestamp string
	Fee            string
	FeeForGas      string
	// HasFee is true when the payload carried a fee key, which only v2 entities expose.
	HasFee bool
	// Err records the first field that was not a JSON scalar. The event is kept so
	// callers can skip it without losing the rest of the page.
	Err error
}

// UnmarshalJSON reads every known key as a string or number. A malformed field
// is stored in Err instead of failing the surrounding document.
func (e *BurnEvent) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	var err error
	get := func(key string) string {
		raw, ok := fields[key]
		if !ok || err != nil {
			return ""
		}
		var s string
		s, err = scalar(raw)
		if err != nil {
			err = fmt.Errorf("field %s: %w", key, err)
		}
		return s
	}

	e.ID = get("id")
	e.From = get("from")
	e.Amount = get("amount")
	e.BlockTimestamp = get("blockTimestamp")
	e.Fee = get("fee")
	e.FeeForGas = get("feeForgasOnDestination")
	_, e.HasFee = fields["fee"]
	e.Err = err
	return nil
}

// scalar accepts a JSON string, number or null and returns its text.
func scalar(raw json.RawMessage) (string, error) {
	s := strings.TrimSpace(string(raw))
	switch {
	case s == "" || s == "null":
		return "", nil
	case strings.HasPrefix(s, `"`):
		var out string
		if err := json.Unmarshal(raw, &out); err != nil {
			return "", err
		}
		return out, nil
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", fmt.Errorf("unsupported value %s", s)
		}
		return n.String(), nil
	}
}

// Page is the combined result of one offset of both collections.
type Page struct {
	Offset  int
	Burns   []BurnEvent
	BurnsV2 []BurnEvent
}

// Len is the combined item count used for the terminal-page check.
func (p Page) Len() int { return len(p.Burns) + len(p.BurnsV2) }

// Events returns legacy events followed by v2 events.
func (p Page) Events() []BurnEvent {
	out := make([]BurnEvent, 0, p.Len())
	out = append(out, p.Burns...)
	return append(out, p.BurnsV2...)
}
