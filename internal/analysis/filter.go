package analysis

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/devblac/cctp-stats/internal/cctp"
)

// Predicate evaluates whether a record's fields satisfy a condition.
type Predicate func(fields map[string]any) (bool, error)

// Filter keeps a transfer when every predicate passes.
type Filter []Predicate

// CompileFilter parses simple expressions over transfer columns.
// Supported operators: ==, !=, >, <, >=, <=, in, contains.
// Examples:
//
//	"amount_usd >= 100_000"
//	"chain in ETH,BASE"
//	"from contains 0xabc"
func CompileFilter(exprs []string) (Filter, error) {
	var preds Filter
	for _, raw := range exprs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		p, err := compile(raw)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, nil
}

// Keep reports whether r passes every predicate. Evaluation errors reject the row.
func (f Filter) Keep(r cctp.TransferRecord) bool {
	if len(f) == 0 {
		return true
	}
	fields := recordFields(r)
	for _, p := range f {
		ok, err := p(fields)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

func recordFields(r cctp.TransferRecord) map[string]any {
	return map[string]any{
		"chain":          string(r.Chain),
		"id":             r.ID,
		"from":           r.From,
		"type":           string(r.Type),
		"amount_usd":     r.AmountUSD.InexactFloat64(),
		"blockTimestamp": r.BlockTimestamp,
		"date":           dateOf(r.BlockTimestamp),
	}
}

func compile(expr string) (Predicate, error) {
	if strings.Contains(expr, " in ") {
		parts := strings.SplitN(expr, " in ", 2)
		field := strings.TrimSpace(parts[0])
		rawList := strings.Split(parts[1], ",")
		values := make(map[string]struct{}, len(rawList))
		for _, v := range rawList {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			values[v] = struct{}{}
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("invalid in expression: %s", expr)
		}
		return func(fields map[string]any) (bool, error) {
			val, ok := fields[field]
			if !ok {
				return false, nil
			}
			_, hit := values[fmt.Sprint(val)]
			return hit, nil
		}, nil
	}

	if strings.Contains(expr, " contains ") {
		parts := strings.SplitN(expr, " contains ", 2)
		field := strings.TrimSpace(parts[0])
		needle := strings.TrimSpace(parts[1])
		return func(fields map[string]any) (bool, error) {
			val, ok := fields[field]
			if !ok {
				return false, nil
			}
			return strings.Contains(strings.ToLower(fmt.Sprint(val)), strings.ToLower(needle)), nil
		}, nil
	}

	var op string
	switch {
	case strings.Contains(expr, "=="):
		op = "=="
	case strings.Contains(expr, "!="):
		op = "!="
	case strings.Contains(expr, ">="):
		op = ">="
	case strings.Contains(expr, "<="):
		op = "<="
	case strings.Contains(expr, ">"):
		op = ">"
	case strings.Contains(expr, "<"):
		op = "<"
	default:
		return nil, fmt.Errorf("unsupported expression: %s", expr)
	}

	parts := strings.SplitN(expr, op, 2)
	field := strings.TrimSpace(parts[0])
	rhsRaw := strings.TrimSpace(parts[1])
	if field == "" || rhsRaw == "" {
		return nil, fmt.Errorf("invalid expression: %s", expr)
	}

	numRHS, rhsIsNum := parseNumber(rhsRaw)

	return func(fields map[string]any) (bool, error) {
		val, ok := fields[field]
		if !ok {
			return false, nil
		}

		if rhsIsNum {
			if lhs, ok := toNumber(val); ok {
				switch op {
				case "==":
					return lhs == numRHS, nil
				case "!=":
					return lhs != numRHS, nil
				case ">":
					return lhs > numRHS, nil
				case "<":
					return lhs < numRHS, nil
				case ">=":
					return lhs >= numRHS, nil
				case "<=":
					return lhs <= numRHS, nil
				}
			}
		}

		// dates compare lexicographically
		lhs := fmt.Sprint(val)
		switch op {
		case "==":
			return lhs == rhsRaw, nil
		case "!=":
			return lhs != rhsRaw, nil
		case ">":
			return lhs > rhsRaw, nil
		case "<":
			return lhs < rhsRaw, nil
		case ">=":
			return lhs >= rhsRaw, nil
		case "<=":
			return lhs <= rhsRaw, nil
		default:
			return false, nil
		}
	}, nil
}

// parseNumber accepts "100", "1e6", "1_000_000" and a single product like "1_000 * 1e3".
func parseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "_", "")
	if a, b, ok := strings.Cut(s, "*"); ok {
		x, ok1 := parseNumber(a)
		y, ok2 := parseNumber(b)
		if !ok1 || !ok2 {
			return 0, false
		}
		return x * y, true
	}
	v, err := strconv.ParseFloat(s, 64)
	return v, err == nil
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
