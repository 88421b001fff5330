package analysis

import (
	"testing"

	"github.com/shopspring/decimal"
)

type row struct {
	k string
	a decimal.Decimal
	b decimal.Decimal
}

func TestGroupByKeepsFirstAppearance(t *testing.T) {
	rows := []row{
		{"y", decimal.NewFromInt(1), decimal.NewFromInt(10)},
		{"x", decimal.NewFromInt(2), decimal.NewFromInt(20)},
		{"y", decimal.NewFromInt(3), decimal.NewFromInt(30)},
	}
	groups := GroupBy(rows, func(r row) string { return r.k },
		func(r row) decimal.Decimal { return r.a },
		func(r row) decimal.Decimal { return r.b },
	)
	if len(groups) != 2 || groups[0].Key != "y" || groups[1].Key != "x" {
		t.Fatalf("unexpected groups: %+v", groups)
	}
	y := groups[0]
	if y.Count != 2 || !y.Sums[0].Equal(decimal.NewFromInt(4)) || !y.Sums[1].Equal(decimal.NewFromInt(40)) {
		t.Fatalf("unexpected y group: %+v", y)
	}
	if !y.Mean().Equal(decimal.NewFromInt(2)) {
		t.Fatalf("mean = %s", y.Mean())
	}
}

func TestSummarizeEmpty(t *testing.T) {
	g := Summarize([]row(nil), func(r row) decimal.Decimal { return r.a })
	if g.Count != 0 || !g.Total().IsZero() || !g.Mean().IsZero() {
		t.Fatalf("unexpected empty summary: %+v", g)
	}
}

func TestDateBucketsAreUTC(t *testing.T) {
	// 2024-03-01 23:59:59 UTC
	if got := dateOf(1709337599); got != "2024-03-01" {
		t.Fatalf("dateOf = %s", got)
	}
	if got := monthOf(1709337600); got != "2024-03" {
		t.Fatalf("monthOf = %s", got)
	}
}
