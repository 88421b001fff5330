package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAccumulate(t *testing.T) {
	m := Init()
	if Init() != m {
		t.Fatalf("Init should be idempotent")
	}

	before := testutil.ToFloat64(m.pagesFetched.WithLabelValues("ETH"))
	m.PageFetched("ETH")
	m.PageFetched("ETH")
	if got := testutil.ToFloat64(m.pagesFetched.WithLabelValues("ETH")); got != before+2 {
		t.Fatalf("pages fetched = %v, want %v", got, before+2)
	}

	m.Records("BASE", "v2", 3)
	m.Records("BASE", "v2", 0)
	if got := testutil.ToFloat64(m.records.WithLabelValues("BASE", "v2")); got != 3 {
		t.Fatalf("records = %v, want 3", got)
	}

	m.PageFailed("OP")
	m.ChainCompleted("OP", true)
	if got := testutil.ToFloat64(m.chainsDone.WithLabelValues("OP", "true")); got != 1 {
		t.Fatalf("chains completed = %v, want 1", got)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.PageFetched("ETH")
	m.PageFailed("ETH")
	m.Records("ETH", "v1", 1)
	m.ChainCompleted("ETH", false)
}
