package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/devblac/cctp-stats/internal/cctp"
)

type stubPinger struct {
	block int64
	err   error
	calls atomic.Int32
}

func (s *stubPinger) Ping(context.Context) (int64, error) {
	s.calls.Add(1)
	return s.block, s.err
}

func subgraphs(pingers map[cctp.Chain]*stubPinger, order ...cctp.Chain) *SubgraphChecker {
	c := NewSubgraphChecker()
	for _, chain := range order {
		c.Add(chain, pingers[chain])
	}
	return c
}

func TestHealthEndpoint(t *testing.T) {
	down := errors.New("connection refused")
	tests := []struct {
		name        string
		checker     Checker
		wantCode    int
		wantStatus  string
		wantDB      string
		wantFailing []string
		wantBlocks  map[string]int64
	}{
		{
			name: "all_ok",
			checker: Checker{
				DB: func(ctx context.Context) error { return nil },
				Subgraphs: subgraphs(map[cctp.Chain]*stubPinger{
					cctp.ChainETH:  {block: 19000000},
					cctp.ChainBase: {block: 12000000},
				}, cctp.ChainETH, cctp.ChainBase),
			},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantDB:     "ok",
			wantBlocks: map[string]int64{"ETH": 19000000, "BASE": 12000000},
		},
		{
			name: "db_fail",
			checker: Checker{
				DB:        func(ctx context.Context) error { return context.DeadlineExceeded },
				Subgraphs: subgraphs(map[cctp.Chain]*stubPinger{cctp.ChainETH: {block: 1}}, cctp.ChainETH),
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "degraded",
			wantDB:     "fail",
			wantBlocks: map[string]int64{"ETH": 1},
		},
		{
			name: "one_chain_down",
			checker: Checker{
				Subgraphs: subgraphs(map[cctp.Chain]*stubPinger{
					cctp.ChainETH: {block: 5},
					cctp.ChainOP:  {err: down},
					cctp.ChainArb: {block: 7},
				}, cctp.ChainETH, cctp.ChainOP, cctp.ChainArb),
			},
			wantCode:    http.StatusServiceUnavailable,
			wantStatus:  "degraded",
			wantFailing: []string{"OP"},
			wantBlocks:  map[string]int64{"ETH": 5, "OP": 0, "ARB": 7},
		},
		{
			name:       "no_checkers",
			checker:    Checker{},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://localhost/healthz", nil)
			w := httptest.NewRecorder()
			Handler(tt.checker).ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}
			var resp Report
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, tt.wantStatus)
			}
			if resp.DB != tt.wantDB {
				t.Errorf("db = %q, want %q", resp.DB, tt.wantDB)
			}
			if len(resp.Failing) != len(tt.wantFailing) {
				t.Fatalf("failing = %v, want %v", resp.Failing, tt.wantFailing)
			}
			for i := range resp.Failing {
				if resp.Failing[i] != tt.wantFailing[i] {
					t.Errorf("failing = %v, want %v", resp.Failing, tt.wantFailing)
				}
			}
			if len(resp.Chains) != len(tt.wantBlocks) {
				t.Fatalf("chains = %+v", resp.Chains)
			}
			for _, cr := range resp.Chains {
				if cr.Block != tt.wantBlocks[cr.Chain] {
					t.Errorf("%s block = %d, want %d", cr.Chain, cr.Block, tt.wantBlocks[cr.Chain])
				}
				if cr.OK != (cr.Error == "") {
					t.Errorf("%s ok=%v with error %q", cr.Chain, cr.OK, cr.Error)
				}
			}
		})
	}
}

func TestSubgraphCheckerKeepsOrder(t *testing.T) {
	ok := &stubPinger{block: 100}
	down := &stubPinger{err: errors.New("connection refused")}

	c := NewSubgraphChecker()
	c.Add(cctp.ChainETH, ok)
	c.Add(cctp.ChainOP, down)
	c.Add(cctp.ChainAvax, down)
	c.Add(cctp.ChainETH, ok)

	got := c.Check(context.Background())
	if len(got) != 3 {
		t.Fatalf("expected 3 chains, got %+v", got)
	}
	if got[0].Chain != cctp.ChainETH || got[0].Block != 100 || got[0].Err != nil {
		t.Fatalf("unexpected ETH status: %+v", got[0])
	}
	if got[1].Chain != cctp.ChainOP || got[1].Err == nil || got[2].Chain != cctp.ChainAvax || got[2].Err == nil {
		t.Fatalf("unexpected failing statuses: %+v", got[1:])
	}
	if ok.calls.Load() != 1 || down.calls.Load() != 2 {
		t.Fatalf("every endpoint should be pinged once, got %d/%d", ok.calls.Load(), down.calls.Load())
	}
}

func TestServeAndShutdown(t *testing.T) {
	srv := Serve("127.0.0.1:0", Checker{})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := Shutdown(ctx, srv); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
