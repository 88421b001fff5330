// Package health serves the /healthz endpoint of a running fetch.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const checkTimeout = 3 * time.Second

// Checker holds the checks behind /healthz. Either may be nil.
type Checker struct {
	DB        func(ctx context.Context) error
	Subgraphs *SubgraphChecker
}

// ChainReport is the per-chain part of a health report.
type ChainReport struct {
	Chain string `json:"chain"`
	OK    bool   `json:"ok"`
	Block int64  `json:"block,omitempty"`
	Error string `json:"error,omitempty"`
}

// Report is the /healthz response body. Status is "ok" or "degraded".
type Report struct {
	Status  string        `json:"status"`
	DB      string        `json:"db,omitempty"`
	Chains  []ChainReport `json:"chains,omitempty"`
	Failing []string      `json:"failing,omitempty"`
}

// Check runs every configured check.
func (c Checker) Check(ctx context.Context) Report {
	rep := Report{Status: "ok"}
	if c.DB != nil {
		rep.DB = "ok"
		if err := c.DB(ctx); err != nil {
			rep.DB = "fail"
			rep.Status = "degraded"
		}
	}
	if c.Subgraphs != nil {
		for _, st := range c.Subgraphs.Check(ctx) {
			cr := ChainReport{Chain: string(st.Chain), OK: st.Err == nil, Block: st.Block}
			if st.Err != nil {
				cr.Block = 0
				cr.Error = st.Err.Error()
				rep.Failing = append(rep.Failing, string(st.Chain))
				rep.Status = "degraded"
			}
			rep.Chains = append(rep.Chains, cr)
		}
	}
	return rep
}

// Handler answers 200 when every check passes and 503 otherwise.
func Handler(checker Checker) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()

		rep := checker.Check(ctx)
		code := http.StatusOK
		if rep.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(rep)
	})
	return mux
}

// Serve starts the health handler on addr in the background.
func Serve(addr string, checker Checker) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(checker),
		ReadHeaderTimeout: checkTimeout,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// Shutdown gracefully shuts down the health server.
func Shutdown(ctx context.Context, srv *http.Server) error {
	return srv.Shutdown(ctx)
}
