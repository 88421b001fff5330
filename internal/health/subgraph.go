package health

import (
	"context"
	"sync"

	"github.com/devblac/cctp-stats/internal/cctp"
)

// Pinger reports the latest indexed block of a subgraph.
type Pinger interface {
	Ping(ctx context.Context) (int64, error)
}

// ChainStatus is the outcome of pinging one chain's subgraph.
type ChainStatus struct {
	Chain cctp.Chain
	Block int64
	Err   error
}

// SubgraphChecker pings the subgraph of every registered chain.
type SubgraphChecker struct {
	chains  []cctp.Chain
	pingers map[cctp.Chain]Pinger
}

// NewSubgraphChecker creates an empty checker; add endpoints with Add.
func NewSubgraphChecker() *SubgraphChecker {
	return &SubgraphChecker{pingers: map[cctp.Chain]Pinger{}}
}

// Add registers the pinger for chain.
func (c *SubgraphChecker) Add(chain cctp.Chain, p Pinger) {
	if _, ok := c.pingers[chain]; !ok {
		c.chains = append(c.chains, chain)
	}
	c.pingers[chain] = p
}

// Check pings all endpoints concurrently and returns one status per chain in
// registration order.
func (c *SubgraphChecker) Check(ctx context.Context) []ChainStatus {
	out := make([]ChainStatus, len(c.chains))
	var wg sync.WaitGroup
	for i, chain := range c.chains {
		wg.Add(1)
		go func(i int, chain cctp.Chain) {
			defer wg.Done()
			block, err := c.pingers[chain].Ping(ctx)
			out[i] = ChainStatus{Chain: chain, Block: block, Err: err}
		}(i, chain)
	}
	wg.Wait()
	return out
}
