package subgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const pageQuery = `{
  depositForBurns(first: %d, skip: %d) {
    id
    from
    amount
    blockTimestamp
  }
  depositForBurnV2S(first: %d, skip: %d) {
    id
    from
    amount
    fee
    feeForgasOnDestination
    blockTimestamp
  }
}`

const metaQuery = `{ _meta { block { number } } }`

var (
	// ErrGraphQL wraps errors reported in the response's errors array.
	ErrGraphQL = errors.New("graphql error")
	// ErrStatus wraps a non-200 HTTP response.
	ErrStatus = errors.New("unexpected http status")
)

// PageError reports a failed page request at a given offset.
type PageError struct {
	Offset int
	Err    error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page at offset %d: %v", e.Offset, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// Client queries one subgraph endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// New builds a client whose requests are bounded by timeout.
func New(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Endpoint returns the subgraph URL.
func (c *Client) Endpoint() string { return c.endpoint }

type request struct {
	Query string `json:"query"`
}

type gqlError struct {
	Message string `json:"message"`
}

type envelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

// FetchPage requests both burn collections at the same offset in one query.
func (c *Client) FetchPage(ctx context.Context, first, skip int) (Page, error) {
	query := fmt.Sprintf(pageQuery, first, skip, first, skip)
	var data struct {
		Burns   []BurnEvent `json:"depositForBurns"`
		BurnsV2 []BurnEvent `json:"depositForBurnV2S"`
	}
	if err := c.do(ctx, query, &data); err != nil {
		return Page{Offset: skip}, &PageError{Offset: skip, Err: err}
	}
	return Page{Offset: skip, Burns: data.Burns, BurnsV2: data.BurnsV2}, nil
}

// Ping returns the latest indexed block number of the subgraph.
func (c *Client) Ping(ctx context.Context) (int64, error) {
	var data struct {
		Meta struct {
			Block struct {
				Number int64 `json:"number"`
			} `json:"block"`
		} `json:"_meta"`
	}
	if err := c.do(ctx, metaQuery, &data); err != nil {
		return 0, err
	}
	return data.Meta.Block.Number, nil
}

func (c *Client) do(ctx context.Context, query string, out any) error {
	body, err := json.Marshal(request{Query: query})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w %d", ErrStatus, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(env.Errors) > 0 {
		msgs := make([]string, 0, len(env.Errors))
		for _, e := range env.Errors {
			msgs = append(msgs, e.Message)
		}
		return fmt.Errorf("%w: %s", ErrGraphQL, strings.Join(msgs, "; "))
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
