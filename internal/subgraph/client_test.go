package subgraph

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newServer(t *testing.T, handler func(w http.ResponseWriter, query string)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %q", ct)
		}
		var req struct {
			Query string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		handler(w, req.Query)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestFetchPageDecodesBothCollections(t *testing.T) {
	var gotQuery string
	server := newServer(t, func(w http.ResponseWriter, query string) {
		gotQuery = query
		_, _ = w.Write([]byte(`{"data":{
			"depositForBurns":[{"id":"0x1-1","from":"0xaa","amount":"35000000","blockTimestamp":"1700000000"}],
			"depositForBurnV2S":[{"id":"0x2-1","from":"0xbb","amount":"1000000","fee":"200","feeForgasOnDestination":null,"blockTimestamp":1700000100}]
		}}`))
	})

	page, err := New(server.URL, time.Second).FetchPage(context.Background(), 1000, 3000)
	if err != nil {
		t.Fatalf("fetch page: %v", err)
	}
	if !strings.Contains(gotQuery, "depositForBurns(first: 1000, skip: 3000)") ||
		!strings.Contains(gotQuery, "depositForBurnV2S(first: 1000, skip: 3000)") {
		t.Fatalf("unexpected query: %s", gotQuery)
	}
	if page.Len() != 2 || page.Offset != 3000 {
		t.Fatalf("unexpected page: %+v", page)
	}
	events := page.Events()
	if events[0].HasFee || events[0].Amount != "35000000" || events[0].BlockTimestamp != "1700000000" {
		t.Fatalf("unexpected v1 event: %+v", events[0])
	}
	if !events[1].HasFee || events[1].Fee != "200" || events[1].FeeForGas != "" || events[1].BlockTimestamp != "1700000100" {
		t.Fatalf("unexpected v2 event: %+v", events[1])
	}
}

func TestFetchPageGraphQLError(t *testing.T) {
	server := newServer(t, func(w http.ResponseWriter, _ string) {
		_, _ = w.Write([]byte(`{"errors":[{"message":"indexing error"}]}`))
	})

	_, err := New(server.URL, time.Second).FetchPage(context.Background(), 10, 20)
	if !errors.Is(err, ErrGraphQL) {
		t.Fatalf("expected ErrGraphQL, got %v", err)
	}
	var pe *PageError
	if !errors.As(err, &pe) || pe.Offset != 20 {
		t.Fatalf("expected PageError at offset 20, got %v", err)
	}
}

func TestFetchPageStatusError(t *testing.T) {
	server := newServer(t, func(w http.ResponseWriter, _ string) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := New(server.URL, time.Second).FetchPage(context.Background(), 10, 0)
	if !errors.Is(err, ErrStatus) {
		t.Fatalf("expected ErrStatus, got %v", err)
	}
}

func TestFetchPageTimeout(t *testing.T) {
	release := make(chan struct{})
	server := newServer(t, func(w http.ResponseWriter, _ string) {
		<-release
	})
	defer close(release)

	_, err := New(server.URL, 50*time.Millisecond).FetchPage(context.Background(), 10, 0)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestPing(t *testing.T) {
	server := newServer(t, func(w http.ResponseWriter, query string) {
		if !strings.Contains(query, "_meta") {
			t.Errorf("unexpected query %s", query)
		}
		_, _ = w.Write([]byte(`{"data":{"_meta":{"block":{"number":19000000}}}}`))
	})

	n, err := New(server.URL, time.Second).Ping(context.Background())
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if n != 19000000 {
		t.Fatalf("block = %d", n)
	}
}

func TestBurnEventFeePresence(t *testing.T) {
	var withNullFee, withoutFee BurnEvent
	if err := json.Unmarshal([]byte(`{"id":"a","fee":null}`), &withNullFee); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := json.Unmarshal([]byte(`{"id":"b","amount":"5"}`), &withoutFee); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !withNullFee.HasFee {
		t.Fatalf("fee key present with null value should count as v2")
	}
	if withoutFee.HasFee {
		t.Fatalf("missing fee key should not count as v2")
	}
	var boolAmount BurnEvent
	if err := json.Unmarshal([]byte(`{"id":"c","amount":true}`), &boolAmount); err != nil {
		t.Fatalf("a bad field must not fail decoding: %v", err)
	}
	if boolAmount.Err == nil || boolAmount.ID != "c" {
		t.Fatalf("expected field error on event c, got %+v", boolAmount)
	}
}

func TestFetchPageKeepsEventsBesideMalformedOne(t *testing.T) {
	server := newServer(t, func(w http.ResponseWriter, _ string) {
		_, _ = w.Write([]byte(`{"data":{
			"depositForBurns":[
				{"id":"a","from":"0xaa","amount":"1000000","blockTimestamp":"1700000000"},
				{"id":"b","from":"0xbb","amount":true,"blockTimestamp":"1700000000"}
			],
			"depositForBurnV2S":[]
		}}`))
	})

	page, err := New(server.URL, time.Second).FetchPage(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("fetch page: %v", err)
	}
	events := page.Events()
	if len(events) != 2 {
		t.Fatalf("expected both events, got %+v", events)
	}
	if events[0].Err != nil || events[1].Err == nil {
		t.Fatalf("only event b should carry an error: %+v", events)
	}
}
