package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, limit int) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient(server.URL, NewLimiter(limit), NewCache(5*time.Minute))
	return client, server
}

func TestSignatureIsStableAcrossParamOrder(t *testing.T) {
	a := Signature("/aggregates", map[string]string{"district": "D01", "timeframe": "last12Months"})
	b := Signature("/aggregates", map[string]string{"timeframe": "last12Months", "district": "D01"})
	if a != b {
		t.Fatalf("signatures differ: %q vs %q", a, b)
	}
	if want := "/aggregates?district=D01&timeframe=last12Months"; a != want {
		t.Fatalf("expected %q, got %q", want, a)
	}
}

func TestClientServesRepeatFetchFromCache(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"rows":[]}`)
	}, 4)

	req := Request{Endpoint: "/aggregates", Params: map[string]string{"timeframe": "last12Months"}}
	for i := 0; i < 3; i++ {
		if _, err := client.Fetch(context.Background(), req); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected 1 network call, got %d", got)
	}

	other := Request{Endpoint: "/aggregates", Params: map[string]string{"timeframe": "last3Months"}}
	if _, err := client.Fetch(context.Background(), other); err != nil {
		t.Fatalf("fetch other: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected distinct params to refetch, got %d calls", got)
	}
}

func TestClientForceRefreshBypassesReadAndRepopulates(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		fmt.Fprintf(w, "call-%d", n)
	}, 4)

	req := Request{Endpoint: "/aggregates", Params: map[string]string{"timeframe": "allTime"}}
	if _, err := client.Fetch(context.Background(), req); err != nil {
		t.Fatalf("first fetch: %v", err)
	}

	forced := req
	forced.ForceRefresh = true
	data, err := client.Fetch(context.Background(), forced)
	if err != nil {
		t.Fatalf("forced fetch: %v", err)
	}
	if string(data) != "call-2" {
		t.Fatalf("expected forced fetch to hit the network, got %s", data)
	}

	// The forced result must now serve subsequent plain fetches.
	data, err = client.Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("cached fetch: %v", err)
	}
	if string(data) != "call-2" {
		t.Fatalf("expected refreshed cache entry, got %s", data)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 network calls, got %d", got)
	}
}

func TestClientPreCanceledContextNeverFetches(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}, 4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Fetch(ctx, Request{Endpoint: "/aggregates"})
	if err == nil {
		t.Fatal("expected error from canceled context")
	}
	if !IsCanceled(err) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Fatalf("expected no network call, got %d", got)
	}
}

func TestClientCanceledFetchIsNotCached(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		fmt.Fprint(w, "slow")
	}, 4)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	req := Request{Endpoint: "/aggregates", Params: map[string]string{"timeframe": "allTime"}}
	_, err := client.Fetch(ctx, req)
	if err == nil {
		t.Fatal("expected canceled fetch to fail")
	}
	if !IsCanceled(err) {
		t.Fatalf("expected cancellation error, got %v", err)
	}

	// Nothing was cached, so a fresh fetch goes back to the network.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := client.Fetch(context.Background(), req); err != nil {
			t.Errorf("refetch: %v", err)
		}
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("refetch did not complete")
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 network calls, got %d", got)
	}
}

func TestClientErrorResponsesAreNotCached(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, "ok")
	}, 4)

	req := Request{Endpoint: "/aggregates"}
	if _, err := client.Fetch(context.Background(), req); err == nil {
		t.Fatal("expected error from 500 response")
	}

	data, err := client.Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if string(data) != "ok" {
		t.Fatalf("expected retry to reach the network, got %s", data)
	}
}

func TestClientSendsMergedParamsAsQuery(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "%s|%s", r.URL.Query().Get("district"), r.URL.Query().Get("timeframe"))
	}, 4)

	data, err := client.Fetch(context.Background(), Request{
		Endpoint: "/aggregates",
		Params:   map[string]string{"district": "D01,D02", "timeframe": "last12Months"},
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(data) != "D01,D02|last12Months" {
		t.Fatalf("unexpected query echo %s", data)
	}
}

func TestClientFetchManyPreservesOrderUnderLimiter(t *testing.T) {
	var inFlight, peak int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		fmt.Fprint(w, r.URL.Path)
	}, 2)

	reqs := make([]Request, 6)
	for i := range reqs {
		reqs[i] = Request{Endpoint: fmt.Sprintf("/aggregates/%d", i)}
	}
	results, err := client.FetchMany(context.Background(), reqs)
	if err != nil {
		t.Fatalf("fetch many: %v", err)
	}
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	for i, data := range results {
		if want := fmt.Sprintf("/aggregates/%d", i); string(data) != want {
			t.Errorf("result %d: expected %s, got %s", i, want, data)
		}
	}
	if got := atomic.LoadInt32(&peak); got > 2 {
		t.Fatalf("limiter allowed %d concurrent fetches, ceiling is 2", got)
	}
}

func TestClientFetchManyFirstErrorWins(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, "ok")
	}, 4)

	_, err := client.FetchMany(context.Background(), []Request{
		{Endpoint: "/good"},
		{Endpoint: "/bad"},
	})
	if err == nil {
		t.Fatal("expected error from failing fetch")
	}
}
