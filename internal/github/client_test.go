package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/5dlabs/taskmaster-sync/internal/types"
)

// testClient builds a client against a test server with sleeps captured
// instead of slept.
func testClient(t *testing.T, srv *httptest.Server) (*Client, *[]time.Duration) {
	t.Helper()
	c := NewClient(Options{
		Endpoint: srv.URL,
		Tokens:   StaticTokenProvider("test-token"),
	})
	var mu sync.Mutex
	sleeps := &[]time.Duration{}
	c.sleep = func(d time.Duration) {
		mu.Lock()
		*sleeps = append(*sleeps, d)
		mu.Unlock()
	}
	return c, sleeps
}

func graphqlHandler(fn func(n int, w http.ResponseWriter, r *http.Request)) http.Handler {
	var mu sync.Mutex
	n := 0
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		n++
		call := n
		mu.Unlock()
		fn(call, w, r)
	})
}

func TestDoRetriesServerErrors(t *testing.T) {
	srv := httptest.NewServer(graphqlHandler(func(n int, w http.ResponseWriter, r *http.Request) {
		if n < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"data": {"ok": true}}`)
	}))
	defer srv.Close()

	c, sleeps := testClient(t, srv)
	var out struct {
		OK bool `json:"ok"`
	}
	if err := c.do(context.Background(), "test", "query{}", nil, &out); err != nil {
		t.Fatalf("do: %v", err)
	}
	if !out.OK {
		t.Error("response not decoded")
	}
	if len(*sleeps) != 2 {
		t.Errorf("expected 2 backoff sleeps, got %v", *sleeps)
	}
	// Exponential with jitter: 500ms±20%, then 1s±20%.
	if (*sleeps)[0] < 400*time.Millisecond || (*sleeps)[0] > 600*time.Millisecond {
		t.Errorf("first backoff %v outside 500ms±20%%", (*sleeps)[0])
	}
	if (*sleeps)[1] < 800*time.Millisecond || (*sleeps)[1] > 1200*time.Millisecond {
		t.Errorf("second backoff %v outside 1s±20%%", (*sleeps)[1])
	}
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(graphqlHandler(func(n int, w http.ResponseWriter, r *http.Request) {
		calls = n
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _ := testClient(t, srv)
	err := c.do(context.Background(), "test", "query{}", nil, nil)
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	if calls != maxAttempts {
		t.Errorf("made %d attempts, want %d", calls, maxAttempts)
	}
}

func TestDoTerminalGraphQLErrorNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(graphqlHandler(func(n int, w http.ResponseWriter, r *http.Request) {
		calls = n
		fmt.Fprint(w, `{"errors": [{"message": "Could not resolve", "type": "NOT_FOUND"}]}`)
	}))
	defer srv.Close()

	c, _ := testClient(t, srv)
	err := c.do(context.Background(), "test", "query{}", nil, nil)
	if !IsNotFound(err) {
		t.Fatalf("expected NOT_FOUND APIError, got %v", err)
	}
	if calls != 1 {
		t.Errorf("terminal error retried %d times", calls)
	}
}

func TestDoRateLimitHonorsReset(t *testing.T) {
	srv := httptest.NewServer(graphqlHandler(func(n int, w http.ResponseWriter, r *http.Request) {
		if n == 1 {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"data": {}}`)
	}))
	defer srv.Close()

	c, sleeps := testClient(t, srv)
	if err := c.do(context.Background(), "test", "query{}", nil, nil); err != nil {
		t.Fatalf("do: %v", err)
	}
	found := false
	for _, d := range *sleeps {
		if d == 3*time.Second {
			found = true
		}
	}
	if !found {
		t.Errorf("Retry-After not honored, sleeps = %v", *sleeps)
	}
}

func TestDoRateLimitedGraphQLErrorRetried(t *testing.T) {
	srv := httptest.NewServer(graphqlHandler(func(n int, w http.ResponseWriter, r *http.Request) {
		if n <= 2 {
			fmt.Fprint(w, `{"errors": [{"message": "rate limited", "type": "RATE_LIMITED"}]}`)
			return
		}
		fmt.Fprint(w, `{"data": {}}`)
	}))
	defer srv.Close()

	c, _ := testClient(t, srv)
	if err := c.do(context.Background(), "test", "query{}", nil, nil); err != nil {
		t.Fatalf("RATE_LIMITED should be retried: %v", err)
	}
}

func TestDoAuthFailure(t *testing.T) {
	srv := httptest.NewServer(graphqlHandler(func(n int, w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, _ := testClient(t, srv)
	err := c.do(context.Background(), "test", "query{}", nil, nil)
	if !errors.Is(err, types.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestDoSendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(graphqlHandler(func(n int, w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		fmt.Fprint(w, `{"data": {}}`)
	}))
	defer srv.Close()

	c, _ := testClient(t, srv)
	if err := c.do(context.Background(), "test", "query{}", nil, nil); err != nil {
		t.Fatal(err)
	}
}

// itemsPage renders one page of the listItems response.
func itemsPage(start, count int, hasNext bool, cursor string) string {
	nodes := make([]map[string]any, count)
	for i := 0; i < count; i++ {
		nodes[i] = map[string]any{
			"id": fmt.Sprintf("item-%d", start+i),
			"content": map[string]any{
				"__typename": "DraftIssue",
				"id":         fmt.Sprintf("draft-%d", start+i),
				"title":      fmt.Sprintf("Task %d", start+i),
				"body":       "",
			},
			"fieldValues": map[string]any{
				"nodes": []map[string]any{
					{"text": fmt.Sprintf("T%d", start+i), "field": map[string]any{"name": "TM_ID"}},
				},
			},
		}
	}
	page := map[string]any{
		"data": map[string]any{
			"node": map[string]any{
				"items": map[string]any{
					"pageInfo": map[string]any{"hasNextPage": hasNext, "endCursor": cursor},
					"nodes":    nodes,
				},
			},
		},
	}
	data, _ := json.Marshal(page)
	return string(data)
}

func TestListItemsSinglePageAtBoundary(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(graphqlHandler(func(n int, w http.ResponseWriter, r *http.Request) {
		requests = n
		fmt.Fprint(w, itemsPage(0, 100, false, ""))
	}))
	defer srv.Close()

	c, _ := testClient(t, srv)
	items, err := c.ListItems(context.Background(), "P1")
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 100 {
		t.Errorf("got %d items", len(items))
	}
	if requests != 1 {
		t.Errorf("exactly-at-page-size took %d requests, want 1", requests)
	}
}

func TestListItemsPaginates(t *testing.T) {
	srv := httptest.NewServer(graphqlHandler(func(n int, w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Variables["cursor"] == nil {
			fmt.Fprint(w, itemsPage(0, 100, true, "CURSOR-1"))
			return
		}
		if req.Variables["cursor"] != "CURSOR-1" {
			t.Errorf("cursor = %v", req.Variables["cursor"])
		}
		fmt.Fprint(w, itemsPage(100, 1, false, ""))
	}))
	defer srv.Close()

	c, _ := testClient(t, srv)
	items, err := c.ListItems(context.Background(), "P1")
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 101 {
		t.Errorf("got %d items, want 101", len(items))
	}
	// In-order across pages.
	if items[0].ID != "item-0" || items[100].ID != "item-100" {
		t.Errorf("items out of order: first=%s last=%s", items[0].ID, items[100].ID)
	}
	if items[0].TMID() != "T0" {
		t.Errorf("field values not parsed: %+v", items[0].FieldValues)
	}
	if items[0].ContentKind != types.KindDraft {
		t.Errorf("content kind = %q", items[0].ContentKind)
	}
}

func TestPerItemMutationSerialized(t *testing.T) {
	var mu sync.Mutex
	inFlight := 0
	maxInFlight := 0
	srv := httptest.NewServer(graphqlHandler(func(n int, w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		fmt.Fprint(w, `{"data": {"updateProjectV2ItemFieldValue": {"projectV2Item": {"id": "item-1"}}}}`)
	}))
	defer srv.Close()

	c, _ := testClient(t, srv)
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.UpdateFieldValue(context.Background(), "P1", "item-1", "F1", TextValue("x"))
		}()
	}
	wg.Wait()

	if maxInFlight != 1 {
		t.Errorf("mutations on one item overlapped: max in-flight %d", maxInFlight)
	}
}

func TestContextCancellation(t *testing.T) {
	srv := httptest.NewServer(graphqlHandler(func(n int, w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError) // would retry forever
	}))
	defer srv.Close()

	c, _ := testClient(t, srv)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.do(ctx, "test", "query{}", nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBackoffBounds(t *testing.T) {
	for attempt := 1; attempt <= 5; attempt++ {
		base := baseDelay << (attempt - 1)
		for i := 0; i < 20; i++ {
			d := backoff(attempt)
			lo := time.Duration(float64(base) * 0.8)
			hi := time.Duration(float64(base) * 1.2)
			if d < lo || d > hi {
				t.Fatalf("backoff(%d) = %v outside [%v, %v]", attempt, d, lo, hi)
			}
		}
	}
}
