package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSerperSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-API-KEY"); got != "test-key" {
			t.Errorf("expected api key header, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"organic":[
			{"title":"Q2 earnings beat","link":"https://example.com/a","snippet":"Revenue up 12%"},
			{"title":"Sector outlook","link":"https://example.com/b","snippet":"Mixed signals"}
		]}`))
	}))
	defer srv.Close()

	client, err := NewSerperClient("test-key")
	if err != nil {
		t.Fatalf("NewSerperClient: %v", err)
	}
	client.baseURL = srv.URL

	results, err := client.Search(context.Background(), "acme corp earnings")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Title != "Q2 earnings beat" {
		t.Fatalf("unexpected first result: %+v", results[0])
	}
}

func TestSerperSearchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Unauthorized"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	client, err := NewSerperClient("bad-key")
	if err != nil {
		t.Fatalf("NewSerperClient: %v", err)
	}
	client.baseURL = srv.URL

	if _, err := client.Search(context.Background(), "anything"); err == nil {
		t.Fatalf("expected error for non-200 status")
	}
}

func TestSerperClientRequiresKey(t *testing.T) {
	if _, err := NewSerperClient("  "); err == nil {
		t.Fatalf("expected error for blank api key")
	}
}

func TestSerperSearchRejectsEmptyQuery(t *testing.T) {
	client, err := NewSerperClient("test-key")
	if err != nil {
		t.Fatalf("NewSerperClient: %v", err)
	}
	if _, err := client.Search(context.Background(), "   "); err == nil {
		t.Fatalf("expected error for empty query")
	}
}

func TestFormatResults(t *testing.T) {
	if got := FormatResults(nil); got != "No search results found." {
		t.Fatalf("unexpected empty formatting: %q", got)
	}

	got := FormatResults([]Result{
		{Title: "A", Link: "https://a", Snippet: "first"},
		{Title: "B", Link: "https://b", Snippet: "second"},
	})
	if !strings.Contains(got, "1. A") || !strings.Contains(got, "2. B") {
		t.Fatalf("missing numbering: %q", got)
	}
}
