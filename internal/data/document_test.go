package data

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDocumentRepo_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != documentUserAgent {
			t.Errorf("Unexpected user agent %q", ua)
		}
		w.Write([]byte(`<html><head><title>On Newts</title>
			<style>body { color: red; }</style>
			<script>var x = "<p>hidden</p>";</script></head>
			<body><h1>Newts</h1><p>Newts are&nbsp;small &amp; damp.</p></body></html>`))
	}))
	defer srv.Close()

	doc, err := NewDocumentRepo("").Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if doc.Title != "On Newts" {
		t.Errorf("Expected title 'On Newts', got %q", doc.Title)
	}
	if !strings.Contains(doc.Text, "Newts are small & damp.") {
		t.Errorf("Expected visible text, got %q", doc.Text)
	}
	for _, hidden := range []string{"color: red", "hidden", "<p>"} {
		if strings.Contains(doc.Text, hidden) {
			t.Errorf("Expected %q stripped, got %q", hidden, doc.Text)
		}
	}
	if doc.SourceURL != srv.URL {
		t.Errorf("Expected source url %s, got %s", srv.URL, doc.SourceURL)
	}
}

func TestDocumentRepo_FetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := NewDocumentRepo("").Fetch(context.Background(), srv.URL); err == nil {
		t.Error("Expected error for 404")
	}
}

func TestDocumentRepo_FetchRandom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"title": "Great crested newt",
			"extract": "The great crested newt is a newt species.",
			"content_urls": {"desktop": {"page": "https://en.wikipedia.org/wiki/Great_crested_newt"}}
		}`))
	}))
	defer srv.Close()

	doc, err := NewDocumentRepo(srv.URL).FetchRandom(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if doc.Title != "Great crested newt" || doc.SourceURL != "https://en.wikipedia.org/wiki/Great_crested_newt" {
		t.Errorf("Unexpected document: %+v", doc)
	}
}

func TestDocumentRepo_FetchRandomEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"title": "Blank"}`))
	}))
	defer srv.Close()

	if _, err := NewDocumentRepo(srv.URL).FetchRandom(context.Background()); err == nil {
		t.Error("Expected error for a summary without text")
	}
}

func TestTruncateText(t *testing.T) {
	if got := truncateText("héllo", 3); got != "hél" {
		t.Errorf("Expected rune-safe truncation, got %q", got)
	}
	if got := truncateText("hi", 3); got != "hi" {
		t.Errorf("Expected short text unchanged, got %q", got)
	}
}
