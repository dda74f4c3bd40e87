package data

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/0x70b1a5/jeevespt/internal/biz/repo"
)

const (
	// DefaultRandomDocumentURL returns a random encyclopedia article summary
	DefaultRandomDocumentURL = "https://en.wikipedia.org/api/rest_v1/page/random/summary"

	documentUserAgent = "jeevespt/1.0 (reference fetch)"
	maxDocumentBytes  = 3_000_000
	maxDocumentRunes  = 6000
)

var (
	reScript     = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	reStyle      = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	reTag        = regexp.MustCompile(`(?s)<[^>]+>`)
	reTitle      = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	reWhitespace = regexp.MustCompile(`\s+`)
)

// documentRepo implements the document repository over plain HTTP
type documentRepo struct {
	client    *http.Client
	randomURL string
}

// NewDocumentRepo creates a document fetcher; an empty randomURL uses the encyclopedia default
func NewDocumentRepo(randomURL string) repo.DocumentRepo {
	if randomURL == "" {
		randomURL = DefaultRandomDocumentURL
	}
	return &documentRepo{
		client:    &http.Client{Timeout: 30 * time.Second},
		randomURL: randomURL,
	}
}

// Fetch gets a page and returns its visible text
func (r *documentRepo) Fetch(ctx context.Context, url string) (*repo.Document, error) {
	body, err := r.get(ctx, url)
	if err != nil {
		return nil, err
	}
	page := string(body)

	title := ""
	if m := reTitle.FindStringSubmatch(page); len(m) == 2 {
		title = normalizeWhitespace(stripHTML(m[1]))
	}
	return &repo.Document{
		Title:     title,
		Text:      truncateText(normalizeWhitespace(stripHTML(page)), maxDocumentRunes),
		SourceURL: url,
	}, nil
}

// randomSummary is the subset of the summary endpoint response we read
type randomSummary struct {
	Title       string `json:"title"`
	Extract     string `json:"extract"`
	ContentURLs struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

// FetchRandom gets a random reference article
func (r *documentRepo) FetchRandom(ctx context.Context) (*repo.Document, error) {
	body, err := r.get(ctx, r.randomURL)
	if err != nil {
		return nil, err
	}

	var summary randomSummary
	if err := json.Unmarshal(body, &summary); err != nil {
		return nil, fmt.Errorf("failed to decode random document: %w", err)
	}
	if summary.Extract == "" {
		return nil, fmt.Errorf("random document %q has no text", summary.Title)
	}
	return &repo.Document{
		Title:     summary.Title,
		Text:      truncateText(summary.Extract, maxDocumentRunes),
		SourceURL: summary.ContentURLs.Desktop.Page,
	}, nil
}

func (r *documentRepo) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", documentUserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch %s: http status %s", url, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", url, err)
	}
	return body, nil
}

func stripHTML(s string) string {
	s = reScript.ReplaceAllString(s, " ")
	s = reStyle.ReplaceAllString(s, " ")
	s = reTag.ReplaceAllString(s, " ")
	return html.UnescapeString(s)
}

func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.TrimSpace(reWhitespace.ReplaceAllString(s, " "))
}

func truncateText(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
