package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/maibvn/pal/internal/model"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const (
	defaultSerpAPIEndpoint = "https://serpapi.com/search"
	defaultBingEndpoint    = "https://api.bing.microsoft.com/v7.0/search"
	defaultTimeout         = 10 * time.Second
)

var ErrNotConfigured = errors.New("web search not configured")

type Config struct {
	SerpAPIKey      string
	BingKey         string
	Timeout         time.Duration
	SerpAPIEndpoint string
	BingEndpoint    string
}

// Searcher queries SerpAPI when a key is present, otherwise Bing.
type Searcher struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *Searcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.SerpAPIEndpoint == "" {
		cfg.SerpAPIEndpoint = defaultSerpAPIEndpoint
	}
	if cfg.BingEndpoint == "" {
		cfg.BingEndpoint = defaultBingEndpoint
	}
	cfg.SerpAPIKey = strings.TrimSpace(cfg.SerpAPIKey)
	cfg.BingKey = strings.TrimSpace(cfg.BingKey)
	return &Searcher{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (s *Searcher) Available() bool {
	return s != nil && (s.cfg.SerpAPIKey != "" || s.cfg.BingKey != "")
}

func (s *Searcher) Engine() string {
	switch {
	case s == nil:
		return ""
	case s.cfg.SerpAPIKey != "":
		return "google"
	case s.cfg.BingKey != "":
		return "bing"
	}
	return ""
}

func (s *Searcher) Search(ctx context.Context, query string, maxResults int) ([]model.WebResult, error) {
	if maxResults <= 0 {
		maxResults = 3
	}
	switch {
	case !s.Available():
		return nil, ErrNotConfigured
	case s.cfg.SerpAPIKey != "":
		return s.searchSerpAPI(ctx, query, maxResults)
	default:
		return s.searchBing(ctx, query, maxResults)
	}
}

type serpAPIResponse struct {
	OrganicResults []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
		Link    string `json:"link"`
	} `json:"organic_results"`
}

func (s *Searcher) searchSerpAPI(ctx context.Context, query string, maxResults int) ([]model.WebResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("api_key", s.cfg.SerpAPIKey)
	params.Set("engine", "google")
	params.Set("num", strconv.Itoa(maxResults))
	var out serpAPIResponse
	if err := s.get(ctx, s.cfg.SerpAPIEndpoint+"?"+params.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("serpapi search: %w", err)
	}
	results := make([]model.WebResult, 0, maxResults)
	for _, r := range out.OrganicResults {
		if len(results) >= maxResults {
			break
		}
		results = append(results, model.WebResult{Title: r.Title, Snippet: r.Snippet, Link: r.Link, Source: "google"})
	}
	return results, nil
}

type bingResponse struct {
	WebPages struct {
		Value []struct {
			Name    string `json:"name"`
			Snippet string `json:"snippet"`
			URL     string `json:"url"`
		} `json:"value"`
	} `json:"webPages"`
}

func (s *Searcher) searchBing(ctx context.Context, query string, maxResults int) ([]model.WebResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(maxResults))
	params.Set("responseFilter", "Webpages")
	headers := map[string]string{"Ocp-Apim-Subscription-Key": s.cfg.BingKey}
	var out bingResponse
	if err := s.get(ctx, s.cfg.BingEndpoint+"?"+params.Encode(), headers, &out); err != nil {
		return nil, fmt.Errorf("bing search: %w", err)
	}
	results := make([]model.WebResult, 0, maxResults)
	for _, r := range out.WebPages.Value {
		if len(results) >= maxResults {
			break
		}
		results = append(results, model.WebResult{Title: r.Name, Snippet: r.Snippet, Link: r.URL, Source: "bing"})
	}
	return results, nil
}

func (s *Searcher) get(ctx context.Context, endpoint string, headers map[string]string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	logutil.GetLogger(ctx).Debug("web search request finished",
		zap.String("engine", s.Engine()), zap.Int("status", resp.StatusCode), zap.Duration("cost", time.Since(start)))
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// FormatContext renders results as numbered reference text for the prompt.
func FormatContext(results []model.WebResult) string {
	parts := make([]string, 0, len(results))
	for i, r := range results {
		parts = append(parts, fmt.Sprintf("[Web Result %d] %s\n%s\nSource: %s", i+1, r.Title, r.Snippet, r.Link))
	}
	return strings.Join(parts, "\n\n")
}
