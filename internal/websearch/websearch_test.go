package websearch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/maibvn/pal/internal/model"
	"github.com/stretchr/testify/require"
)

func TestSearcher_Availability(t *testing.T) {
	require.False(t, New(Config{}).Available())
	require.False(t, New(Config{SerpAPIKey: "  "}).Available())
	require.Equal(t, "google", New(Config{SerpAPIKey: "k", BingKey: "b"}).Engine())
	require.Equal(t, "bing", New(Config{BingKey: "b"}).Engine())

	_, err := New(Config{}).Search(context.Background(), "q", 3)
	require.True(t, errors.Is(err, ErrNotConfigured))
}

func TestSearcher_SerpAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "golang generics", q.Get("q"))
		require.Equal(t, "serp-key", q.Get("api_key"))
		require.Equal(t, "google", q.Get("engine"))
		require.Equal(t, "2", q.Get("num"))
		_, _ = w.Write([]byte(`{"organic_results":[
			{"title":"T1","snippet":"S1","link":"https://a"},
			{"title":"T2","snippet":"S2","link":"https://b"},
			{"title":"T3","snippet":"S3","link":"https://c"}]}`))
	}))
	defer srv.Close()

	s := New(Config{SerpAPIKey: "serp-key", BingKey: "ignored", SerpAPIEndpoint: srv.URL})
	res, err := s.Search(context.Background(), "golang generics", 2)
	require.NoError(t, err)
	require.Equal(t, []model.WebResult{
		{Title: "T1", Snippet: "S1", Link: "https://a", Source: "google"},
		{Title: "T2", Snippet: "S2", Link: "https://b", Source: "google"},
	}, res)
}

func TestSearcher_Bing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "bing-key", r.Header.Get("Ocp-Apim-Subscription-Key"))
		require.Equal(t, "Webpages", r.URL.Query().Get("responseFilter"))
		require.Equal(t, "3", r.URL.Query().Get("count"))
		_, _ = w.Write([]byte(`{"webPages":{"value":[{"name":"N","snippet":"S","url":"https://n"}]}}`))
	}))
	defer srv.Close()

	s := New(Config{BingKey: "bing-key", BingEndpoint: srv.URL})
	res, err := s.Search(context.Background(), "q", 0)
	require.NoError(t, err)
	require.Equal(t, []model.WebResult{{Title: "N", Snippet: "S", Link: "https://n", Source: "bing"}}, res)
}

func TestSearcher_ErrorsAndTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "slow" {
			time.Sleep(200 * time.Millisecond)
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := New(Config{SerpAPIKey: "k", SerpAPIEndpoint: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := s.Search(context.Background(), "fast", 3)
	require.Error(t, err)
	require.Contains(t, err.Error(), "401")

	_, err = s.Search(context.Background(), "slow", 3)
	require.Error(t, err)
}

func TestFormatContext(t *testing.T) {
	got := FormatContext([]model.WebResult{
		{Title: "A", Snippet: "first", Link: "https://a"},
		{Title: "B", Snippet: "second", Link: "https://b"},
	})
	require.Equal(t, "[Web Result 1] A\nfirst\nSource: https://a\n\n[Web Result 2] B\nsecond\nSource: https://b", got)
	require.Empty(t, FormatContext(nil))
}
