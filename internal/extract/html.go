package extract

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

func extractHTML(_ context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open html file: %w", err)
	}
	defer f.Close()
	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("parse html file: %w", err)
	}
	doc.Find("script, style, nav, footer, header, noscript").Remove()
	for _, sel := range []string{"main", "article", "body"} {
		if text := strings.TrimSpace(doc.Find(sel).Text()); text != "" {
			return &Result{Text: text}, nil
		}
	}
	return &Result{Text: doc.Text()}, nil
}
