package extract

import (
	"context"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// extractPDF validates the file with pdfcpu and reads its text layer.
func extractPDF(_ context.Context, path string) (*Result, error) {
	pages, err := api.PageCountFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pdf file: %w", err)
	}
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pdf file: %w", err)
	}
	defer f.Close()
	reader, err := r.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf text: %w", err)
	}
	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf text: %w", err)
	}
	return &Result{Text: string(raw), PageCount: pages}, nil
}
