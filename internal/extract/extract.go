package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	perrors "github.com/maibvn/pal/internal/pkg/errors"
)

const (
	MimePDF      = "application/pdf"
	MimeHTML     = "text/html"
	MimeText     = "text/plain"
	MimeMarkdown = "text/markdown"
	MimeDoc      = "application/msword"
	MimeDocx     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// MinContentLength is the shortest cleaned text accepted as a document.
const MinContentLength = 50

type Result struct {
	Text      string
	PageCount int
}

type Extractor interface {
	Extract(ctx context.Context, path string) (*Result, error)
}

type ExtractorFunc func(ctx context.Context, path string) (*Result, error)

func (f ExtractorFunc) Extract(ctx context.Context, path string) (*Result, error) {
	return f(ctx, path)
}

var (
	byMime = map[string]Extractor{}
	byExt  = map[string]string{}
)

func register(mime string, e Extractor, exts ...string) {
	byMime[mime] = e
	for _, ext := range exts {
		byExt[ext] = mime
	}
}

func init() {
	register(MimePDF, ExtractorFunc(extractPDF), ".pdf")
	register(MimeHTML, ExtractorFunc(extractHTML), ".html", ".htm")
	register(MimeText, ExtractorFunc(extractText), ".txt")
	register(MimeMarkdown, ExtractorFunc(extractMarkdown), ".md", ".markdown")
	register(MimeDoc, ExtractorFunc(extractText), ".doc")
	register(MimeDocx, ExtractorFunc(extractDocx), ".docx")
}

func baseMime(mime string) string {
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	return strings.ToLower(strings.TrimSpace(mime))
}

func Supported(mime string) bool {
	_, ok := byMime[baseMime(mime)]
	return ok
}

// ResolveMime returns the supported MIME type for an upload. A supported declared type wins,
// otherwise the file extension decides. Browsers often send octet-stream for .md or .docx.
func ResolveMime(declared, filename string) (string, bool) {
	if m := baseMime(declared); Supported(m) {
		return m, true
	}
	if m, ok := byExt[strings.ToLower(filepath.Ext(filename))]; ok {
		return m, true
	}
	return "", false
}

// Extract reads the file at path with the extractor registered for mime and cleans the text.
func Extract(ctx context.Context, path string, mime string) (*Result, error) {
	e, ok := byMime[baseMime(mime)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", perrors.ErrUnsupportedType, mime)
	}
	res, err := e.Extract(ctx, path)
	if err != nil {
		return nil, err
	}
	res.Text = Clean(res.Text)
	if utf8.RuneCountInString(res.Text) < MinContentLength {
		return nil, perrors.ErrContentTooShort
	}
	return res, nil
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	controlChars  = regexp.MustCompile("[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]")
)

// Clean collapses whitespace runs to a single space and strips control characters.
func Clean(text string) string {
	text = whitespaceRun.ReplaceAllString(text, " ")
	text = controlChars.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
