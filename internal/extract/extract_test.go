package extract

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	perrors "github.com/maibvn/pal/internal/pkg/errors"
	"github.com/stretchr/testify/require"
)

const prose = "Retrieval augmented generation grounds a language model in documents the user uploaded."

func writeFile(t *testing.T, name string, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "collapse whitespace", in: "  a \n\n b\t\tc  ", want: "a b c"},
		{name: "control chars", in: "a\x00b\x07c\x7f", want: "abc"},
		{name: "empty", in: " \n ", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

func TestResolveMime(t *testing.T) {
	tests := []struct {
		declared, filename, want string
		ok                       bool
	}{
		{"application/pdf", "a.bin", MimePDF, true},
		{"text/html; charset=utf-8", "a", MimeHTML, true},
		{"application/octet-stream", "notes.MD", MimeMarkdown, true},
		{"", "report.docx", MimeDocx, true},
		{"application/octet-stream", "page.htm", MimeHTML, true},
		{"image/png", "logo.png", "", false},
	}
	for _, tt := range tests {
		got, ok := ResolveMime(tt.declared, tt.filename)
		require.Equal(t, tt.ok, ok, tt.filename)
		require.Equal(t, tt.want, got, tt.filename)
	}
}

func TestExtract_Text(t *testing.T) {
	path := writeFile(t, "a.txt", "\xef\xbb\xbf"+prose+"\n\n  second   line ")
	res, err := Extract(context.Background(), path, MimeText)
	require.NoError(t, err)
	require.Equal(t, prose+" second line", res.Text)
}

func TestExtract_LegacyDocReadAsText(t *testing.T) {
	path := writeFile(t, "a.doc", prose)
	res, err := Extract(context.Background(), path, MimeDoc)
	require.NoError(t, err)
	require.Equal(t, prose, res.Text)
}

func TestExtract_HTML(t *testing.T) {
	page := `<html><head><style>.x{}</style><script>var a=1;</script></head><body>
	<header>Site header</header><nav>Menu</nav>
	<main><h1>Title</h1>
	<p>` + prose + `</p></main>
	<footer>Copyright</footer></body></html>`
	res, err := Extract(context.Background(), writeFile(t, "a.html", page), MimeHTML)
	require.NoError(t, err)
	require.Equal(t, "Title "+prose, res.Text)

	noMain := `<html><body><nav>Menu</nav><p>` + prose + `</p></body></html>`
	res, err = Extract(context.Background(), writeFile(t, "b.html", noMain), MimeHTML)
	require.NoError(t, err)
	require.Equal(t, prose, res.Text)
}

func TestExtract_Markdown(t *testing.T) {
	md := "# Heading\n\nSome **bold** text and a [link](https://example.com).\n\n```go\nfmt.Println(\"hi\")\n```\n\n" + prose
	res, err := Extract(context.Background(), writeFile(t, "a.md", md), MimeMarkdown)
	require.NoError(t, err)
	require.Contains(t, res.Text, "Heading")
	require.Contains(t, res.Text, "Some bold text and a link.")
	require.Contains(t, res.Text, `fmt.Println("hi")`)
	require.NotContains(t, res.Text, "**")
	require.NotContains(t, res.Text, "https://example.com")
}

func TestExtract_Docx(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:r><w:t>First paragraph of the</w:t></w:r><w:r><w:t xml:space="preserve"> word document.</w:t></w:r></w:p>
<w:p><w:r><w:t>` + prose + `</w:t></w:r></w:p>
</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	res, err := Extract(context.Background(), path, MimeDocx)
	require.NoError(t, err)
	require.Equal(t, "First paragraph of the word document. "+prose, res.Text)
}

func TestExtract_Errors(t *testing.T) {
	_, err := Extract(context.Background(), writeFile(t, "a.png", prose), "image/png")
	require.True(t, errors.Is(err, perrors.ErrUnsupportedType))

	_, err = Extract(context.Background(), writeFile(t, "short.txt", "too short"), MimeText)
	require.True(t, errors.Is(err, perrors.ErrContentTooShort))

	_, err = Extract(context.Background(), writeFile(t, "bad.pdf", "not a pdf "+strings.Repeat("x", 100)), MimePDF)
	require.Error(t, err)

	_, err = Extract(context.Background(), writeFile(t, "bad.docx", "not a zip"), MimeDocx)
	require.Error(t, err)

	_, err = Extract(context.Background(), filepath.Join(t.TempDir(), "missing.txt"), MimeText)
	require.Error(t, err)
}
