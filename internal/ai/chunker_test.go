package ai

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func uniqueProse(chars int) string {
	var sb strings.Builder
	for i := 0; sb.Len() < chars; i++ {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(fmt.Sprintf("word%04d", i))
	}
	return sb.String()[:chars]
}

func TestChunkerSplit_EdgeCases(t *testing.T) {
	c := NewChunker(1000, 200)
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{name: "empty", content: "", want: nil},
		{name: "only spaces", content: "   \n\t ", want: nil},
		{name: "single word", content: "  hello  ", want: []string{"hello"}},
		{name: "short text", content: "a short sentence here", want: []string{"a short sentence here"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			windows := c.Split(tt.content)
			var got []string
			for _, w := range windows {
				got = append(got, w.Content)
			}
			require.Equal(t, tt.want, got)
		})
	}
}

func TestChunkerSplit_LongWordNotTruncated(t *testing.T) {
	c := NewChunker(10, 0)
	long := strings.Repeat("x", 25)
	windows := c.Split("ab " + long + " cd")
	require.Len(t, windows, 3)
	require.Equal(t, "ab", windows[0].Content)
	require.Equal(t, long, windows[1].Content)
	require.Equal(t, "cd", windows[2].Content)
}

func TestChunkerSplit_TwoWindowsWithOverlap(t *testing.T) {
	content := uniqueProse(1500)
	windows := NewChunker(1000, 200).Split(content)
	require.Len(t, windows, 2)

	first := strings.Fields(windows[0].Content)
	second := strings.Fields(windows[1].Content)
	require.Equal(t, first[len(first)-20:], second[:20])
	require.LessOrEqual(t, len(windows[0].Content), 1000)
	require.Equal(t, len(content), windows[1].EndIndex)
}

func TestChunkerSplit_OffsetsMatchContent(t *testing.T) {
	content := uniqueProse(3200)
	windows := NewChunker(500, 100).Split(content)
	require.Greater(t, len(windows), 5)
	for i, w := range windows {
		require.Equal(t, w.Content, content[w.StartIndex:w.EndIndex], "window %d", i)
		require.Equal(t, len(strings.Fields(w.Content)), w.WordCount)
	}
	require.Equal(t, 0, windows[0].StartIndex)
	require.Equal(t, len(content), windows[len(windows)-1].EndIndex)
}

func TestChunkerSplit_NoGaps(t *testing.T) {
	content := uniqueProse(5000)
	windows := NewChunker(400, 80).Split(content)
	for i := 1; i < len(windows); i++ {
		// each window starts inside or right after the previous one
		require.LessOrEqual(t, windows[i].StartIndex, windows[i-1].EndIndex+1)
		require.Greater(t, windows[i].EndIndex, windows[i-1].EndIndex)
	}
}

func TestChunkerSplit_RepeatedTextKeepsOwnOffsets(t *testing.T) {
	content := strings.TrimSpace(strings.Repeat("same words again ", 40))
	windows := NewChunker(100, 0).Split(content)
	require.Greater(t, len(windows), 2)
	for i := 1; i < len(windows); i++ {
		require.Greater(t, windows[i].StartIndex, windows[i-1].StartIndex)
	}
}

func TestChunkerSplit_RuneOffsets(t *testing.T) {
	content := "héllo wörld ünïcode"
	windows := NewChunker(12, 0).Split(content)
	require.Len(t, windows, 2)
	require.Equal(t, "héllo wörld", windows[0].Content)
	require.Equal(t, 0, windows[0].StartIndex)
	require.Equal(t, 11, windows[0].EndIndex)
	require.Equal(t, 12, windows[1].StartIndex)
	require.Equal(t, 19, windows[1].EndIndex)
}
