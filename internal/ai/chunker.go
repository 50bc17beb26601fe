package ai

import "unicode"

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// TextWindow is one chunk of cleaned text. Offsets are character (rune) positions.
type TextWindow struct {
	Content    string
	StartIndex int
	EndIndex   int
	WordCount  int
}

type Chunker struct {
	size    int
	overlap int
}

func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &Chunker{size: size, overlap: overlap}
}

type token struct {
	byteStart, byteEnd int
	runeStart, runeEnd int
	length             int
}

func tokenize(content string) []token {
	var tokens []token
	inWord := false
	runePos := 0
	var cur token
	for i, r := range content {
		if unicode.IsSpace(r) {
			if inWord {
				cur.byteEnd, cur.runeEnd = i, runePos
				cur.length = cur.runeEnd - cur.runeStart
				tokens = append(tokens, cur)
				inWord = false
			}
		} else if !inWord {
			cur = token{byteStart: i, runeStart: runePos}
			inWord = true
		}
		runePos++
	}
	if inWord {
		cur.byteEnd, cur.runeEnd = len(content), runePos
		cur.length = cur.runeEnd - cur.runeStart
		tokens = append(tokens, cur)
	}
	return tokens
}

// Split greedily packs whitespace-delimited words into windows of at most size characters.
// Each new window is seeded with the trailing overlap/10 words of the previous one.
// A word longer than size is emitted whole as its own window.
func (c *Chunker) Split(content string) []TextWindow {
	tokens := tokenize(content)
	if len(tokens) == 0 {
		return nil
	}
	carry := c.overlap / 10
	var out []TextWindow
	emit := func(window []token) {
		first, last := window[0], window[len(window)-1]
		out = append(out, TextWindow{
			Content:    content[first.byteStart:last.byteEnd],
			StartIndex: first.runeStart,
			EndIndex:   last.runeEnd,
			WordCount:  len(window),
		})
	}

	var cur []token
	curLen := 0
	for _, tk := range tokens {
		wordLen := tk.length + 1
		if curLen+wordLen > c.size && len(cur) > 0 {
			emit(cur)
			keep := min(carry, len(cur)-1)
			seed := append([]token(nil), cur[len(cur)-keep:]...)
			seedLen := 0
			for _, s := range seed {
				seedLen += s.length + 1
			}
			if seedLen+wordLen > c.size {
				seed, seedLen = nil, 0
			}
			cur, curLen = seed, seedLen
		}
		cur = append(cur, tk)
		curLen += wordLen
	}
	emit(cur)
	return out
}
