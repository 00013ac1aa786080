// Package chunk splits extracted text into overlapping pieces sized
// for embedding.
package chunk

import "strings"

const (
	DefaultSize    = 512
	DefaultOverlap = 64
)

// Strategy selects how boundaries are chosen.
type Strategy string

const (
	// StrategyWindow slides a fixed rune window with overlap.
	StrategyWindow Strategy = "window"
	// StrategySentence packs whole sentences up to the size limit,
	// carrying trailing sentences into the next chunk as overlap.
	StrategySentence Strategy = "sentence"
)

type Options struct {
	Strategy Strategy
	Size     int // rune count
	Overlap  int // rune count
}

func (o Options) normalized() Options {
	if o.Size <= 0 {
		o.Size = DefaultSize
	}
	if o.Overlap < 0 || o.Overlap >= o.Size {
		o.Overlap = o.Size / 8
	}
	if o.Strategy == "" {
		o.Strategy = StrategyWindow
	}
	return o
}

// Split breaks text into chunks. Empty input yields no chunks.
func Split(text string, opts Options) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	opts = opts.normalized()
	if opts.Strategy == StrategySentence {
		return splitSentences(text, opts.Size, opts.Overlap)
	}
	return splitWindow(text, opts.Size, opts.Overlap)
}

func splitWindow(text string, size, overlap int) []string {
	var chunks []string
	runes := []rune(text)
	for i := 0; i < len(runes); {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
		i += size - overlap
		if i >= len(runes) {
			break
		}
	}
	return chunks
}

func splitSentences(text string, size, overlap int) []string {
	sentences := sentenceSplit(text)

	var chunks []string
	var current []string
	currentLen := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, strings.TrimSpace(strings.Join(current, " ")))

		// Carry trailing sentences up to the overlap budget.
		var carried []string
		carriedLen := 0
		for i := len(current) - 1; i >= 0; i-- {
			l := len([]rune(current[i]))
			if carriedLen+l > overlap {
				break
			}
			carried = append([]string{current[i]}, carried...)
			carriedLen += l
		}
		current = carried
		currentLen = carriedLen
	}

	for _, s := range sentences {
		l := len([]rune(s))
		if l > size {
			// A single oversized sentence falls back to the window.
			flush()
			current = nil
			currentLen = 0
			chunks = append(chunks, splitWindow(s, size, overlap)...)
			continue
		}
		if currentLen+l > size {
			flush()
		}
		current = append(current, s)
		currentLen += l
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.TrimSpace(strings.Join(current, " ")))
	}
	return chunks
}

func sentenceSplit(text string) []string {
	var sentences []string
	var b strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		b.WriteRune(r)
		if isSentenceEnd(r) && (i == len(runes)-1 || isBoundary(runes[i+1])) {
			if s := strings.TrimSpace(b.String()); s != "" {
				sentences = append(sentences, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

func isBoundary(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}
