package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter cuts text into chunks of at most Size runes, preferring the
// earliest separator in the list that occurs in the text and recursing into
// pieces that are still too long. Neighbouring chunks share up to Overlap
// runes. Separators stay attached to the start of the piece that follows them.
type Splitter struct {
	size       int
	overlap    int
	separators []string
}

func NewSplitter(size, overlap int, separators ...string) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be > 0")
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d)", size)
	}
	if len(separators) == 0 {
		separators = DefaultSeparators
	}
	return &Splitter{size: size, overlap: overlap, separators: separators}, nil
}

func (s *Splitter) Split(text string) []string {
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var next []string
	for i, candidate := range separators {
		if candidate == "" {
			separator = candidate
			break
		}
		if strings.Contains(text, candidate) {
			separator = candidate
			next = separators[i+1:]
			break
		}
	}

	chunks := make([]string, 0)
	good := make([]string, 0)
	for _, piece := range splitKeepingSeparator(text, separator) {
		if runeLen(piece) < s.size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			chunks = append(chunks, s.merge(good)...)
			good = good[:0]
		}
		if len(next) == 0 {
			chunks = append(chunks, piece)
		} else {
			chunks = append(chunks, s.split(piece, next)...)
		}
	}
	if len(good) > 0 {
		chunks = append(chunks, s.merge(good)...)
	}
	return chunks
}

// merge packs pieces into chunks, carrying up to overlap runes of trailing
// pieces into the next chunk.
func (s *Splitter) merge(pieces []string) []string {
	docs := make([]string, 0)
	current := make([]string, 0)
	total := 0
	for _, piece := range pieces {
		length := runeLen(piece)
		if total+length > s.size && len(current) > 0 {
			if doc := joinTrimmed(current); doc != "" {
				docs = append(docs, doc)
			}
			for total > s.overlap || (total+length > s.size && total > 0) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += length
	}
	if doc := joinTrimmed(current); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

func splitKeepingSeparator(text, separator string) []string {
	var pieces []string
	if separator == "" {
		pieces = make([]string, 0, len(text))
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
	} else {
		parts := strings.Split(text, separator)
		pieces = make([]string, 0, len(parts))
		pieces = append(pieces, parts[0])
		for _, part := range parts[1:] {
			pieces = append(pieces, separator+part)
		}
	}
	out := pieces[:0]
	for _, piece := range pieces {
		if piece != "" {
			out = append(out, piece)
		}
	}
	return out
}

func joinTrimmed(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, ""))
}

func runeLen(value string) int {
	return utf8.RuneCountInString(value)
}
