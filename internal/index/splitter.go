package index

import (
	"regexp"
	"strings"
)

var sentencePattern = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)

// Splitter produces length-bounded, sentence-coherent passages. Sentences
// are accumulated until maxLen runes; a sentence longer than maxLen is
// hard-wrapped so no passage ever exceeds the embedding input limit.
type Splitter struct {
	maxLen  int
	overlap int // sentences carried over between adjacent passages
}

func NewSplitter(maxLen, overlap int) *Splitter {
	if maxLen <= 0 {
		maxLen = 2000
	}
	if overlap < 0 {
		overlap = 0
	}
	return &Splitter{maxLen: maxLen, overlap: overlap}
}

// Split returns the document's passages in order. Empty input yields nil.
func (s *Splitter) Split(text string) []string {
	sentences := sentencePattern.FindAllString(text, -1)
	if len(sentences) == 0 {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		sentences = []string{trimmed}
	}

	var bounded []string
	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		bounded = append(bounded, s.wrap(sentence)...)
	}

	var passages []string
	var current []string
	currentLen := 0
	for i := 0; i < len(bounded); i++ {
		sentence := bounded[i]
		length := len([]rune(sentence))
		if currentLen > 0 && currentLen+length+1 > s.maxLen {
			passages = append(passages, strings.Join(current, " "))
			// carry the trailing overlap sentences into the next passage
			start := len(current) - s.overlap
			if start < 0 {
				start = 0
			}
			current = append([]string(nil), current[start:]...)
			currentLen = 0
			for _, kept := range current {
				currentLen += len([]rune(kept)) + 1
			}
			// drop the overlap when it would push this passage over the cap
			if currentLen+length+1 > s.maxLen {
				current = nil
				currentLen = 0
			}
		}
		current = append(current, sentence)
		currentLen += length + 1
	}
	if len(current) > 0 {
		passages = append(passages, strings.Join(current, " "))
	}
	return passages
}

// wrap hard-splits a single oversized sentence at rune boundaries.
func (s *Splitter) wrap(sentence string) []string {
	runes := []rune(sentence)
	if len(runes) <= s.maxLen {
		return []string{sentence}
	}
	var parts []string
	for start := 0; start < len(runes); start += s.maxLen {
		end := start + s.maxLen
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[start:end]))
	}
	return parts
}
