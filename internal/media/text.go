package media

import (
	"regexp"
	"strings"
)

var sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]+`)

// SplitTextIntoChunks splits text on sentence boundaries into chunks of at
// most maxChars characters. Sentences longer than maxChars are split on
// word boundaries, and words longer than maxChars are cut.
func SplitTextIntoChunks(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxChars <= 0 || len(text) <= maxChars {
		return []string{text}
	}

	sentences := sentencePattern.FindAllString(text, -1)
	if consumed := strings.Join(sentences, ""); len(consumed) < len(text) {
		// Trailing text without terminal punctuation.
		if rest := strings.TrimSpace(text[strings.LastIndexAny(text, ".!?")+1:]); rest != "" {
			sentences = append(sentences, rest)
		}
	}
	if len(sentences) == 0 {
		sentences = []string{text}
	}

	var (
		chunks  []string
		current strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}
	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		if len(sentence) > maxChars {
			flush()
			chunks = append(chunks, splitWords(sentence, maxChars)...)
			continue
		}
		if current.Len() > 0 && current.Len()+1+len(sentence) > maxChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
	}
	flush()
	return chunks
}

func splitWords(sentence string, maxChars int) []string {
	var (
		chunks  []string
		current string
	)
	for _, word := range strings.Fields(sentence) {
		for len(word) > maxChars {
			if current != "" {
				chunks = append(chunks, current)
				current = ""
			}
			chunks = append(chunks, word[:maxChars])
			word = word[maxChars:]
		}
		switch {
		case current == "":
			current = word
		case len(current)+1+len(word) > maxChars:
			chunks = append(chunks, current)
			current = word
		default:
			current += " " + word
		}
	}
	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks
}
