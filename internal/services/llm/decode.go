package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const snippetLimit = 160

// DecodeLLMJSON unmarshals a model reply into target. Replies wrapped in a
// markdown fence or surrounded by prose are narrowed to the outermost JSON
// object, then array, before giving up.
func DecodeLLMJSON(reply string, target any) error {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return errors.New("decode llm reply: empty payload")
	}
	var firstErr error
	for _, candidate := range jsonCandidates(reply) {
		err := json.Unmarshal([]byte(candidate), target)
		if err == nil {
			return nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return fmt.Errorf("decode llm reply: %w (payload snippet: %s)", firstErr, snippet(reply))
}

// StripCodeFence returns the body of a fenced reply, dropping the info string
// ("json") on the opening line. Unfenced replies are only trimmed.
func StripCodeFence(reply string) string {
	body, fenced := strings.CutPrefix(strings.TrimSpace(reply), "```")
	if !fenced {
		return strings.TrimSpace(reply)
	}
	if nl := strings.IndexAny(body, "\r\n"); nl >= 0 && !strings.ContainsAny(body[:nl], "{[") {
		body = body[nl+1:]
	}
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func jsonCandidates(reply string) []string {
	candidates := []string{reply}
	body := StripCodeFence(reply)
	if body != reply {
		candidates = append(candidates, body)
	}
	for _, delims := range [...][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(body, delims[0])
		end := strings.LastIndex(body, delims[1])
		if start < 0 || end <= start {
			continue
		}
		if inner := body[start : end+1]; inner != body {
			candidates = append(candidates, inner)
		}
	}
	return candidates
}

func snippet(reply string) string {
	flat := strings.Join(strings.Fields(reply), " ")
	if flat == "" {
		return "<empty>"
	}
	if runes := []rune(flat); len(runes) > snippetLimit {
		return string(runes[:snippetLimit]) + "..."
	}
	return flat
}
