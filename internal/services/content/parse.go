package content

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"vidpipe/internal/media"
	"vidpipe/internal/services/llm"
)

const defaultSegmentDescription = "No description provided"

func decodeObject(reply string) (map[string]any, error) {
	var fields map[string]any
	if err := llm.DecodeLLMJSON(reply, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func lookup(fields map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := fields[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func stringField(fields map[string]any, keys ...string) string {
	return strings.TrimSpace(cast.ToString(lookup(fields, keys...)))
}

// stringList accepts a JSON array or comma-separated text.
func stringList(v any) []string {
	var raw []string
	if text, ok := v.(string); ok {
		raw = strings.Split(text, ",")
	} else {
		raw = cast.ToStringSlice(v)
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parseSeconds accepts plain seconds or a HH:MM:SS / MM:SS clock.
func parseSeconds(v any) (float64, error) {
	text, ok := v.(string)
	if !ok || !strings.Contains(text, ":") {
		return cast.ToFloat64E(v)
	}
	parts := strings.Split(strings.TrimSpace(text), ":")
	total := 0.0
	for _, part := range parts {
		n, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp %q", text)
		}
		total = total*60 + n
	}
	return total, nil
}

func parseSegments(reply string) ([]media.Segment, error) {
	var payload struct {
		Segments []map[string]any `json:"segments"`
	}
	if err := llm.DecodeLLMJSON(reply, &payload); err != nil {
		var bare []map[string]any
		if bareErr := llm.DecodeLLMJSON(reply, &bare); bareErr != nil {
			return nil, err
		}
		payload.Segments = bare
	}
	if len(payload.Segments) == 0 {
		return nil, errors.New("reply contains no segments")
	}
	segments := make([]media.Segment, 0, len(payload.Segments))
	for i, raw := range payload.Segments {
		start, err := parseSeconds(raw["start"])
		if err != nil {
			return nil, fmt.Errorf("segment %d start: %w", i, err)
		}
		end, err := parseSeconds(raw["end"])
		if err != nil {
			return nil, fmt.Errorf("segment %d end: %w", i, err)
		}
		description := strings.TrimSpace(cast.ToString(raw["description"]))
		if description == "" {
			description = defaultSegmentDescription
		}
		segments = append(segments, media.Segment{
			Start:       start,
			End:         end,
			Type:        strings.ToLower(strings.TrimSpace(cast.ToString(raw["type"]))),
			Description: description,
		})
	}
	return segments, nil
}

// normalizeConfidence maps a 0..100 score onto 0..1.
func normalizeConfidence(v float64) float64 {
	if v > 1 {
		v /= 100
	}
	return min(max(v, 0), 1)
}

func parseVerdict(reply string) (media.CopyrightVerdict, error) {
	fields, err := decodeObject(reply)
	if err != nil {
		return parseVerdictText(reply)
	}
	validRaw := lookup(fields, "isValid", "is_valid", "valid")
	if validRaw == nil {
		return media.CopyrightVerdict{}, errors.New("reply has no isValid field")
	}
	valid, err := cast.ToBoolE(validRaw)
	if err != nil {
		return media.CopyrightVerdict{}, fmt.Errorf("isValid: %w", err)
	}
	confidence, _ := cast.ToFloat64E(lookup(fields, "confidence"))
	return media.CopyrightVerdict{
		IsValid:    valid,
		Issues:     stringList(lookup(fields, "issues")),
		Confidence: normalizeConfidence(confidence),
	}, nil
}

// parseVerdictText reads the line format:
//
//	VALID|INVALID
//	Confidence: 0-100
//	Issues:
//	- issue
func parseVerdictText(reply string) (media.CopyrightVerdict, error) {
	lines := strings.Split(strings.TrimSpace(llm.StripCodeFence(reply)), "\n")
	var verdict media.CopyrightVerdict
	switch strings.ToUpper(strings.TrimSpace(lines[0])) {
	case "VALID":
		verdict.IsValid = true
	case "INVALID":
	default:
		return media.CopyrightVerdict{}, fmt.Errorf("unrecognized copyright reply %q", strings.TrimSpace(lines[0]))
	}
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(strings.ToLower(line), "confidence:"):
			value := strings.TrimSpace(line[len("confidence:"):])
			verdict.Confidence = normalizeConfidence(cast.ToFloat64(strings.TrimSuffix(value, "%")))
		case strings.HasPrefix(line, "-"):
			if issue := strings.TrimSpace(strings.TrimPrefix(line, "-")); issue != "" {
				verdict.Issues = append(verdict.Issues, issue)
			}
		}
	}
	return verdict, nil
}

// parseSensitive leans towards sensitive when the reply is ambiguous.
func parseSensitive(reply string) bool {
	upper := strings.ToUpper(strings.TrimSpace(reply))
	switch {
	case strings.HasPrefix(upper, "SAFE"):
		return false
	case strings.HasPrefix(upper, "SENSITIVE"):
		return true
	default:
		return strings.Contains(upper, "SENSITIVE")
	}
}
