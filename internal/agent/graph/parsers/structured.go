// Package parsers decodes structured LLM output. Every decode is strict:
// the model's reply must be a single JSON object conforming to the
// requested shape, or the call fails and the node substitutes its fixed
// fallback value. Nothing here ever guesses.
package parsers

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gorodbot/server/internal/agent/model"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 64 * 1024 // 64KB
	maxErrSnippet = 200
)

var codeFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// extractJSON strips markdown fences and surrounding prose, returning the
// outermost JSON object found in the content.
func extractJSON(content string) (string, error) {
	if len(content) > maxContentLen {
		content = content[:maxContentLen]
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("empty model output")
	}

	if m := codeFenceRe.FindStringSubmatch(content); len(m) == 2 {
		content = strings.TrimSpace(m[1])
	}

	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object in output: %s", safeSnippet(content))
	}
	return content[start : end+1], nil
}

func decodeStrict(content string, out any) error {
	raw, err := extractJSON(content)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode model output: %w (%s)", err, safeSnippet(raw))
	}
	return nil
}

// ParseClassification decodes the classifier's output and validates the
// category against the closed enum. Out-of-enum values are an error so the
// caller falls back deterministically.
func ParseClassification(content string) (*model.CategoryClassification, error) {
	var c model.CategoryClassification
	if err := decodeStrict(content, &c); err != nil {
		return nil, err
	}
	c.Category = strings.ToLower(strings.TrimSpace(c.Category))
	if _, ok := model.ParseCategory(c.Category); !ok {
		return nil, fmt.Errorf("category %q not in enum", safeSnippet(c.Category))
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return nil, fmt.Errorf("confidence %v out of range", c.Confidence)
	}
	return &c, nil
}

// ParseSlotsCheck decodes the slot checker's output. The contract requires
// a clarification question whenever the slots are not clear.
func ParseSlotsCheck(content string) (*model.SlotsCheck, error) {
	var s model.SlotsCheck
	if err := decodeStrict(content, &s); err != nil {
		return nil, err
	}
	s.ExtractedAddress = strings.TrimSpace(s.ExtractedAddress)
	s.ExtractedDistrict = strings.TrimSpace(s.ExtractedDistrict)
	s.ClarificationQuestion = strings.TrimSpace(s.ClarificationQuestion)
	if !s.IsClear && s.ClarificationQuestion == "" {
		return nil, fmt.Errorf("slots unclear but no clarification question")
	}
	return &s, nil
}

var ordinalRe = regexp.MustCompile(`^(?:вариант|номер|пункт|option)?\s*№?\s*(\d{1,2})\s*[.)]?$`)

// ParseCandidateSelection interprets a user reply to a numbered candidate
// list. Accepts a bare number ("2", "2.", "№2") or a short ordinal phrase
// ("вариант 2"); returns the 0-based index. Anything else is not a
// selection, even an address that happens to contain a house number, and
// must be treated as a fresh address.
func ParseCandidateSelection(input string, max int) (int, bool) {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" || max <= 0 {
		return 0, false
	}
	m := ordinalRe.FindStringSubmatch(input)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	if n < 1 || n > max {
		return 0, false
	}
	return n - 1, true
}

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet]
}
