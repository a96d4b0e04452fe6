package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClassification(t *testing.T) {
	t.Run("plain json", func(t *testing.T) {
		c, err := ParseClassification(`{"category": "mfc", "confidence": 0.92, "reasoning": "МФЦ"}`)
		require.NoError(t, err)
		assert.Equal(t, "mfc", c.Category)
		assert.InDelta(t, 0.92, c.Confidence, 1e-9)
	})

	t.Run("fenced json", func(t *testing.T) {
		c, err := ParseClassification("```json\n{\"category\": \"polyclinic\", \"confidence\": 0.8}\n```")
		require.NoError(t, err)
		assert.Equal(t, "polyclinic", c.Category)
	})

	t.Run("json wrapped in prose", func(t *testing.T) {
		c, err := ParseClassification(`Вот результат: {"category": "events", "confidence": 0.7} Надеюсь, помогло.`)
		require.NoError(t, err)
		assert.Equal(t, "events", c.Category)
	})

	t.Run("category is normalized", func(t *testing.T) {
		c, err := ParseClassification(`{"category": " MFC ", "confidence": 0.5}`)
		require.NoError(t, err)
		assert.Equal(t, "mfc", c.Category)
	})

	t.Run("unknown category fails", func(t *testing.T) {
		_, err := ParseClassification(`{"category": "weather", "confidence": 0.9}`)
		assert.Error(t, err)
	})

	t.Run("confidence out of range fails", func(t *testing.T) {
		_, err := ParseClassification(`{"category": "mfc", "confidence": 1.5}`)
		assert.Error(t, err)
	})

	t.Run("no json fails", func(t *testing.T) {
		_, err := ParseClassification("не могу классифицировать")
		assert.Error(t, err)
	})

	t.Run("empty fails", func(t *testing.T) {
		_, err := ParseClassification("")
		assert.Error(t, err)
	})
}

func TestParseSlotsCheck(t *testing.T) {
	t.Run("clear with address", func(t *testing.T) {
		s, err := ParseSlotsCheck(`{"is_clear": true, "missing_params": [], "extracted_address": " Невский проспект 28 "}`)
		require.NoError(t, err)
		assert.True(t, s.IsClear)
		assert.Equal(t, "Невский проспект 28", s.ExtractedAddress)
	})

	t.Run("unclear requires a question", func(t *testing.T) {
		_, err := ParseSlotsCheck(`{"is_clear": false, "missing_params": ["address"]}`)
		assert.Error(t, err)
	})

	t.Run("unclear with question", func(t *testing.T) {
		s, err := ParseSlotsCheck(`{"is_clear": false, "missing_params": ["district"], "clarification_question": "Какой район?"}`)
		require.NoError(t, err)
		assert.False(t, s.IsClear)
		assert.Equal(t, "Какой район?", s.ClarificationQuestion)
	})
}

func TestParseCandidateSelection(t *testing.T) {
	tests := []struct {
		input string
		max   int
		index int
		ok    bool
	}{
		{"2", 5, 1, true},
		{"2.", 5, 1, true},
		{"2)", 5, 1, true},
		{"№2", 5, 1, true},
		{"№ 3", 5, 2, true},
		{"вариант 2", 5, 1, true},
		{"Вариант 1", 5, 0, true},
		{"номер 4", 5, 3, true},
		{"пункт 5", 5, 4, true},
		{"option 1", 5, 0, true},
		{" 1 ", 5, 0, true},

		// Out of range.
		{"0", 5, 0, false},
		{"6", 5, 0, false},
		{"99", 5, 0, false},

		// Not a selection: a fresh address that contains a number.
		{"Невский 3", 5, 0, false},
		{"садовая улица 2", 5, 0, false},
		{"дом 2", 5, 0, false},

		{"", 5, 0, false},
		{"да", 5, 0, false},
		{"2", 0, 0, false},
	}

	for _, tt := range tests {
		idx, ok := ParseCandidateSelection(tt.input, tt.max)
		assert.Equal(t, tt.ok, ok, "input %q", tt.input)
		if tt.ok {
			assert.Equal(t, tt.index, idx, "input %q", tt.input)
		}
	}
}
