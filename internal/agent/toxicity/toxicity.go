// Package toxicity screens user input before it reaches any LLM. The filter
// is pattern based (RU), fast, and dependency free; medium and high levels
// block the turn with a fixed polite response, low only flags.
package toxicity

import (
	"regexp"
	"strings"
	"unicode"
)

// Level grades how severe the matched content is.
type Level string

const (
	LevelSafe   Level = "safe"
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Result of a toxicity check.
type Result struct {
	IsToxic bool
	Level   Level
	// Score maps the level onto [0,1] for callers that want a number.
	Score   float64
	Matched string
}

// ShouldBlock reports whether the turn must be answered with the fixed
// response instead of entering the pipeline.
func (r Result) ShouldBlock() bool {
	return r.Level == LevelMedium || r.Level == LevelHigh
}

// Patterns are matched against whole lowercased tokens. RE2 has no Unicode
// word boundaries, so each pattern is anchored with ^...$ and uses \p{L}
// for word continuations.
var patterns = map[Level][]string{
	LevelHigh: {
		`[хx][уy][йеяiju]\p{L}*`,
		`[пp][иi][зz][дd]\p{L}*`,
		`[бb][лl][яa]\p{L}*`,
		`[еe][бb]\p{L}*[тt]\p{L}*`,
		`сука\p{L}*`,
		`сучк\p{L}*`,
		`мразь\p{L}*`,
		`тварь`,
		`дерьм\p{L}*`,
		`гавн\p{L}*`,
		`засранец\p{L}*`,
		`ублюд\p{L}*`,
		`падл\p{L}*`,
		`шлюх\p{L}*`,
		`проститу\p{L}*`,
	},
	LevelMedium: {
		`идиот\p{L}*`,
		`дебил\p{L}*`,
		`дурак\p{L}*`,
		`дура`,
		`кретин\p{L}*`,
		`лох`,
		`лошар\p{L}*`,
		`тупой`,
		`тупая`,
		`тупица\p{L}*`,
		`быдло\p{L}*`,
		`урод\p{L}*`,
		`отстой\p{L}*`,
		`заткни\p{L}*`,
		`ненавижу`,
		`убью`,
		`убить`,
		`сдохни\p{L}*`,
	},
	LevelLow: {
		`чёрт`,
		`блин`,
		`достал\p{L}*`,
		`бесит\p{L}*`,
		`задолбал\p{L}*`,
		`нафиг\p{L}*`,
	},
}

var responses = map[Level]string{
	LevelHigh: "Извините, но я не могу отвечать на сообщения, содержащие грубую лексику. " +
		"Пожалуйста, переформулируйте ваш вопрос в уважительной форме.",
	LevelMedium: "Пожалуйста, давайте общаться уважительно. " +
		"Я с удовольствием помогу вам, если вы зададите вопрос в корректной форме.",
}

var levelScores = map[Level]float64{
	LevelSafe:   0.0,
	LevelLow:    0.3,
	LevelMedium: 0.7,
	LevelHigh:   1.0,
}

// Filter is a compiled pattern-based toxicity classifier. Safe for
// concurrent use after construction.
type Filter struct {
	compiled map[Level][]*regexp.Regexp
}

// NewFilter compiles the built-in patterns plus any custom additions.
func NewFilter(custom map[Level][]string) *Filter {
	merged := map[Level][]string{}
	for lvl, ps := range patterns {
		merged[lvl] = append(merged[lvl], ps...)
	}
	for lvl, ps := range custom {
		merged[lvl] = append(merged[lvl], ps...)
	}

	compiled := map[Level][]*regexp.Regexp{}
	for lvl, ps := range merged {
		for _, p := range ps {
			compiled[lvl] = append(compiled[lvl], regexp.MustCompile(`(?i)^(?:`+p+`)$`))
		}
	}
	return &Filter{compiled: compiled}
}

// Check classifies the text, reporting the highest matched level.
func (f *Filter) Check(text string) Result {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return Result{Level: LevelSafe}
	}

	for _, lvl := range []Level{LevelHigh, LevelMedium, LevelLow} {
		for _, re := range f.compiled[lvl] {
			for _, tok := range tokens {
				if re.MatchString(tok) {
					return Result{
						IsToxic: true,
						Level:   lvl,
						Score:   levelScores[lvl],
						Matched: tok,
					}
				}
			}
		}
	}

	return Result{Level: LevelSafe, Score: levelScores[LevelSafe]}
}

// Response returns the fixed reply for a blocking result, or "".
func (f *Filter) Response(r Result) string {
	if !r.ShouldBlock() {
		return ""
	}
	return responses[r.Level]
}

func tokenize(text string) []string {
	text = strings.ToLower(strings.TrimSpace(text))
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
