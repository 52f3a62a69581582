// Package generator turns keywords into multiple-choice quiz questions using a language model.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"unicode"

	"github.com/jason-s-yu/aiquiz/internal/models"
)

// ErrMalformedOutput means the model answered, but not with enough usable questions.
var ErrMalformedOutput = errors.New("malformed generator output")

const maxWrongAnswers = 5

// Request asks for Count questions about Keywords.
type Request struct {
	Keywords []string
	Count    int
}

// Generator produces exactly req.Count questions, numbered 0..Count-1, or an error.
// The returned questions carry no GameID.
type Generator interface {
	Generate(ctx context.Context, req Request) ([]models.Question, error)
}

// Draft is one question as the model writes it, before options are shuffled.
type Draft struct {
	Question      string   `json:"question"`
	Answer        string   `json:"answer"`
	WrongAnswers  []string `json:"wrong_answers"`
	Clarification string   `json:"clarification"`
}

type draftList struct {
	Questions []Draft `json:"questions"`
}

// ParseDrafts extracts the JSON object from the model's reply. Models sometimes wrap
// it in a code fence or add a sentence around it.
func ParseDrafts(content string) ([]Draft, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrMalformedOutput)
	}
	var out draftList
	if err := json.Unmarshal([]byte(content[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return out.Questions, nil
}

// Validate reports why d cannot be used, or nil.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Question) == "" {
		return errors.New("empty question")
	}
	answer := normalize(d.Answer)
	if answer == "" {
		return errors.New("empty answer")
	}
	if len(d.WrongAnswers) == 0 || len(d.WrongAnswers) > maxWrongAnswers {
		return fmt.Errorf("%d wrong answers, want 1 to %d", len(d.WrongAnswers), maxWrongAnswers)
	}
	seen := map[string]bool{answer: true}
	for _, w := range d.WrongAnswers {
		n := normalize(w)
		if n == "" {
			return errors.New("empty wrong answer")
		}
		if seen[n] {
			return fmt.Errorf("duplicate option %q", w)
		}
		seen[n] = true
	}
	return nil
}

// IsTrivial reports whether the answer gives itself away: it mentions a keyword
// while none of the wrong answers do.
func (d Draft) IsTrivial(keywords []string) bool {
	if !mentionsKeyword(d.Answer, keywords) {
		return false
	}
	for _, w := range d.WrongAnswers {
		if mentionsKeyword(w, keywords) {
			return false
		}
	}
	return true
}

// Assemble filters drafts, samples count of them (keeping their order) and shuffles
// each one's options.
func Assemble(drafts []Draft, keywords []string, count int, rng *rand.Rand) ([]models.Question, error) {
	var usable []Draft
	for _, d := range drafts {
		if d.Validate() != nil || d.IsTrivial(keywords) {
			continue
		}
		usable = append(usable, d)
	}
	if len(usable) < count {
		return nil, fmt.Errorf("%w: %d usable questions of %d requested", ErrMalformedOutput, len(usable), count)
	}

	picked := rng.Perm(len(usable))[:count]
	slices.Sort(picked)

	questions := make([]models.Question, count)
	for i, idx := range picked {
		questions[i] = shuffle(usable[idx], i, rng)
	}
	return questions, nil
}

func shuffle(d Draft, id int, rng *rand.Rand) models.Question {
	options := make([]string, 0, len(d.WrongAnswers)+1)
	options = append(options, strings.TrimSpace(d.Answer))
	for _, w := range d.WrongAnswers {
		options = append(options, strings.TrimSpace(w))
	}
	solution := 0
	rng.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
		switch solution {
		case i:
			solution = j
		case j:
			solution = i
		}
	})
	return models.Question{
		QuestionID:    id,
		Prompt:        strings.TrimSpace(d.Question),
		Options:       options,
		Solution:      solution,
		Clarification: strings.TrimSpace(d.Clarification),
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// mentionsKeyword matches whole words, case-insensitively. A multi-word keyword
// must appear as a contiguous run of words.
func mentionsKeyword(text string, keywords []string) bool {
	words := splitWords(text)
	for _, k := range keywords {
		kw := splitWords(k)
		if len(kw) == 0 || len(kw) > len(words) {
			continue
		}
		for i := 0; i+len(kw) <= len(words); i++ {
			if slices.Equal(words[i:i+len(kw)], kw) {
				return true
			}
		}
	}
	return false
}

func splitWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
