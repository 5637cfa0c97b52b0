// Package grade scores a submitted exam: multiple-choice items are scored
// deterministically against the embedded answer key, open-form items are
// delegated to the completion service in a single call, and both result
// sets merge into one report whose totals are recomputed from the
// per-question ledger.
package grade

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/provgen/provgen/internal/model"
)

// ErrInvalidQuestion marks a question that cannot be scored at all, such
// as one missing its id.
var ErrInvalidQuestion = errors.New("invalid question")

// OpenItem pairs an open-form question with the student's response for
// delegated grading.
type OpenItem struct {
	Question model.Question
	Response string
}

// Phrases supplies the localized feedback strings deterministic scoring
// emits. *prompt.Phrasebook satisfies it.
type Phrases interface {
	Correct() string
	Incorrect(correct string) string
	NoAnswer(correct string) string
	MissingKey() string
}

// Score partitions questions by type and scores the multiple-choice ones
// locally. It is pure: no external calls, and identical input always
// yields identical output. Answers with unknown question ids are ignored;
// questions without an answer score zero.
func Score(questions []model.Question, answers []model.Answer, ph Phrases) (closed []model.PerQuestionResult, open []OpenItem, err error) {
	responses := make(map[string]string, len(answers))
	for _, a := range answers {
		responses[a.QuestionID] = a.Response
	}

	for _, q := range questions {
		if q.ID == "" {
			return nil, nil, fmt.Errorf("%w: missing question id", ErrInvalidQuestion)
		}
		response := responses[q.ID]

		if q.Type != model.TypeMC {
			open = append(open, OpenItem{Question: q, Response: response})
			continue
		}
		closed = append(closed, scoreChoice(q, response, ph))
	}
	return closed, open, nil
}

func scoreChoice(q model.Question, response string, ph Phrases) model.PerQuestionResult {
	result := model.PerQuestionResult{
		QuestionID: q.ID,
		MaxPoints:  maxPoints(q),
	}

	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		// Broken answer key: never guess, flag it instead.
		result.Feedback = ph.MissingKey()
		return result
	}

	correct := optionLabel(q.CorrectIndex, q.Options[q.CorrectIndex])
	result.ModelAnswer = correct

	picked := normalizeChoice(response)
	switch {
	case picked == q.CorrectIndex:
		result.PointsAwarded = float64(result.MaxPoints)
		result.Feedback = ph.Correct()
	case strings.TrimSpace(response) == "":
		result.Feedback = ph.NoAnswer(correct)
	default:
		// Unparseable but present responses count as answered wrong.
		result.Feedback = ph.Incorrect(correct)
	}
	return result
}

// normalizeChoice maps a free-text response to a zero-based option index.
// The first letter character decides, case-insensitively, so "A) Paris",
// " b." and "c" all resolve; anything outside A-F yields -1.
func normalizeChoice(response string) int {
	for _, r := range response {
		if !unicode.IsLetter(r) {
			continue
		}
		r = unicode.ToUpper(r)
		if r >= 'A' && r <= 'F' {
			return int(r - 'A')
		}
		return -1
	}
	return -1
}

// optionLabel renders an option the way it is shown to students.
func optionLabel(index int, text string) string {
	return fmt.Sprintf("%c) %s", 'A'+rune(index), text)
}

// maxPoints returns the question's point value, defaulting to 1 when the
// question carries none.
func maxPoints(q model.Question) int {
	if q.Points > 0 {
		return q.Points
	}
	return 1
}
