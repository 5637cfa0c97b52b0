package grade

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/provgen/provgen/internal/contract"
	"github.com/provgen/provgen/internal/llm"
	"github.com/provgen/provgen/internal/model"
	"github.com/provgen/provgen/internal/prompt"
)

const gradingTemperature = 0.1

// Completer issues one structured completion call.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (json.RawMessage, error)
}

// Grader grades a submitted exam. Closed questions never leave the
// process; open questions are delegated to the completion service in one
// call per grading request.
type Grader struct {
	llm     Completer
	prompts *prompt.Builder
}

// NewGrader creates a Grader.
func NewGrader(c Completer, b *prompt.Builder) *Grader {
	return &Grader{llm: c, prompts: b}
}

// InvalidResultError reports an open-form grading result the grader could
// not decode. Item-level gaps are repaired by zero-filling instead.
type InvalidResultError struct {
	Raw string
	err error
}

func (e *InvalidResultError) Error() string {
	return fmt.Sprintf("open-form grading result malformed: %v", e.err)
}

func (e *InvalidResultError) Unwrap() error { return e.err }

// Grade scores the whole submission and merges both result sets into one
// report covering every question exactly once, in original order.
func (g *Grader) Grade(ctx context.Context, req model.GradeRequest) (*model.GradeReport, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ph := g.prompts.Phrases(req.Language)
	closed, openItems, err := Score(req.Questions, req.Answers, ph)
	if err != nil {
		return nil, err
	}

	openResults, err := g.gradeOpen(ctx, req, openItems)
	if err != nil {
		return nil, err
	}

	report := Merge(req.Questions, closed, openResults)
	return &report, nil
}

// gradeItem is the per-question payload embedded in the grading
// instruction.
type gradeItem struct {
	ID          string             `json:"id"`
	Type        model.QuestionType `json:"type"`
	MaxPoints   int                `json:"max_points"`
	Question    string             `json:"question"`
	Rubric      string             `json:"rubric"`
	ModelAnswer string             `json:"model_answer"`
	Response    string             `json:"student_answer"`
}

// gradeOutput mirrors the grade-report contract. The totals are advisory
// and ignored in favor of recomputation.
type gradeOutput struct {
	TotalPoints float64 `json:"total_points"`
	MaxPoints   int     `json:"max_points"`
	PerQuestion []struct {
		ID          string  `json:"id"`
		Points      float64 `json:"points"`
		MaxPoints   int     `json:"max_points"`
		Feedback    string  `json:"feedback"`
		ModelAnswer string  `json:"model_answer"`
	} `json:"per_question"`
}

// gradeOpen grades the open-form items in a single completion call.
// There is no retry loop: open-form grading quality is not improved by
// regeneration, and item-level gaps are repairable locally.
func (g *Grader) gradeOpen(ctx context.Context, req model.GradeRequest, items []OpenItem) ([]model.PerQuestionResult, error) {
	if len(items) == 0 {
		return nil, nil
	}

	payload := make([]gradeItem, 0, len(items))
	for _, it := range items {
		payload = append(payload, gradeItem{
			ID:          it.Question.ID,
			Type:        it.Question.Type,
			MaxPoints:   maxPoints(it.Question),
			Question:    it.Question.Prompt,
			Rubric:      it.Question.Rubric,
			ModelAnswer: it.Question.ModelAnswer,
			Response:    it.Response,
		})
	}
	itemsJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal grading items: %w", err)
	}

	p := prompt.Params{
		Language: req.Language,
		Level:    req.Level,
		Course:   req.Course,
		Domain:   req.Domain,
	}
	conv := llm.NewConversation(
		g.prompts.GradingSystem(p),
		g.prompts.GradingUser(p, req.Material, string(itemsJSON), req.Student.Bounded()),
	)

	ct := contract.GradeReport(len(items))
	raw, err := g.llm.Complete(ctx, llm.Request{
		Contract:     ct,
		Conversation: conv,
		Temperature:  gradingTemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("grade open questions: %w", err)
	}

	var out gradeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &InvalidResultError{Raw: llm.Truncate(string(raw)), err: err}
	}

	// Index by id; the first occurrence wins, extras are ignored.
	byID := make(map[string]int, len(out.PerQuestion))
	for i, r := range out.PerQuestion {
		if _, ok := byID[r.ID]; !ok {
			byID[r.ID] = i
		}
	}

	ph := g.prompts.Phrases(req.Language)
	results := make([]model.PerQuestionResult, 0, len(items))
	for _, it := range items {
		max := maxPoints(it.Question)
		i, ok := byID[it.Question.ID]
		if !ok {
			// Zero-fill the gap instead of failing the report.
			slog.Warn("grading result omitted an item", "question_id", it.Question.ID)
			results = append(results, model.PerQuestionResult{
				QuestionID:  it.Question.ID,
				MaxPoints:   max,
				Feedback:    ph.Omitted(),
				ModelAnswer: it.Question.ModelAnswer,
			})
			continue
		}
		r := out.PerQuestion[i]
		results = append(results, model.PerQuestionResult{
			QuestionID:    it.Question.ID,
			PointsAwarded: clamp(r.Points, 0, float64(max)),
			MaxPoints:     max,
			Feedback:      r.Feedback,
			ModelAnswer:   r.ModelAnswer,
		})
	}
	return results, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
