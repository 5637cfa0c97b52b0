package grade

import (
	"log/slog"

	"github.com/provgen/provgen/internal/model"
)

// Merge assembles the final report from both result sets, preserving the
// original question order and covering every question exactly once.
// Totals are recomputed by summation: any total reported upstream is
// advisory and must never diverge from the per-item ledger.
func Merge(questions []model.Question, closed, open []model.PerQuestionResult) model.GradeReport {
	byID := make(map[string]model.PerQuestionResult, len(closed)+len(open))
	for _, r := range closed {
		byID[r.QuestionID] = r
	}
	for _, r := range open {
		byID[r.QuestionID] = r
	}

	report := model.GradeReport{
		PerQuestion: make([]model.PerQuestionResult, 0, len(questions)),
	}
	for _, q := range questions {
		r, ok := byID[q.ID]
		if !ok {
			// Both scorers cover every question, so this only fires
			// on a programming error; keep the ledger complete anyway.
			slog.Error("no result produced for question", "question_id", q.ID)
			r = model.PerQuestionResult{QuestionID: q.ID, MaxPoints: maxPoints(q)}
		}
		report.PerQuestion = append(report.PerQuestion, r)
		report.TotalPoints += r.PointsAwarded
		report.MaxPoints += r.MaxPoints
	}
	return report
}
