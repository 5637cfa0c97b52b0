// Package exam turns pasted study material into a structured mock exam.
//
// The completion service enforces the contract's structural rules; this
// package enforces the semantic invariants the schema format cannot
// express (exact question count, cross-field consistency of mc items,
// id uniqueness) and retries with corrective feedback when the service
// violates them anyway.
package exam

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

// maxAttempts bounds the generation retry loop. Retries are strictly
// sequential: each corrective turn depends on the previous attempt's
// validation error.
const maxAttempts = 3

const generationTemperature = 0.2

// Completer issues one structured completion call.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (json.RawMessage, error)
}

// Generator drives the completion service to fill the exam contract.
type Generator struct {
	llm     Completer
	prompts *prompt.Builder
}

// NewGenerator creates a Generator.
func NewGenerator(c Completer, b *prompt.Builder) *Generator {
	return &Generator{llm: c, prompts: b}
}

// InvalidOutputError reports that the service kept violating semantic
// invariants after the retry ceiling. It carries the last decoded attempt
// for diagnosis; callers must never present it as a valid exam.
type InvalidOutputError struct {
	Attempts  int
	Violation string
	LastExam  *model.Exam
	Raw       string
}

func (e *InvalidOutputError) Error() string {
	return fmt.Sprintf("exam generation invalid after %d attempts: %s", e.Attempts, e.Violation)
}

// Generate produces an exam from the request's study material. Transport
// failures surface immediately as *llm.UpstreamError; persistent semantic
// violations surface as *InvalidOutputError.
func (g *Generator) Generate(ctx context.Context, req model.GenerateRequest) (*model.Exam, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p := prompt.Params{
		Language: req.Language,
		Level:    req.Level,
		Course:   req.Course,
		Domain:   req.Domain,
	}
	ct := contract.Exam(req.Count, req.Type)
	conv := llm.NewConversation(
		g.prompts.GenerationSystem(p),
		g.prompts.GenerationUser(p, req.Material, req.Count, req.Type),
	)

	var lastExam model.Exam
	var lastViolation, lastRaw string

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		raw, err := g.llm.Complete(ctx, llm.Request{
			Contract:     ct,
			Conversation: conv,
			Temperature:  generationTemperature,
		})
		if err != nil {
			return nil, fmt.Errorf("generate exam: %w", err)
		}

		var exam model.Exam
		if err := json.Unmarshal(raw, &exam); err != nil {
			// Strict schema output that does not decode is a
			// collaborator bug, not a retryable mismatch.
			return nil, &llm.UpstreamError{
				Contract: ct.Name,
				Message:  fmt.Sprintf("decode exam object: %v", err),
				Raw:      llm.Truncate(string(raw)),
			}
		}

		if violation := validateExam(&exam, req); violation != "" {
			slog.Warn("generated exam failed validation",
				"attempt", attempt, "violation", violation)
			lastExam, lastViolation, lastRaw = exam, violation, llm.Truncate(string(raw))
			if attempt < maxAttempts {
				conv.AddUser(g.prompts.Corrective(p, violation))
			}
			continue
		}

		normalizeExam(&exam)
		return &exam, nil
	}

	return nil, &InvalidOutputError{
		Attempts:  maxAttempts,
		Violation: lastViolation,
		LastExam:  &lastExam,
		Raw:       lastRaw,
	}
}

// validateExam checks the invariants the schema cannot express. It
// returns a diagnostic suitable for the corrective instruction, or ""
// when the exam is acceptable.
func validateExam(e *model.Exam, req model.GenerateRequest) string {
	if got := len(e.Questions); got != req.Count {
		return fmt.Sprintf("wrong question count: %d != %d", got, req.Count)
	}

	seen := make(map[string]bool, len(e.Questions))
	for i, q := range e.Questions {
		if q.ID == "" {
			return fmt.Sprintf("question %d has an empty id", i+1)
		}
		if seen[q.ID] {
			return fmt.Sprintf("duplicate question id %q", q.ID)
		}
		seen[q.ID] = true

		if q.Points <= 0 {
			return fmt.Sprintf("question %q has non-positive points", q.ID)
		}

		switch q.Type {
		case model.TypeMC, model.TypeShort, model.TypeEssay:
		default:
			return fmt.Sprintf("question %q has invalid type %q", q.ID, q.Type)
		}
		if req.Type != model.TypeMix && q.Type != req.Type {
			return fmt.Sprintf("question %q has type %q while only %q was requested", q.ID, q.Type, req.Type)
		}

		if q.Type == model.TypeMC {
			if len(q.Options) != 4 {
				return fmt.Sprintf("mc question %q must have exactly 4 options, got %d", q.ID, len(q.Options))
			}
			if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
				return fmt.Sprintf("mc question %q has correct_index %d out of range", q.ID, q.CorrectIndex)
			}
		}
	}
	return ""
}

// normalizeExam pins the sentinel convention on non-mc questions. This is
// a deterministic structural repair, not a retryable violation.
func normalizeExam(e *model.Exam) {
	for i := range e.Questions {
		q := &e.Questions[i]
		if q.Type == model.TypeMC {
			continue
		}
		q.Options = []string{}
		q.CorrectIndex = model.NoCorrectOption
	}
}
