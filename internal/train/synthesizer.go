// Package train synthesizes remedial study material from a bounded window
// of a student's past mistakes, using the same contract-plus-single-call
// mechanism as open-form grading.
package train

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/provgen/provgen/internal/contract"
	"github.com/provgen/provgen/internal/llm"
	"github.com/provgen/provgen/internal/model"
	"github.com/provgen/provgen/internal/prompt"
)

// MaxMistakes is the synthesis window: only the most recent mistakes are
// embedded, keeping the instruction stable regardless of history length.
const MaxMistakes = 40

const synthesisTemperature = 0.3

// Completer issues one structured completion call.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (json.RawMessage, error)
}

// Synthesizer derives training material targeting past weaknesses.
type Synthesizer struct {
	llm     Completer
	prompts *prompt.Builder
	// model optionally routes synthesis to a stronger model than the
	// default; empty means the client default.
	model string
}

// NewSynthesizer creates a Synthesizer. modelOverride may be empty.
func NewSynthesizer(c Completer, b *prompt.Builder, modelOverride string) *Synthesizer {
	return &Synthesizer{llm: c, prompts: b, model: modelOverride}
}

// bundle is the serialized payload the coach instruction works from.
type bundle struct {
	Course   string          `json:"course"`
	Level    string          `json:"level"`
	Mistakes []model.Mistake `json:"mistakes"`
}

// Synthesize produces training material from the request's mistakes.
// One call, no retry: like open-form grading, regeneration does not make
// fuzzy output better.
func (s *Synthesizer) Synthesize(ctx context.Context, req model.TrainRequest) (*model.TrainingMaterial, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	mistakes := req.Mistakes
	if len(mistakes) > MaxMistakes {
		mistakes = mistakes[len(mistakes)-MaxMistakes:]
	}
	bounded := make([]model.Mistake, 0, len(mistakes))
	for _, m := range mistakes {
		bounded = append(bounded, m.Bounded())
	}

	payload, err := json.Marshal(bundle{
		Course:   req.Course,
		Level:    req.Level,
		Mistakes: bounded,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal mistake bundle: %w", err)
	}

	p := prompt.Params{Language: req.Language}
	conv := llm.NewConversation(s.prompts.TrainingSystem(p), string(payload))

	ct := contract.TrainingMaterial()
	raw, err := s.llm.Complete(ctx, llm.Request{
		Contract:     ct,
		Conversation: conv,
		Temperature:  synthesisTemperature,
		Model:        s.model,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize training material: %w", err)
	}

	var out model.TrainingMaterial
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &llm.UpstreamError{
			Contract: ct.Name,
			Message:  fmt.Sprintf("decode training material: %v", err),
			Raw:      llm.Truncate(string(raw)),
		}
	}
	if out.FocusTopics == nil {
		out.FocusTopics = []model.FocusTopic{}
	}
	return &out, nil
}
