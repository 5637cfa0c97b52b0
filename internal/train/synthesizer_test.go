package train

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/provgen/provgen/internal/llm"
	"github.com/provgen/provgen/internal/model"
	"github.com/provgen/provgen/internal/prompt"
)

type fakeCompleter struct {
	response json.RawMessage
	err      error
	calls    int
	lastReq  llm.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (json.RawMessage, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func newTestBuilder(t *testing.T) *prompt.Builder {
	t.Helper()
	b, err := prompt.NewBuilder()
	if err != nil {
		t.Fatalf("prompt.NewBuilder: %v", err)
	}
	return b
}

func someMistakes(n int) []model.Mistake {
	out := make([]model.Mistake, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, model.Mistake{
			QuestionID: fmt.Sprintf("q%d", i+1),
			Type:       model.TypeShort,
			Question:   fmt.Sprintf("Question number %d", i+1),
			Feedback:   "Missed the key concept.",
			MaxPoints:  3,
		})
	}
	return out
}

const goodMaterial = `{
	"material_text": "Focus on unit conversions before each calculation.",
	"focus_topics": [
		{"topic": "Unit conversion", "why": "Repeated slips", "micro_drills": ["Convert 3 km to m", "Convert 2 h to s", "Convert 5 kg to g"]}
	]
}`

func trainRequest(mistakes []model.Mistake) model.TrainRequest {
	return model.TrainRequest{
		Language: model.LangEnglish,
		Course:   "Physics 1",
		Level:    "C",
		Mistakes: mistakes,
	}
}

func TestSynthesizeProducesMaterial(t *testing.T) {
	fake := &fakeCompleter{response: json.RawMessage(goodMaterial)}
	s := NewSynthesizer(fake, newTestBuilder(t), "")

	got, err := s.Synthesize(context.Background(), trainRequest(someMistakes(3)))
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if fake.calls != 1 {
		t.Fatalf("calls = %d, want 1", fake.calls)
	}
	if fake.lastReq.Contract.Name != "training_material" {
		t.Errorf("contract = %q, want training_material", fake.lastReq.Contract.Name)
	}
	if fake.lastReq.Temperature != 0.3 {
		t.Errorf("temperature = %v, want 0.3", fake.lastReq.Temperature)
	}
	if !strings.Contains(got.MaterialText, "unit conversions") {
		t.Errorf("material = %q", got.MaterialText)
	}
	if len(got.FocusTopics) != 1 || len(got.FocusTopics[0].MicroDrills) != 3 {
		t.Errorf("focus topics = %+v", got.FocusTopics)
	}
}

func TestSynthesizeBundleCarriesCourseAndMistakes(t *testing.T) {
	fake := &fakeCompleter{response: json.RawMessage(goodMaterial)}
	s := NewSynthesizer(fake, newTestBuilder(t), "")

	if _, err := s.Synthesize(context.Background(), trainRequest(someMistakes(2))); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	turns := fake.lastReq.Conversation.Turns()
	if len(turns) != 2 {
		t.Fatalf("turns = %d, want 2", len(turns))
	}
	user := turns[1].Content
	var sent struct {
		Course   string          `json:"course"`
		Level    string          `json:"level"`
		Mistakes []model.Mistake `json:"mistakes"`
	}
	if err := json.Unmarshal([]byte(user), &sent); err != nil {
		t.Fatalf("user turn is not a JSON bundle: %v", err)
	}
	if sent.Course != "Physics 1" || sent.Level != "C" {
		t.Errorf("bundle = %+v", sent)
	}
	if len(sent.Mistakes) != 2 {
		t.Errorf("mistakes = %d, want 2", len(sent.Mistakes))
	}
}

func TestSynthesizeWindowsMistakes(t *testing.T) {
	fake := &fakeCompleter{response: json.RawMessage(goodMaterial)}
	s := NewSynthesizer(fake, newTestBuilder(t), "")

	if _, err := s.Synthesize(context.Background(), trainRequest(someMistakes(60))); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	user := fake.lastReq.Conversation.Turns()[1].Content
	var sent struct {
		Mistakes []model.Mistake `json:"mistakes"`
	}
	if err := json.Unmarshal([]byte(user), &sent); err != nil {
		t.Fatalf("unmarshal bundle: %v", err)
	}
	if len(sent.Mistakes) != MaxMistakes {
		t.Fatalf("mistakes = %d, want %d", len(sent.Mistakes), MaxMistakes)
	}
	// The window keeps the most recent mistakes, which come last.
	if sent.Mistakes[0].QuestionID != "q21" || sent.Mistakes[MaxMistakes-1].QuestionID != "q60" {
		t.Errorf("window = %s..%s, want q21..q60",
			sent.Mistakes[0].QuestionID, sent.Mistakes[MaxMistakes-1].QuestionID)
	}
}

func TestSynthesizeCapsMistakeFields(t *testing.T) {
	fake := &fakeCompleter{response: json.RawMessage(goodMaterial)}
	s := NewSynthesizer(fake, newTestBuilder(t), "")

	mistakes := someMistakes(1)
	mistakes[0].Question = strings.Repeat("x", 5000)
	mistakes[0].ModelAnswer = strings.Repeat("y", 5000)

	if _, err := s.Synthesize(context.Background(), trainRequest(mistakes)); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	user := fake.lastReq.Conversation.Turns()[1].Content
	var sent struct {
		Mistakes []model.Mistake `json:"mistakes"`
	}
	if err := json.Unmarshal([]byte(user), &sent); err != nil {
		t.Fatalf("unmarshal bundle: %v", err)
	}
	if got := len(sent.Mistakes[0].Question); got != 1200 {
		t.Errorf("question length = %d, want 1200", got)
	}
	if got := len(sent.Mistakes[0].ModelAnswer); got != 1600 {
		t.Errorf("model answer length = %d, want 1600", got)
	}
}

func TestSynthesizeModelOverride(t *testing.T) {
	fake := &fakeCompleter{response: json.RawMessage(goodMaterial)}
	s := NewSynthesizer(fake, newTestBuilder(t), "gpt-4o")

	if _, err := s.Synthesize(context.Background(), trainRequest(someMistakes(1))); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if fake.lastReq.Model != "gpt-4o" {
		t.Errorf("model = %q, want override", fake.lastReq.Model)
	}
}

func TestSynthesizeEmptyFocusTopicsNeverNil(t *testing.T) {
	fake := &fakeCompleter{response: json.RawMessage(`{"material_text": "General advice."}`)}
	s := NewSynthesizer(fake, newTestBuilder(t), "")

	got, err := s.Synthesize(context.Background(), trainRequest(someMistakes(1)))
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got.FocusTopics == nil {
		t.Error("focus_topics must serialize as [], not null")
	}
}

func TestSynthesizeMalformedOutput(t *testing.T) {
	fake := &fakeCompleter{response: json.RawMessage(`{"material_text": 42}`)}
	s := NewSynthesizer(fake, newTestBuilder(t), "")

	_, err := s.Synthesize(context.Background(), trainRequest(someMistakes(1)))
	var up *llm.UpstreamError
	if !errors.As(err, &up) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if up.Raw == "" {
		t.Error("raw payload not carried")
	}
}

func TestSynthesizeRejectsEmptyMistakes(t *testing.T) {
	fake := &fakeCompleter{}
	s := NewSynthesizer(fake, newTestBuilder(t), "")

	_, err := s.Synthesize(context.Background(), trainRequest(nil))
	if !errors.Is(err, model.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if fake.calls != 0 {
		t.Errorf("calls = %d, want 0", fake.calls)
	}
}
