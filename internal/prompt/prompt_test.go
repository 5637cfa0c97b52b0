package prompt

import (
	"strings"
	"testing"

	"github.com/provgen/provgen/internal/model"
)

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	b, err := NewBuilder()
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	return b
}

func TestGenerationUserEmbedsRequestFacts(t *testing.T) {
	b := newTestBuilder(t)
	p := Params{Language: model.LangEnglish, Level: model.LevelA, Course: "Biology 1"}

	got := b.GenerationUser(p, "Mitochondria produce ATP.", 7, model.TypeShort)

	for _, want := range []string{
		"Mitochondria produce ATP.",
		"EXACTLY 7",
		"Biology 1",
		"A",
		"short-answer",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("instruction missing %q:\n%s", want, got)
		}
	}
}

func TestGenerationUserOmitsEmptyCourse(t *testing.T) {
	b := newTestBuilder(t)
	got := b.GenerationUser(Params{Language: model.LangEnglish, Level: model.LevelC}, "m", 5, model.TypeMix)
	if strings.Contains(got, "Course/subject") {
		t.Errorf("course line should be omitted when no course is set:\n%s", got)
	}
}

func TestLanguagesProduceDistinctInstructions(t *testing.T) {
	b := newTestBuilder(t)

	sv := b.GenerationSystem(Params{Language: model.LangSwedish})
	en := b.GenerationSystem(Params{Language: model.LangEnglish})
	if sv == en {
		t.Error("Swedish and English system instructions must differ")
	}
	if !strings.Contains(sv, "provgenerator") {
		t.Errorf("Swedish instruction looks wrong:\n%s", sv)
	}
	if !strings.Contains(en, "exam generator") {
		t.Errorf("English instruction looks wrong:\n%s", en)
	}
}

func TestDomainHintChangesSystemInstruction(t *testing.T) {
	b := newTestBuilder(t)
	p := Params{Language: model.LangEnglish}

	plain := b.GenerationSystem(p)
	p.Domain = model.DomainMath
	math := b.GenerationSystem(p)

	if plain == math {
		t.Error("math domain hint must extend the system instruction")
	}
	if !strings.HasPrefix(math, plain) {
		t.Error("domain hint must append, not replace")
	}
	if !strings.Contains(math, "units") {
		t.Errorf("math addition missing:\n%s", math)
	}
}

func TestCorrectiveCarriesViolation(t *testing.T) {
	b := newTestBuilder(t)
	got := b.Corrective(Params{Language: model.LangEnglish}, "wrong question count: got 4, want 5")
	if !strings.Contains(got, "wrong question count: got 4, want 5") {
		t.Errorf("corrective turn missing violation:\n%s", got)
	}
}

func TestGradingUserIncludesStudentContext(t *testing.T) {
	b := newTestBuilder(t)
	p := Params{Language: model.LangEnglish, Level: model.LevelC}
	student := &model.StudentContext{
		History:  []model.HistoryEntry{{Course: "Physics 2", TotalPoints: 11, MaxPoints: 20}},
		Mistakes: []model.Mistake{{QuestionID: "m1", Question: "State Newton's second law."}},
	}

	got := b.GradingUser(p, "material", `[{"id":"q1"}]`, student)

	for _, want := range []string{"Physics 2", "Newton's second law", `[{"id":"q1"}]`} {
		if !strings.Contains(got, want) {
			t.Errorf("grading instruction missing %q", want)
		}
	}

	// Without a student context, the personalization sections are absent.
	bare := b.GradingUser(p, "material", `[]`, nil)
	if strings.Contains(bare, "Recent exam history") || strings.Contains(bare, "Recent mistakes") {
		t.Errorf("bare instruction must not carry personalization sections:\n%s", bare)
	}
}

func TestMissingFragmentFallsBackToID(t *testing.T) {
	b := newTestBuilder(t)
	got := b.t(model.LangEnglish, "does.not.exist", nil)
	if got != "does.not.exist" {
		t.Errorf("fallback = %q, want the message id", got)
	}
}

func TestPhrasebookLocalization(t *testing.T) {
	b := newTestBuilder(t)

	en := b.Phrases(model.LangEnglish)
	if en.Correct() != "Correct." {
		t.Errorf("en correct = %q", en.Correct())
	}
	if got := en.Incorrect("A) Paris"); !strings.Contains(got, "A) Paris") {
		t.Errorf("en incorrect = %q, want it to name the correct option", got)
	}

	sv := b.Phrases(model.LangSwedish)
	if sv.Correct() != "Rätt." {
		t.Errorf("sv correct = %q", sv.Correct())
	}
	if got := sv.NoAnswer("B) Stockholm"); !strings.Contains(got, "B) Stockholm") {
		t.Errorf("sv no-answer = %q", got)
	}
	if sv.MissingKey() == en.MissingKey() {
		t.Error("missing-key phrase must be localized")
	}
	if sv.Omitted() == en.Omitted() {
		t.Error("omitted phrase must be localized")
	}
}
