package model

import (
	"strings"
	"testing"
)

func TestGenerateRequestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   GenerateRequest
		want GenerateRequest
	}{
		{
			"empty fills defaults",
			GenerateRequest{Material: "m"},
			GenerateRequest{Material: "m", Level: LevelC, Type: TypeMix, Language: LangSwedish, Domain: DomainGeneral, Count: DefaultQuestions},
		},
		{
			"count below minimum",
			GenerateRequest{Material: "m", Count: 1},
			GenerateRequest{Material: "m", Level: LevelC, Type: TypeMix, Language: LangSwedish, Domain: DomainGeneral, Count: MinQuestions},
		},
		{
			"count above maximum",
			GenerateRequest{Material: "m", Count: 50},
			GenerateRequest{Material: "m", Level: LevelC, Type: TypeMix, Language: LangSwedish, Domain: DomainGeneral, Count: MaxQuestions},
		},
		{
			"explicit values untouched",
			GenerateRequest{Material: "m", Level: LevelA, Type: TypeMC, Language: LangEnglish, Domain: DomainMath, Count: 5},
			GenerateRequest{Material: "m", Level: LevelA, Type: TypeMC, Language: LangEnglish, Domain: DomainMath, Count: 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in
			got.Normalize()
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStudentContextBounded(t *testing.T) {
	var nilCtx *StudentContext
	if nilCtx.Bounded() != nil {
		t.Error("nil context must stay nil")
	}

	ctx := &StudentContext{}
	for i := 0; i < MaxHistoryEntries+5; i++ {
		ctx.History = append(ctx.History, HistoryEntry{Course: "c"})
	}
	for i := 0; i < MaxMistakeEntries+5; i++ {
		ctx.Mistakes = append(ctx.Mistakes, Mistake{QuestionID: "q"})
	}

	bounded := ctx.Bounded()
	if len(bounded.History) != MaxHistoryEntries {
		t.Errorf("history = %d, want %d", len(bounded.History), MaxHistoryEntries)
	}
	if len(bounded.Mistakes) != MaxMistakeEntries {
		t.Errorf("mistakes = %d, want %d", len(bounded.Mistakes), MaxMistakeEntries)
	}

	// The original is untouched.
	if len(ctx.History) != MaxHistoryEntries+5 {
		t.Error("Bounded must not mutate the receiver")
	}
}

func TestStudentContextBoundedCapsHistoryFields(t *testing.T) {
	ctx := &StudentContext{History: []HistoryEntry{{
		Course: strings.Repeat("c", 100000),
		Level:  strings.Repeat("l", 50),
	}}}

	bounded := ctx.Bounded()
	if got := len(bounded.History[0].Course); got != maxCourseLen {
		t.Errorf("course length = %d, want %d", got, maxCourseLen)
	}
	if got := len(bounded.History[0].Level); got != maxLevelLen {
		t.Errorf("level length = %d, want %d", got, maxLevelLen)
	}
	if len(ctx.History[0].Course) != 100000 {
		t.Error("Bounded must not mutate the receiver")
	}
}

func TestMistakeBoundedCapsFields(t *testing.T) {
	m := Mistake{
		Question:    strings.Repeat("q", 5000),
		Response:    strings.Repeat("r", 5000),
		Feedback:    strings.Repeat("f", 5000),
		ModelAnswer: strings.Repeat("a", 5000),
	}

	b := m.Bounded()
	if len(b.Question) != maxFieldLen || len(b.Response) != maxFieldLen || len(b.Feedback) != maxFieldLen {
		t.Errorf("field lengths = %d/%d/%d, want %d", len(b.Question), len(b.Response), len(b.Feedback), maxFieldLen)
	}
	if len(b.ModelAnswer) != maxModelAnswerLen {
		t.Errorf("model answer = %d, want %d", len(b.ModelAnswer), maxModelAnswerLen)
	}
}

func TestTrainRequestNormalizeCapsMetadata(t *testing.T) {
	r := TrainRequest{
		Course: strings.Repeat("c", 500),
		Level:  strings.Repeat("l", 50),
	}
	r.Normalize()
	if r.Language != LangSwedish {
		t.Errorf("language = %q, want default sv", r.Language)
	}
	if len(r.Course) != 200 || len(r.Level) != 10 {
		t.Errorf("caps = %d/%d, want 200/10", len(r.Course), len(r.Level))
	}
}
