// Package prompt composes the natural-language instructions sent to the
// completion service. All prose lives in locale catalogs as phrase
// fragments keyed by id; instructions are composed by rule from the
// requested language, domain hint and level, so there is exactly one
// builder instead of per-language copies of every instruction.
package prompt

import (
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"

	"github.com/provgen/provgen/internal/model"
)

//go:embed locales/*.json
var localeFS embed.FS

// Params select the instruction variant.
type Params struct {
	Language model.Language
	Level    model.Level
	Course   string
	Domain   model.DomainHint
}

// Builder renders instructions from the embedded phrase catalogs.
type Builder struct {
	bundle *i18n.Bundle
}

// NewBuilder loads the embedded locale catalogs.
func NewBuilder() (*Builder, error) {
	bundle := i18n.NewBundle(language.Swedish)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("read locales dir: %w", err)
	}
	for _, e := range entries {
		data, err := localeFS.ReadFile("locales/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read locale file %s: %w", e.Name(), err)
		}
		if _, err := bundle.ParseMessageFileBytes(data, e.Name()); err != nil {
			return nil, fmt.Errorf("parse locale file %s: %w", e.Name(), err)
		}
	}
	return &Builder{bundle: bundle}, nil
}

func (b *Builder) localizer(lang model.Language) *i18n.Localizer {
	return i18n.NewLocalizer(b.bundle, string(lang))
}

func (b *Builder) t(lang model.Language, msgID string, data map[string]any) string {
	s, err := b.localizer(lang).Localize(&i18n.LocalizeConfig{
		MessageID:    msgID,
		TemplateData: data,
	})
	if err != nil {
		slog.Warn("missing prompt fragment", "id", msgID, "lang", lang, "error", err)
		return msgID
	}
	return s
}

// GenerationSystem renders the system turn for exam generation.
func (b *Builder) GenerationSystem(p Params) string {
	lines := []string{b.t(p.Language, "gen.system", nil)}
	if p.Domain == model.DomainMath {
		lines = append(lines, b.t(p.Language, "domain.math", nil))
	}
	return strings.Join(lines, "\n")
}

// GenerationUser renders the user turn for exam generation, embedding the
// study material verbatim.
func (b *Builder) GenerationUser(p Params, material string, count int, filter model.QuestionType) string {
	lines := []string{b.t(p.Language, "gen.task", nil)}
	if p.Course != "" {
		lines = append(lines, b.t(p.Language, "gen.course", map[string]any{"Course": p.Course}))
	}
	lines = append(lines,
		b.t(p.Language, "gen.level", map[string]any{"Level": string(p.Level)}),
		b.t(p.Language, "gen.count", map[string]any{"Count": count}),
		b.t(p.Language, typeRuleID(filter), nil),
		b.t(p.Language, "gen.language", nil),
		"",
		b.t(p.Language, "gen.material", nil),
		material,
		"",
		b.t(p.Language, "gen.rules", nil),
		b.t(p.Language, "gen.rule.count", map[string]any{"Count": count}),
		b.t(p.Language, "gen.rule.points", nil),
		b.t(p.Language, "gen.rule.mc", nil),
		b.t(p.Language, "gen.rule.sentinel", nil),
	)
	return strings.Join(lines, "\n")
}

func typeRuleID(filter model.QuestionType) string {
	switch filter {
	case model.TypeMC:
		return "gen.type.mc"
	case model.TypeShort:
		return "gen.type.short"
	case model.TypeEssay:
		return "gen.type.essay"
	default:
		return "gen.type.mix"
	}
}

// Corrective renders the follow-up turn appended after a failed attempt.
// The violation text is a diagnostic produced by the validator.
func (b *Builder) Corrective(p Params, violation string) string {
	return b.t(p.Language, "gen.corrective", map[string]any{"Violation": violation})
}

// GradingSystem renders the system turn for open-form grading.
func (b *Builder) GradingSystem(p Params) string {
	lines := []string{b.t(p.Language, "grade.system", nil)}
	if p.Domain == model.DomainMath {
		lines = append(lines, b.t(p.Language, "domain.math.grade", nil))
	}
	return strings.Join(lines, "\n")
}

// GradingUser renders the user turn for open-form grading. itemsJSON is
// the serialized list of open items; the student context, when present,
// is already bounded by the caller.
func (b *Builder) GradingUser(p Params, material, itemsJSON string, student *model.StudentContext) string {
	lines := []string{b.t(p.Language, "grade.task", nil)}
	if p.Course != "" {
		lines = append(lines, b.t(p.Language, "gen.course", map[string]any{"Course": p.Course}))
	}
	lines = append(lines,
		b.t(p.Language, "gen.level", map[string]any{"Level": string(p.Level)}),
		b.t(p.Language, "grade.language", nil),
		"",
		b.t(p.Language, "gen.material", nil),
		material,
		"",
		b.t(p.Language, "grade.items", nil),
		itemsJSON,
	)
	if student != nil {
		if len(student.History) > 0 {
			if data, err := json.Marshal(student.History); err == nil {
				lines = append(lines, "", b.t(p.Language, "grade.history", nil), string(data))
			}
		}
		if len(student.Mistakes) > 0 {
			if data, err := json.Marshal(student.Mistakes); err == nil {
				lines = append(lines, "", b.t(p.Language, "grade.mistakes", nil), string(data))
			}
		}
	}
	lines = append(lines,
		"",
		b.t(p.Language, "gen.rules", nil),
		b.t(p.Language, "grade.rule.points", nil),
		b.t(p.Language, "grade.rule.model_answer", nil),
	)
	return strings.Join(lines, "\n")
}

// TrainingSystem renders the coach instruction for training-material
// synthesis. The user turn is the serialized mistake bundle itself.
func (b *Builder) TrainingSystem(p Params) string {
	return b.t(p.Language, "train.system", nil)
}

// Phrases returns the localized feedback phrasebook for deterministic
// scoring and local repairs.
func (b *Builder) Phrases(lang model.Language) *Phrasebook {
	return &Phrasebook{b: b, lang: lang}
}

// Phrasebook renders the fixed feedback strings the pipeline produces
// without consulting the completion service.
type Phrasebook struct {
	b    *Builder
	lang model.Language
}

// Correct is the feedback for a correctly answered closed question.
func (p *Phrasebook) Correct() string {
	return p.b.t(p.lang, "feedback.correct", nil)
}

// Incorrect is the feedback for a wrong choice; correct names the right one.
func (p *Phrasebook) Incorrect(correct string) string {
	return p.b.t(p.lang, "feedback.incorrect", map[string]any{"Correct": correct})
}

// NoAnswer is the feedback for an unanswered closed question.
func (p *Phrasebook) NoAnswer(correct string) string {
	return p.b.t(p.lang, "feedback.no_answer", map[string]any{"Correct": correct})
}

// MissingKey flags a closed question whose answer key is absent or out of
// range; zero points are awarded instead of guessing.
func (p *Phrasebook) MissingKey() string {
	return p.b.t(p.lang, "feedback.missing_key", nil)
}

// Omitted flags an open item the grading service failed to return.
func (p *Phrasebook) Omitted() string {
	return p.b.t(p.lang, "feedback.omitted", nil)
}
