package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRequest marks precondition violations on request shape.
// Handlers map it to a 400 response; it is never retried.
var ErrInvalidRequest = errors.New("invalid request")

// QuestionType classifies a question. TypeMix is only valid as a request
// filter; generated questions are always one of mc, short, essay.
type QuestionType string

const (
	TypeMC    QuestionType = "mc"
	TypeShort QuestionType = "short"
	TypeEssay QuestionType = "essay"
	TypeMix   QuestionType = "mix"
)

// Level represents the target grade level (Swedish E/C/A scale).
type Level string

const (
	LevelE Level = "E"
	LevelC Level = "C"
	LevelA Level = "A"
)

// Language selects the language of generated questions and feedback.
type Language string

const (
	LangSwedish Language = "sv"
	LangEnglish Language = "en"
)

// DomainHint nudges instruction wording for a subject family.
type DomainHint string

const (
	DomainGeneral DomainHint = "general"
	DomainMath    DomainHint = "math"
)

// NoCorrectOption is the sentinel correct_index for non multiple-choice
// questions. Contracts are union-free: every question carries options and
// correct_index, with [] and -1 standing in for "not applicable".
const NoCorrectOption = -1

// Question count bounds for a generated exam.
const (
	MinQuestions     = 3
	MaxQuestions     = 12
	DefaultQuestions = 12
)

// Question is a single exam item. For TypeMC, Options holds 2-6 choices
// and CorrectIndex points into it; for all other types Options is empty
// and CorrectIndex is NoCorrectOption.
type Question struct {
	ID           string       `json:"id"`
	Type         QuestionType `json:"type"`
	Points       int          `json:"points"`
	Prompt       string       `json:"question"`
	Options      []string     `json:"options"`
	CorrectIndex int          `json:"correct_index"`
	Rubric       string       `json:"rubric"`
	ModelAnswer  string       `json:"model_answer"`
}

// Exam is a generated exam. It is never mutated after generation.
type Exam struct {
	Title     string     `json:"title"`
	Level     Level      `json:"level"`
	Questions []Question `json:"questions"`
}

// Answer is a student's response keyed by question id.
type Answer struct {
	QuestionID string `json:"question_id"`
	Response   string `json:"response"`
}

// PerQuestionResult is the graded outcome for one question.
type PerQuestionResult struct {
	QuestionID    string  `json:"id"`
	PointsAwarded float64 `json:"points"`
	MaxPoints     int     `json:"max_points"`
	Feedback      string  `json:"feedback"`
	ModelAnswer   string  `json:"model_answer"`
}

// GradeReport is the merged grading result. TotalPoints and MaxPoints are
// always recomputed from PerQuestion, never copied from an upstream total.
type GradeReport struct {
	TotalPoints float64             `json:"total_points"`
	MaxPoints   int                 `json:"max_points"`
	PerQuestion []PerQuestionResult `json:"per_question"`
}

// HistoryEntry summarizes one past graded exam for personalization.
type HistoryEntry struct {
	Course      string    `json:"course"`
	Level       string    `json:"level"`
	TotalPoints float64   `json:"total_points"`
	MaxPoints   int       `json:"max_points"`
	TakenAt     time.Time `json:"taken_at"`
}

// Mistake records a question the student lost points on.
type Mistake struct {
	QuestionID  string       `json:"id"`
	Type        QuestionType `json:"type"`
	Question    string       `json:"question"`
	Response    string       `json:"user_answer"`
	Feedback    string       `json:"feedback"`
	ModelAnswer string       `json:"model_answer"`
	Points      float64      `json:"points"`
	MaxPoints   int          `json:"max_points"`
}

// Personalization window bounds for open-form grading.
const (
	MaxHistoryEntries = 10
	MaxMistakeEntries = 20

	maxFieldLen       = 1200
	maxModelAnswerLen = 1600
	maxCourseLen      = 200
	maxLevelLen       = 10
)

// StudentContext is an optional window of past performance embedded in
// the open-form grading instruction.
type StudentContext struct {
	History  []HistoryEntry `json:"history"`
	Mistakes []Mistake      `json:"mistakes"`
}

// Bounded returns a copy truncated to the personalization window with
// length-capped text fields, so instruction size stays stable regardless
// of how much history the caller loaded.
func (s *StudentContext) Bounded() *StudentContext {
	if s == nil {
		return nil
	}
	out := &StudentContext{}

	history := s.History
	if len(history) > MaxHistoryEntries {
		history = history[:MaxHistoryEntries]
	}
	for _, e := range history {
		out.History = append(out.History, e.Bounded())
	}

	mistakes := s.Mistakes
	if len(mistakes) > MaxMistakeEntries {
		mistakes = mistakes[:MaxMistakeEntries]
	}
	for _, m := range mistakes {
		out.Mistakes = append(out.Mistakes, m.Bounded())
	}
	return out
}

// Bounded returns a copy with length-capped text fields.
func (e HistoryEntry) Bounded() HistoryEntry {
	e.Course = truncate(e.Course, maxCourseLen)
	e.Level = truncate(e.Level, maxLevelLen)
	return e
}

// Bounded returns a copy with length-capped text fields.
func (m Mistake) Bounded() Mistake {
	m.Question = truncate(m.Question, maxFieldLen)
	m.Response = truncate(m.Response, maxFieldLen)
	m.Feedback = truncate(m.Feedback, maxFieldLen)
	m.ModelAnswer = truncate(m.ModelAnswer, maxModelAnswerLen)
	return m
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// GenerateRequest asks for a new exam from pasted study material.
type GenerateRequest struct {
	Material string       `json:"material"`
	Level    Level        `json:"level"`
	Course   string       `json:"course"`
	Type     QuestionType `json:"type"`
	Count    int          `json:"count"`
	Language Language     `json:"lang"`
	Domain   DomainHint   `json:"domain"`
}

// Normalize fills defaults and clamps the question count into
// [MinQuestions, MaxQuestions].
func (r *GenerateRequest) Normalize() {
	if r.Level == "" {
		r.Level = LevelC
	}
	if r.Type == "" {
		r.Type = TypeMix
	}
	if r.Language == "" {
		r.Language = LangSwedish
	}
	if r.Domain == "" {
		r.Domain = DomainGeneral
	}
	switch {
	case r.Count == 0:
		r.Count = DefaultQuestions
	case r.Count < MinQuestions:
		r.Count = MinQuestions
	case r.Count > MaxQuestions:
		r.Count = MaxQuestions
	}
}

// Validate rejects requests the pipeline cannot serve.
func (r *GenerateRequest) Validate() error {
	if r.Material == "" {
		return fmt.Errorf("%w: missing material", ErrInvalidRequest)
	}
	if !validLevel(r.Level) {
		return fmt.Errorf("%w: invalid level %q", ErrInvalidRequest, r.Level)
	}
	switch r.Type {
	case TypeMix, TypeMC, TypeShort, TypeEssay:
	default:
		return fmt.Errorf("%w: invalid question type %q", ErrInvalidRequest, r.Type)
	}
	if !validLanguage(r.Language) {
		return fmt.Errorf("%w: invalid language %q", ErrInvalidRequest, r.Language)
	}
	return nil
}

// GradeRequest asks for a submitted exam to be graded.
type GradeRequest struct {
	Material  string          `json:"material"`
	Level     Level           `json:"level"`
	Course    string          `json:"course"`
	Language  Language        `json:"lang"`
	Domain    DomainHint      `json:"domain"`
	Questions []Question      `json:"questions"`
	Answers   []Answer        `json:"answers"`
	Student   *StudentContext `json:"student,omitempty"`
}

// Normalize fills defaults on optional enum fields.
func (r *GradeRequest) Normalize() {
	if r.Level == "" {
		r.Level = LevelC
	}
	if r.Language == "" {
		r.Language = LangSwedish
	}
	if r.Domain == "" {
		r.Domain = DomainGeneral
	}
}

// Validate rejects requests with nothing to grade.
func (r *GradeRequest) Validate() error {
	if r.Material == "" {
		return fmt.Errorf("%w: missing material", ErrInvalidRequest)
	}
	if len(r.Questions) == 0 {
		return fmt.Errorf("%w: missing questions", ErrInvalidRequest)
	}
	if !validLevel(r.Level) {
		return fmt.Errorf("%w: invalid level %q", ErrInvalidRequest, r.Level)
	}
	if !validLanguage(r.Language) {
		return fmt.Errorf("%w: invalid language %q", ErrInvalidRequest, r.Language)
	}
	return nil
}

// TrainRequest asks for remedial study material derived from past mistakes.
type TrainRequest struct {
	Language Language  `json:"lang"`
	Course   string    `json:"course"`
	Level    string    `json:"level"`
	Mistakes []Mistake `json:"mistakes"`
}

// Normalize fills defaults and caps the free-text fields.
func (r *TrainRequest) Normalize() {
	if r.Language == "" {
		r.Language = LangSwedish
	}
	r.Course = truncate(r.Course, maxCourseLen)
	r.Level = truncate(r.Level, maxLevelLen)
}

// Validate rejects requests with no mistakes to learn from.
func (r *TrainRequest) Validate() error {
	if len(r.Mistakes) == 0 {
		return fmt.Errorf("%w: missing mistakes", ErrInvalidRequest)
	}
	if !validLanguage(r.Language) {
		return fmt.Errorf("%w: invalid language %q", ErrInvalidRequest, r.Language)
	}
	return nil
}

// FocusTopic is one weakness area in synthesized training material.
type FocusTopic struct {
	Topic       string   `json:"topic"`
	Why         string   `json:"why"`
	MicroDrills []string `json:"micro_drills"`
}

// TrainingMaterial is remedial study material targeting past mistakes.
type TrainingMaterial struct {
	MaterialText string       `json:"material_text"`
	FocusTopics  []FocusTopic `json:"focus_topics"`
}

func validLevel(l Level) bool {
	switch l {
	case LevelE, LevelC, LevelA:
		return true
	}
	return false
}

func validLanguage(l Language) bool {
	switch l {
	case LangSwedish, LangEnglish:
		return true
	}
	return false
}
