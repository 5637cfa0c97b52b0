// Package contract builds the strict JSON-schema output contracts the
// completion service is instructed to conform to.
//
// Contracts are deliberately union-free: type-conditional fields such as
// options and correct_index are always present and required, with [] and
// -1 as sentinels for non multiple-choice questions. Strict schema
// validation on the service side cannot reliably enforce "exactly one of
// several shapes", so alternative-shape (oneOf) question schemas were
// dropped in favor of this flattening. Do not reintroduce unions here
// without verifying the validation backend enforces them.
package contract

import (
	"encoding/json"

	"github.com/provgen/provgen/internal/model"
)

// Definition is a JSON-schema document built as plain nested maps.
type Definition map[string]any

// MarshalJSON lets a Definition be passed directly as a structured-output
// schema to the completion client.
func (d Definition) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any(d))
}

// Contract is a named strict schema for one completion call.
type Contract struct {
	Name       string
	Definition Definition
}

// Exam returns the contract for an exam with exactly count questions.
// When filter is a single type the question type enum collapses to it;
// for TypeMix all three generated types are allowed.
func Exam(count int, filter model.QuestionType) Contract {
	typeEnum := []any{string(model.TypeMC), string(model.TypeShort), string(model.TypeEssay)}
	switch filter {
	case model.TypeMC, model.TypeShort, model.TypeEssay:
		typeEnum = []any{string(filter)}
	}

	question := Definition{
		"type":                 "object",
		"additionalProperties": false,
		"required": []any{
			"id", "type", "points", "question",
			"options", "correct_index", "rubric", "model_answer",
		},
		"properties": Definition{
			"id":   Definition{"type": "string"},
			"type": Definition{"type": "string", "enum": typeEnum},
			"points": Definition{
				"type":    "integer",
				"minimum": 1,
				"maximum": 10,
			},
			"question": Definition{"type": "string", "minLength": 5},
			"options": Definition{
				"type":     "array",
				"items":    Definition{"type": "string", "minLength": 1},
				"minItems": 0,
				"maxItems": 6,
			},
			"correct_index": Definition{
				"type":    "integer",
				"minimum": model.NoCorrectOption,
				"maximum": 5,
			},
			"rubric":       Definition{"type": "string"},
			"model_answer": Definition{"type": "string"},
		},
	}

	return Contract{
		Name: "mock_exam",
		Definition: Definition{
			"type":                 "object",
			"additionalProperties": false,
			"required":             []any{"title", "level", "questions"},
			"properties": Definition{
				"title": Definition{"type": "string"},
				"level": Definition{
					"type": "string",
					"enum": []any{string(model.LevelE), string(model.LevelC), string(model.LevelA)},
				},
				"questions": Definition{
					"type":     "array",
					"minItems": count,
					"maxItems": count,
					"items":    question,
				},
			},
		},
	}
}

// GradeReport returns the contract for grading exactly items open-form
// answers. The top-level totals are advisory only; the grader recomputes
// them from the per-question ledger.
func GradeReport(items int) Contract {
	return Contract{
		Name: "grade_report",
		Definition: Definition{
			"type":                 "object",
			"additionalProperties": false,
			"required":             []any{"total_points", "max_points", "per_question"},
			"properties": Definition{
				"total_points": Definition{"type": "number", "minimum": 0},
				"max_points":   Definition{"type": "integer", "minimum": 1},
				"per_question": Definition{
					"type":     "array",
					"minItems": items,
					"maxItems": items,
					"items": Definition{
						"type":                 "object",
						"additionalProperties": false,
						"required":             []any{"id", "points", "max_points", "feedback", "model_answer"},
						"properties": Definition{
							"id":           Definition{"type": "string"},
							"points":       Definition{"type": "number", "minimum": 0},
							"max_points":   Definition{"type": "integer", "minimum": 1},
							"feedback":     Definition{"type": "string", "minLength": 1},
							"model_answer": Definition{"type": "string", "minLength": 1},
						},
					},
				},
			},
		},
	}
}

// TrainingMaterial returns the contract for remedial study material.
func TrainingMaterial() Contract {
	return Contract{
		Name: "training_material",
		Definition: Definition{
			"type":                 "object",
			"additionalProperties": false,
			"required":             []any{"material_text", "focus_topics"},
			"properties": Definition{
				"material_text": Definition{"type": "string"},
				"focus_topics": Definition{
					"type": "array",
					"items": Definition{
						"type":                 "object",
						"additionalProperties": false,
						"required":             []any{"topic", "why", "micro_drills"},
						"properties": Definition{
							"topic":        Definition{"type": "string"},
							"why":          Definition{"type": "string"},
							"micro_drills": Definition{"type": "array", "items": Definition{"type": "string"}},
						},
					},
				},
			},
		},
	}
}
