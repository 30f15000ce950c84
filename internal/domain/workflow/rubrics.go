package workflow

import "github.com/okian/refbox/internal/domain/model"

// RubricSchema describes one judging category's rubric: which fields it has,
// whether written feedback is required before locking, and which optional
// awards can be nominated from it.
type RubricSchema struct {
	Category        model.JudgingCategory
	Fields          []string
	RequireFeedback bool
	Awards          []string
}

// rubricSchemas is the season rubric catalog.
var rubricSchemas = map[model.JudgingCategory]RubricSchema{
	model.CategoryCoreValues: {
		Category: model.CategoryCoreValues,
		Fields: []string{
			"discovery", "innovation", "impact", "inclusion", "teamwork", "fun",
		},
		Awards: []string{
			"breakthrough", "rising-all-star", "motivate", "judges",
		},
	},
	model.CategoryInnovationProject: {
		Category: model.CategoryInnovationProject,
		Fields: []string{
			"identify", "design", "create", "iterate", "communicate",
		},
		RequireFeedback: true,
	},
	model.CategoryRobotDesign: {
		Category: model.CategoryRobotDesign,
		Fields: []string{
			"identify", "design", "create", "iterate", "communicate",
		},
		RequireFeedback: true,
	},
}

// SchemaFor returns the rubric schema for a category.
func SchemaFor(category model.JudgingCategory) (RubricSchema, bool) {
	s, ok := rubricSchemas[category]
	return s, ok
}

// rubricComplete checks the lock guard: every field rated 1-4, every
// value-4 field annotated, and feedback present where the category
// requires it.
func rubricComplete(r *model.Rubric) error {
	schema, ok := SchemaFor(r.Category)
	if !ok {
		return errUnknownCategory(r.Category)
	}
	for _, id := range schema.Fields {
		f, ok := r.Fields[id]
		if !ok || f.Value == nil {
			return fieldError(id, "is not filled in")
		}
		if *f.Value < 1 || *f.Value > 4 {
			return fieldError(id, "is out of range")
		}
		if *f.Value == 4 && trimmed(f.Notes) == "" {
			return fieldError(id, "has value 4 without notes")
		}
	}
	if schema.RequireFeedback {
		if trimmed(r.Feedback.GreatJob) == "" || trimmed(r.Feedback.ThinkAbout) == "" {
			return feedbackError()
		}
	}
	return nil
}
