package render

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/KenCoder/school-converter/internal/hierarchy"
	"github.com/KenCoder/school-converter/internal/qti"
)

// FormsJSONRenderer writes one importable Google Forms JSON document per
// assessment. It needs no network and no credentials.
type FormsJSONRenderer struct{}

// The JSON shape below is consumed by an Apps Script importer; field names
// are a contract and must not change.
type formsDoc struct {
	FormTitle       string      `json:"formTitle"`
	FormDescription string      `json:"formDescription"`
	Items           []formsItem `json:"items"`
}

type formsItem struct {
	Title         string        `json:"title"`
	QuestionType  string        `json:"questionType"`
	Choices       []formsChoice `json:"choices,omitempty"`
	CorrectAnswer string        `json:"correctAnswer,omitempty"`
}

type formsChoice struct {
	Value     string `json:"value"`
	IsCorrect bool   `json:"isCorrect"`
}

func (r *FormsJSONRenderer) Render(ctx context.Context, req Request) Result {
	a := req.Assessment
	doc := formsDoc{
		FormTitle:       a.Title,
		FormDescription: fmt.Sprintf("Imported assessment with %d questions.", len(a.Questions)),
		Items:           []formsItem{},
	}
	for _, q := range a.Questions {
		doc.Items = append(doc.Items, formsItemFor(&q))
	}

	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return failed(a, "", fmt.Errorf("encode form: %w", err))
	}
	if err := os.MkdirAll(req.OutDir, 0o755); err != nil {
		return failed(a, "", fmt.Errorf("create output dir: %w", err))
	}
	p := UniquePath(req.OutDir, hierarchy.SanitizeName(a.Title), ".json")
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return failed(a, "", fmt.Errorf("write form: %w", err))
	}

	return Result{
		Assessment: a.Title,
		Status:     StatusOK,
		Artifacts: []Artifact{{
			Path:  relTo(req.BaseDir, p),
			Kind:  "forms_json",
			Title: a.Title,
		}},
	}
}

func formsItemFor(q *qti.Question) formsItem {
	item := formsItem{Title: q.Prompt}
	switch q.Type {
	case qti.MultipleChoice:
		item.QuestionType = "MULTIPLE_CHOICE"
		for i, opt := range q.Options {
			correct := i == q.CorrectIndex
			item.Choices = append(item.Choices, formsChoice{Value: opt, IsCorrect: correct})
			if correct {
				item.CorrectAnswer = opt
			}
		}
	case qti.ShortAnswer:
		item.QuestionType = "SHORT_ANSWER"
	default:
		item.QuestionType = "PARAGRAPH"
	}
	return item
}
