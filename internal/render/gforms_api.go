package render

import (
	"context"
	"fmt"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/forms/v1"

	"github.com/KenCoder/school-converter/internal/googleauth"
	"github.com/KenCoder/school-converter/internal/qti"
)

// GoogleFormsAPIRenderer creates one live Google Form per assessment. With a
// DriveFolderID the form is also moved into that Drive folder.
type GoogleFormsAPIRenderer struct {
	Creds         *googleauth.Provider
	DriveFolderID string
}

// FormScopes are the OAuth scopes this renderer needs. The Drive scope is
// only exercised when a target folder is configured.
var FormScopes = []string{forms.FormsBodyScope, drive.DriveFileScope}

func (r *GoogleFormsAPIRenderer) Render(ctx context.Context, req Request) Result {
	a := req.Assessment

	svc, err := forms.NewService(ctx, r.Creds.ClientOptions()...)
	if err != nil {
		return failed(a, "", fmt.Errorf("forms client: %w", err))
	}

	var form *forms.Form
	err = withRetry(ctx, "forms.create", func() error {
		var err error
		form, err = svc.Forms.Create(&forms.Form{
			Info: &forms.Info{Title: a.Title, DocumentTitle: a.Title},
		}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return failed(a, "", err)
	}

	reqs := r.buildRequests(a, req.AnswerKey)
	if len(reqs) > 0 {
		err = withRetry(ctx, "forms.batchUpdate", func() error {
			_, err := svc.Forms.BatchUpdate(form.FormId,
				&forms.BatchUpdateFormRequest{Requests: reqs}).Context(ctx).Do()
			return err
		})
		if err != nil {
			return failed(a, "", err)
		}
	}

	if r.DriveFolderID != "" {
		if err := r.moveToFolder(ctx, form.FormId); err != nil {
			return failed(a, "", err)
		}
	}

	return Result{
		Assessment: a.Title,
		Status:     StatusOK,
		Artifacts: []Artifact{{
			Path:  form.ResponderUri,
			ID:    form.FormId,
			Kind:  "google_form",
			Title: a.Title,
		}},
	}
}

func (r *GoogleFormsAPIRenderer) buildRequests(a *qti.Assessment, answerKey bool) []*forms.Request {
	reqs := []*forms.Request{{
		UpdateFormInfo: &forms.UpdateFormInfoRequest{
			Info: &forms.Info{
				Description: fmt.Sprintf("Imported assessment with %d questions.", len(a.Questions)),
			},
			UpdateMask: "description",
		},
	}}
	for i, q := range a.Questions {
		reqs = append(reqs, &forms.Request{
			CreateItem: &forms.CreateItemRequest{
				Item: formItemFor(&q, answerKey),
				Location: &forms.Location{
					Index:           int64(i),
					ForceSendFields: []string{"Index"},
				},
			},
		})
	}
	return reqs
}

func formItemFor(q *qti.Question, answerKey bool) *forms.Item {
	question := &forms.Question{}
	switch q.Type {
	case qti.MultipleChoice:
		cq := &forms.ChoiceQuestion{Type: "RADIO"}
		for _, opt := range q.Options {
			cq.Options = append(cq.Options, &forms.Option{Value: opt})
		}
		question.ChoiceQuestion = cq
		if answerKey && q.CorrectIndex >= 0 && q.CorrectIndex < len(q.Options) {
			question.Grading = &forms.Grading{
				PointValue: 1,
				CorrectAnswers: &forms.CorrectAnswers{
					Answers: []*forms.CorrectAnswer{{Value: q.Options[q.CorrectIndex]}},
				},
			}
		}
	case qti.ShortAnswer:
		question.TextQuestion = &forms.TextQuestion{}
	default:
		question.TextQuestion = &forms.TextQuestion{Paragraph: true}
	}
	return &forms.Item{
		Title:        q.Prompt,
		QuestionItem: &forms.QuestionItem{Question: question},
	}
}

func (r *GoogleFormsAPIRenderer) moveToFolder(ctx context.Context, formID string) error {
	svc, err := drive.NewService(ctx, r.Creds.ClientOptions()...)
	if err != nil {
		return fmt.Errorf("drive client: %w", err)
	}
	return withRetry(ctx, "drive.move", func() error {
		_, err := svc.Files.Update(formID, &drive.File{}).
			AddParents(r.DriveFolderID).
			Fields("id", "parents").
			Context(ctx).Do()
		return err
	})
}
