package render

import (
	"context"
	"fmt"
	"path/filepath"
	"unicode/utf16"

	"google.golang.org/api/docs/v1"

	"github.com/KenCoder/school-converter/internal/googleauth"
	"github.com/KenCoder/school-converter/internal/qti"
)

// GoogleDocsRenderer creates one Google Doc per assessment via the Docs API.
type GoogleDocsRenderer struct {
	Creds *googleauth.Provider
}

// DocScopes are the OAuth scopes this renderer needs.
var DocScopes = []string{docs.DocumentsScope}

func (r *GoogleDocsRenderer) Render(ctx context.Context, req Request) Result {
	a := req.Assessment

	svc, err := docs.NewService(ctx, r.Creds.ClientOptions()...)
	if err != nil {
		return failed(a, "", fmt.Errorf("docs client: %w", err))
	}

	var created *docs.Document
	err = withRetry(ctx, "docs.create", func() error {
		var err error
		created, err = svc.Documents.Create(&docs.Document{Title: a.Title}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return failed(a, "", err)
	}

	reqs := r.buildRequests(a, req.AnswerKey)
	if len(reqs) > 0 {
		err = withRetry(ctx, "docs.batchUpdate", func() error {
			_, err := svc.Documents.BatchUpdate(created.DocumentId,
				&docs.BatchUpdateDocumentRequest{Requests: reqs}).Context(ctx).Do()
			return err
		})
		if err != nil {
			return failed(a, "", err)
		}
	}

	return Result{
		Assessment: a.Title,
		Status:     StatusOK,
		Artifacts: []Artifact{{
			Path:  fmt.Sprintf("https://docs.google.com/document/d/%s/edit", created.DocumentId),
			ID:    created.DocumentId,
			Kind:  "google_doc",
			Title: a.Title,
		}},
	}
}

// docBuilder accumulates InsertText requests while tracking the UTF-16
// cursor the Docs API indexes by.
type docBuilder struct {
	reqs   []*docs.Request
	cursor int64
}

func (b *docBuilder) line(text, namedStyle string) {
	text += "\n"
	start := b.cursor
	end := start + int64(len(utf16.Encode([]rune(text))))
	b.reqs = append(b.reqs, &docs.Request{
		InsertText: &docs.InsertTextRequest{
			Location: &docs.Location{Index: start, ForceSendFields: []string{"Index"}},
			Text:     text,
		},
	})
	if namedStyle != "" {
		b.reqs = append(b.reqs, &docs.Request{
			UpdateParagraphStyle: &docs.UpdateParagraphStyleRequest{
				Range:          &docs.Range{StartIndex: start, EndIndex: end, ForceSendFields: []string{"StartIndex"}},
				ParagraphStyle: &docs.ParagraphStyle{NamedStyleType: namedStyle},
				Fields:         "namedStyleType",
			},
		})
	}
	b.cursor = end
}

func (r *GoogleDocsRenderer) buildRequests(a *qti.Assessment, answerKey bool) []*docs.Request {
	b := &docBuilder{cursor: 1}
	b.line(a.Title, "HEADING_1")

	mc, written := SplitSections(a.Questions)
	if len(mc) > 0 {
		b.line(HeadingMultipleChoice, "HEADING_2")
		for i, q := range mc {
			b.line(MCLabel(i+1, &q, answerKey)+" "+q.Prompt, "")
			for _, src := range q.Media {
				b.line(fmt.Sprintf("[image: %s]", filepath.Base(src)), "")
			}
			for j, opt := range q.Options {
				b.line(fmt.Sprintf("    %s. %s", OptionLetter(j), opt), "")
			}
			b.line("", "")
		}
	}
	if len(written) > 0 {
		b.line(HeadingWritten, "HEADING_2")
		for i, q := range written {
			b.line(SALabel(i+1)+" "+q.Prompt, "")
			for _, src := range q.Media {
				b.line(fmt.Sprintf("[image: %s]", filepath.Base(src)), "")
			}
			b.line("", "")
		}
	}
	return b.reqs
}
