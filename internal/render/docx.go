package render

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fumiama/go-docx"

	"github.com/KenCoder/school-converter/internal/hierarchy"
	"github.com/KenCoder/school-converter/internal/qti"
)

// DocxRenderer writes one .docx per assessment, plus a companion answer-key
// document when requested.
type DocxRenderer struct {
	// FontMap sets the output font. Only the "*" key is honored: mattext
	// styling is flattened to plain text before rendering, so there are no
	// source fonts left to map per run.
	FontMap map[string]string
}

func (r *DocxRenderer) Render(ctx context.Context, req Request) Result {
	a := req.Assessment
	res := Result{Assessment: a.Title, Status: StatusOK}

	base := hierarchy.SanitizeName(a.Title)
	p, err := r.writeDoc(req, base, false)
	if err != nil {
		return failed(a, "", err)
	}
	res.Artifacts = append(res.Artifacts, Artifact{
		Path:  relTo(req.BaseDir, p),
		Kind:  "docx",
		Title: a.Title,
	})

	if req.AnswerKey {
		kp, err := r.writeDoc(req, base+"_key", true)
		if err != nil {
			return failed(a, "", err)
		}
		res.Artifacts = append(res.Artifacts, Artifact{
			Path:  relTo(req.BaseDir, kp),
			Kind:  "answer_key",
			Title: a.Title + " (Answer Key)",
		})
	}
	return res
}

func (r *DocxRenderer) writeDoc(req Request, base string, answerKey bool) (string, error) {
	a := req.Assessment
	w := docx.New().WithDefaultTheme()

	title := a.Title
	if answerKey {
		title += " (Answer Key)"
	}
	r.text(w.AddParagraph(), title).Size("32").Bold()
	w.AddParagraph()

	mc, written := SplitSections(a.Questions)
	if len(mc) > 0 {
		r.text(w.AddParagraph(), HeadingMultipleChoice).Size("28").Bold()
		for i, q := range mc {
			r.question(w, MCLabel(i+1, &q, answerKey), &q, req.Media)
		}
	}
	if len(written) > 0 {
		if len(mc) > 0 {
			w.AddParagraph()
		}
		r.text(w.AddParagraph(), HeadingWritten).Size("28").Bold()
		for i, q := range written {
			r.question(w, SALabel(i+1), &q, req.Media)
		}
	}

	if err := os.MkdirAll(req.OutDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	p := UniquePath(req.OutDir, base, ".docx")
	f, err := os.Create(p)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", filepath.Base(p), err)
	}
	defer f.Close()
	if _, err := w.WriteTo(f); err != nil {
		return "", fmt.Errorf("write %s: %w", filepath.Base(p), err)
	}
	return p, nil
}

func (r *DocxRenderer) question(w *docx.Docx, label string, q *qti.Question, media MediaSource) {
	r.text(w.AddParagraph(), label+" "+q.Prompt)
	for _, src := range q.Media {
		r.image(w, src, media)
	}
	for i, opt := range q.Options {
		r.text(w.AddParagraph(), fmt.Sprintf("    %s. %s", OptionLetter(i), opt))
	}
	w.AddParagraph()
}

// image embeds one cartridge media file inline. A missing or unreadable
// file degrades to a bracketed placeholder.
func (r *DocxRenderer) image(w *docx.Docx, src string, media MediaSource) {
	if media != nil {
		if data, err := media.ReadFile(src); err == nil {
			if _, err := w.AddParagraph().AddInlineDrawing(data); err == nil {
				return
			} else {
				slog.Warn("embedding image failed", "src", src, "error", err)
			}
		}
	}
	r.text(w.AddParagraph(), fmt.Sprintf("[image: %s]", filepath.Base(src)))
}

func (r *DocxRenderer) text(p *docx.Paragraph, s string) *docx.Run {
	run := p.AddText(s)
	if font, ok := r.FontMap["*"]; ok {
		run.Font(font, font, font, "")
	}
	return run
}
