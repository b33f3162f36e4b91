package qti

import (
	"encoding/xml"
	"fmt"
	"log/slog"
	"strings"
)

// QuestionType classifies one extracted question.
type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	ShortAnswer    QuestionType = "short_answer"
	Essay          QuestionType = "essay"
)

// Question is one assessment item, flattened for rendering. CorrectIndex is
// -1 when the source carries no answer key; when >= 0 it always indexes
// within Options.
type Question struct {
	Ident        string
	Type         QuestionType
	Prompt       string
	Options      []string
	CorrectIndex int
	Media        []string
}

// Assessment is one parsed quiz. Question order is item order in the source
// XML; nothing is resorted.
type Assessment struct {
	Ident     string
	Title     string
	Questions []Question

	// Warnings records items skipped during extraction, one entry per item.
	Warnings []string
}

// MalformedQuestionError marks one item that could not be extracted. It
// never aborts the assessment; the item is skipped.
type MalformedQuestionError struct {
	Ident  string
	Reason string
}

func (e *MalformedQuestionError) Error() string {
	return fmt.Sprintf("malformed question %q: %s", e.Ident, e.Reason)
}

// QTI 1.2 "questestinterop" shapes. Tags carry no namespace so local-name
// matching tolerates the namespace variants in the wild.
type questestinterop struct {
	XMLName    xml.Name       `xml:"questestinterop"`
	Assessment *qtiAssessment `xml:"assessment"`
}

type qtiAssessment struct {
	Ident    string       `xml:"ident,attr"`
	Title    string       `xml:"title,attr"`
	Sections []qtiSection `xml:"section"`
}

type qtiSection struct {
	Items []qtiItem `xml:"item"`
}

type qtiItem struct {
	Ident         string           `xml:"ident,attr"`
	Metadata      []qtiMetaField   `xml:"itemmetadata>qtimetadata>qtimetadatafield"`
	Presentation  *qtiPresentation `xml:"presentation"`
	Resprocessing *qtiResprocess   `xml:"resprocessing"`
}

type qtiMetaField struct {
	Label string `xml:"fieldlabel"`
	Entry string `xml:"fieldentry"`
}

type qtiPresentation struct {
	Material    *qtiMaterial    `xml:"material"`
	ResponseLid *qtiResponseLid `xml:"response_lid"`
	ResponseStr *qtiResponseStr `xml:"response_str"`
}

type qtiMaterial struct {
	Mattext qtiMattext `xml:"mattext"`
}

type qtiMattext struct {
	Texttype string `xml:"texttype,attr"`
	Text     string `xml:",chardata"`
}

type qtiResponseLid struct {
	RenderChoice *qtiRenderChoice `xml:"render_choice"`
}

type qtiRenderChoice struct {
	Labels []qtiResponseLabel `xml:"response_label"`
}

type qtiResponseLabel struct {
	Ident    string       `xml:"ident,attr"`
	Material *qtiMaterial `xml:"material"`
}

type qtiResponseStr struct {
	RenderFib *struct{} `xml:"render_fib"`
}

// Raw inner XML: correct-response conditions nest varequal at varying depths
// (directly under conditionvar, or inside <and>/<or>), so we token-scan.
type qtiResprocess struct {
	RawXML string `xml:",innerxml"`
}

// Parse extracts one assessment document. Malformed items are skipped with a
// warning; the rest of the assessment survives.
func Parse(data []byte, fallbackTitle string) (*Assessment, error) {
	var doc questestinterop
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse assessment XML: %w", err)
	}
	if doc.Assessment == nil {
		return nil, fmt.Errorf("parse assessment XML: no <assessment> element")
	}

	a := &Assessment{
		Ident: doc.Assessment.Ident,
		Title: strings.TrimSpace(doc.Assessment.Title),
	}
	if a.Title == "" {
		a.Title = fallbackTitle
	}

	for si := range doc.Assessment.Sections {
		for ii := range doc.Assessment.Sections[si].Items {
			item := &doc.Assessment.Sections[si].Items[ii]
			q, err := extractItem(item)
			if err != nil {
				slog.Warn("skipping malformed question", "assessment", a.Title, "item", item.Ident, "error", err)
				a.Warnings = append(a.Warnings, err.Error())
				continue
			}
			a.Questions = append(a.Questions, q)
		}
	}
	return a, nil
}

func extractItem(item *qtiItem) (Question, error) {
	if item.Presentation == nil {
		return Question{}, &MalformedQuestionError{Ident: item.Ident, Reason: "no <presentation> element"}
	}
	if item.Presentation.Material == nil {
		return Question{}, &MalformedQuestionError{Ident: item.Ident, Reason: "no <material> element"}
	}

	prompt, media := flattenHTML(item.Presentation.Material.Mattext.Text)
	q := Question{
		Ident:        item.Ident,
		Type:         questionType(item),
		Prompt:       prompt,
		CorrectIndex: -1,
		Media:        media,
	}

	if q.Type != MultipleChoice {
		return q, nil
	}

	rc := item.Presentation.ResponseLid
	if rc == nil || rc.RenderChoice == nil {
		return Question{}, &MalformedQuestionError{Ident: item.Ident, Reason: "multiple choice item without <render_choice>"}
	}
	correctIdent := correctResponseIdent(item.Resprocessing)
	for i, label := range rc.RenderChoice.Labels {
		text := ""
		if label.Material != nil {
			var imgs []string
			text, imgs = flattenHTML(label.Material.Mattext.Text)
			q.Media = append(q.Media, imgs...)
		}
		q.Options = append(q.Options, text)
		if correctIdent != "" && label.Ident == correctIdent {
			q.CorrectIndex = i
		}
	}
	return q, nil
}

// questionType resolves the item type from cc_profile metadata, falling back
// to the presentation structure when no profile is recognized.
func questionType(item *qtiItem) QuestionType {
	for _, f := range item.Metadata {
		if strings.TrimSpace(f.Label) != "cc_profile" {
			continue
		}
		profile := strings.ToLower(f.Entry)
		switch {
		case strings.Contains(profile, "multiple_choice"):
			return MultipleChoice
		case strings.Contains(profile, "short_answer"), strings.Contains(profile, "fib"):
			return ShortAnswer
		case strings.Contains(profile, "essay"):
			return Essay
		}
	}
	p := item.Presentation
	switch {
	case p.ResponseLid != nil && p.ResponseLid.RenderChoice != nil && len(p.ResponseLid.RenderChoice.Labels) > 0:
		return MultipleChoice
	case p.ResponseStr != nil:
		return ShortAnswer
	default:
		return Essay
	}
}

// correctResponseIdent scans resprocessing inner XML for the first
// <varequal> value, at any nesting depth.
func correctResponseIdent(rp *qtiResprocess) string {
	if rp == nil {
		return ""
	}
	dec := xml.NewDecoder(strings.NewReader(rp.RawXML))
	inVarequal := false
	for {
		tok, err := dec.Token()
		if err != nil {
			return ""
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if strings.EqualFold(t.Name.Local, "varequal") {
				inVarequal = true
			}
		case xml.CharData:
			if inVarequal {
				if v := strings.TrimSpace(string(t)); v != "" {
					return v
				}
			}
		case xml.EndElement:
			if strings.EqualFold(t.Name.Local, "varequal") {
				inVarequal = false
			}
		}
	}
}
