// Package render turns extracted assessments into output artifacts. Each
// format is one Renderer implementation; the variant is resolved once at
// batch start.
package render

import (
	"context"
	"fmt"

	"github.com/KenCoder/school-converter/internal/googleauth"
	"github.com/KenCoder/school-converter/internal/qti"
)

// Format tags the output variant.
type Format string

const (
	FormatDocx           Format = "docx"
	FormatGoogleDocs     Format = "google_docs"
	FormatGoogleForms    Format = "google_forms"
	FormatGoogleFormsAPI Format = "google_forms_api"
)

// ParseFormat validates a format string from the CLI.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatDocx, FormatGoogleDocs, FormatGoogleForms, FormatGoogleFormsAPI:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown format %q", s)
}

// Status of one render attempt.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Artifact is one produced output: a local file or a remote document.
type Artifact struct {
	Path  string `json:"path"` // local path relative to the session output dir, or remote URL
	ID    string `json:"id,omitempty"`
	Kind  string `json:"kind"` // docx | answer_key | forms_json | google_doc | google_form
	Title string `json:"title"`
}

// Result is the outcome of rendering one assessment.
type Result struct {
	Assessment  string     `json:"assessment"`
	Cartridge   string     `json:"cartridge,omitempty"`
	Status      Status     `json:"status"`
	Artifacts   []Artifact `json:"artifacts,omitempty"`
	ErrorDetail string     `json:"error_detail,omitempty"`
}

// MediaSource supplies embedded media content by cartridge-relative path.
// *cartridge.Cartridge satisfies it.
type MediaSource interface {
	ReadFile(name string) ([]byte, error)
}

// Request carries one assessment into a renderer. OutDir is the directory
// local artifacts go to ("" for purely remote formats); BaseDir is the
// session output root that artifact paths are reported relative to.
type Request struct {
	Assessment *qti.Assessment
	OutDir     string
	BaseDir    string
	AnswerKey  bool
	Media      MediaSource
}

// Renderer consumes one assessment and reports one Result. Implementations
// never panic the batch: all failures surface as StatusFailed.
type Renderer interface {
	Render(ctx context.Context, req Request) Result
}

// Options configures renderer construction.
type Options struct {
	FontMap       map[string]string
	Credentials   *googleauth.Provider
	DriveFolderID string
}

// New resolves a format tag into a concrete renderer.
func New(f Format, opts Options) (Renderer, error) {
	switch f {
	case FormatDocx:
		return &DocxRenderer{FontMap: opts.FontMap}, nil
	case FormatGoogleForms:
		return &FormsJSONRenderer{}, nil
	case FormatGoogleDocs:
		if opts.Credentials == nil {
			return nil, fmt.Errorf("format %s requires credentials", f)
		}
		return &GoogleDocsRenderer{Creds: opts.Credentials}, nil
	case FormatGoogleFormsAPI:
		if opts.Credentials == nil {
			return nil, fmt.Errorf("format %s requires credentials", f)
		}
		return &GoogleFormsAPIRenderer{Creds: opts.Credentials, DriveFolderID: opts.DriveFolderID}, nil
	}
	return nil, fmt.Errorf("unknown format %q", f)
}

func failed(a *qti.Assessment, cartName string, err error) Result {
	return Result{
		Assessment:  a.Title,
		Cartridge:   cartName,
		Status:      StatusFailed,
		ErrorDetail: err.Error(),
	}
}
