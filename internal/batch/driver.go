// Package batch drives a whole conversion session: scan cartridges, build
// hierarchies, render every reachable assessment, and assemble the report.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KenCoder/school-converter/internal/cartridge"
	"github.com/KenCoder/school-converter/internal/hierarchy"
	"github.com/KenCoder/school-converter/internal/qti"
	"github.com/KenCoder/school-converter/internal/render"
)

// Driver runs one session. It is single-use: construct, Run once, discard.
type Driver struct {
	Renderer  render.Renderer
	Format    render.Format
	AnswerKey bool

	// Limit caps how many assessments the session renders; 0 means no cap.
	Limit int

	mu    sync.Mutex
	state State
}

func New(r render.Renderer, f render.Format) *Driver {
	return &Driver{Renderer: r, Format: f, state: StateIdle}
}

// State reports the current session state. Safe for concurrent readers while
// Run is in progress.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Driver) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

type scanned struct {
	name string
	cart *cartridge.Cartridge
	man  *cartridge.Manifest
	tree *hierarchy.Tree
}

// Run converts every input cartridge into outDir. A cartridge with a broken
// manifest is reported and skipped; the rest of the batch continues. Context
// cancellation is honored between assessments and aborts the session.
func (d *Driver) Run(ctx context.Context, inputs []string, outDir string) (*Report, error) {
	report := &Report{
		SessionID: uuid.NewString(),
		Format:    d.Format,
		OutputDir: outDir,
		StartedAt: time.Now().UTC(),
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	d.setState(StateScanning)
	batch := d.scan(inputs, report)
	defer func() {
		for _, sc := range batch {
			sc.cart.Close()
		}
	}()

	d.setState(StateRendering)
	multi := len(batch) > 1
	rendered := 0
	for _, sc := range batch {
		prefix := ""
		if multi {
			prefix = hierarchy.SanitizeName(sc.name)
		}
		aborted, err := d.renderTree(ctx, sc, outDir, prefix, report, &rendered)
		if aborted {
			return d.finish(report, StateAborted, outDir, batch, multi), err
		}
	}
	for _, sc := range batch {
		aborted, err := d.renderLoose(ctx, sc, outDir, multi, report, &rendered)
		if aborted {
			return d.finish(report, StateAborted, outDir, batch, multi), err
		}
	}

	return d.finish(report, StateDone, outDir, batch, multi), nil
}

// scan opens and classifies every input. Failures are recorded per cartridge.
func (d *Driver) scan(inputs []string, report *Report) []*scanned {
	var batch []*scanned
	for _, input := range inputs {
		name := cartridgeName(input)
		sc, err := scanOne(input, name)
		if err != nil {
			slog.Error("cartridge scan failed", "cartridge", name, "error", err)
			report.Cartridges = append(report.Cartridges, CartridgeStatus{
				Name: name, Status: "failed", Error: err.Error(),
			})
			continue
		}
		count := 0
		sc.tree.Walk(func(n *hierarchy.Node) {
			if n.Type != "file" {
				return
			}
			if res, ok := sc.man.Resource(n.ResourceID); ok && res.Kind == cartridge.KindAssessmentXML {
				count++
			}
		})
		report.Cartridges = append(report.Cartridges, CartridgeStatus{
			Name: name, Status: "ok", Assessments: count,
		})
		for _, res := range sc.tree.Unsupported {
			slog.Warn("skipping unsupported resource", "cartridge", name, "resource", res.Identifier, "type", res.Type)
			report.Skipped = append(report.Skipped, SkippedResource{
				Cartridge: name, ResourceID: res.Identifier, Type: res.Type, Reason: "unsupported resource type",
			})
		}
		batch = append(batch, sc)
	}
	return batch
}

func scanOne(input, name string) (*scanned, error) {
	cart, err := cartridge.Open(input)
	if err != nil {
		return nil, err
	}
	man, err := cart.Manifest()
	if err != nil {
		cart.Close()
		return nil, err
	}
	man.Classify(cart)
	return &scanned{
		name: name,
		cart: cart,
		man:  man,
		tree: hierarchy.Build(name, man),
	}, nil
}

// renderTree walks one cartridge's display tree in document order, rendering
// assessments and copying referenced static files next to them.
func (d *Driver) renderTree(ctx context.Context, sc *scanned, outDir, prefix string, report *Report, rendered *int) (aborted bool, err error) {
	var fileNodes []*hierarchy.Node
	sc.tree.Walk(func(n *hierarchy.Node) {
		if n.Type == "file" {
			fileNodes = append(fileNodes, n)
		}
	})

	for _, node := range fileNodes {
		res, ok := sc.man.Resource(node.ResourceID)
		if !ok {
			report.Skipped = append(report.Skipped, SkippedResource{
				Cartridge: sc.name, ResourceID: node.ResourceID, Reason: "unresolved resource reference",
			})
			continue
		}
		filesDir := filepath.Join(outDir, prefix, filepath.FromSlash(node.Path), "files")

		switch res.Kind {
		case cartridge.KindAssessmentXML:
			if err := ctx.Err(); err != nil {
				return true, err
			}
			if d.Limit > 0 && *rendered >= d.Limit {
				report.Skipped = append(report.Skipped, SkippedResource{
					Cartridge: sc.name, ResourceID: res.Identifier, Type: res.Type, Reason: "render limit reached",
				})
				continue
			}
			d.renderAssessment(ctx, sc, res, node, filesDir, outDir, report)
			*rendered++
		case cartridge.KindStaticFile:
			d.copyStatic(sc, res, node, filesDir, outDir, report)
		default:
			report.Skipped = append(report.Skipped, SkippedResource{
				Cartridge: sc.name, ResourceID: res.Identifier, Type: res.Type, Reason: "unsupported resource type",
			})
		}
	}
	return false, nil
}

func (d *Driver) renderAssessment(ctx context.Context, sc *scanned, res *cartridge.Resource, node *hierarchy.Node, filesDir, outDir string, report *Report) {
	href := res.AssessmentHref()
	data, err := sc.cart.ReadFile(href)
	if err != nil {
		report.Results = append(report.Results, render.Result{
			Assessment: node.Title, Cartridge: sc.name, Status: render.StatusFailed,
			ErrorDetail: fmt.Sprintf("read %s: %v", href, err),
		})
		return
	}
	asmt, err := qti.Parse(data, node.Title)
	if err != nil {
		report.Results = append(report.Results, render.Result{
			Assessment: node.Title, Cartridge: sc.name, Status: render.StatusFailed,
			ErrorDetail: err.Error(),
		})
		return
	}

	result := d.Renderer.Render(ctx, render.Request{
		Assessment: asmt,
		OutDir:     filesDir,
		BaseDir:    outDir,
		AnswerKey:  d.AnswerKey,
		Media:      sc.cart,
	})
	result.Cartridge = sc.name
	report.Results = append(report.Results, result)

	if result.Status == render.StatusOK {
		slog.Info("assessment rendered", "cartridge", sc.name, "assessment", asmt.Title, "artifacts", len(result.Artifacts))
	} else {
		slog.Error("assessment render failed", "cartridge", sc.name, "assessment", asmt.Title, "error", result.ErrorDetail)
	}
	for _, art := range result.Artifacts {
		node.Files = append(node.Files, hierarchy.FileEntry{
			Name:  filepath.Base(art.Path),
			Path:  art.Path,
			Type:  art.Kind,
			Title: art.Title,
		})
	}
}

// copyStatic copies one referenced non-assessment file, recorded in the tree
// with type "original".
func (d *Driver) copyStatic(sc *scanned, res *cartridge.Resource, node *hierarchy.Node, filesDir, outDir string, report *Report) {
	href := res.MainHref()
	dest, err := copyCartridgeFile(sc.cart, href, filesDir)
	if err != nil {
		slog.Warn("copying file failed", "cartridge", sc.name, "href", href, "error", err)
		report.Skipped = append(report.Skipped, SkippedResource{
			Cartridge: sc.name, ResourceID: res.Identifier, Type: res.Type,
			Reason: fmt.Sprintf("copy failed: %v", err),
		})
		return
	}
	rel, rerr := filepath.Rel(outDir, dest)
	if rerr != nil {
		rel = dest
	}
	node.Files = append(node.Files, hierarchy.FileEntry{
		Name:  filepath.Base(dest),
		Path:  filepath.ToSlash(rel),
		Type:  "original",
		Title: node.Title,
	})
}

// renderLoose handles resources no organization item references. They land in
// a shared loose_files directory, prefixed per cartridge in multi-cartridge
// sessions.
func (d *Driver) renderLoose(ctx context.Context, sc *scanned, outDir string, multi bool, report *Report, rendered *int) (aborted bool, err error) {
	if len(sc.tree.Loose) == 0 {
		return false, nil
	}
	looseDir := filepath.Join(outDir, "loose_files")
	if multi {
		looseDir = filepath.Join(looseDir, hierarchy.SanitizeName(sc.name))
	}
	report.LooseFilesPath = "loose_files"

	for i := range sc.tree.Loose {
		res := &sc.tree.Loose[i]
		switch res.Kind {
		case cartridge.KindAssessmentXML:
			if err := ctx.Err(); err != nil {
				return true, err
			}
			if d.Limit > 0 && *rendered >= d.Limit {
				report.Skipped = append(report.Skipped, SkippedResource{
					Cartridge: sc.name, ResourceID: res.Identifier, Type: res.Type, Reason: "render limit reached",
				})
				continue
			}
			data, rerr := sc.cart.ReadFile(res.AssessmentHref())
			if rerr != nil {
				report.Results = append(report.Results, render.Result{
					Assessment: res.Identifier, Cartridge: sc.name, Status: render.StatusFailed,
					ErrorDetail: rerr.Error(),
				})
				continue
			}
			asmt, perr := qti.Parse(data, res.Identifier)
			if perr != nil {
				report.Results = append(report.Results, render.Result{
					Assessment: res.Identifier, Cartridge: sc.name, Status: render.StatusFailed,
					ErrorDetail: perr.Error(),
				})
				continue
			}
			result := d.Renderer.Render(ctx, render.Request{
				Assessment: asmt,
				OutDir:     looseDir,
				BaseDir:    outDir,
				AnswerKey:  d.AnswerKey,
				Media:      sc.cart,
			})
			result.Cartridge = sc.name
			report.Results = append(report.Results, result)
			*rendered++
		case cartridge.KindStaticFile:
			if _, cerr := copyCartridgeFile(sc.cart, res.MainHref(), looseDir); cerr != nil {
				slog.Warn("copying loose file failed", "cartridge", sc.name, "href", res.MainHref(), "error", cerr)
				report.Skipped = append(report.Skipped, SkippedResource{
					Cartridge: sc.name, ResourceID: res.Identifier, Type: res.Type,
					Reason: fmt.Sprintf("copy failed: %v", cerr),
				})
			}
		}
	}
	return false, nil
}

// finish stamps the terminal state, writes hierarchy.json and the session
// report, and returns the report.
func (d *Driver) finish(report *Report, state State, outDir string, batch []*scanned, multi bool) *Report {
	d.setState(state)
	report.State = state
	report.FinishedAt = time.Now().UTC()

	if err := d.writeHierarchy(outDir, batch, multi, report.LooseFilesPath); err != nil {
		slog.Error("writing hierarchy.json failed", "error", err)
	}
	if data, err := json.MarshalIndent(report, "", "  "); err == nil {
		if werr := os.WriteFile(filepath.Join(outDir, "session_report.json"), data, 0o644); werr != nil {
			slog.Error("writing session report failed", "error", werr)
		}
	}

	ok, failedCount := report.Counts()
	slog.Info("session finished", "session", report.SessionID, "state", state, "ok", ok, "failed", failedCount, "skipped", len(report.Skipped))
	return report
}

func (d *Driver) writeHierarchy(outDir string, batch []*scanned, multi bool, loosePath string) error {
	if len(batch) == 0 {
		return nil
	}
	var doc any
	if multi {
		trees := make([]*hierarchy.Tree, 0, len(batch))
		for _, sc := range batch {
			trees = append(trees, sc.tree)
		}
		doc = hierarchy.Combine(trees, loosePath)
	} else {
		doc = struct {
			*hierarchy.Node
			LooseFilesPath string `json:"loose_files_path,omitempty"`
		}{batch[0].tree.Root, loosePath}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outDir, "hierarchy.json"), data, 0o644)
}

func copyCartridgeFile(cart *cartridge.Cartridge, href, destDir string) (string, error) {
	if href == "" {
		return "", fmt.Errorf("resource has no file")
	}
	src, err := cart.Open(href)
	if err != nil {
		return "", err
	}
	defer src.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	base := filepath.Base(filepath.FromSlash(href))
	ext := filepath.Ext(base)
	dest := render.UniquePath(destDir, strings.TrimSuffix(base, ext), ext)
	f, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, src); err != nil {
		return "", err
	}
	return dest, nil
}

// cartridgeName derives the display name for an input path: the base name
// without its archive extension.
func cartridgeName(input string) string {
	base := filepath.Base(filepath.Clean(input))
	for _, ext := range []string{".imscc", ".zip"} {
		if strings.EqualFold(filepath.Ext(base), ext) {
			return strings.TrimSuffix(base, filepath.Ext(base))
		}
	}
	return base
}
