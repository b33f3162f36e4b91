package batch

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/KenCoder/school-converter/internal/render"
)

const testManifest = `<?xml version="1.0" encoding="UTF-8"?>
<manifest xmlns="http://www.imsglobal.org/xsd/imsccv1p1/imscp_v1p1">
  <metadata><lom><general><title><string>Test Course</string></title></general></lom></metadata>
  <organizations>
    <organization>
      <item identifier="unit1">
        <title>Unit 1</title>
        <item identifier="quiz1_item" identifierref="res_quiz1"><title>Quiz 1</title></item>
      </item>
      <item identifier="doc_item" identifierref="res_doc"><title>Notes</title></item>
    </organization>
  </organizations>
  <resources>
    <resource identifier="res_quiz1" type="imsqti_xmlv1p2/imscc_xmlv1p1/assessment">
      <file href="quiz1/assessment.xml"/>
    </resource>
    <resource identifier="res_doc" type="webcontent" href="docs/notes.txt">
      <file href="docs/notes.txt"/>
    </resource>
    <resource identifier="res_loose" type="webcontent" href="docs/extra.txt">
      <file href="docs/extra.txt"/>
    </resource>
    <resource identifier="res_topic" type="imsdt_xmlv1p1"/>
  </resources>
</manifest>`

const testQuiz = `<questestinterop>
  <assessment ident="a1" title="Quiz 1">
    <section>
      <item ident="q1">
        <presentation>
          <material><mattext>Pick one.</mattext></material>
          <response_lid ident="r1">
            <render_choice>
              <response_label ident="c1"><material><mattext>Yes</mattext></material></response_label>
              <response_label ident="c2"><material><mattext>No</mattext></material></response_label>
            </render_choice>
          </response_lid>
        </presentation>
        <resprocessing>
          <respcondition><conditionvar><varequal respident="r1">c1</varequal></conditionvar></respcondition>
        </resprocessing>
      </item>
    </section>
  </assessment>
</questestinterop>`

// writeCartridge lays out one extracted cartridge directory.
func writeCartridge(t *testing.T, root, name, manifest string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	files := map[string]string{
		"imsmanifest.xml":      manifest,
		"quiz1/assessment.xml": testQuiz,
		"docs/notes.txt":       "lecture notes",
		"docs/extra.txt":       "extra material",
	}
	for p, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	renderer, err := render.New(render.FormatGoogleForms, render.Options{})
	if err != nil {
		t.Fatal(err)
	}
	return New(renderer, render.FormatGoogleForms)
}

func TestRunBatch(t *testing.T) {
	root := t.TempDir()
	inputs := []string{
		writeCartridge(t, root, "course-a", testManifest),
		writeCartridge(t, root, "course-b", testManifest),
		writeCartridge(t, root, "course-broken", "<manifest><resources/></manifest>"),
	}
	outDir := filepath.Join(root, "out")

	d := newTestDriver(t)
	report, err := d.Run(context.Background(), inputs, outDir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.State != StateDone {
		t.Errorf("state = %q, want done", report.State)
	}
	if d.State() != StateDone {
		t.Errorf("driver state = %q", d.State())
	}
	if len(report.Cartridges) != 3 {
		t.Fatalf("cartridges = %d", len(report.Cartridges))
	}
	okCount, failedCartridges := 0, 0
	for _, cs := range report.Cartridges {
		switch cs.Status {
		case "ok":
			okCount++
		default:
			failedCartridges++
			if cs.Name != "course-broken" {
				t.Errorf("unexpected failed cartridge %q: %s", cs.Name, cs.Error)
			}
		}
	}
	if okCount != 2 || failedCartridges != 1 {
		t.Errorf("ok=%d failed=%d, want 2/1", okCount, failedCartridges)
	}

	ok, failedRenders := report.Counts()
	if ok != 2 || failedRenders != 0 {
		t.Errorf("results ok=%d failed=%d: %+v", ok, failedRenders, report.Results)
	}

	// Multi-cartridge session: content is namespaced per cartridge.
	if _, err := os.Stat(filepath.Join(outDir, "course-a", "Unit 1", "files", "Quiz 1.json")); err != nil {
		t.Errorf("rendered quiz missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "course-a", "files", "notes.txt")); err != nil {
		t.Errorf("copied static file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "loose_files", "course-b", "extra.txt")); err != nil {
		t.Errorf("loose file missing: %v", err)
	}
	if report.LooseFilesPath != "loose_files" {
		t.Errorf("loose_files_path = %q", report.LooseFilesPath)
	}

	// hierarchy.json carries the combined shape.
	data, err := os.ReadFile(filepath.Join(outDir, "hierarchy.json"))
	if err != nil {
		t.Fatalf("hierarchy.json: %v", err)
	}
	var combined struct {
		Cartridges []struct {
			CartridgeName string          `json:"cartridge_name"`
			Hierarchy     json.RawMessage `json:"hierarchy"`
		} `json:"cartridges"`
	}
	if err := json.Unmarshal(data, &combined); err != nil {
		t.Fatalf("parse hierarchy.json: %v", err)
	}
	if len(combined.Cartridges) != 2 {
		t.Errorf("combined cartridges = %d, want 2", len(combined.Cartridges))
	}

	if _, err := os.Stat(filepath.Join(outDir, "session_report.json")); err != nil {
		t.Errorf("session report missing: %v", err)
	}

	// res_topic is unreferenced and unsupported: never rendered, but every
	// surviving cartridge reports it in the skip list.
	topicSkips := 0
	for _, sk := range report.Skipped {
		if sk.ResourceID == "res_topic" {
			topicSkips++
			if sk.Reason != "unsupported resource type" || sk.Type != "imsdt_xmlv1p1" {
				t.Errorf("skip entry = %+v", sk)
			}
		}
	}
	if topicSkips != 2 {
		t.Errorf("res_topic skips = %d, want one per surviving cartridge", topicSkips)
	}
}

func TestRunSingleCartridgeLayout(t *testing.T) {
	root := t.TempDir()
	input := writeCartridge(t, root, "solo", testManifest)
	outDir := filepath.Join(root, "out")

	d := newTestDriver(t)
	report, err := d.Run(context.Background(), []string{input}, outDir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.State != StateDone {
		t.Fatalf("state = %q", report.State)
	}

	// No cartridge prefix for a single input.
	if _, err := os.Stat(filepath.Join(outDir, "Unit 1", "files", "Quiz 1.json")); err != nil {
		t.Errorf("rendered quiz missing: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(outDir, "hierarchy.json"))
	if err != nil {
		t.Fatalf("hierarchy.json: %v", err)
	}
	var rootNode struct {
		Title          string `json:"title"`
		Type           string `json:"type"`
		LooseFilesPath string `json:"loose_files_path"`
	}
	if err := json.Unmarshal(data, &rootNode); err != nil {
		t.Fatal(err)
	}
	if rootNode.Title != "Test Course" || rootNode.Type != "folder" {
		t.Errorf("root = %+v", rootNode)
	}
	if rootNode.LooseFilesPath != "loose_files" {
		t.Errorf("loose_files_path = %q", rootNode.LooseFilesPath)
	}
}

func TestRunCancelled(t *testing.T) {
	root := t.TempDir()
	input := writeCartridge(t, root, "solo", testManifest)
	outDir := filepath.Join(root, "out")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := newTestDriver(t)
	report, err := d.Run(ctx, []string{input}, outDir)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if report.State != StateAborted {
		t.Errorf("state = %q, want aborted", report.State)
	}
	if d.State() != StateAborted {
		t.Errorf("driver state = %q", d.State())
	}
	ok, _ := report.Counts()
	if ok != 0 {
		t.Errorf("rendered %d assessments after cancellation", ok)
	}
}

func TestRunLimit(t *testing.T) {
	root := t.TempDir()
	inputs := []string{
		writeCartridge(t, root, "course-a", testManifest),
		writeCartridge(t, root, "course-b", testManifest),
	}
	outDir := filepath.Join(root, "out")

	d := newTestDriver(t)
	d.Limit = 1
	report, err := d.Run(context.Background(), inputs, outDir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	ok, _ := report.Counts()
	if ok != 1 {
		t.Errorf("rendered = %d, want 1", ok)
	}
	found := false
	for _, sk := range report.Skipped {
		if sk.Reason == "render limit reached" {
			found = true
		}
	}
	if !found {
		t.Errorf("no limit skip recorded: %+v", report.Skipped)
	}
}
