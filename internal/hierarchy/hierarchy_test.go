package hierarchy

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/KenCoder/school-converter/internal/cartridge"
)

func testManifest(t *testing.T) *cartridge.Manifest {
	t.Helper()
	const doc = `<manifest>
  <metadata><lom><general><title><string>Biology</string></title></general></lom></metadata>
  <organizations>
    <organization>
      <item identifier="unit1">
        <title>Unit 1: Cells</title>
        <item identifier="quiz1_item" identifierref="res_quiz1"><title>Cell Quiz</title></item>
      </item>
      <item identifier="syllabus_item" identifierref="res_doc"><title>Syllabus</title></item>
    </organization>
  </organizations>
  <resources>
    <resource identifier="res_quiz1" type="imsqti_xmlv1p2/imscc_xmlv1p1/assessment">
      <file href="quiz1/assessment.xml"/>
    </resource>
    <resource identifier="res_doc" type="webcontent" href="docs/syllabus.pdf"/>
    <resource identifier="res_loose" type="webcontent" href="docs/notes.pdf"/>
    <resource identifier="res_junk" type="imsdt_xmlv1p1"/>
  </resources>
</manifest>`
	m, err := cartridge.ParseManifest("bio", []byte(doc))
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	m.Classify(existsAll{})
	return m
}

type existsAll struct{}

func (existsAll) Exists(string) bool { return true }

func TestBuild(t *testing.T) {
	tree := Build("bio", testManifest(t))

	if tree.Root.Title != "Biology" || tree.Root.Path != "" {
		t.Errorf("root = %q at %q", tree.Root.Title, tree.Root.Path)
	}
	if len(tree.Root.Children) != 2 {
		t.Fatalf("root children = %d", len(tree.Root.Children))
	}

	unit := tree.Root.Children[0]
	if unit.Type != "folder" {
		t.Errorf("unit type = %q", unit.Type)
	}
	// Folder path comes from the sanitized title: the colon is replaced.
	if unit.Path != "Unit 1_ Cells" {
		t.Errorf("unit path = %q", unit.Path)
	}

	quiz := unit.Children[0]
	if quiz.Type != "file" || quiz.ResourceID != "res_quiz1" {
		t.Errorf("quiz node = %+v", quiz)
	}
	// File nodes carry the containing folder's path.
	if quiz.Path != unit.Path {
		t.Errorf("quiz path = %q, want %q", quiz.Path, unit.Path)
	}

	// res_loose is unreferenced and supported: collected, never nested.
	if len(tree.Loose) != 1 || tree.Loose[0].Identifier != "res_loose" {
		t.Fatalf("loose = %+v", tree.Loose)
	}
	tree.Walk(func(n *Node) {
		if n.ResourceID == "res_loose" || n.ResourceID == "res_junk" {
			t.Errorf("resource %s appeared inside the tree", n.ResourceID)
		}
	})

	// res_junk is unreferenced and unsupported: kept out of the tree and out
	// of Loose, but surfaced for the session skip list.
	if len(tree.Unsupported) != 1 || tree.Unsupported[0].Identifier != "res_junk" {
		t.Fatalf("unsupported = %+v", tree.Unsupported)
	}
}

func TestWalkDocumentOrder(t *testing.T) {
	tree := Build("bio", testManifest(t))
	var order []string
	tree.Walk(func(n *Node) { order = append(order, n.ID) })
	want := []string{"root", "unit1", "quiz1_item", "syllabus_item"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestCombinedResolvePath(t *testing.T) {
	// Two cartridges both containing a folder with id "unit1".
	a := Build("course-a", testManifest(t))
	b := Build("course-b", testManifest(t))
	b.Root.Children[0].Title = "Different Unit"

	c := Combine([]*Tree{a, b}, "loose_files")

	got, ok := c.ResolvePath("course-b", "unit1")
	if !ok {
		t.Fatal("ResolvePath failed")
	}
	if got.Title != "Different Unit" {
		t.Errorf("resolved wrong cartridge's node: %q", got.Title)
	}
	if _, ok := c.ResolvePath("course-c", "unit1"); ok {
		t.Error("unknown cartridge should not resolve")
	}
	if _, ok := c.ResolvePath("course-a", "quiz1_item"); ok {
		t.Error("file nodes should not resolve as folders")
	}
}

func TestViewerJSONShape(t *testing.T) {
	tree := Build("bio", testManifest(t))
	tree.Root.Children[0].Children[0].Files = []FileEntry{
		{Name: "Cell Quiz.docx", Path: "Unit 1_ Cells/files/Cell Quiz.docx", Type: "docx", Title: "Cell Quiz"},
	}
	c := Combine([]*Tree{tree}, "loose_files")

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{`"cartridge_name"`, `"hierarchy"`, `"loose_files_path"`, `"children"`, `"files"`, `"title"`, `"path"`, `"type"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("JSON missing key %s", key)
		}
	}
	if strings.Contains(string(data), "ResourceID") || strings.Contains(string(data), "resource_id") {
		t.Error("internal resource id leaked into viewer JSON")
	}
}

func TestSanitizeName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Unit 1: Cells", "Unit 1_ Cells"},
		{`a/b\c`, "a_b_c"},
		{"trailing dots...", "trailing dots"},
		{"  ", "untitled"},
		{"<>|?*", "_____"},
	}
	for _, tc := range cases {
		if got := SanitizeName(tc.in); got != tc.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
