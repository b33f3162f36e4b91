package viewer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/KenCoder/school-converter/internal/store"
)

func testServer(t *testing.T) (*Server, string) {
	t.Helper()
	outDir := t.TempDir()

	db, err := store.Open(context.Background(), store.DriverSQLite,
		"file:"+filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sessions := store.NewSessions(db)
	err = sessions.Save(context.Background(), store.Session{
		ID: "s1", CreatedAt: time.Now().UTC(), Format: "docx",
		OutputDir: outDir, State: "done",
		Report: json.RawMessage(`{"session_id":"s1","state":"done"}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	return NewServer(outDir, sessions), outDir
}

func TestHierarchyEndpoint(t *testing.T) {
	srv, outDir := testServer(t)
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	// Missing hierarchy.json: 404.
	resp, err := http.Get(ts.URL + "/api/hierarchy")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}

	payload := `{"id":"root","title":"Course","type":"folder","path":""}`
	if err := os.WriteFile(filepath.Join(outDir, "hierarchy.json"), []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}
	resp, err = http.Get(ts.URL + "/api/hierarchy")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var node struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&node); err != nil {
		t.Fatal(err)
	}
	if node.ID != "root" || node.Title != "Course" {
		t.Errorf("node = %+v", node)
	}
}

func TestSessionEndpoints(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/sessions")
	if err != nil {
		t.Fatal(err)
	}
	var list []struct {
		ID    string `json:"id"`
		State string `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(list) != 1 || list[0].ID != "s1" {
		t.Fatalf("list = %+v", list)
	}

	resp, err = http.Get(ts.URL + "/api/sessions/s1")
	if err != nil {
		t.Fatal(err)
	}
	var sess struct {
		ID     string          `json:"id"`
		Report json.RawMessage `json:"report"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if sess.ID != "s1" || len(sess.Report) == 0 {
		t.Errorf("session = %+v", sess)
	}

	resp, err = http.Get(ts.URL + "/api/sessions/unknown")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestFileServing(t *testing.T) {
	srv, outDir := testServer(t)
	if err := os.MkdirAll(filepath.Join(outDir, "Unit 1", "files"), 0o755); err != nil {
		t.Fatal(err)
	}
	content := []byte("rendered document")
	if err := os.WriteFile(filepath.Join(outDir, "Unit 1", "files", "quiz.docx"), content, 0o644); err != nil {
		t.Fatal(err)
	}

	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/files/Unit%201/files/quiz.docx")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}
