package batch

import (
	"time"

	"github.com/KenCoder/school-converter/internal/render"
)

// State of one conversion session.
type State string

const (
	StateIdle      State = "idle"
	StateScanning  State = "scanning"
	StateRendering State = "rendering"
	StateDone      State = "done"
	StateAborted   State = "aborted"
)

// CartridgeStatus records the scan outcome for one input cartridge. A failed
// cartridge never stops the batch; it is reported here and skipped.
type CartridgeStatus struct {
	Name        string `json:"name"`
	Status      string `json:"status"` // "ok" | "failed"
	Error       string `json:"error,omitempty"`
	Assessments int    `json:"assessments"`
}

// SkippedResource records one resource the session did not convert.
type SkippedResource struct {
	Cartridge  string `json:"cartridge"`
	ResourceID string `json:"resource_id"`
	Type       string `json:"type,omitempty"`
	Reason     string `json:"reason"`
}

// Report is the full record of one session, persisted as JSON.
type Report struct {
	SessionID      string            `json:"session_id"`
	Format         render.Format     `json:"format"`
	OutputDir      string            `json:"output_dir"`
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     time.Time         `json:"finished_at"`
	State          State             `json:"state"`
	Cartridges     []CartridgeStatus `json:"cartridges"`
	Results        []render.Result   `json:"results"`
	Skipped        []SkippedResource `json:"skipped,omitempty"`
	LooseFilesPath string            `json:"loose_files_path,omitempty"`
}

// Counts tallies results for log and CLI summaries.
func (r *Report) Counts() (ok, failedCount int) {
	for _, res := range r.Results {
		if res.Status == render.StatusOK {
			ok++
		} else {
			failedCount++
		}
	}
	return ok, failedCount
}
