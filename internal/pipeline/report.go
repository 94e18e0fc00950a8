package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/JakeFAU/research-scraper/internal/scraper"
)

// ReportFileName is the report written into the output root.
const ReportFileName = "scrape_results.json"

// Report is the outcome of one batch.
type Report struct {
	RunID      string               `json:"run_id"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	Summary    Summary              `json:"summary"`
	Results    []scraper.TaskResult `json:"results"`
}

// Summary aggregates the results.
type Summary struct {
	Total    int                    `json:"total"`
	ByStatus map[scraper.Status]int `json:"by_status"`
	// DuplicateGroups maps a fingerprint shared by several tasks of this
	// run to their ids, in result order.
	DuplicateGroups map[string][]string `json:"duplicate_groups,omitempty"`
}

// Summarize counts statuses and groups tasks that share a fingerprint.
func Summarize(results []scraper.TaskResult) Summary {
	s := Summary{Total: len(results), ByStatus: make(map[scraper.Status]int)}
	byFingerprint := make(map[string][]string)
	for _, res := range results {
		s.ByStatus[res.Status]++
		if res.Fingerprint != "" {
			byFingerprint[res.Fingerprint] = append(byFingerprint[res.Fingerprint], res.ID)
		}
	}
	for fp, ids := range byFingerprint {
		if len(ids) < 2 {
			continue
		}
		if s.DuplicateGroups == nil {
			s.DuplicateGroups = make(map[string][]string)
		}
		s.DuplicateGroups[fp] = ids
	}
	return s
}

// Statuses returns the statuses present, sorted by name.
func (s Summary) Statuses() []scraper.Status {
	out := make([]scraper.Status, 0, len(s.ByStatus))
	for status := range s.ByStatus {
		out = append(out, status)
	}
	slices.Sort(out)
	return out
}

// Succeeded counts results with a stored clean artifact.
func (s Summary) Succeeded() int {
	n := 0
	for status, count := range s.ByStatus {
		if status.Stored() {
			n += count
		}
	}
	return n
}

// WriteReport writes report as indented JSON to path through a temp file in
// the same directory, so readers never see a partial report.
func WriteReport(path string, report Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".report-*")
	if err != nil {
		return fmt.Errorf("create temp report: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close report: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename report: %w", err)
	}
	return nil
}
