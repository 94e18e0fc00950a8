package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JakeFAU/research-scraper/internal/scraper"
)

// ErrInvalidBatch is returned when the task list cannot be processed at all.
var ErrInvalidBatch = errors.New("invalid batch")

// LoadTasks decodes a JSON array of tasks.
func LoadTasks(r io.Reader) ([]scraper.FetchTask, error) {
	var tasks []scraper.FetchTask
	dec := json.NewDecoder(r)
	if err := dec.Decode(&tasks); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}
	return tasks, nil
}

// ValidateTasks rejects empty and repeated ids. URLs are not checked here:
// a malformed URL is a per-task failure, not a batch error.
func ValidateTasks(tasks []scraper.FetchTask) error {
	seen := make(map[string]int, len(tasks))
	var errs []error
	for i, task := range tasks {
		id := strings.TrimSpace(task.ID)
		if id == "" {
			errs = append(errs, fmt.Errorf("task %d: id is required", i))
			continue
		}
		if first, dup := seen[id]; dup {
			errs = append(errs, fmt.Errorf("task %d: id %q already used by task %d", i, id, first))
			continue
		}
		seen[id] = i
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidBatch, errors.Join(errs...))
	}
	return nil
}
