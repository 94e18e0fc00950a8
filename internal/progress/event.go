package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/research-scraper/internal/scraper"
)

// Stage is a step of the per-task state machine.
type Stage string

// Task stages in the order a successful task visits them.
const (
	StagePending       Stage = "pending"
	StageFetching      Stage = "fetching"
	StageFetched       Stage = "fetched"
	StageFetchFailed   Stage = "fetch_failed"
	StageExtracting    Stage = "extracting"
	StageExtracted     Stage = "extracted"
	StageExtractFailed Stage = "extract_failed"
	StageClassifying   Stage = "classifying"
	StageStoring       Stage = "storing"
	StageDone          Stage = "done"
)

// Terminal reports whether no further events follow for the task.
func (s Stage) Terminal() bool {
	return s == StageDone
}

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// HTTP status classes tracked for fetch events.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event is one stage transition of one task.
type Event struct {
	RunID  string
	TaskID string
	Stage  Stage
	// Site is the sanitised host of the task URL.
	Site string
	URL  string
	// Bytes is the raw body size, set on fetched.
	Bytes      int64
	HTTPStatus int
	// Status is the terminal task status, set on done.
	Status scraper.Status
	Dur    time.Duration
	// Note carries low-volume debug context such as error text.
	Note string
	TS   time.Time
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TaskID == "" {
		return errors.New("task id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StagePending, StageFetching, StageFetchFailed, StageExtracting,
		StageExtracted, StageExtractFailed, StageClassifying, StageStoring:
	case StageFetched:
		if e.Site == "" {
			return errors.New("fetched requires site")
		}
	case StageDone:
		if e.Status == "" {
			return errors.New("done requires status")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// ClassifyStatus groups HTTP status codes for fetch events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
