package jobs

import (
	"time"

	"github.com/bryanwahyu/trapscan/internal/domain/analysis"
	"github.com/bryanwahyu/trapscan/internal/domain/apperr"
)

type Status string

const (
	StatusNone      Status = "none"
	StatusAnalyzing Status = "analyzing"
	StatusComplete  Status = "complete"
	StatusError     Status = "error"
)

// Job tracks one background analysis of a URL.
type Job struct {
	ID          string           `json:"id"`
	URL         string           `json:"url"`
	Status      Status           `json:"status"`
	StartTime   time.Time        `json:"startTime"`
	Result      *analysis.Result `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
	ErrorKind   apperr.Kind      `json:"errorKind,omitempty"`
	CompletedAt *time.Time       `json:"completedAt,omitempty"`
}

func (j Job) Done() bool {
	return j.Status == StatusComplete || j.Status == StatusError
}

// View is what a polling client sees.
type View struct {
	Status    Status           `json:"status"`
	JobID     string           `json:"jobId,omitempty"`
	StartTime *time.Time       `json:"startTime,omitempty"`
	Result    *analysis.Result `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
	ErrorKind apperr.Kind      `json:"errorKind,omitempty"`
}

func (j Job) View() View {
	start := j.StartTime
	return View{
		Status:    j.Status,
		JobID:     j.ID,
		StartTime: &start,
		Result:    j.Result,
		Error:     j.Error,
		ErrorKind: j.ErrorKind,
	}
}
