package attendance

import (
	"time"

	"github.com/trezcool/ulearn/core/history"
)

var nowFunc = time.Now // mockable

// Report is the outcome of one check-in cycle. Every list holds course names, once each.
type Report struct {
	RunID     string    `json:"run_id"`
	Mode      Mode      `json:"-"`
	StartedAt time.Time `json:"started_at"`
	Courses   int       `json:"courses"`
	Signed    []string  `json:"signed"`
	NeedsCode []string  `json:"needs_code"`
	Failed    []string  `json:"failed"`
}

func newReport(mode Mode) Report {
	return Report{
		RunID:     history.NewRunID(),
		Mode:      mode,
		StartedAt: nowFunc().UTC(),
		Signed:    []string{},
		NeedsCode: []string{},
		Failed:    []string{},
	}
}

// Empty reports whether the cycle found nothing to sign.
func (r Report) Empty() bool {
	return len(r.Signed) == 0 && len(r.NeedsCode) == 0 && len(r.Failed) == 0
}
