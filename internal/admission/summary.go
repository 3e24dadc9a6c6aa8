package admission

import (
	"fmt"
	"time"
)

// Summary reports what one cycle did.
type Summary struct {
	CycleID   string        `json:"cycle_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Quota     int           `json:"quota"`
	// Selected counts candidates handed to the publisher, at most Quota.
	// Gate skips are not counted.
	Selected  int           `json:"selected"`
	Published int           `json:"published"`
	Drafted   int           `json:"drafted"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	// DailyCapReached is set when the shared counter hit the daily cap
	// during the loop and the remaining candidates were left for tomorrow.
	DailyCapReached bool   `json:"daily_cap_reached"`
	Reason          string `json:"reason"`
	// Err is set when the cycle aborted on an infrastructure failure.
	Err string `json:"error,omitempty"`
}

func (s *Summary) tally(o Outcome) {
	switch o.Kind {
	case Blocked:
		s.Skipped++
	case Attempted:
		switch o.Result {
		case ResultPublished:
			s.Published++
		case ResultDrafted:
			s.Drafted++
		case ResultFailed:
			s.Failed++
		case ResultReverted:
			s.Skipped++
		}
	}
}

func (s *Summary) finish() {
	s.Reason = fmt.Sprintf("published %d, drafted %d, skipped %d, failed %d", s.Published, s.Drafted, s.Skipped, s.Failed)
	if s.DailyCapReached {
		s.Reason += "; daily limit reached"
	}
}
