package custody

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/APTrust/evidence-services/constants"
	"github.com/APTrust/evidence-services/models/evidence"
	"github.com/APTrust/evidence-services/util"
)

// IntegrityReport is the result of a structural audit of a custody log.
type IntegrityReport struct {
	EventCount int      `json:"event_count"`
	IsValid    bool     `json:"is_valid"`
	Issues     []string `json:"issues"`
}

// Summary returns a one-line verdict, followed by one line per issue
// when there are any.
func (r IntegrityReport) Summary() string {
	if r.IsValid {
		return fmt.Sprintf("Chain of custody verified (%d events)", r.EventCount)
	}
	return "Chain of custody issues found:\n" + strings.Join(r.Issues, "\n")
}

// Audit checks that events are in chronological order, that every
// required action is present, and that no two adjacent events are
// more than an hour apart. It reports every problem it finds.
func Audit(events []evidence.CustodyEvent) IntegrityReport {
	if len(events) == 0 {
		return IntegrityReport{
			EventCount: 0,
			IsValid:    false,
			Issues:     []string{"No custody events found"},
		}
	}
	issues := make([]string, 0)
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp.Before(events[i-1].Timestamp) {
			issues = append(issues, fmt.Sprintf("Events not in chronological order at index %d", i))
		}
	}

	actions := make([]string, len(events))
	for i, event := range events {
		actions[i] = event.Action
	}
	for _, required := range constants.RequiredCustodyActions {
		if !util.StringListContains(actions, required) {
			issues = append(issues, fmt.Sprintf("Missing %s event", required))
		}
	}

	maxGap := time.Duration(constants.SuspiciousGapSeconds) * time.Second
	for i := 1; i < len(events); i++ {
		gap := events[i].Timestamp.Sub(events[i-1].Timestamp)
		if gap > maxGap {
			minutes := int(math.Round(gap.Minutes()))
			issues = append(issues, fmt.Sprintf(
				"Suspicious time gap of %d minutes between events %d and %d", minutes, i-1, i))
		}
	}

	return IntegrityReport{
		EventCount: len(events),
		IsValid:    len(issues) == 0,
		Issues:     issues,
	}
}
