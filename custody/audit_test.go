package custody_test

import (
	"testing"
	"time"

	"github.com/APTrust/evidence-services/constants"
	"github.com/APTrust/evidence-services/custody"
	"github.com/APTrust/evidence-services/models/evidence"
	"github.com/APTrust/evidence-services/util/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(offset time.Duration, action string) evidence.CustodyEvent {
	return evidence.NewCustodyEvent(testutil.CaptureStart.Add(offset), action, "details", testutil.Actor)
}

func validEvents() []evidence.CustodyEvent {
	return []evidence.CustodyEvent{
		event(0, constants.ActionRecordingStart),
		event(10*time.Minute, constants.ActionRecordingComplete),
		event(11*time.Minute, constants.ActionHashGenerationStart),
		event(12*time.Minute, constants.ActionHashGenerationComplete),
	}
}

func TestAuditValid(t *testing.T) {
	report := custody.Audit(validEvents())
	assert.True(t, report.IsValid)
	assert.Empty(t, report.Issues)
	assert.Equal(t, 4, report.EventCount)
	assert.Equal(t, "Chain of custody verified (4 events)", report.Summary())
}

func TestAuditEmpty(t *testing.T) {
	report := custody.Audit(nil)
	assert.False(t, report.IsValid)
	assert.Equal(t, []string{"No custody events found"}, report.Issues)
	assert.Equal(t, 0, report.EventCount)
}

func TestAuditMissingRequired(t *testing.T) {
	events := []evidence.CustodyEvent{
		event(0, constants.ActionRecordingStart),
		event(time.Minute, constants.ActionHashGenerationComplete),
	}
	report := custody.Audit(events)
	assert.False(t, report.IsValid)
	assert.Equal(t, []string{"Missing RECORDING_COMPLETE event"}, report.Issues)
	assert.Equal(t, "Chain of custody issues found:\nMissing RECORDING_COMPLETE event", report.Summary())
}

func TestAuditRequiredInAnyOrder(t *testing.T) {
	events := []evidence.CustodyEvent{
		event(0, constants.ActionHashGenerationComplete),
		event(time.Minute, constants.ActionRecordingComplete),
		event(2*time.Minute, constants.ActionRecordingStart),
	}
	report := custody.Audit(events)
	assert.True(t, report.IsValid)
}

func TestAuditOutOfOrder(t *testing.T) {
	events := validEvents()
	events[1].Timestamp = testutil.CaptureStart.Add(-time.Minute)
	events[3].Timestamp = testutil.CaptureStart.Add(5 * time.Minute)
	report := custody.Audit(events)
	assert.False(t, report.IsValid)
	assert.Equal(t, []string{
		"Events not in chronological order at index 1",
		"Events not in chronological order at index 3",
	}, report.Issues)
}

func TestAuditSuspiciousGaps(t *testing.T) {
	events := []evidence.CustodyEvent{
		event(0, constants.ActionRecordingStart),
		event(time.Hour, constants.ActionRecordingComplete),
		event(2*time.Hour+30*time.Second, constants.ActionHashGenerationStart),
		event(4*time.Hour+30*time.Minute+31*time.Second, constants.ActionHashGenerationComplete),
	}
	report := custody.Audit(events)
	require.False(t, report.IsValid)

	// Exactly one hour is fine. 60.5 minutes rounds to 61, 150.0167
	// minutes rounds to 150.
	assert.Equal(t, []string{
		"Suspicious time gap of 61 minutes between events 1 and 2",
		"Suspicious time gap of 150 minutes between events 2 and 3",
	}, report.Issues)
}

func TestVerifyIntegrityThroughLedger(t *testing.T) {
	ledger := newLedger(t)
	trackArtifact(t, ledger)
	report := ledger.VerifyIntegrity(testutil.ArtifactID)
	assert.False(t, report.IsValid)

	require.Nil(t, ledger.Append(testutil.ArtifactID, constants.ActionRecordingStart, "start"))
	require.Nil(t, ledger.Append(testutil.ArtifactID, constants.ActionRecordingComplete, "stop"))
	report = ledger.VerifyIntegrity(testutil.ArtifactID)
	assert.Equal(t, []string{"Missing HASH_GENERATION_COMPLETE event"}, report.Issues)

	require.Nil(t, ledger.Append(testutil.ArtifactID, constants.ActionHashGenerationComplete, "SHA-256: abc"))
	report = ledger.VerifyIntegrity(testutil.ArtifactID)
	assert.True(t, report.IsValid)
	assert.Equal(t, 3, report.EventCount)
}
