package workers

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/APTrust/evidence-services/constants"
	"github.com/APTrust/evidence-services/custody"
	"github.com/APTrust/evidence-services/models/common"
	"github.com/APTrust/evidence-services/models/evidence"
	"github.com/APTrust/evidence-services/util"
)

// EvidenceQueue finds finished recordings in the evidence directory
// that have no evidence yet and pushes them into NSQ. It's the safety
// net for captures whose pipeline stopped before it could enqueue.
type EvidenceQueue struct {
	Context *common.Context

	// queued remembers what we've already pushed, so a service
	// scanning every minute doesn't queue the same capture while
	// the worker is still hashing it.
	queued *util.RingList
}

// NewEvidenceQueue creates a new queue worker around _context.
func NewEvidenceQueue(_context *common.Context) *EvidenceQueue {
	return &EvidenceQueue{
		Context: _context,
		queued:  util.NewRingList(1000),
	}
}

// RunOnce scans once and returns the number of captures queued.
func (q *EvidenceQueue) RunOnce() int {
	q.logStartup()
	return q.run()
}

func (q *EvidenceQueue) RunAsService() {
	q.logStartup()
	for {
		q.run()
		time.Sleep(q.Context.Config.QueueInterval)
	}
}

func (q *EvidenceQueue) logStartup() {
	q.Context.Logger.Info("Starting with config settings:")
	q.Context.Logger.Info(q.Context.Config.ToJSON())
	q.Context.Logger.Infof("Scan interval: %s",
		q.Context.Config.QueueInterval.String())
}

// run finds custody sidecars under EvidenceDir whose log says
// recording is complete but has no manifest, and queues them.
func (q *EvidenceQueue) run() int {
	count := 0
	err := filepath.Walk(q.Context.Config.EvidenceDir, func(filePath string, info os.FileInfo, err error) error {
		if err != nil {
			q.Context.Logger.Warningf("Skipping %s: %v", filePath, err)
			return nil
		}
		if info.IsDir() || !strings.HasSuffix(filePath, constants.CustodyLogSuffix) {
			return nil
		}
		msg := q.captureFor(filePath)
		if msg != nil && q.addToNSQ(msg) {
			count++
		}
		return nil
	})
	if err != nil {
		q.Context.Logger.Errorf("Error scanning %s: %v", q.Context.Config.EvidenceDir, err)
	}
	q.Context.Logger.Infof("Queued %d captures", count)
	return count
}

// captureFor returns a capture message for the sidecar at
// sidecarPath, or nil if there's nothing to queue.
func (q *EvidenceQueue) captureFor(sidecarPath string) *evidence.CaptureMessage {
	data, err := os.ReadFile(sidecarPath)
	if err != nil {
		q.Context.Logger.Warningf("Cannot read %s: %v", sidecarPath, err)
		return nil
	}
	artifactID, events, _, err := custody.UnmarshalLog(data)
	if err != nil || artifactID == "" {
		q.Context.Logger.Warningf("Skipping unreadable custody log %s: %v", sidecarPath, err)
		return nil
	}
	if q.queued.Contains(artifactID) {
		return nil
	}
	var started, completed *evidence.CustodyEvent
	for i := range events {
		switch events[i].Action {
		case constants.ActionRecordingStart:
			started = &events[i]
		case constants.ActionRecordingComplete:
			completed = &events[i]
		case constants.ActionManifestCreated:
			return nil
		}
	}
	if started == nil || completed == nil {
		return nil
	}
	artifactPath := findArtifact(sidecarPath)
	if artifactPath == "" {
		q.Context.Logger.Warningf("No artifact next to %s", sidecarPath)
		return nil
	}
	if util.FileExists(util.ManifestPathFor(artifactPath)) {
		return nil
	}
	return &evidence.CaptureMessage{
		ArtifactID:      artifactID,
		Device:          evidence.DeviceInfo{AppVersion: q.Context.Config.AppVersion},
		DurationSeconds: completed.Timestamp.Sub(started.Timestamp).Seconds(),
		Path:            artifactPath,
		StartedAt:       started.Timestamp,
	}
}

// findArtifact returns the file that shares the sidecar's stem and
// isn't itself a sidecar.
func findArtifact(sidecarPath string) string {
	stem := strings.TrimSuffix(sidecarPath, constants.CustodyLogSuffix)
	matches, _ := filepath.Glob(stem + ".*")
	for _, match := range matches {
		if strings.HasSuffix(match, constants.CustodyLogSuffix) || strings.HasSuffix(match, constants.ManifestSuffix) {
			continue
		}
		return match
	}
	return ""
}

func (q *EvidenceQueue) addToNSQ(msg *evidence.CaptureMessage) bool {
	err := q.Context.NSQClient.EnqueueCapture(msg)
	if err != nil {
		q.Context.Logger.Errorf("Error sending artifact %s (%s) to %s: %v",
			msg.ArtifactID, msg.Path, constants.TopicEvidence, err)
		return false
	}
	q.queued.Add(msg.ArtifactID)
	q.Context.Logger.Infof("Added artifact %s (%s) to %s", msg.ArtifactID, msg.Path, constants.TopicEvidence)
	return true
}
