package workers

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"
	"time"

	"github.com/APTrust/evidence-services/constants"
	"github.com/APTrust/evidence-services/custody"
	"github.com/APTrust/evidence-services/digest"
	"github.com/APTrust/evidence-services/forensic"
	"github.com/APTrust/evidence-services/models/common"
	"github.com/APTrust/evidence-services/timeauth"
	"github.com/APTrust/evidence-services/util"
)

// EvidenceWorker reads capture messages from NSQ, generates evidence
// for each finished recording, and stores the resulting record in
// Redis. Depending on Settings, it also builds a forensic export
// package and copies it to the evidence bucket.
type EvidenceWorker struct {
	Base
	Ledger       *custody.Ledger
	Orchestrator *forensic.Orchestrator
}

// NewEvidenceWorker creates a worker around _context. It doesn't
// start any goroutines or connect to NSQ. Call Start for that.
func NewEvidenceWorker(_context *common.Context, settings *Settings) *EvidenceWorker {
	config := _context.Config
	ledger := custody.NewLedger(_context.Logger)
	worker := &EvidenceWorker{
		Base:   newBase(_context, settings),
		Ledger: ledger,
		Orchestrator: forensic.NewOrchestrator(
			digest.NewEngine(),
			timeauth.NewClientFromConfig(config, _context.Logger),
			ledger,
			nil,
			_context.Logger),
	}
	if formats := getFormatIdentifier(_context); formats != nil {
		worker.Orchestrator.Formats = formats
	}

	// Base doesn't know how to process a task. Failing to set
	// this will result in nil pointers and crashes.
	worker.Base.Process = worker.Process
	return worker
}

// NewEvidenceWorkerFromSettings is what apps/evidence_worker calls.
func NewEvidenceWorkerFromSettings(bufSize, numWorkers, maxAttempts int, requeueTimeout time.Duration) *EvidenceWorker {
	settings := &Settings{
		ChannelBufferSize: bufSize,
		ExportPackages:    true,
		MaxAttempts:       maxAttempts,
		NSQChannel:        constants.TopicEvidence + "_worker_chan",
		NSQTopic:          constants.TopicEvidence,
		NumberOfWorkers:   numWorkers,
		RequeueTimeout:    requeueTimeout,
		UploadPackages:    true,
		UploadPrefix:      "packages",
	}
	return NewEvidenceWorker(common.NewContext(), settings)
}

func getFormatIdentifier(_context *common.Context) *util.FormatIdentifier {
	signaturePath := _context.Config.SiegfriedSignature
	if signaturePath == "" {
		return nil
	}
	identifier, err := util.NewFormatIdentifier(signaturePath)
	if err != nil {
		_context.Logger.Warningf("Format identification disabled: %v", err)
		return nil
	}
	return identifier
}

// Start spins up the processing goroutines and registers the worker
// as an NSQ consumer.
func (w *EvidenceWorker) Start() error {
	w.Context.Logger.Info("Evidence worker started with the following settings:")
	w.Context.Logger.Info(w.Settings.ToJSON())
	w.Context.Logger.Info("Config settings (omitting sensitive credentials):")
	w.Context.Logger.Info(w.Context.Config.ToJSON())
	signal.Notify(w.KillChannel, syscall.SIGINT, syscall.SIGTERM)
	w.StartProcessing()
	if err := w.RegisterAsNsqConsumer(w); err != nil {
		return fmt.Errorf("Cannot register NSQ consumer: %v", err)
	}
	return nil
}

// StartProcessing spins up the goroutines that work the channels.
func (w *EvidenceWorker) StartProcessing() {
	for i := 0; i < w.Settings.NumberOfWorkers; i++ {
		w.Context.Logger.Infof("Starting worker #%d", i+1)
		go w.ProcessItem()
	}
	go w.ProcessErrorChannel()
	go w.ProcessFatalErrorChannel()
	go w.ProcessSuccessChannel()
}

// Process generates evidence for one capture. The custody log is
// reloaded from the sidecar first, so the events the capture pipeline
// wrote, and those from any earlier attempt, stay in the chain.
func (w *EvidenceWorker) Process(task *Task) {
	capture := task.Capture
	id := capture.ArtifactID
	if err := w.Ledger.Track(id, capture.Path); err != nil {
		task.Err, task.IsFatal = err, true
		return
	}
	if err := w.Ledger.Load(id); err != nil {
		task.Err, task.IsFatal = err, true
		return
	}
	outcome, err := w.Orchestrator.Run(w.ctx, &forensic.Capture{
		ArtifactID: id,
		Device:     capture.Device,
		Duration:   capture.Duration(),
		Metadata:   capture.Metadata,
		Path:       capture.Path,
		StartedAt:  capture.StartedAt,
	})
	task.Outcome = outcome
	if err != nil {
		task.Err, task.IsFatal = err, isFatal(err)
		return
	}
	if w.Settings.ExportPackages {
		w.exportPackage(task)
	}
	if task.PackageDir != "" && w.Settings.UploadPackages && w.Context.Uploader != nil {
		w.uploadPackage(task)
	}
	if err = w.Ledger.Flush(id); err != nil {
		w.Context.Logger.Warningf("Custody sidecar for %s is behind: %v", id, err)
	}
	if err = w.saveRecord(task); err != nil {
		w.Context.Logger.Errorf("Evidence for %s was generated, but the record was not saved: %v", id, err)
	}
}

func (w *EvidenceWorker) exportPackage(task *Task) {
	record := task.Outcome.Record
	packageDir, err := forensic.ExportPackage(record, w.Ledger, w.Context.Config.ExportDir)
	if err != nil {
		w.Context.Logger.Errorf("Cannot export package for %s: %v", record.ArtifactID, err)
		return
	}
	task.PackageDir = packageDir
	w.Context.Logger.Infof("Exported package for %s to %s", record.ArtifactID, packageDir)
}

func (w *EvidenceWorker) uploadPackage(task *Task) {
	id := task.ArtifactID()
	uploader := w.Context.Uploader
	uploaded, err := uploader.UploadPackage(w.ctx, task.PackageDir, w.Settings.UploadPrefix)
	task.Uploaded = len(uploaded)
	if err != nil {
		w.Context.Logger.Errorf("Uploaded %d files of package %s before error: %v", len(uploaded), task.PackageDir, err)
		return
	}
	destination := path.Join(uploader.Bucket, w.Settings.UploadPrefix, filepath.Base(task.PackageDir))
	err = w.Ledger.Append(id, constants.ActionPackageUploaded,
		fmt.Sprintf("Forensic package uploaded to %s (%d files)", destination, len(uploaded)))
	if err != nil {
		w.Context.Logger.Warningf("Cannot record upload of %s: %v", id, err)
	}
}

// saveRecord saves the record to Redis exactly as the orchestrator
// assembled it. Its custody log ends at MANIFEST_CREATED. Later events
// such as PACKAGE_EXPORTED are only in the custody sidecar. Will try
// three times, in case Redis is busy.
func (w *EvidenceWorker) saveRecord(task *Task) error {
	record := task.Outcome.Record
	var err error
	for i := 0; i < 3; i++ {
		err = w.Context.RedisClient.EvidenceRecordSave(record)
		if err == nil {
			w.Context.Logger.Infof("Saved evidence record %s to Redis", record.ArtifactID)
			return nil
		}
		time.Sleep(time.Duration(250) * time.Millisecond)
	}
	return err
}

func (w *EvidenceWorker) ProcessSuccessChannel() {
	for task := range w.SuccessChannel {
		record := task.Outcome.Record
		w.Context.Logger.Infof("Artifact %s is in success channel. SHA-256 %s, NTP time %s from %s",
			record.ArtifactID,
			record.Digests.Sha256,
			record.Timestamp.NTPTimestamp.Format(time.RFC3339),
			record.Timestamp.NTPServer)
		task.NSQFinish()
		w.FinishItem(task)
	}
}

func (w *EvidenceWorker) ProcessErrorChannel() {
	for task := range w.ErrorChannel {
		w.Context.Logger.Warningf("Artifact %s is in error channel: %v", task.ArtifactID(), task.Err)
		if int(task.NSQMessage.Attempts) >= w.Settings.MaxAttempts {
			w.Context.Logger.Errorf("Giving up on artifact %s after %d attempts", task.ArtifactID(), task.NSQMessage.Attempts)
			task.NSQFinish()
		} else {
			task.NSQRequeue(w.Settings.RequeueTimeout)
		}
		w.FinishItem(task)
	}
}

func (w *EvidenceWorker) ProcessFatalErrorChannel() {
	for task := range w.FatalErrorChannel {
		w.Context.Logger.Errorf("Artifact %s is in fatal error channel: %v", task.ArtifactID(), task.Err)
		task.NSQFinish()
		w.FinishItem(task)
	}
}

// FinishItem writes out the custody log, stops tracking the artifact,
// and removes it from the ItemsInProcess list.
func (w *EvidenceWorker) FinishItem(task *Task) {
	id := task.ArtifactID()
	if err := w.Ledger.Flush(id); err != nil {
		w.Context.Logger.Warningf("Custody sidecar for %s may be incomplete: %v", id, err)
	}
	if err := w.Ledger.Forget(id); err != nil {
		w.Context.Logger.Debugf("Ledger was not tracking %s: %v", id, err)
	}
	w.RemoveFromInProcessList(id)
}

// isFatal returns false for failures a later attempt might not hit:
// no verified time, a timeout, or a cancelled run.
func isFatal(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch common.KindOf(err) {
	case common.ErrTimeUnavailable, common.ErrTimeout:
		return false
	}
	return true
}
