package workers

import (
	"context"
	"os"
	"syscall"

	"github.com/APTrust/evidence-services/models/common"
	"github.com/APTrust/evidence-services/models/evidence"
	"github.com/APTrust/evidence-services/util"
	"github.com/nsqio/go-nsq"
)

// SigTermState contains info about whether the current worker
// received SIGTERM (or SIGINT), and if so, what action it took
// in response to the signal.
type SigTermState struct {
	// Received indicates whether this worker received SIGTERM
	// or SIGINT.
	Received bool
	// Completed indicates whether this worker completed all of
	// its SIGTERM cleanup tasks.
	Completed bool
	// ItemsInProcess is the number of captures this worker was
	// working on when SIGTERM was received.
	ItemsInProcess int
}

// Base contains the fundamental structures common to all workers.
type Base struct {

	// Context contains info about the context in which the worker is
	// operating, including connections to NSQ, Redis, and S3.
	Context *common.Context

	// ItemsInProcess keeps track of artifact ids that the worker is
	// currently processing. We need to do this because NSQ does not
	// dedupe messages, so the worker must.
	ItemsInProcess *util.RingList

	// ProcessChannel is where the work actually happens.
	ProcessChannel chan *Task

	// SuccessChannel processes items that have gone through the
	// ProcessChannel with no errors.
	SuccessChannel chan *Task

	// ErrorChannel processes items that have gone through the
	// ProcessChannel with a non-fatal error. These items
	// typically should be retried.
	ErrorChannel chan *Task

	// FatalErrorChannel processes items that have gone through the
	// ProcessChannel with a fatal error. These items should not
	// be retried.
	FatalErrorChannel chan *Task

	// KillChannel handles SIGTERM and SIGINT.
	KillChannel chan os.Signal

	// Settings contains information on what to do in post-processing
	// in the SuccessChannel, ErrorChannel, and FatalErrorChannel.
	Settings *Settings

	// Process does the worker's actual work on a task, setting
	// task.Err and task.IsFatal on failure. This is not implemented
	// in Base itself. It MUST be set by structs that derive from Base.
	Process func(*Task)

	// NSQConsumer implements HandleMessage to receive messages from NSQ.
	NSQConsumer *nsq.Consumer

	// ctx is cancelled on SIGTERM so in-flight captures stop at
	// their next step boundary.
	ctx    context.Context
	cancel context.CancelFunc

	sigTermState SigTermState
}

func newBase(_context *common.Context, settings *Settings) Base {
	ctx, cancel := context.WithCancel(context.Background())
	return Base{
		Context:           _context,
		Settings:          settings,
		ItemsInProcess:    util.NewRingList(settings.ChannelBufferSize),
		ProcessChannel:    make(chan *Task, settings.ChannelBufferSize),
		SuccessChannel:    make(chan *Task, settings.ChannelBufferSize),
		ErrorChannel:      make(chan *Task, settings.ChannelBufferSize),
		FatalErrorChannel: make(chan *Task, settings.ChannelBufferSize),
		KillChannel:       make(chan os.Signal, 1),
		ctx:               ctx,
		cancel:            cancel,
	}
}

// RegisterAsNsqConsumer registers this worker as an NSQ consumer on
// Settings.NSQTopic and Settings.NSQChannel. Note that as soon as you
// call this, your worker will start handling messages if any are
// available.
func (b *Base) RegisterAsNsqConsumer(handler nsq.Handler) error {
	config := nsq.NewConfig()
	config.Set("heartbeat_interval", "10s")
	config.Set("max_in_flight", b.Settings.ChannelBufferSize)
	consumer, err := nsq.NewConsumer(b.Settings.NSQTopic, b.Settings.NSQChannel, config)
	if err != nil {
		return err
	}
	b.NSQConsumer = consumer
	b.NSQConsumer.AddHandler(handler)
	if err = b.NSQConsumer.ConnectToNSQLookupd(b.Context.Config.NsqLookupd); err != nil {
		return err
	}
	b.Context.Logger.Info("Registered as NSQ consumer")
	return nil
}

// HandleMessage decodes the capture message and queues it for
// processing. Messages that can't be decoded are logged and dropped,
// since retrying them won't help.
func (b *Base) HandleMessage(message *nsq.Message) error {
	capture, err := evidence.CaptureMessageFromJSON(message.Body)
	if err != nil {
		b.Context.Logger.Errorf("Dropping NSQ message %s: %v. Body: %s", string(message.ID[:]), err, string(message.Body))
		return nil
	}
	if b.ImAlreadyProcessingThis(capture.ArtifactID) {
		return nil
	}
	task := &Task{
		Capture:    capture,
		NSQMessage: message,
	}

	// Disables NSQ autoresponse, and pings NSQ every few minutes to
	// say we're still working on the item.
	task.NSQStart()
	b.AddToInProcessList(capture.ArtifactID)
	b.Context.Logger.Infof("Queued artifact %s (%s), attempt %d", capture.ArtifactID, capture.Path, message.Attempts)
	b.ProcessChannel <- task

	// Return nil (no error) so NSQ knows we're working on this.
	return nil
}

// ProcessItem runs Process on each task and then routes the
// task to the SuccessChannel, the ErrorChannel, or the
// FatalErrorChannel, depending on the outcome.
func (b *Base) ProcessItem() {
	for {
		select {
		case signal := <-b.KillChannel:
			b.doSigTermCleanup(signal)
		case task := <-b.ProcessChannel:
			b.processItem(task)
		}
	}
}

func (b *Base) processItem(task *Task) {
	b.Context.Logger.Infof("Artifact %s is in ProcessChannel", task.ArtifactID())
	b.Process(task)
	if task.Err == nil {
		b.SuccessChannel <- task
	} else if task.IsFatal {
		b.FatalErrorChannel <- task
	} else {
		b.ErrorChannel <- task
	}
}

// ImAlreadyProcessingThis returns true and logs a message if this
// artifact is already being processed by this worker. This happens
// when NSQ thinks a long hash has timed out and redelivers it.
func (b *Base) ImAlreadyProcessingThis(artifactID string) bool {
	if b.ItemsInProcess.Contains(artifactID) {
		hostname, _ := os.Hostname()
		b.Context.Logger.Infof("Skipping artifact %s because this worker is already working on it host %s, pid %d", artifactID, hostname, os.Getpid())
		return true
	}
	return false
}

// AddToInProcessList adds artifactID to this worker's ItemsInProcess list.
func (b *Base) AddToInProcessList(artifactID string) {
	b.ItemsInProcess.Add(artifactID)
}

// RemoveFromInProcessList removes artifactID from this worker's
// ItemsInProcess list.
func (b *Base) RemoveFromInProcessList(artifactID string) {
	b.ItemsInProcess.Del(artifactID)
}

// doSigTermCleanup handles SIGTERM and SIGINT. We stop the NSQ
// consumer so nsqd requeues our in-flight messages for other workers
// right away, and we cancel the worker context so running captures
// stop at their next step. Their custody sidecars already hold every
// event recorded so far, so the next worker picks up the full log.
func (b *Base) doSigTermCleanup(signal os.Signal) {
	if signal != syscall.SIGINT && signal != syscall.SIGTERM {
		return
	}
	b.sigTermState.Received = true
	b.Context.Logger.Warning("Worker received SIGTERM. Starting graceful shutdown.")

	if b.NSQConsumer != nil {
		b.Context.Logger.Warning("SIGTERM step 1: Disconnect from NSQ")
		b.NSQConsumer.ChangeMaxInFlight(0)
		b.NSQConsumer.Stop()
		b.Context.Logger.Warning("Worker disconnected from nsqd due to SIGTERM.")
	} else {
		b.Context.Logger.Warning("SIGTERM step 1: No need to stop NSQ consumer because there isn't one.")
	}

	b.Context.Logger.Warning("SIGTERM step 2: Cancel captures in process")
	b.sigTermState.ItemsInProcess = len(b.ItemsInProcess.Items())
	b.cancel()
	b.sigTermState.Completed = true
	b.Context.Logger.Warningf("SIGTERM: Cancelled %d captures. Graceful shutdown steps complete.", b.sigTermState.ItemsInProcess)
}

// GetSigTermState returns this worker's SigTermState object, which
// contains info about whether this worker received SIGTERM or SIGINT
// and what action it took.
func (b *Base) GetSigTermState() SigTermState {
	return b.sigTermState
}
