package workers

import (
	"time"

	"github.com/APTrust/evidence-services/forensic"
	"github.com/APTrust/evidence-services/models/evidence"
	"github.com/nsqio/go-nsq"
)

// Task encapsulates everything that a worker will need to
// pass from one channel to the next during procesing.
type Task struct {

	// Capture is the decoded NSQ message body.
	Capture *evidence.CaptureMessage

	// Err is the error that stopped evidence generation, if any.
	Err error

	// IsFatal is true if Err should not be retried.
	IsFatal bool

	// NSQMessage is the NSQ message the worker is processing.
	NSQMessage *nsq.Message

	// Outcome lists the evidence steps that ran. It's nil until
	// the orchestrator has been called.
	Outcome *forensic.Outcome

	// PackageDir is the forensic export package, if one was built.
	PackageDir string

	// Uploaded is the number of package files copied to the
	// evidence bucket.
	Uploaded int

	nsqStopChannel chan bool

	// For testing
	nsqStartCalled bool

	// For testing
	tickerStopped bool
}

// NSQStart creates a timer that touches the NSQ message
// every two minutes while the capture is in process. We need this
// because hashing a multi-gigabyte recording cannot pause to touch
// the NSQ message before it times out.
func (item *Task) NSQStart() {
	item.NSQMessage.DisableAutoResponse()
	interval := time.Duration(2) * time.Minute
	ticker := time.NewTicker(interval)
	stopChannel := make(chan bool)
	go func() {
		for {
			select {
			case <-ticker.C:
				item.NSQMessage.Touch()
			case <-stopChannel:
				ticker.Stop()
				return
			}
		}
	}()
	item.nsqStartCalled = true
	item.nsqStopChannel = stopChannel
}

// NSQRequeue requeues the message with the specified duration
// and stops sending touches.
func (item *Task) NSQRequeue(delay time.Duration) {
	item.stopTicker()
	item.NSQMessage.Requeue(delay)
}

// NSQFinish finishes the message and stops sending touches.
func (item *Task) NSQFinish() {
	item.stopTicker()
	item.NSQMessage.Finish()
}

func (item *Task) stopTicker() {
	if item.nsqStopChannel != nil && !item.tickerStopped {
		item.nsqStopChannel <- true
		item.tickerStopped = true
	}
}

// StartCalled returns true if NSQStart() has been called on this object.
// This method exist for testing purposes.
func (item *Task) StartCalled() bool {
	return item.nsqStartCalled
}

// TickerStopped returns true if either NSQFinish() or NSQRequeue()
// has been called. This method exist for testing purposes.
func (item *Task) TickerStopped() bool {
	return item.tickerStopped
}

// ArtifactID returns the id of the capture, or an empty string if
// the message couldn't be decoded.
func (item *Task) ArtifactID() string {
	if item.Capture == nil {
		return ""
	}
	return item.Capture.ArtifactID
}
