package workers

import (
	"encoding/json"
	"time"
)

// Settings contains settings for an evidence worker.
type Settings struct {
	// ChannelBufferSize is the size of the buffer for the
	// ProcessChannel, SuccessChannel, ErrorChannel,
	// and FatalErrorChannel. It's also the NSQ max_in_flight.
	ChannelBufferSize int

	// ExportPackages says whether the worker should build a forensic
	// export package in Config.ExportDir after generating evidence.
	ExportPackages bool

	// MaxAttempts is the maximum number of times the worker should
	// attempt a capture before giving up. Note that this applies
	// only to attempts that fail from non-fatal (transient) errors,
	// like every NTP server being unreachable. Workers automatically
	// stop trying after fatal errors.
	MaxAttempts int

	// NSQChannel is the NSQ channel the worker should subscribe
	// to to receive messages.
	NSQChannel string

	// NSQTopic is the NSQ topic the worker should subscribe
	// to to receive messages.
	NSQTopic string

	// NumberOfWorkers is the number of go routines that generate
	// evidence. Each one spends most of its time hashing, so this
	// shouldn't be much more than the number of cores.
	NumberOfWorkers int

	// RequeueTimeout describes how long of a timeout to set
	// on the NSQ requeue after an item fails with non-fatal
	// errors.
	RequeueTimeout time.Duration

	// UploadPackages says whether the worker should copy export
	// packages to the evidence bucket. It has no effect unless
	// ExportPackages is also true and S3 is configured.
	UploadPackages bool

	// UploadPrefix is prepended to the keys of uploaded package files.
	UploadPrefix string
}

func (settings *Settings) ToJSON() string {
	data, _ := json.Marshal(settings)
	return string(data)
}
