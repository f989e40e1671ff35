package logger

import (
	"github.com/op/go-logging"
)

// UploadProgressLogger logs the progress of evidence package uploads.
// Minio calls Read on this with each chunk it sends, so it fits in
// minio.PutObjectOptions.Progress.
type UploadProgressLogger struct {
	logger         *logging.Logger
	chunkNumber    int
	totalBytes     int64
	fileSize       int64
	lastPctPrinted float64
	prefix         string
}

const _100MB = int64(104857600)
const _1GB = int64(1073741824)
const _10GB = int64(10737418240)

// NewUploadProgressLogger creates a new UploadProgressLogger.
func NewUploadProgressLogger(logger *logging.Logger, prefix string, fileSize int64) *UploadProgressLogger {
	return &UploadProgressLogger{
		logger:      logger,
		prefix:      prefix,
		chunkNumber: 1,
		fileSize:    fileSize,
	}
}

// Read fulfills the io.Reader interface required by Minio's progress
// hook. It never returns an error.
func (e *UploadProgressLogger) Read(p []byte) (n int, err error) {
	e.totalBytes += int64(len(p))
	pctComplete := 100.0
	if e.fileSize > 0 {
		pctComplete = float64(e.totalBytes) / float64(e.fileSize) * 100
	}
	if e.shouldPrint(pctComplete) {
		e.logger.Infof("%s : chunk %d, %d of %d bytes, %3.2f%% complete",
			e.prefix, e.chunkNumber, e.totalBytes, e.fileSize, pctComplete)
		e.lastPctPrinted = pctComplete
	}
	e.chunkNumber++
	return len(p), nil
}

// BytesSent returns the number of bytes minio has reported so far.
func (e *UploadProgressLogger) BytesSent() int64 {
	return e.totalBytes
}

// Screen recordings run from a few megabytes to tens of gigabytes.
// Small files upload quickly and don't need progress messages. Large
// ones get a message each time they advance by a meaningful amount.
func (e *UploadProgressLogger) shouldPrint(pctComplete float64) bool {
	diff := pctComplete - e.lastPctPrinted
	if e.fileSize > _10GB {
		return diff >= 1.0
	}
	if e.fileSize > _1GB {
		return diff >= 5.0
	}
	if e.fileSize > _100MB {
		return diff >= 20.0
	}
	return false
}
