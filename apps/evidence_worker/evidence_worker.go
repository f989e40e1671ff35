package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/APTrust/evidence-services/util"
	"github.com/APTrust/evidence-services/util/cli"
	"github.com/APTrust/evidence-services/workers"
)

func main() {
	cli.Init()
	opts := cli.ParseOpts()
	if opts.PrintHelp {
		printHelp()
		cli.PrintDefaults()
		os.Exit(0)
	}

	// If anything goes wrong, this panics.
	worker := workers.NewEvidenceWorkerFromSettings(
		opts.ChannelBufferSize,
		opts.NumWorkers,
		opts.MaxAttempts,
		opts.RequeueTimeout,
	)

	pidFile := util.NewPidFile(filepath.Join(worker.Context.Config.LogDir, "evidence_worker.pid"))
	if err := pidFile.Acquire(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer pidFile.Release()

	if err := worker.Start(); err != nil {
		worker.Context.Logger.Error(err.Error())
		fmt.Fprintln(os.Stderr, err)
		pidFile.Release()
		os.Exit(1)
	}

	// This channel blocks until we get an interrupt,
	// so our program does not exit without Control-C
	// or other kill signal.
	<-worker.NSQConsumer.StopChan
	worker.Ledger.Close()
}

func printHelp() {
	message := `
evidence_worker runs as a service to generate forensic evidence for
finished screen recordings. It reads capture messages from the NSQ
evidence_topic, hashes each recording, gets verified time from NTP and a
timestamp token from a TSA, writes the forensic manifest, and appends
every step to the recording's chain of custody log. Evidence records go
to Redis. Export packages are built in EXPORT_DIR and, if S3_HOST is
set, copied to EVIDENCE_BUCKET.

Only one evidence_worker may run per host. It keeps a pid file in LOG_DIR.
`
	fmt.Println(message)
	fmt.Println(cli.EnvMessage)
}
