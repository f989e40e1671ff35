package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/APTrust/evidence-services/models/common"
	"github.com/APTrust/evidence-services/util/cli"
	"github.com/APTrust/evidence-services/workers"
)

func main() {
	help := false
	runOnce := false
	flag.BoolVar(&help, "help", false, "Print help message")
	flag.BoolVar(&runOnce, "run-once", false, "Run once and exit (cron mode instead of server mode)")
	flag.Parse()

	if help {
		printHelp()
		os.Exit(0)
	}

	queue := workers.NewEvidenceQueue(common.NewContext())

	if runOnce {
		queue.RunOnce()
	} else {
		queue.RunAsService()
	}
}

func printHelp() {
	message := `
evidence_queue queues finished screen recordings for evidence generation

It scans EVIDENCE_DIR for chain of custody logs that record a completed
capture but no forensic manifest, and pushes a capture message for each
one into the NSQ evidence_topic.

When running as a service (i.e. without --run-once), this relies on the
config setting QUEUE_INTERVAL to determine how long to wait after the
end of one scan before beginning the next.

You can also run evidence_queue as a one-off job with the --run-once
flag. It will perform one scan and then exit.
`
	fmt.Println(message)
	fmt.Println(cli.EnvMessage)
}
