package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/APTrust/evidence-services/custody"
	"github.com/APTrust/evidence-services/forensic"
	"github.com/APTrust/evidence-services/models/common"
	"github.com/APTrust/evidence-services/models/evidence"
	"github.com/APTrust/evidence-services/util/cli"
)

// metadataFlag collects repeated -meta key=value flags.
type metadataFlag map[string]string

func (m metadataFlag) String() string {
	pairs := make([]string, 0, len(m))
	for key, value := range m {
		pairs = append(pairs, key+"="+value)
	}
	return strings.Join(pairs, ",")
}

func (m metadataFlag) Set(value string) error {
	parts := strings.SplitN(value, "=", 2)
	if len(parts) != 2 || parts[0] == "" {
		return fmt.Errorf("metadata must look like key=value, got %q", value)
	}
	m[parts[0]] = parts[1]
	return nil
}

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "start":
		err = start(os.Args[2:])
	case "stop":
		err = stop(os.Args[2:])
	case "help", "-help", "--help":
		printHelp()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %s\n", os.Args[1])
		printHelp()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func start(args []string) error {
	flags := flag.NewFlagSet("start", flag.ExitOnError)
	details := flags.String("details", "", "Description of what is being captured")
	flags.Parse(args)
	if flags.NArg() != 1 {
		return fmt.Errorf("start takes exactly one argument: the path the recording will be written to")
	}
	_context := common.NewContext()
	ledger := custody.NewLedger(_context.Logger)
	defer ledger.Close()
	artifactID, err := forensic.StartCapture(ledger, flags.Arg(0), *details)
	if err != nil {
		return err
	}
	_context.Logger.Infof("Capture %s started for %s", artifactID, flags.Arg(0))
	fmt.Println(artifactID)
	return nil
}

// stop closes the capture session for a recording and queues it for
// evidence generation.
func stop(args []string) error {
	metadata := make(metadataFlag)
	flags := flag.NewFlagSet("stop", flag.ExitOnError)
	model := flags.String("model", "", "Device model")
	osVersion := flags.String("os", runtime.GOOS, "Operating system and version")
	resolution := flags.String("resolution", "", "Screen resolution, e.g. 3024x1964")
	noQueue := flags.Bool("no-queue", false, "Do not queue the recording for evidence generation")
	flags.Var(metadata, "meta", "Extra key=value metadata for the manifest. May be repeated.")
	flags.Parse(args)
	if flags.NArg() != 1 {
		return fmt.Errorf("stop takes exactly one argument: the path of the finished recording")
	}
	artifactPath := flags.Arg(0)

	_context := common.NewContext()
	ledger := custody.NewLedger(_context.Logger)
	defer ledger.Close()
	artifactID, err := ledger.Open(artifactPath)
	if err != nil {
		return err
	}
	device := evidence.DeviceInfo{
		AppVersion:       _context.Config.AppVersion,
		Model:            *model,
		OSVersion:        *osVersion,
		ScreenResolution: *resolution,
	}
	msg, err := forensic.StopCapture(ledger, artifactID, artifactPath, device, metadata)
	if err != nil {
		return err
	}
	_context.Logger.Infof("Capture %s stopped after %.1f seconds", artifactID, msg.DurationSeconds)
	if *noQueue {
		fmt.Println(artifactID)
		return nil
	}
	if err = _context.NSQClient.EnqueueCapture(msg); err != nil {
		return fmt.Errorf("Capture %s stopped but could not be queued. evidence_queue will pick it up later. %v", artifactID, err)
	}
	fmt.Println(artifactID)
	return nil
}

func printHelp() {
	message := `
evidence_capture opens and closes the chain of custody for a screen
recording.

Usage:
  evidence_capture start [-details text] <recording path>
      Assigns an artifact id, logs RECORDING_START and writes the
      custody sidecar. Prints the artifact id.

  evidence_capture stop [-model m] [-os v] [-resolution r] [-meta k=v] <recording path>
      Logs RECORDING_COMPLETE for the recording and pushes a capture
      message into the NSQ evidence_topic. Use -no-queue to leave
      queueing to evidence_queue.
`
	fmt.Println(message)
	fmt.Println(cli.EnvMessage)
}
