package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/APTrust/evidence-services/custody"
	"github.com/APTrust/evidence-services/digest"
	"github.com/APTrust/evidence-services/forensic"
	"github.com/APTrust/evidence-services/models/common"
	"github.com/APTrust/evidence-services/util/cli"
)

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(2)
	}
	command, args := os.Args[1], os.Args[2:]
	var err error
	switch command {
	case "verify":
		err = verify(args)
	case "audit":
		err = audit(args)
	case "sign":
		err = sign(args)
	case "keygen":
		err = keygen(args)
	case "record":
		err = record(args)
	case "list":
		err = list(args)
	case "export":
		err = export(args)
	case "package":
		err = export(append([]string{"-upload"}, args...))
	case "help", "-help", "--help":
		printHelp()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %s\n", command)
		printHelp()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openArtifact loads the custody log of the recording at artifactPath.
func openArtifact(_context *common.Context, artifactPath string) (*custody.Ledger, string, error) {
	ledger := custody.NewLedger(_context.Logger)
	artifactID, err := ledger.Open(artifactPath)
	if err != nil {
		ledger.Close()
		return nil, "", err
	}
	return ledger, artifactID, nil
}

func requireArg(flags *flag.FlagSet, name string) (string, error) {
	if flags.NArg() != 1 {
		return "", fmt.Errorf("%s takes exactly one argument", name)
	}
	return flags.Arg(0), nil
}

// verify rehashes a recording, compares it with its manifest and,
// if a signature exists and a key is given, checks the log signature.
func verify(args []string) error {
	flags := flag.NewFlagSet("verify", flag.ExitOnError)
	keyPath := flags.String("key", "", "Signing key used to check the custody log signature. Defaults to SIGNING_KEY_PATH.")
	flags.Parse(args)
	artifactPath, err := requireArg(flags, "verify <recording>")
	if err != nil {
		return err
	}
	_context := common.NewContext()
	ledger, artifactID, err := openArtifact(_context, artifactPath)
	if err != nil {
		return err
	}
	defer ledger.Close()

	ok, err := forensic.VerifyArtifact(digest.NewEngine(), ledger, artifactID, artifactPath)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s does not match its manifest", artifactPath)
	}
	fmt.Printf("%s matches its manifest\n", artifactPath)

	if *keyPath == "" {
		*keyPath = _context.Config.SigningKeyPath
	}
	logSig, err := custody.ReadLogSignature(artifactPath)
	if common.IsKind(err, common.ErrIO) || *keyPath == "" {
		return nil
	}
	if err != nil {
		return err
	}
	key, err := custody.LoadSigningKey(*keyPath)
	if err != nil {
		return err
	}
	ok, err = custody.VerifyLogSignature(ledger.Events(artifactID), &key.PublicKey, logSig)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("Custody log signature for %s is not valid", artifactPath)
	}
	fmt.Printf("Custody log signature covers %d events and is valid\n", logSig.EventCount)
	return nil
}

func audit(args []string) error {
	flags := flag.NewFlagSet("audit", flag.ExitOnError)
	flags.Parse(args)
	artifactPath, err := requireArg(flags, "audit <recording>")
	if err != nil {
		return err
	}
	ledger, artifactID, err := openArtifact(common.NewContext(), artifactPath)
	if err != nil {
		return err
	}
	defer ledger.Close()
	report := ledger.VerifyIntegrity(artifactID)
	fmt.Println(report.Summary())
	if !report.IsValid {
		return fmt.Errorf("Audit of %s failed", artifactPath)
	}
	return nil
}

func sign(args []string) error {
	flags := flag.NewFlagSet("sign", flag.ExitOnError)
	keyPath := flags.String("key", "", "Signing key. Defaults to SIGNING_KEY_PATH.")
	flags.Parse(args)
	artifactPath, err := requireArg(flags, "sign <recording>")
	if err != nil {
		return err
	}
	_context := common.NewContext()
	if *keyPath == "" {
		*keyPath = _context.Config.SigningKeyPath
	}
	key, err := custody.LoadSigningKey(*keyPath)
	if err != nil {
		return err
	}
	ledger, artifactID, err := openArtifact(_context, artifactPath)
	if err != nil {
		return err
	}
	defer ledger.Close()
	logSig, err := ledger.SignLog(artifactID, key)
	if err != nil {
		return err
	}
	if err = ledger.Flush(artifactID); err != nil {
		return err
	}
	fmt.Printf("Signed %d events of %s\n", logSig.EventCount, artifactID)
	return nil
}

func keygen(args []string) error {
	flags := flag.NewFlagSet("keygen", flag.ExitOnError)
	flags.Parse(args)
	keyPath, err := requireArg(flags, "keygen <key file>")
	if err != nil {
		return err
	}
	key, err := custody.GenerateSigningKey()
	if err != nil {
		return err
	}
	if err = custody.SaveSigningKey(keyPath, key); err != nil {
		return err
	}
	fmt.Printf("Wrote new P-256 signing key to %s\n", keyPath)
	return nil
}

func record(args []string) error {
	flags := flag.NewFlagSet("record", flag.ExitOnError)
	flags.Parse(args)
	artifactID, err := requireArg(flags, "record <artifact id>")
	if err != nil {
		return err
	}
	evidenceRecord, err := common.NewContext().RedisClient.EvidenceRecordGet(artifactID)
	if err != nil {
		return err
	}
	data, err := evidenceRecord.ToJSON()
	if err != nil {
		return err
	}
	fmt.Println(data)
	return nil
}

func list(args []string) error {
	flags := flag.NewFlagSet("list", flag.ExitOnError)
	offset := flags.Int64("offset", 0, "Number of records to skip, oldest first")
	limit := flags.Int64("limit", 50, "Maximum number of records to list")
	flags.Parse(args)
	ids, err := common.NewContext().RedisClient.EvidenceRecordList(*offset, *limit)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

// export builds a forensic package from a stored evidence record and
// optionally uploads it.
func export(args []string) error {
	flags := flag.NewFlagSet("export", flag.ExitOnError)
	upload := flags.Bool("upload", false, "Upload the package to EVIDENCE_BUCKET")
	prefix := flags.String("prefix", "packages", "Key prefix for uploaded packages")
	flags.Parse(args)
	artifactID, err := requireArg(flags, "export <artifact id>")
	if err != nil {
		return err
	}
	_context := common.NewContext()
	evidenceRecord, err := _context.RedisClient.EvidenceRecordGet(artifactID)
	if err != nil {
		return err
	}
	ledger, openedID, err := openArtifact(_context, evidenceRecord.FilePath)
	if err != nil {
		return err
	}
	defer ledger.Close()
	if openedID != artifactID {
		return fmt.Errorf("Custody log next to %s belongs to %s, not %s", evidenceRecord.FilePath, openedID, artifactID)
	}
	packageDir, err := forensic.ExportPackage(evidenceRecord, ledger, _context.Config.ExportDir)
	if err != nil {
		return err
	}
	fmt.Printf("Exported %s\n", packageDir)
	if *upload {
		if _context.Uploader == nil {
			return fmt.Errorf("Cannot upload: S3_HOST is not set")
		}
		uploaded, err := _context.Uploader.UploadPackage(context.Background(), packageDir, *prefix)
		if err != nil {
			return err
		}
		fmt.Printf("Uploaded %d files to %s\n", len(uploaded), _context.Uploader.Bucket)
	}
	return ledger.Flush(artifactID)
}

func printHelp() {
	message := `
evidence_verify examines recordings after evidence generation.

Usage: evidence_verify <command> [flags] <argument>

Commands:
  verify <recording>     Rehash the recording and compare it with its
                         manifest. Logs INTEGRITY_VERIFIED. Also checks
                         the custody log signature when one exists.
  audit <recording>      Check the chain of custody log for ordering,
                         required actions and suspicious gaps.
  sign <recording>       Sign the custody log with the P-256 key at
                         SIGNING_KEY_PATH (or -key). Logs LOG_SIGNED.
  keygen <key file>      Write a new P-256 signing key.
  record <artifact id>   Print the evidence record stored in Redis.
  list                   List stored evidence record ids, oldest first.
  export <artifact id>   Build a forensic package in EXPORT_DIR from the
                         stored record. Use -upload to copy it to S3.
  package <artifact id>  Same as export -upload.
`
	fmt.Println(message)
	fmt.Println(cli.EnvMessage)
}
