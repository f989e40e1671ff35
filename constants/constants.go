package constants

const (
	AlgSha256            = "sha256"
	AlgSha512            = "sha512"
	CustodyLogSuffix     = ".custody_log.json"
	DefaultNTPPort       = "123"
	EvidenceRecordIndex  = "evidence:index"
	EvidenceRecordPrefix = "evidence:"
	ExportDirPrefix      = "ForensicExport_"
	ManifestSuffix       = ".manifest.json"
	NTPEpochOffset       = int64(2208988800)
	NTPPacketSize        = 48
	NTPRequestHeader     = byte(0x1B)
	NTPTransmitOffset    = 40
	ReadmeFileName       = "README.txt"
	SignatureSuffix      = ".custody_log.sig"
	SuspiciousGapSeconds = 3600
	TimestampQueryMime   = "application/timestamp-query"
	TopicEvidence        = "evidence_topic"
	UnknownUser          = "Unknown"
)

// Custody actions. The capture pipeline writes the two RECORDING
// actions. Everything else comes from the forensic orchestrator or
// from tools that touch the evidence after the fact.
const (
	ActionRecordingStart                = "RECORDING_START"
	ActionRecordingComplete             = "RECORDING_COMPLETE"
	ActionHashGenerationStart           = "HASH_GENERATION_START"
	ActionHashGenerationComplete        = "HASH_GENERATION_COMPLETE"
	ActionTimestampVerificationStart    = "TIMESTAMP_VERIFICATION_START"
	ActionTimestampVerificationComplete = "TIMESTAMP_VERIFICATION_COMPLETE"
	ActionTSATokenReceived              = "TSA_TOKEN_RECEIVED"
	ActionTSATokenFailed                = "TSA_TOKEN_FAILED"
	ActionFormatIdentified              = "FORMAT_IDENTIFIED"
	ActionManifestCreated               = "MANIFEST_CREATED"
	ActionIntegrityVerified             = "INTEGRITY_VERIFIED"
	ActionLogSigned                     = "LOG_SIGNED"
	ActionPackageExported               = "PACKAGE_EXPORTED"
	ActionPackageUploaded               = "PACKAGE_UPLOADED"
)

// RequiredCustodyActions must all appear somewhere in a custody log
// for the log to pass the structural audit.
var RequiredCustodyActions = []string{
	ActionRecordingStart,
	ActionRecordingComplete,
	ActionHashGenerationComplete,
}

// DefaultNTPServers and DefaultTSAURLs are used only when the config
// file does not list any servers.
var DefaultNTPServers = []string{
	"time.apple.com",
	"time.google.com",
	"time.nist.gov",
	"pool.ntp.org",
}

var DefaultTSAURLs = []string{
	"http://timestamp.digicert.com",
	"http://timestamp.apple.com/ts01",
	"http://timestamp.sectigo.com",
}
