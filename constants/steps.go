package constants

const (
	StepPrecondition   = "Precondition"
	StepDigest         = "Digest"
	StepVerifiedTime   = "VerifiedTime"
	StepTimestampTSA   = "TimestampToken"
	StepFileFacts      = "FileFacts"
	StepFormat         = "FormatIdentification"
	StepManifest       = "Manifest"
	StepAssembleRecord = "AssembleRecord"
)

// Step describes one stage of evidence generation. A failed mandatory
// step aborts the run. A failed optional step is recorded in the
// custody log and the run continues.
type Step struct {
	Name           string
	Order          int
	Mandatory      bool
	StartAction    string
	CompleteAction string
	FailedAction   string
}

var EvidenceSteps = []Step{
	{
		Name:      StepPrecondition,
		Order:     1,
		Mandatory: true,
	},
	{
		Name:           StepDigest,
		Order:          2,
		Mandatory:      true,
		StartAction:    ActionHashGenerationStart,
		CompleteAction: ActionHashGenerationComplete,
	},
	{
		Name:           StepVerifiedTime,
		Order:          3,
		Mandatory:      true,
		StartAction:    ActionTimestampVerificationStart,
		CompleteAction: ActionTimestampVerificationComplete,
	},
	{
		Name:           StepTimestampTSA,
		Order:          4,
		Mandatory:      false,
		CompleteAction: ActionTSATokenReceived,
		FailedAction:   ActionTSATokenFailed,
	},
	{
		Name:      StepFileFacts,
		Order:     5,
		Mandatory: true,
	},
	{
		Name:           StepFormat,
		Order:          6,
		Mandatory:      false,
		CompleteAction: ActionFormatIdentified,
	},
	{
		Name:           StepManifest,
		Order:          7,
		Mandatory:      true,
		CompleteAction: ActionManifestCreated,
	},
	{
		Name:      StepAssembleRecord,
		Order:     8,
		Mandatory: true,
	},
}

// StepNamed returns the step with the given name, or nil.
func StepNamed(name string) *Step {
	for i := range EvidenceSteps {
		if EvidenceSteps[i].Name == name {
			return &EvidenceSteps[i]
		}
	}
	return nil
}
