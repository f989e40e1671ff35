package timeauth

import (
	"time"

	"github.com/APTrust/evidence-services/models/evidence"
)

// BuildTimestampProof bundles the results of time verification for
// one artifact. Pass an empty tsaURL and nil tsaResponse when no
// timestamp authority answered.
func BuildTimestampProof(fileHash string, deviceTime, ntpTime time.Time, ntpServer, tsaURL string, tsaResponse []byte) evidence.TimestampProof {
	proof := evidence.TimestampProof{
		DeviceTimestamp: deviceTime.UTC(),
		FileHash:        fileHash,
		NTPServer:       ntpServer,
		NTPTimestamp:    ntpTime.UTC(),
		TSAURL:          tsaURL,
	}
	if tsaResponse != nil {
		proof.TSAResponse = append([]byte(nil), tsaResponse...)
	}
	return proof
}
