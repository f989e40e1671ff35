package custody

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/APTrust/evidence-services/constants"
	"github.com/APTrust/evidence-services/models/common"
	"github.com/APTrust/evidence-services/models/evidence"
	"github.com/APTrust/evidence-services/util"
)

// P-256 scalars are 32 bytes. Signatures are r and s, each left
// padded to that length.
const scalarSize = 32

// CanonicalLog renders events as the byte string that gets signed:
// one "epochSeconds|action|details" line per event, joined by
// newlines.
func CanonicalLog(events []evidence.CustodyEvent) []byte {
	lines := make([]string, len(events))
	for i, event := range events {
		lines[i] = fmt.Sprintf("%d|%s|%s", event.Timestamp.Unix(), event.Action, event.Details)
	}
	return []byte(strings.Join(lines, "\n"))
}

// SignEvents signs the canonical form of events with an ECDSA P-256
// key over SHA-256 and returns the raw r||s signature in base64.
func SignEvents(events []evidence.CustodyEvent, key *ecdsa.PrivateKey) (string, error) {
	if key == nil || key.Curve != elliptic.P256() {
		return "", common.NewError(common.ErrMisuse, "Custody logs must be signed with a P-256 key", nil, false)
	}
	digest := sha256.Sum256(CanonicalLog(events))
	r, s, err := ecdsa.Sign(rand.Reader, key, digest[:])
	if err != nil {
		return "", common.NewError(common.ErrMisuse, "Cannot sign custody log", err, false)
	}
	raw := make([]byte, 2*scalarSize)
	r.FillBytes(raw[:scalarSize])
	s.FillBytes(raw[scalarSize:])
	return base64.StdEncoding.EncodeToString(raw), nil
}

// VerifySignature returns true if signature is a valid signature of
// events by the holder of the private half of key.
func VerifySignature(events []evidence.CustodyEvent, key *ecdsa.PublicKey, signature string) (bool, error) {
	if key == nil {
		return false, common.NewError(common.ErrMisuse, "No public key supplied", nil, false)
	}
	raw, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false, common.NewError(common.ErrMalformedResponse, "Signature is not valid base64", err, false)
	}
	if len(raw) != 2*scalarSize {
		return false, common.NewError(common.ErrMalformedResponse,
			fmt.Sprintf("Signature is %d bytes, expected %d", len(raw), 2*scalarSize), nil, false)
	}
	r := new(big.Int).SetBytes(raw[:scalarSize])
	s := new(big.Int).SetBytes(raw[scalarSize:])
	digest := sha256.Sum256(CanonicalLog(events))
	return ecdsa.Verify(key, digest[:], r, s), nil
}

// LogSignature is the content of a custody log signature file. The
// signature covers the first EventCount events of the log.
type LogSignature struct {
	EventCount int    `json:"event_count"`
	Signature  string `json:"signature"`
}

// SignLog signs the artifact's current log, writes the signature
// next to the artifact and appends LOG_SIGNED. The LOG_SIGNED event
// itself falls outside the signed range.
func (l *Ledger) SignLog(artifactID string, key *ecdsa.PrivateKey) (*LogSignature, error) {
	artifactPath, err := l.Path(artifactID)
	if err != nil {
		return nil, err
	}
	events := l.Events(artifactID)
	signature, err := SignEvents(events, key)
	if err != nil {
		return nil, err
	}
	logSig := &LogSignature{EventCount: len(events), Signature: signature}
	data, err := json.MarshalIndent(logSig, "", "  ")
	if err != nil {
		return nil, err
	}
	sigPath := util.SignaturePathFor(artifactPath)
	if err = util.WriteFileAtomic(sigPath, data, 0644); err != nil {
		return nil, common.IOError(fmt.Sprintf("Cannot write signature %s", sigPath), err)
	}
	err = l.Append(artifactID, constants.ActionLogSigned,
		fmt.Sprintf("Signed %d events, signature at %s", len(events), sigPath))
	return logSig, err
}

// ReadLogSignature reads the signature file for the artifact at
// artifactPath.
func ReadLogSignature(artifactPath string) (*LogSignature, error) {
	sigPath := util.SignaturePathFor(artifactPath)
	data, err := os.ReadFile(sigPath)
	if err != nil {
		return nil, common.IOError(fmt.Sprintf("Cannot read signature %s", sigPath), err)
	}
	logSig := &LogSignature{}
	if err = json.Unmarshal(data, logSig); err != nil {
		return nil, common.NewError(common.ErrMalformedResponse,
			fmt.Sprintf("Cannot parse signature %s", sigPath), err, false)
	}
	if logSig.EventCount < 0 || logSig.Signature == "" {
		return nil, common.NewError(common.ErrMalformedResponse,
			fmt.Sprintf("Signature %s is incomplete", sigPath), nil, false)
	}
	return logSig, nil
}

// VerifyLogSignature checks logSig against the leading events it
// claims to cover. Events appended after signing do not affect the
// result.
func VerifyLogSignature(events []evidence.CustodyEvent, key *ecdsa.PublicKey, logSig *LogSignature) (bool, error) {
	if logSig == nil {
		return false, common.NewError(common.ErrMisuse, "No signature supplied", nil, false)
	}
	if logSig.EventCount > len(events) {
		return false, nil
	}
	return VerifySignature(events[:logSig.EventCount], key, logSig.Signature)
}

// GenerateSigningKey returns a new P-256 key.
func GenerateSigningKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

// SaveSigningKey writes key to filePath as a PEM "EC PRIVATE KEY"
// block readable only by its owner.
func SaveSigningKey(filePath string, key *ecdsa.PrivateKey) error {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return err
	}
	data := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
	if err = util.WriteFileAtomic(filePath, data, 0600); err != nil {
		return common.IOError(fmt.Sprintf("Cannot write signing key %s", filePath), err)
	}
	return nil
}

// LoadSigningKey reads a PEM encoded P-256 private key in either
// SEC 1 or PKCS #8 form.
func LoadSigningKey(filePath string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, common.IOError(fmt.Sprintf("Cannot read signing key %s", filePath), err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, common.NewError(common.ErrMalformedResponse,
			fmt.Sprintf("%s does not contain a PEM block", filePath), nil, true)
	}
	var key *ecdsa.PrivateKey
	switch block.Type {
	case "EC PRIVATE KEY":
		key, err = x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		var parsed interface{}
		parsed, err = x509.ParsePKCS8PrivateKey(block.Bytes)
		if err == nil {
			var ok bool
			if key, ok = parsed.(*ecdsa.PrivateKey); !ok {
				err = fmt.Errorf("key is %T, not ECDSA", parsed)
			}
		}
	default:
		err = fmt.Errorf("unsupported PEM block type %s", block.Type)
	}
	if err != nil {
		return nil, common.NewError(common.ErrMalformedResponse,
			fmt.Sprintf("Cannot parse signing key %s", filePath), err, true)
	}
	if key.Curve != elliptic.P256() {
		return nil, common.NewError(common.ErrMisuse,
			fmt.Sprintf("Signing key %s is not a P-256 key", filePath), nil, true)
	}
	return key, nil
}
