package custody_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/APTrust/evidence-services/constants"
	"github.com/APTrust/evidence-services/custody"
	"github.com/APTrust/evidence-services/models/common"
	"github.com/APTrust/evidence-services/util"
	"github.com/APTrust/evidence-services/util/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalLog(t *testing.T) {
	events := validEvents()[:2]
	expected := "1765447200|RECORDING_START|details\n1765447800|RECORDING_COMPLETE|details"
	assert.Equal(t, expected, string(custody.CanonicalLog(events)))
	assert.Equal(t, "", string(custody.CanonicalLog(nil)))
}

func TestSignAndVerify(t *testing.T) {
	key, err := custody.GenerateSigningKey()
	require.Nil(t, err)
	events := validEvents()

	signature, err := custody.SignEvents(events, key)
	require.Nil(t, err)
	raw, err := base64.StdEncoding.DecodeString(signature)
	require.Nil(t, err)
	assert.Equal(t, 64, len(raw))

	ok, err := custody.VerifySignature(events, &key.PublicKey, signature)
	require.Nil(t, err)
	assert.True(t, ok)

	// Any change to the log invalidates the signature.
	events[2].Details = "edited"
	ok, err = custody.VerifySignature(events, &key.PublicKey, signature)
	require.Nil(t, err)
	assert.False(t, ok)

	other, err := custody.GenerateSigningKey()
	require.Nil(t, err)
	ok, err = custody.VerifySignature(validEvents(), &other.PublicKey, signature)
	require.Nil(t, err)
	assert.False(t, ok)
}

func TestVerifySignatureMalformed(t *testing.T) {
	key, err := custody.GenerateSigningKey()
	require.Nil(t, err)
	_, err = custody.VerifySignature(validEvents(), &key.PublicKey, "!!!")
	assert.True(t, common.IsKind(err, common.ErrMalformedResponse))
	_, err = custody.VerifySignature(validEvents(), &key.PublicKey, base64.StdEncoding.EncodeToString([]byte("short")))
	assert.True(t, common.IsKind(err, common.ErrMalformedResponse))
	_, err = custody.VerifySignature(validEvents(), nil, "")
	assert.True(t, common.IsKind(err, common.ErrMisuse))
}

func TestSignRejectsWrongCurve(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.Nil(t, err)
	_, err = custody.SignEvents(validEvents(), key)
	assert.True(t, common.IsKind(err, common.ErrMisuse))
	_, err = custody.SignEvents(validEvents(), nil)
	assert.True(t, common.IsKind(err, common.ErrMisuse))
}

func TestLedgerSign(t *testing.T) {
	ledger := newLedger(t)
	trackArtifact(t, ledger)
	require.Nil(t, ledger.Append(testutil.ArtifactID, constants.ActionRecordingStart, "start"))
	key, err := custody.GenerateSigningKey()
	require.Nil(t, err)

	signature, err := ledger.Sign(testutil.ArtifactID, key)
	require.Nil(t, err)
	ok, err := custody.VerifySignature(ledger.Events(testutil.ArtifactID), &key.PublicKey, signature)
	require.Nil(t, err)
	assert.True(t, ok)

	_, err = ledger.Sign("untracked", key)
	assert.True(t, common.IsKind(err, common.ErrMisuse))
}

func TestLedgerSignLog(t *testing.T) {
	ledger := newLedger(t)
	artifactPath := trackArtifact(t, ledger)
	require.Nil(t, ledger.Append(testutil.ArtifactID, constants.ActionRecordingStart, "start"))
	require.Nil(t, ledger.Append(testutil.ArtifactID, constants.ActionRecordingComplete, "done"))
	key, err := custody.GenerateSigningKey()
	require.Nil(t, err)

	logSig, err := ledger.SignLog(testutil.ArtifactID, key)
	require.Nil(t, err)
	assert.Equal(t, 2, logSig.EventCount)
	assert.True(t, ledger.HasAction(testutil.ArtifactID, constants.ActionLogSigned))

	stored, err := custody.ReadLogSignature(artifactPath)
	require.Nil(t, err)
	assert.Equal(t, logSig, stored)

	// Events after the signed range, including LOG_SIGNED, are ignored.
	require.Nil(t, ledger.Append(testutil.ArtifactID, constants.ActionPackageExported, "later"))
	events := ledger.Events(testutil.ArtifactID)
	ok, err := custody.VerifyLogSignature(events, &key.PublicKey, stored)
	require.Nil(t, err)
	assert.True(t, ok)

	events[0].Details = "edited"
	ok, err = custody.VerifyLogSignature(events, &key.PublicKey, stored)
	require.Nil(t, err)
	assert.False(t, ok)

	ok, err = custody.VerifyLogSignature(events[:1], &key.PublicKey, stored)
	require.Nil(t, err)
	assert.False(t, ok)

	_, err = custody.VerifyLogSignature(events, &key.PublicKey, nil)
	assert.True(t, common.IsKind(err, common.ErrMisuse))
}

func TestReadLogSignatureErrors(t *testing.T) {
	artifactPath := filepath.Join(t.TempDir(), "recording.mov")
	_, err := custody.ReadLogSignature(artifactPath)
	assert.True(t, common.IsKind(err, common.ErrIO))

	require.Nil(t, os.WriteFile(util.SignaturePathFor(artifactPath), []byte("{"), 0644))
	_, err = custody.ReadLogSignature(artifactPath)
	assert.True(t, common.IsKind(err, common.ErrMalformedResponse))

	require.Nil(t, os.WriteFile(util.SignaturePathFor(artifactPath), []byte(`{"event_count":2}`), 0644))
	_, err = custody.ReadLogSignature(artifactPath)
	assert.True(t, common.IsKind(err, common.ErrMalformedResponse))
}

func TestSaveAndLoadSigningKey(t *testing.T) {
	key, err := custody.GenerateSigningKey()
	require.Nil(t, err)
	keyPath := filepath.Join(t.TempDir(), "signing.pem")
	require.Nil(t, custody.SaveSigningKey(keyPath, key))

	stat, err := os.Stat(keyPath)
	require.Nil(t, err)
	assert.Equal(t, os.FileMode(0600), stat.Mode().Perm())

	loaded, err := custody.LoadSigningKey(keyPath)
	require.Nil(t, err)
	assert.True(t, key.Equal(loaded))
}

func TestLoadSigningKeyPKCS8(t *testing.T) {
	key, err := custody.GenerateSigningKey()
	require.Nil(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.Nil(t, err)
	keyPath := filepath.Join(t.TempDir(), "signing.pem")
	require.Nil(t, os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0600))

	loaded, err := custody.LoadSigningKey(keyPath)
	require.Nil(t, err)
	assert.True(t, key.Equal(loaded))
}

func TestLoadSigningKeyErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := custody.LoadSigningKey(filepath.Join(dir, "missing.pem"))
	assert.True(t, common.IsKind(err, common.ErrIO))

	notPem := filepath.Join(dir, "not.pem")
	require.Nil(t, os.WriteFile(notPem, []byte("hello"), 0600))
	_, err = custody.LoadSigningKey(notPem)
	assert.True(t, common.IsKind(err, common.ErrMalformedResponse))

	p384, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.Nil(t, err)
	der, err := x509.MarshalECPrivateKey(p384)
	require.Nil(t, err)
	wrongCurve := filepath.Join(dir, "p384.pem")
	require.Nil(t, os.WriteFile(wrongCurve, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), 0600))
	_, err = custody.LoadSigningKey(wrongCurve)
	assert.True(t, common.IsKind(err, common.ErrMisuse))
}
