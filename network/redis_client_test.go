package network_test

import (
	"testing"
	"time"

	"github.com/APTrust/evidence-services/models/evidence"
	"github.com/APTrust/evidence-services/network"
	"github.com/APTrust/evidence-services/util/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getRedisClient(t *testing.T) *network.RedisClient {
	RedisTestServer.FlushAll()
	client := network.NewRedisClient(RedisTestServer.Addr(), "", 0)
	require.NotNil(t, client)
	return client
}

func getRecord(artifactID string, createdAt time.Time) *evidence.EvidenceRecord {
	return evidence.NewEvidenceRecord(evidence.EvidenceRecord{
		ArtifactID: artifactID,
		CreatedAt:  createdAt,
		CustodyLog: []evidence.CustodyEvent{
			evidence.NewCustodyEvent(createdAt, "RECORDING_START", "Screen capture started", testutil.Actor),
		},
		Device: testutil.GetDeviceInfo(),
		Digests: evidence.DigestPair{
			Sha256: testutil.ZeroSha256,
			Sha512: testutil.ZeroSha512,
		},
		DurationSeconds: 90,
		FileName:        "recording.mov",
		FilePath:        "/evidence/recording.mov",
		FileSize:        1000,
		IsOriginalFile:  true,
		Metadata:        map[string]string{"case_number": "2025-041"},
	})
}

func TestNewRedisClient(t *testing.T) {
	client := network.NewRedisClient("localhost:6379", "", 0)
	assert.NotNil(t, client)
}

func TestRedisPing(t *testing.T) {
	client := getRedisClient(t)
	response, err := client.Ping()
	assert.Nil(t, err)
	assert.Equal(t, "PONG", response)
}

func TestEvidenceRecordSaveAndGet(t *testing.T) {
	client := getRedisClient(t)
	record := getRecord(testutil.ArtifactID, testutil.CaptureStart)
	require.Nil(t, client.EvidenceRecordSave(record))

	retrieved, err := client.EvidenceRecordGet(testutil.ArtifactID)
	require.Nil(t, err)
	require.NotNil(t, retrieved)
	assert.Equal(t, record.Digests, retrieved.Digests)
	assert.Equal(t, record.FileSize, retrieved.FileSize)
	assert.Equal(t, record.Metadata, retrieved.Metadata)
	assert.Equal(t, 1, len(retrieved.CustodyLog))
	assert.True(t, record.CreatedAt.Equal(retrieved.CreatedAt))

	exists, err := client.EvidenceRecordExists(testutil.ArtifactID)
	require.Nil(t, err)
	assert.True(t, exists)
}

func TestEvidenceRecordGetMissing(t *testing.T) {
	client := getRedisClient(t)
	record, err := client.EvidenceRecordGet("no-such-artifact")
	assert.NotNil(t, err)
	assert.Nil(t, record)
	assert.Contains(t, err.Error(), "no-such-artifact")
}

func TestEvidenceRecordList(t *testing.T) {
	client := getRedisClient(t)
	ids := []string{"third", "first", "second"}
	offsets := []time.Duration{2 * time.Hour, 0, time.Hour}
	for i, id := range ids {
		require.Nil(t, client.EvidenceRecordSave(getRecord(id, testutil.CaptureStart.Add(offsets[i]))))
	}

	list, err := client.EvidenceRecordList(0, 10)
	require.Nil(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, list)

	list, err = client.EvidenceRecordList(1, 1)
	require.Nil(t, err)
	assert.Equal(t, []string{"second"}, list)

	list, err = client.EvidenceRecordList(0, 0)
	require.Nil(t, err)
	assert.Empty(t, list)
}

func TestEvidenceRecordSaveReplaces(t *testing.T) {
	client := getRedisClient(t)
	record := getRecord(testutil.ArtifactID, testutil.CaptureStart)
	require.Nil(t, client.EvidenceRecordSave(record))
	record.FileFormat = "x-fmt/384"
	require.Nil(t, client.EvidenceRecordSave(record))

	retrieved, err := client.EvidenceRecordGet(testutil.ArtifactID)
	require.Nil(t, err)
	assert.Equal(t, "x-fmt/384", retrieved.FileFormat)
	list, err := client.EvidenceRecordList(0, 10)
	require.Nil(t, err)
	assert.Equal(t, []string{testutil.ArtifactID}, list)
}

func TestEvidenceRecordDelete(t *testing.T) {
	client := getRedisClient(t)
	require.Nil(t, client.EvidenceRecordSave(getRecord(testutil.ArtifactID, testutil.CaptureStart)))
	require.Nil(t, client.EvidenceRecordDelete(testutil.ArtifactID))

	exists, err := client.EvidenceRecordExists(testutil.ArtifactID)
	require.Nil(t, err)
	assert.False(t, exists)
	list, err := client.EvidenceRecordList(0, 10)
	require.Nil(t, err)
	assert.Empty(t, list)
}
