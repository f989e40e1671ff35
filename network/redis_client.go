package network

import (
	"fmt"

	"github.com/APTrust/evidence-services/constants"
	"github.com/APTrust/evidence-services/models/evidence"
	"github.com/go-redis/redis/v7"
)

// RedisClient stores evidence records so examiners and tools can look
// them up by artifact id after the worker that produced them has moved
// on. Each record is stored as JSON under evidence:<id>, and the
// evidence:index sorted set lists ids by capture time.
type RedisClient struct {
	client *redis.Client
}

func NewRedisClient(address, password string, db int) *RedisClient {
	return &RedisClient{
		client: redis.NewClient(&redis.Options{
			Addr:     address,
			Password: password,
			DB:       db,
		}),
	}
}

func (c *RedisClient) Ping() (string, error) {
	return c.client.Ping().Result()
}

func recordKey(artifactID string) string {
	return constants.EvidenceRecordPrefix + artifactID
}

// EvidenceRecordSave stores record, replacing any earlier version.
func (c *RedisClient) EvidenceRecordSave(record *evidence.EvidenceRecord) error {
	jsonData, err := record.ToJSON()
	if err != nil {
		return err
	}
	pipe := c.client.TxPipeline()
	pipe.Set(recordKey(record.ArtifactID), jsonData, 0)
	pipe.ZAdd(constants.EvidenceRecordIndex, &redis.Z{
		Score:  float64(record.CreatedAt.Unix()),
		Member: record.ArtifactID,
	})
	if _, err = pipe.Exec(); err != nil {
		return fmt.Errorf("EvidenceRecordSave (%s): %s", record.ArtifactID, err.Error())
	}
	return nil
}

func (c *RedisClient) EvidenceRecordGet(artifactID string) (*evidence.EvidenceRecord, error) {
	data, err := c.client.Get(recordKey(artifactID)).Result()
	if err != nil {
		return nil, fmt.Errorf("EvidenceRecordGet (%s): %s", artifactID, err.Error())
	}
	return evidence.EvidenceRecordFromJSON(data)
}

// EvidenceRecordList returns up to limit artifact ids, oldest capture
// first, starting at offset.
func (c *RedisClient) EvidenceRecordList(offset, limit int64) ([]string, error) {
	if limit < 1 {
		return []string{}, nil
	}
	ids, err := c.client.ZRange(constants.EvidenceRecordIndex, offset, offset+limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("EvidenceRecordList: %s", err.Error())
	}
	return ids, nil
}

// EvidenceRecordExists returns true if a record for artifactID is
// stored.
func (c *RedisClient) EvidenceRecordExists(artifactID string) (bool, error) {
	count, err := c.client.Exists(recordKey(artifactID)).Result()
	return count > 0, err
}

func (c *RedisClient) EvidenceRecordDelete(artifactID string) error {
	pipe := c.client.TxPipeline()
	pipe.Del(recordKey(artifactID))
	pipe.ZRem(constants.EvidenceRecordIndex, artifactID)
	_, err := pipe.Exec()
	return err
}
