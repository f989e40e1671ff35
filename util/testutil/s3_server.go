package testutil

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"

	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const EvidenceBucket = "evidence.test"

// S3Server is an in-memory S3 endpoint with EvidenceBucket already
// created. Host is the host:port to hand to a minio client.
type S3Server struct {
	Host   string
	URL    string
	client *minio.Client
	server *httptest.Server
}

func NewS3Server() *S3Server {
	backend := s3mem.New()
	backend.CreateBucket(EvidenceBucket)
	faker := gofakes3.New(backend)
	server := httptest.NewServer(faker.Server())
	host := strings.TrimPrefix(server.URL, "http://")
	client, err := minio.New(host, &minio.Options{
		Creds:        credentials.NewStaticV4("test-key", "test-secret", ""),
		Region:       "us-east-1",
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		panic(err)
	}
	return &S3Server{
		Host:   host,
		URL:    server.URL,
		client: client,
		server: server,
	}
}

// ReadObject returns the contents of key in EvidenceBucket.
func (s *S3Server) ReadObject(key string) ([]byte, error) {
	obj, err := s.client.GetObject(context.Background(), EvidenceBucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

// ObjectMetadata returns the user metadata stored with key, with
// lowercase names.
func (s *S3Server) ObjectMetadata(key string) (map[string]string, error) {
	info, err := s.client.StatObject(context.Background(), EvidenceBucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, err
	}
	metadata := make(map[string]string, len(info.UserMetadata))
	for name, value := range info.UserMetadata {
		metadata[strings.ToLower(name)] = value
	}
	return metadata, nil
}

func (s *S3Server) Close() {
	s.server.Close()
}
