package network

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/APTrust/evidence-services/util/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/op/go-logging"
)

// UploadedObject describes one file copied to the evidence bucket.
type UploadedObject struct {
	Key    string
	Sha256 string
	Size   int64
}

// EvidenceUploader copies exported forensic packages to an S3
// compatible bucket. Each object carries its SHA-256 in user
// metadata so the bucket copy can be checked against the manifest
// without downloading it.
type EvidenceUploader struct {
	Bucket string
	Logger *logging.Logger
	client *minio.Client
}

// NewEvidenceUploader returns an uploader for bucket on host. Bucket
// lookup is by path, and the region is fixed so the client doesn't
// ask the server for the bucket location before each upload.
func NewEvidenceUploader(host, keyID, secretKey string, useSSL bool, bucket string, log *logging.Logger) (*EvidenceUploader, error) {
	client, err := minio.New(
		host,
		&minio.Options{
			Creds:        credentials.NewStaticV4(keyID, secretKey, ""),
			Secure:       useSSL,
			Region:       "us-east-1",
			BucketLookup: minio.BucketLookupPath,
		})
	if err != nil {
		return nil, err
	}
	return &EvidenceUploader{
		Bucket: bucket,
		Logger: log,
		client: client,
	}, nil
}

// UploadFile copies the file at filePath to key in the evidence bucket.
func (u *EvidenceUploader) UploadFile(ctx context.Context, filePath, key string) (*UploadedObject, error) {
	checksum, size, err := fileSha256(filePath)
	if err != nil {
		return nil, err
	}
	opts := minio.PutObjectOptions{
		ContentType:  contentTypeFor(filePath),
		UserMetadata: map[string]string{"sha256": checksum},
	}
	if u.Logger != nil {
		opts.Progress = logger.NewUploadProgressLogger(u.Logger, key, size)
	}
	_, err = u.client.FPutObject(ctx, u.Bucket, key, filePath, opts)
	if err != nil {
		return nil, fmt.Errorf("Upload %s to %s/%s: %v", filePath, u.Bucket, key, err)
	}
	if u.Logger != nil {
		u.Logger.Infof("Uploaded %s to %s/%s (%d bytes)", filePath, u.Bucket, key, size)
	}
	return &UploadedObject{Key: key, Sha256: checksum, Size: size}, nil
}

// UploadPackage copies every regular file under packageDir to the
// evidence bucket. Keys are prefix/<package dir name>/<relative path>.
// It stops at the first failure and returns what was uploaded so far.
func (u *EvidenceUploader) UploadPackage(ctx context.Context, packageDir, prefix string) ([]*UploadedObject, error) {
	files := make([]string, 0)
	err := filepath.WalkDir(packageDir, func(filePath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, filePath)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Cannot read package %s: %v", packageDir, err)
	}
	sort.Strings(files)
	base := filepath.Base(packageDir)
	uploaded := make([]*UploadedObject, 0, len(files))
	for _, filePath := range files {
		if err = ctx.Err(); err != nil {
			return uploaded, err
		}
		relPath, _ := filepath.Rel(packageDir, filePath)
		key := path.Join(prefix, base, filepath.ToSlash(relPath))
		obj, err := u.UploadFile(ctx, filePath, key)
		if err != nil {
			return uploaded, err
		}
		uploaded = append(uploaded, obj)
	}
	return uploaded, nil
}

// StatObject returns the size and stored SHA-256 of key.
func (u *EvidenceUploader) StatObject(ctx context.Context, key string) (int64, string, error) {
	info, err := u.client.StatObject(ctx, u.Bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return 0, "", err
	}
	for name, value := range info.UserMetadata {
		if strings.EqualFold(name, "sha256") {
			return info.Size, value, nil
		}
	}
	return info.Size, "", nil
}

func fileSha256(filePath string) (string, int64, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	hash := sha256.New()
	size, err := io.Copy(hash, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(hash.Sum(nil)), size, nil
}

func contentTypeFor(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".json":
		return "application/json"
	case ".txt":
		return "text/plain"
	case ".mov":
		return "video/quicktime"
	case ".mp4":
		return "video/mp4"
	}
	return "application/octet-stream"
}
