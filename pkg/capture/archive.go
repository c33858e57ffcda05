package capture

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ArchiveConfig describes an optional S3-compatible mirror for capture
// files. It is disabled unless Endpoint and Bucket are both set.
type ArchiveConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Archiver mirrors already-written local capture files to an
// S3-compatible bucket on a best-effort basis. It is never consulted
// to decide whether a capture succeeded — the local file is always the
// primary, non-negotiable record.
type Archiver struct {
	mc     *minio.Client
	bucket string
}

// Ref identifies one archived object by location and checksum.
type Ref struct {
	URI      string
	Checksum string
	Size     int64
}

// NewArchiver connects to the configured bucket, creating it if
// necessary. Returns (nil, nil) when archiving is not configured.
func NewArchiver(ctx context.Context, cfg ArchiveConfig) (*Archiver, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, nil
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("capture: archiver connect: %w", err)
	}

	exists, err := mc.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("capture: archiver check bucket: %w", err)
	}
	if !exists {
		if err := mc.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("capture: archiver create bucket: %w", err)
		}
	}

	return &Archiver{mc: mc, bucket: cfg.Bucket}, nil
}

// Mirror uploads one capture file's bytes under its filename. Failures
// are logged, never propagated — a capture that cannot be archived is
// still a capture that was written locally.
func (a *Archiver) Mirror(name string, body []byte) {
	if a == nil || a.mc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sum := sha256.Sum256(body)
	checksum := fmt.Sprintf("sha256:%x", sum)

	info, err := a.mc.PutObject(ctx, a.bucket, name, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		log.Printf("[capture] archive mirror failed for %s: %v", name, err)
		return
	}

	ref := Ref{
		URI:      fmt.Sprintf("s3://%s/%s", a.bucket, name),
		Checksum: checksum,
		Size:     info.Size,
	}
	log.Printf("[capture] archived %s (%s, %d bytes)", ref.URI, ref.Checksum, ref.Size)
}
