// Package objectstore uploads run artifacts to S3-compatible buckets.
package objectstore

import "context"

// Store writes artifacts. Implementations must be safe for concurrent use.
type Store interface {
	PutBytes(ctx context.Context, bucket, key string, raw []byte, meta Metadata) (ObjectInfo, error)
	PutFile(ctx context.Context, bucket, key, path string, meta Metadata) (ObjectInfo, error)
}

// Metadata is attached to every uploaded artifact.
type Metadata struct {
	ContentType string
	RunID       string
	// Stage is the pipeline stage an artifact came from, empty for the
	// module and the report.
	Stage string
}

func (m Metadata) userMetadata() map[string]string {
	out := map[string]string{}
	if m.RunID != "" {
		out["run-id"] = m.RunID
	}
	if m.Stage != "" {
		out["stage"] = m.Stage
	}
	return out
}

type ObjectInfo struct {
	Bucket string
	Key    string
	Size   int64
	ETag   string
}
