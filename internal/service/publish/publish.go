// Package publish uploads the artifacts of finished runs to object storage.
package publish

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/animus-labs/whlobf/internal/domain"
	"github.com/animus-labs/whlobf/internal/storage/objectstore"
)

const (
	contentTypeModule = "application/octet-stream"
	contentTypeLog    = "text/plain; charset=utf-8"
	contentTypeReport = "application/json"
)

// Object is one uploaded file.
type Object struct {
	Key    string `json:"key"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// Manifest lists what was uploaded for one run.
type Manifest struct {
	RunID  string   `json:"run_id"`
	Bucket string   `json:"bucket"`
	Module *Object  `json:"module,omitempty"`
	Logs   []Object `json:"logs"`
	Report Object   `json:"report"`
}

// Publisher writes every run under <prefix>/<run_id>/:
//
//	<module file name>
//	logs/<stage>_stdout.txt, logs/<stage>_stderr.txt
//	report.json
type Publisher struct {
	store  objectstore.Store
	bucket string
	prefix string
	logger *slog.Logger
}

func New(store objectstore.Store, bucket, prefix string, logger *slog.Logger) (*Publisher, error) {
	if store == nil {
		return nil, errors.New("object store is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		store:  store,
		bucket: bucket,
		prefix: strings.Trim(strings.TrimSpace(prefix), "/"),
		logger: logger,
	}, nil
}

func (p *Publisher) key(runID string, parts ...string) string {
	elems := append([]string{p.prefix, runID}, parts...)
	return path.Join(elems...)
}

// Publish uploads the compiled module (if any), every stage log that
// exists, and the report itself.
func (p *Publisher) Publish(ctx context.Context, report domain.RunReport) (Manifest, error) {
	runID := strings.TrimSpace(report.RunID)
	if runID == "" {
		return Manifest{}, errors.New("run id is required")
	}
	manifest := Manifest{RunID: runID, Bucket: p.bucket, Logs: []Object{}}

	if report.Output != "" {
		meta := objectstore.Metadata{ContentType: contentTypeModule, RunID: runID}
		obj, err := p.putFile(ctx, report.Output, p.key(runID, filepath.Base(report.Output)), meta)
		if err != nil {
			return Manifest{}, fmt.Errorf("publish module: %w", err)
		}
		manifest.Module = &obj
	}

	for _, stage := range report.Stages {
		meta := objectstore.Metadata{ContentType: contentTypeLog, RunID: runID, Stage: stage.Name}
		for _, logPath := range []string{stage.StdoutPath, stage.StderrPath} {
			if logPath == "" {
				continue
			}
			obj, err := p.putFile(ctx, logPath, p.key(runID, "logs", filepath.Base(logPath)), meta)
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			if err != nil {
				return Manifest{}, fmt.Errorf("publish %s log: %w", stage.Name, err)
			}
			manifest.Logs = append(manifest.Logs, obj)
		}
	}

	blob, err := json.Marshal(report)
	if err != nil {
		return Manifest{}, fmt.Errorf("marshal report: %w", err)
	}
	key := p.key(runID, "report.json")
	if _, err := p.store.PutBytes(ctx, p.bucket, key, blob, objectstore.Metadata{ContentType: contentTypeReport, RunID: runID}); err != nil {
		return Manifest{}, fmt.Errorf("publish report: %w", err)
	}
	sum := sha256.Sum256(blob)
	manifest.Report = Object{Key: key, Size: int64(len(blob)), SHA256: hex.EncodeToString(sum[:])}

	p.logger.Info("run published", "run_id", runID, "bucket", p.bucket, "logs", len(manifest.Logs), "module", manifest.Module != nil)
	return manifest, nil
}

// putFile hashes file and uploads it. A missing file surfaces as
// os.ErrNotExist before anything is uploaded.
func (p *Publisher) putFile(ctx context.Context, file, key string, meta objectstore.Metadata) (Object, error) {
	f, err := os.Open(file)
	if err != nil {
		return Object{}, err
	}
	h := sha256.New()
	size, err := io.Copy(h, f)
	f.Close()
	if err != nil {
		return Object{}, fmt.Errorf("hash %s: %w", file, err)
	}
	if _, err := p.store.PutFile(ctx, p.bucket, key, file, meta); err != nil {
		return Object{}, err
	}
	return Object{Key: key, Size: size, SHA256: hex.EncodeToString(h.Sum(nil))}, nil
}
