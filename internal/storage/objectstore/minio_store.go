package objectstore

import (
	"bytes"
	"context"
	"errors"

	"github.com/minio/minio-go/v7"

	platformstore "github.com/animus-labs/whlobf/internal/platform/objectstore"
)

var errNotInitialized = errors.New("minio store not initialized")

type MinioStore struct {
	client *minio.Client
}

func NewMinioStore(cfg platformstore.Config) (*MinioStore, error) {
	client, err := platformstore.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &MinioStore{client: client}, nil
}

func NewMinioStoreWithClient(client *minio.Client) (*MinioStore, error) {
	if client == nil {
		return nil, errors.New("minio client is required")
	}
	return &MinioStore{client: client}, nil
}

// Client exposes the underlying client for bucket setup.
func (s *MinioStore) Client() *minio.Client {
	if s == nil {
		return nil
	}
	return s.client
}

func (s *MinioStore) PutBytes(ctx context.Context, bucket, key string, raw []byte, meta Metadata) (ObjectInfo, error) {
	if s == nil || s.client == nil {
		return ObjectInfo{}, errNotInitialized
	}
	info, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(raw), int64(len(raw)), putOptions(meta))
	if err != nil {
		return ObjectInfo{}, err
	}
	return fromUpload(info), nil
}

func (s *MinioStore) PutFile(ctx context.Context, bucket, key, path string, meta Metadata) (ObjectInfo, error) {
	if s == nil || s.client == nil {
		return ObjectInfo{}, errNotInitialized
	}
	info, err := s.client.FPutObject(ctx, bucket, key, path, putOptions(meta))
	if err != nil {
		return ObjectInfo{}, err
	}
	return fromUpload(info), nil
}

func putOptions(meta Metadata) minio.PutObjectOptions {
	return minio.PutObjectOptions{
		ContentType:  meta.ContentType,
		UserMetadata: meta.userMetadata(),
	}
}

func fromUpload(info minio.UploadInfo) ObjectInfo {
	return ObjectInfo{Bucket: info.Bucket, Key: info.Key, Size: info.Size, ETag: info.ETag}
}
