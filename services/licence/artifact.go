package licence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/spf13/afero"
)

const ContentTypePDF = "application/pdf"

type StoredArtifact struct {
	Path     string
	Size     int64
	MimeType string
}

// ArtifactStore holds rendered licence documents under a deterministic key.
type ArtifactStore interface {
	Put(ctx context.Context, licenceNo string, data []byte, contentType string) (StoredArtifact, error)
	Get(ctx context.Context, licenceNo string) ([]byte, error)
	Delete(ctx context.Context, licenceNo string) error
	Path(licenceNo string) string
}

func artifactPath(licenceNo string) string {
	return fmt.Sprintf("licences/%s.pdf", licenceNo)
}

type MinioArtifactStore struct {
	client *minio.Client
	bucket string
}

func NewMinioArtifactStore(client *minio.Client, bucket string) *MinioArtifactStore {
	return &MinioArtifactStore{client: client, bucket: bucket}
}

func (s *MinioArtifactStore) Path(licenceNo string) string {
	return artifactPath(licenceNo)
}

func (s *MinioArtifactStore) Put(ctx context.Context, licenceNo string, data []byte, contentType string) (StoredArtifact, error) {
	key := s.Path(licenceNo)
	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return StoredArtifact{}, fmt.Errorf("put object %s: %w", key, err)
	}
	return StoredArtifact{Path: key, Size: info.Size, MimeType: contentType}, nil
}

func (s *MinioArtifactStore) Get(ctx context.Context, licenceNo string) ([]byte, error) {
	key := s.Path(licenceNo)
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrArtifactNotFound
		}
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

func (s *MinioArtifactStore) Delete(ctx context.Context, licenceNo string) error {
	key := s.Path(licenceNo)
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

// FSArtifactStore writes artifacts to an afero filesystem.
type FSArtifactStore struct {
	fs afero.Fs
}

// NewLocalArtifactStore roots the store at dir on the OS filesystem.
func NewLocalArtifactStore(dir string) *FSArtifactStore {
	return NewFSArtifactStore(afero.NewBasePathFs(afero.NewOsFs(), dir))
}

func NewFSArtifactStore(fs afero.Fs) *FSArtifactStore {
	return &FSArtifactStore{fs: fs}
}

func (s *FSArtifactStore) Path(licenceNo string) string {
	return artifactPath(licenceNo)
}

func (s *FSArtifactStore) Put(_ context.Context, licenceNo string, data []byte, contentType string) (StoredArtifact, error) {
	key := s.Path(licenceNo)
	if err := s.fs.MkdirAll(filepath.Dir(key), 0o755); err != nil {
		return StoredArtifact{}, fmt.Errorf("create artifact dir: %w", err)
	}
	if err := afero.WriteFile(s.fs, key, data, 0o644); err != nil {
		return StoredArtifact{}, fmt.Errorf("write artifact %s: %w", key, err)
	}
	return StoredArtifact{Path: key, Size: int64(len(data)), MimeType: contentType}, nil
}

func (s *FSArtifactStore) Get(_ context.Context, licenceNo string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, s.Path(licenceNo))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrArtifactNotFound
		}
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return data, nil
}

func (s *FSArtifactStore) Delete(_ context.Context, licenceNo string) error {
	err := s.fs.Remove(s.Path(licenceNo))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove artifact: %w", err)
	}
	return nil
}
