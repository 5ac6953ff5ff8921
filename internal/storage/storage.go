// Package storage persists uploaded receipt images on local disk and hands
// back the /uploads URL recorded on the receipt row.
package storage

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smartreceipt/smartreceipt/internal/config"
)

type Store interface {
	// Save writes the image and returns its public URL path.
	Save(ctx context.Context, fileName string, data []byte) (string, error)

	// Remove deletes a previously saved file by its URL. A missing file is
	// not an error; the receipt it belonged to is already gone.
	Remove(ctx context.Context, fileURL string) error
}

type LocalStore struct {
	log *zap.Logger
	dir string
}

func NewLocalStore(cfg config.Config, log *zap.Logger) (Store, error) {
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{
		log: log.Named("storage.local"),
		dir: cfg.UploadDir,
	}, nil
}

func (s *LocalStore) Save(_ context.Context, fileName string, data []byte) (string, error) {
	// Prefix with a uuid so concurrent uploads of the same filename never
	// collide.
	unique := uuid.NewString() + "_" + filepath.Base(fileName)
	if err := os.WriteFile(filepath.Join(s.dir, unique), data, 0o644); err != nil {
		return "", err
	}

	fileURL := "/uploads/" + unique
	s.log.Info("file stored",
		zap.String("file_name", fileName),
		zap.String("url", fileURL),
		zap.Int("size_bytes", len(data)),
	)
	return fileURL, nil
}

func (s *LocalStore) Remove(_ context.Context, fileURL string) error {
	name := path.Base(fileURL)
	if name == "." || name == "/" {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
