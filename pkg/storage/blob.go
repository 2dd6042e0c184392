package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dshills/progrev/pkg/domain/revision"
	"github.com/dshills/progrev/pkg/domain/types"
)

// FilesystemBlobStore implements revision.BlobStore using content-addressed
// files on disk. Blobs live under <baseDir>/<first two hash chars>/<hash>,
// so identical content is stored once and the ref doubles as an integrity
// check.
type FilesystemBlobStore struct {
	baseDir string
}

var _ revision.BlobStore = (*FilesystemBlobStore)(nil)

// NewFilesystemBlobStore creates a blob store rooted at ~/.progrev/blobs.
func NewFilesystemBlobStore() (*FilesystemBlobStore, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}
	return NewFilesystemBlobStoreWithPath(filepath.Join(homeDir, ".progrev", "blobs"))
}

// NewFilesystemBlobStoreWithPath creates a blob store rooted at a custom
// directory. Useful for testing.
func NewFilesystemBlobStoreWithPath(baseDir string) (*FilesystemBlobStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &FilesystemBlobStore{baseDir: baseDir}, nil
}

// Put stores content and returns its content-addressed ref. Storing the
// same bytes twice returns the same ref without rewriting the file.
func (s *FilesystemBlobStore) Put(ctx context.Context, content []byte) (types.ContentRef, error) {
	sum := sha256.Sum256(content)
	ref := types.ContentRef(hex.EncodeToString(sum[:]))

	blobPath := s.blobPath(ref)
	if _, err := os.Stat(blobPath); err == nil {
		return ref, nil
	}

	if err := os.MkdirAll(filepath.Dir(blobPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create blob shard directory: %w", err)
	}

	// Write atomically using a temp file + rename
	tempPath := blobPath + ".tmp"
	if err := os.WriteFile(tempPath, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := os.Rename(tempPath, blobPath); err != nil {
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("failed to store blob: %w", err)
	}

	return ref, nil
}

// Get retrieves the content for a ref.
func (s *FilesystemBlobStore) Get(ctx context.Context, ref types.ContentRef) ([]byte, error) {
	if ref == "" {
		return nil, fmt.Errorf("content ref cannot be empty")
	}

	content, err := os.ReadFile(s.blobPath(ref))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("blob not found: %s", ref)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}

	return content, nil
}

// Delete removes the content for a ref. Deleting an unknown ref is not an
// error; revision deletion must stay idempotent at the blob level.
func (s *FilesystemBlobStore) Delete(ctx context.Context, ref types.ContentRef) error {
	if ref == "" {
		return fmt.Errorf("content ref cannot be empty")
	}

	err := os.Remove(s.blobPath(ref))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// blobPath returns the sharded filesystem path for a ref.
func (s *FilesystemBlobStore) blobPath(ref types.ContentRef) string {
	name := ref.String()
	shard := "00"
	if len(name) >= 2 {
		shard = name[:2]
	}
	return filepath.Join(s.baseDir, shard, name)
}
