package blobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FSBlobStore keeps blobs on local disk under root. Keys are slash-separated
// paths relative to root ("slips/2024/05/<uuid>.pdf"); each blob has a
// ".meta.json" sidecar holding its metadata.
type FSBlobStore struct {
	root   string
	prefix string
	policy Policy
}

func NewFSBlobStore(root, prefix string, policy Policy) (*FSBlobStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &FSBlobStore{root: abs, prefix: strings.Trim(prefix, "/"), policy: policy}, nil
}

func (s *FSBlobStore) Put(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	c, err := s.policy.check(meta, content)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	key := fmt.Sprintf("%s/%s/%s%s", s.prefix, now.Format("2006/01"), uuid.NewString(), c.ext)
	key = strings.TrimPrefix(key, "/")

	meta.Key = key
	meta.ContentType = c.contentType
	meta.Size = int64(len(c.data))
	meta.Hash = c.hash
	meta.CreatedAt = now

	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}

	// Write to a temp file and rename so readers never see a partial blob.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, c.data, 0o640); err != nil {
		return nil, fmt.Errorf("write blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("commit blob: %w", err)
	}

	sidecar, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode blob metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta.json", sidecar, 0o640); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("write blob metadata: %w", err)
	}

	out := meta
	return &out, nil
}

func (s *FSBlobStore) Open(_ context.Context, key string) (io.ReadCloser, *BlobMetadata, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, nil, err
	}

	raw, err := os.ReadFile(path + ".meta.json")
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read blob metadata: %w", err)
	}
	var meta BlobMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, nil, fmt.Errorf("decode blob metadata: %w", err)
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open blob: %w", err)
	}
	return f, &meta, nil
}

func (s *FSBlobStore) Delete(_ context.Context, key string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); errors.Is(err, fs.ErrNotExist) {
		return ErrBlobNotFound
	} else if err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	os.Remove(path + ".meta.json")
	return nil
}

// resolve maps a key to a path, refusing anything that escapes root.
func (s *FSBlobStore) resolve(key string) (string, error) {
	if key == "" || strings.Contains(key, "\\") || filepath.IsAbs(key) {
		return "", ErrBlobNotFound
	}
	path := filepath.Join(s.root, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", ErrBlobNotFound
	}
	return path, nil
}
