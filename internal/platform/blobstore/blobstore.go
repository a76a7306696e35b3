// Package blobstore stores uploaded documents such as appointment slips.
package blobstore

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
	ErrEmptyFile          = errors.New("file is empty")
)

// DefaultMaxSize is the upload cap for appointment slips (5 MB).
const DefaultMaxSize = 5 * 1024 * 1024

// DefaultAllowedTypes are the document formats accepted for slips, mapped to
// the extension used when storing them.
var DefaultAllowedTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
}

// BlobMetadata describes a stored blob. Key is the opaque handle persisted by
// callers; it is the only value needed to open the blob again.
type BlobMetadata struct {
	Key         string    `json:"key"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	OwnerID     string    `json:"owner_id,omitempty"`
	Hash        string    `json:"hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   string    `json:"created_by,omitempty"`
}

// BlobStore is the contract for storage backends.
type BlobStore interface {
	Put(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error)
	Open(ctx context.Context, key string) (io.ReadCloser, *BlobMetadata, error)
	Delete(ctx context.Context, key string) error
}

// Policy bounds what Put accepts.
type Policy struct {
	MaxSize      int64
	AllowedTypes map[string]string
}

func DefaultPolicy() Policy {
	return Policy{MaxSize: DefaultMaxSize, AllowedTypes: DefaultAllowedTypes}
}

// checked is the result of reading and vetting an upload.
type checked struct {
	data        []byte
	contentType string
	ext         string
	hash        string
}

// check reads content fully, enforces the size cap and detects the real
// content type from the bytes rather than trusting the client header.
func (p Policy) check(meta BlobMetadata, content io.Reader) (*checked, error) {
	if meta.FileName == "" {
		return nil, ErrMissingFileName
	}

	max := p.MaxSize
	if max <= 0 {
		max = DefaultMaxSize
	}
	data, err := io.ReadAll(io.LimitReader(bufio.NewReader(content), max+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > max {
		return nil, ErrFileTooLarge
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	allowed := p.AllowedTypes
	if allowed == nil {
		allowed = DefaultAllowedTypes
	}
	detected := mimetype.Detect(data)
	var contentType, ext string
	for mt := detected; mt != nil; mt = mt.Parent() {
		if e, ok := allowed[mt.String()]; ok {
			contentType, ext = mt.String(), e
			break
		}
	}
	if contentType == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidContentType, detected.String())
	}

	sum := sha256.Sum256(data)
	return &checked{data: data, contentType: contentType, ext: ext, hash: hex.EncodeToString(sum[:])}, nil
}

type storedBlob struct {
	metadata BlobMetadata
	content  []byte
}

// InMemoryBlobStore is a thread-safe BlobStore for tests and local runs.
type InMemoryBlobStore struct {
	mu     sync.RWMutex
	blobs  map[string]*storedBlob
	policy Policy
}

func NewInMemoryBlobStore(policy Policy) *InMemoryBlobStore {
	return &InMemoryBlobStore{
		blobs:  make(map[string]*storedBlob),
		policy: policy,
	}
}

func (s *InMemoryBlobStore) Put(_ context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	c, err := s.policy.check(meta, content)
	if err != nil {
		return nil, err
	}

	meta.Key = "mem/" + uuid.NewString() + c.ext
	meta.ContentType = c.contentType
	meta.Size = int64(len(c.data))
	meta.Hash = c.hash
	meta.CreatedAt = time.Now().UTC()

	s.mu.Lock()
	s.blobs[meta.Key] = &storedBlob{metadata: meta, content: c.data}
	s.mu.Unlock()

	out := meta
	return &out, nil
}

func (s *InMemoryBlobStore) Open(_ context.Context, key string) (io.ReadCloser, *BlobMetadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrBlobNotFound
	}

	meta := blob.metadata
	return io.NopCloser(bytes.NewReader(blob.content)), &meta, nil
}

func (s *InMemoryBlobStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[key]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, key)
	return nil
}

// Len reports how many blobs are held.
func (s *InMemoryBlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
