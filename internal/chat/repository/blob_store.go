package repository

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"chat_room_client/pkg/database"
)

// ObjectRef reference of an uploaded object
type ObjectRef struct {
	Path string
}

// BlobStore image storage, path 需唯一避免覆寫
type BlobStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (ObjectRef, error)
	DownloadURL(ctx context.Context, ref ObjectRef) (string, error)
}

type minioBlobStore struct {
	client *database.MinIOClient
}

// NewMinIOBlobStore blob store over a minio bucket
func NewMinIOBlobStore(client *database.MinIOClient) BlobStore {
	return &minioBlobStore{client: client}
}

func (s *minioBlobStore) Upload(ctx context.Context, path string, data []byte, contentType string) (ObjectRef, error) {
	if err := s.client.PutBytes(ctx, path, data, contentType); err != nil {
		return ObjectRef{}, err
	}
	return ObjectRef{Path: path}, nil
}

func (s *minioBlobStore) DownloadURL(ctx context.Context, ref ObjectRef) (string, error) {
	return s.client.ObjectURL(ctx, ref.Path)
}

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryBlobStore in-process blob store, objects are served by the gateway under baseURL
type MemoryBlobStore struct {
	baseURL string

	mu      sync.RWMutex
	objects map[string]memoryObject
}

// NewMemoryBlobStore baseURL e.g. http://localhost:8080/blobs
func NewMemoryBlobStore(baseURL string) *MemoryBlobStore {
	return &MemoryBlobStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string]memoryObject),
	}
}

// Upload implements BlobStore
func (s *MemoryBlobStore) Upload(ctx context.Context, path string, data []byte, contentType string) (ObjectRef, error) {
	if path == "" {
		return ObjectRef{}, fmt.Errorf("upload: empty path")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = memoryObject{data: append([]byte(nil), data...), contentType: contentType}
	return ObjectRef{Path: path}, nil
}

// DownloadURL implements BlobStore
func (s *MemoryBlobStore) DownloadURL(ctx context.Context, ref ObjectRef) (string, error) {
	s.mu.RLock()
	_, ok := s.objects[ref.Path]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("download url %s: %w", ref.Path, ErrNotFound)
	}
	parts := strings.Split(ref.Path, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return s.baseURL + "/" + strings.Join(parts, "/"), nil
}

// Object stored bytes and content type
func (s *MemoryBlobStore) Object(path string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[path]
	if !ok {
		return nil, "", false
	}
	return o.data, o.contentType, true
}
