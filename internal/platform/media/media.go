// Package media stores uploaded profile images and returns the URL they are
// served from. Doctor and user records keep only that URL.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrEmptyFile          = errors.New("file is empty")
	ErrNotFound           = errors.New("media not found")
)

// MaxImageSize is the largest accepted upload (5 MB).
const MaxImageSize = 5 * 1024 * 1024

// allowedImageTypes maps accepted sniffed content types to file extensions.
var allowedImageTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Store persists an image under folder and returns its public URL. Delete
// removes a previously saved URL; deleting an unknown URL is not an error.
type Store interface {
	Save(ctx context.Context, folder string, content io.Reader) (string, error)
	Delete(ctx context.Context, url string) error
}

// readImage reads at most MaxImageSize bytes and sniffs the content type.
func readImage(content io.Reader) ([]byte, string, error) {
	data, err := io.ReadAll(io.LimitReader(content, MaxImageSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, "", ErrEmptyFile
	}
	if len(data) > MaxImageSize {
		return nil, "", ErrFileTooLarge
	}
	ct := http.DetectContentType(data)
	ext, ok := allowedImageTypes[ct]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrInvalidContentType, ct)
	}
	return data, ext, nil
}

func cleanFolder(folder string) string {
	folder = strings.Trim(path.Clean("/"+folder), "/")
	if folder == "" || folder == "." {
		return "misc"
	}
	return folder
}

// SaveFormFile stores a multipart upload.
func SaveFormFile(ctx context.Context, store Store, folder string, fh *multipart.FileHeader) (string, error) {
	if fh.Size > MaxImageSize {
		return "", ErrFileTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	return store.Save(ctx, folder, f)
}

// LocalStore writes files below a directory that the HTTP server exposes
// under baseURL.
type LocalStore struct {
	dir     string
	baseURL string
}

func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *LocalStore) Dir() string { return s.dir }

func (s *LocalStore) Save(ctx context.Context, folder string, content io.Reader) (string, error) {
	data, ext, err := readImage(content)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	folder = cleanFolder(folder)
	if err := os.MkdirAll(filepath.Join(s.dir, filepath.FromSlash(folder)), 0o755); err != nil {
		return "", fmt.Errorf("create media folder: %w", err)
	}
	name := uuid.NewString() + ext
	dest := filepath.Join(s.dir, filepath.FromSlash(folder), name)
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("write media: %w", err)
	}
	return s.baseURL + "/" + folder + "/" + name, nil
}

// Delete removes the file behind url. URLs outside baseURL are rejected.
func (s *LocalStore) Delete(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rel, ok := strings.CutPrefix(url, s.baseURL+"/")
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, url)
	}
	rel = path.Clean("/" + rel)[1:]
	if rel == "" {
		return fmt.Errorf("%w: %s", ErrNotFound, url)
	}
	err := os.Remove(filepath.Join(s.dir, filepath.FromSlash(rel)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete media: %w", err)
	}
	return nil
}

// MemoryStore keeps uploads in memory for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	baseURL string
	files   map[string][]byte
}

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{baseURL: strings.TrimRight(baseURL, "/"), files: make(map[string][]byte)}
}

func (s *MemoryStore) Save(_ context.Context, folder string, content io.Reader) (string, error) {
	data, ext, err := readImage(content)
	if err != nil {
		return "", err
	}
	url := s.baseURL + "/" + cleanFolder(folder) + "/" + uuid.NewString() + ext

	s.mu.Lock()
	s.files[url] = data
	s.mu.Unlock()
	return url, nil
}

func (s *MemoryStore) Delete(_ context.Context, url string) error {
	s.mu.Lock()
	delete(s.files, url)
	s.mu.Unlock()
	return nil
}

// Open returns the content stored under url.
func (s *MemoryStore) Open(url string) (io.Reader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.files[url]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.NewReader(data), nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}
