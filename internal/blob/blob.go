// Package blob хранит изображения сообщений и аватаров на диске и отдаёт их по URL.
// Файлы лежат сжатыми (.gz), имя — uuid + расширение по сигнатуре содержимого.
package blob

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmchat/internal/logger"
)

var (
	ErrNotImage = errors.New("content is not a supported image")
	ErrTooLarge = errors.New("image too large")
	ErrNotFound = errors.New("image not found")
)

const routePrefix = "/api/images/"

type Store struct {
	dir     string
	baseURL string
	maxSize int64
}

// New — dir: каталог загрузок; baseURL: внешний адрес API ("" — относительные URL); maxSize в байтах.
func New(dir, baseURL string, maxSize int64) *Store {
	return &Store{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/"), maxSize: maxSize}
}

// UploadDataURL принимает картинку как "data:image/png;base64,...." (или голый base64).
func (s *Store) UploadDataURL(ctx context.Context, dataURL string) (string, error) {
	raw := dataURL
	if strings.HasPrefix(raw, "data:") {
		idx := strings.Index(raw, ",")
		if idx < 0 || !strings.Contains(raw[:idx], ";base64") {
			return "", ErrNotImage
		}
		raw = raw[idx+1:]
	}
	if int64(base64.StdEncoding.DecodedLen(len(raw))) > s.maxSize+3 {
		return "", ErrTooLarge
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", ErrNotImage
	}
	return s.Upload(ctx, data)
}

// Upload сохраняет байты изображения и возвращает URL для чтения.
func (s *Store) Upload(ctx context.Context, data []byte) (string, error) {
	defer logger.DeferLogDuration("blob.Upload", time.Now())()
	if int64(len(data)) > s.maxSize {
		return "", ErrTooLarge
	}
	ext := sniffExt(data)
	if ext == "" {
		return "", ErrNotImage
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("blob mkdir: %w", err)
	}
	name := uuid.New().String() + ext
	dstPath := filepath.Join(s.dir, name+".gz")
	if err := writeGzip(dstPath, data); err != nil {
		os.Remove(dstPath)
		return "", fmt.Errorf("blob write: %w", err)
	}
	return s.baseURL + routePrefix + name, nil
}

func writeGzip(path string, data []byte) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(dst)
	if _, err := gz.Write(data); err != nil {
		gz.Close()
		dst.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// Open returns the decompressed image and its content type.
func (s *Store) Open(name string) (io.ReadCloser, string, error) {
	name = filepath.Base(name)
	ct := contentTypeByExt(filepath.Ext(name))
	if ct == "" {
		return nil, "", ErrNotFound
	}
	f, err := os.Open(filepath.Join(s.dir, name+".gz"))
	if err != nil {
		return nil, "", ErrNotFound
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, "", fmt.Errorf("blob open %s: %w", name, err)
	}
	return &gzFile{Reader: gz, f: f}, ct, nil
}

type gzFile struct {
	*gzip.Reader
	f *os.File
}

func (g *gzFile) Close() error {
	g.Reader.Close()
	return g.f.Close()
}

// Serve — GET /api/images/{name}.
func (s *Store) Serve(w http.ResponseWriter, r *http.Request, name string) {
	rc, ct, err := s.Open(name)
	if err != nil {
		http.Error(w, "image not found", http.StatusNotFound)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		logger.Errorf("blob serve %s: %v", name, err)
	}
}

func sniffExt(head []byte) string {
	switch {
	case len(head) >= 3 && head[0] == 0xFF && head[1] == 0xD8 && head[2] == 0xFF:
		return ".jpg"
	case len(head) >= 8 && bytes.Equal(head[:8], []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}):
		return ".png"
	case len(head) >= 6 && (bytes.Equal(head[:6], []byte("GIF87a")) || bytes.Equal(head[:6], []byte("GIF89a"))):
		return ".gif"
	case len(head) >= 12 && bytes.Equal(head[:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WEBP")):
		return ".webp"
	}
	return ""
}

func contentTypeByExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	}
	return ""
}
