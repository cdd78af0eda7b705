package blob

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 13}

func nameFromURL(t *testing.T, url string) string {
	t.Helper()
	idx := strings.Index(url, routePrefix)
	require.GreaterOrEqual(t, idx, 0, url)
	return url[idx+len(routePrefix):]
}

func TestUpload_RoundTrip(t *testing.T) {
	s := New(t.TempDir(), "http://cdn.local/", 1<<20)
	data := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte("x"), 500)...)

	url, err := s.Upload(context.Background(), data)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://cdn.local/api/images/"))
	assert.True(t, strings.HasSuffix(url, ".png"))

	rc, ct, err := s.Open(nameFromURL(t, url))
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)
	assert.Equal(t, data, got)
}

func TestUploadDataURL(t *testing.T) {
	s := New(t.TempDir(), "", 1<<20)
	gif := []byte("GIF89a-rest-of-image")
	enc := base64.StdEncoding.EncodeToString(gif)

	tests := []struct {
		name    string
		input   string
		wantErr error
		ext     string
	}{
		{"data url", "data:image/gif;base64," + enc, nil, ".gif"},
		{"bare base64", enc, nil, ".gif"},
		{"not base64 data url", "data:image/gif," + enc, ErrNotImage, ""},
		{"garbage", "!!!", ErrNotImage, ""},
		{"text payload", "data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte("hello")), ErrNotImage, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url, err := s.UploadDataURL(context.Background(), tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(url, "/api/images/"))
			assert.True(t, strings.HasSuffix(url, tt.ext))
		})
	}
}

func TestUpload_TooLarge(t *testing.T) {
	s := New(t.TempDir(), "", 16)
	data := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte("x"), 64)...)

	_, err := s.Upload(context.Background(), data)
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = s.UploadDataURL(context.Background(), base64.StdEncoding.EncodeToString(data))
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestOpen_RejectsUnknownAndTraversal(t *testing.T) {
	s := New(t.TempDir(), "", 1<<20)
	for _, name := range []string{"missing.png", "../../etc/passwd", "file.exe"} {
		_, _, err := s.Open(name)
		assert.ErrorIs(t, err, ErrNotFound, name)
	}
}

func TestServe(t *testing.T) {
	s := New(t.TempDir(), "", 1<<20)
	url, err := s.Upload(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0xE0, 1, 2, 3})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.Serve(rec, httptest.NewRequest(http.MethodGet, url, nil), nameFromURL(t, url))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0xE0, 1, 2, 3}, rec.Body.Bytes())

	rec = httptest.NewRecorder()
	s.Serve(rec, httptest.NewRequest(http.MethodGet, "/api/images/nope.jpg", nil), "nope.jpg")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
