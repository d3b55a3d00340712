package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/disintegration/imaging"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/PhotoShrink/internal/pkg/cache"
	"github.com/ManuelReschke/PhotoShrink/internal/pkg/compressor"
	"github.com/ManuelReschke/PhotoShrink/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/PhotoShrink/internal/pkg/profilephoto"
	"github.com/ManuelReschke/PhotoShrink/internal/pkg/storage"
)

func newTestApp(t *testing.T, opts ...profilephoto.Option) (*fiber.App, *storage.MemoryStore) {
	t.Helper()
	c, err := compressor.New(compressor.DefaultConfig())
	require.NoError(t, err)
	store := storage.NewMemoryStore("memory://photos")
	pc := NewProfilePhotoController(profilephoto.NewService(c, store, opts...))

	app := fiber.New()
	app.Post("/compress", pc.HandleCompress)
	app.Post("/profile-photos", pc.HandleUpload)
	app.Delete("/profile-photos", pc.HandleRemove)
	app.Get("/profile-photos/status/:id", pc.HandleStatus)
	app.Get("/stats", HandleStats)
	return app, store
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 30, G: 120, B: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

type filePart struct {
	name        string
	contentType string
	data        []byte
}

func multipartRequest(t *testing.T, method, target string, fields map[string]string, file *filePart) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="photo"; filename="%s"`, file.name))
		header.Set("Content-Type", file.contentType)
		part, err := mw.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(file.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, target, &body)
	req.Header.Set(fiber.HeaderContentType, mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body["error"]
}

func TestHandleCompress(t *testing.T) {
	t.Parallel()
	app, _ := newTestApp(t)
	photo := pngBytes(t, 1200, 600)

	resp, err := app.Test(multipartRequest(t, http.MethodPost, "/compress", nil,
		&filePart{name: "me.png", contentType: "image/png", data: photo}), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get(fiber.HeaderContentType))
	assert.Equal(t, "800", resp.Header.Get(HeaderImageWidth))
	assert.Equal(t, "400", resp.Header.Get(HeaderImageHeight))
	assert.Equal(t, "1", resp.Header.Get(HeaderCompressionAttempts))
	assert.Equal(t, "0.92", resp.Header.Get(HeaderCompressionQuality))
	assert.Equal(t, strconv.Itoa(len(photo)), resp.Header.Get(HeaderOriginalSize))

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8}, data[:2])
}

func TestHandleCompress_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		file       *filePart
		wantStatus int
		wantCode   string
	}{
		{name: "missing photo", file: nil, wantStatus: fiber.StatusBadRequest, wantCode: "bad_request"},
		{
			name:       "not an image",
			file:       &filePart{name: "notes.txt", contentType: "text/plain", data: []byte("hello")},
			wantStatus: fiber.StatusUnsupportedMediaType,
			wantCode:   "unsupported_media_type",
		},
		{
			name:       "corrupt image",
			file:       &filePart{name: "me.jpg", contentType: "image/jpeg", data: []byte("definitely not a jpeg")},
			wantStatus: fiber.StatusUnprocessableEntity,
			wantCode:   "decode_failed",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			app, _ := newTestApp(t)

			resp, err := app.Test(multipartRequest(t, http.MethodPost, "/compress", nil, tc.file), -1)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tc.wantStatus, resp.StatusCode)
			assert.Equal(t, tc.wantCode, decodeError(t, resp))
		})
	}
}

func TestHandleUpload(t *testing.T) {
	t.Parallel()
	app, store := newTestApp(t)

	resp, err := app.Test(multipartRequest(t, http.MethodPost, "/profile-photos",
		map[string]string{"user_id": "u1", "upload_id": "6f1c2b64-5d7e-4c1a-9a55-1f9b7c2d3e4f"},
		&filePart{name: "me.png", contentType: "image/png", data: pngBytes(t, 300, 300)}), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var result profilephoto.UploadResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "6f1c2b64-5d7e-4c1a-9a55-1f9b7c2d3e4f", result.UploadID)
	assert.True(t, strings.HasPrefix(result.Key, "profile-photos/u1/"), result.Key)
	assert.True(t, strings.HasSuffix(result.Key, "_me.jpg"), result.Key)
	assert.Equal(t, "memory://photos/"+result.Key, result.URL)
	assert.Equal(t, 300, result.Width)
	assert.Equal(t, []string{result.Key}, store.Keys())
}

func TestHandleUpload_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		fields     map[string]string
		file       *filePart
		putErr     error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "invalid upload id",
			fields:     map[string]string{"upload_id": "nope"},
			file:       &filePart{name: "me.png", contentType: "image/png", data: []byte("x")},
			wantStatus: fiber.StatusBadRequest,
			wantCode:   "validation_failed",
		},
		{
			name:       "missing photo",
			fields:     map[string]string{"user_id": "u1"},
			wantStatus: fiber.StatusBadRequest,
			wantCode:   "bad_request",
		},
		{
			name:       "html disguised as png",
			file:       &filePart{name: "me.png", contentType: "image/png", data: []byte("<!DOCTYPE html><html><body>hi</body></html>")},
			wantStatus: fiber.StatusUnsupportedMediaType,
			wantCode:   "unsupported_media_type",
		},
		{
			name:       "user id with path separator",
			fields:     map[string]string{"user_id": "a/b"},
			file:       &filePart{name: "me.png", contentType: "image/png", data: []byte("x")},
			wantStatus: fiber.StatusBadRequest,
			wantCode:   "validation_failed",
		},
		{
			name:       "storage failure",
			fields:     map[string]string{"user_id": "u1"},
			putErr:     errors.New("bucket unavailable"),
			wantStatus: fiber.StatusBadGateway,
			wantCode:   "storage_failed",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			app, store := newTestApp(t)
			store.PutErr = tc.putErr

			file := tc.file
			if file == nil && tc.putErr != nil {
				file = &filePart{name: "me.png", contentType: "image/png", data: pngBytes(t, 50, 50)}
			}

			resp, err := app.Test(multipartRequest(t, http.MethodPost, "/profile-photos", tc.fields, file), -1)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tc.wantStatus, resp.StatusCode)
			assert.Equal(t, tc.wantCode, decodeError(t, resp))
		})
	}
}

func TestHandleRemove(t *testing.T) {
	t.Parallel()
	app, store := newTestApp(t)

	_, err := store.Put(context.Background(), "profile-photos/u1/1_me.jpg", bytes.NewReader([]byte("jpeg")), 4, "image/jpeg")
	require.NoError(t, err)

	remove := func(body string) *http.Response {
		req := httptest.NewRequest(http.MethodDelete, "/profile-photos", strings.NewReader(body))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		return resp
	}

	resp := remove(`{"url":"memory://photos/profile-photos/u1/1_me.jpg"}`)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Empty(t, store.Keys())

	resp = remove(`{"url":"https://elsewhere.example.com/x.jpg"}`)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp = remove(`{}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = remove(`{not json`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

// The status and stats handlers read the shared cache client, so these tests
// do not run in parallel.

func TestHandleStatus(t *testing.T) {
	mr := miniredis.RunT(t)
	cache.SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = cache.Close() })

	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/profile-photos/status/unknown", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	require.NoError(t, profilephoto.SetStatus(context.Background(), "abc", profilephoto.StatusCompleted, "Compressed: 900KB → 210KB"))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/profile-photos/status/abc", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var status profilephoto.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, profilephoto.StatusCompleted, status.State)
	assert.Equal(t, "Compressed: 900KB → 210KB", status.Message)
}

func TestHandleStats(t *testing.T) {
	mr := miniredis.RunT(t)
	cache.SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = cache.Close() })

	require.NoError(t, counter.AddCompression(context.Background(), 1000, 400, 2))

	app, _ := newTestApp(t)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/stats", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var snap map[string]int64
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, int64(1), snap[counter.Compressed])
	assert.Equal(t, int64(2), snap[counter.Attempts])
	assert.Equal(t, int64(0), snap[counter.Failed])
}

func TestServiceError_StatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"too many pixels", &compressor.DecodeError{Format: "png", Err: compressor.ErrTooManyPixels}, fiber.StatusUnprocessableEntity, "too_many_pixels"},
		{"undecodable", &compressor.DecodeError{Err: errors.New("bad header")}, fiber.StatusUnprocessableEntity, "decode_failed"},
		{"queue full", fmt.Errorf("%w: %w", profilephoto.ErrBusy, context.DeadlineExceeded), fiber.StatusServiceUnavailable, "busy"},
		{"client gone", context.Canceled, fiber.StatusServiceUnavailable, "busy"},
		{"storage", fmt.Errorf("%w: %w", profilephoto.ErrStorage, errors.New("s3 down")), fiber.StatusBadGateway, "storage_failed"},
		{"source too large", &compressor.ReadError{Err: compressor.ErrSourceTooLarge}, fiber.StatusRequestEntityTooLarge, "too_large"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error { return serviceError(c, tc.err) })

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tc.wantStatus, resp.StatusCode)
			assert.Equal(t, tc.wantCode, decodeError(t, resp))
		})
	}
}
