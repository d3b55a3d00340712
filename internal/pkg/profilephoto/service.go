package profilephoto

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/ManuelReschke/PhotoShrink/internal/pkg/compressor"
	"github.com/ManuelReschke/PhotoShrink/internal/pkg/shortener"
	"github.com/ManuelReschke/PhotoShrink/internal/pkg/storage"
	"github.com/ManuelReschke/PhotoShrink/internal/pkg/upload"
)

const (
	DefaultMaxConcurrent = 3
	DefaultQueueTimeout  = 30 * time.Second
)

// sniffLen matches the number of bytes mimetype inspects.
const sniffLen = 3072

var (
	ErrInvalidOwnerID = errors.New("user id and temp id may only contain letters, digits, '-' and '_'")
	ErrStorage        = errors.New("failed to store photo")
	ErrBusy           = errors.New("too many photos are being compressed, try again later")
)

var ownerIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// UploadRequest is one photo to compress and store. Either UserID, TempID
// or neither may be set; with neither a temp id is generated.
type UploadRequest struct {
	UploadID    string
	UserID      string
	TempID      string
	FileName    string
	ContentType string
	Body        io.Reader
}

type UploadResult struct {
	UploadID       string  `json:"upload_id"`
	URL            string  `json:"url"`
	Key            string  `json:"key"`
	TempID         string  `json:"temp_id,omitempty"`
	OriginalSize   int64   `json:"original_size"`
	CompressedSize int64   `json:"compressed_size"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Quality        float64 `json:"quality"`
	Attempts       int     `json:"attempts"`
	Message        string  `json:"message"`
}

// Service compresses profile photos and puts them into an object store.
type Service struct {
	compressor   *compressor.Compressor
	store        storage.ObjectStore
	tracker      Tracker
	throttle     chan struct{}
	queueTimeout time.Duration
	now          func() time.Time
}

type Option func(*Service)

func WithTracker(t Tracker) Option {
	return func(s *Service) {
		if t != nil {
			s.tracker = t
		}
	}
}

// WithMaxConcurrent limits how many images are decoded at once.
func WithMaxConcurrent(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.throttle = make(chan struct{}, n)
		}
	}
}

// WithQueueTimeout bounds how long a request waits for a free compression
// slot. Zero waits as long as the caller's context allows.
func WithQueueTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.queueTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(c *compressor.Compressor, store storage.ObjectStore, opts ...Option) *Service {
	s := &Service{
		compressor:   c,
		store:        store,
		tracker:      nopTracker{},
		throttle:     make(chan struct{}, DefaultMaxConcurrent),
		queueTimeout: DefaultQueueTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upload validates, compresses and stores one photo. The original bytes are
// never stored: any failure is returned and the upload is marked failed.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if req.UploadID == "" {
		req.UploadID = uuid.NewString()
	}

	fail := func(err error) (*UploadResult, error) {
		s.tracker.SetStatus(ctx, req.UploadID, StatusFailed, err.Error())
		s.tracker.RecordFailure(ctx)
		log.Errorf("[ProfilePhoto] Upload %s failed: %v", req.UploadID, err)
		return nil, err
	}

	if err := upload.ValidateDeclaredType(req.ContentType); err != nil {
		return fail(err)
	}
	if err := validateOwnerIDs(req.UserID, req.TempID); err != nil {
		return fail(err)
	}

	maxBytes := s.compressor.Config().MaxSourceBytes
	data, err := io.ReadAll(io.LimitReader(req.Body, maxBytes+1))
	if err != nil {
		return fail(&compressor.ReadError{Err: err})
	}
	if int64(len(data)) > maxBytes {
		return fail(&compressor.ReadError{Err: fmt.Errorf("%w (%d bytes)", compressor.ErrSourceTooLarge, maxBytes)})
	}
	if len(data) == 0 {
		return fail(&compressor.DecodeError{Err: compressor.ErrEmptySource})
	}
	if _, err := upload.ValidateImageBySniff(req.FileName, data[:min(len(data), sniffLen)]); err != nil {
		return fail(err)
	}

	s.tracker.SetStatus(ctx, req.UploadID, StatusCompressing, compressingMessage(int64(len(data))))

	res, err := s.compress(ctx, data)
	if err != nil {
		return fail(err)
	}
	message := compressedMessage(res.SourceSize, res.Size())

	key, tempID, err := s.objectKey(req)
	if err != nil {
		return fail(err)
	}

	s.tracker.SetStatus(ctx, req.UploadID, StatusUploading, message)
	put, err := s.store.Put(ctx, key, bytes.NewReader(res.Data), res.Size(), res.ContentType)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrStorage, err))
	}

	s.tracker.RecordCompression(ctx, res)
	s.tracker.SetStatus(ctx, req.UploadID, StatusCompleted, message)
	log.Infof("[ProfilePhoto] Stored %s via %s (%d -> %d bytes)", put.Key, s.store.Name(), res.SourceSize, res.Size())

	return &UploadResult{
		UploadID:       req.UploadID,
		URL:            put.URL,
		Key:            put.Key,
		TempID:         tempID,
		OriginalSize:   res.SourceSize,
		CompressedSize: res.Size(),
		Width:          res.Width,
		Height:         res.Height,
		Quality:        res.Quality,
		Attempts:       len(res.Attempts),
		Message:        message,
	}, nil
}

// Compress runs only the compressor, bounded by the same throttle as Upload.
func (s *Service) Compress(ctx context.Context, r io.Reader) (*compressor.Result, error) {
	maxBytes := s.compressor.Config().MaxSourceBytes
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, &compressor.ReadError{Err: err}
	}
	if int64(len(data)) > maxBytes {
		return nil, &compressor.ReadError{Err: fmt.Errorf("%w (%d bytes)", compressor.ErrSourceTooLarge, maxBytes)}
	}
	return s.compress(ctx, data)
}

func (s *Service) compress(ctx context.Context, data []byte) (*compressor.Result, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer func() { <-s.throttle }()

	return s.compressor.CompressBytes(data)
}

// acquire takes a compression slot. A caller that gives up gets its own
// context error; running out of queue time gives ErrBusy.
func (s *Service) acquire(ctx context.Context) error {
	waitCtx := ctx
	if s.queueTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.queueTimeout)
		defer cancel()
	}

	select {
	case s.throttle <- struct{}{}:
		return nil
	case <-waitCtx.Done():
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Warnf("[ProfilePhoto] No compression slot free after %s", s.queueTimeout)
		return fmt.Errorf("%w: %w", ErrBusy, waitCtx.Err())
	}
}

// Remove deletes a previously uploaded photo. URLs that do not belong to the
// store are left alone and delete errors are only logged. It reports whether
// an object was deleted.
func (s *Service) Remove(ctx context.Context, photoURL string) bool {
	photoURL = strings.TrimSpace(photoURL)
	if photoURL == "" {
		return false
	}

	key, ok := s.store.KeyFromURL(photoURL)
	if !ok {
		log.Infof("[ProfilePhoto] Ignoring photo outside %s storage: %s", s.store.Name(), photoURL)
		return false
	}

	if err := s.store.Delete(ctx, key); err != nil {
		log.Warnf("[ProfilePhoto] Could not delete %s: %v", key, err)
		return false
	}
	log.Infof("[ProfilePhoto] Removed %s", key)
	return true
}

// objectKey derives where the photo is stored. The second return value is
// the temp id when one was generated.
func (s *Service) objectKey(req UploadRequest) (string, string, error) {
	name := upload.JPEGFileName(req.FileName)
	now := s.now()

	switch {
	case req.UserID != "":
		return fmt.Sprintf("profile-photos/%s/%d_%s", req.UserID, now.UnixMilli(), name), "", nil
	case req.TempID != "":
		return fmt.Sprintf("pending-profile-photos/%s/%d_%s", req.TempID, now.UnixMilli(), name), req.TempID, nil
	default:
		tempID, err := shortener.TempID(now)
		if err != nil {
			return "", "", err
		}
		return fmt.Sprintf("pending-profile-photos/%s/%s", tempID, name), tempID, nil
	}
}

func validateOwnerIDs(ids ...string) error {
	for _, id := range ids {
		if id != "" && !ownerIDPattern.MatchString(id) {
			return ErrInvalidOwnerID
		}
	}
	return nil
}

func compressingMessage(size int64) string {
	return fmt.Sprintf("Compressing %.0fKB image...", float64(size)/1024)
}

// compressedMessage is empty when compression did not make the photo smaller.
func compressedMessage(before, after int64) string {
	beforeKB := float64(before) / 1024
	afterKB := float64(after) / 1024
	if beforeKB <= afterKB {
		return ""
	}
	return fmt.Sprintf("Compressed: %.0fKB → %.0fKB", beforeKB, afterKB)
}
