package profilephoto

import (
	"context"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PhotoShrink/internal/pkg/compressor"
	"github.com/ManuelReschke/PhotoShrink/internal/pkg/metrics/counter"
)

// Tracker receives progress of uploads. Implementations must not fail the
// upload, so the methods return nothing.
type Tracker interface {
	SetStatus(ctx context.Context, uploadID, state, message string)
	RecordCompression(ctx context.Context, res *compressor.Result)
	RecordFailure(ctx context.Context)
}

// RedisTracker writes status keys and counters to the shared cache.
type RedisTracker struct{}

func (RedisTracker) SetStatus(ctx context.Context, uploadID, state, message string) {
	if err := SetStatus(ctx, uploadID, state, message); err != nil {
		log.Warnf("[ProfilePhoto] Failed to set status %s for %s: %v", state, uploadID, err)
	}
}

func (RedisTracker) RecordCompression(ctx context.Context, res *compressor.Result) {
	if err := counter.AddCompression(ctx, res.SourceSize, res.Size(), len(res.Attempts)); err != nil {
		log.Warnf("[ProfilePhoto] Failed to update counters: %v", err)
	}
}

func (RedisTracker) RecordFailure(ctx context.Context) {
	if err := counter.AddFailure(ctx); err != nil {
		log.Warnf("[ProfilePhoto] Failed to update counters: %v", err)
	}
}

type nopTracker struct{}

func (nopTracker) SetStatus(context.Context, string, string, string)    {}
func (nopTracker) RecordCompression(context.Context, *compressor.Result) {}
func (nopTracker) RecordFailure(context.Context)                        {}
