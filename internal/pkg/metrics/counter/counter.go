package counter

import (
	"context"
	"strconv"

	"github.com/ManuelReschke/PhotoShrink/internal/pkg/cache"
)

const countersKey = "photo:counters"

// Counter fields kept in the photo:counters hash.
const (
	Compressed = "compressed"
	Failed     = "failed"
	BytesIn    = "bytes_in"
	BytesOut   = "bytes_out"
	Attempts   = "attempts"
)

// Fields lists every counter field in display order.
var Fields = []string{Compressed, Failed, BytesIn, BytesOut, Attempts}

// Add increments a single counter field.
func Add(ctx context.Context, field string, delta int64) error {
	return cache.GetClient().HIncrBy(ctx, countersKey, field, delta).Err()
}

// AddCompression records one successful compression in a single round trip.
func AddCompression(ctx context.Context, bytesIn, bytesOut int64, attempts int) error {
	pipe := cache.GetClient().TxPipeline()
	pipe.HIncrBy(ctx, countersKey, Compressed, 1)
	pipe.HIncrBy(ctx, countersKey, BytesIn, bytesIn)
	pipe.HIncrBy(ctx, countersKey, BytesOut, bytesOut)
	pipe.HIncrBy(ctx, countersKey, Attempts, int64(attempts))
	_, err := pipe.Exec(ctx)
	return err
}

// AddFailure records one failed compression or upload.
func AddFailure(ctx context.Context) error {
	return Add(ctx, Failed, 1)
}

// Snapshot returns all counters. Fields that were never written read as 0.
func Snapshot(ctx context.Context) (map[string]int64, error) {
	data, err := cache.GetClient().HGetAll(ctx, countersKey).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(Fields))
	for _, f := range Fields {
		out[f] = 0
	}
	for k, v := range data {
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			continue
		}
		out[k] = n
	}
	return out, nil
}
