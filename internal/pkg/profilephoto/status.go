package profilephoto

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/PhotoShrink/internal/pkg/cache"
)

// Cache key formats for upload status
const (
	StatusKeyFormat          = "photo:status:%s"           // photo:status:<uploadID>
	StatusTimestampKeyFormat = "photo:status:timestamp:%s" // photo:status:timestamp:<uploadID>
	StatusMessageKeyFormat   = "photo:status:message:%s"   // photo:status:message:<uploadID>
)

const (
	StatusCompressing = "compressing"
	StatusUploading   = "uploading"
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
)

const (
	StatusTTL = 24 * time.Hour
	// StuckAfter is how long an upload may stay in progress before it is reported failed.
	StuckAfter = 60 * time.Second
)

var ErrStatusNotFound = errors.New("upload status not found")

// Status is the last known state of one upload.
type Status struct {
	UploadID  string    `json:"upload_id"`
	State     string    `json:"state"`
	Message   string    `json:"message"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SetStatus stores state and message for uploadID. An empty id is ignored.
func SetStatus(ctx context.Context, uploadID, state, message string) error {
	return setStatusAt(ctx, uploadID, state, message, time.Now())
}

func setStatusAt(ctx context.Context, uploadID, state, message string, at time.Time) error {
	if uploadID == "" {
		return nil
	}
	pipe := cache.GetClient().TxPipeline()
	pipe.Set(ctx, fmt.Sprintf(StatusKeyFormat, uploadID), state, StatusTTL)
	pipe.Set(ctx, fmt.Sprintf(StatusTimestampKeyFormat, uploadID), at.UTC().Format(time.RFC3339), StatusTTL)
	pipe.Set(ctx, fmt.Sprintf(StatusMessageKeyFormat, uploadID), message, StatusTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// GetStatus returns the status of uploadID. In-progress states older than
// StuckAfter are reported as failed.
func GetStatus(ctx context.Context, uploadID string) (*Status, error) {
	if uploadID == "" {
		return nil, ErrStatusNotFound
	}

	values, err := cache.GetClient().MGet(ctx,
		fmt.Sprintf(StatusKeyFormat, uploadID),
		fmt.Sprintf(StatusTimestampKeyFormat, uploadID),
		fmt.Sprintf(StatusMessageKeyFormat, uploadID),
	).Result()
	if err != nil {
		return nil, err
	}

	state, ok := values[0].(string)
	if !ok || state == "" {
		return nil, ErrStatusNotFound
	}
	status := &Status{UploadID: uploadID, State: state}
	if msg, ok := values[2].(string); ok {
		status.Message = msg
	}
	if ts, ok := values[1].(string); ok {
		if parsed, perr := time.Parse(time.RFC3339, ts); perr == nil {
			status.UpdatedAt = parsed
		}
	}

	if IsInProgress(status.State) && !status.UpdatedAt.IsZero() && time.Since(status.UpdatedAt) > StuckAfter {
		status.State = StatusFailed
		status.Message = "Processing timed out"
	}
	return status, nil
}

func IsInProgress(state string) bool {
	return state == StatusCompressing || state == StatusUploading
}
