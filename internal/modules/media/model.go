// README: Media upload types: request, limits, object store abstraction.
package media

import (
	"context"
	"errors"
	"time"

	"bagdrop/internal/types"
)

var (
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrTooLarge         = errors.New("media too large")
	ErrBadRequest       = errors.New("bad request")
)

// URLLifetime is how long a returned download URL stays valid.
const URLLifetime = 31536000 * time.Second

// MaxImageBytes caps a single upload.
const MaxImageBytes = 10 << 20

var extensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/heic": "heic",
}

// UploadRequest targets either a contract proof (ContractID + Kind) or a
// profile picture (UserID).
type UploadRequest struct {
	ContractID  types.ID
	Kind        string
	UserID      types.ID
	ContentType string
	Data        []byte
}

// ObjectStore is a bucket that can hold objects and sign download URLs.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}
