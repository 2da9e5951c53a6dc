// README: Media service validates images, picks object keys and returns signed URLs.
package media

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"bagdrop/internal/logger"
	"bagdrop/internal/types"
)

type Service struct {
	store ObjectStore
	log   logger.Logger
	limit int
}

func NewService(store ObjectStore, log logger.Logger) *Service {
	return &Service{store: store, log: log, limit: MaxImageBytes}
}

// Upload stores the image and returns a download URL.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (string, error) {
	ct := strings.ToLower(strings.TrimSpace(req.ContentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	ext, ok := extensions[ct]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMedia, req.ContentType)
	}
	if len(req.Data) == 0 {
		return "", fmt.Errorf("%w: empty upload", ErrBadRequest)
	}
	if len(req.Data) > s.limit {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLarge, len(req.Data))
	}

	key, err := objectKey(req, ext)
	if err != nil {
		return "", err
	}
	if err := s.store.Put(ctx, key, ct, req.Data); err != nil {
		s.log.Error("media upload failed", "key", key, "error", err)
		return "", err
	}
	u, err := s.store.SignedURL(ctx, key, URLLifetime)
	if err != nil {
		s.log.Error("media sign failed", "key", key, "error", err)
		return "", err
	}
	return u, nil
}

func (s *Service) UploadProof(ctx context.Context, contractID types.ID, kind, contentType string, data []byte) (string, error) {
	return s.Upload(ctx, UploadRequest{ContractID: contractID, Kind: kind, ContentType: contentType, Data: data})
}

func (s *Service) UploadProfilePicture(ctx context.Context, userID types.ID, contentType string, data []byte) (string, error) {
	return s.Upload(ctx, UploadRequest{UserID: userID, ContentType: contentType, Data: data})
}

// RemoveProof deletes the object behind a URL returned by UploadProof.
func (s *Service) RemoveProof(ctx context.Context, rawURL string) error {
	key, err := proofKey(rawURL)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, key); err != nil {
		s.log.Error("media delete failed", "key", key, "error", err)
		return err
	}
	return nil
}

// proofKey recovers contracts/<id>/<kind>/<name> from a signed URL. Signing
// schemes differ in what precedes the key (bucket or nothing), so only the
// trailing segments are used.
func proofKey(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 4 || parts[len(parts)-4] != "contracts" {
		return "", fmt.Errorf("%w: not a proof url", ErrBadRequest)
	}
	return strings.Join(parts[len(parts)-4:], "/"), nil
}

func objectKey(req UploadRequest, ext string) (string, error) {
	name := uuid.NewString() + "." + ext
	switch {
	case req.ContractID != "" && req.Kind != "":
		if strings.ContainsAny(string(req.ContractID)+req.Kind, "/\\") {
			return "", fmt.Errorf("%w: invalid path segment", ErrBadRequest)
		}
		return fmt.Sprintf("contracts/%s/%s/%s", req.ContractID, req.Kind, name), nil
	case req.UserID != "":
		if strings.ContainsAny(string(req.UserID), "/\\") {
			return "", fmt.Errorf("%w: invalid path segment", ErrBadRequest)
		}
		return fmt.Sprintf("profiles/%s/%s", req.UserID, name), nil
	}
	return "", fmt.Errorf("%w: upload needs a contract and kind or a user", ErrBadRequest)
}
