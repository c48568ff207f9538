package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/gabriel-vasile/mimetype"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/avatar"
	"github.com/sakif/contacts-api/internal/model"
	"github.com/sakif/contacts-api/internal/repository"
)

// MaxAvatarBytes caps an uploaded avatar.
const MaxAvatarBytes = 5 << 20

// allowedAvatarTypes are matched against the sniffed content, not the
// client's Content-Type header.
var allowedAvatarTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// UserService handles profile changes of the signed-in user.
type UserService struct {
	users  repository.UserRepository
	store  avatar.Store
	cache  UserCache
	logger *slog.Logger
}

// NewUserService creates a UserService. store and cache may be nil: without
// a store avatar uploads answer apperror.ErrUnavailable.
func NewUserService(users repository.UserRepository, store avatar.Store, cache UserCache, logger *slog.Logger) *UserService {
	return &UserService{
		users:  users,
		store:  store,
		cache:  cache,
		logger: logger,
	}
}

// UpdateAvatar stores the uploaded image and points the user's avatar at it.
// Each user has one object key, so a new upload replaces the previous one.
func (s *UserService) UpdateAvatar(ctx context.Context, user *model.User, file io.Reader) (*model.User, error) {
	if s.store == nil {
		return nil, apperror.Unavailable("Avatar storage is not configured")
	}

	data, err := io.ReadAll(io.LimitReader(file, MaxAvatarBytes+1))
	if err != nil {
		return nil, fmt.Errorf("service/user: reading avatar: %w", err)
	}
	if len(data) == 0 {
		return nil, apperror.ValidationFailed("file", "file is required")
	}
	if len(data) > MaxAvatarBytes {
		return nil, apperror.ValidationFailed("file", fmt.Sprintf("file must be at most %d bytes", MaxAvatarBytes))
	}

	mt := mimetype.Detect(data)
	if !mimetype.EqualsAny(mt.String(), allowedAvatarTypes...) {
		return nil, apperror.ValidationFailed("file", "file must be a JPEG, PNG, GIF or WebP image")
	}

	url, err := s.store.Upload(ctx, "avatars/"+user.Username, bytes.NewReader(data), mt.String())
	if err != nil {
		s.logger.Error("avatar upload failed",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/user: uploading avatar: %w", err)
	}

	updated, err := s.users.UpdateAvatar(ctx, user.Email, url)
	if err != nil {
		return nil, fmt.Errorf("service/user: saving avatar: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, user.ID); err != nil {
			s.logger.Warn("user cache eviction failed",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("avatar updated", slog.String("user_id", user.ID))
	return updated, nil
}
