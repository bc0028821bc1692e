// Package uploads stores avatars and post attachments and cleans up media no post claimed.
package uploads

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/huddle/internal/ids"
	"github.com/MarcoPoloResearchLab/huddle/internal/serviceerror"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrStorageNotConfigured indicates uploads were requested without a file store.
	ErrStorageNotConfigured = errors.New("uploads: storage not configured")
	// ErrUnsupportedType indicates the uploaded file is neither an image nor a video.
	ErrUnsupportedType = errors.New("uploads: unsupported file type")
	// ErrFileTooLarge indicates the file exceeds the limit for its kind.
	ErrFileTooLarge = errors.New("uploads: file too large")
	// ErrEmptyFile indicates no bytes were uploaded.
	ErrEmptyFile = errors.New("uploads: empty file")

	errMissingDatabase = errors.New("uploads: database connection required")
	noOpLogger         = zap.NewNop()
)

const (
	opUploadAvatar     = "uploads.avatar"
	opUploadAttachment = "uploads.attachment"
	opClearOrphans     = "uploads.clear_orphans"

	sniffLength = 512
)

// File is one uploaded binary.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// AvatarStore persists avatar URLs and hands back the object key being replaced.
type AvatarStore interface {
	SetAvatar(ctx context.Context, userID, avatarURL, objectKey string) (string, error)
}

// ServiceConfig describes the dependencies of the upload service.
type ServiceConfig struct {
	Database     *gorm.DB
	Storage      Storage
	Avatars      AvatarStore
	IDProvider   ids.Provider
	Limits       Limits
	OrphanMaxAge time.Duration
	Clock        func() time.Time
	Logger       *zap.Logger
}

// Service coordinates file storage with media bookkeeping.
type Service struct {
	db           *gorm.DB
	storage      Storage
	avatars      AvatarStore
	idProvider   ids.Provider
	limits       Limits
	orphanMaxAge time.Duration
	clock        func() time.Time
	logger       *zap.Logger
}

// NewService constructs the upload service. A nil Storage leaves uploads disabled.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = ids.NewUUIDProvider()
	}
	limits := cfg.Limits
	if limits == (Limits{}) {
		limits = DefaultLimits
	}
	orphanMaxAge := cfg.OrphanMaxAge
	if orphanMaxAge <= 0 {
		orphanMaxAge = 24 * time.Hour
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:           cfg.Database,
		storage:      cfg.Storage,
		avatars:      cfg.Avatars,
		idProvider:   idProvider,
		limits:       limits,
		orphanMaxAge: orphanMaxAge,
		clock:        clock,
		logger:       logger,
	}, nil
}

// Enabled reports whether a file store is configured.
func (s *Service) Enabled() bool {
	return s.storage != nil
}

// UploadAvatar stores an avatar image, records its URL on the user and removes the previous object.
func (s *Service) UploadAvatar(ctx context.Context, userID string, file File) (string, error) {
	if s.storage == nil || s.avatars == nil {
		return "", serviceerror.New(opUploadAvatar, "storage_not_configured", serviceerror.KindUnavailable, ErrStorageNotConfigured)
	}
	contentType, body, err := s.inspect(opUploadAvatar, file)
	if err != nil {
		return "", err
	}
	if kind, _ := mediaTypeOf(contentType); kind != MediaImage {
		return "", serviceerror.New(opUploadAvatar, "unsupported_type", serviceerror.KindValidation,
			fmt.Errorf("%w: avatars must be images", ErrUnsupportedType))
	}
	if file.Size > s.limits.AvatarBytes {
		return "", tooLarge(opUploadAvatar, s.limits.AvatarBytes)
	}

	key, err := s.objectKey("avatars", contentType)
	if err != nil {
		return "", serviceerror.New(opUploadAvatar, "id_generation_failed", serviceerror.KindDependency, err)
	}
	location, err := s.put(ctx, key, contentType, body, s.limits.AvatarBytes)
	if err != nil {
		return "", s.storageFailure(opUploadAvatar, err, zap.String("user_id", userID))
	}

	previousKey, err := s.avatars.SetAvatar(ctx, userID, location, key)
	if err != nil {
		s.deleteQuietly(ctx, key)
		return "", err
	}
	if previousKey != "" && previousKey != key {
		s.deleteQuietly(ctx, previousKey)
	}
	s.logger.Info("avatar uploaded", zap.String("user_id", userID), zap.String("object_key", key))
	return location, nil
}

// UploadAttachment stores an image or video attachment not yet claimed by a post.
func (s *Service) UploadAttachment(ctx context.Context, ownerID string, file File) (Media, error) {
	if s.storage == nil {
		return Media{}, serviceerror.New(opUploadAttachment, "storage_not_configured", serviceerror.KindUnavailable, ErrStorageNotConfigured)
	}
	contentType, body, err := s.inspect(opUploadAttachment, file)
	if err != nil {
		return Media{}, err
	}
	kind, ok := mediaTypeOf(contentType)
	if !ok {
		return Media{}, serviceerror.New(opUploadAttachment, "unsupported_type", serviceerror.KindValidation,
			fmt.Errorf("%w: %s", ErrUnsupportedType, contentType))
	}
	limit := s.limits.ImageBytes
	if kind == MediaVideo {
		limit = s.limits.VideoBytes
	}
	if file.Size > limit {
		return Media{}, tooLarge(opUploadAttachment, limit)
	}

	mediaID, err := s.idProvider.NewID()
	if err != nil {
		return Media{}, serviceerror.New(opUploadAttachment, "id_generation_failed", serviceerror.KindDependency, err)
	}
	key := "attachments/" + mediaID + extensionFor(contentType)
	location, err := s.put(ctx, key, contentType, body, limit)
	if err != nil {
		return Media{}, s.storageFailure(opUploadAttachment, err, zap.String("owner_id", ownerID))
	}

	media := Media{
		ID:              mediaID,
		OwnerID:         ownerID,
		ObjectKey:       key,
		URL:             location,
		Type:            kind,
		CreatedAtMillis: s.clock().UTC().UnixMilli(),
	}
	if err := s.db.WithContext(ctx).Create(&media).Error; err != nil {
		s.deleteQuietly(ctx, key)
		s.logError(opUploadAttachment, "media_insert_failed", err, zap.String("owner_id", ownerID))
		return Media{}, serviceerror.New(opUploadAttachment, "media_insert_failed", serviceerror.KindDependency, err)
	}
	return media, nil
}

// ClearOrphans deletes media that no post claimed within the orphan age, object first and row second.
func (s *Service) ClearOrphans(ctx context.Context) (int, error) {
	cutoff := s.clock().UTC().Add(-s.orphanMaxAge).UnixMilli()
	var orphans []Media
	if err := s.db.WithContext(ctx).
		Where("post_id IS NULL AND created_at_ms < ?", cutoff).
		Order("created_at_ms ASC").
		Find(&orphans).Error; err != nil {
		s.logError(opClearOrphans, "query_failed", err)
		return 0, serviceerror.New(opClearOrphans, "query_failed", serviceerror.KindDependency, err)
	}

	cleared := 0
	for _, media := range orphans {
		if s.storage != nil {
			if err := s.storage.Delete(ctx, media.ObjectKey); err != nil {
				s.logger.Warn("orphan object delete failed",
					zap.String("media_id", media.ID),
					zap.String("object_key", media.ObjectKey),
					zap.Error(err))
				continue
			}
		}
		if err := s.db.WithContext(ctx).Delete(&Media{}, "id = ?", media.ID).Error; err != nil {
			s.logError(opClearOrphans, "media_delete_failed", err, zap.String("media_id", media.ID))
			return cleared, serviceerror.New(opClearOrphans, "media_delete_failed", serviceerror.KindDependency, err)
		}
		cleared++
	}
	if cleared > 0 {
		s.logger.Info("orphaned media cleared", zap.Int("count", cleared))
	}
	return cleared, nil
}

// StartCleanupJob runs ClearOrphans every interval until ctx is done.
func (s *Service) StartCleanupJob(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.ClearOrphans(ctx); err != nil {
					s.logger.Warn("orphan cleanup failed", zap.Error(err))
				}
			}
		}
	}()
}

// inspect resolves the content type, sniffing the first bytes when the client did not declare one.
func (s *Service) inspect(operation string, file File) (string, io.Reader, error) {
	if file.Body == nil || file.Size == 0 {
		return "", nil, serviceerror.New(operation, "empty_file", serviceerror.KindValidation, ErrEmptyFile)
	}
	reader := bufio.NewReaderSize(file.Body, sniffLength)
	contentType := strings.ToLower(strings.TrimSpace(file.ContentType))
	if base, _, found := strings.Cut(contentType, ";"); found {
		contentType = strings.TrimSpace(base)
	}
	if contentType == "" || contentType == "application/octet-stream" {
		head, err := reader.Peek(sniffLength)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
			return "", nil, serviceerror.New(operation, "read_failed", serviceerror.KindValidation, err)
		}
		if len(head) == 0 {
			return "", nil, serviceerror.New(operation, "empty_file", serviceerror.KindValidation, ErrEmptyFile)
		}
		contentType, _, _ = strings.Cut(http.DetectContentType(head), ";")
	}
	return contentType, reader, nil
}

func (s *Service) objectKey(prefix, contentType string) (string, error) {
	id, err := s.idProvider.NewID()
	if err != nil {
		return "", err
	}
	return prefix + "/" + id + extensionFor(contentType), nil
}

// put streams body to storage and fails once more than limit bytes were read.
func (s *Service) put(ctx context.Context, key, contentType string, body io.Reader, limit int64) (string, error) {
	guarded := &limitedReader{reader: body, remaining: limit}
	location, err := s.storage.Put(ctx, key, contentType, guarded)
	if guarded.exceeded {
		s.deleteQuietly(ctx, key)
		return "", ErrFileTooLarge
	}
	return location, err
}

func (s *Service) storageFailure(operation string, err error, fields ...zap.Field) error {
	if errors.Is(err, ErrFileTooLarge) {
		return serviceerror.New(operation, "file_too_large", serviceerror.KindValidation, err)
	}
	s.logError(operation, "storage_put_failed", err, fields...)
	return serviceerror.New(operation, "storage_put_failed", serviceerror.KindDependency, err)
}

func (s *Service) deleteQuietly(ctx context.Context, key string) {
	if err := s.storage.Delete(ctx, key); err != nil {
		s.logger.Warn("object delete failed", zap.String("object_key", key), zap.Error(err))
	}
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("uploads service error", attrs...)
}

func tooLarge(operation string, limit int64) error {
	return serviceerror.New(operation, "file_too_large", serviceerror.KindValidation,
		fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, limit))
}

type limitedReader struct {
	reader    io.Reader
	remaining int64
	exceeded  bool
}

func (r *limitedReader) Read(p []byte) (int, error) {
	if r.remaining < 0 {
		r.exceeded = true
		return 0, ErrFileTooLarge
	}
	if int64(len(p)) > r.remaining+1 {
		p = p[:r.remaining+1]
	}
	n, err := r.reader.Read(p)
	r.remaining -= int64(n)
	if r.remaining < 0 {
		r.exceeded = true
		return n, ErrFileTooLarge
	}
	return n, err
}
