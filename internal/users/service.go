package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/huddle/internal/auth"
	"github.com/MarcoPoloResearchLab/huddle/internal/serviceerror"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrInvalidIdentity indicates the session claims did not carry a usable identifier.
	ErrInvalidIdentity = errors.New("users: invalid identity")
	// ErrUserNotFound indicates the referenced account does not exist.
	ErrUserNotFound = errors.New("users: user not found")
	// ErrInvalidProfile indicates profile fields failed validation.
	ErrInvalidProfile = errors.New("users: invalid profile")

	errMissingDatabase = errors.New("users: database connection required")
	noOpLogger         = zap.NewNop()
)

const (
	opResolveViewer = "users.resolve_viewer"
	opGetUser       = "users.get"
	opUpdateProfile = "users.update_profile"
	opSetAvatar     = "users.set_avatar"
	opListUsers     = "users.list"
)

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages user accounts and the viewer identity behind each session.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
	known  sync.Map
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
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
		db:     cfg.Database,
		now:    clock,
		logger: logger,
	}, nil
}

// ResolveViewer returns the account id behind the session claims.
// The account is provisioned on first sight so sessions minted by the identity
// provider are usable immediately.
func (s *Service) ResolveViewer(ctx context.Context, claims auth.SessionClaims) (string, error) {
	userID := normalize(claims.UserID)
	if userID == "" {
		return "", serviceerror.New(opResolveViewer, "invalid_identity", serviceerror.KindUnauthorized, ErrInvalidIdentity)
	}
	if _, ok := s.known.Load(userID); ok {
		return userID, nil
	}

	var user User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = User{
			ID:              userID,
			Username:        s.provisionUsername(ctx, claims),
			Email:           normalize(claims.Email),
			CreatedAtMillis: s.now().UTC().UnixMilli(),
		}
		user.DisplayName = normalize(claims.DisplayName)
		if user.DisplayName == "" {
			user.DisplayName = GenerateDisplayName(user.Username)
		}
		if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
			s.logError(opResolveViewer, "user_create_failed", err, zap.String("user_id", userID))
			return "", serviceerror.New(opResolveViewer, "user_create_failed", serviceerror.KindDependency, err)
		}
		s.logger.Info("user provisioned", zap.String("user_id", userID), zap.String("username", user.Username))
	} else if err != nil {
		s.logError(opResolveViewer, "user_select_failed", err, zap.String("user_id", userID))
		return "", serviceerror.New(opResolveViewer, "user_select_failed", serviceerror.KindDependency, err)
	}

	s.known.Store(userID, struct{}{})
	return userID, nil
}

// provisionUsername prefers the claimed username and falls back to an id derived handle when taken or invalid.
func (s *Service) provisionUsername(ctx context.Context, claims auth.SessionClaims) string {
	candidate := normalize(claims.Username)
	if ValidUsername(candidate) {
		var count int64
		if err := s.db.WithContext(ctx).Model(&User{}).Where("LOWER(username) = LOWER(?)", candidate).Count(&count).Error; err == nil && count == 0 {
			return candidate
		}
	}
	handle := strings.ReplaceAll(normalize(claims.UserID), "-", "")
	if len(handle) > 12 {
		handle = handle[len(handle)-12:]
	}
	return "user_" + strings.ToLower(handle)
}

// Get loads a user by id.
func (s *Service) Get(ctx context.Context, userID string) (User, error) {
	return s.take(ctx, "id = ?", normalize(userID))
}

// GetByUsername loads a user by case-insensitive username.
func (s *Service) GetByUsername(ctx context.Context, username string) (User, error) {
	return s.take(ctx, "LOWER(username) = LOWER(?)", normalize(username))
}

// GetMany loads the users with the given ids keyed by id.
func (s *Service) GetMany(ctx context.Context, userIDs []string) (map[string]User, error) {
	result := make(map[string]User, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}
	var rows []User
	if err := s.db.WithContext(ctx).Where("id IN ?", userIDs).Find(&rows).Error; err != nil {
		s.logError(opGetUser, "query_failed", err, zap.Int("count", len(userIDs)))
		return nil, serviceerror.New(opGetUser, "query_failed", serviceerror.KindDependency, err)
	}
	for _, row := range rows {
		result[row.ID] = row
	}
	return result, nil
}

func (s *Service) take(ctx context.Context, condition string, value string) (User, error) {
	if value == "" {
		return User{}, serviceerror.New(opGetUser, "user_not_found", serviceerror.KindNotFound, ErrUserNotFound)
	}
	var user User
	err := s.db.WithContext(ctx).Where(condition, value).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, serviceerror.New(opGetUser, "user_not_found", serviceerror.KindNotFound, ErrUserNotFound)
	}
	if err != nil {
		s.logError(opGetUser, "query_failed", err, zap.String("lookup", value))
		return User{}, serviceerror.New(opGetUser, "query_failed", serviceerror.KindDependency, err)
	}
	return user, nil
}

// UpdateProfile validates and stores the editable profile fields.
func (s *Service) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (User, error) {
	update = update.normalized()
	if update.DisplayName == "" {
		return User{}, serviceerror.New(opUpdateProfile, "display_name_required", serviceerror.KindValidation,
			fmt.Errorf("%w: display name is required", ErrInvalidProfile))
	}
	if utf8.RuneCountInString(update.DisplayName) > maxDisplayNameLength {
		return User{}, serviceerror.New(opUpdateProfile, "display_name_too_long", serviceerror.KindValidation,
			fmt.Errorf("%w: display name must be at most %d characters", ErrInvalidProfile, maxDisplayNameLength))
	}
	if utf8.RuneCountInString(update.Bio) > maxBioLength {
		return User{}, serviceerror.New(opUpdateProfile, "bio_too_long", serviceerror.KindValidation,
			fmt.Errorf("%w: bio must be less than %d characters", ErrInvalidProfile, maxBioLength))
	}

	result := s.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"display_name": update.DisplayName,
			"bio":          update.Bio,
		})
	if result.Error != nil {
		s.logError(opUpdateProfile, "update_failed", result.Error, zap.String("user_id", userID))
		return User{}, serviceerror.New(opUpdateProfile, "update_failed", serviceerror.KindDependency, result.Error)
	}
	if result.RowsAffected == 0 {
		return User{}, serviceerror.New(opUpdateProfile, "user_not_found", serviceerror.KindNotFound, ErrUserNotFound)
	}
	return s.Get(ctx, userID)
}

// SetAvatar stores the avatar URL returned by file storage and returns the object key it replaces.
func (s *Service) SetAvatar(ctx context.Context, userID, avatarURL, objectKey string) (string, error) {
	var previousKey string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user User
		if err := tx.Where("id = ?", userID).Take(&user).Error; err != nil {
			return err
		}
		previousKey = user.AvatarKey
		return tx.Model(&User{}).Where("id = ?", userID).Updates(map[string]interface{}{
			"avatar_url": avatarURL,
			"avatar_key": objectKey,
		}).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", serviceerror.New(opSetAvatar, "user_not_found", serviceerror.KindNotFound, ErrUserNotFound)
	}
	if err != nil {
		s.logError(opSetAvatar, "update_failed", err, zap.String("user_id", userID))
		return "", serviceerror.New(opSetAvatar, "update_failed", serviceerror.KindDependency, err)
	}
	return previousKey, nil
}

// EachBatch visits every user in primary key order, batchSize rows at a time.
// The slice handed to visit is reused between batches.
func (s *Service) EachBatch(ctx context.Context, batchSize int, visit func([]User) error) error {
	var batch []User
	result := s.db.WithContext(ctx).FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
		return visit(batch)
	})
	if result.Error != nil {
		s.logError(opListUsers, "batch_failed", result.Error)
		return serviceerror.New(opListUsers, "batch_failed", serviceerror.KindDependency, result.Error)
	}
	return nil
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
	s.logger.Error("users service error", attrs...)
}
