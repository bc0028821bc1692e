// Package chat mirrors huddle accounts into the hosted chat service and issues chat tokens.
//
// Chat is a non-critical dependency: unread counts and renames degrade to a
// logged warning instead of failing the request that triggered them.
package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/MarcoPoloResearchLab/huddle/internal/serviceerror"
	"github.com/MarcoPoloResearchLab/huddle/internal/users"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	opUserToken    = "chat.user_token"
	opUpsertUser   = "chat.upsert_user"
	opMigrateUsers = "chat.migrate_users"

	migrationBatchSize   = 100
	migrationConcurrency = 4
)

// ErrNotConfigured indicates the hosted chat credentials are missing.
var ErrNotConfigured = errors.New("chat: service not configured")

// UserSource iterates every account in batches.
type UserSource interface {
	EachBatch(ctx context.Context, batchSize int, visit func([]users.User) error) error
}

// ServiceConfig describes the dependencies of the chat service. A nil Client disables chat.
type ServiceConfig struct {
	Client Client
	Tokens *TokenIssuer
	Logger *zap.Logger
}

// Service wraps the hosted chat client with degrading semantics.
type Service struct {
	client   Client
	tokens   *TokenIssuer
	logger   *zap.Logger
	upserted sync.Map
}

// NewService constructs the chat service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{client: cfg.Client, tokens: cfg.Tokens, logger: logger}
}

// Enabled reports whether chat credentials are configured.
func (s *Service) Enabled() bool {
	return s != nil && s.client != nil && s.tokens != nil
}

// UpsertUser mirrors one account into chat.
func (s *Service) UpsertUser(ctx context.Context, user users.User) error {
	if !s.Enabled() {
		return serviceerror.New(opUpsertUser, "not_configured", serviceerror.KindUnavailable, ErrNotConfigured)
	}
	if err := s.client.UpsertUsers(ctx, []User{chatUserOf(user)}); err != nil {
		s.logger.Error("chat user upsert failed",
			zap.String("operation", opUpsertUser),
			zap.String("user_id", user.ID),
			zap.Error(err))
		return serviceerror.New(opUpsertUser, "upsert_failed", serviceerror.KindDependency, err)
	}
	s.upserted.Store(user.ID, struct{}{})
	return nil
}

// UserToken returns a chat token for user, mirroring the account first if this process has not done so yet.
func (s *Service) UserToken(ctx context.Context, user users.User) (string, error) {
	if !s.Enabled() {
		return "", serviceerror.New(opUserToken, "not_configured", serviceerror.KindUnavailable, ErrNotConfigured)
	}
	if _, ok := s.upserted.Load(user.ID); !ok {
		if err := s.UpsertUser(ctx, user); err != nil {
			return "", err
		}
	}
	token, err := s.tokens.UserToken(user.ID)
	if err != nil {
		return "", serviceerror.New(opUserToken, "sign_failed", serviceerror.KindDependency, err)
	}
	return token, nil
}

// UnreadCount returns the unread message count, or zero when chat is unavailable.
func (s *Service) UnreadCount(ctx context.Context, userID string) int64 {
	if !s.Enabled() {
		return 0
	}
	count, err := s.client.UnreadCount(ctx, userID)
	if err != nil {
		s.logger.Warn("chat unread count unavailable", zap.String("user_id", userID), zap.Error(err))
		return 0
	}
	return count
}

// RenameUser updates the chat display name. Failures are logged and swallowed.
func (s *Service) RenameUser(ctx context.Context, userID, name string) {
	if !s.Enabled() {
		return
	}
	if err := s.client.RenameUser(ctx, userID, name); err != nil {
		s.logger.Warn("chat rename failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// MigrationReport summarizes a bulk user migration.
type MigrationReport struct {
	Total         int
	Migrated      int
	FailedBatches int
}

// MigrateUsers mirrors every account in batches, a few batches at a time. Failed batches are
// logged and counted; the migration continues with the remaining batches.
func (s *Service) MigrateUsers(ctx context.Context, source UserSource) (MigrationReport, error) {
	if !s.Enabled() {
		return MigrationReport{}, serviceerror.New(opMigrateUsers, "not_configured", serviceerror.KindUnavailable, ErrNotConfigured)
	}
	var (
		mu     sync.Mutex
		report MigrationReport
		batch  int
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(migrationConcurrency)

	err := source.EachBatch(ctx, migrationBatchSize, func(rows []users.User) error {
		batch++
		number := batch
		chatUsers := make([]User, 0, len(rows))
		for _, row := range rows {
			chatUsers = append(chatUsers, chatUserOf(row))
		}
		mu.Lock()
		report.Total += len(chatUsers)
		mu.Unlock()

		group.Go(func() error {
			if err := s.client.UpsertUsers(groupCtx, chatUsers); err != nil {
				s.logger.Error("chat migration batch failed",
					zap.String("operation", opMigrateUsers),
					zap.Int("batch", number),
					zap.Int("users", len(chatUsers)),
					zap.Error(err))
				mu.Lock()
				report.FailedBatches++
				mu.Unlock()
				return nil
			}
			mu.Lock()
			report.Migrated += len(chatUsers)
			mu.Unlock()
			s.logger.Info("chat migration batch done", zap.Int("batch", number), zap.Int("users", len(chatUsers)))
			return nil
		})
		return groupCtx.Err()
	})
	waitErr := group.Wait()
	if err != nil {
		return report, err
	}
	return report, waitErr
}

func chatUserOf(user users.User) User {
	name := user.DisplayName
	if name == "" {
		name = user.Username
	}
	return User{ID: user.ID, Username: user.Username, Name: name, Image: user.AvatarURL}
}
