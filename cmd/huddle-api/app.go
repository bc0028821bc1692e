package main

import (
	"time"

	"github.com/MarcoPoloResearchLab/huddle/internal/auth"
	"github.com/MarcoPoloResearchLab/huddle/internal/chat"
	"github.com/MarcoPoloResearchLab/huddle/internal/config"
	"github.com/MarcoPoloResearchLab/huddle/internal/database"
	"github.com/MarcoPoloResearchLab/huddle/internal/ids"
	"github.com/MarcoPoloResearchLab/huddle/internal/logging"
	"github.com/MarcoPoloResearchLab/huddle/internal/server"
	"github.com/MarcoPoloResearchLab/huddle/internal/social"
	"github.com/MarcoPoloResearchLab/huddle/internal/uploads"
	"github.com/MarcoPoloResearchLab/huddle/internal/users"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// application holds the services shared by every command.
type application struct {
	config   config.AppConfig
	logger   *zap.Logger
	db       *gorm.DB
	sessions *auth.SessionManager
	users    *users.Service
	social   *social.Service
	uploads  *uploads.Service
	chat     *chat.Service
	realtime *server.RealtimeDispatcher
	storage  *uploads.LocalStorage
}

func newApplication() (*application, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return nil, err
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	app := &application{config: appConfig, logger: logger, db: db}

	if err := app.wire(); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *application) wire() error {
	sessions, err := auth.NewSessionManager(auth.SessionManagerConfig{
		SigningSecret: []byte(a.config.SessionSigningSecret),
		Issuer:        a.config.SessionIssuer,
		CookieName:    a.config.SessionCookieName,
		TTL:           a.config.SessionTTL,
	})
	if err != nil {
		return err
	}
	a.sessions = sessions

	a.users, err = users.NewService(users.ServiceConfig{Database: a.db, Clock: time.Now, Logger: a.logger})
	if err != nil {
		return err
	}

	a.realtime = server.NewRealtimeDispatcher()
	a.social, err = social.NewService(social.ServiceConfig{
		Database:   a.db,
		Clock:      time.Now,
		IDProvider: ids.NewUUIDProvider(),
		Publisher:  a.realtime,
		Logger:     a.logger,
	})
	if err != nil {
		return err
	}

	uploadConfig := uploads.ServiceConfig{
		Database:     a.db,
		Avatars:      a.users,
		IDProvider:   ids.NewUUIDProvider(),
		OrphanMaxAge: a.config.UploadsOrphanMaxAge,
		Clock:        time.Now,
		Logger:       a.logger,
	}
	if a.config.UploadsPublicBaseURL != "" {
		storage, err := uploads.NewLocalStorage(a.config.UploadsDirectory, a.config.UploadsPublicBaseURL)
		if err != nil {
			return err
		}
		a.storage = storage
		uploadConfig.Storage = storage
	} else {
		a.logger.Warn("uploads disabled", zap.String("reason", "uploads.public_base_url not set"))
	}
	a.uploads, err = uploads.NewService(uploadConfig)
	if err != nil {
		return err
	}

	chatConfig := chat.ServiceConfig{Logger: a.logger}
	if a.config.ChatEnabled() {
		tokens, err := chat.NewTokenIssuer(a.config.ChatAPISecret, a.config.ChatTokenTTL, time.Now)
		if err != nil {
			return err
		}
		client, err := chat.NewHTTPClient(chat.HTTPClientConfig{
			BaseURL: a.config.ChatBaseURL,
			APIKey:  a.config.ChatAPIKey,
			Tokens:  tokens,
		})
		if err != nil {
			return err
		}
		chatConfig.Client = client
		chatConfig.Tokens = tokens
	}
	a.chat = chat.NewService(chatConfig)
	return nil
}

func (a *application) uploadsDirectory() string {
	if a.storage == nil {
		return ""
	}
	return a.storage.Root()
}

func (a *application) Close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.logger.Sync()
}
