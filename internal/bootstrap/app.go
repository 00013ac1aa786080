package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"docuvault/internal/ai"
	"docuvault/internal/config"
	"docuvault/internal/logging"
	"docuvault/internal/model"
	"docuvault/internal/notify"
	"docuvault/internal/objectstore"
	postgresClient "docuvault/internal/platform/postgres"
	rabbitmqClient "docuvault/internal/platform/rabbitmq"
	redisClient "docuvault/internal/platform/redis"
	"docuvault/internal/repository"
	"docuvault/internal/security"
)

type App struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *gorm.DB
	Redis  *redis.Client    // nil when not configured
	MQConn *amqp.Connection // nil when not configured

	Keys   *security.KeyService
	Cipher *security.FieldCipher
	LLM    *ai.Client
	Blobs  objectstore.Store

	NotifyWorker *notify.Worker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	logger, err := logging.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger failed: %w", err)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}
	err = db.AutoMigrate(
		&model.User{},
		&model.Document{},
		&model.DocumentChunk{},
		&model.ChatSession{},
		&model.ChatMessage{},
		&model.Feedback{},
		&model.AuditLog{},
	)
	if err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	var redisCli *redis.Client
	if cfg.Redis.Addr != "" {
		redisCli, err = redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
	}

	var mqConn *amqp.Connection
	if cfg.RabbitMQ.URL != "" {
		mqConn, err = rabbitmqClient.New(cfg.RabbitMQ.URL)
		if err != nil {
			return nil, err
		}
	}

	keys, err := security.NewKeyService(cfg.Security.MasterEncryptionKey, cfg.App.Env, logger)
	if err != nil {
		return nil, err
	}
	cipher := security.NewFieldCipher(cfg.Security.EnableEncryption)
	if !cipher.Enabled() {
		logger.Warn("field encryption is disabled, sensitive fields will be stored in plaintext")
	}

	blobs, err := openBlobStore(cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:    cfg,
		Logger:    logger,
		DB:        db,
		Redis:     redisCli,
		MQConn:    mqConn,
		Keys:      keys,
		Cipher:    cipher,
		LLM:       ai.NewClient(cfg.LLM),
		Blobs:     blobs,
		StartedAt: time.Now(),
	}

	if mqConn != nil {
		app.NotifyWorker = notify.NewWorker(
			mqConn,
			repository.NewFeedbackRepository(db),
			notify.NewLogMailer(logger),
			cfg.RabbitMQ.FeedbackQueue,
			logger,
		)
		if err := app.NotifyWorker.Start(ctx); err != nil {
			return nil, fmt.Errorf("start notify worker failed: %w", err)
		}
	}

	return app, nil
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		db, err := gorm.Open(sqlite.Open(cfg.Database.Name), &gorm.Config{TranslateError: true})
		if err != nil {
			return nil, fmt.Errorf("open sqlite failed: %w", err)
		}
		return db, nil
	default:
		return postgresClient.New(cfg.Database, cfg.PostgresDSN())
	}
}

func openBlobStore(cfg *config.Config) (objectstore.Store, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return objectstore.NewMemoryStore(), nil
	default:
		return objectstore.NewFSStore(cfg.Storage.RootDir)
	}
}

func (a *App) Close() error {
	var closeErr error
	if a.NotifyWorker != nil {
		a.NotifyWorker.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return closeErr
}
