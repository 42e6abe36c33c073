package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat_room_client/internal/api/handlers"
	"chat_room_client/internal/api/router"
	"chat_room_client/internal/chat/app"
	"chat_room_client/internal/chat/domain"
	"chat_room_client/internal/chat/repository"
	memberapp "chat_room_client/internal/member/app"
	memberdomain "chat_room_client/internal/member/domain"
	memberrepo "chat_room_client/internal/member/repository"
	"chat_room_client/pkg/config"
	"chat_room_client/pkg/database"
	"chat_room_client/pkg/docstore"
	"chat_room_client/pkg/logger"
	"chat_room_client/pkg/middlewares"
	testtool "chat_room_client/pkg/test_tool"
	"chat_room_client/pkg/token"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.ServiceName, config.EnvConfig.LogPath)
	defer logger.Log.Sync()

	cfg, err := config.LoadConfig[config.ChatClient](config.EnvConfig.ServiceName, config.EnvConfig.YAMLPath)
	if err != nil {
		logger.Log.Fatal("load config", zap.Error(err))
	}
	cfg = cfg.WithDefaults()
	if config.EnvConfig.Port != "" {
		cfg.Port = config.EnvConfig.Port
	}
	token.SetExpiration(cfg.SessionTTL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	// 1. document store
	var redisClient *redis.Client
	connectRedis := func() *redis.Client {
		if redisClient != nil {
			return redisClient
		}
		redisClient, err = newRedisClient(cfg.Redis)
		if err != nil {
			logger.Log.Fatal("connect redis", zap.Error(err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		return redisClient
	}

	var store docstore.Store
	switch cfg.Store {
	case config.BackendMongo:
		uri := fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.MongoDB.User, cfg.MongoDB.Password, cfg.MongoDB.Host, cfg.MongoDB.Port)
		mongo, err := database.NewMongoDB(ctx, database.Connection{
			ConnectStr:    uri,
			RetryCount:    cfg.MongoDB.RetryCount,
			RetryInterval: time.Duration(cfg.MongoDB.RetryInterval),
		}, cfg.MongoDB.Database)
		if err != nil {
			logger.Log.Fatal("Unable to connect to mongoDB database after retries",
				zap.String("host", cfg.MongoDB.Host), zap.Error(err))
		}
		closers = append(closers, func() { _ = mongo.Close(context.Background()) })
		store = docstore.NewMongoStore(mongo.Database, connectRedis())
	case config.BackendFirestore:
		client, err := database.NewFirestoreClient(ctx, database.FirestoreConnection{
			ProjectID:       cfg.Firestore.ProjectID,
			CredentialsFile: cfg.Firestore.CredentialsFile,
		})
		if err != nil {
			logger.Log.Fatal("connect firestore", zap.Error(err))
		}
		closers = append(closers, func() { _ = client.Close() })
		store = docstore.NewFirestoreStore(client)
	default:
		store = docstore.NewMemoryStore(nil)
	}
	closers = append(closers, func() { _ = store.Close() })

	// 2. blob store
	var blobs repository.BlobStore
	var memoryBlobs *repository.MemoryBlobStore
	switch cfg.Blob {
	case config.BackendMinIO:
		mc, err := database.NewMinIOConnection(database.MinIOConnection{
			Endpoint:      cfg.MinIO.Endpoint,
			User:          cfg.MinIO.User,
			Password:      cfg.MinIO.Password,
			BucketName:    cfg.MinIO.Bucket,
			UseSSL:        cfg.MinIO.UseSSL,
			PublicBaseURL: cfg.MinIO.PublicBaseURL,
			RetryCount:    cfg.MinIO.RetryCount,
			RetryInterval: time.Duration(cfg.MinIO.RetryInterval),
		})
		if err != nil {
			logger.Log.Fatal("connect minio", zap.Error(err))
		}
		blobs = repository.NewMinIOBlobStore(mc)
	default:
		memoryBlobs = repository.NewMemoryBlobStore(fmt.Sprintf("http://localhost:%s/blobs", cfg.Port))
		blobs = memoryBlobs
	}

	// 3. identity
	identityOpts := memberapp.IdentityOptions{
		SessionTTL:    cfg.SessionTTL,
		LoginAttempts: int64(cfg.LoginRateLimit.Attempts),
		LoginWindow:   cfg.LoginRateLimit.Window,
		Issuer:        config.EnvConfig.ServiceName,
	}
	var identity *memberapp.MemberIdentity
	switch cfg.Identity {
	case config.BackendPostgres:
		connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
			cfg.PostgreSQL.User, cfg.PostgreSQL.Password, cfg.PostgreSQL.Host, cfg.PostgreSQL.Port, cfg.PostgreSQL.Database)
		pool, err := database.NewDatabaseConnection(database.Connection{
			ConnectStr:    connStr,
			RetryCount:    cfg.PostgreSQL.RetryCount,
			RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval),
		})
		if err != nil {
			logger.Log.Fatal("Unable to connect to postgreSQL database after retries",
				zap.String("host", cfg.PostgreSQL.Host), zap.Error(err))
		}
		closers = append(closers, pool.Close)
		if err := memberrepo.Migrate(ctx, pool); err != nil {
			logger.Log.Fatal("migrate member table", zap.Error(err))
		}
		rdb := connectRedis()
		identity = memberapp.NewMemberIdentity(
			memberrepo.NewMemberRepository(pool),
			memberrepo.NewSessionRepository(database.NewRedisRepository[memberdomain.MemberSession](rdb)),
			database.NewRedisCounter(rdb),
			identityOpts,
		)
	default:
		identity = memberapp.NewMemoryIdentity(identityOpts)
	}

	// 4. session shell
	deps := app.Deps{
		Rooms:      repository.NewRoomRepository(store),
		Messages:   repository.NewMessageRepository(store),
		Typing:     repository.NewTypingRepository(store),
		Profiles:   repository.NewProfileRepository(store),
		Blobs:      blobs,
		TypingIdle: cfg.TypingIdle,
	}
	shell := app.NewSessionShell(ctx, identity, deps, app.ShellOptions{LoadingTimeout: cfg.LoadingTimeout})
	closers = append(closers, shell.Close)

	tokenFile := memberapp.TokenFile{Path: cfg.SessionTokenPath}
	closers = append(closers, memberapp.PersistSession(identity, tokenFile))
	shell.Start()
	restoreSession(ctx, identity, tokenFile)

	// 5. gateway
	r := fiber.New(fiber.Config{
		BodyLimit:             2 * domain.MaxImageSize,
		DisableStartupMessage: config.IsProduction(),
	})
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.LogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()
	r.Use(fiber_log.New(fiber_log.Config{
		Output: file, // 将日志输出到文件
	}))

	hub := handlers.NewViewHub(shell)
	router.RegisterRoutes(r, shell, hub, router.Options{
		SessionTTL: cfg.SessionTTL,
		Blobs:      memoryBlobs,
		SessionChecks: []middlewares.SessionCheck{func(ctx context.Context, t string) error {
			_, err := identity.CheckSession(ctx, t)
			return err
		}},
	})

	pprofSrv := testtool.StartPprof()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Log.Info("chat client listening", zap.String("port", cfg.Port))
		if err := r.Listen(":" + cfg.Port); err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Log.Info("shutting down")
		if pprofSrv != nil {
			_ = pprofSrv.Close()
		}
		return r.ShutdownWithTimeout(5 * time.Second)
	})

	if err := g.Wait(); err != nil {
		logger.Log.Error("chat client stopped", zap.Error(err))
	}
}

// restoreSession 以上次保存的 token 決定初始 auth state
func restoreSession(ctx context.Context, identity *memberapp.MemberIdentity, file memberapp.TokenFile) {
	saved, err := file.Load()
	if err != nil {
		logger.Log.Warn("load session token", zap.Error(err))
	}
	if saved == "" {
		identity.MarkSignedOut()
		return
	}
	if _, err := identity.Restore(ctx, saved); err != nil {
		logger.Log.Info("saved session not restored", zap.Error(err))
	}
}

func newRedisClient(c config.RedisConfig) (*redis.Client, error) {
	if c.Addr != "" {
		return database.NewRedisAddrClient(c.Addr, c.RedisDB)
	}
	masterName, sentinel := config.GetRedisSetting()
	return database.NewRedisClient(masterName, sentinel, c.RedisDB)
}
