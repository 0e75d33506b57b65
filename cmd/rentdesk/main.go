package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/rentdesk/internal/cache"
	"github.com/xxxsen/rentdesk/internal/config"
	"github.com/xxxsen/rentdesk/internal/db"
	"github.com/xxxsen/rentdesk/internal/device"
	"github.com/xxxsen/rentdesk/internal/handler"
	"github.com/xxxsen/rentdesk/internal/job"
	"github.com/xxxsen/rentdesk/internal/middleware"
	"github.com/xxxsen/rentdesk/internal/oauth"
	"github.com/xxxsen/rentdesk/internal/otp"
	"github.com/xxxsen/rentdesk/internal/pkg/jwt"
	"github.com/xxxsen/rentdesk/internal/pkg/password"
	"github.com/xxxsen/rentdesk/internal/repo"
	"github.com/xxxsen/rentdesk/internal/schedule"
	"github.com/xxxsen/rentdesk/internal/service"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "rentdesk",
		Short: "rentdesk auth server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run rentdesk server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

			conn, err := db.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer conn.Close()
			if err := db.ApplyMigrations(conn); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return runServer(cfg, conn)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func newFastTier(cfg *config.Config, client redis.UniversalClient) otp.FastTier {
	switch cfg.FastTier.Type {
	case config.FastTierMemcached:
		return otp.NewMemcachedTier(memcache.New(cfg.Memcached.Servers...), cfg.FastTier.Prefix)
	case config.FastTierMemory:
		return otp.NewMemoryTier(time.Minute)
	default:
		return otp.NewRedisTier(client, cfg.FastTier.Prefix)
	}
}

func newHasher(cfg config.Argon2) (*password.Argon2, error) {
	params := password.DefaultArgon2Config()
	if cfg.MemoryKB > 0 {
		params.MemoryKB = cfg.MemoryKB
	}
	if cfg.Time > 0 {
		params.Time = cfg.Time
	}
	if cfg.Parallelism > 0 {
		params.Parallelism = cfg.Parallelism
	}
	return password.NewArgon2(params)
}

func runServer(cfg *config.Config, conn *sql.DB) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log := logutil.GetLogger(ctx)
	log.Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("fast_tier", cfg.FastTier.Type),
		zap.Bool("production", cfg.Production),
	)

	redisClient := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Redis.Addrs,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	identityRepo := repo.NewIdentityRepo(conn)
	deviceRepo := repo.NewDeviceRepo(conn)
	otpRepo := repo.NewOtpRepo(conn)
	oauthRepo := repo.NewOAuthRepo(conn)
	registrationRepo := repo.NewRegistrationRepo(conn)

	issuer, err := jwt.NewIssuer([]byte(cfg.JWTSecret), time.Hour*time.Duration(cfg.JWTTTLHours))
	if err != nil {
		return fmt.Errorf("init jwt issuer: %w", err)
	}
	hasher, err := newHasher(cfg.Device.Argon2)
	if err != nil {
		return fmt.Errorf("init device hasher: %w", err)
	}
	identityCache, err := cache.NewIdentityCache(cache.IdentityCacheConfig{
		FloorBytes:      cfg.IdentityCache.FloorBytes,
		IncrementBytes:  cfg.IdentityCache.IncrementBytes,
		CeilingBytes:    cfg.IdentityCache.CeilingBytes,
		GrowthThreshold: cfg.IdentityCache.GrowthThreshold,
		TTL:             time.Duration(cfg.IdentityCache.TTLSeconds) * time.Second,
		MaxEntries:      cfg.IdentityCache.MaxEntries,
	})
	if err != nil {
		return fmt.Errorf("init identity cache: %w", err)
	}
	views := cache.NewGenericCache(redisClient, cfg.GenericCache.Namespace)
	codes := otp.NewStore(newFastTier(cfg, redisClient), otpRepo, time.Duration(cfg.OTP.TTLSeconds)*time.Second)
	devices := device.NewManager(deviceRepo, hasher, time.Duration(cfg.Device.TokenTTLDays)*24*time.Hour)

	sender := service.NewEmailSender(cfg.Mail)
	dispatcher := job.NewLocalDispatcher(job.DispatcherConfig{
		Workers:    cfg.Jobs.Workers,
		QueueSize:  cfg.Jobs.QueueSize,
		MaxRetries: cfg.Jobs.MaxRetries,
		MaxElapsed: time.Duration(cfg.Jobs.MaxElapsedSeconds) * time.Second,
	})
	dispatcher.Register(job.TypeOTPEmail, job.NewOTPEmailHandler(sender))
	dispatcher.Register(job.TypeNotification, job.NewNotificationHandler(sender))
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	scheduler := schedule.NewCronScheduler(time.Duration(cfg.Jobs.RunTimeoutSeconds) * time.Second)
	if err := scheduler.AddJob(job.NewOTPCleanupJob(otpRepo, time.Duration(cfg.Jobs.OTPRetentionHours)*time.Hour), cfg.Jobs.OTPCleanupSpec); err != nil {
		return fmt.Errorf("schedule otp cleanup: %w", err)
	}
	if err := scheduler.AddJob(job.NewDeviceCleanupJob(deviceRepo, time.Duration(cfg.Jobs.DeviceRetentionDays)*24*time.Hour), cfg.Jobs.DeviceCleanupSpec); err != nil {
		return fmt.Errorf("schedule device cleanup: %w", err)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	identityService := service.NewIdentityService(identityRepo, identityCache, views)
	deviceService := service.NewDeviceService(devices, views, time.Duration(cfg.GenericCache.DeviceListSeconds)*time.Second)
	authService := service.NewAuthService(service.AuthServiceDeps{
		Identities:     identityRepo,
		Registrar:      registrationRepo,
		Profiles:       identityService,
		Devices:        devices,
		Codes:          codes,
		Issuer:         issuer,
		Views:          views,
		Jobs:           dispatcher,
		ResendCooldown: time.Duration(cfg.OTP.ResendCooldownSeconds) * time.Second,
	})

	deps := handler.RouterDeps{
		Auth:            handler.NewAuthHandler(authService, cfg.Production),
		Identity:        handler.NewIdentityHandler(identityService, deviceService),
		Properties:      handler.NewPropertiesHandler(cfg.Properties),
		Gate:            middleware.NewAuthGate(issuer, identityService, middleware.DefaultExemptRoutes),
		ResendRateLimit: time.Duration(cfg.OTP.ResendRateLimitSeconds) * time.Second,
	}
	if cfg.Properties.EnableOAuth {
		registry, err := oauth.NewRegistry(cfg.OAuth, &http.Client{Timeout: 10 * time.Second})
		if err != nil {
			return fmt.Errorf("init oauth providers: %w", err)
		}
		oauthService := service.NewOAuthService(registry, oauthRepo, identityRepo, registrationRepo, authService)
		deps.OAuth = handler.NewOAuthHandler(oauthService, oauth.NewStateStore(), cfg.Production)
	}

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	log.Info("http server listening", zap.String("addr", addr))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("server stopping...")
	return nil
}
