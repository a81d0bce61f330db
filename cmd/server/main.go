package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	grpchealth "google.golang.org/grpc/health"

	"taskflow/backend/internal/audit"
	auditrepo "taskflow/backend/internal/audit/repository"
	"taskflow/backend/internal/config"
	confirmationrepo "taskflow/backend/internal/confirmation/repository"
	"taskflow/backend/internal/db"
	"taskflow/backend/internal/health"
	"taskflow/backend/internal/i18n"
	"taskflow/backend/internal/identity/service"
	"taskflow/backend/internal/jobs"
	"taskflow/backend/internal/logging"
	"taskflow/backend/internal/mail"
	"taskflow/backend/internal/policy/engine"
	refreshtokenrepo "taskflow/backend/internal/refreshtoken/repository"
	rolerepo "taskflow/backend/internal/role/repository"
	"taskflow/backend/internal/security"
	"taskflow/backend/internal/server"
	"taskflow/backend/internal/server/middleware"
	sessionrepo "taskflow/backend/internal/session/repository"
	"taskflow/backend/internal/telemetry"
	telemetryotel "taskflow/backend/internal/telemetry/otel"
	userrepo "taskflow/backend/internal/user/repository"
)

const healthWatchInterval = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.OTelServiceName,
		Insecure:    cfg.OTLPInsecure,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal("otel", zap.Error(err))
	}
	providers.SetGlobal()
	metrics, err := telemetry.NewAuthMetrics(providers.MeterProvider.Meter("taskflow/auth"))
	if err != nil {
		logger.Fatal("metrics", zap.Error(err))
	}

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db", zap.Error(err))
	}
	defer conn.Close()
	tx := db.NewTxManager(conn)

	users := userrepo.NewPostgresRepository(conn)
	roles := rolerepo.NewPostgresRepository(conn)
	sessions := sessionrepo.NewPostgresRepository(conn)
	refreshTokens := refreshtokenrepo.NewPostgresRepository(conn)
	codes := confirmationrepo.NewPostgresRepository(conn)

	privateKey, publicKey, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey, !cfg.IsProduction())
	if err != nil {
		logger.Fatal("jwt keys", zap.Error(err))
	}
	tokens := security.NewTokenProvider(privateKey, publicKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL())

	var policySource string
	if cfg.SignInPolicyPath != "" {
		policySource, err = engine.LoadPolicy(cfg.SignInPolicyPath)
		if err != nil {
			logger.Fatal("sign-in policy", zap.Error(err))
		}
	}
	policy, err := engine.NewOPAEvaluator(ctx, policySource, logger)
	if err != nil {
		logger.Fatal("sign-in policy", zap.Error(err))
	}

	var sender mail.Sender = mail.NewLogSender(logger)
	if cfg.SMTPHost != "" {
		sender = mail.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom)
	}
	runner := jobs.NewRunner(mail.NewRenderer(cfg.AppBaseURL), sender, tx, sessions, refreshTokens, logger)

	var enqueuer jobs.Enqueuer
	if brokers := cfg.KafkaBrokersList(); len(brokers) > 0 {
		k, err := jobs.NewKafkaEnqueuer(brokers, cfg.JobsKafkaTopic)
		if err != nil {
			logger.Fatal("jobs: kafka", zap.Error(err))
		}
		defer k.Close()
		enqueuer = k
		logger.Info("jobs: publishing to kafka", zap.Strings("brokers", brokers), zap.String("topic", cfg.JobsKafkaTopic))
	} else {
		local := jobs.NewLocalEnqueuer(runner, logger)
		defer local.Wait()
		enqueuer = local
		logger.Info("jobs: running in-process")
	}

	auth := service.NewAuthService(service.Deps{
		Users:         users,
		Roles:         roles,
		Sessions:      sessions,
		RefreshTokens: refreshTokens,
		Codes:         codes,
		UnitOfWork:    tx,
		Hasher:        security.NewHasher(cfg.BcryptCost),
		Tokens:        tokens,
		Policy:        policy,
		Jobs:          enqueuer,
		Audit:         audit.NewLogger(auditrepo.NewPostgresRepository(conn), middleware.ClientIP, logger),
		Events:        telemetryotel.NewEventEmitter(providers.LoggerProvider),
		Metrics:       metrics,
		Logger:        logger,
	}, authOptions(cfg))

	var limiter middleware.Limiter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		limiter = middleware.NewRedisLimiter(rdb, "", cfg.RateLimitRequests, cfg.RateLimitWindowValue())
	}

	checker := health.NewChecker(conn, policy)
	tr := i18n.New()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := server.NewRouter(server.Deps{
		Auth:       auth,
		Tokens:     tokens,
		Sessions:   auth,
		Limiter:    limiter,
		Health:     checker,
		Translator: tr,
		Logger:     logger,
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http serve", zap.Error(err))
		}
	}()

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	grpcSrv := server.NewGRPCServer()
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			logger.Fatal("grpc listen", zap.Error(err))
		}
		hs := grpchealth.NewServer()
		server.RegisterServices(grpcSrv, hs)
		go checker.Watch(watchCtx, hs, healthWatchInterval, logger)
		go func() {
			logger.Info("grpc health server listening", zap.String("addr", cfg.GRPCAddr))
			if err := grpcSrv.Serve(lis); err != nil {
				logger.Fatal("grpc serve", zap.Error(err))
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	stopWatch()
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	grpcSrv.GracefulStop()

	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Warn("otel shutdown", zap.Error(err))
	}
	logger.Info("stopped")
}

func authOptions(cfg *config.Config) service.Options {
	return service.Options{
		MaxFailedAccessAttempts:  cfg.LockoutMaxFailedAttempts,
		LockoutDuration:          cfg.LockoutDurationValue(),
		LockoutEnabled:           cfg.LockoutEnabled,
		MaxActiveSessionsPerUser: cfg.MaxActiveSessionsPerUser,
		RequireConfirmedEmail:    cfg.RequireConfirmedEmail,
		RequireConfirmedPhone:    cfg.RequireConfirmedPhone,
		ConfirmationCodeTTL:      cfg.ConfirmationCodeTTLValue(),
		ConfirmationCodeLength:   cfg.ConfirmationCodeLength,
		DefaultRole:              cfg.DefaultRole,
		PasswordPolicy:           cfg.PasswordPolicy(),
	}
}
