package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"catalog-service/cache"
	"catalog-service/common/logger"
	commonmw "catalog-service/common/middleware"
	"catalog-service/controllers"
	"catalog-service/database"
	"catalog-service/models"
	awspkg "catalog-service/pkg/aws"
	pkgdynamodb "catalog-service/pkg/dynamodb"
	"catalog-service/queue"
	"catalog-service/repository"
	"catalog-service/routes"
	"catalog-service/services"
	"catalog-service/storage"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const serviceName = "catalog-service"

func main() {
	// Boot logger; replaced once the config is known
	if _, err := logger.Initialize(os.Getenv("APP_ENV"), nil); err != nil {
		panic("failed to initialize logger: " + err.Error())
	}

	cfg, err := LoadConfig()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- 1. AWS and logging ---

	var awsCfg sdkaws.Config
	if cfg.usesAWS() {
		awsCfg, err = awspkg.LoadAWSConfig(ctx, cfg.AWS)
		if err != nil {
			zap.L().Fatal("Failed to load AWS config", zap.Error(err))
		}
		zap.L().Info("AWS Configuration",
			zap.String("AWS_ENDPOINT", cfg.AWS.Endpoint),
			zap.String("AWS_REGION", cfg.AWS.Region),
		)
	}

	var logSink *awspkg.CloudWatchLogsClient
	if cfg.CloudWatchEnabled {
		logSink, err = awspkg.NewCloudWatchLogsClient(ctx, awsCfg, "/catalog/"+cfg.Env, serviceName)
		if err != nil {
			zap.L().Warn("CloudWatch log sink unavailable, logging to stdout only", zap.Error(err))
			logSink = nil
		}
	}
	var log *zap.Logger
	if logSink != nil {
		log, err = logger.Initialize(cfg.Env, logSink)
	} else {
		log, err = logger.Initialize(cfg.Env, nil)
	}
	if err != nil {
		zap.L().Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer log.Sync()

	metrics := awspkg.NewMetricsClient(awsCfg, "Catalog", cfg.MetricsEnabled)

	// --- 2. Redis ---

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			zap.L().Warn("Failed to parse REDIS_URL, falling back to default", zap.Error(err))
			redisOpts = &redis.Options{Addr: "redis:6379", DB: 0}
		}
		rdb = redis.NewClient(redisOpts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			zap.L().Warn("Redis is not reachable yet", zap.Error(err))
		}
	}

	readCache := cache.NewCacheManager(nil, 0)
	var revoked services.RevocationList = services.NewMemoryRevocationList()
	if rdb != nil {
		readCache = cache.NewCacheManager(rdb, cache.DefaultTTL)
		revoked = services.NewRedisRevocationList(rdb)
	}

	// --- 3. Persistence ---

	// Users always live in the relational store; DynamoDB only holds products.
	dbOpts := cfg.DB
	if cfg.DBDriver == "dynamodb" {
		dbOpts.Driver = "sqlite"
	}
	db, err := database.Connect(dbOpts)
	if err != nil {
		zap.L().Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		zap.L().Fatal("Failed to migrate database", zap.Error(err))
	}
	users := repository.NewGormUserRepository(db)

	var products repository.ProductRepo
	switch cfg.DBDriver {
	case "dynamodb":
		ddbClient := pkgdynamodb.NewClientFromConfig(awsCfg, cfg.AWS.Endpoint)
		if err := repository.EnsureTable(ctx, ddbClient, cfg.DDBTable); err != nil {
			zap.L().Fatal("Failed to ensure products table", zap.String("table", cfg.DDBTable), zap.Error(err))
		}
		products = repository.NewDynamoAdapter(ddbClient, cfg.DDBTable)
	default:
		products = repository.NewGormProductRepository(db)
	}

	if cfg.Seed {
		if err := database.Seed(ctx, users, products); err != nil {
			zap.L().Fatal("Failed to seed database", zap.Error(err))
		}
	}

	var store storage.BlobStore
	switch cfg.StorageDriver {
	case "s3":
		s3Client := awspkg.NewS3Client(awsCfg, cfg.S3Endpoint)
		store = storage.NewS3Store(s3Client, cfg.S3Bucket, cfg.S3Prefix, cfg.S3Endpoint, cfg.CDNDomain)
	default:
		local, err := storage.NewLocalStore(cfg.StorageRoot)
		if err != nil {
			zap.L().Fatal("Failed to prepare local storage", zap.Error(err))
		}
		store = local
	}

	// --- 4. Upload pipeline ---

	var events services.EventPublisher
	if cfg.SNSTopicArn != "" {
		events = services.NewSNSEventPublisher(awspkg.NewSNSClient(awsCfg), cfg.SNSTopicArn)
	}

	uploadJob := services.NewUploadJob(products, store, events, readCache, metrics)
	dispatcher := queue.NewDispatcher()
	dispatcher.Register(services.UploadJobType, uploadJob.Handle)

	policy := queue.Policy{MaxAttempts: cfg.QueueMaxAttempts, Backoff: cfg.QueueBackoff}
	var (
		jobs   queue.Queue
		runner queue.Runner
	)
	switch cfg.QueueDriver {
	case "redis":
		rq := queue.NewRedisQueue(rdb, cfg.QueueName, dispatcher, policy, cfg.QueueWorkers)
		jobs, runner = rq, rq
	case "sqs":
		sq := queue.NewSQSQueue(awspkg.NewSQSClient(awsCfg), cfg.SQSQueueURL, cfg.SQSDeadLetterURL, dispatcher, policy, cfg.QueueWorkers)
		jobs, runner = sq, sq
	default:
		deadLetters := queue.DeadLetterFunc(func(ctx context.Context, dl queue.DeadLetter) error {
			return metrics.RecordCount(ctx, awspkg.MetricJobsDeadLettered, map[string]string{"JobType": dl.Job.Type})
		})
		mq := queue.NewMemoryQueue(dispatcher, policy, cfg.QueueWorkers, cfg.QueueCapacity, deadLetters)
		jobs, runner = mq, mq
	}
	zap.L().Info("Upload queue configured", zap.String("driver", cfg.QueueDriver), zap.Int("workers", cfg.QueueWorkers))

	// Products left pending by a crash mid-move are resolved before new jobs run.
	if n, err := services.NewReconciler(products, store, readCache).Reconcile(ctx); err != nil {
		zap.L().Error("Upload reconciliation failed", zap.Error(err))
	} else if n > 0 {
		zap.L().Info("Reconciled interrupted uploads", zap.Int("count", n))
	}

	validator := services.NewProductValidator(models.ParseCategories(cfg.Categories), cfg.UploadMaxBytes)
	productService := services.NewProductService(products, store, jobs, validator, readCache, metrics)

	tokens, err := services.NewTokenService(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		zap.L().Fatal("Failed to create token service", zap.Error(err))
	}
	authService := services.NewAuthService(users, tokens, revoked)

	requestValidator := controllers.NewRequestValidator(cfg.UploadMaxBytes)
	productController := controllers.NewProductController(productService, readCache, requestValidator, cfg.AppURL)
	authController := controllers.NewAuthController(authService, requestValidator)

	loginPerMin := cfg.LoginRatePerMin
	if loginPerMin < 1 {
		loginPerMin = 1
	}
	loginLimiter := commonmw.NewRateLimiter(rate.Every(time.Minute/time.Duration(loginPerMin)), loginPerMin, 10*time.Minute)

	// --- 5. HTTP Server & Middleware ---

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.MaxMultipartMemory = cfg.UploadMaxBytes + 1<<20
	r.Use(gin.Recovery())
	r.Use(logger.RequestID())
	r.Use(commonmw.RequestLogger(log))
	r.Use(commonmw.SecurityHeaders())
	r.Use(commonmw.CORS(cfg.AllowedOrigins))
	r.Use(commonmw.MetricsMiddleware(metrics, serviceName))

	routes.RegisterRoutes(r, routes.Deps{
		Products:      productController,
		Auth:          authController,
		Authenticator: authService,
		LoginLimiter:  loginLimiter,
		Store:         store,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// --- 6. Run until signalled ---

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zap.L().Info("Catalog Service starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return runner.Run(gctx)
	})
	g.Go(func() error {
		return loginLimiter.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("Shutting down Catalog Service...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		zap.L().Error("Catalog Service stopped with error", zap.Error(err))
	}

	if rdb != nil {
		if err := rdb.Close(); err != nil {
			zap.L().Error("Failed to close Redis", zap.Error(err))
		}
	}
	if err := database.Close(db); err != nil {
		zap.L().Error("Failed to close database", zap.Error(err))
	}

	zap.L().Info("Catalog Service stopped gracefully")
}
