// Root composition root. Owns infrastructure (DB, Redis, S3, imaging
// provider) and composes the control plane. This is the only place
// that knows about ALL modules.
package main

import (
	"context"
	"time"

	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/relightlabs/relight/pkg/asyncx"
	"github.com/relightlabs/relight/pkg/auditx"
	"github.com/relightlabs/relight/pkg/config"
	"github.com/relightlabs/relight/pkg/imagestore"
	"github.com/relightlabs/relight/pkg/imagestore/imagestorelocal"
	"github.com/relightlabs/relight/pkg/imagestore/imagestores3"
	"github.com/relightlabs/relight/pkg/imaging"
	"github.com/relightlabs/relight/pkg/imaging/providers/imggemini"
	"github.com/relightlabs/relight/pkg/imaging/providers/imgopenai"
	"github.com/relightlabs/relight/pkg/jobq"
	"github.com/relightlabs/relight/pkg/jobq/jobqmem"
	"github.com/relightlabs/relight/pkg/jobq/jobqredis"
	"github.com/relightlabs/relight/pkg/logx"
	"github.com/relightlabs/relight/pkg/notify"
	"github.com/relightlabs/relight/pkg/notify/notifyconsole"
	"github.com/relightlabs/relight/pkg/notify/notifyses"
	"github.com/relightlabs/relight/pkg/pipeline"
	"github.com/relightlabs/relight/pkg/qc"
	"github.com/relightlabs/relight/pkg/ratex"
	"github.com/relightlabs/relight/pkg/restorer"
	"github.com/relightlabs/relight/pkg/retryx"
	"github.com/relightlabs/relight/pkg/workflowstore"
	"github.com/relightlabs/relight/pkg/workflowstore/workflowpg"
)

// retainedSummaries bounds how many finalized audit summaries stay
// resident after their jobs are evicted.
const retainedSummaries = 256

// Container holds shared infrastructure and the composed control plane.
type Container struct {
	Config *config.Config
	Logger *logx.Logger

	// Infrastructure
	DB    *sqlx.DB
	Redis *redis.Client

	// Control plane
	Machine  *pipeline.Machine
	Jobs     *jobq.Client
	Notifier *notify.JobNotifier // nil when notifications are disabled
}

// NewContainer wires the whole worker from configuration.
func NewContainer(ctx context.Context, cfg *config.Config, logger *logx.Logger) (*Container, error) {
	logger.Info("🔧 Initializing application container...")

	c := &Container{Config: cfg, Logger: logger}

	workflow, err := c.initWorkflowStore(ctx)
	if err != nil {
		return nil, err
	}

	images, err := c.initImageStore(ctx)
	if err != nil {
		return nil, err
	}

	imagingSvc, err := c.initImaging(ctx)
	if err != nil {
		return nil, err
	}

	audit, err := auditx.New(retainedSummaries, logger)
	if err != nil {
		return nil, err
	}

	limiter := c.initLimiter()
	thresholds := qc.LoadThresholds(cfg.Pipeline.QCThresholdsPath, logger)

	stager := restorer.New(imagingSvc, images, limiter, audit, logger,
		restorer.WithDefaultModel(cfg.Imaging.Model))

	c.Machine = pipeline.NewMachine(pipeline.MachineConfig{
		Engine:       qc.NewEngine(thresholds),
		Retries:      retryx.NewManager(thresholds),
		Audit:        audit,
		Store:        workflow,
		Stager:       stager,
		Logger:       logger,
		Retention:    cfg.Pipeline.Retention,
		StageTimeout: cfg.Pipeline.StageTimeout,
	})

	if err := c.initQueue(ctx); err != nil {
		return nil, err
	}

	if err := c.initNotifier(ctx); err != nil {
		return nil, err
	}

	logger.Info("✅ Application container initialized")
	return c, nil
}

func (c *Container) initWorkflowStore(ctx context.Context) (workflowstore.Store, error) {
	if !c.Config.Database.Enabled() {
		c.Logger.Info("  ⏭️ Workflow datastore disabled (no database URL)")
		return workflowstore.NewNoop(), nil
	}

	db, err := asyncx.RetryWithBackoff(ctx, 5, time.Second, func(ctx context.Context) (*sqlx.DB, error) {
		return sqlx.ConnectContext(ctx, "postgres", c.Config.Database.URL)
	})
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(c.Config.Database.MaxOpenConns)
	db.SetMaxIdleConns(c.Config.Database.MaxIdleConns)
	c.DB = db

	c.Logger.Info("  ✅ Workflow datastore connected")
	return workflowpg.NewPostgresStore(db), nil
}

func (c *Container) initImageStore(ctx context.Context) (imagestore.Store, error) {
	switch c.Config.ImageStore.Provider {
	case "s3":
		awsCfg, err := awsConfig.LoadDefaultConfig(ctx,
			awsConfig.WithRegion(c.Config.ImageStore.S3Region))
		if err != nil {
			return nil, err
		}
		store := imagestores3.New(s3.NewFromConfig(awsCfg),
			c.Config.ImageStore.S3Bucket, c.Config.ImageStore.S3Prefix)
		c.Logger.Infof("  ✅ S3 image store configured (bucket: %s)", c.Config.ImageStore.S3Bucket)
		return store, nil

	default:
		store, err := imagestorelocal.New(c.Config.ImageStore.LocalPath)
		if err != nil {
			return nil, err
		}
		c.Logger.Infof("  ✅ Local image store configured (path: %s)", c.Config.ImageStore.LocalPath)
		return store, nil
	}
}

func (c *Container) initImaging(ctx context.Context) (imaging.Service, error) {
	switch c.Config.Imaging.Provider {
	case "openai":
		var opts []imgopenai.ProviderOption
		if c.Config.Imaging.Model != "" {
			opts = append(opts, imgopenai.WithImageModel(c.Config.Imaging.Model))
		}
		c.Logger.Info("  ✅ OpenAI imaging provider configured")
		return imgopenai.New(c.Config.Imaging.APIKey, opts...), nil

	default:
		var opts []imggemini.ProviderOption
		if c.Config.Imaging.Model != "" {
			opts = append(opts, imggemini.WithModel(c.Config.Imaging.Model))
		}
		provider, err := imggemini.New(ctx, c.Config.Imaging.APIKey, opts...)
		if err != nil {
			return nil, err
		}
		c.Logger.Info("  ✅ Gemini imaging provider configured")
		return provider, nil
	}
}

func (c *Container) initLimiter() *ratex.Limiter {
	limiter := ratex.New(ratex.Config{}, c.Logger)
	limiter.Configure(ratex.ClassGeneration, rateConfig(c.Config.RateLimits.Generation))
	limiter.Configure(ratex.ClassLargeFile, rateConfig(c.Config.RateLimits.LargeFile))
	return limiter
}

func rateConfig(rl config.RateLimit) ratex.Config {
	return ratex.Config{
		RequestsPerWindow: rl.RequestsPerWindow,
		Window:            rl.Window,
		BaseDelay:         rl.BaseDelay,
		MaxDelay:          rl.MaxDelay,
		MaxAttempts:       rl.MaxAttempts,
	}
}

func (c *Container) initQueue(ctx context.Context) error {
	var queue jobq.Queue
	if c.Config.Redis.Enabled() {
		c.Redis = redis.NewClient(&redis.Options{
			Addr:     c.Config.Redis.Addr,
			Password: c.Config.Redis.Password,
			DB:       c.Config.Redis.DB,
		})
		if _, err := c.Redis.Ping(ctx).Result(); err != nil {
			return err
		}
		queue = jobqredis.NewRedisQueue(c.Redis)
		c.Logger.Info("  ✅ Redis job queue connected")
	} else {
		queue = jobqmem.NewMemoryQueue()
		c.Logger.Info("  ⏭️ In-memory job queue (no Redis address)")
	}

	c.Jobs = jobq.NewClient(queue, c.Logger,
		jobq.WithQueues(jobq.DefaultQueue),
		jobq.WithConcurrency(c.Config.Pipeline.MaxConcurrentJobs),
	)
	return nil
}

func (c *Container) initNotifier(ctx context.Context) error {
	if !c.Config.Notifications.Enabled {
		return nil
	}

	var provider notify.EmailSender
	switch c.Config.Notifications.Provider {
	case "ses":
		awsCfg, err := awsConfig.LoadDefaultConfig(ctx,
			awsConfig.WithRegion(c.Config.Notifications.Region))
		if err != nil {
			return err
		}
		provider = notifyses.NewSESProvider(ses.NewFromConfig(awsCfg), c.Config.Notifications.From)
	default:
		provider = notifyconsole.NewConsoleProvider(c.Logger)
	}

	notifier, err := notify.NewJobNotifier(provider,
		c.Config.Notifications.From, c.Config.Notifications.To)
	if err != nil {
		return err
	}
	c.Notifier = notifier
	c.Logger.Infof("  ✅ Notifications enabled (%s)", c.Config.Notifications.Provider)
	return nil
}

// Cleanup releases infrastructure connections.
func (c *Container) Cleanup() {
	c.Logger.Info("🧹 Cleaning up resources...")

	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			c.Logger.Errorf("Error closing database: %v", err)
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Errorf("Error closing Redis: %v", err)
		}
	}

	c.Logger.Info("✅ Cleanup complete")
}
