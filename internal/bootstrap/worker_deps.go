package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"calsync_server/adapter/in/http"
	"calsync_server/adapter/out/mail"
	"calsync_server/adapter/out/messaging"
	"calsync_server/adapter/out/mongodb"
	"calsync_server/adapter/out/objectstore"
	"calsync_server/adapter/out/persistence"
	"calsync_server/adapter/out/provider"
	"calsync_server/config"
	"calsync_server/core/port/out"
	"calsync_server/core/service/auth"
	"calsync_server/core/service/calendar"
	"calsync_server/core/service/user"
	"calsync_server/pkg/logger"
)

// Dependencies holds every wired component.
type Dependencies struct {
	Config *config.Config

	Store out.DocumentStore
	Redis *redis.Client
	Mongo *mongo.Client
	Queue out.TriggerQueue

	Sessions     *auth.SessionSigner
	OAuthService *auth.OAuthService
	UserService  *user.Service
	SyncService  *calendar.SyncService

	HealthChecks map[string]http.HealthCheck
	Log          zerolog.Logger
}

// needsAWS reports whether any configured collaborator is an AWS service.
func needsAWS(cfg *config.Config) bool {
	return cfg.StoreBackend == config.StoreS3 || cfg.NotifySender != "" ||
		cfg.SQSQueueName != "" || cfg.SQSQueueURL != "" || cfg.SNSTopicARN != "" ||
		cfg.SSMParameterPrefix != ""
}

func loadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

// LoadSecrets applies SSM Parameter Store secrets to cfg when a prefix is
// configured.
func LoadSecrets(ctx context.Context, cfg *config.Config) error {
	if cfg.SSMParameterPrefix == "" {
		return nil
	}
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return err
	}
	return cfg.LoadSecrets(ctx, ssm.NewFromConfig(awsCfg))
}

// NewDependencies connects the configured backends and wires the services.
// The returned cleanup closes every connection opened.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	d := &Dependencies{
		Config:       cfg,
		HealthChecks: map[string]http.HealthCheck{},
		Log:          logger.Component(""),
	}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	var awsCfg aws.Config
	if needsAWS(cfg) {
		var err error
		if awsCfg, err = loadAWSConfig(ctx, cfg); err != nil {
			return fail(err)
		}
	}

	// Document store
	switch cfg.StoreBackend {
	case config.StoreS3:
		d.Store = objectstore.NewS3Store(objectstore.NewS3Client(awsCfg, cfg.S3Endpoint))
	case config.StoreMongo:
		client, err := mongodb.NewClient(ctx, cfg.MongoDBURL)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(shutdownCtx)
		})
		adapter := mongodb.NewDocumentAdapter(client.Database(cfg.MongoDBName))
		if err := adapter.EnsureIndexes(ctx); err != nil {
			return fail(err)
		}
		d.Mongo = client
		d.Store = adapter
		d.HealthChecks["mongodb"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
	case config.StoreMemory:
		logger.Warn("Using in-memory document store, data is lost on restart")
		d.Store = objectstore.NewMemoryStore()
	}

	// Redis
	if cfg.RedisURL != "" {
		client, err := persistence.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { _ = client.Close() })
		d.Redis = client
		d.HealthChecks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}

	if cfg.JWTSecret == "" {
		return fail(errors.New("JWT_SECRET is required"))
	}
	d.Sessions = auth.NewSessionSigner(cfg.JWTSecret, auth.SessionTTL)

	var states auth.StateStore = auth.NewSignedStateStore(d.Sessions)
	if d.Redis != nil {
		states = persistence.NewRedisOAuthStateStore(d.Redis)
	}

	keys := cfg.Keys()
	d.OAuthService = auth.NewOAuthService(keys, d.Store,
		auth.NewGoogleConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL, cfg.GoogleScopes),
		auth.NewMicrosoftConfig(cfg.MicrosoftClientID, cfg.MicrosoftClientSecret, cfg.MicrosoftRedirectURL, cfg.MicrosoftTenantID, cfg.MicrosoftScopes),
		states,
	)
	d.UserService = user.NewService(keys, d.Store, d.OAuthService, d.Sessions, cfg.MergePolicy)

	// Sync
	sourceZone, _ := time.LoadLocation(cfg.SourceTimeZone)
	targetZone, _ := time.LoadLocation(cfg.TargetTimeZone)
	target := provider.NewGoogleCalendarAdapter(cfg.GoogleAPIEndpoint)
	source := provider.NewOutlookCalendarAdapter(cfg.GraphBaseURL, cfg.SourceTimeZone)

	var mailer out.Mailer = mail.LogMailer{}
	if cfg.NotifySender != "" {
		mailer = mail.NewSESMailer(sesv2.NewFromConfig(awsCfg), cfg.NotifySender)
	}

	d.SyncService = calendar.NewSyncService(calendar.SyncConfig{
		Keys:        keys,
		WindowDays:  cfg.SyncDays,
		Concurrency: cfg.SyncConcurrency,
		LockTTL:     cfg.SyncLockTTL,
	}, d.Store, source, target, d.OAuthService,
		calendar.NewRoomAllocator(target, sourceZone, targetZone),
		mailer, logger.Component("sync"))

	if d.Redis != nil {
		d.SyncService.SetRunLock(persistence.NewRedisRunLock(d.Redis))
	}
	if cfg.SNSTopicARN != "" {
		d.SyncService.SetReportPublisher(messaging.NewSNSReportPublisher(sns.NewFromConfig(awsCfg), cfg.SNSTopicARN))
	}

	// Trigger queue
	if cfg.SQSQueueName != "" || cfg.SQSQueueURL != "" {
		queue, err := messaging.NewSQSTriggerQueue(ctx, sqs.NewFromConfig(awsCfg), cfg.SQSQueueURL, cfg.SQSQueueName)
		if err != nil {
			return fail(err)
		}
		d.Queue = queue
	}

	logger.Info("Dependencies ready: store=%s redis=%t queue=%t reports=%t",
		cfg.StoreBackend, d.Redis != nil, d.Queue != nil, cfg.SNSTopicARN != "")
	return d, cleanup, nil
}
