package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alam-gir/wafipix-backend/internal/audit"
	"github.com/alam-gir/wafipix-backend/internal/client"
	"github.com/alam-gir/wafipix-backend/internal/config"
	"github.com/alam-gir/wafipix-backend/internal/hashing"
	"github.com/alam-gir/wafipix-backend/internal/keys"
	"github.com/alam-gir/wafipix-backend/internal/notify"
	"github.com/alam-gir/wafipix-backend/internal/otp"
	redisrepo "github.com/alam-gir/wafipix-backend/internal/repository/redis"
	"github.com/alam-gir/wafipix-backend/internal/repository/scylla"
	"github.com/alam-gir/wafipix-backend/internal/service"
	"github.com/alam-gir/wafipix-backend/internal/session"
	"github.com/alam-gir/wafipix-backend/internal/tls"
	"github.com/alam-gir/wafipix-backend/internal/token"
	"github.com/alam-gir/wafipix-backend/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Managers
	hasher       *hashing.Hasher
	keyProvider  *keys.Provider
	tokenManager *token.Manager
	notifyPool   *notify.Pool
	recorder     audit.Recorder

	// Repositories
	principalRepo *scylla.PrincipalRepository
	otpRepo       *scylla.OTPRepository
	sessionRepo   *scylla.SessionRepository
	rateLimiter   *redisrepo.RateLimitCache

	// Engines and services
	otpEngine     *otp.Engine
	sessionEngine *session.Engine
	authService   *service.AuthService

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		factory.tlsManager = tls.NewTLSManager(&tls.TLSConfig{
			EnableTLS:   cfg.Server.EnableTLS,
			AutoCert:    cfg.Server.AutoCert,
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.Email,
			Environment: cfg.Environment,
		})
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	if err := factory.initializeManagers(); err != nil {
		return nil, fmt.Errorf("failed to initialize managers: %w", err)
	}

	factory.initializeDomain()

	util.Info("factory initialized",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
	)

	return factory, nil
}

// initializeClients initializes all external service clients with health checks
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	// Redis
	if c, err := client.NewRedisClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else {
		f.redisClient = c
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
		}
	}

	// ScyllaDB
	if c, err := scylla.NewScyllaClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
	} else {
		f.scyllaClient = c
		if err := f.scyllaClient.HealthCheck(); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
		}
	}

	// Kafka: analytics plane, never a startup blocker
	if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
		util.Warn("kafka producer initialization failed, proceeding without", util.ErrorField(err))
	} else {
		f.kafkaProducer = producer
	}

	// Elasticsearch: analytics plane
	if c, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
		util.Warn("elasticsearch initialization failed, proceeding without", util.ErrorField(err))
	} else {
		f.esClient = c
	}

	// ClickHouse: analytics plane
	if c, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
		util.Warn("clickhouse initialization failed, proceeding without", util.ErrorField(err))
	} else {
		f.clickhouseClient = c
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

func (f *Factory) initializeManagers() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	f.hasher = hashing.NewHasher(f.config)
	if f.config.IsProduction() {
		f.hasher.StartPepperRotation()
	}

	provider, err := keys.NewProvider(ctx, f.config)
	if err != nil {
		return fmt.Errorf("signing key provider: %w", err)
	}
	f.keyProvider = provider

	manager, err := token.NewManager(token.Config{
		SigningKey: provider.SigningKey(),
		AccessTTL:  f.config.Auth.AccessTTL,
		RefreshTTL: f.config.Auth.RefreshTTL,
		Issuer:     "wafipix",
		Leeway:     30 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("token manager: %w", err)
	}
	f.tokenManager = manager

	var sender notify.Notifier
	if f.config.IsProduction() {
		sender = notify.NewSMTPSender(f.config.SMTP)
	} else {
		sender = notify.LoggingSender{}
	}
	f.notifyPool = notify.NewPool(sender, f.config.SMTP.Workers, f.config.SMTP.QueueLen)

	if f.kafkaProducer != nil || f.clickhouseClient != nil || f.esClient != nil {
		f.recorder = audit.NewMultiRecorder(f.config, f.kafkaProducer, f.clickhouseClient, f.esClient)
	} else {
		f.recorder = audit.NopRecorder{}
	}

	return nil
}

func (f *Factory) initializeDomain() {
	f.principalRepo = scylla.NewPrincipalRepository(f.scyllaClient, util.Get())
	f.otpRepo = scylla.NewOTPRepository(f.scyllaClient, util.Get())
	f.sessionRepo = scylla.NewSessionRepository(f.scyllaClient, util.Get())
	f.rateLimiter = redisrepo.NewRateLimitCache(f.redisClient)

	f.otpEngine = otp.NewEngine(f.config, f.otpRepo, f.rateLimiter, f.hasher, f.notifyPool, f.recorder)
	f.sessionEngine = session.NewEngine(f.sessionRepo, f.principalRepo, f.tokenManager, f.recorder)
	f.authService = service.NewAuthService(f.config, f.principalRepo, f.otpEngine, f.sessionEngine, f.recorder)
}

// HealthCheck reports the state of every client.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	} else {
		healthErrors["redis"] = fmt.Errorf("redis client not initialized")
	}

	if f.scyllaClient != nil {
		if err := f.scyllaClient.HealthCheck(); err != nil {
			healthErrors["scylla"] = err
		}
	} else {
		healthErrors["scylla"] = fmt.Errorf("scylla client not initialized")
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	if f.esClient != nil {
		if err := f.esClient.HealthCheck(); err != nil {
			healthErrors["elasticsearch"] = err
		}
	}

	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}

	return healthErrors
}

// IsHealthy ignores the analytics plane; only the credential path
// gates readiness.
func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	delete(healthErrors, "elasticsearch")
	delete(healthErrors, "clickhouse")
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("shutting down factory")

		if f.notifyPool != nil {
			f.notifyPool.Close()
		}

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("failed to close ClickHouse client", util.ErrorField(err))
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("failed to close Kafka producer", util.ErrorField(err))
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("failed to close Redis client", util.ErrorField(err))
			}
		}

		util.Sync()
		util.Info("factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

func (f *Factory) TokenManager() *token.Manager {
	return f.tokenManager
}

func (f *Factory) PrincipalRepository() *scylla.PrincipalRepository {
	return f.principalRepo
}

func (f *Factory) OTPEngine() *otp.Engine {
	return f.otpEngine
}

func (f *Factory) SessionEngine() *session.Engine {
	return f.sessionEngine
}

func (f *Factory) AuthService() *service.AuthService {
	return f.authService
}
