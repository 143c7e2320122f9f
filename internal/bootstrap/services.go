package bootstrap

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/universalbff/user-api/config"
	"github.com/universalbff/user-api/internal/adapters/localcred"
	"github.com/universalbff/user-api/internal/adapters/oauthops"
	redisadapter "github.com/universalbff/user-api/internal/adapters/redis"
	"github.com/universalbff/user-api/internal/data"
	"github.com/universalbff/user-api/internal/observability/statsd"
	"github.com/universalbff/user-api/internal/ports"
	"github.com/universalbff/user-api/internal/service"
	"github.com/universalbff/user-api/internal/snowflake"
)

// ServiceDeps carries the process-level resources services are built from.
type ServiceDeps struct {
	DB     *sql.DB
	Redis  redis.UniversalClient
	Config *config.AppConfig
	Logger *slog.Logger
}

// ServiceContainer holds the constructed domain services.
type ServiceContainer struct {
	Users   *service.UserService
	Metrics *statsd.Client
}

// NewServices builds the facade and its adapters.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.DB == nil || deps.Config == nil {
		return ServiceContainer{}, fmt.Errorf("bootstrap: db and config are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	generator, err := snowflake.New(deps.Config.Proxy.NodeID)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("bootstrap: id generator: %w", err)
	}

	metrics := buildMetrics(logger, deps.Config.Observability)

	credentials := data.NewCredentialRepo(deps.DB)

	var locality ports.Cache
	if deps.Redis != nil {
		locality = redisadapter.NewLocalityCache(deps.Redis)
	}

	users := service.NewUserService(service.UserServiceOptions{
		Targets:           data.NewProxyTargetRepo(deps.DB),
		Tenants:           data.NewTenantRepo(deps.DB),
		Credentials:       credentials,
		Identities:        data.NewIdentityRepo(deps.DB),
		CredentialService: localcred.NewService(credentials),
		Providers:         oauthops.NewRegistry(),
		Generator:         generator,
		Locality:          locality,
		Config: service.Config{
			ProxyAuthURL:      deps.Config.Proxy.AuthURL,
			ProxyRetrievalURL: deps.Config.Proxy.RetrievalURL,
			IssuerName:        deps.Config.Proxy.IssuerName,
			SigningKey:        []byte(deps.Config.Proxy.SigningKey),
			TokenTTL:          deps.Config.Proxy.TokenTTL,
		},
		Logger:  logger,
		Metrics: metrics,
	})

	return ServiceContainer{Users: users, Metrics: metrics}, nil
}

func buildMetrics(logger *slog.Logger, cfg config.ObservabilityConfig) *statsd.Client {
	if !cfg.Metrics.IsEnabled() {
		return nil
	}
	client, err := statsd.NewClient(statsd.Config{
		Address: cfg.Metrics.StatsdAddress,
		Prefix:  cfg.Metrics.Prefix,
		Enabled: true,
	})
	if err != nil {
		logger.Warn("statsd client unavailable; metrics disabled", "error", err)
		return nil
	}
	return client
}
