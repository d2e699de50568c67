package app

import (
	"context"
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"voltcore/internal/authcache"
	"voltcore/internal/config"
	"voltcore/internal/coordinator"
	"voltcore/internal/db"
	"voltcore/internal/httpapi"
	"voltcore/internal/ledger"
	"voltcore/internal/liveness"
	"voltcore/internal/ocpp"
	"voltcore/internal/redisstore"
	"voltcore/internal/registry"
	"voltcore/internal/repository"
	"voltcore/internal/ws"
)

// App wires all dependencies for the central system.
type App struct {
	server      *httpapi.Server
	monitor     *liveness.Monitor
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

// New builds the application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	sqlDB, err := db.NewPostgres(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	redisClient, err := redisstore.NewClient(cfg.Redis.Addr, cfg.Redis.Password)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	pointRepo := repository.NewChargePointRepository(sqlDB)
	connectorRepo := repository.NewConnectorRepository(sqlDB)
	idTagRepo := repository.NewIdTagRepository(sqlDB)
	sessionRepo := repository.NewSessionRepository(sqlDB)
	meterRepo := repository.NewMeterValueRepository(sqlDB)
	messageLogRepo := repository.NewMessageLogRepository(sqlDB)
	transferRepo := repository.NewDataTransferRepository(sqlDB)

	// Transaction ids continue past the highest one ever issued, so a
	// restart never reuses an id a device may still reference.
	seed, err := sessionRepo.MaxTransactionID(context.Background())
	if err != nil {
		sqlDB.Close()
		redisClient.Close()
		return nil, err
	}

	reg := registry.New()
	led := ledger.New(sessionRepo, meterRepo, seed, logger)
	auth := authcache.New(idTagRepo, cfg.AuthCacheTTL(), logger)
	mirror := redisstore.NewStore(redisClient, 24*time.Hour)

	coord := coordinator.New(coordinator.Options{
		Registry:          reg,
		Ledger:            led,
		Auth:              auth,
		ChargePoints:      pointRepo,
		Connectors:        connectorRepo,
		Transfers:         transferRepo,
		Mirror:            mirror,
		HeartbeatInterval: cfg.HeartbeatInterval(),
		CommandTimeout:    cfg.CommandTimeout(),
		Logger:            logger,
	})

	processor := ocpp.NewProcessor(coord, messageLogRepo, logger)
	wsServer := ws.NewServer(reg, processor, pointRepo, cfg.WriteTimeout(), logger)

	monitor := liveness.NewMonitor(reg, pointRepo, cfg.SweepInterval(), cfg.OfflineDeadline(), logger)

	server := httpapi.NewServer(cfg.HTTPAddress(), coord, reg, led, auth,
		pointRepo, connectorRepo, sessionRepo, wsServer.HandleWS, logger)

	return &App{
		server:      server,
		monitor:     monitor,
		db:          sqlDB,
		redisClient: redisClient,
		logger:      logger,
	}, nil
}

// Run starts the liveness monitor and HTTP server.
func (a *App) Run(ctx context.Context) error {
	go a.monitor.Run(ctx)
	return a.server.Run(ctx)
}

// Close releases resources.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
