package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"

	"PhenomenonIndexer/internal/api"
	"PhenomenonIndexer/internal/chain"
	"PhenomenonIndexer/internal/config"
	"PhenomenonIndexer/internal/interfaces"
	"PhenomenonIndexer/internal/listener"
	"PhenomenonIndexer/internal/metrics"
	"PhenomenonIndexer/internal/model"
	"PhenomenonIndexer/internal/neynar"
	"PhenomenonIndexer/internal/publish"
	"PhenomenonIndexer/internal/repository"
	"PhenomenonIndexer/internal/service"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ensureDatabaseExists creates the target database through the postgres
// maintenance db when it is missing. dsn must be URL form.
func ensureDatabaseExists(dsn string) error {
	u, err := url.Parse(dsn)
	if err != nil {
		return err
	}
	dbname := strings.TrimSpace(strings.TrimPrefix(u.Path, "/"))
	if dbname == "" || dbname == "postgres" {
		return nil
	}
	u.Path = "/postgres"
	db, err := sql.Open("pgx", u.String())
	if err != nil {
		return err
	}
	defer db.Close()
	err = db.QueryRow("SELECT 1 FROM pg_database WHERE datname = $1", dbname).Scan(new(int))
	if errors.Is(err, sql.ErrNoRows) {
		_, err = db.Exec(`CREATE DATABASE "` + strings.ReplaceAll(dbname, `"`, `""`) + `"`)
		return err
	}
	return err
}

func newLogger(cfg config.LogConfig) *logrus.Logger {
	l := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	if cfg.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	return l
}

func openDatabase(cfg config.PostgresConfig, logrusLogger *logrus.Logger) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn is empty, set postgres.dsn or DATABASE_URL")
	}
	gormConfig := &gorm.Config{Logger: logger.Default.LogMode(cfg.GormLogLevel())}
	db, err := gorm.Open(postgres.Open(cfg.DSN), gormConfig)
	if err != nil && (strings.Contains(err.Error(), "does not exist") || strings.Contains(err.Error(), "3D000")) {
		logrusLogger.Info("database missing, creating it")
		if e := ensureDatabaseExists(cfg.DSN); e != nil {
			return nil, fmt.Errorf("create database: %w", e)
		}
		db, err = gorm.Open(postgres.Open(cfg.DSN), gormConfig)
	}
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logrusLogger := newLogger(cfg.Log)
	logrusLogger.WithField("chain_id", cfg.Chain.ID).Info("config loaded")

	db, err := openDatabase(cfg.Postgres, logrusLogger)
	if err != nil {
		logrusLogger.Fatalf("connect postgres: %v", err)
	}
	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		logrusLogger.Fatalf("migrate schema: %v", err)
	}
	logrusLogger.Info("schema ready")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		logrusLogger.Fatalf("dial rpc: %v", err)
	}
	defer client.Close()

	decoder, err := chain.NewDecoder(chain.Addresses{
		Phenomenon:     cfg.Chain.PhenomenonAddress,
		GameplayEngine: cfg.Chain.GameplayEngineAddress,
		TicketEngine:   cfg.Chain.TicketEngineAddress,
	})
	if err != nil {
		logrusLogger.Fatalf("contract addresses: %v", err)
	}
	roles, err := chain.NewRoleReader(client, cfg.Chain.RoleContractAddress, cfg.Chain.HighPriestSentinel)
	if err != nil {
		logrusLogger.Fatalf("role reader: %v", err)
	}

	collectors := metrics.New()
	opts := []service.ProjectionOption{service.WithMetrics(collectors)}
	var changes api.ChangeFeed
	if cfg.Redis.URL != "" {
		publisher, err := publish.NewRedisPublisher(cfg.Redis.URL, cfg.Redis.ChannelPrefix, cfg.Redis.BufferLimit, logrusLogger)
		if err != nil {
			logrusLogger.Fatalf("redis publisher: %v", err)
		}
		defer publisher.Close()
		opts = append(opts, service.WithPublisher(publisher))
		changes = publisher
	} else {
		logrusLogger.Info("redis url not set, change notifications disabled")
	}

	var profiles interfaces.ProfileLookup
	if cfg.Neynar.APIKey != "" {
		profiles = neynar.NewClient(cfg.Neynar, logrusLogger)
	} else {
		logrusLogger.Info("neynar api key not set, profile lookups disabled")
	}

	projection := service.NewProjectionService(repository.NewProjectionRepository(db), roles, cfg.Chain.ID, logrusLogger, opts...)
	games := service.NewGameQueryService(repository.NewGameQueryRepository(db), profiles, logrusLogger)

	subscriber := listener.NewChainSubscriber(&cfg.Chain, client, decoder, collectors, logrusLogger)
	worker := listener.NewContractListener(projection, cfg.Chain.RetryBackoff, logrusLogger)
	indexer := listener.NewIndexer(subscriber, worker, projection, cfg.Chain.StartBlock, cfg.Chain.QueueSize, logrusLogger)

	gin.SetMode(cfg.Server.Mode)
	router := api.NewRouter(api.Handlers{
		Games:   api.NewGameHandler(games, changes, logrusLogger),
		Holders: api.NewHolderHandler(games, logrusLogger),
		Status:  api.NewStatusHandler(projection, cfg.Chain.ID, logrusLogger),
		Metrics: collectors,
		Pprof:   true,
	}, logrusLogger)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logrusLogger.Infof("http server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrusLogger.WithError(err).Error("http server stopped")
			stop()
		}
	}()

	if err := indexer.Run(ctx); err != nil {
		logrusLogger.WithError(err).Error("indexer stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrusLogger.WithError(err).Warn("http shutdown")
	}
	logrusLogger.Info("bye")
}
