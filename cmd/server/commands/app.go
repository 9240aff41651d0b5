package commands

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"bonairerentalhub/server/config"
	"bonairerentalhub/server/internal/categories"
	"bonairerentalhub/server/internal/database"
	"bonairerentalhub/server/internal/geocoding"
	"bonairerentalhub/server/internal/geometry"
	"bonairerentalhub/server/internal/importer"
	"bonairerentalhub/server/internal/notify"
)

const (
	busSize  = 256
	feedSize = 200
)

// app holds the services shared by the commands
type app struct {
	cfg      *config.Config
	region   config.Region
	logger   *logrus.Logger
	store    *database.Store
	bus      *notify.Bus
	feed     *notify.Feed
	importer *importer.Importer
}

func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	if parsed, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(parsed)
	} else {
		logger.WithField("level", level).Warn("Unknown log level, using info")
	}
	return logger
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func openStore(cfg *config.Config, logger *logrus.Logger) (*database.Store, error) {
	logger.WithField("driver", cfg.Database.Driver).Info("Opening database")
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	logger.Info("Running database migrations...")
	if err := database.MigrateSchema(db); err != nil {
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}
	return database.NewStore(db), nil
}

func newApp(cfg *config.Config) (*app, error) {
	logger := newLogger(cfg.Log.Level)

	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	feed := notify.NewFeed(feedSize)
	bus := notify.NewBus(busSize, logger)
	bus.Subscribe(feed.Handle)
	bus.Subscribe(notify.LogHandler(logger))
	if cfg.Telegram.Enabled {
		bus.Subscribe(notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger).Handle)
		logger.Info("Telegram notifications enabled")
	}
	bus.Start()

	region := geometry.NewRegion(config.Bonaire)
	opts := importer.Options{
		ResumeAfterDecision: cfg.Import.ResumeAfterDecision,
		Region:              &region,
	}
	if cfg.Import.Geocode {
		opts.Geocoder = geocoding.NewGeocoder(region, cfg.Import.GeocodeCacheDir, logger)
	}

	extractor := categories.NewExtractor(store, bus, cfg.Import.DefaultCategoryIcon, cfg.Import.CategoryWorkers, logger)

	return &app{
		cfg:      cfg,
		region:   config.Bonaire,
		logger:   logger,
		store:    store,
		bus:      bus,
		feed:     feed,
		importer: importer.NewImporter(store, extractor, bus, opts, logger),
	}, nil
}

// Close flushes pending notifications and closes the database
func (a *app) Close() {
	if queued := a.bus.Len(); queued > 0 {
		a.logger.WithField("queued", queued).Info("Flushing pending notifications")
	}
	if err := a.bus.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close notification bus")
	}
	if err := a.store.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close database")
	}
}
