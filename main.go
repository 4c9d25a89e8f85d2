package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/angas/elprice/config"
	"github.com/angas/elprice/database"
	"github.com/angas/elprice/elprisetjustnu"
	"github.com/angas/elprice/logging"
	"github.com/angas/elprice/nordpool"
	"github.com/angas/elprice/postgres"
	"github.com/angas/elprice/store"
	"github.com/angas/elprice/task"
	"github.com/angas/elprice/telemetry"
	"github.com/angas/elprice/tibber"
	"github.com/angas/elprice/timeline"
	"github.com/angas/elprice/types"
	"github.com/angas/elprice/www"
	"github.com/lmittmann/tint"
	"github.com/zeromicro/go-zero/core/logx"
)

var Version = "?.?.?"

func main() {
	defer func() {
		if err := recover(); err != nil {
			exitWithError(slog.Default(), fmt.Errorf("application panicked: %v", err))
		} else {
			slog.Default().Info("application is shutting down...")
		}
	}()

	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cnfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consoleLevel := new(slog.LevelVar)
	consoleLevel.Set(cnfg.Logging.GetConsoleLevel())
	consoleHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      consoleLevel,
		TimeFormat: time.RFC3339,
	})
	slog.New(consoleHandler).Debug("elprice is starting...", slog.String("version", Version))

	// The range cache would otherwise print hit ratios through go-zero's logger.
	logx.DisableStat()

	db, err := database.New(ctx, cnfg.Database.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to open database: %v", err))
	}
	defer db.Close()

	logger := slog.New(logging.NewMultiHandler(
		consoleHandler,
		logging.NewSQLiteHandler(db, cnfg.Logging.GetDbLevel(), cnfg.Logging.GetDbAttrsFormat())))
	slog.SetDefault(logger)

	// Now we can use the logger to log database operations into the database itself
	db.SetLogger(logger.With(slog.String("module", "database")))

	config.Watch(logger.With(slog.String("module", "config")), func(c *config.AppConfig) {
		consoleLevel.Set(c.Logging.GetConsoleLevel())
	})

	var backend store.Backend = db
	if cnfg.Database.GetDriver() == "postgres" {
		pg, err := postgres.Connect(ctx, cnfg.Database.Dsn)
		if err != nil {
			panic(fmt.Sprintf("failed to connect to postgres: %v", err))
		}
		defer pg.Close()
		pg.SetLogger(logger.With(slog.String("module", "postgres")))
		backend = pg
	}
	logger.Info("price storage selected", slog.String("driver", cnfg.Database.GetDriver()))

	cache, err := store.NewRangeCache(cnfg.Cache.GetSize(), cnfg.Cache.GetTtl())
	if err != nil {
		panic(fmt.Sprintf("failed to create range cache: %v", err))
	}
	prices := store.New(logger, backend, cache)

	var timelineOpts []timeline.Option
	if cnfg.Api.IncludeEndDate {
		timelineOpts = append(timelineOpts, timeline.IncludeEndDate())
	}
	tl := timeline.NewService(logger, prices, timelineOpts...)

	hub := www.NewHub(logger)
	go hub.Run(ctx)

	events := telemetry.Multi{hub}
	if cnfg.Mqtt.Broker != "" {
		mq := telemetry.NewMQTT(
			cnfg.Mqtt.Broker,
			cnfg.Mqtt.Port,
			cnfg.Mqtt.Username,
			cnfg.Mqtt.Password,
			cnfg.Mqtt.GetTopic(),
			cnfg.Mqtt.GetEncoding())
		mq.Connect()
		defer mq.Close()
		events = append(events, mq)
	}

	energyPriceProviders := []types.EnergyPriceProvider{
		elprisetjustnu.New(cnfg.EnergyPrice.Area), // Primary provider
		nordpool.New(cnfg.EnergyPrice.Area),       // Secondary provider
	}
	if cnfg.EnergyPrice.TibberToken != "" {
		energyPriceProviders = append(energyPriceProviders,
			tibber.New(cnfg.EnergyPrice.TibberToken, cnfg.EnergyPrice.TibberHomeId))
	}

	tasks := task.NewTasks(logger, prices, db, energyPriceProviders, events, cnfg)
	if isDevMode() {
		logger.Info("dev mode, skipping task scheduling")
	} else {
		if err := tasks.Run(ctx); err != nil {
			panic(fmt.Sprintf("failed to schedule tasks: %v", err))
		}
		defer func() {
			cancel() // the backfill only stops on a cancelled context
			waitForTasks(logger, tasks)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-ctx.Done():
		case sig := <-sigCh:
			logger.Info("received signal", slog.Any("signal", sig))
			cancel()
		}
	}()

	server := www.NewServer(logger, cnfg.Api, hub, www.Deps{
		Timeline: tl,
		Store:    prices,
		Counter:  prices,
		Logs:     db,
	})
	if err := server.Run(ctx); err != nil {
		logger.Error("server stopped with error", slog.Any("error", err))
	}
}

func waitForTasks(logger *slog.Logger, tasks *task.Tasks) {
	select {
	case <-tasks.Stop().Done():
	case <-time.After(30 * time.Second):
		logger.Warn("gave up waiting for running tasks")
	}
}

func isDevMode() bool {
	return strings.EqualFold(os.Getenv("APP_ENV"), "development")
}

func exitWithError(logger *slog.Logger, err error) {
	if err != nil {
		logger.Error("application shutting down with error", slog.Any("error", err))
	}
	if syncer, ok := logger.Handler().(interface{ Sync() error }); ok {
		if syncErr := syncer.Sync(); syncErr != nil {
			logger.Error("failed to flush logger", slog.Any("error", syncErr))
		}
	}

	time.Sleep(2 * time.Second)
	os.Exit(1)
}
