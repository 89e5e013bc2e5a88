// Package main is the entry point for the portfolio optimization service.
// It wires the two SQLite databases (price history, calculation cache), the
// optimization engine and its HTTP surface, then runs until interrupted.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abhinavpathania/Portfolio-Optimization-for-Indian-Stock-Market/internal/config"
	"github.com/abhinavpathania/Portfolio-Optimization-for-Indian-Stock-Market/internal/database"
	"github.com/abhinavpathania/Portfolio-Optimization-for-Indian-Stock-Market/internal/modules/calculations"
	"github.com/abhinavpathania/Portfolio-Optimization-for-Indian-Stock-Market/internal/modules/optimization"
	"github.com/abhinavpathania/Portfolio-Optimization-for-Indian-Stock-Market/internal/modules/universe"
	"github.com/abhinavpathania/Portfolio-Optimization-for-Indian-Stock-Market/internal/scheduler"
	"github.com/abhinavpathania/Portfolio-Optimization-for-Indian-Stock-Market/internal/server"
	"github.com/abhinavpathania/Portfolio-Optimization-for-Indian-Stock-Market/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("Failed to create data directory")
	}

	historyDB, err := database.New(database.Config{
		Path:    cfg.HistoryDBPath(),
		Profile: database.ProfileStandard,
		Name:    "history",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer historyDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    cfg.CacheDBPath(),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	for _, db := range []*database.DB{historyDB, cacheDB} {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", db.Name()).Msg("Migration failed")
		}
	}

	history := universe.NewHistoryDB(historyDB.Conn(), log)
	cache := calculations.NewCache(cacheDB.Conn(), log)

	optService := optimization.NewService(cfg.TradingDaysPerYear, history, cache, log)

	sched := scheduler.New(log)
	if err := sched.AddJob("@daily", scheduler.NewCachePurgeJob(cache, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register cache purge job")
	}
	sched.Start()

	srv := server.New(server.Config{
		Log:                  log,
		Port:                 cfg.Port,
		DevMode:              cfg.DevMode,
		HistoryDB:            historyDB,
		CacheDB:              cacheDB,
		OptimizationHandlers: optimization.NewHandler(optService, log),
		UniverseHandlers:     universe.NewHandler(history, log),
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server stopped unexpectedly")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
