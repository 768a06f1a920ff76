package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/mroshb/statecraft/internal/config"
	"github.com/mroshb/statecraft/internal/database"
	"github.com/mroshb/statecraft/internal/handlers"
	"github.com/mroshb/statecraft/internal/repositories"
	"github.com/mroshb/statecraft/internal/repositories/sqlitestore"
	"github.com/mroshb/statecraft/internal/services"
	"github.com/mroshb/statecraft/internal/simulation"
	"github.com/mroshb/statecraft/pkg/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	logger.Init(logger.OptionsFromEnv())
	defer logger.Sync()

	logger.Info("Starting politics daemon...")

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", err)
	}

	if cfg.AppEnv == "production" {
		if err := cfg.ValidateProductionSecurity(); err != nil {
			logger.Fatal("Production security validation failed", err)
		}
		logger.Info("Production security validation passed")
	}

	rules, err := config.LoadRules(cfg.RulesFile)
	if err != nil {
		logger.Fatal("Failed to load rules", err)
	}
	if cfg.WatchRules {
		rules.Watch()
	}

	catalogue, err := config.LoadPolicyCatalogue(cfg.PoliciesFile)
	if err != nil {
		logger.Fatal("Failed to load policy catalogue", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", err)
	}

	if err := database.AutoMigrate(db, cfg.StateStore == config.StateStoreGorm); err != nil {
		logger.Fatal("Failed to run migrations", err)
	}

	if cfg.AppEnv == "development" {
		if err := database.SeedDemoWorld(db); err != nil {
			logger.Warn("Failed to seed demo world", "error", err)
		}
	}

	stores, closeStores, err := openStores(cfg, db)
	if err != nil {
		logger.Fatal("Failed to open state store", err)
	}
	defer closeStores()

	world := repositories.NewWorldRepository(db)
	treasury := repositories.NewTreasuryRepository(db)

	engine := services.NewEngine(stores, world, rules, nil)
	if err := engine.Policies.SetCatalogue(catalogue); err != nil {
		logger.Fatal("Invalid policy catalogue", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.Load(ctx); err != nil {
		logger.Fatal("Failed to load political state", err)
	}

	rt := simulation.New(cfg.GetAskTimeout())
	mgr := handlers.NewManager(engine, treasury, rt, rules, nil)
	rt.Start(ctx, mgr)

	treasury.OnRevenue(rt.Publish)
	world.OnDeleted(rt.NotifyDeleted)

	logger.Info("Simulation started",
		"env", cfg.AppEnv,
		"state_store", cfg.StateStore,
		"policies", len(catalogue),
		"day_length", cfg.GetDayLength().String(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.StartTickers(gctx, cfg.GetDayLength(), cfg.GetTributeSweepInterval())
	})

	if err := g.Wait(); err != nil {
		logger.Error("Background worker failed", "error", err)
	}

	logger.Info("Shutting down gracefully...")
	rt.Shutdown()
	logger.Info("Simulation stopped")
}

// openStores picks the political state backend. The gorm tables share the
// world database; the sqlite store keeps state in its own file.
func openStores(cfg *config.Config, db *gorm.DB) (services.Stores, func(), error) {
	if cfg.StateStore == config.StateStoreSQLite {
		store, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return services.Stores{}, nil, err
		}
		closeFn := func() {
			if err := store.Close(); err != nil {
				logger.Warn("Failed to close state store", "error", err)
			}
		}
		return services.Stores{Entities: store, Policies: store, Vassalage: store}, closeFn, nil
	}

	return services.Stores{
		Entities:  repositories.NewEntityRepository(db),
		Policies:  repositories.NewPolicyRepository(db),
		Vassalage: repositories.NewVassalageRepository(db),
	}, func() {}, nil
}
