package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/OrionFinanceAI/orion-engine/internal/config"
	"github.com/OrionFinanceAI/orion-engine/internal/engine"
	"github.com/OrionFinanceAI/orion-engine/internal/execution"
	"github.com/OrionFinanceAI/orion-engine/internal/logger"
	"github.com/OrionFinanceAI/orion-engine/internal/pricing"
	"github.com/OrionFinanceAI/orion-engine/internal/state"
	"github.com/OrionFinanceAI/orion-engine/internal/types"
	"github.com/OrionFinanceAI/orion-engine/internal/vault"
	"github.com/OrionFinanceAI/orion-engine/internal/web"
)

const (
	DEFAULT_PARAMS_CONFIG_NAME    = "default_orion_engine"
	DEFAULT_PARAMS_CONFIG_VERSION = 1
)

// main is the entry point for the Orion epoch engine daemon.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(config.LogLevel)
	log.Info().Msg("Orion Epoch Engine Starting...")

	// Safety switch: until a live venue adapter ships, anything other than
	// paper mode is a misconfiguration.
	if config.Mode != "paper" {
		log.Fatal().Str("mode", config.Mode).Msg("ORION_MODE must be 'paper'. Halting to prevent accidental execution.")
	}

	// Initialize Database Connection
	dbCfg := state.DBConfig{
		Host: config.DBHost, Port: config.DBPort,
		User: config.DBUser, Password: config.DBPassword,
		DBName: config.DBName, SSLMode: config.DBSSLMode,
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// --- 2. Engine Parameters ---
	var paramsFile *config.ParamsFileContent
	if config.ParamsFile != "" {
		var err error
		paramsFile, err = config.LoadParamsFile(config.ParamsFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", config.ParamsFile).Msg("Failed to load parameters file")
		}
	}

	engineParams, err := resolveEngineParameters(paramsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve engine parameters")
	}
	log.Info().
		Dur("epoch_duration", engineParams.EpochDuration).
		Int("minibatch_size", engineParams.MinibatchSize).
		Msg("Engine parameters loaded successfully.")

	// --- 3. Paper Venue and Prices ---
	prices := pricing.NewStaticSource()
	if paramsFile != nil {
		seed, err := paramsFile.SeedPrices()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to parse seed prices")
		}
		for asset, price := range seed {
			if err := prices.SetPrice(asset, price); err != nil {
				log.Fatal().Err(err).Str("asset", string(asset)).Msg("Failed to seed price")
			}
		}
	}

	paperVenue, err := execution.NewPaperAdapter(prices, sdkmath.LegacyZeroDec())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create paper venue")
	}
	adapters := execution.NewRegistry()
	if paramsFile != nil {
		for asset := range paramsFile.Prices {
			if err := adapters.Register(types.AssetID(asset), paperVenue); err != nil {
				log.Fatal().Err(err).Str("asset", asset).Msg("Failed to register adapter")
			}
		}
	}

	// --- 4. Engine Instance ---
	initialEpoch, err := state.GetCurrentEpochNumber()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read persisted epoch counter")
	}

	eng, err := engine.NewEngine(engine.Config{
		Params:       engineParams,
		BaseAsset:    types.AssetID(config.BaseAsset),
		Prices:       prices,
		Adapters:     adapters,
		Owner:        config.OwnerAddress,
		AdminToken:   config.AdminToken,
		InitialEpoch: initialEpoch,
		ReportSink: func(report types.EpochReport) {
			if _, err := state.SaveEpochReport(report); err != nil {
				log.Error().Err(err).Uint64("epoch", report.EpochNumber).Msg("Failed to persist epoch report")
			}
			if err := state.SetEpochNumber(report.EpochNumber); err != nil {
				log.Error().Err(err).Uint64("epoch", report.EpochNumber).Msg("Failed to persist epoch counter")
			}
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create engine instance")
	}
	log.Info().Uint64("resumed_epoch", initialEpoch).Msg("Engine instance created successfully")

	// --- 5. Vault Registration ---
	if paramsFile != nil {
		if err := registerVaults(eng, paramsFile.Vaults); err != nil {
			log.Fatal().Err(err).Msg("Failed to register vaults")
		}
	}

	// --- 6. Web Server and Metrics ---
	web.RegisterMetrics(eng)
	webServer := web.NewWebServer(config.WebPort, eng)
	go func() {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting ops web server")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed")
		}
	}()

	// --- 7. Poll Loop ---
	scheduler := cron.New()
	_, err = scheduler.AddFunc(config.PollSchedule, func() {
		due, reason := eng.CheckAdvance()
		if !due {
			log.Debug().Str("reason", reason).Msg("Nothing to advance")
			return
		}
		if err := eng.Advance(); err != nil {
			log.Error().Err(err).Str("reason", reason).Msg("Advance step failed, will retry on next poll")
		}
	})
	if err != nil {
		log.Fatal().Err(err).Str("schedule", config.PollSchedule).Msg("Invalid poll schedule")
	}
	scheduler.Start()
	log.Info().Str("schedule", config.PollSchedule).Msg("Poll loop started")

	// --- 8. Graceful Shutdown ---
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info().Msg("Shutdown signal received")
	cronCtx := scheduler.Stop()
	<-cronCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Web server shutdown failed")
	}
	log.Info().Msg("Orion Epoch Engine stopped")
}

// resolveEngineParameters prefers the params file, then the active database
// row, then the built-in defaults. Whatever wins is persisted as the active
// set so the database always reflects the running configuration.
func resolveEngineParameters(paramsFile *config.ParamsFileContent) (types.EngineParameters, error) {
	if paramsFile != nil && paramsFile.Engine != nil {
		params, err := paramsFile.EngineParameters()
		if err != nil {
			return types.EngineParameters{}, err
		}
		version := nextParamsVersion()
		if _, err := state.SaveEngineParameters(params, DEFAULT_PARAMS_CONFIG_NAME, version, true); err != nil {
			return types.EngineParameters{}, err
		}
		return params, nil
	}

	stored, err := state.LoadActiveEngineParameters(DEFAULT_PARAMS_CONFIG_NAME)
	if err == nil {
		return *stored, nil
	}

	log.Warn().Err(err).Msg("No active engine parameters found, using defaults and saving.")
	defaults := config.DefaultEngineParameters
	if _, err := state.SaveEngineParameters(defaults, DEFAULT_PARAMS_CONFIG_NAME, DEFAULT_PARAMS_CONFIG_VERSION, true); err != nil {
		return types.EngineParameters{}, err
	}
	return defaults, nil
}

// nextParamsVersion derives a monotonically increasing parameter version.
// Wall-clock seconds are good enough: versions only need to be unique per
// config name, and restarts are far apart.
func nextParamsVersion() int {
	return int(time.Now().Unix())
}

// registerVaults builds and registers the declared vault set.
func registerVaults(eng *engine.Engine, specs []config.VaultSpec) error {
	decrypter := vault.NewJSONDecrypter()
	for _, spec := range specs {
		feeModel, err := spec.FeeModel.FeeModel()
		if err != nil {
			return err
		}
		whitelist := make([]types.AssetID, 0, len(spec.Whitelist))
		for _, asset := range spec.Whitelist {
			whitelist = append(whitelist, types.AssetID(asset))
		}
		cfg := vault.Config{
			ID:             spec.ID,
			Curator:        spec.Curator,
			BaseAsset:      types.AssetID(config.BaseAsset),
			Whitelist:      whitelist,
			FeeModel:       feeModel,
			DecimalsOffset: spec.DecimalsOffset,
			Idle:           eng,
		}

		var v vault.Vault
		if spec.Encrypted {
			v, err = vault.NewEncryptedVault(cfg, decrypter)
		} else {
			v, err = vault.NewTransparentVault(cfg)
		}
		if err != nil {
			return err
		}
		if err := eng.RegisterVault(v); err != nil {
			return err
		}
		log.Info().Str("vault_id", spec.ID).Bool("encrypted", spec.Encrypted).Msg("Vault registered from parameters file")
	}
	return nil
}
