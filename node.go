package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/consensys/gnark/backend/groth16"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"hyc/hyc-node/config"
	"hyc/hyc-node/disburse"
	"hyc/hyc-node/kv"
	"hyc/hyc-node/logging"
	"hyc/hyc-node/pool"
	"hyc/hyc-node/prover"
	"hyc/hyc-node/server"
)

const workerPollTimeout = 5 * time.Second

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.ReadConfig(path); err != nil {
			return cfg, err
		}
	}
	if c.Bool("json-logging") {
		cfg.Log.JSON = true
	}
	if c.IsSet("address") {
		cfg.Server.Address = c.String("address")
	}
	if c.IsSet("metrics-address") {
		cfg.Server.MetricsAddress = c.String("metrics-address")
	}
	if c.IsSet("api-key") {
		cfg.Server.APIKey = c.String("api-key")
	}
	if c.IsSet("redis-url") {
		cfg.Redis.URL = c.String("redis-url")
		cfg.Redis.Enabled = true
	}
	if c.IsSet("keys-file") {
		cfg.Verifier.ProvingKey = c.String("keys-file")
	}
	if c.IsSet("vkey") {
		cfg.Verifier.VerifyingKey = c.String("vkey")
	}
	if c.IsSet("disbursement") {
		cfg.Disbursement.Mode = c.String("disbursement")
	}
	return cfg, cfg.Validate()
}

// loadVerifyingKey prefers the full proving system, which also enables /prove and
// lets the tree heights be checked against the circuit.
func loadVerifyingKey(cfg *config.Config) (groth16.VerifyingKey, *prover.WithdrawProofSystem, error) {
	if cfg.Verifier.ProvingKey != "" {
		logging.Logger().Info().Str("file", cfg.Verifier.ProvingKey).Msg("Reading proving system")
		system, err := prover.ReadSystemFromFile(cfg.Verifier.ProvingKey)
		if err != nil {
			return nil, nil, err
		}
		if system.TreeHeight != cfg.Commitments.Height || system.WhitelistHeight != cfg.Whitelist.Height {
			return nil, nil, fmt.Errorf("proving system is for heights %d/%d, config has %d/%d",
				system.TreeHeight, system.WhitelistHeight, cfg.Commitments.Height, cfg.Whitelist.Height)
		}
		return system.VerifyingKey, system, nil
	}
	if cfg.Verifier.VerifyingKey == "" {
		return nil, nil, fmt.Errorf("either verifier.verifying_key or verifier.proving_key must be set")
	}
	vk, err := prover.LoadVerifyingKey(cfg.Verifier.VerifyingKey)
	return vk, nil, err
}

func runNode(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.Log.JSON {
		logging.SetJSONOutput()
	}
	logging.SetLevel(cfg.Log.Level)
	ctx := c.Context

	var client *redis.Client
	if cfg.Redis.Enabled {
		if client, err = kv.Connect(ctx, cfg.Redis.URL); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer client.Close()
	}

	vk, system, err := loadVerifyingKey(&cfg)
	if err != nil {
		return err
	}
	verifier, err := prover.NewVerifier(vk)
	if err != nil {
		return err
	}

	deps, err := pool.NewDeps(ctx, &cfg, client)
	if err != nil {
		return err
	}
	deps.Verifier = verifier

	var ledger disburse.Ledger = disburse.NewMemoryLedger()
	if client != nil {
		ledger = &disburse.RedisLedger{Client: client, Prefix: cfg.Redis.Prefix}
	}
	var (
		transfers *disburse.TransferQueue
		jobs      []server.RunningJob
	)
	if cfg.Disbursement.Mode == config.DisbursementQueue {
		transfers = &disburse.TransferQueue{Client: client, Prefix: cfg.Redis.Prefix}
		deps.Disburser = &disburse.QueueDisburser{Queue: transfers}
		worker := &disburse.Worker{
			Queue:       transfers,
			Ledger:      ledger,
			Concurrency: cfg.Disbursement.Workers,
			PollTimeout: workerPollTimeout,
			OnResult:    server.RecordTransfer,
		}
		jobs = append(jobs, server.SpawnContextJob(func(ctx context.Context) {
			if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
				logging.Logger().Error().Err(err).Msg("transfer worker stopped")
			}
		}))
		logging.Logger().Info().Int("workers", cfg.Disbursement.Workers).Msg("transfer workers started")
	} else {
		deps.Disburser = &disburse.SyncDisburser{Ledger: ledger}
	}

	p, err := pool.InitOrOpen(ctx, &cfg, deps)
	if err != nil {
		return err
	}
	settings := p.Settings()
	logging.Logger().Info().
		Str("owner", settings.Owner).
		Str("deposit", settings.DepositValue.String()).
		Str("protocol_fee", settings.ProtocolFee.String()).
		Bool("kill_switch", settings.KillSwitch).
		Msg("pool ready")

	serverCfg := &server.Config{
		Address:        cfg.Server.Address,
		MetricsAddress: cfg.Server.MetricsAddress,
		APIKey:         cfg.Server.APIKey,
		CORSOrigins:    cfg.Server.CORSOrigins,
	}
	backend := &server.Backend{Pool: p, ProofSystem: system, Transfers: transfers}
	instance := server.CombineJobs(append(jobs, server.Run(serverCfg, backend))...)

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt)
	<-sigint
	logging.Logger().Info().Msg("Received sigint, shutting down")
	instance.RequestStop()
	instance.AwaitStop()
	return nil
}
