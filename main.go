package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"

	gnarkLogger "github.com/consensys/gnark/logger"
	"github.com/urfave/cli/v2"
	"hyc/hyc-node/fieldhash"
	"hyc/hyc-node/logging"
	"hyc/hyc-node/prover"
)

func main() {
	runCli()
}

func parseFieldFlag(context *cli.Context, name string) (*big.Int, error) {
	v, err := fieldhash.ParseField(context.String(name))
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return v, nil
}

func printJSON(v interface{}) error {
	r, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(r))
	return nil
}

func runCli() {
	gnarkLogger.Set(*logging.Logger())
	app := cli.App{
		Name:                 "hyc-node",
		Usage:                "proof-gated withdrawal pool",
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			{
				Name:  "setup",
				Usage: "Run a local groth16 setup for the withdraw circuit",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "output", Usage: "Output file", Required: true},
					&cli.StringFlag{Name: "output-vkey", Usage: "Verifying key output file", Required: true},
					&cli.UintFlag{Name: "tree-height", Usage: "Commitment tree height", Value: 20},
					&cli.UintFlag{Name: "whitelist-height", Usage: "Whitelist tree height", Value: 20},
				},
				Action: func(context *cli.Context) error {
					treeHeight := uint32(context.Uint("tree-height"))
					whitelistHeight := uint32(context.Uint("whitelist-height"))
					if treeHeight == 0 || whitelistHeight == 0 {
						return fmt.Errorf("tree heights must be positive")
					}
					logging.Logger().Info().Msg("Running setup")
					system, err := prover.SetupWithdraw(treeHeight, whitelistHeight)
					if err != nil {
						return err
					}
					if err := prover.WriteProvingSystem(system, context.String("output"), context.String("output-vkey")); err != nil {
						return err
					}
					logging.Logger().Info().Msg("Setup completed successfully")
					return nil
				},
			},
			{
				Name:  "start",
				Usage: "Run the pool node",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "TOML config file"},
					&cli.BoolFlag{Name: "json-logging", Usage: "enable JSON logging"},
					&cli.StringFlag{Name: "address", Usage: "address for the API server"},
					&cli.StringFlag{Name: "metrics-address", Usage: "address for the metrics server"},
					&cli.StringFlag{Name: "redis-url", Usage: "Redis URL; enables Redis-backed state", EnvVars: []string{"REDIS_URL"}},
					&cli.StringFlag{Name: "api-key", Usage: "API key for admin and deposit endpoints", EnvVars: []string{"HYC_API_KEY"}},
					&cli.StringFlag{Name: "keys-file", Aliases: []string{"k"}, Usage: "Proving system file; enables /prove"},
					&cli.StringFlag{Name: "vkey", Usage: "Verifying key file"},
					&cli.StringFlag{Name: "disbursement", Usage: "Disbursement mode (sync or queue)"},
				},
				Action: runNode,
			},
			{
				Name:  "prove",
				Usage: "Read withdraw parameters from stdin and print a proof",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "keys-file", Aliases: []string{"k"}, Usage: "Proving system file", Required: true},
				},
				Action: func(context *cli.Context) error {
					system, err := prover.ReadSystemFromFile(context.String("keys-file"))
					if err != nil {
						return err
					}
					logging.Logger().Info().Msg("Reading params from stdin")
					inputsBytes, err := io.ReadAll(os.Stdin)
					if err != nil {
						return err
					}
					var params prover.WithdrawParameters
					if err := json.Unmarshal(inputsBytes, &params); err != nil {
						return err
					}
					proof, err := prover.ProveWithdraw(system, &params)
					if err != nil {
						return err
					}
					r, err := json.Marshal(proof)
					if err != nil {
						return err
					}
					fmt.Println(string(r))
					return nil
				},
			},
			{
				Name:  "export-vk",
				Usage: "Write the verifying key of a proving system file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "keys-file", Aliases: []string{"k"}, Usage: "Proving system file", Required: true},
					&cli.StringFlag{Name: "output", Usage: "Output file", Required: true},
				},
				Action: func(context *cli.Context) error {
					system, err := prover.ReadSystemFromFile(context.String("keys-file"))
					if err != nil {
						return err
					}
					return prover.WriteVerifyingKey(system.VerifyingKey, context.String("output"))
				},
			},
			{
				Name:  "extract-circuit",
				Usage: "Extract the withdraw circuit to Lean",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "output", Usage: "Output file", Required: true},
					&cli.UintFlag{Name: "tree-height", Usage: "Commitment tree height", Value: 20},
					&cli.UintFlag{Name: "whitelist-height", Usage: "Whitelist tree height", Value: 20},
				},
				Action: func(context *cli.Context) error {
					logging.Logger().Info().Msg("Extracting gnark circuit to Lean")
					circuitString, err := prover.ExtractLean(uint32(context.Uint("tree-height")), uint32(context.Uint("whitelist-height")))
					if err != nil {
						return err
					}
					if err := os.WriteFile(context.String("output"), []byte(circuitString), 0o644); err != nil {
						return err
					}
					logging.Logger().Info().Int("bytesWritten", len(circuitString)).Msg("Lean circuit written to file")
					return nil
				},
			},
			{
				Name:  "note",
				Usage: "Generate a fresh deposit note for an account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "account", Required: true},
				},
				Action: func(context *cli.Context) error {
					note, err := prover.NewNote(context.String("account"))
					if err != nil {
						return err
					}
					commitment, err := note.Commitment()
					if err != nil {
						return err
					}
					nullifierHash, err := note.NullifierHash()
					if err != nil {
						return err
					}
					return printJSON(map[string]interface{}{
						"note":          note,
						"commitment":    fieldhash.ToHex(commitment),
						"nullifierHash": fieldhash.ToHex(nullifierHash),
					})
				},
			},
			{
				Name:  "account-hash",
				Usage: "Hash an account identifier into the field",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "account", Required: true},
				},
				Action: func(context *cli.Context) error {
					h, err := fieldhash.AccountHash(context.String("account"))
					if err != nil {
						return err
					}
					fmt.Println(fieldhash.ToHex(h))
					return nil
				},
			},
			{
				Name:  "nullifier-hash",
				Usage: "Derive the public nullifier hash",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "nullifier", Required: true},
				},
				Action: func(context *cli.Context) error {
					n, err := parseFieldFlag(context, "nullifier")
					if err != nil {
						return err
					}
					fmt.Println(fieldhash.ToHex(fieldhash.NullifierHash(n)))
					return nil
				},
			},
			{
				Name:  "commitment",
				Usage: "Compute a deposit commitment",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "secret", Required: true},
					&cli.StringFlag{Name: "nullifier", Required: true},
					&cli.StringFlag{Name: "account", Required: true},
				},
				Action: func(context *cli.Context) error {
					secret, err := parseFieldFlag(context, "secret")
					if err != nil {
						return err
					}
					n, err := parseFieldFlag(context, "nullifier")
					if err != nil {
						return err
					}
					accountHash, err := fieldhash.AccountHash(context.String("account"))
					if err != nil {
						return err
					}
					fmt.Println(fieldhash.ToHex(fieldhash.Commitment(secret, n, accountHash)))
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logging.Logger().Fatal().Err(err).Msg("App failed.")
	}
}
