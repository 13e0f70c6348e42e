package prover

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"hyc/hyc-node/logging"
)

func LoadVerifyingKey(path string) (groth16.VerifyingKey, error) {
	logging.Logger().Info().Str("filepath", path).Msg("start reading verifying key")
	vk := groth16.NewVerifyingKey(ecc.BN254)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening verifying key file: %w", err)
	}
	defer f.Close()

	n, err := vk.ReadFrom(f)
	if err != nil {
		logging.Logger().Error().
			Str("filepath", path).
			Int64("bytesRead", n).
			Err(err).
			Msg("error reading verifying key file")
		return nil, fmt.Errorf("error reading verifying key: %w", err)
	}
	logging.Logger().Info().
		Str("filepath", path).
		Int64("bytesRead", n).
		Int("publicInputs", vk.NbPublicWitness()).
		Msg("successfully read verifying key")
	return vk, nil
}

// ReadSystemFromFile loads a file written by WriteProvingSystem. Keys are trusted input,
// so points are read without subgroup checks.
func ReadSystemFromFile(path string) (*WithdrawProofSystem, error) {
	logging.Logger().Info().Str("filepath", path).Msg("start reading proving system")
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	ps := new(WithdrawProofSystem)
	n, err := ps.UnsafeReadFrom(file)
	if err != nil {
		return nil, fmt.Errorf("error reading proving system: %w", err)
	}
	logging.Logger().Info().
		Str("filepath", path).
		Int64("bytesRead", n).
		Uint32("tree_height", ps.TreeHeight).
		Uint32("whitelist_height", ps.WhitelistHeight).
		Msg("successfully read proving system")
	return ps, nil
}

func WriteProvingSystem(ps *WithdrawProofSystem, path string, pathVkey string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	written, err := ps.WriteTo(file)
	if err != nil {
		return err
	}
	logging.Logger().Info().Int64("bytesWritten", written).Msg("Proving system written to file")

	if pathVkey != "" {
		return WriteVerifyingKey(ps.VerifyingKey, pathVkey)
	}
	return nil
}

func WriteVerifyingKey(vk groth16.VerifyingKey, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	written, err := vk.WriteTo(file)
	if err != nil {
		return err
	}
	logging.Logger().Info().Int64("bytesWritten", written).Str("filepath", path).Msg("Verifying key written to file")
	return nil
}
