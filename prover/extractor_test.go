package prover

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractLean(t *testing.T) {
	lean, err := ExtractLean(2, 2)
	require.NoError(t, err)
	require.NotEmpty(t, lean)
	require.Contains(t, lean, "namespace HideYourCash")
	require.Contains(t, lean, "MiMCHash")
	require.Contains(t, lean, "InclusionProof")
}
