package tuning

import (
	"testing"

	"github.com/shadabshaukat/spaces-ai/internal/apperr"
	"github.com/stretchr/testify/require"
)

func TestSetters(t *testing.T) {
	tn := New(10, 10, 100)
	require.NoError(t, tn.SetDefaultTopK(25))
	require.EqualValues(t, 25, tn.DefaultTopK())

	require.NoError(t, tn.SetANNNumCandidates(500))
	snap := tn.Snapshot()
	require.EqualValues(t, 500, snap.ANNNumCandidates)
}

func TestSetterBounds(t *testing.T) {
	tn := New(10, 10, 100)

	require.NoError(t, tn.SetDefaultTopK(1000))
	err := tn.SetDefaultTopK(1001)
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.InvalidArgument))
	err = tn.SetDefaultTopK(0)
	require.Error(t, err)

	require.NoError(t, tn.SetANNProbes(10000))
	require.Error(t, tn.SetANNProbes(10001))
	require.Error(t, tn.SetANNProbes(-1))

	require.NoError(t, tn.SetANNNumCandidates(1000000))
	require.Error(t, tn.SetANNNumCandidates(1000001))
	require.Error(t, tn.SetANNNumCandidates(-1))
}

func TestZeroUnsetsANNKnobs(t *testing.T) {
	tn := New(10, 10, 100)
	require.NoError(t, tn.SetANNProbes(0))
	require.EqualValues(t, 0, tn.ANNProbes())

	require.NoError(t, tn.SetANNNumCandidates(0))
	require.EqualValues(t, 0, tn.ANNNumCandidates())
}
