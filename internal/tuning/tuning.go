// Package tuning holds the process-wide runtime knobs the retrieval engine
// reads on every query: default result size and ANN search effort. Values
// are stored in atomics so they can be adjusted (via the runtime-config
// external interface) without restarting the service.
package tuning

import (
	"sync/atomic"

	"github.com/shadabshaukat/spaces-ai/internal/apperr"
)

// Tuning is held by one instance per process and threaded explicitly into
// components that need it; there is no package-level singleton.
type Tuning struct {
	defaultTopK      atomic.Int64
	annProbes        atomic.Int64
	annNumCandidates atomic.Int64
}

// New constructs a Tuning seeded with the given defaults.
func New(defaultTopK, annProbes, annNumCandidates int64) *Tuning {
	t := &Tuning{}
	t.defaultTopK.Store(defaultTopK)
	t.annProbes.Store(annProbes)
	t.annNumCandidates.Store(annNumCandidates)
	return t
}

func (t *Tuning) DefaultTopK() int64      { return t.defaultTopK.Load() }
func (t *Tuning) ANNProbes() int64        { return t.annProbes.Load() }
func (t *Tuning) ANNNumCandidates() int64 { return t.annNumCandidates.Load() }

// SetDefaultTopK validates and applies a new default_top_k (1..1000).
func (t *Tuning) SetDefaultTopK(v int64) error {
	if v < 1 || v > 1000 {
		return apperr.New("tuning.SetDefaultTopK", apperr.InvalidArgument, nil)
	}
	t.defaultTopK.Store(v)
	return nil
}

// SetANNProbes validates and applies a new ann_probes (1..10000, or 0 to
// unset and fall back to the store's static default).
func (t *Tuning) SetANNProbes(v int64) error {
	if v < 0 || v > 10000 {
		return apperr.New("tuning.SetANNProbes", apperr.InvalidArgument, nil)
	}
	t.annProbes.Store(v)
	return nil
}

// SetANNNumCandidates validates and applies a new ann_num_candidates
// (1..1000000, or 0 to unset).
func (t *Tuning) SetANNNumCandidates(v int64) error {
	if v < 0 || v > 1000000 {
		return apperr.New("tuning.SetANNNumCandidates", apperr.InvalidArgument, nil)
	}
	t.annNumCandidates.Store(v)
	return nil
}

// Snapshot returns the current knob values for logging/diagnostics.
type Snapshot struct {
	DefaultTopK      int64 `json:"default_top_k"`
	ANNProbes        int64 `json:"ann_probes"`
	ANNNumCandidates int64 `json:"ann_num_candidates"`
}

func (t *Tuning) Snapshot() Snapshot {
	return Snapshot{
		DefaultTopK:      t.DefaultTopK(),
		ANNProbes:        t.ANNProbes(),
		ANNNumCandidates: t.ANNNumCandidates(),
	}
}
