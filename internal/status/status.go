// Package status is the Indexing Status Publisher (C3): writes an atomic
// status snapshot for external polling. Grounded on original_source's
// indexing_status.py: same-volume temp file, fsync, rename-over-target,
// started_at preserved across updates within the same running phase and
// reset on a transition from idle, progress clamped to [0,1].
package status

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nilsaxelsson/musiclib/pkg/muserr"
)

// Phase is the indexing phase, per spec §3.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseRebuilding Phase = "rebuilding"
	PhaseResyncing  Phase = "resyncing"
)

// Snapshot is the on-disk JSON schema from spec §6.
type Snapshot struct {
	Status    Phase     `json:"status"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Total     int       `json:"total"`
	Current   int       `json:"current"`
	Progress  float64   `json:"progress"`
}

// Publisher writes Snapshot values to path atomically.
type Publisher struct {
	path string

	mu        sync.Mutex
	phase     Phase
	startedAt time.Time
}

// New returns a Publisher writing snapshots to path.
func New(path string) *Publisher {
	return &Publisher{path: path, phase: PhaseIdle}
}

// Publish writes a snapshot for the given phase/total/current. started_at
// is preserved across updates that keep the same running phase and reset
// when transitioning away from idle into a new running phase.
func (p *Publisher) Publish(phase Phase, total, current int) error {
	p.mu.Lock()
	if p.phase != phase && phase != PhaseIdle {
		p.startedAt = time.Now().UTC()
	}
	p.phase = phase
	started := p.startedAt
	p.mu.Unlock()

	progress := 0.0
	if total > 0 {
		progress = clamp(float64(current)/float64(total), 0, 1)
	}

	snap := Snapshot{
		Status:    phase,
		StartedAt: started,
		UpdatedAt: time.Now().UTC(),
		Total:     total,
		Current:   current,
		Progress:  progress,
	}
	return p.writeAtomic(snap)
}

// Clear deletes the snapshot file. A missing file is not an error.
func (p *Publisher) Clear() error {
	p.mu.Lock()
	p.phase = PhaseIdle
	p.mu.Unlock()

	err := os.Remove(p.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return muserr.New(muserr.KindFatal, "Clear", err)
	}
	return nil
}

// writeAtomic writes snap to a sibling temp file on the same volume as
// p.path, fsyncs it, then renames over the target. If the temp file and
// target end up on different volumes the rename fails loudly rather than
// silently falling back to a non-atomic write, per spec §9.
func (p *Publisher) writeAtomic(snap Snapshot) error {
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return muserr.New(muserr.KindFatal, "writeAtomic", err)
	}

	tmp, err := os.CreateTemp(dir, ".indexing_status-*.tmp")
	if err != nil {
		return muserr.New(muserr.KindFatal, "writeAtomic", err)
	}
	tmpPath := tmp.Name()
	// Any early return below must not leave a stray temp file behind.
	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tmpPath)
		}
	}()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		tmp.Close()
		return muserr.New(muserr.KindFatal, "writeAtomic", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return muserr.New(muserr.KindFatal, "writeAtomic", err)
	}
	if err := tmp.Close(); err != nil {
		return muserr.New(muserr.KindFatal, "writeAtomic", err)
	}
	if err := os.Rename(tmpPath, p.path); err != nil {
		return muserr.New(muserr.KindFatal, "writeAtomic", err)
	}
	succeeded = true
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
