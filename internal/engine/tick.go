package engine

import (
	"context"
	"log/slog"

	"github.com/talgya/turnworld/internal/simerr"
)

// Turn layers for periodic callbacks.
const (
	TurnsPerChronicle  = 10 // Chronicle report cadence
	TurnsPerCheckpoint = 25 // Extra checkpoint cadence
)

// Runner steps a simulation a fixed number of turns on request and fires
// layered callbacks. It never ticks on its own.
type Runner struct {
	Sim *Simulation

	// Callbacks, each optional.
	OnTurn       func(TurnResult) // Every turn
	OnChronicle  func(TurnResult) // Every TurnsPerChronicle turns
	OnCheckpoint func(TurnResult) // Every TurnsPerCheckpoint turns
}

// NewRunner wraps sim.
func NewRunner(sim *Simulation) *Runner {
	return &Runner{Sim: sim}
}

// Step processes up to n turns, stopping early when the world's turn limit
// is reached or ctx is cancelled between turns. It returns the number of
// turns processed.
func (r *Runner) Step(ctx context.Context, n int) (int, error) {
	if !r.Sim.Initialized() {
		return 0, simerr.NotInitialized("step")
	}
	done := 0
	for done < n {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if r.Sim.Finished() {
			slog.Info("turn limit reached", "turn", r.Sim.CurrentTurn())
			break
		}
		res, err := r.Sim.ProcessTurn()
		if err != nil {
			return done, err
		}
		done++
		r.fire(res)
	}
	return done, nil
}

func (r *Runner) fire(res TurnResult) {
	turn := res.Summary.Turn

	if r.OnTurn != nil {
		r.OnTurn(res)
	}
	if turn%TurnsPerChronicle == 0 && r.OnChronicle != nil {
		r.OnChronicle(res)
	}
	if turn%TurnsPerCheckpoint == 0 && r.OnCheckpoint != nil {
		r.OnCheckpoint(res)
	}
}
