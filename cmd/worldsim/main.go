// Command worldsim builds a world from a file, runs it for a fixed number of
// turns, and saves the result.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/talgya/turnworld/internal/builder"
	"github.com/talgya/turnworld/internal/config"
	"github.com/talgya/turnworld/internal/engine"
	"github.com/talgya/turnworld/internal/entropy"
	"github.com/talgya/turnworld/internal/persistence"
	"github.com/talgya/turnworld/internal/phi"
	"github.com/talgya/turnworld/internal/simerr"
	"github.com/talgya/turnworld/internal/templates"
	"github.com/talgya/turnworld/internal/world"
)

func main() {
	if err := run(); err != nil {
		slog.Error("worldsim failed", "error", err)
		for _, r := range simerr.ReasonsOf(err) {
			slog.Error("  reason", "detail", r)
		}
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("worldsim / turn-based world simulation")
	slog.Info("tuning constants",
		"phi", phi.Phi,
		"agnosis", fmt.Sprintf("%.5f", phi.Agnosis),
		"psyche", fmt.Sprintf("%.5f", phi.Psyche),
		"matter", fmt.Sprintf("%.5f", phi.Matter),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Storage ───────────────────────────────────────────────────────
	for _, p := range []string{cfg.DBPath, cfg.TemplateDB} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	store, err := templates.OpenBolt(cfg.TemplateDB)
	if err != nil {
		return err
	}
	defer store.Close()
	slog.Info("template store opened", "path", cfg.TemplateDB)

	// ── World ─────────────────────────────────────────────────────────
	validator, err := builder.NewTemplateValidator()
	if err != nil {
		return err
	}
	doc, err := validator.LoadFile(cfg.WorldFile)
	if err != nil {
		return err
	}
	b := builder.FromConfig(doc, time.Now)
	for k := builder.StepProperties; k <= builder.StepFinal; k++ {
		slog.Debug("builder step", "step", k, "reachable", b.CanProceedToStep(k), "complete", b.StepComplete(k))
	}
	check := b.Validate()
	for _, w := range check.Warnings {
		slog.Warn("world warning", "detail", w)
	}
	slog.Info("world loaded",
		"file", cfg.WorldFile,
		"name", doc.Name,
		"nodes", len(doc.Nodes),
		"characters", len(doc.Characters),
		"interactions", len(doc.Interactions),
		"events", len(doc.Events),
		"completeness", fmt.Sprintf("%.2f", check.Completeness),
	)
	built, err := b.Build()
	if err != nil {
		return err
	}

	tmpl, err := b.SaveAsTemplate(ctx, store, built.Name)
	if err != nil {
		return err
	}
	if err := db.SaveMeta("template_id", tmpl.ID); err != nil {
		slog.Warn("failed to record template", "error", err)
	}
	slog.Info("world saved as template", "id", tmpl.ID)

	// ── Simulation ────────────────────────────────────────────────────
	var src entropy.Source = entropy.Crypto{}
	if cfg.Seed != 0 {
		src = entropy.NewSeeded(cfg.Seed)
	}
	sim := engine.NewSimulation(
		engine.WithPersistence(db),
		engine.WithRand(src),
		engine.WithHistoryLimit(cfg.HistoryLimit),
	)

	saved, err := resumeState(cfg, db)
	if err != nil {
		return err
	}
	if saved != nil {
		if _, err := sim.Restore(built, saved); err != nil {
			return err
		}
		slog.Info("world state restored", "turn", saved.Time)
	} else {
		if _, err := sim.Initialize(built); err != nil {
			return err
		}
		slog.Info("world initialized", "sim", sim.String())
	}

	runner := engine.NewRunner(sim)
	runner.OnTurn = func(res engine.TurnResult) {
		slog.Info(res.Summary.Summary, "processing", res.Summary.ProcessingTime)
	}
	runner.OnChronicle = func(res engine.TurnResult) {
		stats := sim.Encounters().GetEncounterStatistics()
		slog.Info("chronicle",
			"turn", res.Summary.Turn,
			"events", len(sim.History().Events()),
			"active_encounters", stats.Active,
			"completed_encounters", stats.Completed,
		)
	}
	runner.OnCheckpoint = func(res engine.TurnResult) {
		recent, err := db.RecentEvents(5)
		if err != nil {
			slog.Warn("checkpoint read failed", "error", err)
			return
		}
		for _, e := range recent {
			slog.Info("recent", "turn", e.Turn, "narrative", e.Narrative)
		}
	}

	n, err := runner.Step(ctx, cfg.Turns)
	if errors.Is(err, context.Canceled) {
		slog.Info("interrupted", "turns", n)
	} else if err != nil {
		return err
	}

	if err := db.Save(sim.State()); err != nil {
		return err
	}
	if wc, err := sim.Config(); err == nil {
		if err := db.SaveMeta("world_id", wc.ID); err != nil {
			slog.Warn("failed to record world id", "error", err)
		}
	}
	slog.Info("simulation stopped", "turns_run", n, "turn", sim.CurrentTurn())
	return nil
}

// resumeState returns the saved world when resuming is enabled.
func resumeState(cfg config.Config, db *persistence.DB) (*world.State, error) {
	if !cfg.Resume {
		return nil, nil
	}
	return db.Load()
}
