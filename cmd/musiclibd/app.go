package main

import (
	"context"

	"github.com/nilsaxelsson/musiclib/internal/scanner"
	"github.com/nilsaxelsson/musiclib/internal/status"
	"github.com/nilsaxelsson/musiclib/internal/supervisor"
	"github.com/nilsaxelsson/musiclib/internal/watcher"
	"github.com/nilsaxelsson/musiclib/pkg/config"
	"github.com/nilsaxelsson/musiclib/pkg/store"
)

// app bundles the config and Index Store handle shared by every subcommand.
type app struct {
	cfg config.Config
	idx *store.Store
}

func openApp(ctx context.Context) (*app, error) {
	cfg := config.Load()
	idx, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, idx: idx}, nil
}

// newSupervisor builds a Supervisor over a.idx, optionally paired with a
// running Change Watcher.
func (a *app) newSupervisor(withWatch bool) (*supervisor.Supervisor, *watcher.Watcher, error) {
	sc, err := scanner.New(a.cfg.LibraryRoot)
	if err != nil {
		return nil, nil, err
	}
	pub := status.New(a.cfg.StatusPath)

	var w *watcher.Watcher
	if withWatch {
		w, err = watcher.New(a.cfg.LibraryRoot, a.cfg.DebounceWindow, log.WithField("component", "watcher"))
		if err != nil {
			return nil, nil, err
		}
	}

	sup := supervisor.New(a.idx, sc, w, pub, a.cfg.FreshnessSampleSize, a.cfg.RebuildProgressEvery,
		log.WithField("component", "supervisor"))
	return sup, w, nil
}
