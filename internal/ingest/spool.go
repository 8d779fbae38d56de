package ingest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"tripscore/internal/catalog"
	"tripscore/internal/config"
	"tripscore/internal/model"
)

const (
	spoolDone   = ".done"
	spoolFailed = ".failed"
)

// StartSpool polls a directory for trip JSON files. Accepted files are renamed
// with a .done suffix, undecodable ones with .failed; files the queue cannot
// take yet are retried on the next pass.
func StartSpool(ctx context.Context, cfg *config.Manager, cat *catalog.Catalog, out chan<- model.Submission, logger *slog.Logger) {
	current := cfg.Get().Ingest.Spool
	if !current.Enabled {
		if logger != nil {
			logger.Info("spool ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("spool ingest enabled", "dir", current.Dir, "interval", current.Interval)
	}
	go func() {
		for {
			spool := cfg.Get().Ingest.Spool
			ScanSpool(ctx, spool.Dir, cat, out, logger)
			if !BackoffSleep(ctx, spool.Interval) {
				return
			}
		}
	}()
}

// ScanSpool makes one pass over dir and returns the number of trips queued.
func ScanSpool(ctx context.Context, dir string, cat *catalog.Catalog, out chan<- model.Submission, logger *slog.Logger) int {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		if logger != nil {
			logger.Warn("spool scan failed", "dir", dir, "err", err)
		}
		return 0
	}
	sort.Strings(matches)
	queued := 0
	for _, path := range matches {
		if ctx.Err() != nil {
			return queued
		}
		trip, err := ReadTripFile(path, cat)
		if err != nil {
			if logger != nil {
				logger.Warn("spool decode error", "path", path, "err", err)
			}
			settle(path, spoolFailed, logger)
			continue
		}
		if !SendNonBlocking(ctx, out, submission(trip, "spool"), logger) {
			return queued
		}
		queued++
		settle(path, spoolDone, logger)
	}
	return queued
}

func settle(path, suffix string, logger *slog.Logger) {
	targets := []string{path}
	sidecar := strings.TrimSuffix(path, filepath.Ext(path)) + ".csv"
	if _, err := os.Stat(sidecar); err == nil {
		targets = append(targets, sidecar)
	}
	for _, p := range targets {
		if err := os.Rename(p, p+suffix); err != nil && logger != nil {
			logger.Warn("spool rename failed", "path", p, "err", err)
		}
	}
}
