// Copyright (C) 2024-2025, Basalt Foundation. All rights reserved.
// See the file LICENSE for licensing terms.

// Package log wraps zap construction: level, encoding, and output sink for
// a node's long-lived components. Every long-lived component that logs
// (mempool, consensus engine, chain manager) takes a *zap.Logger
// injected at construction time; nothing in this module reaches for a
// package-level global.
package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls the logger New builds.
type Config struct {
	// Level is the minimum enabled level: "debug", "info", "warn", "error".
	Level string
	// JSON selects structured JSON encoding instead of human-readable
	// console encoding; nodes run JSON in production, console in tests.
	JSON bool
}

// New builds a *zap.Logger from cfg. An empty Config yields info-level
// console output, matching testify-friendly defaults for package tests.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(cfg.Level); err != nil {
			return nil, err
		}
	}

	zapCfg := zap.NewProductionConfig()
	if !cfg.JSON {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}

// NewNop returns a logger that discards everything, for tests and
// components constructed without an explicit logging configuration.
func NewNop() *zap.Logger {
	return zap.NewNop()
}
