// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2025, Emir Aganovic

package ingest

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/sourceflow/rtpingest/ingest/jitter"
)

// Config configures a Receiver. NewReceiver(opts...) starts from the
// package defaults and applies functional options over them.
type Config struct {
	// DefaultPort is the well-known RTP port consulted against the
	// payload default table and eligible for format probing.
	DefaultPort int

	MaxDelay time.Duration
	MaxSize  int

	// ChunkSize sizes SO_RCVBUF as ChunkSize * 4000, per socket.
	ChunkSize int

	Logger zerolog.Logger
}

func defaultConfig() Config {
	return Config{
		DefaultPort: 40000,
		MaxDelay:    jitter.DefaultMaxDelay,
		MaxSize:     jitter.DefaultMaxSize,
		ChunkSize:   160,
		Logger:      zerolog.New(os.Stderr).With().Timestamp().Logger(),
	}
}

// Option configures a Receiver at construction time.
type Option func(*Config)

// WithDefaultPort overrides the default RTP listening port.
func WithDefaultPort(port int) Option {
	return func(c *Config) { c.DefaultPort = port }
}

// WithReorderBuffer overrides the jitter buffer's bounded dwell time and
// maximum size.
func WithReorderBuffer(maxDelay time.Duration, maxSize int) Option {
	return func(c *Config) { c.MaxDelay, c.MaxSize = maxDelay, maxSize }
}

// WithLogger overrides the zerolog logger used throughout the receiver.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// StartupError wraps a class-5 fatal failure encountered during Start
// (socket creation, bind, or multicast join) or when AddRawReceiver
// cannot bind its port. Start never partially succeeds when this is
// returned.
type StartupError struct {
	Stage string
	Err   error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("ingest: startup failed at %s: %v", e.Stage, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }
