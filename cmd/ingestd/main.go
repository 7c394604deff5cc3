// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2025, Emir Aganovic

package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sourceflow/rtpingest/ingest"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	lev, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || lev == zerolog.NoLevel {
		lev = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.StampMicro,
	}).With().Timestamp().Logger().Level(lev)

	port := 40000
	if v := os.Getenv("INGEST_DEFAULT_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			port = p
		}
	}

	r := ingest.NewReceiver(
		ingest.WithDefaultPort(port),
		ingest.WithLogger(log.Logger),
	)

	if err := r.Start(); err != nil {
		log.Fatal().Err(err).Msg("ingest receiver failed to start")
	}
	log.Info().Int("port", port).Msg("ingest receiver listening")

	<-ctx.Done()
	log.Info().Msg("shutting down ingest receiver")
	r.Stop()
}
