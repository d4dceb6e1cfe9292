// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/manipulator/internal/app"
	"github.com/relabs-tech/manipulator/internal/config"
	"github.com/relabs-tech/manipulator/internal/logging"
)

func main() {
	configPath := flag.String("config", "manipulator_config.txt", "configuration file")
	flag.Parse()

	log.Println("starting manipulator web server (MQTT client)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logging.Init(config.Get().LogLevel)
	defer logging.Sync()

	log.Println("Note: pose queries need the manipulation module (or ./mock_manipulator) running")

	ctx, stop := app.SignalContext()
	defer stop()

	if err := app.RunWeb(ctx); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
