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

	log.Println("starting manipulator mock (simulated manipulation module)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logging.Init(config.Get().LogLevel)
	defer logging.Sync()

	ctx, stop := app.SignalContext()
	defer stop()

	if err := app.RunMockManipulator(ctx); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
