package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"VNFlow/internal/di"
	"VNFlow/pkg/config"
)

// Overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML configuration")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("vnflow", version)
		return
	}

	// The structured logger is assembled by DI; anything before that
	// point reports through the stdlib logger.
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("load config %s: %v", *configPath, err)
	}

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("assemble application: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Printf("vnflow exited: %v", err)
		os.Exit(1)
	}
}
