package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/tokenkeeper/internal/server"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/config"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatal(err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}

	app.Run(ctx)
}
