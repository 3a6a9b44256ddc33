package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/keepershare/internal/server"
	"github.com/dmitrijs2005/keepershare/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()

	app, err := server.NewApp(ctx, cfg, os.Stdout)
	if err != nil {
		log.Fatalf("%v", err)
	}

	app.Run(ctx)

}
