package main

import (
	"context"

	_ "github.com/jimmicro/version"
	"github.com/rs/zerolog/log"

	"github.com/jimyag/nqg/internal/nqg"
	"github.com/jimyag/nqg/internal/nqg/config"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create config")
	}
	server, err := nqg.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}
	if err := server.Run(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to run server")
	}
}
