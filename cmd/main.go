package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"quiz-xp-service/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Error().Err(err).Msg("quiz-xp exited")
		os.Exit(1)
	}
}
