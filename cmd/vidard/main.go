package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"vidar/internal/engine"
	"vidar/internal/net"
)

func main() {
	address := flag.String("address", "0.0.0.0", "Listen address")
	port := flag.Int("port", 9001, "Listen port")
	pretty := flag.Bool("pretty", false, "Human-readable log output")
	flag.Parse()

	if *pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	// Setup the matching engine and the TCP gateway. Positions revalue
	// at fill prices until an external mark-price feed is wired in.
	eng := engine.New(nil)
	srv := net.New(*address, *port, eng)

	go srv.Run(ctx)
	// Block until a shutdown signal arrives.
	<-ctx.Done()
}
