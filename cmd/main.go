package main

import (
	"context"
	"flag"
	"net"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"ampere/internal/book"
	"ampere/internal/config"
	"ampere/internal/delivery"
	"ampere/internal/events"
	"ampere/internal/identity"
	"ampere/internal/ledger"
	"ampere/internal/metrics"
	ampnet "ampere/internal/net"
	"ampere/internal/settle"
	"ampere/internal/store"
	"ampere/internal/trade"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading config")
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	var st store.Store
	if cfg.DataDir != "" {
		st, err = store.OpenPebble(cfg.DataDir)
		if err != nil {
			log.Fatal().Err(err).Msg("opening store")
		}
	} else {
		st = store.NewMemory()
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("closing store")
		}
	}()

	tokens := ledger.NewMemory()
	registry := identity.NewRegistry()

	orderBook := book.New(tokens)
	verifier := delivery.NewVerifier(st, registry, cfg.Tolerance, cfg.Bounds)
	engine := settle.New(st, tokens, cfg.EscrowAtMatch)
	coord := trade.NewCoordinator(st, orderBook, verifier, engine, registry)
	if err := coord.Restore(); err != nil {
		log.Fatal().Err(err).Msg("restoring open orders")
	}

	reg := prometheus.NewRegistry()
	sinks := events.Multi{events.Log{}, metrics.NewCollector(reg)}
	if len(cfg.Kafka.Brokers) > 0 {
		sinks = append(sinks, events.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic))
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			log.Error().Err(err).Msg("closing event sinks")
		}
	}()

	go func() {
		if err := metrics.Serve(ctx, cfg.MetricsAddress, reg); err != nil {
			log.Error().Err(err).Msg("metrics server")
		}
	}()

	host, port := splitListen(cfg.ListenAddress)
	srv := ampnet.New(host, port, coord, registry, tokens, sinks)

	go srv.Run(ctx)
	<-ctx.Done()
}

func splitListen(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		log.Fatal().Err(err).Str("address", addr).Msg("invalid listen address")
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		log.Fatal().Err(err).Str("address", addr).Msg("invalid listen port")
	}
	return host, port
}
