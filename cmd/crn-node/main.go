package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"crn-node/internal/config"
	"crn-node/internal/crnnode"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	envFile := flag.String("env", ".env", "dotenv file with CRN_* variables")
	name := flag.String("name", "", "node name, must start with N:")
	port := flag.Int("port", config.DefaultPortMin, "UDP port")
	bind := flag.String("bind", "", "bind host (empty for all interfaces)")
	advertise := flag.String("advertise", "", "host announced to other peers")
	bootstrapStr := flag.String("bootstrap", "", "comma-separated bootstrap peers N:name=host:port")
	metricsAddr := flag.String("metrics", "", "serve Prometheus metrics on this address")
	peerDB := flag.String("db", "", "address book path")
	debug := flag.Bool("debug", false, "verbose logging")
	interactive := flag.Bool("i", false, "read commands from stdin")
	flag.Parse()

	file, err := config.Load(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	// Flags set on the command line win over file and environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			file.Name = *name
		case "port":
			file.Port = *port
		case "bind":
			file.Bind = *bind
		case "advertise":
			file.Advertise = *advertise
		case "bootstrap":
			file.Bootstrap = config.SplitList(*bootstrapStr)
		case "metrics":
			file.MetricsAddr = *metricsAddr
		case "db":
			file.PeerDB = *peerDB
		case "debug":
			file.Debug = *debug
		case "i":
			file.Interactive = *interactive
		}
	})

	settings, err := file.Settings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger, err := newLogger(settings.Node.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := crnnode.New(settings, logger, crnnode.NewStdPrinter(os.Stdout))
	if err != nil {
		logger.Fatal("create node", zap.Error(err))
	}
	if err := app.Start(ctx); err != nil {
		logger.Fatal("start node", zap.Error(err))
	}

	if err := app.Run(ctx, os.Stdin); err != nil {
		logger.Error("run", zap.Error(err))
	}
	if err := app.StopAll(); err != nil {
		logger.Warn("stop", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
