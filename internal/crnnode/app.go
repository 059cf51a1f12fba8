// Package crnnode runs a node as a process: it opens the address book,
// exposes metrics, announces the node and optionally reads console commands.
package crnnode

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"crn-node/internal/config"
	"crn-node/internal/metrics"
	"crn-node/internal/p2p"
	"crn-node/internal/storage/peerbolt"
)

type App struct {
	settings config.Settings
	ui       Printer
	log      *zap.Logger
	color    bool

	Node *p2p.Node

	peers    *peerbolt.Store
	exporter *metrics.Exporter

	quit     chan struct{}
	quitOnce sync.Once
	stopOnce sync.Once
}

// New builds the node and its supporting stores; nothing is bound yet.
func New(s config.Settings, log *zap.Logger, ui Printer) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if ui == nil {
		ui = NewStdPrinter(os.Stdout)
	}
	a := &App{
		settings: s,
		ui:       ui,
		log:      log,
		color:    s.Interactive && wantsColor(ui),
		quit:     make(chan struct{}),
	}

	cfg := s.Node
	cfg.Logger = log

	if s.PeerDB != "" {
		ps, err := peerbolt.Open(s.PeerDB)
		if err != nil {
			return nil, err
		}
		a.peers = ps
		cfg.PeerStore = ps
	}

	if s.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		cfg.Metrics = metrics.NewCollector(reg)
		a.exporter = metrics.NewExporter(s.MetricsAddr, reg)
	}

	n, err := p2p.New(cfg)
	if err != nil {
		a.closeStores()
		return nil, err
	}
	a.Node = n
	return a, nil
}

// Start binds the node, serves metrics, contacts the bootstrap peers and
// announces this node's address to the closest set of its name.
func (a *App) Start(ctx context.Context) error {
	if err := a.Node.Start(); err != nil {
		a.closeStores()
		return err
	}

	if a.exporter != nil {
		if err := a.exporter.Start(); err != nil {
			_ = a.StopAll()
			return err
		}
		a.log.Info("metrics exporter listening", zap.String("addr", a.exporter.Addr()))
	}

	for _, b := range a.settings.Bootstraps {
		if err := a.Node.Learn(b.Name, b.Addr); err != nil {
			a.log.Warn("bootstrap rejected", zap.String("peer", b.Name), zap.Error(err))
			continue
		}
		if !a.Node.IsActive(ctx, b.Name) {
			a.log.Warn("bootstrap peer not answering", zap.String("peer", b.Name), zap.String("addr", b.Addr))
		}
	}

	if a.Node.Write(ctx, a.Node.Name(), a.Node.Addr()) {
		a.log.Info("announced", zap.String("addr", a.Node.Addr()), zap.Int("peers", a.Node.Stats().Peers))
	}
	return nil
}

// Run serves the network until ctx is done or /quit is entered. Console
// commands are read from in when the app is interactive.
func (a *App) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.settings.Interactive && in != nil {
		PrintBanner(a.ui, a.Node)
		go a.readCommands(ctx, in)
	}

	go func() {
		select {
		case <-a.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := a.Node.Pump(ctx, 0)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, p2p.ErrStopped) {
		return nil
	}
	return err
}

func (a *App) requestQuit() {
	a.quitOnce.Do(func() { close(a.quit) })
}

// StopAll stops the node, the exporter and the address book.
func (a *App) StopAll() error {
	var err error
	a.stopOnce.Do(func() {
		err = a.Node.Stop()
		if a.exporter != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			err = errors.Join(err, a.exporter.Stop(ctx))
			cancel()
		}
		err = errors.Join(err, a.closeStores())
	})
	return err
}

func (a *App) closeStores() error {
	if a.peers == nil {
		return nil
	}
	err := a.peers.Close()
	a.peers = nil
	return err
}

// MetricsAddr is the bound exporter address, empty when metrics are off.
func (a *App) MetricsAddr() string {
	if a.exporter == nil {
		return ""
	}
	return a.exporter.Addr()
}
