package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"
	"github.com/go-logr/logr"
	"github.com/pkg/browser"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/spf13/cobra"

	"github.com/sarchlab/diibridge/bridge"
	"github.com/sarchlab/diibridge/config"
	"github.com/sarchlab/diibridge/dut"
	"github.com/sarchlab/diibridge/emu"
	"github.com/sarchlab/diibridge/mem"
	"github.com/sarchlab/diibridge/monitor"
	"github.com/sarchlab/diibridge/record"
	"github.com/sarchlab/diibridge/rvfi"
	"github.com/sarchlab/diibridge/transport"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Wait for a test generator and run its traces on the reference core.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd.Flags())
		if err != nil {
			return err
		}

		log := newLogger(cfg.Verbosity)

		ctx, stop := signal.NotifyContext(cmd.Context(),
			os.Interrupt, syscall.SIGTERM)
		defer stop()

		openMonitor, _ := cmd.Flags().GetBool("open")

		statsAddr, _ := cmd.Flags().GetString("statsview")
		if statsAddr != "" {
			launchStatsView(statsAddr, log)
		}

		return serve(ctx, cfg, log, openMonitor)
	},
}

func init() {
	serveCmd.Flags().Bool("open", false, "open the monitor in a browser")
	serveCmd.Flags().String("statsview", "",
		"address of a Go runtime statistics page, e.g. localhost:12600")
}

// launchStatsView serves live runtime charts at addr/debug/statsview.
func launchStatsView(addr string, log logr.Logger) {
	go func() {
		viewer.SetConfiguration(viewer.WithAddr(addr))
		mgr := statsview.New()
		if err := mgr.Start(); err != nil {
			log.Error(err, "statsview stopped")
		}
	}()

	log.Info("runtime statistics available", "url", "http://"+addr+"/debug/statsview")
}

// session holds everything built for one test generator connection.
type session struct {
	bridge   *bridge.Bridge
	core     *emu.Core
	recorder *record.SQLiteRecorder
	monitor  *monitor.Server
}

func serve(ctx context.Context, cfg *config.Config, log logr.Logger, openMonitor bool) error {
	ln, err := transport.Listen(fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return err
	}
	defer ln.Close()

	log.Info("waiting for test generator", "addr", ln.Addr().String())

	var mon *monitor.Server
	if cfg.MonitorPort != 0 {
		mon = monitor.NewServer(monitor.WithLogger(log.WithName("monitor")))
		if err := mon.Start(cfg.MonitorPort); err != nil {
			return err
		}
		defer mon.Close()

		if openMonitor {
			if err := browser.OpenURL(mon.URL()); err != nil {
				log.Error(err, "failed to open browser")
			}
		}
	}

	conn, err := accept(ctx, ln)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Info("test generator connected")

	s, err := newSession(conn, cfg, log, mon)
	if err != nil {
		return err
	}

	if s.recorder != nil {
		defer func() {
			if err := s.recorder.Close(); err != nil {
				log.Error(err, "failed to close recorder")
			}
		}()
	}

	err = s.bridge.Serve(ctx)

	stats := s.bridge.Stats()
	log.Info("session finished",
		"resets", stats.Resets,
		"retired", stats.Retired,
		"cycles", stats.Cycles)

	switch {
	case errors.Is(err, transport.ErrClosed):
		return nil
	case errors.Is(err, context.Canceled):
		return nil
	default:
		return err
	}
}

// accept waits for a connection while honoring ctx.
func accept(ctx context.Context, ln *transport.Listener) (*transport.TCPConn, error) {
	type result struct {
		conn *transport.TCPConn
		err  error
	}

	done := make(chan result, 1)
	go func() {
		conn, err := ln.Accept()
		done <- result{conn, err}
	}()

	select {
	case <-ctx.Done():
		ln.Close()
		return nil, ctx.Err()
	case r := <-done:
		return r.conn, r.err
	}
}

func newSession(
	conn transport.Conn,
	cfg *config.Config,
	log logr.Logger,
	mon *monitor.Server,
) (*session, error) {
	memory, err := mem.New(cfg.MemBase, cfg.MemSize)
	if err != nil {
		return nil, err
	}

	core := emu.NewCore(emu.WithLogger(log.WithName("core")))
	adapter := dut.NewAdapter(core,
		dut.WithFreq(sim.Freq(cfg.ClockFreqMHz)*sim.MHz),
		dut.WithLogger(log.WithName("adapter")),
	)

	extend := rvfi.ExtendZero
	if cfg.SignExtend {
		extend = rvfi.ExtendSign
	}

	opts := []bridge.Option{
		bridge.WithLogger(log.WithName("bridge")),
		bridge.WithBootAddr(cfg.BootAddr),
		bridge.WithResetEdges(cfg.ResetEdges),
		bridge.WithExtendMode(extend),
		bridge.WithChunkSize(cfg.ChunkSize),
		bridge.WithPollInterval(time.Duration(cfg.PollInterval)),
		bridge.WithStreaming(cfg.Streaming),
	}

	s := &session{core: core, monitor: mon}

	if mon != nil {
		opts = append(opts, bridge.WithPublisher(mon))
		mon.RegisterComponent("core", core)
		mon.RegisterComponent("memory", memory)
	}

	s.bridge = bridge.New(conn, adapter, memory, opts...)

	if mon != nil {
		mon.RegisterComponent("tracker", s.bridge.Tracker())
	}

	if cfg.RecordPath != "" {
		s.recorder, err = record.New(cfg.RecordPath,
			record.WithLogger(log.WithName("record")))
		if err != nil {
			return nil, err
		}

		s.bridge.AcceptHook(s.recorder)
	}

	return s, nil
}
