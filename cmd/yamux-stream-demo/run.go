package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/dep2p/go-yamux-stream/internal/config"
	"github.com/dep2p/go-yamux-stream/internal/logger"
	"github.com/dep2p/go-yamux-stream/internal/loopback"
	"github.com/dep2p/go-yamux-stream/internal/metrics"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:                "run",
		Short:              "run the spec's simple-echo scenario end to end and serve /metrics",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd, args)
		},
	}
	return cmd
}

func runDemo(cmd *cobra.Command, args []string) error {
	cfg, _, err := config.Load(args, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	if level, ok := logger.ParseLevel(cfg.LogLevel); ok {
		logger.SetLevel("loopback", level)
		logger.SetLevel("stream", level)
	}
	log := logger.GlobalLogger()

	collectors := metrics.New()
	registry := prometheus.NewRegistry()
	collectors.MustRegister(registry)

	server := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler(registry)}
	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- server.ListenAndServe() }()
	defer server.Close()

	log.Info("serving metrics", "addr", cfg.MetricsAddr)

	loop := loopback.NewLoop()
	defer loop.Close()

	client := loopback.NewPipe(loop)
	srv := loopback.NewPipe(loop)
	client.SetMetrics(collectors)
	srv.SetMetrics(collectors)
	loopback.Connect(client, srv)

	clientStream, serverStream := client.OpenStream(cfg.Stream.StreamConfig())

	const message = "hello, yamux-style stream"
	readDone := make(chan struct{})
	writeDone := make(chan struct{})
	buf := make([]byte, len(message))
	var readErr, writeErr error

	srv.Submit(func() {
		serverStream.Read(buf, len(message), func(n int, err error) {
			readErr = err
			close(readDone)
		})
	})
	client.Submit(func() {
		clientStream.Write([]byte(message), len(message), func(n int, err error) {
			writeErr = err
			close(writeDone)
		})
	})

	timeout := time.After(5 * time.Second)
	for i := 0; i < 2; i++ {
		select {
		case <-readDone:
			readDone = nil
		case <-writeDone:
			writeDone = nil
		case <-timeout:
			return fmt.Errorf("timed out waiting for echo scenario to complete")
		}
	}
	if writeErr != nil {
		return fmt.Errorf("write failed: %w", writeErr)
	}
	if readErr != nil {
		return fmt.Errorf("read failed: %w", readErr)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "echoed %d bytes: %q\n", len(message), string(buf))
	return nil
}
