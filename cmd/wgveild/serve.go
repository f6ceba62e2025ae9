package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haruue-net/wgveil/internal/config"
	"github.com/haruue-net/wgveil/internal/pipeline"
	"github.com/haruue-net/wgveil/internal/wglog"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay",
	Long: `Load the configuration, bind the listening and forwarding
endpoints, and run the relay until interrupted (SIGINT/SIGTERM).`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	path, err := requireConfigPath()
	if err != nil {
		return err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	wglog.SetLevel(wglog.ParseLevel(cfg.LogLevel))

	engine, err := pipeline.NewEngine(cfg)
	if err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		wglog.Info("shutting down")
		engine.Stop()
	}()

	engine.Run()
	return nil
}
