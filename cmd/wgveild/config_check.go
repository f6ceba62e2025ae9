package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haruue-net/wgveil/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and validate the relay's configuration",
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate a configuration file without starting the relay",
	RunE:  runConfigCheck,
}

func init() {
	configCmd.AddCommand(configCheckCmd)
}

func runConfigCheck(cmd *cobra.Command, args []string) error {
	path, err := requireConfigPath()
	if err != nil {
		return err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	fmt.Printf("ok: listen=%s forward=%s thread_mode=%s masking=%q\n",
		cfg.Listen, cfg.Forward, cfg.ThreadMode, cfg.MaskingHandler)
	return nil
}
