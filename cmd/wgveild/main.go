// Command wgveild runs the UDP-to-UDP WireGuard obfuscation relay.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haruue-net/wgveil/internal/wglog"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

var globalConfigPath string

var rootCmd = &cobra.Command{
	Use:   "wgveild",
	Short: "UDP-to-UDP WireGuard obfuscation relay",
	Long: `wgveild sits between a WireGuard client and server, rewriting and
padding each datagram's header so the handshake no longer looks like
WireGuard to casual inspection, then undoes the rewrite on the far
side.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&globalConfigPath, "config", "c", "", "path to the relay's JSON5 config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the wgveild version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

func requireConfigPath() (string, error) {
	if globalConfigPath == "" {
		return "", fmt.Errorf("missing required --config/-c flag")
	}
	return globalConfigPath, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		wglog.Error("%s", err)
		os.Exit(1)
	}
}
