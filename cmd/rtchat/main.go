// Command rtchat is a text chat against the realtime API. Tools from
// external providers listed in a gateway config are offered to the model.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	model        string
	apiKey       string
	instructions string
	gatewayPath  string
	metricsAddr  string
	audioReplies bool
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "rtchat",
	Short: "Text chat over the realtime API",
	Long: `rtchat reads lines from stdin, sends each as a user message and
prints the assistant's replies as they stream in. Tool providers from
the gateway config are started and exposed to the model as functions.`,
	SilenceUsage: true,
	RunE:         runChat,
}

func init() {
	rootCmd.Flags().StringVar(&model, "model", "", "Realtime model (default: client default)")
	rootCmd.Flags().StringVar(&apiKey, "key", "", "API key (default: $OPENAI_KEY or $OPENAI_API_KEY)")
	rootCmd.Flags().StringVarP(&instructions, "instructions", "i", "You are a helpful assistant. Keep answers short.", "System instructions")
	rootCmd.Flags().StringVarP(&gatewayPath, "gateway", "g", "", "Tool provider config (YAML or JSON)")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	rootCmd.Flags().BoolVar(&audioReplies, "audio", false, "Request audio replies and print their transcripts")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
