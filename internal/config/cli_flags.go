package config

import "github.com/spf13/cobra"

// RegisterFlags registers the shared CLI flags on the root command.
func RegisterFlags(cmd *cobra.Command) {
	if cmd == nil {
		return
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress all output except errors")
	cmd.PersistentFlags().Bool("json", false, "Log in JSON format")
	cmd.PersistentFlags().String("proxy", "", "Comma-separated proxy list (e.g. http://localhost:8080)")
	cmd.PersistentFlags().String("timeout", "10s", "HTTP timeout for the static fast path")
	cmd.PersistentFlags().String("user-agent", "", "Custom user agent string")
	cmd.PersistentFlags().String("listen", DefaultListenAddr, "Protocol server listen address")
	cmd.PersistentFlags().Int("max-sessions", DefaultMaxSessions, "Browser session ceiling")
	cmd.PersistentFlags().Bool("headful", false, "Run the browser with a visible window")
}
