// internal/cli/root.go
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/scrape-studio/studio/internal/app"
	"github.com/scrape-studio/studio/internal/config"
	"github.com/scrape-studio/studio/internal/ui"
)

var rootCmd = &cobra.Command{
	Use:     "studio",
	Short:   "Visual scraping engine: live browser sessions plus heuristic extraction",
	Long:    `Studio drives real browser tabs for interactive scraper building and runs saved configs through a heuristic extraction engine, with an HTTP fast path for sites that don't need a browser.`,
	Version: "0.1.0",
}

// Execute runs the CLI. The application is initialized lazily in
// PersistentPreRunE so help and version never start browsers or caches.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if GetAppFromCmd(cmd) != nil {
			return nil
		}
		cfg, err := config.Load(rootCmd)
		if err != nil {
			return err
		}
		a, err := app.New(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		SetApp(cmd, a)
		return nil
	}

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		a := GetAppFromCmd(cmd)
		if a == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), a.Config.HTTPTimeout)
		defer cancel()
		if err := a.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("Shutdown reported error")
		}
		SetApp(cmd, nil)
	}

	config.RegisterFlags(rootCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetHelpFunc(helpFunc)
}

// helpFunc renders colorized help.
func helpFunc(cmd *cobra.Command, args []string) {
	out := os.Stdout
	fmt.Fprintf(out, "\n%s%s%s\n", ui.ColorBold+ui.ColorCyan, strings.ToUpper(cmd.Name()), ui.ColorReset)
	if cmd.Short != "" {
		fmt.Fprintf(out, "%s\n", cmd.Short)
	}
	if cmd.Long != "" && cmd.Long != cmd.Short {
		fmt.Fprintf(out, "\n%s\n", cmd.Long)
	}

	fmt.Fprintf(out, "\n%sUsage%s\n", ui.ColorBold+ui.ColorWhite, ui.ColorReset)
	if cmd.Runnable() {
		fmt.Fprintf(out, "  %s%s%s\n", ui.ColorCyan, cmd.UseLine(), ui.ColorReset)
	}
	if cmd.HasAvailableSubCommands() {
		fmt.Fprintf(out, "  %s%s%s %s<command>%s [flags]\n",
			ui.ColorCyan, cmd.CommandPath(), ui.ColorReset, ui.ColorYellow, ui.ColorReset)

		fmt.Fprintf(out, "\n%sCommands%s\n", ui.ColorBold+ui.ColorWhite, ui.ColorReset)
		maxLen := 0
		for _, c := range cmd.Commands() {
			if c.IsAvailableCommand() && len(c.Name()) > maxLen {
				maxLen = len(c.Name())
			}
		}
		for _, c := range cmd.Commands() {
			if !c.IsAvailableCommand() || c.Name() == "help" {
				continue
			}
			fmt.Fprintf(out, "  %s%-*s%s  %s%s%s\n",
				ui.ColorCyan, maxLen, c.Name(), ui.ColorReset,
				ui.ColorDim, c.Short, ui.ColorReset)
		}
	}

	if cmd.HasExample() {
		fmt.Fprintf(out, "\n%sExamples%s\n%s\n", ui.ColorBold+ui.ColorWhite, ui.ColorReset, cmd.Example)
	}
	if cmd.HasAvailableLocalFlags() {
		fmt.Fprintf(out, "\n%sFlags%s\n%s", ui.ColorBold+ui.ColorWhite, ui.ColorReset, cmd.LocalFlags().FlagUsages())
	}
	if cmd.HasAvailableInheritedFlags() {
		fmt.Fprintf(out, "\n%sGlobal Flags%s\n%s", ui.ColorBold+ui.ColorWhite, ui.ColorReset, cmd.InheritedFlags().FlagUsages())
	}
	fmt.Fprintln(out)
}
