// internal/cli/scrape.go
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/scrape-studio/studio/internal/extract"
	"github.com/scrape-studio/studio/internal/ui"
	"github.com/scrape-studio/studio/pkg/models"
)

var (
	scrapeURL     string
	scrapeBrowser bool
	scrapeOutput  string
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape <config-name>",
	Short: "Run a saved scraper config and print the extracted items",
	Long: `Runs the static HTTP fast path first; when the site needs a real
browser (bot checks, lazy loading, too few items) it falls back to a
browser session automatically. Use --browser to skip the fast path.`,
	Args: cobra.ExactArgs(1),
	Example: `  # Run a stored config
  studio scrape shoes-store

  # Override the start URL and force the browser path
  studio scrape shoes-store --url https://example.com/sale --browser

  # Write items to a file
  studio scrape shoes-store -o items.json`,
	RunE: runScrape,
}

func init() {
	scrapeCmd.Flags().StringVar(&scrapeURL, "url", "", "Override the config's start URL")
	scrapeCmd.Flags().BoolVar(&scrapeBrowser, "browser", false, "Skip the HTTP fast path and go straight to a browser session")
	scrapeCmd.Flags().StringVarP(&scrapeOutput, "output", "o", "", "Write items JSON to a file instead of stdout")
	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, args []string) error {
	a := GetAppFromCmd(cmd)
	ctx := cmd.Context()

	cfg, err := a.Store.Load(args[0])
	if err != nil {
		return err
	}
	if scrapeURL != "" {
		cfg.StartURL = scrapeURL
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("scraping "+cfg.Name),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	defer bar.Finish()

	var items []models.ScrapedItem
	var errs []string

	tryBrowser := scrapeBrowser
	if !tryBrowser {
		res := a.Static.Scrape(ctx, cfg)
		items = res.Items
		if res.NeedsBrowser {
			log.Info().Str("reason", res.Reason).Msg("Fast path insufficient, falling back to browser")
			tryBrowser = true
		}
	}

	if tryBrowser {
		pool, err := a.EnsurePool(ctx)
		if err != nil {
			return err
		}
		sess, err := pool.Create(ctx, nil)
		if err != nil {
			return err
		}
		defer pool.Destroy(sess.ID)

		result := sess.Scrape(ctx, cfg)
		items = result.Items
		errs = result.Errors
		if !result.Success {
			bar.Finish()
			for _, e := range errs {
				fmt.Fprintln(os.Stderr, ui.Error("error: "+e))
			}
			return fmt.Errorf("scrape failed")
		}
	}

	bar.Finish()

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	if scrapeOutput != "" {
		if err := os.WriteFile(scrapeOutput, data, 0644); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, ui.Success(fmt.Sprintf("%d items written to %s", len(items), scrapeOutput)))
	} else {
		fmt.Println(string(data))
	}

	for _, e := range errs {
		if e == extract.ReasonNoContainer {
			fmt.Fprintln(os.Stderr, ui.Info("no item container could be detected; set itemContainer in the config"))
		}
	}
	return nil
}
