// internal/cli/configs.go
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scrape-studio/studio/internal/ui"
	"github.com/scrape-studio/studio/pkg/models"
)

var configsCmd = &cobra.Command{
	Use:   "configs",
	Short: "Manage stored scraper configs",
}

var configsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored config names",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := GetAppFromCmd(cmd)
		names, err := a.Store.List()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println(ui.Info("no configs stored"))
			return nil
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

var configsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print one stored config as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := GetAppFromCmd(cmd)
		cfg, err := a.Store.Load(args[0])
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

var configsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a config from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := GetAppFromCmd(cmd)
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var cfg models.ScraperConfig
		if err := json.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("invalid config file: %w", err)
		}
		if cfg.Name == "" {
			return fmt.Errorf("config has no name")
		}
		if err := a.Store.Save(&cfg); err != nil {
			return err
		}
		fmt.Println(ui.Success("imported " + cfg.Name))
		return nil
	},
}

var configsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a stored config",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := GetAppFromCmd(cmd)
		if err := a.Store.Delete(args[0]); err != nil {
			return err
		}
		fmt.Println(ui.Success("deleted " + args[0]))
		return nil
	},
}

func init() {
	configsCmd.AddCommand(configsListCmd, configsShowCmd, configsImportCmd, configsDeleteCmd)
	rootCmd.AddCommand(configsCmd)
}
