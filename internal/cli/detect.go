// internal/cli/detect.go
package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scrape-studio/studio/internal/extract"
	"github.com/scrape-studio/studio/internal/ui"
)

var detectPaginationCmd = &cobra.Command{
	Use:   "detect-pagination <base-url> <next-url>",
	Short: "Infer a URL pagination pattern from two consecutive page URLs",
	Args:  cobra.ExactArgs(2),
	Example: `  # Offset-style query parameter
  studio detect-pagination "https://shop.example/items?start=0" "https://shop.example/items?start=24"

  # Path-based page numbers
  studio detect-pagination "https://shop.example/items/page/1" "https://shop.example/items/page/2"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pattern, ok := extract.DetectURLPattern(args[0], args[1])
		if !ok {
			fmt.Println(ui.Info("no unambiguous pattern detected"))
			return nil
		}
		data, err := json.MarshalIndent(pattern, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(detectPaginationCmd)
}
