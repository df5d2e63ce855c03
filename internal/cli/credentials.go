// internal/cli/credentials.go
package cli

import (
	"fmt"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/scrape-studio/studio/internal/ui"
)

var credentialsCmd = &cobra.Command{
	Use:     "credentials",
	Aliases: []string{"creds"},
	Short:   "Manage secrets referenced by {{credential:name}} pre-actions",
}

var credentialsSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Store a secret (prompted, never echoed)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := GetAppFromCmd(cmd)
		fmt.Printf("Secret for %q: ", args[0])
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return err
		}
		if err := a.Credentials.Set(args[0], string(secret)); err != nil {
			return err
		}
		fmt.Println(ui.Success("stored " + args[0]))
		return nil
	},
}

var credentialsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored credential names",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := GetAppFromCmd(cmd)
		names, err := a.Credentials.List()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println(ui.Info("no credentials stored"))
			return nil
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

var credentialsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a stored credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := GetAppFromCmd(cmd)
		if err := a.Credentials.Delete(args[0]); err != nil {
			return err
		}
		fmt.Println(ui.Success("deleted " + args[0]))
		return nil
	},
}

func init() {
	credentialsCmd.AddCommand(credentialsSetCmd, credentialsListCmd, credentialsDeleteCmd)
	rootCmd.AddCommand(credentialsCmd)
}
