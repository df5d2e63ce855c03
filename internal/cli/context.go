// Package cli provides the command-line interface for the studio engine.
package cli

import (
	"github.com/scrape-studio/studio/internal/app"
	"github.com/spf13/cobra"
)

// SetApp stores the Application for commands to access.
func SetApp(cmd *cobra.Command, a *app.Application) {
	if cmd == nil {
		return
	}
	globalApp = a
}

// GetApp retrieves the Application.
func GetApp() *app.Application {
	return globalApp
}

// GetAppFromCmd retrieves the Application for a command.
func GetAppFromCmd(cmd *cobra.Command) *app.Application {
	return globalApp
}

// Global reference, set during PersistentPreRunE.
var globalApp *app.Application
