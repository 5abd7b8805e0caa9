package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/maxgrab/maxgrab/internal/version"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "maxgrab",
		Short: "Media relay bot for the MAX messenger",
		Long:  "maxgrab resolves links sent to the bot, downloads the media, and relays it back into the chat as native attachments with hosted-link fallback.",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the TOML config file (default: CONFIG_PATH env)")

	root.AddCommand(newServeCommand())
	root.AddCommand(newSetWebhookCommand())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version and build info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("maxgrab %s\n", version.GetInfo())
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return os.Getenv("CONFIG_PATH")
}
