package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "imageeditor",
		Short: "AI image editor backed by Cloudinary generative transforms",
		Long: `Imageeditor is a web app for editing photos with generative AI.

Logged-in users pick one of six workflows (expand, replace, upscale,
remove object, recolor, restore), upload a JPEG or PNG and compare the
original with the transformed result side by side.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	// Add subcommands
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newUsersCmd())
	cmd.AddCommand(newHistoryCmd())

	return cmd
}
