package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	chatroom "github.com/putto11262002/chatroom/app"
)

func newServeCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := chatroom.LoadConfig(*configFile)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
			defer stop()

			app, err := chatroom.New(ctx, config)
			if err != nil {
				return err
			}
			return app.Start()
		},
	}
}

func newMigrateCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			config, err := chatroom.LoadConfig(*configFile)
			if err != nil {
				return err
			}
			if err := config.Validate(); err != nil {
				return fmt.Errorf("invalid config:\n%s", chatroom.FormatValidationErrors(err))
			}
			return chatroom.Migrate(config)
		},
	}
}

func newChatroomCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:          "chatroom",
		Short:        "Realtime chat rooms over HTTP and websockets",
		Example:      "chatroom serve --config ./config.yaml",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"Path to the config file (default: ./config.yaml)")

	cmd.AddCommand(
		newServeCommand(&configFile),
		newMigrateCommand(&configFile),
	)
	return cmd
}

func main() {
	if err := newChatroomCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
