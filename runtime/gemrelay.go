package main

import (
	"os"

	"github.com/requiem-ai/gemrelay/config"
	"github.com/requiem-ai/gemrelay/context"
	"github.com/requiem-ai/gemrelay/logging"
	"github.com/requiem-ai/gemrelay/services"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		envFile string
		poll    bool
		dialect string
	)

	cmd := &cobra.Command{
		Use:           "gemrelay",
		Short:         "Relay Telegram messages to Gemini",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			if poll {
				cfg.ForcePolling = true
			}
			if cmd.Flags().Changed("dialect") {
				cfg.MarkupDialect = dialect
			}

			if err := logging.Setup(cfg.LogLevel, cfg.LogFile, os.Stdout); err != nil {
				log.Warn().Err(err).Str("file", cfg.LogFile).Msg("file logging disabled")
			}

			log.Info().Msg("Starting GemRelay")

			ctx, err := context.NewCtx(
				//Core
				&services.SetupService{Config: cfg},
				&services.FetcherService{Config: cfg},
				&services.TelegramService{Config: cfg},
			)
			if err != nil {
				log.Error().Err(err).Msg("failed to build service context")
				return err
			}

			return ctx.Run()
		},
	}

	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path of the .env file to load and update")
	cmd.Flags().BoolVar(&poll, "poll", false, "Use long polling even when WEB_HOOK_URL is set")
	cmd.Flags().StringVar(&dialect, "dialect", "", "Markup dialect to send: html or markdownv2")

	cmd.AddCommand(newRenderCmd())

	return cmd
}
