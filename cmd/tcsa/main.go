package main

import (
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/RidiculousBuffal/TCSA/internal/logutil"
)

var release string

var (
	verbose   bool
	sentryDSN string

	rootCmd = &cobra.Command{
		Use:           "tcsa",
		Short:         "Detect time overlapping call stack contention in CPU samples",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			level := "info"
			if verbose {
				level = "debug"
			}
			if err := logutil.ConfigureLogger(level); err != nil {
				return err
			}
			if sentryDSN == "" {
				return nil
			}
			return sentry.Init(sentry.ClientOptions{
				Dsn:              sentryDSN,
				EnableTracing:    true,
				Release:          release,
				TracesSampleRate: 1.0,
			})
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug messages")
	rootCmd.PersistentFlags().StringVar(&sentryDSN, "sentry-dsn", os.Getenv("SENTRY_DSN"), "Report errors and traces to this Sentry DSN")

	rootCmd.AddCommand(newAnalyzeCmd(), newShowCmd())
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		sentry.CaptureException(err)
		log.Error().Err(err).Msg("tcsa failed")
	}
	sentry.Flush(5 * time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
