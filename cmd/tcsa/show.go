package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/RidiculousBuffal/TCSA/internal/errorutil"
	"github.com/RidiculousBuffal/TCSA/internal/report"
	"github.com/RidiculousBuffal/TCSA/internal/storageprovider"
	"github.com/RidiculousBuffal/TCSA/internal/storageutil"
)

func newShowCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "show <store> <analysis-id>",
		Short: "Print a stored report",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return show(cmd.Context(), cmd.OutOrStdout(), args[0], args[1], output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Report format: text or json")
	return cmd
}

func show(ctx context.Context, out io.Writer, rawURL, analysisID, output string) error {
	if output != outputText && output != outputJSON {
		return fmt.Errorf("%w: unknown output %q", errorutil.ErrInvalidConfig, output)
	}
	p, err := storageprovider.Open(ctx, rawURL)
	if err != nil {
		return err
	}
	defer p.Close()

	var doc report.Document
	if err := storageutil.UnmarshalCompressed(ctx, p, report.StoragePath(analysisID), &doc); err != nil {
		return fmt.Errorf("analysis %s: %w", analysisID, err)
	}
	return render(out, doc, output)
}
