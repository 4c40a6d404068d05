package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/getsentry/sentry-go"
	gojson "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"

	"github.com/RidiculousBuffal/TCSA/internal/analysis"
	"github.com/RidiculousBuffal/TCSA/internal/errorutil"
	"github.com/RidiculousBuffal/TCSA/internal/pprofexport"
	"github.com/RidiculousBuffal/TCSA/internal/report"
	"github.com/RidiculousBuffal/TCSA/internal/sampleio"
	"github.com/RidiculousBuffal/TCSA/internal/speedscope"
	"github.com/RidiculousBuffal/TCSA/internal/storageprovider"
	"github.com/RidiculousBuffal/TCSA/internal/storageutil"
)

type (
	KafkaWriter interface {
		WriteMessages(ctx context.Context, msgs ...kafka.Message) error
		Close() error
	}

	analyzeConfig struct {
		options analysis.Options
		format  string
		output  string
		timeout time.Duration
		retries int

		store         string
		speedscopeDir string
		pprofDir      string
		kafkaBrokers  []string
		kafkaTopic    string
	}
)

const (
	outputText = "text"
	outputJSON = "json"
)

func newAnalyzeCmd() *cobra.Command {
	c := analyzeConfig{options: analysis.DefaultOptions()}
	cmd := &cobra.Command{
		Use:   "analyze <input>",
		Short: "Analyze a perf script dump or a JSON sample set",
		Long: "Analyze the CPU samples read from a file, an http(s) URL or - for the standard input.\n" +
			"Inputs ending with .lz4 or .zst are decompressed.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var writer KafkaWriter
			if len(c.kafkaBrokers) != 0 {
				if c.kafkaTopic == "" {
					return fmt.Errorf("%w: --kafka-topic is required with --kafka-brokers", errorutil.ErrInvalidConfig)
				}
				writer = &kafka.Writer{
					Addr:         kafka.TCP(c.kafkaBrokers...),
					Balancer:     kafka.CRC32Balancer{},
					Compression:  kafka.Lz4,
					ReadTimeout:  3 * time.Second,
					Topic:        c.kafkaTopic,
					WriteTimeout: 3 * time.Second,
				}
			}
			return analyze(cmd.Context(), cmd.OutOrStdout(), args[0], c, writer)
		},
	}

	f := cmd.Flags()
	f.StringVar(&c.format, "format", string(sampleio.FormatAuto), "Input format: auto, perf or json")
	f.IntVar(&c.options.DegreesOfFreedom, "degrees-of-freedom", c.options.DegreesOfFreedom, "Frames kept in a signature, -1 for the whole stack")
	f.IntVar((*int)(&c.options.Direction), "direction", int(c.options.Direction), "0 keeps the outermost frames, 1 the innermost ones")
	f.IntVar(&c.options.DurationThreshold, "threshold", c.options.DurationThreshold, "Minimum duration length of a contending run, -1 for the mean of each mode")
	f.StringSliceVar(&c.options.IgnoredProcesses, "ignore-process", c.options.IgnoredProcesses, "Drop runs of processes whose name contains this value")
	f.IntVar(&c.options.Workers, "workers", 0, "Goroutines used by each stage, 0 for GOMAXPROCS")
	f.StringVarP(&c.output, "output", "o", outputText, "Report format: text or json")
	f.DurationVar(&c.timeout, "timeout", 30*time.Second, "Timeout of http(s) inputs")
	f.IntVar(&c.retries, "retries", 3, "Retries of http(s) inputs")
	f.StringVar(&c.store, "store", "", "Store the report in this bucket (file://, mem://, s3://, gs:// or badger://)")
	f.StringVar(&c.speedscopeDir, "speedscope", "", "Write a speedscope profile per contention group in this directory")
	f.StringVar(&c.pprofDir, "pprof", "", "Write a pprof profile per contention group in this directory")
	f.StringSliceVar(&c.kafkaBrokers, "kafka-brokers", nil, "Publish contention groups to these Kafka brokers")
	f.StringVar(&c.kafkaTopic, "kafka-topic", "", "Kafka topic of published contention groups")
	return cmd
}

func analyze(ctx context.Context, out io.Writer, input string, c analyzeConfig, writer KafkaWriter) error {
	if c.output != outputText && c.output != outputJSON {
		return fmt.Errorf("%w: unknown output %q", errorutil.ErrInvalidConfig, c.output)
	}
	format, err := sampleio.ParseFormat(c.format)
	if err != nil {
		return err
	}
	if err := c.options.Validate(); err != nil {
		return err
	}

	span := sentry.StartSpan(ctx, "tcsa.analyze")
	defer span.Finish()
	ctx = span.Context()

	s := sentry.StartSpan(ctx, "sampleio.load")
	s.Description = input
	samples, err := sampleio.NewLoader(c.timeout, c.retries).Load(ctx, input, format)
	s.Finish()
	if err != nil {
		return err
	}

	r, err := analysis.Run(ctx, samples, c.options)
	if err != nil {
		return err
	}
	doc := report.NewDocument(r)
	log.Info().
		Str("analysis_id", doc.ID).
		Int("windows", len(doc.Windows)).
		Int("contention_groups", len(doc.ContentionGroups)).
		Msg("analysis done")

	if c.store != "" {
		if err := store(ctx, c.store, doc); err != nil {
			return err
		}
	}
	if c.speedscopeDir != "" {
		if err := writeSpeedscope(c.speedscopeDir, doc); err != nil {
			return err
		}
	}
	if c.pprofDir != "" {
		if err := writePprof(c.pprofDir, doc); err != nil {
			return err
		}
	}
	if writer != nil {
		if err := publish(ctx, writer, doc); err != nil {
			return err
		}
	}
	return render(out, doc, c.output)
}

func store(ctx context.Context, rawURL string, doc report.Document) error {
	s := sentry.StartSpan(ctx, "storage.write")
	defer s.Finish()
	p, err := storageprovider.Open(ctx, rawURL)
	if err != nil {
		return err
	}
	defer p.Close()
	if err := storageutil.CompressedWrite(ctx, p, report.StoragePath(doc.ID), doc); err != nil {
		return err
	}
	log.Info().Str("store", rawURL).Str("object", report.StoragePath(doc.ID)).Msg("report stored")
	return nil
}

func writeSpeedscope(dir string, doc report.Document) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, g := range doc.ContentionGroups {
		o, err := speedscope.FromContentionGroup(doc.ID, g)
		if err != nil {
			return err
		}
		b, err := gojson.Marshal(o)
		if err != nil {
			return err
		}
		name := filepath.Join(dir, fmt.Sprintf("%s-%d.speedscope.json", doc.ID, g.ID))
		if err := os.WriteFile(name, b, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func writePprof(dir string, doc report.Document) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, g := range doc.ContentionGroups {
		p, err := pprofexport.FromContentionGroup(doc.ID, g)
		if err != nil {
			return err
		}
		f, err := os.Create(filepath.Join(dir, fmt.Sprintf("%s-%d.pb.gz", doc.ID, g.ID)))
		if err != nil {
			return err
		}
		err = p.Write(f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func publish(ctx context.Context, writer KafkaWriter, doc report.Document) error {
	defer writer.Close()
	s := sentry.StartSpan(ctx, "kafka.write")
	defer s.Finish()
	messages, err := report.GenerateKafkaMessageBatch(doc)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}
	return writer.WriteMessages(ctx, messages...)
}

func render(out io.Writer, doc report.Document, output string) error {
	if output == outputJSON {
		b, err := gojson.MarshalIndent(doc, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(b))
		return err
	}
	return report.WriteText(out, doc)
}
