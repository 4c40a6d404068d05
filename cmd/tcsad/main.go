package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CAFxX/httpcompression"
	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/julienschmidt/httprouter"
	"github.com/karlseguin/ccache/v3"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/RidiculousBuffal/TCSA/internal/envutil"
	"github.com/RidiculousBuffal/TCSA/internal/httputil"
	"github.com/RidiculousBuffal/TCSA/internal/logutil"
	"github.com/RidiculousBuffal/TCSA/internal/report"
	"github.com/RidiculousBuffal/TCSA/internal/storageprovider"
	"github.com/RidiculousBuffal/TCSA/internal/storageutil"
)

type (
	KafkaWriter interface {
		WriteMessages(ctx context.Context, msgs ...kafka.Message) error
		Close() error
	}

	environment struct {
		config ServiceConfig

		storage storageutil.ObjectHandler
		// documents caches the reports read or written, by analysis ID.
		documents *ccache.Cache[report.Document]
		// contentionWriter is nil when no broker is configured.
		contentionWriter KafkaWriter
	}
)

var release string

func newEnvironment() (*environment, error) {
	envName := envutil.GetEnvOrFallback("SENTRY_ENVIRONMENT", "development")
	var e environment
	var err error
	e.config, err = loadServiceConfig(envName)
	if err != nil {
		return nil, err
	}

	e.storage, err = storageprovider.Open(context.Background(), e.config.StorageURL)
	if err != nil {
		return nil, err
	}
	e.documents = newDocumentCache(e.config.DocumentCacheSize)
	if len(e.config.KafkaBrokers) != 0 {
		e.contentionWriter = &kafka.Writer{
			Addr:         kafka.TCP(e.config.KafkaBrokers...),
			Async:        true,
			Balancer:     kafka.CRC32Balancer{},
			BatchSize:    100,
			Compression:  kafka.Lz4,
			ReadTimeout:  3 * time.Second,
			Topic:        e.config.ContentionGroupsKafkaTopic,
			WriteTimeout: 3 * time.Second,
		}
	}
	return &e, nil
}

func (e *environment) shutdown() {
	if c, ok := e.storage.(io.Closer); ok {
		if err := c.Close(); err != nil {
			sentry.CaptureException(err)
		}
	}
	if e.documents != nil {
		e.documents.Stop()
	}
	if e.contentionWriter != nil {
		if err := e.contentionWriter.Close(); err != nil {
			sentry.CaptureException(err)
		}
	}
	sentry.Flush(5 * time.Second)
}

func newDocumentCache(size int64) *ccache.Cache[report.Document] {
	if size <= 0 {
		return nil
	}
	return ccache.New(ccache.Configure[report.Document]().MaxSize(size))
}

func (e *environment) newRouter() (*httprouter.Router, error) {
	compress, err := httpcompression.DefaultAdapter()
	if err != nil {
		return nil, err
	}

	routes := []struct {
		method  string
		path    string
		handler http.HandlerFunc
	}{
		{http.MethodGet, "/analyses/:analysis_id", e.getAnalysis},
		{http.MethodGet, "/analyses/:analysis_id/contention_groups/:group_id/pprof", e.getPprof},
		{http.MethodGet, "/analyses/:analysis_id/contention_groups/:group_id/speedscope", e.getSpeedscope},
		{http.MethodGet, "/health", e.getHealth},
		{http.MethodPost, "/analyses", e.postAnalysis},
	}

	router := httprouter.New()

	for _, route := range routes {
		handlerFunc := httputil.DecompressPayload(route.handler)
		handler := compress(handlerFunc)

		router.Handler(route.method, route.path, handler)
	}

	return router, nil
}

func (e *environment) newHandler() (http.Handler, error) {
	router, err := e.newRouter()
	if err != nil {
		return nil, err
	}
	return sentryhttp.New(sentryhttp.Options{}).Handle(router), nil
}

func main() {
	env, err := newEnvironment()
	if err != nil {
		log.Fatal().Err(err).Msg("error setting up environment")
	}

	if err := logutil.ConfigureLogger(env.config.LogLevel); err != nil {
		log.Fatal().Err(err).Msg("error setting up the logger")
	}

	err = sentry.Init(sentry.ClientOptions{
		BeforeSend:       httputil.SetHTTPStatusCodeTag,
		Dsn:              env.config.SentryDSN,
		EnableTracing:    true,
		Environment:      env.config.Environment,
		Release:          release,
		TracesSampleRate: 1.0,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("can't initialize sentry")
	}

	handler, err := env.newHandler()
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal().Err(err).Msg("error setting up the router")
	}

	server := http.Server{
		Addr:              ":" + envutil.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	waitForShutdown := make(chan struct{})
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c

		cctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(cctx); err != nil {
			sentry.CaptureException(err)
			log.Err(err).Msg("error shutting down server")
		}

		close(waitForShutdown)
	}()

	log.Info().Str("addr", server.Addr).Str("environment", env.config.Environment).Msg("listening")
	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		sentry.CaptureException(err)
		log.Err(err).Msg("server failed")
	}

	<-waitForShutdown

	// Shutdown the rest of the environment after the HTTP connections are closed
	env.shutdown()
}

func (e *environment) getHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
