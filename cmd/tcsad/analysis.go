package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	jsoniter "github.com/json-iterator/go"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	"github.com/RidiculousBuffal/TCSA/internal/analysis"
	"github.com/RidiculousBuffal/TCSA/internal/errorutil"
	"github.com/RidiculousBuffal/TCSA/internal/httputil"
	"github.com/RidiculousBuffal/TCSA/internal/pprofexport"
	"github.com/RidiculousBuffal/TCSA/internal/report"
	"github.com/RidiculousBuffal/TCSA/internal/sample"
	"github.com/RidiculousBuffal/TCSA/internal/sampleio"
	"github.com/RidiculousBuffal/TCSA/internal/speedscope"
	"github.com/RidiculousBuffal/TCSA/internal/storageutil"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// documentTTL bounds how long a report stays in memory after its last write.
const documentTTL = 10 * time.Minute

// statusCode maps an error to the status code of the response.
func statusCode(err error) int {
	switch {
	case errors.Is(err, errorutil.ErrInvalidInput), errors.Is(err, errorutil.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, storageutil.ErrObjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (e *environment) optionsFromRequest(r *http.Request) (analysis.Options, sampleio.Format, error) {
	o := analysis.DefaultOptions()
	o.DurationThreshold = e.config.DurationThreshold
	o.Workers = e.config.Workers

	q := r.URL.Query()
	direction := int(o.Direction)
	logger, err := httputil.GetIntQueryParameters(q, map[string]*int{
		"degrees_of_freedom":        &o.DegreesOfFreedom,
		"direction":                 &direction,
		"duration_length_threshold": &o.DurationThreshold,
	})
	if err != nil {
		return o, "", err
	}
	o.Direction = sample.Direction(direction)
	if ignored, exists := q["ignored_process"]; exists {
		o.IgnoredProcesses = ignored
	}

	format := sampleio.FormatJSON
	if raw := q.Get("format"); raw != "" {
		format, err = sampleio.ParseFormat(raw)
		if err != nil {
			return o, "", err
		}
		if format == sampleio.FormatAuto {
			format = sampleio.FormatJSON
		}
	}
	logger.Debug().Str("format", string(format)).Msg("analysis requested")
	return o, format, o.Validate()
}

func (e *environment) postAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)

	o, format, err := e.optionsFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), statusCode(err))
		return
	}

	s := sentry.StartSpan(ctx, "processing")
	s.Description = "Read HTTP body"
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, e.config.MaxBodyBytes))
	s.Finish()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		hub.CaptureException(err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s = sentry.StartSpan(ctx, "processing")
	s.Description = "Decode samples"
	samples, err := sampleio.Decode(bytes.NewReader(body), "", format)
	s.Finish()
	if err != nil {
		http.Error(w, err.Error(), statusCode(err))
		return
	}

	result, err := analysis.Run(ctx, samples, o)
	if err != nil {
		if code := statusCode(err); code != http.StatusBadRequest {
			hub.CaptureException(err)
			w.WriteHeader(code)
		} else {
			http.Error(w, err.Error(), code)
		}
		return
	}
	doc := report.NewDocument(result)

	hub.Scope().SetTag("analysis_id", doc.ID)
	hub.Scope().SetContext("Analysis", map[string]interface{}{
		"samples":           doc.SampleCount,
		"threads":           doc.ThreadCount,
		"windows":           len(doc.Windows),
		"contention_groups": len(doc.ContentionGroups),
	})

	s = sentry.StartSpan(ctx, "storage.write")
	s.Description = "Write report"
	err = storageutil.CompressedWrite(ctx, e.storage, report.StoragePath(doc.ID), doc)
	s.Finish()
	if err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			hub.CaptureException(err)
		}
		w.WriteHeader(statusCode(err))
		return
	}
	if e.documents != nil {
		e.documents.Set(doc.ID, doc, documentTTL)
	}

	if e.contentionWriter != nil && len(doc.ContentionGroups) != 0 {
		s = sentry.StartSpan(ctx, "kafka.write")
		s.Description = "Publish contention groups"
		messages, err := report.GenerateKafkaMessageBatch(doc)
		if err == nil {
			err = e.contentionWriter.WriteMessages(ctx, messages...)
		}
		s.Finish()
		if err != nil {
			hub.CaptureException(err)
			log.Err(err).Str("analysis_id", doc.ID).Msg("can't publish contention groups")
		}
	}

	s = sentry.StartSpan(ctx, "json.marshal")
	s.Description = "Marshal report"
	b, err := json.Marshal(doc)
	s.Finish()
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Location", "/analyses/"+doc.ID)
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(b)
}

func (e *environment) readDocument(ctx context.Context, analysisID string) (report.Document, error) {
	if e.documents != nil {
		if item := e.documents.Get(analysisID); item != nil && !item.Expired() {
			return item.Value(), nil
		}
	}
	s := sentry.StartSpan(ctx, "storage.read")
	s.Description = "Read report"
	defer s.Finish()
	var doc report.Document
	err := storageutil.UnmarshalCompressed(ctx, e.storage, report.StoragePath(analysisID), &doc)
	if err == nil && e.documents != nil {
		e.documents.Set(analysisID, doc, documentTTL)
	}
	return doc, err
}

// readContentionGroup reads the report of an analysis and picks one of its
// contention groups. It writes the error response itself and reports
// whether the handler should go on.
func (e *environment) readContentionGroup(w http.ResponseWriter, r *http.Request) (string, report.ContentionGroup, bool) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)
	ps := httprouter.ParamsFromContext(ctx)
	analysisID := ps.ByName("analysis_id")
	groupID, err := strconv.Atoi(ps.ByName("group_id"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return "", report.ContentionGroup{}, false
	}

	hub.Scope().SetTag("analysis_id", analysisID)

	doc, err := e.readDocument(ctx, analysisID)
	if err != nil {
		code := statusCode(err)
		if code != http.StatusNotFound {
			hub.CaptureException(err)
		}
		w.WriteHeader(code)
		return "", report.ContentionGroup{}, false
	}
	if groupID < 1 || groupID > len(doc.ContentionGroups) {
		w.WriteHeader(http.StatusNotFound)
		return "", report.ContentionGroup{}, false
	}
	return doc.ID, doc.ContentionGroups[groupID-1], true
}

func (e *environment) getAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)
	ps := httprouter.ParamsFromContext(ctx)
	analysisID := ps.ByName("analysis_id")

	hub.Scope().SetTag("analysis_id", analysisID)

	doc, err := e.readDocument(ctx, analysisID)
	if err != nil {
		code := statusCode(err)
		if code != http.StatusNotFound {
			hub.CaptureException(err)
		}
		w.WriteHeader(code)
		return
	}

	b, err := json.Marshal(doc)
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

func (e *environment) getSpeedscope(w http.ResponseWriter, r *http.Request) {
	hub := sentry.GetHubFromContext(r.Context())
	analysisID, g, ok := e.readContentionGroup(w, r)
	if !ok {
		return
	}

	o, err := speedscope.FromContentionGroup(analysisID, g)
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	b, err := json.Marshal(o)
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+analysisID+"-"+strconv.Itoa(g.ID)+".speedscope.json\"")
	_, _ = w.Write(b)
}

func (e *environment) getPprof(w http.ResponseWriter, r *http.Request) {
	hub := sentry.GetHubFromContext(r.Context())
	analysisID, g, ok := e.readContentionGroup(w, r)
	if !ok {
		return
	}

	p, err := pprofexport.FromContentionGroup(analysisID, g)
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	var b bytes.Buffer
	if err := p.Write(&b); err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+analysisID+"-"+strconv.Itoa(g.ID)+".pb.gz\"")
	_, _ = w.Write(b.Bytes())
}
