// Package webhook exposes the trigger engine over HTTP, one handler per
// provider.
package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hooktrigger/internal"
	"hooktrigger/pkg/trigger"
)

const requestIDHeader = "X-Request-Id"

// Options are shared by every provider handler.
type Options struct {
	Secret      string
	MaxBody     int64
	DebugEvents bool
	Logger      zerolog.Logger
}

// ingress is the provider-independent part of a webhook handler: body
// capture, request ids and the mapping of engine outcomes onto responses.
type ingress struct {
	provider    trigger.Provider
	dispatcher  *internal.Dispatcher
	logger      zerolog.Logger
	maxBody     int64
	debugEvents bool
}

func newIngress(provider trigger.Provider, dispatcher *internal.Dispatcher, opts Options) ingress {
	return ingress{
		provider:    provider,
		dispatcher:  dispatcher,
		logger:      opts.Logger,
		maxBody:     opts.MaxBody,
		debugEvents: opts.DebugEvents,
	}
}

// begin reads the body and leaves a fresh copy on r for the webhook parser.
func (in ingress) begin(w http.ResponseWriter, r *http.Request, hint string) (string, zerolog.Logger, []byte, bool) {
	internal.IncRequest(string(in.provider))
	if in.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, in.maxBody)
	}
	reqID := requestID(r)
	w.Header().Set(requestIDHeader, reqID)
	logger := internal.WithRequestID(in.logger, reqID)
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Warn().Err(err).Msg("read body failed")
		internal.IncParseError(string(in.provider))
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unreadable body"})
		return reqID, logger, nil, false
	}
	r.Body = io.NopCloser(bytes.NewReader(rawBody))

	if in.debugEvents {
		logDebugEvent(logger, string(in.provider), hint, rawBody)
	}
	return reqID, logger, rawBody, true
}

// rejectParse answers a request the webhook library could not parse.
func (in ingress) rejectParse(w http.ResponseWriter, logger zerolog.Logger, hint string, err error) {
	internal.IncParseError(string(in.provider))
	logger.Warn().Err(err).Str("event", hint).Msg("parse failed")
	writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
}

// ignore answers events nothing is configured to act on.
func (in ingress) ignore(w http.ResponseWriter, logger zerolog.Logger, hint string, reason string) {
	internal.IncUnsupported(string(in.provider))
	logger.Info().Str("event", hint).Str("reason", reason).Msg("event ignored")
	writeJSON(w, http.StatusOK, statusBody{Status: "ignored", Reason: reason})
}

// handle runs a parsed payload through the engine and the dispatcher.
func (in ingress) handle(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, reqID, hint string, payload interface{}, rawBody []byte) {
	prepared, err := in.dispatcher.Engine().PrepareAllParsed(in.provider, hint, payload, rawBody)
	switch {
	case errors.Is(err, trigger.ErrUnsupportedEvent):
		in.ignore(w, logger, hint, err.Error())
		return
	case errors.Is(err, trigger.ErrMalformedPayload):
		in.rejectParse(w, logger, hint, err)
		return
	case err != nil:
		logger.Error().Err(err).Str("event", hint).Msg("prepare failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
		return
	}

	reports, err := in.dispatcher.DispatchAll(r.Context(), reqID, prepared)
	if err != nil {
		var lookupErr *trigger.ConfigLookupError
		if errors.As(err, &lookupErr) {
			logger.Error().Err(err).Str("repository", lookupErr.Repository).Msg("pipeline lookup failed")
			writeJSON(w, http.StatusBadGateway, errorBody{Error: "pipeline lookup failed"})
			return
		}
		logger.Error().Err(err).Msg("dispatch failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
		return
	}
	for _, report := range reports {
		logger.Info().
			Str("provider", string(report.Provider)).
			Str("event", string(report.EventType)).
			Str("repository", report.Repository).
			Str("ref", report.Ref).
			Bool("candidate", report.Candidate).
			Strs("matched", report.Matched()).
			Msg("event evaluated")
	}
	writeJSON(w, http.StatusAccepted, internal.ReportBody(reports))
}

type statusBody struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// requestID reuses the caller's id when it sent one.
func requestID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(requestIDHeader)); id != "" {
		return id
	}
	return uuid.NewString()
}

func logDebugEvent(logger zerolog.Logger, provider, hint string, body []byte) {
	const limit = 4096
	if len(body) > limit {
		body = body[:limit]
	}
	logger.Debug().Str("provider", provider).Str("event", hint).RawJSON("payload_head", compactOrQuote(body)).Msg("webhook received")
}

// compactOrQuote returns valid JSON for body, quoting it when truncation or
// a bad client left it unparseable.
func compactOrQuote(body []byte) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err == nil {
		return buf.Bytes()
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}
