package internal

import (
	"expvar"

	"hooktrigger/pkg/trigger"
)

var (
	requestsTotal     = expvar.NewMap("hooktrigger_requests_total")
	parseErrors       = expvar.NewMap("hooktrigger_parse_errors_total")
	unsupportedEvents = expvar.NewMap("hooktrigger_unsupported_events_total")
	preMatchRejected  = expvar.NewMap("hooktrigger_pre_match_rejections_total")
	filterRejected    = expvar.NewMap("hooktrigger_filter_rejections_total")
	matchesTotal      = expvar.NewMap("hooktrigger_matches_total")
	lookupErrors      = expvar.NewMap("hooktrigger_lookup_errors_total")
	publishErrors     = expvar.NewMap("hooktrigger_publish_errors_total")
)

func IncRequest(provider string) {
	requestsTotal.Add(provider, 1)
}

func IncParseError(provider string) {
	parseErrors.Add(provider, 1)
}

func IncUnsupported(provider string) {
	unsupportedEvents.Add(provider, 1)
}

func IncPreMatchRejected(provider trigger.Provider, eventType trigger.EventType) {
	preMatchRejected.Add(string(provider)+"/"+string(eventType), 1)
}

// IncFilterRejected counts rejections by the name of the failing filter.
func IncFilterRejected(filter string) {
	filterRejected.Add(filter, 1)
}

func IncMatch(provider trigger.Provider, eventType trigger.EventType) {
	matchesTotal.Add(string(provider)+"/"+string(eventType), 1)
}

func IncLookupError(provider string) {
	lookupErrors.Add(provider, 1)
}

func IncPublishError(driver string) {
	publishErrors.Add(driver, 1)
}
