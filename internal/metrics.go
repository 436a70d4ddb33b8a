package internal

import "expvar"

var (
	requestsTotal     = expvar.NewMap("gittimeline_requests_total")
	parseErrors       = expvar.NewMap("gittimeline_parse_errors_total")
	signatureFailures = expvar.NewMap("gittimeline_signature_failures_total")
	ingestOutcomes    = expvar.NewMap("gittimeline_ingest_outcomes_total")
	storageErrors     = expvar.NewMap("gittimeline_storage_errors_total")
	enrichFailures    = expvar.NewMap("gittimeline_enrich_failures_total")
)

func IncRequest(endpoint string) {
	requestsTotal.Add(endpoint, 1)
}

func IncParseError(endpoint string) {
	parseErrors.Add(endpoint, 1)
}

func IncSignatureFailure(endpoint string) {
	signatureFailures.Add(endpoint, 1)
}

func IncIngestOutcome(outcome string) {
	ingestOutcomes.Add(outcome, 1)
}

func IncStorageError(op string) {
	storageErrors.Add(op, 1)
}

func IncEnrichFailure(kind string) {
	enrichFailures.Add(kind, 1)
}
