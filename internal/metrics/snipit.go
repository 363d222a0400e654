package metrics

import "time"

// EngineMetrics holds the metrics recorded by the expansion engine and the
// daemon around it.
type EngineMetrics struct {
	registry *Registry

	KeysTotal           *Counter
	FiringsTotal        *Counter
	LookupRacesTotal    *Counter
	EmissionErrorsTotal *Counter
	TimeoutsTotal       *Counter
	ReloadsTotal        *Counter

	Snippets      *Gauge
	BufferLength  *Gauge
	UptimeSeconds *Gauge
	LastFiringTs  *Gauge

	FiringDuration *Histogram
}

var startTime = time.Now()

// NewEngineMetrics creates and registers the engine metrics. A nil registry
// means Default().
func NewEngineMetrics(registry *Registry) *EngineMetrics {
	if registry == nil {
		registry = Default()
	}

	return &EngineMetrics{
		registry: registry,

		KeysTotal: registry.Counter("keys_total",
			"Key events delivered to the engine", nil),
		FiringsTotal: registry.Counter("firings_total",
			"Snippet expansions emitted", nil),
		LookupRacesTotal: registry.Counter("lookup_races_total",
			"Matches aborted because the snippet vanished from the table", nil),
		EmissionErrorsTotal: registry.Counter("emission_errors_total",
			"Expansions that failed while deleting or inserting text", nil),
		TimeoutsTotal: registry.Counter("timeouts_total",
			"Buffer clears caused by the idle timeout", nil),
		ReloadsTotal: registry.Counter("reloads_total",
			"Snippet table reloads", nil),

		Snippets: registry.Gauge("snippets",
			"Snippets in the active table", nil),
		BufferLength: registry.Gauge("buffer_length",
			"Characters currently held in the input buffer", nil),
		UptimeSeconds: registry.Gauge("uptime_seconds",
			"Seconds since the process started", nil),
		LastFiringTs: registry.Gauge("last_firing_timestamp_seconds",
			"Unix time of the most recent expansion", nil),

		FiringDuration: registry.Histogram("firing_duration_seconds",
			"Time from match to the end of text insertion", nil, DurationBuckets),
	}
}

// Registry returns the registry the metrics were registered with.
func (m *EngineMetrics) Registry() *Registry {
	return m.registry
}

// RecordKey counts one key event.
func (m *EngineMetrics) RecordKey() {
	m.KeysTotal.Inc()
}

// RecordFiring counts an emitted expansion and its duration.
func (m *EngineMetrics) RecordFiring(at time.Time, d time.Duration) {
	m.FiringsTotal.Inc()
	m.LastFiringTs.Set(at.Unix())
	m.FiringDuration.ObserveDuration(d)
}

// RecordLookupRace counts an aborted match.
func (m *EngineMetrics) RecordLookupRace() {
	m.LookupRacesTotal.Inc()
}

// RecordEmissionError counts a failed expansion.
func (m *EngineMetrics) RecordEmissionError() {
	m.EmissionErrorsTotal.Inc()
}

// RecordTimeout counts an idle-timeout clear.
func (m *EngineMetrics) RecordTimeout() {
	m.TimeoutsTotal.Inc()
}

// RecordReload counts a table reload and sets the snippet gauge.
func (m *EngineMetrics) RecordReload(snippets int) {
	m.ReloadsTotal.Inc()
	m.Snippets.Set(int64(snippets))
}

// SetBufferLength records the current buffer length.
func (m *EngineMetrics) SetBufferLength(n int) {
	m.BufferLength.Set(int64(n))
}

// UpdateUptime refreshes the uptime gauge.
func (m *EngineMetrics) UpdateUptime() {
	m.UptimeSeconds.Set(int64(time.Since(startTime).Seconds()))
}
