// Package telemetry records training metrics.
//
// A Sink receives scalar series from a trainer.
// Backends which can also store distributions implement
// HistogramSink.
package telemetry

// A Sink records named scalar series.
//
// Record buffers a value; Flush makes buffered values
// durable (or visible).
type Sink interface {
	// Record adds a value to a series.
	//
	// The group collects related series, the xLabel names
	// the step axis, and the split distinguishes variants
	// of the same series (for example "test" and "batch").
	Record(name string, value float64, step int, group, xLabel, split string)

	Flush() error
}

// A HistogramSink is a Sink which can also record the
// distribution of a set of values.
type HistogramSink interface {
	Sink

	Histogram(tag string, values []float64, step int)
}

// MultiSink forwards records to every one of its Sinks.
//
// It implements HistogramSink, forwarding histograms to
// the Sinks that support them.
type MultiSink []Sink

// Record records the value in every Sink.
func (m MultiSink) Record(name string, value float64, step int, group, xLabel, split string) {
	for _, s := range m {
		s.Record(name, value, step, group, xLabel, split)
	}
}

// Histogram records the values in every HistogramSink.
func (m MultiSink) Histogram(tag string, values []float64, step int) {
	for _, s := range m {
		if h, ok := s.(HistogramSink); ok {
			h.Histogram(tag, values, step)
		}
	}
}

// Flush flushes every Sink, returning the first error.
func (m MultiSink) Flush() error {
	var firstErr error
	for _, s := range m {
		if err := s.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
