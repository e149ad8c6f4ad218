package shopfloor

import (
	"github.com/go-logr/logr"
	"github.com/viant/afs"
	"github.com/viant/shopfloor/internal/clock"
	"github.com/viant/shopfloor/service/journal"
	"github.com/viant/shopfloor/service/notifier"
	"github.com/viant/shopfloor/tracing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option customises the Service
type Option func(s *Service)

// WithConfig sets the engine configuration; nil keeps DefaultConfig
func WithConfig(config *Config) Option {
	return func(s *Service) {
		if config != nil {
			s.config = config
		}
	}
}

// WithLogger sets the logger shared by all services
func WithLogger(logger logr.Logger) Option {
	return func(s *Service) {
		s.logger = &logger
	}
}

// WithClock sets the clock used by the registry, queue and processor
func WithClock(fn clock.Func) Option {
	return func(s *Service) {
		s.clock = fn
	}
}

// WithJournal replaces the journal selected by Config.Journal
func WithJournal(j journal.Journal) Option {
	return func(s *Service) {
		s.journal = j
	}
}

// WithNotificationHandler delivers every emitted notification to handler
// once the runtime is started
func WithNotificationHandler(handler notifier.Handler) Option {
	return func(s *Service) {
		s.notificationHandler = handler
	}
}

// WithFS sets the file system used for snapshot export
func WithFS(fs afs.Service) Option {
	return func(s *Service) {
		s.fs = fs
	}
}

// WithTracing configures OpenTelemetry tracing for the service. If outputFile is empty the
// stdout exporter is used; otherwise traces are written to the supplied file path. The function is
// safe to call multiple times – the first successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		s.tracingInit = func() error { return tracing.Init(serviceName, serviceVersion, outputFile) }
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom SpanExporter. This enables
// integrations with exporters other than the built-in stdout exporter, for example OTLP, Jaeger or
// Zipkin. The function is safe to call multiple times – the first successful initialisation wins.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		s.tracingInit = func() error { return tracing.InitWithExporter(serviceName, serviceVersion, exporter) }
	}
}
