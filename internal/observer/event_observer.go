package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SessionEvent is one entry on the observability channel
type SessionEvent struct {
	EventType    EventType              `json:"event_type"`
	Timestamp    time.Time              `json:"timestamp"`
	Epoch        uint64                 `json:"epoch"`
	SampleIndex  int                    `json:"sample_index"`
	AssetURL     string                 `json:"asset_url,omitempty"`
	Duration     time.Duration          `json:"duration"`
	Success      bool                   `json:"success"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// NoSample marks events that are not about a single sample
const NoSample = -1

// EventType represents the type of session event
type EventType string

const (
	UploadStarted     EventType = "upload_started"
	UploadCompleted   EventType = "upload_completed"
	UploadFailed      EventType = "upload_failed"
	AnalysisStarted   EventType = "analysis_started"
	SampleAnalyzed    EventType = "sample_analyzed"
	AnalysisCompleted EventType = "analysis_completed"
	AnalysisFailed    EventType = "analysis_failed"
	// AnalysisStale when a run or result outlived its session
	AnalysisStale     EventType = "analysis_stale"
	AssetDecoded      EventType = "asset_decoded"
	AssetDecodeFailed EventType = "asset_decode_failed"
	// DimensionMismatch when a sample's native size differs from the reference
	DimensionMismatch EventType = "dimension_mismatch"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event SessionEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event SessionEvent)
}

// LoggingObserver logs session events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent logs the event at a level matching its severity
func (o *LoggingObserver) OnEvent(ctx context.Context, event SessionEvent) {
	fields := logrus.Fields{
		"event_type": event.EventType,
		"epoch":      event.Epoch,
		"success":    event.Success,
	}
	if event.SampleIndex != NoSample {
		fields["sample_index"] = event.SampleIndex
	}
	if event.AssetURL != "" {
		fields["asset_url"] = event.AssetURL
	}
	if event.Duration > 0 {
		fields["duration_ms"] = event.Duration.Milliseconds()
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.logger.WithFields(fields)
	switch event.EventType {
	case UploadStarted:
		entry.Info("Upload started")
	case UploadCompleted:
		entry.Info("Upload completed")
	case UploadFailed:
		entry.Error("Upload failed")
	case AnalysisStarted:
		entry.Info("Line analysis started")
	case SampleAnalyzed:
		entry.Debug("Sample analyzed")
	case AnalysisCompleted:
		entry.Info("Line analysis completed")
	case AnalysisFailed:
		entry.Error("Line analysis failed")
	case AnalysisStale:
		entry.Warn("Discarded work from a replaced session")
	case AssetDecoded:
		entry.Debug("Asset decoded")
	case AssetDecodeFailed:
		entry.Error("Asset decode failed")
	case DimensionMismatch:
		entry.Warn("Sample size differs from reference; mirrored marks may be misplaced")
	default:
		entry.Info("Session event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver counts session events
type MetricsObserver struct {
	mu                sync.RWMutex
	uploads           int64
	failedUploads     int64
	analysisRuns      int64
	completedRuns     int64
	failedRuns        int64
	staleDiscards     int64
	samplesAnalyzed   int64
	decodeFailures    int64
	totalAnalysisTime time.Duration
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{}
}

// OnEvent updates counters
func (o *MetricsObserver) OnEvent(ctx context.Context, event SessionEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case UploadCompleted:
		o.uploads++
	case UploadFailed:
		o.failedUploads++
	case AnalysisStarted:
		o.analysisRuns++
	case SampleAnalyzed:
		o.samplesAnalyzed++
	case AnalysisCompleted:
		o.completedRuns++
		o.totalAnalysisTime += event.Duration
	case AnalysisFailed:
		o.failedRuns++
	case AnalysisStale:
		o.staleDiscards++
	case AssetDecodeFailed:
		o.decodeFailures++
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	avg := time.Duration(0)
	if o.completedRuns > 0 {
		avg = o.totalAnalysisTime / time.Duration(o.completedRuns)
	}

	return map[string]interface{}{
		"uploads":              o.uploads,
		"failed_uploads":       o.failedUploads,
		"analysis_runs":        o.analysisRuns,
		"completed_runs":       o.completedRuns,
		"failed_runs":          o.failedRuns,
		"stale_discards":       o.staleDiscards,
		"samples_analyzed":     o.samplesAnalyzed,
		"decode_failures":      o.decodeFailures,
		"avg_analysis_time_ms": avg.Milliseconds(),
	}
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers delivers the event to each observer in subscription order
// on the caller's goroutine, so events from one run are observed in the order
// they were published. A panicking observer does not stop delivery.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event SessionEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, observer := range observers {
		deliver(ctx, observer, event)
	}
}

func deliver(ctx context.Context, obs Observer, event SessionEvent) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("observer", obs.GetObserverName()).
				WithField("panic", r).
				Error("Observer panicked while handling event")
		}
	}()
	obs.OnEvent(ctx, event)
}

// Discard is a Subject that drops every event
type Discard struct{}

func (Discard) Subscribe(Observer)                            {}
func (Discard) Unsubscribe(Observer)                          {}
func (Discard) NotifyObservers(context.Context, SessionEvent) {}
