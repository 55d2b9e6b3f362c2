// Package analysis drives the per-sample /analyze_line loop for one completed
// line selection.
package analysis

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/anime-shed/line-profile-studio/internal/errors"
	"github.com/anime-shed/line-profile-studio/internal/observer"
	"github.com/anime-shed/line-profile-studio/pkg/geometry"
	"github.com/anime-shed/line-profile-studio/pkg/models"
)

// LineAnalyzer is the part of the backend client the orchestrator needs
type LineAnalyzer interface {
	AnalyzeLine(ctx context.Context, req models.AnalyzeLineRequest) (*models.AnalyzeLineResponse, error)
}

// Sink receives results. Every method takes the run's epoch and returns false,
// without writing anything, when that epoch is no longer current.
type Sink interface {
	Current(epoch uint64) bool
	Apply(epoch uint64, sampleIndex int, result *models.AnalyzeLineResponse) bool
	Finish(epoch uint64) bool
}

// Run is one analysis pass over a session's samples
type Run struct {
	Epoch   uint64
	Line    geometry.Line
	Samples []int
}

// Orchestrator issues analysis requests strictly one after another
type Orchestrator struct {
	client  LineAnalyzer
	timeout time.Duration
	events  observer.Subject
}

// NewOrchestrator creates an orchestrator. timeout bounds each request;
// zero means no per-request bound beyond ctx.
func NewOrchestrator(client LineAnalyzer, timeout time.Duration, events observer.Subject) *Orchestrator {
	if events == nil {
		events = observer.Discard{}
	}
	return &Orchestrator{
		client:  client,
		timeout: timeout,
		events:  events,
	}
}

// Execute runs the loop. The next request is only sent after the previous
// response has been applied. The first failure aborts the pass and export
// stays hidden. A stale epoch stops the pass with a stale_session error.
func (o *Orchestrator) Execute(ctx context.Context, run Run, sink Sink) error {
	start := time.Now()
	o.publish(ctx, observer.SessionEvent{
		EventType:   observer.AnalysisStarted,
		Epoch:       run.Epoch,
		SampleIndex: observer.NoSample,
		Success:     true,
		Metadata: map[string]interface{}{
			"point_a": run.Line.A.String(),
			"point_b": run.Line.B.String(),
			"samples": len(run.Samples),
		},
	})

	for _, index := range run.Samples {
		if !sink.Current(run.Epoch) {
			return o.stale(ctx, run.Epoch, index)
		}

		reqStart := time.Now()
		result, err := o.analyze(ctx, run, index)
		if err != nil {
			o.publish(ctx, observer.SessionEvent{
				EventType:    observer.AnalysisFailed,
				Epoch:        run.Epoch,
				SampleIndex:  index,
				Duration:     time.Since(reqStart),
				ErrorMessage: err.Error(),
			})
			return err
		}

		if !sink.Apply(run.Epoch, index, result) {
			return o.stale(ctx, run.Epoch, index)
		}

		o.publish(ctx, observer.SessionEvent{
			EventType:   observer.SampleAnalyzed,
			Epoch:       run.Epoch,
			SampleIndex: index,
			Duration:    time.Since(reqStart),
			Success:     true,
		})
	}

	if !sink.Finish(run.Epoch) {
		return o.stale(ctx, run.Epoch, observer.NoSample)
	}

	o.publish(ctx, observer.SessionEvent{
		EventType:   observer.AnalysisCompleted,
		Epoch:       run.Epoch,
		SampleIndex: observer.NoSample,
		Duration:    time.Since(start),
		Success:     true,
		Metadata:    map[string]interface{}{"samples": len(run.Samples)},
	})
	return nil
}

func (o *Orchestrator) analyze(ctx context.Context, run Run, index int) (*models.AnalyzeLineResponse, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	result, err := o.client.AnalyzeLine(ctx, models.AnalyzeLineRequest{
		PointA:      run.Line.A,
		PointB:      run.Line.B,
		SampleIndex: index,
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, apperrors.NewMalformedResponseError(fmt.Sprintf("empty analysis response for sample %d", index), nil)
	}
	return result, nil
}

func (o *Orchestrator) stale(ctx context.Context, epoch uint64, index int) error {
	o.publish(ctx, observer.SessionEvent{
		EventType:   observer.AnalysisStale,
		Epoch:       epoch,
		SampleIndex: index,
	})
	return apperrors.NewStaleSessionError(fmt.Sprintf("session %d was replaced during analysis", epoch), nil)
}

func (o *Orchestrator) publish(ctx context.Context, event observer.SessionEvent) {
	o.events.NotifyObservers(ctx, event)
}
