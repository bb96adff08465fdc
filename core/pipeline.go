package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// TranscriptionStarter is the downstream post-processing entrypoint. The
// real implementation lives outside this module.
type TranscriptionStarter func(ctx context.Context, interviewID string) error

// AsyncPipelineTrigger dispatches transcription work off the webhook
// response path. Failures travel on a dedicated error channel drained by a
// logging goroutine; they are never surfaced to the provider.
type AsyncPipelineTrigger struct {
	Start   TranscriptionStarter
	Instr   *Instrumentation
	Timeout time.Duration

	errs chan error
	wg   sync.WaitGroup
	once sync.Once
	done chan struct{}
}

func NewAsyncPipelineTrigger(start TranscriptionStarter, instr *Instrumentation) *AsyncPipelineTrigger {
	trigger := &AsyncPipelineTrigger{
		Start:   start,
		Instr:   instr,
		Timeout: 30 * time.Second,
		errs:    make(chan error, 64),
		done:    make(chan struct{}),
	}
	go trigger.drain()
	return trigger
}

func (t *AsyncPipelineTrigger) TriggerTranscription(ctx context.Context, interviewID string) error {
	if t == nil || t.Start == nil {
		return fmt.Errorf("core: pipeline trigger is not configured")
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		timeout := t.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		// Detach from the request context: the webhook response must not
		// wait on, or cancel, the pipeline call.
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if err := t.Start(runCtx, interviewID); err != nil {
			select {
			case t.errs <- fmt.Errorf("core: transcription trigger for interview %q: %w", interviewID, err):
			default:
			}
		}
	}()
	return nil
}

func (t *AsyncPipelineTrigger) drain() {
	for {
		select {
		case err := <-t.errs:
			if err != nil && t.Instr != nil {
				t.Instr.LogError(context.Background(), "pipeline trigger failed", map[string]any{
					"error": err.Error(),
				})
				t.Instr.IncCounter(context.Background(), "intake.pipeline_trigger_failures.total", 1, nil)
			}
		case <-t.done:
			return
		}
	}
}

// Close waits for in-flight triggers and stops the drain goroutine.
func (t *AsyncPipelineTrigger) Close() {
	if t == nil {
		return
	}
	t.wg.Wait()
	t.once.Do(func() {
		close(t.done)
	})
}

// NopPipelineTrigger satisfies PipelineTrigger when no downstream pipeline
// is wired, e.g. in tests.
type NopPipelineTrigger struct{}

func (NopPipelineTrigger) TriggerTranscription(context.Context, string) error { return nil }

var (
	_ PipelineTrigger = (*AsyncPipelineTrigger)(nil)
	_ PipelineTrigger = NopPipelineTrigger{}
)
