package telemetry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// emitTimeout is the max time allowed for a single async emit. Used by EmitAsync and by ShutdownDrainDuration.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after the servers stop before shutting down OTel providers,
// so in-flight async emits have time to complete. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// EmitAsync runs Emit in a goroutine with a short timeout so the caller is not blocked.
// Errors are logged on log, which may be nil.
//
// emitter and event may be nil; EmitAsync returns immediately without starting a goroutine.
// The goroutine does not inherit request cancellation.
func EmitAsync(ctx context.Context, emitter EventEmitter, event *Event, log *zap.Logger) {
	if emitter == nil || event == nil {
		return
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	go func() {
		emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil && log != nil {
			log.Warn("telemetry: async emit failed", zap.String("event_type", event.Type), zap.Error(err))
		}
	}()
}
