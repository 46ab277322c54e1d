package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	defaultWriteTimeout = 10 * time.Second
	tracerName          = "github.com/MarcoPoloResearchLab/dashboard/internal/dashboard"
)

// WriterConfig configures detached store writes.
type WriterConfig struct {
	Timeout time.Duration
	Tracer  trace.Tracer
	Logger  *zap.Logger
}

// Writer runs store writes on detached goroutines. A write is never tied to the caller's
// lifetime; its failure is logged and otherwise dropped. Writes sharing an ordering key start
// in the order they were issued.
type Writer struct {
	timeout time.Duration
	tracer  trace.Tracer
	logger  *zap.Logger

	mu      sync.Mutex
	tails   map[string]chan struct{}
	pending int
	// idle is closed while no write is pending and replaced when the first one starts.
	idle chan struct{}
}

// NewWriter constructs a Writer.
func NewWriter(cfg WriterConfig) *Writer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	idle := make(chan struct{})
	close(idle)
	return &Writer{
		timeout: timeout,
		tracer:  tracer,
		logger:  logger,
		tails:   make(map[string]chan struct{}),
		idle:    idle,
	}
}

// Go starts write in the background and returns immediately. A non-empty orderKey queues the
// write behind earlier writes with the same key.
func (w *Writer) Go(parent context.Context, operation, orderKey string, write func(context.Context) error, fields ...zap.Field) {
	if parent == nil {
		parent = context.Background()
	}
	previous, finished := w.enqueue(orderKey)
	go func() {
		defer w.release(orderKey, finished)
		if previous != nil {
			<-previous
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), w.timeout)
		defer cancel()
		ctx, span := w.tracer.Start(ctx, operation, trace.WithAttributes(fieldAttributes(fields)...))
		defer span.End()

		err := runGuarded(func() error { return write(ctx) })
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "write_failed")
			logError(w.logger, operation, "write_failed", err, fields...)
		}
	}()
}

// enqueue counts the write as pending and, for a non-empty orderKey, links it behind the
// previous write with that key.
func (w *Writer) enqueue(orderKey string) (previous, finished chan struct{}) {
	finished = make(chan struct{})
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending == 0 {
		w.idle = make(chan struct{})
	}
	w.pending++
	if orderKey != "" {
		previous = w.tails[orderKey]
		w.tails[orderKey] = finished
	}
	return previous, finished
}

func (w *Writer) release(orderKey string, finished chan struct{}) {
	close(finished)
	w.mu.Lock()
	defer w.mu.Unlock()
	if orderKey != "" && w.tails[orderKey] == finished {
		delete(w.tails, orderKey)
	}
	w.pending--
	if w.pending == 0 {
		close(w.idle)
	}
}

// Wait blocks until no write is pending or ctx ends. It is safe to call while writes are
// still being started.
func (w *Writer) Wait(ctx context.Context) error {
	w.mu.Lock()
	drained := w.idle
	w.mu.Unlock()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func runGuarded(call func() error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic: %v", recovered)
		}
	}()
	return call()
}

func fieldAttributes(fields []zap.Field) []attribute.KeyValue {
	attributes := make([]attribute.KeyValue, 0, len(fields))
	for _, field := range fields {
		if field.Type == zapcore.StringType {
			attributes = append(attributes, attribute.String(field.Key, field.String))
		}
	}
	return attributes
}

func logError(logger *zap.Logger, operation, reason string, err error, fields ...zap.Field) {
	if logger == nil {
		return
	}
	allFields := make([]zap.Field, 0, len(fields)+3)
	allFields = append(allFields,
		zap.String("operation", operation),
		zap.String("reason", reason),
	)
	allFields = append(allFields, fields...)
	if err != nil {
		allFields = append(allFields, zap.Error(err))
	}
	logger.Error("dashboard operation failed", allFields...)
}
