package draft

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SourceFunc returns the current snapshot, or false when there is nothing
// worth persisting yet. It is called at write time.
type SourceFunc func() (*Snapshot, bool)

// WriterOptions configures a Writer.
type WriterOptions struct {
	Debounce      time.Duration
	FlushInterval time.Duration
}

// Writer persists a session's draft in the background. Bursts of Notify
// calls collapse into one write after the debounce interval, and the draft
// is also written on every flush interval.
type Writer struct {
	svc    *Service
	source SourceFunc
	opts   WriterOptions
	logger *slog.Logger

	notify chan struct{}
	stop   chan struct{}
	done   chan struct{}

	mu       sync.Mutex
	stopOnce sync.Once
}

// NewWriter starts a background writer.
func NewWriter(svc *Service, source SourceFunc, opts WriterOptions, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 750 * time.Millisecond
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 30 * time.Second
	}

	w := &Writer{
		svc:    svc,
		source: source,
		opts:   opts,
		logger: logger,
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

// Notify signals that the session changed.
func (w *Writer) Notify() {
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// Flush writes the current snapshot immediately.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap, ok := w.source()
	if !ok {
		return nil
	}
	return w.svc.Save(ctx, snap)
}

// Stop ends the background loop after a final flush. It is safe to call
// more than once.
func (w *Writer) Stop(ctx context.Context) error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stop)
		<-w.done
		err = w.Flush(ctx)
	})
	return err
}

func (w *Writer) run() {
	defer close(w.done)

	ticker := time.NewTicker(w.opts.FlushInterval)
	defer ticker.Stop()

	var debounce *time.Timer
	var debounceC <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-w.stop:
			return
		case <-w.notify:
			if debounce == nil {
				debounce = time.NewTimer(w.opts.Debounce)
			} else {
				debounce.Reset(w.opts.Debounce)
			}
			debounceC = debounce.C
		case <-debounceC:
			debounceC = nil
			w.write("debounce")
		case <-ticker.C:
			w.write("interval")
		}
	}
}

func (w *Writer) write(trigger string) {
	if err := w.Flush(context.Background()); err != nil {
		w.logger.Warn("draft write failed", "trigger", trigger, "error", err)
	}
}
