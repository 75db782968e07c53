package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-scrape-shows/config"
	"github.com/aluiziolira/go-scrape-shows/models"
	"github.com/aluiziolira/go-scrape-shows/parser"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrPipelineCloseTimeout is returned when workers do not drain in time.
	ErrPipelineCloseTimeout = errors.New("pipeline: close timed out")
)

// drainTimeout bounds how long Close waits for pending batches.
var drainTimeout = 30 * time.Second

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(rows []*models.Row) error
	Close() error
	Validate() error
}

// Pipeline coordinates validation, de-duplication, and output writing.
type Pipeline struct {
	writer    OutputWriter
	rowCh     chan *models.Row
	batchSize int
	required  []string
	logger    *slog.Logger

	wg sync.WaitGroup

	seen *lru.Cache[uint64, struct{}]

	metrics metrics

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// Option customizes a pipeline.
type Option func(*Pipeline)

// WithRequired rejects rows whose named fields are absent or N/A.
func WithRequired(fields ...string) Option {
	return func(p *Pipeline) {
		p.required = append(p.required, fields...)
	}
}

// WithLogger sets the logger used for progress reports.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPipeline builds a pipeline sized from cfg. Cancelling ctx stops
// accepting rows; rows already queued are still written on Close.
func NewPipeline(ctx context.Context, writer OutputWriter, cfg *config.Config, opts ...Option) *Pipeline {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	buffer := cfg.PipelineBufferSize
	if buffer <= 0 {
		buffer = 512
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 64
	}

	p := &Pipeline{
		writer:    writer,
		rowCh:     make(chan *models.Row, buffer),
		batchSize: batch,
		logger:    slog.Default(),
		metrics:   newMetrics(),
		shutdown:  make(chan struct{}),
	}
	if cfg.Dedupe && cfg.DedupeMaxSize > 0 {
		seen, err := lru.New[uint64, struct{}](cfg.DedupeMaxSize)
		if err == nil {
			p.seen = seen
		}
	}
	for _, opt := range opts {
		opt(p)
	}

	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				p.signalShutdown()
			case <-p.shutdown:
			}
		}()
	}
	return p
}

// Start launches worker goroutines. One worker keeps rows in extraction
// order.
func (p *Pipeline) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Process enqueues rows for downstream processing.
func (p *Pipeline) Process(rows ...*models.Row) error {
	if len(rows) == 0 {
		return nil
	}

	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	for _, row := range rows {
		if row == nil {
			continue
		}
		if err := p.enqueue(row); err != nil {
			return err
		}
	}
	return nil
}

// Close waits for workers to finish and prevents more submissions. Workers
// that do not drain within drainTimeout are abandoned.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
	}
	p.mu.Unlock()

	p.closeOnce.Do(func() {
		close(p.rowCh)
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		p.signalShutdown()
		return fmt.Errorf("%w after %s", ErrPipelineCloseTimeout, drainTimeout)
	}

	p.signalShutdown()
	return p.Err()
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// Completeness returns the defaulted-field report of the written rows.
func (p *Pipeline) Completeness() models.Completeness {
	return p.metrics.completenessSnapshot()
}

// StartMetricsReporting emits periodic progress logs.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				metrics := p.GetMetrics()
				processed := metrics["processed_rows"].(int64)
				validation := metrics["validation_errors"].(map[string]int)
				p.logger.Info("pipeline progress",
					slog.Int64("processed", processed),
					slog.Any("validation_errors", validation),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	batch := make([]*models.Row, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.writer.Write(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for row := range p.rowCh {
		prepared := p.prepare(row)
		if prepared == nil {
			continue
		}
		batch = append(batch, prepared)
		if len(batch) >= p.batchSize {
			if err := flush(); err != nil {
				p.setErr(fmt.Errorf("write batch: %w", err))
				return
			}
		}
	}

	if err := flush(); err != nil {
		p.setErr(fmt.Errorf("write batch: %w", err))
	}
}

func (p *Pipeline) prepare(row *models.Row) *models.Row {
	if err := parser.ValidateRow(row, p.required); err != nil {
		p.metrics.addValidation("invalid_record")
		return nil
	}

	if p.seen != nil {
		fp := parser.Fingerprint(row)
		if ok, _ := p.seen.ContainsOrAdd(fp, struct{}{}); ok {
			p.metrics.addValidation("duplicate_row")
			return nil
		}
	}

	p.metrics.incrementProcessed(row.Missing)
	return row
}

func (p *Pipeline) enqueue(row *models.Row) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	default:
	}

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case p.rowCh <- row:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return
	}
	p.err = err
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.rowCh)
	})
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

type metrics struct {
	mu           sync.Mutex
	processed    int64
	validation   map[string]int
	completeness models.Completeness
}

func newMetrics() metrics {
	return metrics{
		validation:   make(map[string]int),
		completeness: models.NewCompleteness(),
	}
}

func (m *metrics) incrementProcessed(missing []string) {
	m.mu.Lock()
	m.processed++
	m.completeness.Add(missing)
	m.mu.Unlock()
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_rows":    m.processed,
		"validation_errors": copyValidation,
	}
}

func (m *metrics) completenessSnapshot() models.Completeness {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := models.NewCompleteness()
	out.Records = m.completeness.Records
	for k, v := range m.completeness.Missing {
		out.Missing[k] = v
	}
	return out
}
