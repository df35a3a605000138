package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/custodia-labs/quill/internal/core/domain"
	"github.com/custodia-labs/quill/internal/core/ports/driven"
	"github.com/custodia-labs/quill/internal/metrics"
)

// Ensure Client implements the interface.
var _ driven.Embedder = (*Client)(nil)

// closeGrace is how long Close waits for the worker to exit after stdin closes.
const closeGrace = 5 * time.Second

// Config holds configuration for the worker client.
type Config struct {
	// Spawner starts the worker (required).
	Spawner Spawner

	// DefaultModel is used when Encode is called without a model.
	DefaultModel string

	// Timeout bounds each request. Clamped to [10s, 600s]; zero means 120s.
	Timeout time.Duration

	// Logger receives lifecycle events. Nil means no logging.
	Logger *zap.Logger
}

// Client is the Embedder backed by an isolated worker.
//
// Requests are multiplexed over one worker. Each request has its own timer;
// a timed-out request is rejected and forgotten while the worker keeps
// running. When the worker exits every pending request is rejected, and the
// next call spawns a fresh worker.
type Client struct {
	spawner Spawner
	model   string
	timeout time.Duration
	log     *zap.Logger

	mu       sync.Mutex
	proc     *handle
	nextID   uint64
	pending  map[uint64]*call
	restarts int
	closed   bool
}

// handle is one live worker.
type handle struct {
	proc    Process
	writeMu sync.Mutex
	enc     *json.Encoder
	exited  chan struct{}
}

type call struct {
	done  chan outcome
	timer *time.Timer
}

type outcome struct {
	resp *Response
	err  error
}

// NewClient creates a client. The worker is not started until the first request.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Spawner == nil {
		return nil, errors.New("worker: spawner is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = domain.DefaultEmbeddingModel
	}
	if _, ok := domain.LookupEmbeddingModel(cfg.DefaultModel); !ok {
		return nil, domain.NewError(domain.CodeInvalidArgument, "new embedding client",
			fmt.Errorf("%w: unsupported model %q", domain.ErrInvalidArgument, cfg.DefaultModel))
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Client{
		spawner: cfg.Spawner,
		model:   cfg.DefaultModel,
		timeout: domain.ClampEmbedTimeout(cfg.Timeout),
		log:     cfg.Logger,
		pending: make(map[uint64]*call),
	}, nil
}

// Model returns the default model id.
func (c *Client) Model() string {
	return c.model
}

// Encode embeds texts in the worker.
func (c *Client) Encode(ctx context.Context, texts []string, model string) (*domain.Embeddings, error) {
	if model == "" {
		model = c.model
	}
	if _, ok := domain.LookupEmbeddingModel(model); !ok {
		return nil, domain.NewError(domain.CodeInvalidArgument, "encode",
			fmt.Errorf("%w: unsupported model %q", domain.ErrInvalidArgument, model))
	}
	if len(texts) == 0 {
		return &domain.Embeddings{Vectors: [][]float32{}}, nil
	}
	if len(texts) > domain.MaxEmbedBatch {
		return nil, domain.NewError(domain.CodeInvalidArgument, "encode",
			fmt.Errorf("%w: batch of %d exceeds %d", domain.ErrInvalidArgument, len(texts), domain.MaxEmbedBatch))
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, domain.NewError(domain.CodeInvalidArgument, "encode",
				fmt.Errorf("%w: text %d is empty", domain.ErrInvalidArgument, i))
		}
	}

	start := time.Now()
	resp, err := c.roundTrip(ctx, Request{Op: OpEncode, Model: model, Texts: texts})
	metrics.EmbeddingRequestDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(model, strings.ToLower(string(domain.CodeOf(err)))).Inc()
		return nil, err
	}

	out, err := decodeEncode(resp, len(texts))
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(model, "internal").Inc()
		return nil, err
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues(model, "ok").Inc()
	return out, nil
}

func decodeEncode(resp *Response, want int) (*domain.Embeddings, error) {
	if resp.Data == nil {
		return nil, domain.NewError(domain.CodeInternal, "encode", errors.New("worker returned no data"))
	}
	if len(resp.Data.Vectors) != want {
		return nil, domain.NewError(domain.CodeInternal, "encode",
			fmt.Errorf("worker returned %d vectors for %d texts", len(resp.Data.Vectors), want))
	}
	for i, v := range resp.Data.Vectors {
		if len(v) != resp.Data.Dimension {
			return nil, domain.NewError(domain.CodeInternal, "encode",
				fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), resp.Data.Dimension))
		}
	}
	return &domain.Embeddings{Dimension: resp.Data.Dimension, Vectors: resp.Data.Vectors}, nil
}

// Ping asks the worker whether the model's backend is reachable.
func (c *Client) Ping(ctx context.Context, model string) error {
	if model == "" {
		model = c.model
	}
	_, err := c.roundTrip(ctx, Request{Op: OpPing, Model: model})
	return err
}

// roundTrip sends one request and waits for its reply, timeout, worker exit or ctx.
func (c *Client) roundTrip(ctx context.Context, req Request) (*Response, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, domain.NewError(domain.CodeModelNotReady, req.Op, domain.ErrClosed)
	}
	h, err := c.ensureWorker()
	if err != nil {
		c.mu.Unlock()
		return nil, domain.NewError(domain.CodeModelNotReady, req.Op,
			fmt.Errorf("%w: %v", domain.ErrModelNotReady, err))
	}

	c.nextID++
	id := c.nextID
	req.ID = id
	cl := &call{done: make(chan outcome, 1)}
	c.pending[id] = cl
	cl.timer = time.AfterFunc(c.timeout, func() { c.expire(id) })
	metrics.EmbeddingPendingRequests.Set(float64(len(c.pending)))
	c.mu.Unlock()

	if err := h.send(req); err != nil {
		c.finish(id, outcome{err: domain.NewError(domain.CodeModelNotReady, req.Op,
			fmt.Errorf("%w: writing request: %v", domain.ErrWorkerExited, err))})
	}

	select {
	case o := <-cl.done:
		if o.err != nil {
			return nil, o.err
		}
		if !o.resp.OK {
			if o.resp.Error == nil {
				return nil, domain.NewError(domain.CodeInternal, req.Op, errors.New("worker reported failure"))
			}
			return nil, o.resp.Error.Err(req.Op)
		}
		return o.resp, nil
	case <-ctx.Done():
		c.finish(id, outcome{err: ctx.Err()})
		return nil, ctx.Err()
	}
}

// ensureWorker returns the live worker, spawning one if needed. Callers hold mu.
func (c *Client) ensureWorker() (*handle, error) {
	if c.proc != nil {
		return c.proc, nil
	}

	p, err := c.spawner.Spawn()
	if err != nil {
		return nil, err
	}
	h := &handle{
		proc:   p,
		enc:    json.NewEncoder(p.Stdin()),
		exited: make(chan struct{}),
	}
	c.proc = h
	c.log.Info("embedding worker started", zap.Int("pid", p.Pid()), zap.Int("restarts", c.restarts))

	go c.readLoop(h)
	return h, nil
}

func (h *handle) send(req Request) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	return h.enc.Encode(req)
}

// readLoop dispatches responses until the worker's stdout closes.
func (c *Client) readLoop(h *handle) {
	dec := json.NewDecoder(h.proc.Stdout())
	var readErr error
	for {
		var resp Response
		if err := dec.Decode(&resp); err != nil {
			readErr = err
			break
		}
		if !c.finish(resp.ID, outcome{resp: &resp}) {
			c.log.Debug("dropping reply for unknown request", zap.Uint64("id", resp.ID))
		}
	}

	_ = h.proc.Kill() //nolint:errcheck // the process may already be gone
	waitErr := h.proc.Wait()
	close(h.exited)
	c.handleExit(h, errors.Join(readErr, waitErr))
}

// handleExit rejects every pending request and forgets the worker.
func (c *Client) handleExit(h *handle, cause error) {
	c.mu.Lock()
	if c.proc != h {
		c.mu.Unlock()
		return
	}
	c.proc = nil
	pending := c.pending
	c.pending = make(map[uint64]*call)
	closed := c.closed
	if !closed {
		c.restarts++
	}
	metrics.EmbeddingPendingRequests.Set(0)
	c.mu.Unlock()

	if !closed {
		metrics.EmbeddingWorkerRestarts.Inc()
		c.log.Warn("embedding worker exited",
			zap.Int("pid", h.proc.Pid()),
			zap.Int("pending", len(pending)),
			zap.Error(cause))
	}

	for _, cl := range pending {
		cl.timer.Stop()
		cl.done <- outcome{err: domain.NewError(domain.CodeModelNotReady, "encode",
			fmt.Errorf("%w: %v", domain.ErrWorkerExited, cause))}
	}
}

// expire rejects a request whose timer fired. The worker keeps running.
func (c *Client) expire(id uint64) {
	if c.finish(id, outcome{err: domain.NewError(domain.CodeTimeout, "encode",
		fmt.Errorf("%w: no reply within %s", domain.ErrTimeout, c.timeout))}) {
		c.log.Warn("embedding request timed out", zap.Uint64("id", id), zap.Duration("timeout", c.timeout))
	}
}

// finish removes id from the pending map and delivers o. It reports whether id was pending.
func (c *Client) finish(id uint64, o outcome) bool {
	c.mu.Lock()
	cl, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
		metrics.EmbeddingPendingRequests.Set(float64(len(c.pending)))
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	cl.timer.Stop()
	cl.done <- o
	return true
}

// Stats describes the worker.
type Stats struct {
	Running  bool   `json:"running"`
	PID      int    `json:"pid,omitempty"`
	RSSBytes uint64 `json:"rssBytes,omitempty"`
	Pending  int    `json:"pending"`
	Restarts int    `json:"restarts"`
	Model    string `json:"model"`
}

// Stats reports the worker's state. RSS is read for child processes only.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	st := Stats{
		Running:  c.proc != nil,
		Pending:  len(c.pending),
		Restarts: c.restarts,
		Model:    c.model,
	}
	if c.proc != nil {
		st.PID = c.proc.proc.Pid()
	}
	c.mu.Unlock()

	if st.PID > 0 {
		if p, err := process.NewProcess(int32(st.PID)); err == nil { //nolint:gosec // pids fit in int32
			if mem, err := p.MemoryInfo(); err == nil {
				st.RSSBytes = mem.RSS
			}
		}
	}
	return st
}

// Close stops the worker and rejects pending requests.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	h := c.proc
	pending := c.pending
	c.pending = make(map[uint64]*call)
	c.mu.Unlock()

	for _, cl := range pending {
		cl.timer.Stop()
		cl.done <- outcome{err: domain.NewError(domain.CodeModelNotReady, "encode", domain.ErrClosed)}
	}

	if h == nil {
		return nil
	}
	_ = h.proc.Stdin().Close() //nolint:errcheck // worker exits on EOF
	select {
	case <-h.exited:
	case <-time.After(closeGrace):
		_ = h.proc.Kill() //nolint:errcheck // best effort
		<-h.exited
	}
	return nil
}
