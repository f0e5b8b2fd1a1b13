package handlers

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/wonny/quantlab/internal/history"
	"github.com/wonny/quantlab/internal/optimizer"
	"github.com/wonny/quantlab/pkg/logger"
	"github.com/wonny/quantlab/pkg/redis"
)

// Sweep job status
const (
	JobRunning   = "running"
	JobCompleted = "completed"
	JobCancelled = "cancelled"
	JobFailed    = "failed"
)

// progressInterval throttles websocket progress frames per sweep
const progressInterval = 200 * time.Millisecond

// finishedJobTTL: 완료된 탐색은 이 시간 이후 메모리에서 제거 (결과는 /api/runs/{id})
const finishedJobTTL = 30 * time.Minute

// Progress is one websocket frame / status snapshot
type Progress struct {
	ID        string           `json:"id"`
	Status    string           `json:"status"`
	Completed int              `json:"completed"`
	Total     int              `json:"total"`
	Error     string           `json:"error,omitempty"`
	Sweep     *optimizer.Sweep `json:"sweep,omitempty"` // 완료 시에만
}

// sweepJob tracks one background sweep
type sweepJob struct {
	mu        sync.Mutex
	progress  Progress
	cancel    context.CancelFunc
	limiter   *rate.Limiter
	subs      map[chan Progress]struct{}
	done       bool
	startedAt  time.Time
	finishedAt time.Time
}

func (j *sweepJob) snapshot() Progress {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progress
}

func (j *sweepJob) update(completed, total int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.progress.Completed = completed
	j.progress.Total = total
	if completed == total || j.limiter.Allow() {
		j.broadcast()
	}
}

// broadcast sends the latest snapshot to every subscriber; a slow
// subscriber only ever holds the newest frame. Caller holds j.mu.
func (j *sweepJob) broadcast() {
	for ch := range j.subs {
		select {
		case <-ch:
		default:
		}
		ch <- j.progress
	}
}

func (j *sweepJob) finish(sweep *optimizer.Sweep, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	switch {
	case err != nil:
		j.progress.Status = JobFailed
		j.progress.Error = err.Error()
	case sweep.Cancelled:
		j.progress.Status = JobCancelled
	default:
		j.progress.Status = JobCompleted
	}
	j.progress.Sweep = sweep

	j.broadcast()
	for ch := range j.subs {
		close(ch)
	}
	j.subs = nil
	j.done = true
	j.finishedAt = time.Now()
}

// expired reports whether a finished job has outlived ttl
func (j *sweepJob) expired(now time.Time, ttl time.Duration) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.done && now.Sub(j.finishedAt) > ttl
}

// subscribe returns a channel of snapshots. For a finished job the channel
// holds the final snapshot and is already closed.
func (j *sweepJob) subscribe() chan Progress {
	ch := make(chan Progress, 1)
	j.mu.Lock()
	defer j.mu.Unlock()

	ch <- j.progress
	if j.done {
		close(ch)
		return ch
	}
	j.subs[ch] = struct{}{}
	return ch
}

func (j *sweepJob) unsubscribe(ch chan Progress) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.subs[ch]; ok {
		delete(j.subs, ch)
		close(ch)
	}
}

// OptimizeHandler starts parameter sweeps in the background and reports progress
type OptimizeHandler struct {
	optimizer *optimizer.Optimizer
	store     history.Store
	limiter   *redis.RateLimiter
	logger    *logger.Logger

	baseCtx  context.Context
	upgrader websocket.Upgrader

	mu   sync.RWMutex
	jobs map[string]*sweepJob
}

// NewOptimizeHandler creates a new optimize handler. Sweeps run under
// baseCtx so server shutdown cancels them.
func NewOptimizeHandler(ctx context.Context, opt *optimizer.Optimizer, store history.Store, limiter *redis.RateLimiter, log *logger.Logger) *OptimizeHandler {
	return &OptimizeHandler{
		optimizer: opt,
		store:     store,
		limiter:   limiter,
		logger:    log,
		baseCtx:   ctx,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		jobs: make(map[string]*sweepJob),
	}
}

// Submit validates the sweep and starts it
// POST /api/optimize
func (h *OptimizeHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.limiter != nil {
		allowed, remaining, err := h.limiter.Allow(ctx, redis.OptimizeSubmitLimit(clientIP(r)))
		if err != nil {
			h.logger.WithError(err).Warn("Rate limiter unavailable, allowing request")
		} else {
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !allowed {
				respondError(w, http.StatusTooManyRequests, "Too many optimization requests")
				return
			}
		}
	}

	body, err := decodeRunRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := body.resolve()
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	grid, err := optimizer.NewGridFor(res.req.Strategy, res.config.Optimize.Grid)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := optimizer.Request{
		ID:        uuid.New().String(),
		Base:      res.req,
		Grid:      res.config.Optimize.Grid,
		Objective: optimizer.Objective(res.config.Optimize.Objective),
		TopN:      res.config.Optimize.TopN,
	}

	runCtx, cancel := context.WithCancel(h.baseCtx)
	job := &sweepJob{
		progress:  Progress{ID: req.ID, Status: JobRunning, Total: grid.Size()},
		cancel:    cancel,
		limiter:   rate.NewLimiter(rate.Every(progressInterval), 1),
		subs:      make(map[chan Progress]struct{}),
		startedAt: time.Now(),
	}

	h.evictFinished(time.Now())

	h.mu.Lock()
	h.jobs[req.ID] = job
	h.mu.Unlock()

	h.logger.WithFields(map[string]interface{}{
		"id":           req.ID,
		"strategy":     req.Base.Strategy,
		"combinations": grid.Size(),
	}).Info("Optimization submitted")

	go h.run(runCtx, cancel, job, req, res.configHash)

	respondJSON(w, http.StatusAccepted, job.snapshot())
}

func (h *OptimizeHandler) run(ctx context.Context, cancel context.CancelFunc, job *sweepJob, req optimizer.Request, configHash string) {
	defer cancel()

	sweep, err := h.optimizer.Run(ctx, req, job.update)
	if err != nil {
		h.logger.WithError(err).WithField("id", req.ID).Error("Optimization failed")
	}
	if sweep != nil && h.store != nil {
		rec, recErr := history.FromSweep(sweep, req.Base.Params, configHash)
		if recErr == nil {
			recErr = h.store.Save(context.WithoutCancel(ctx), rec)
		}
		if recErr != nil {
			h.logger.WithError(recErr).WithField("id", req.ID).Warn("Failed to save sweep history")
		}
	}
	job.finish(sweep, err)
}

// evictFinished drops finished sweeps older than finishedJobTTL
func (h *OptimizeHandler) evictFinished(now time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	evicted := 0
	for id, job := range h.jobs {
		if job.expired(now, finishedJobTTL) {
			delete(h.jobs, id)
			evicted++
		}
	}
	if evicted > 0 {
		h.logger.WithField("evicted", evicted).Debug("Evicted finished optimizations")
	}
	return evicted
}

func (h *OptimizeHandler) job(r *http.Request) (*sweepJob, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	job, ok := h.jobs[mux.Vars(r)["id"]]
	return job, ok
}

// Status returns the current progress (and the result once finished)
// GET /api/optimize/{id}
func (h *OptimizeHandler) Status(w http.ResponseWriter, r *http.Request) {
	job, ok := h.job(r)
	if !ok {
		respondError(w, http.StatusNotFound, "optimization not found")
		return
	}
	respondJSON(w, http.StatusOK, job.snapshot())
}

// Cancel stops a running sweep; finished combinations are kept
// DELETE /api/optimize/{id}
func (h *OptimizeHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	job, ok := h.job(r)
	if !ok {
		respondError(w, http.StatusNotFound, "optimization not found")
		return
	}
	job.cancel()
	respondJSON(w, http.StatusAccepted, job.snapshot())
}

// Stream pushes throttled progress frames over a websocket until the sweep ends
// GET /api/optimize/{id}/stream
func (h *OptimizeHandler) Stream(w http.ResponseWriter, r *http.Request) {
	job, ok := h.job(r)
	if !ok {
		respondError(w, http.StatusNotFound, "optimization not found")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	ch := job.subscribe()
	defer job.unsubscribe(ch)

	for p := range ch {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(p); err != nil {
			h.logger.WithError(err).Debug("Websocket client gone")
			return
		}
	}

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "sweep finished"),
		time.Now().Add(time.Second))
}

// clientIP identifies the caller for rate limiting
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
