// Package generation отслеживает жизненный цикл запросов на генерацию историй:
// отправку с повторами, опрос по попыткам и передачу результата в кэш.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"novel-client/internal/clock"
	"novel-client/internal/interfaces"
	"novel-client/internal/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrCoordinatorClosed возвращается Start после Shutdown.
var ErrCoordinatorClosed = errors.New("generation coordinator is shut down")

// StorySink принимает историю успешной генерации до того, как результат станет виден вызывающему.
type StorySink interface {
	ApplyGenerated(ctx context.Context, userID string, story models.Story) error
}

// Config содержит настройки опроса и повторов.
type Config struct {
	PollInterval time.Duration
	// PollTimeout ограничивает общее время в состоянии Polling.
	PollTimeout time.Duration
	// CallTimeout ограничивает каждый отдельный вызов шлюза.
	CallTimeout       time.Duration
	SubmitMaxAttempts int
	SubmitBaseDelay   time.Duration
	SubmitMaxDelay    time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 5 * time.Minute
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 15 * time.Second
	}
	if c.SubmitMaxAttempts <= 0 {
		c.SubmitMaxAttempts = 5
	}
	if c.SubmitBaseDelay <= 0 {
		c.SubmitBaseDelay = 500 * time.Millisecond
	}
	if c.SubmitMaxDelay < c.SubmitBaseDelay {
		c.SubmitMaxDelay = 20 * c.SubmitBaseDelay
	}
	return c
}

// Option настраивает Coordinator.
type Option func(*Coordinator)

// WithClock подменяет часы (тесты).
func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) { c.clock = clk }
}

// WithHistory сохраняет завершенные генерации в репозиторий.
func WithHistory(repo interfaces.GenerationRepository) Option {
	return func(c *Coordinator) { c.history = repo }
}

// WithEvents публикует событие о каждой завершенной генерации.
func WithEvents(pub interfaces.GenerationEventPublisher) Option {
	return func(c *Coordinator) { c.events = pub }
}

// Coordinator управляет задачами генерации. Одновременно допускается одна активная
// задача на пару (userID, RequestKey).
type Coordinator struct {
	gateway interfaces.StoryGateway
	sink    StorySink
	history interfaces.GenerationRepository
	events  interfaces.GenerationEventPublisher
	clock   clock.Clock
	cfg     Config
	logger  *zap.Logger

	mu     sync.Mutex
	active map[jobKey]*Job
	closed bool
	wg     sync.WaitGroup
}

// NewCoordinator создает координатор. sink может быть nil, тогда результат в кэш не попадает.
func NewCoordinator(gateway interfaces.StoryGateway, sink StorySink, cfg Config, logger *zap.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		gateway: gateway,
		sink:    sink,
		clock:   clock.Real{},
		cfg:     cfg.withDefaults(),
		logger:  logger.Named("GenerationCoordinator"),
		active:  make(map[jobKey]*Job),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start регистрирует задачу и запускает ее в фоне. Время жизни задачи не зависит от ctx.
// Пустой RequestKey заменяется случайным, повторный запуск активного ключа
// возвращает models.ErrConcurrentRequestRejected.
func (c *Coordinator) Start(ctx context.Context, req models.GenerationRequest) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.UserID) == "" {
		return nil, fmt.Errorf("%w: user id is required", models.ErrInvalidInput)
	}
	if req.RequestKey == "" {
		req.RequestKey = uuid.NewString()
	}
	key := jobKey{userID: req.UserID, requestKey: req.RequestKey}
	log := c.logger.With(zap.String("user_id", req.UserID), zap.String("request_key", req.RequestKey))

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrCoordinatorClosed
	}
	if existing, ok := c.active[key]; ok {
		log.Warn("Rejecting duplicate generation request", zap.String("state", string(existing.State())))
		return nil, fmt.Errorf("request %s: %w", req.RequestKey, models.ErrConcurrentRequestRejected)
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	job := newJob(req, c.clock.Now().UTC(), cancel)
	c.active[key] = job
	c.wg.Add(1)
	jobsStarted.Inc()
	jobsActive.Inc()

	log.Info("Generation job started")
	go c.run(jobCtx, job)
	return job, nil
}

// Lookup возвращает активную задачу.
func (c *Coordinator) Lookup(userID, requestKey string) (*Job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	job, ok := c.active[jobKey{userID: userID, requestKey: requestKey}]
	return job, ok
}

// Active возвращает активные задачи пользователя.
func (c *Coordinator) Active(userID string) []*Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	var jobs []*Job
	for key, job := range c.active {
		if key.userID == userID {
			jobs = append(jobs, job)
		}
	}
	return jobs
}

// Abandon отменяет активную задачу. Результаты вызовов, уже отправленных в сеть, отбрасываются.
func (c *Coordinator) Abandon(userID, requestKey string) error {
	job, ok := c.Lookup(userID, requestKey)
	if !ok {
		return fmt.Errorf("generation %s: %w", requestKey, models.ErrNotFound)
	}
	if job.abandon() {
		c.release(job)
		c.logger.Info("Generation job abandoned",
			zap.String("user_id", userID),
			zap.String("request_key", requestKey),
			zap.Int("attempts", job.Attempts()),
		)
	}
	return nil
}

// Shutdown бросает все активные задачи и ждет завершения их циклов или отмены ctx.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	jobs := make([]*Job, 0, len(c.active))
	for _, job := range c.active {
		jobs = append(jobs, job)
	}
	c.mu.Unlock()

	for _, job := range jobs {
		if job.abandon() {
			c.release(job)
		}
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("All generation jobs stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for generation jobs: %w", ctx.Err())
	}
}

func (c *Coordinator) release(job *Job) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.active[job.key]; ok && current == job {
		delete(c.active, job.key)
		jobsActive.Dec()
	}
}

func (c *Coordinator) run(ctx context.Context, job *Job) {
	defer c.wg.Done()
	defer close(job.done)
	log := c.logger.With(zap.String("user_id", job.key.userID), zap.String("request_key", job.key.requestKey))

	res, apply := c.execute(ctx, job, log)
	if !job.complete(res, apply) {
		log.Info("Discarding result of abandoned generation", zap.String("generation_id", job.GenerationID()))
	}
	c.release(job)

	final, _ := job.Result()
	jobsFinished.WithLabelValues(string(final.State), string(final.Cause)).Inc()
	switch final.State {
	case StateSucceeded:
		log.Info("Generation succeeded",
			zap.String("generation_id", job.GenerationID()),
			zap.Int("attempts", final.Attempts),
			zap.NamedError("cache_error", final.CacheErr),
		)
	case StateFailed:
		log.Warn("Generation failed",
			zap.String("generation_id", job.GenerationID()),
			zap.String("cause", string(final.Cause)),
			zap.Int("attempts", final.Attempts),
			zap.Error(final.Err),
		)
	}

	c.persist(job, log)
}

// execute проводит задачу через Submitted и Polling. Возвращает итог и функцию,
// которая применяется к нему под блокировкой задачи.
func (c *Coordinator) execute(ctx context.Context, job *Job, log *zap.Logger) (Result, func(Result) Result) {
	generationID, res, ok := c.submit(ctx, job, log)
	if !ok {
		return res, nil
	}
	if !job.startPolling(generationID) {
		return abandonedResult(), nil
	}
	log = log.With(zap.String("generation_id", generationID))
	log.Debug("Generation submitted, polling")

	return c.poll(ctx, job, generationID, log)
}

func (c *Coordinator) submit(ctx context.Context, job *Job, log *zap.Logger) (string, Result, bool) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.SubmitBaseDelay
	b.MaxInterval = c.cfg.SubmitMaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	for attempt := 1; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		generationID, err := c.gateway.SubmitGeneration(callCtx, job.req)
		cancel()

		if ctx.Err() != nil {
			return "", abandonedResult(), false
		}
		if err == nil {
			return generationID, Result{}, true
		}
		if !models.IsTransient(err) {
			return "", failed(models.FailureRemoteError, fmt.Errorf("submit generation: %w", err)), false
		}
		if attempt >= c.cfg.SubmitMaxAttempts {
			return "", failed(models.FailureExhaustedRetries,
				fmt.Errorf("%w after %d attempts: %w", models.ErrRetriesExhausted, attempt, err)), false
		}

		delay := b.NextBackOff()
		submitRetries.Inc()
		log.Warn("Transient error submitting generation, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		select {
		case <-c.clock.After(delay):
		case <-ctx.Done():
			return "", abandonedResult(), false
		}
	}
}

func (c *Coordinator) poll(ctx context.Context, job *Job, generationID string, log *zap.Logger) (Result, func(Result) Result) {
	deadline := c.clock.Now().Add(c.cfg.PollTimeout)

	for attempt := 1; ; attempt++ {
		select {
		case <-c.clock.After(c.cfg.PollInterval):
		case <-ctx.Done():
			return abandonedResult(), nil
		}
		if c.clock.Now().After(deadline) {
			return failed(models.FailureTimeout,
				fmt.Errorf("%w: no result after %d attempts in %s", models.ErrTimeout, attempt-1, c.cfg.PollTimeout)), nil
		}
		if !job.beginAttempt(attempt) {
			return abandonedResult(), nil
		}

		started := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		gen, err := c.gateway.PollGeneration(callCtx, generationID, attempt)
		cancel()
		pollDuration.Observe(time.Since(started).Seconds())

		if ctx.Err() != nil {
			return abandonedResult(), nil
		}

		switch {
		case errors.Is(err, models.ErrNotYetAvailable):
			pollAttempts.WithLabelValues("not_ready").Inc()
			continue
		case err != nil && models.IsTransient(err):
			pollAttempts.WithLabelValues("transient_error").Inc()
			log.Warn("Transient error polling generation", zap.Int("attempt", attempt), zap.Error(err))
			continue
		case err != nil:
			pollAttempts.WithLabelValues("error").Inc()
			return failed(models.FailureRemoteError, fmt.Errorf("poll generation: %w", err)), nil
		case gen == nil || !gen.Status.IsTerminal():
			pollAttempts.WithLabelValues("not_ready").Inc()
			continue
		}

		pollAttempts.WithLabelValues(string(gen.Status)).Inc()
		if gen.GenerationID == "" {
			gen.GenerationID = generationID
		}
		if gen.UserID == "" {
			gen.UserID = job.key.userID
		}
		if gen.Status == models.GenerationStatusFailed {
			res := failed(models.FailureRemoteError, fmt.Errorf("%w: %s", models.ErrDefinitiveRemote, remoteMessage(gen.Error)))
			res.Generation = gen
			return res, nil
		}
		return c.succeeded(ctx, job, gen, log)
	}
}

// succeeded получает итоговую историю и готовит ее запись в кэш.
func (c *Coordinator) succeeded(ctx context.Context, job *Job, gen *models.Generation, log *zap.Logger) (Result, func(Result) Result) {
	story := gen.Story
	if story == nil && gen.ResultStoryID == "" {
		res := failed(models.FailureRemoteError,
			fmt.Errorf("%w: generation succeeded without a result story", models.ErrDefinitiveRemote))
		res.Generation = gen
		return res, nil
	}

	res := Result{State: StateSucceeded, Generation: gen}
	if story == nil {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		fetched, err := c.gateway.GetStory(callCtx, gen.ResultStoryID)
		cancel()
		if ctx.Err() != nil {
			return abandonedResult(), nil
		}
		if err != nil {
			log.Warn("Failed to fetch generated story", zap.String("story_id", gen.ResultStoryID), zap.Error(err))
			res.CacheErr = fmt.Errorf("fetch generated story %s: %w", gen.ResultStoryID, err)
			return res, nil
		}
		story = fetched
	}

	generated := story.Clone()
	if gen.ResultStoryID == "" {
		gen.ResultStoryID = generated.ID
	}
	if generated.OwnerID == "" {
		generated.OwnerID = job.key.userID
	}
	res.Story = &generated

	if c.sink == nil {
		return res, nil
	}
	return res, func(r Result) Result {
		if err := c.sink.ApplyGenerated(ctx, job.key.userID, generated); err != nil {
			log.Error("Failed to store generated story in cache", zap.String("story_id", generated.ID), zap.Error(err))
			r.CacheErr = err
		}
		return r
	}
}

func (c *Coordinator) persist(job *Job, log *zap.Logger) {
	if c.history == nil && c.events == nil {
		return
	}
	rec := job.record(c.clock.Now().UTC())
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CallTimeout)
	defer cancel()

	if c.history != nil {
		if err := c.history.Save(ctx, rec); err != nil {
			log.Error("Failed to save generation history", zap.Error(err))
		}
	}
	if c.events != nil {
		if err := c.events.PublishGenerationEvent(ctx, rec); err != nil {
			log.Error("Failed to publish generation event", zap.Error(err))
		}
	}
}

func failed(cause models.FailureCause, err error) Result {
	return Result{State: StateFailed, Cause: cause, Err: err}
}

func abandonedResult() Result {
	return Result{State: StateAbandoned, Err: models.ErrAbandoned}
}

func remoteMessage(msg string) string {
	if msg == "" {
		return "generation failed remotely"
	}
	return msg
}
