package generation

import (
	"context"
	"sync"
	"time"

	"novel-client/internal/models"
)

// State - состояние задачи генерации на стороне клиента.
type State string

const (
	StateSubmitted State = "submitted"
	StatePolling   State = "polling"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateAbandoned State = "abandoned"
)

// IsTerminal сообщает, завершена ли задача.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateAbandoned
}

// Result - итог задачи генерации.
type Result struct {
	State State
	// Generation - последний ответ удаленного сервиса, nil если опрос не дошел до терминального статуса.
	Generation *models.Generation
	// Story заполняется для Succeeded, если историю удалось получить.
	Story *models.Story
	Cause models.FailureCause
	// Err описывает причину Failed или Abandoned.
	Err error
	// CacheErr - ошибка записи результата в локальный кэш. Задача при этом остается Succeeded.
	CacheErr error
	// Attempts - номер последней попытки опроса.
	Attempts int
}

// Info - снимок задачи для отображения.
type Info struct {
	RequestKey    string              `json:"request_key"`
	UserID        string              `json:"user_id"`
	GenerationID  string              `json:"generation_id,omitempty"`
	State         State               `json:"state"`
	Attempts      int                 `json:"attempts"`
	Cause         models.FailureCause `json:"cause,omitempty"`
	ResultStoryID string              `json:"result_story_id,omitempty"`
	Error         string              `json:"error,omitempty"`
	SubmittedAt   time.Time           `json:"submitted_at"`
}

type jobKey struct {
	userID     string
	requestKey string
}

// Job - одна отслеживаемая генерация. Создается только Coordinator.Start.
type Job struct {
	key         jobKey
	req         models.GenerationRequest
	submittedAt time.Time
	cancel      context.CancelFunc
	done        chan struct{}

	mu           sync.Mutex
	state        State
	generationID string
	attempts     int
	result       Result
}

func newJob(req models.GenerationRequest, submittedAt time.Time, cancel context.CancelFunc) *Job {
	return &Job{
		key:         jobKey{userID: req.UserID, requestKey: req.RequestKey},
		req:         req,
		submittedAt: submittedAt,
		cancel:      cancel,
		done:        make(chan struct{}),
		state:       StateSubmitted,
	}
}

// RequestKey возвращает ключ логического запроса.
func (j *Job) RequestKey() string { return j.key.requestKey }

// UserID возвращает владельца задачи.
func (j *Job) UserID() string { return j.key.userID }

func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// GenerationID возвращает идентификатор, назначенный сервисом, или пустую строку до подтверждения отправки.
func (j *Job) GenerationID() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.generationID
}

// Attempts возвращает номер последней выполненной попытки опроса.
func (j *Job) Attempts() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.attempts
}

// Done закрывается, когда фоновый цикл задачи завершился.
func (j *Job) Done() <-chan struct{} { return j.done }

// Result возвращает итог, если задача уже в терминальном состоянии.
func (j *Job) Result() (Result, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.state.IsTerminal() {
		return Result{}, false
	}
	return j.result, true
}

// Wait блокируется до завершения задачи или отмены ctx.
func (j *Job) Wait(ctx context.Context) (Result, error) {
	select {
	case <-j.done:
		res, _ := j.Result()
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (j *Job) Info() Info {
	j.mu.Lock()
	defer j.mu.Unlock()
	info := Info{
		RequestKey:   j.key.requestKey,
		UserID:       j.key.userID,
		GenerationID: j.generationID,
		State:        j.state,
		Attempts:     j.attempts,
		SubmittedAt:  j.submittedAt,
	}
	if j.state.IsTerminal() {
		info.Cause = j.result.Cause
		if j.result.Err != nil {
			info.Error = j.result.Err.Error()
		}
		if j.result.Generation != nil {
			info.ResultStoryID = j.result.Generation.ResultStoryID
		}
	}
	return info
}

func (j *Job) startPolling(generationID string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.IsTerminal() {
		return false
	}
	j.state = StatePolling
	j.generationID = generationID
	return true
}

// beginAttempt фиксирует номер попытки перед опросом. false - задача уже брошена.
func (j *Job) beginAttempt(attempt int) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.IsTerminal() {
		return false
	}
	j.attempts = attempt
	return true
}

// complete переводит задачу в терминальное состояние. apply выполняется под блокировкой задачи,
// поэтому брошенная задача не может изменить кэш.
func (j *Job) complete(res Result, apply func(Result) Result) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.IsTerminal() {
		return false
	}
	if apply != nil {
		res = apply(res)
	}
	res.Attempts = j.attempts
	j.state = res.State
	j.result = res
	return true
}

func (j *Job) abandon() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.IsTerminal() {
		return false
	}
	j.state = StateAbandoned
	j.result = Result{State: StateAbandoned, Err: models.ErrAbandoned, Attempts: j.attempts}
	j.cancel()
	return true
}

func (j *Job) record(completedAt time.Time) models.GenerationRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	rec := models.GenerationRecord{
		GenerationID: j.generationID,
		RequestKey:   j.key.requestKey,
		UserID:       j.key.userID,
		State:        string(j.state),
		Cause:        j.result.Cause,
		Attempts:     j.attempts,
		SubmittedAt:  j.submittedAt,
		CompletedAt:  completedAt,
	}
	if j.result.Generation != nil {
		rec.ResultStoryID = j.result.Generation.ResultStoryID
	}
	if j.result.Err != nil {
		rec.Error = j.result.Err.Error()
	}
	return rec
}
