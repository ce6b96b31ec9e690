// Package gatewaytest содержит in-memory реализацию StoryGateway для тестов.
package gatewaytest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"novel-client/internal/interfaces"
	"novel-client/internal/models"
)

var _ interfaces.StoryGateway = (*Fake)(nil)

type fakeGeneration struct {
	id          string
	userID      string
	createdAt   time.Time
	maxAttempt  int
	pendingLeft int
	outcome     models.GenerationStatus
	result      *models.Generation
}

// Fake хранит истории в памяти и ведет генерации по простому сценарию:
// PendingPolls опросов возвращают not-yet-available, следующий завершает задачу с Outcome.
// Успешная генерация gN создает историю sN.
type Fake struct {
	mu sync.Mutex

	// PendingPolls - сколько опросов подряд генерация остается pending.
	PendingPolls int
	// Outcome - итоговый статус генерации, по умолчанию succeeded.
	Outcome models.GenerationStatus
	// Now - источник времени для createdAt, по умолчанию time.Now.
	Now func() time.Time

	stories     map[string]models.Story
	generations map[string]*fakeGeneration
	errs        map[string]error
	calls       map[string]int
	polls       map[string][]int
	seq         int
}

// New создает пустой Fake.
func New() *Fake {
	return &Fake{
		Now:         time.Now,
		stories:     make(map[string]models.Story),
		generations: make(map[string]*fakeGeneration),
		errs:        make(map[string]error),
		calls:       make(map[string]int),
		polls:       make(map[string][]int),
	}
}

// Operation names for SetError and Calls.
const (
	OpList   = "list"
	OpGet    = "get"
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
	OpRate   = "rate"
	OpSubmit = "submit"
	OpPoll   = "poll"
)

// SetError заставляет операцию op возвращать err, пока не будет вызван SetError(op, nil).
func (f *Fake) SetError(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, op)
		return
	}
	f.errs[op] = err
}

// SetOffline имитирует недоступную сеть для всех операций.
func (f *Fake) SetOffline(offline bool) {
	for _, op := range []string{OpList, OpGet, OpCreate, OpUpdate, OpDelete, OpRate, OpSubmit, OpPoll} {
		if offline {
			f.SetError(op, models.NewTransientError(op, fmt.Errorf("network is unreachable")))
		} else {
			f.SetError(op, nil)
		}
	}
}

// PutStory кладет историю в удаленное хранилище без учета вызова.
func (f *Fake) PutStory(story models.Story) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stories[story.ID] = story.Clone()
}

// Calls возвращает число вызовов операции op.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// TotalCalls возвращает число всех вызовов.
func (f *Fake) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// Polls возвращает номера попыток, с которыми опрашивалась генерация.
func (f *Fake) Polls(generationID string) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.polls[generationID]...)
}

func (f *Fake) enter(op string) error {
	f.mu.Lock()
	f.calls[op]++
	return f.errs[op]
}

func (f *Fake) ListStories(ctx context.Context, userID string) ([]models.Story, error) {
	err := f.enter(OpList)
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := []models.Story{}
	for _, s := range f.stories {
		if s.OwnerID == userID {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *Fake) GetStory(ctx context.Context, storyID string) (*models.Story, error) {
	err := f.enter(OpGet)
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s, ok := f.stories[storyID]
	if !ok {
		return nil, models.NewDefinitiveError("get story", 404, models.ErrNotFound)
	}
	c := s.Clone()
	return &c, nil
}

func (f *Fake) CreateStory(ctx context.Context, story models.Story) (*models.Story, error) {
	err := f.enter(OpCreate)
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if story.ID == "" {
		f.seq++
		story.ID = fmt.Sprintf("story-%d", f.seq)
	}
	if story.CreatedAt.IsZero() {
		story.CreatedAt = f.Now().UTC()
	}
	f.stories[story.ID] = story.Clone()
	return &story, nil
}

func (f *Fake) UpdateStory(ctx context.Context, story models.Story) (*models.Story, error) {
	err := f.enter(OpUpdate)
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	existing, ok := f.stories[story.ID]
	if !ok {
		return nil, models.NewDefinitiveError("update story", 404, models.ErrNotFound)
	}
	if story.CreatedAt.IsZero() {
		story.CreatedAt = existing.CreatedAt
	}
	f.stories[story.ID] = story.Clone()
	return &story, nil
}

func (f *Fake) DeleteStory(ctx context.Context, storyID string) error {
	err := f.enter(OpDelete)
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	if _, ok := f.stories[storyID]; !ok {
		return models.NewDefinitiveError("delete story", 404, models.ErrNotFound)
	}
	delete(f.stories, storyID)
	return nil
}

func (f *Fake) RateStory(ctx context.Context, storyID string, rating int) error {
	err := f.enter(OpRate)
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	s, ok := f.stories[storyID]
	if !ok {
		return models.NewDefinitiveError("rate story", 404, models.ErrNotFound)
	}
	if err := models.ValidateRating(rating); err != nil {
		return models.NewDefinitiveError("rate story", 422, err)
	}
	f.stories[storyID] = s.WithRating(rating)
	return nil
}

func (f *Fake) SubmitGeneration(ctx context.Context, req models.GenerationRequest) (string, error) {
	err := f.enter(OpSubmit)
	defer f.mu.Unlock()
	if err != nil {
		return "", err
	}
	outcome := f.Outcome
	if outcome == "" {
		outcome = models.GenerationStatusSucceeded
	}
	gen := &fakeGeneration{
		id:          fmt.Sprintf("g%d", len(f.generations)+1),
		userID:      req.UserID,
		createdAt:   f.Now().UTC(),
		pendingLeft: f.PendingPolls,
		outcome:     outcome,
	}
	f.generations[gen.id] = gen
	return gen.id, nil
}

// PollGeneration для попытки не выше уже виденной возвращает not-yet-available.
func (f *Fake) PollGeneration(ctx context.Context, generationID string, attemptNumber int) (*models.Generation, error) {
	err := f.enter(OpPoll)
	defer f.mu.Unlock()
	f.polls[generationID] = append(f.polls[generationID], attemptNumber)
	if err != nil {
		return nil, err
	}
	gen, ok := f.generations[generationID]
	if !ok {
		return nil, models.NewDefinitiveError("poll generation", 404, models.ErrNotFound)
	}
	if attemptNumber <= gen.maxAttempt {
		return nil, models.ErrNotYetAvailable
	}
	gen.maxAttempt = attemptNumber

	if gen.result != nil {
		r := *gen.result
		r.AttemptNumber = attemptNumber
		return &r, nil
	}
	if gen.pendingLeft > 0 {
		gen.pendingLeft--
		return nil, models.ErrNotYetAvailable
	}

	result := &models.Generation{
		GenerationID:  gen.id,
		AttemptNumber: attemptNumber,
		UserID:        gen.userID,
		Status:        gen.outcome,
		CreatedAt:     gen.createdAt,
	}
	if gen.outcome == models.GenerationStatusSucceeded {
		storyID := "s" + gen.id[1:]
		story := models.Story{
			ID:        storyID,
			OwnerID:   gen.userID,
			Title:     "Generated story " + storyID,
			Body:      "Generated for " + gen.userID,
			CreatedAt: f.Now().UTC(),
		}
		f.stories[storyID] = story
		result.ResultStoryID = storyID
	} else {
		result.Error = "generation failed"
	}
	gen.result = result
	out := *result
	return &out, nil
}
