package handler_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"novel-client/internal/clock"
	"novel-client/internal/connectivity"
	"novel-client/internal/gateway/gatewaytest"
	"novel-client/internal/generation"
	"novel-client/internal/handler"
	"novel-client/internal/interfaces/mocks"
	"novel-client/internal/models"
	"novel-client/internal/reconcile"
	"novel-client/internal/storycache"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"
)

type switchableChecker struct{ online bool }

func (c *switchableChecker) CurrentlyOnline() bool { return c.online }

func (c *switchableChecker) Report(online bool) { c.online = online }

var created = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

type HandlerSuite struct {
	suite.Suite
	gateway *gatewaytest.Fake
	cache   *storycache.Store
	checker *switchableChecker
	clock   *clock.Fake
	coord   *generation.Coordinator
	history *mocks.GenerationRepository
	router  *gin.Engine
}

func TestHandlerSuite(t *testing.T) {
	gin.SetMode(gin.TestMode)
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := zaptest.NewLogger(s.T())
	s.gateway = gatewaytest.New()
	s.gateway.Now = func() time.Time { return created }
	s.cache = storycache.NewMemory()
	s.checker = &switchableChecker{online: true}
	s.clock = clock.NewFake(created)
	s.history = &mocks.GenerationRepository{}

	engine := reconcile.NewEngine(s.cache, s.gateway, s.checker, logger)
	s.coord = generation.NewCoordinator(s.gateway, engine, generation.Config{PollInterval: time.Second}, logger,
		generation.WithClock(s.clock))

	s.router = gin.New()
	s.router.Use(handler.RequestLogger(logger))
	handler.NewHandler(engine, s.coord, s.history, s.checker, logger).RegisterRoutes(s.router)
}

func (s *HandlerSuite) TearDownTest() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Require().NoError(s.coord.Shutdown(ctx))
}

func (s *HandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *HandlerSuite) decode(w *httptest.ResponseRecorder, out any) {
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func (s *HandlerSuite) errorOf(w *httptest.ResponseRecorder) string {
	var resp handler.ErrorResponse
	s.decode(w, &resp)
	return resp.Error
}

func (s *HandlerSuite) TestHealth() {
	w := s.do(http.MethodGet, "/health", nil)
	s.Equal(http.StatusOK, w.Code)
	s.NotEmpty(w.Header().Get("X-Request-ID"))
}

func (s *HandlerSuite) TestListStoriesRefreshesAndOrders() {
	s.gateway.PutStory(models.Story{ID: "a", OwnerID: "u1", Title: "Zeta", CreatedAt: created})
	s.gateway.PutStory(models.Story{ID: "b", OwnerID: "u1", Title: "alpha", CreatedAt: created.Add(time.Hour)})

	w := s.do(http.MethodGet, "/users/u1/stories", nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Data         []models.Story `json:"data"`
		Online       bool           `json:"online"`
		LastSyncedAt *time.Time     `json:"last_synced_at"`
	}
	s.decode(w, &resp)
	s.True(resp.Online)
	s.NotNil(resp.LastSyncedAt)
	s.Require().Len(resp.Data, 2)
	s.Equal("b", resp.Data[0].ID)

	w = s.do(http.MethodGet, "/users/u1/stories?order=title_asc", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.decode(w, &resp)
	s.Equal("b", resp.Data[0].ID)
	s.Equal("a", resp.Data[1].ID)
}

func (s *HandlerSuite) TestListStoriesOfflineServesCache() {
	s.gateway.PutStory(models.Story{ID: "a", OwnerID: "u1", Title: "A", CreatedAt: created})
	s.Require().Equal(http.StatusOK, s.do(http.MethodGet, "/users/u1/stories", nil).Code)

	s.checker.online = false
	calls := s.gateway.TotalCalls()
	w := s.do(http.MethodGet, "/users/u1/stories", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"online":false`)
	s.Contains(w.Body.String(), `"id":"a"`)
	s.Equal(calls, s.gateway.TotalCalls())
}

func (s *HandlerSuite) TestListStoriesNetworkErrorWithoutCache() {
	s.gateway.SetOffline(true)
	w := s.do(http.MethodGet, "/users/u1/stories", nil)
	s.Equal(http.StatusServiceUnavailable, w.Code)
}

func (s *HandlerSuite) TestListStoriesRejectsUnknownOrder() {
	w := s.do(http.MethodGet, "/users/u1/stories?order=random", nil)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Contains(s.errorOf(w), "unknown story order")
}

func (s *HandlerSuite) TestStoryLifecycle() {
	w := s.do(http.MethodPost, "/users/u1/stories", map[string]any{"title": "Lighthouse"})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var story models.Story
	s.decode(w, &story)
	s.Require().NotEmpty(story.ID)
	s.Equal("u1", story.OwnerID)

	w = s.do(http.MethodPut, "/users/u1/stories/"+story.ID, map[string]any{"title": "Lighthouse keeper"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/users/u1/stories/"+story.ID+"/rating", map[string]any{"rating": 4})
	s.Require().Equal(http.StatusNoContent, w.Code, w.Body.String())

	cached, err := s.cache.GetByID(context.Background(), "u1", story.ID)
	s.Require().NoError(err)
	s.Equal("Lighthouse keeper", cached.Title)
	s.Require().NotNil(cached.Rating)
	s.Equal(4, *cached.Rating)

	w = s.do(http.MethodGet, "/users/u1/stories/"+story.ID, nil)
	s.Require().Equal(http.StatusOK, w.Code)

	w = s.do(http.MethodDelete, "/users/u1/stories/"+story.ID, nil)
	s.Require().Equal(http.StatusNoContent, w.Code)
	_, err = s.cache.GetByID(context.Background(), "u1", story.ID)
	s.ErrorIs(err, models.ErrNotFound)

	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/users/u1/stories/"+story.ID, nil).Code)
}

func (s *HandlerSuite) TestUpdateStoryRejectsMismatchedID() {
	w := s.do(http.MethodPut, "/users/u1/stories/a", map[string]any{"id": "b", "title": "x"})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *HandlerSuite) TestRateStoryValidation() {
	s.gateway.PutStory(models.Story{ID: "a", OwnerID: "u1", CreatedAt: created})

	w := s.do(http.MethodPost, "/users/u1/stories/a/rating", map[string]any{"rating": 9})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(0, s.gateway.Calls(gatewaytest.OpRate))

	w = s.do(http.MethodPost, "/users/u1/stories/a/rating", map[string]any{})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *HandlerSuite) TestRemoteDefinitiveErrorMapsToBadGateway() {
	s.gateway.SetError(gatewaytest.OpCreate, models.NewDefinitiveError("create story", 422, models.ErrInvalidInput))
	w := s.do(http.MethodPost, "/users/u1/stories", map[string]any{"title": "x"})
	// ErrInvalidInput внутри DefinitiveError проверяется раньше.
	s.Equal(http.StatusBadRequest, w.Code)

	s.gateway.SetError(gatewaytest.OpCreate, models.NewDefinitiveError("create story", 409, errors.New("conflict")))
	w = s.do(http.MethodPost, "/users/u1/stories", map[string]any{"title": "x"})
	s.Equal(http.StatusBadGateway, w.Code)
}

func (s *HandlerSuite) TestClearCache() {
	s.Require().NoError(s.cache.Upsert(context.Background(), "u1", models.Story{ID: "a", CreatedAt: created}))
	w := s.do(http.MethodDelete, "/users/u1/cache", nil)
	s.Require().Equal(http.StatusNoContent, w.Code)
	s.False(s.cache.Exists(context.Background(), "u1"))
}

func (s *HandlerSuite) TestConnectivityReport() {
	w := s.do(http.MethodPost, "/connectivity", map[string]any{"online": false})
	s.Require().Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"online":false}`, w.Body.String())

	w = s.do(http.MethodGet, "/connectivity", nil)
	s.JSONEq(`{"online":false}`, w.Body.String())

	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/connectivity", map[string]any{}).Code)
}

func (s *HandlerSuite) TestGenerationStartLookupAbandon() {
	s.gateway.PendingPolls = 100

	w := s.do(http.MethodPost, "/users/u1/generations", map[string]any{"request_key": "r1", "prompt": "a dragon"})
	s.Require().Equal(http.StatusAccepted, w.Code, w.Body.String())
	var info generation.Info
	s.decode(w, &info)
	s.Equal("r1", info.RequestKey)

	w = s.do(http.MethodPost, "/users/u1/generations", map[string]any{"request_key": "r1", "prompt": "a dragon"})
	s.Equal(http.StatusConflict, w.Code)

	w = s.do(http.MethodGet, "/users/u1/generations/r1", nil)
	s.Require().Equal(http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/users/u1/generations", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"request_key":"r1"`)

	w = s.do(http.MethodDelete, "/users/u1/generations/r1", nil)
	s.Require().Equal(http.StatusNoContent, w.Code)

	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/users/u1/generations/r1", nil).Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodDelete, "/users/u1/generations/r1", nil).Code)
}

func (s *HandlerSuite) TestGenerationWaitReturnsStory() {
	clk := s.clock
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			if clk.Waiters() > 0 {
				clk.Advance(time.Second)
			}
			time.Sleep(time.Millisecond)
		}
	}()

	w := s.do(http.MethodPost, "/users/u1/generations?wait=true", map[string]any{"prompt": "a dragon"})
	close(stop)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		State         string        `json:"state"`
		ResultStoryID string        `json:"result_story_id"`
		Story         *models.Story `json:"story"`
	}
	s.decode(w, &resp)
	s.Equal("succeeded", resp.State)
	s.Equal("s1", resp.ResultStoryID)
	s.Require().NotNil(resp.Story)
	s.Equal("s1", resp.Story.ID)
}

func (s *HandlerSuite) TestGenerationRequiresPrompt() {
	w := s.do(http.MethodPost, "/users/u1/generations", map[string]any{"prompt": " "})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(0, s.gateway.Calls(gatewaytest.OpSubmit))
}

func (s *HandlerSuite) TestGenerationHistory() {
	records := []models.GenerationRecord{{GenerationID: "g1", UserID: "u1", State: "succeeded"}}
	s.history.On("ListByUser", mock.Anything, "u1", 10).Return(records, nil).Once()

	w := s.do(http.MethodGet, "/users/u1/generation-history?limit=10", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"generation_id":"g1"`)

	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/users/u1/generation-history?limit=x", nil).Code)
	s.history.AssertExpectations(s.T())
}

func TestGenerationHistoryDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := reconcile.NewEngine(storycache.NewMemory(), gatewaytest.New(), nil, nil)
	router := gin.New()
	handler.NewHandler(engine, nil, nil, nil, nil).RegisterRoutes(router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users/u1/generation-history", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/connectivity", bytes.NewBufferString(`{"online":true}`)))
	require.Equal(t, http.StatusNotImplemented, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/connectivity/stream", nil))
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestConnectivityStreamSendsTransitions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	monitor := connectivity.NewMonitor(nil, connectivity.Config{InitialOnline: true}, nil, nil)
	engine := reconcile.NewEngine(storycache.NewMemory(), gatewaytest.New(), monitor, nil)
	router := gin.New()
	handler.NewHandler(engine, nil, nil, monitor, nil).RegisterRoutes(router)
	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/connectivity/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	scanner := bufio.NewScanner(resp.Body)
	nextEvent := func() map[string]any {
		t.Helper()
		for scanner.Scan() {
			line := scanner.Text()
			if data, ok := strings.CutPrefix(line, "data:"); ok {
				var event map[string]any
				require.NoError(t, json.Unmarshal([]byte(data), &event), line)
				return event
			}
		}
		t.Fatalf("stream ended: %v", scanner.Err())
		return nil
	}

	assert.Equal(t, map[string]any{"state": "online", "online": true}, nextEvent())
	monitor.Report(false)
	assert.Equal(t, map[string]any{"state": "offline", "online": false}, nextEvent())
}
