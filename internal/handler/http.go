// Package handler - локальный HTTP-интерфейс storysync для UI-слоя.
package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"novel-client/internal/connectivity"
	"novel-client/internal/generation"
	"novel-client/internal/interfaces"
	"novel-client/internal/models"
	"novel-client/internal/reconcile"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ConnectivityReporter принимает состояние сети от платформы.
type ConnectivityReporter interface {
	Report(online bool)
}

// ConnectivityWatcher отдает поток состояний сети, канал закрывается после отмены ctx.
type ConnectivityWatcher interface {
	Subscribe(ctx context.Context) <-chan connectivity.State
}

var _ ConnectivityWatcher = (*connectivity.Monitor)(nil)

// Handler обслуживает маршруты историй, генераций и кэша.
type Handler struct {
	engine   *reconcile.Engine
	coord    *generation.Coordinator
	history  interfaces.GenerationRepository
	reporter ConnectivityReporter
	watcher  ConnectivityWatcher
	logger   *zap.Logger
}

// NewHandler создает обработчик. history и reporter необязательны.
// Если reporter также реализует ConnectivityWatcher, доступен поток /connectivity/stream.
func NewHandler(engine *reconcile.Engine, coord *generation.Coordinator, history interfaces.GenerationRepository, reporter ConnectivityReporter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		engine:   engine,
		coord:    coord,
		history:  history,
		reporter: reporter,
		logger:   logger.Named("StorySyncHandler"),
	}
	if w, ok := reporter.(ConnectivityWatcher); ok {
		h.watcher = w
	}
	return h
}

// RegisterRoutes регистрирует маршруты на router.
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)

	router.GET("/connectivity", h.getConnectivity)
	router.POST("/connectivity", h.reportConnectivity)
	router.GET("/connectivity/stream", h.streamConnectivity)

	users := router.Group("/users/:user_id")
	{
		users.GET("/stories", h.listStories)
		users.POST("/stories", h.createStory)
		users.GET("/stories/:story_id", h.getStory)
		users.PUT("/stories/:story_id", h.updateStory)
		users.DELETE("/stories/:story_id", h.deleteStory)
		users.POST("/stories/:story_id/rating", h.rateStory)
		users.DELETE("/cache", h.clearCache)

		users.POST("/generations", h.startGeneration)
		users.GET("/generations", h.listActiveGenerations)
		users.GET("/generations/:request_key", h.getGeneration)
		users.DELETE("/generations/:request_key", h.abandonGeneration)
		users.GET("/generation-history", h.listGenerationHistory)
	}
}

type listStoriesResponse struct {
	Data         []models.Story `json:"data"`
	Online       bool           `json:"online"`
	LastSyncedAt *time.Time     `json:"last_synced_at,omitempty"`
}

func (h *Handler) listStories(c *gin.Context) {
	userID := c.Param("user_id")
	order, err := models.ParseStoryOrder(c.Query("order"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	refresh, _ := strconv.ParseBool(c.DefaultQuery("refresh", "false"))

	stories, err := h.engine.GetStories(c.Request.Context(), userID, reconcile.GetOptions{ForceRefresh: refresh, Order: order})
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	resp := listStoriesResponse{Data: stories, Online: h.engine.Online()}
	if syncedAt, ok := h.engine.LastSyncedAt(c.Request.Context(), userID); ok {
		resp.LastSyncedAt = &syncedAt
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getStory(c *gin.Context) {
	story, err := h.engine.GetStory(c.Request.Context(), c.Param("user_id"), c.Param("story_id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, story)
}

func (h *Handler) createStory(c *gin.Context) {
	var story models.Story
	if err := c.ShouldBindJSON(&story); err != nil {
		h.handleServiceError(c, invalidBody(err))
		return
	}
	created, err := h.engine.CreateStory(c.Request.Context(), c.Param("user_id"), story)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) updateStory(c *gin.Context) {
	var story models.Story
	if err := c.ShouldBindJSON(&story); err != nil {
		h.handleServiceError(c, invalidBody(err))
		return
	}
	storyID := c.Param("story_id")
	if story.ID != "" && story.ID != storyID {
		h.handleServiceError(c, fmt.Errorf("%w: story id in body does not match path", models.ErrInvalidInput))
		return
	}
	story.ID = storyID

	updated, err := h.engine.UpdateStory(c.Request.Context(), c.Param("user_id"), story)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

type rateStoryRequest struct {
	Rating *int `json:"rating"`
}

func (h *Handler) rateStory(c *gin.Context) {
	var req rateStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleServiceError(c, invalidBody(err))
		return
	}
	if req.Rating == nil {
		h.handleServiceError(c, fmt.Errorf("%w: rating is required", models.ErrInvalidInput))
		return
	}
	if err := h.engine.RateStory(c.Request.Context(), c.Param("user_id"), c.Param("story_id"), *req.Rating); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) deleteStory(c *gin.Context) {
	if err := h.engine.DeleteStory(c.Request.Context(), c.Param("user_id"), c.Param("story_id")); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) clearCache(c *gin.Context) {
	userID := c.Param("user_id")
	if err := h.engine.ClearUser(c.Request.Context(), userID); err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.logger.Info("User cache cleared", zap.String("user_id", userID))
	c.Status(http.StatusNoContent)
}

func (h *Handler) getConnectivity(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"online": h.engine.Online()})
}

type connectivityReport struct {
	Online *bool `json:"online"`
}

func (h *Handler) reportConnectivity(c *gin.Context) {
	if h.reporter == nil {
		c.AbortWithStatusJSON(http.StatusNotImplemented, ErrorResponse{Error: "connectivity reports are not accepted"})
		return
	}
	var req connectivityReport
	if err := c.ShouldBindJSON(&req); err != nil || req.Online == nil {
		h.handleServiceError(c, fmt.Errorf("%w: online flag is required", models.ErrInvalidInput))
		return
	}
	h.reporter.Report(*req.Online)
	c.JSON(http.StatusOK, gin.H{"online": h.engine.Online()})
}

// streamConnectivity отправляет текущее состояние сети и затем каждый переход как server-sent events.
func (h *Handler) streamConnectivity(c *gin.Context) {
	if h.watcher == nil {
		c.AbortWithStatusJSON(http.StatusNotImplemented, ErrorResponse{Error: "connectivity stream is not available"})
		return
	}
	states := h.watcher.Subscribe(c.Request.Context())
	c.Header("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		state, ok := <-states
		if !ok {
			return false
		}
		c.SSEvent("connectivity", gin.H{"state": state, "online": state == connectivity.Online})
		return true
	})
	h.logger.Debug("Connectivity stream closed")
}

type startGenerationRequest struct {
	RequestKey string            `json:"request_key"`
	Prompt     string            `json:"prompt"`
	Params     map[string]string `json:"params,omitempty"`
}

type generationResponse struct {
	generation.Info
	Story *models.Story `json:"story,omitempty"`
}

// startGeneration запускает генерацию. С ?wait=true ответ отправляется после
// завершения задачи или закрытия соединения клиентом.
func (h *Handler) startGeneration(c *gin.Context) {
	var req startGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleServiceError(c, invalidBody(err))
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		h.handleServiceError(c, fmt.Errorf("%w: prompt is required", models.ErrInvalidInput))
		return
	}

	job, err := h.coord.Start(c.Request.Context(), models.GenerationRequest{
		UserID:     c.Param("user_id"),
		RequestKey: req.RequestKey,
		Prompt:     req.Prompt,
		Params:     req.Params,
	})
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	if wait, _ := strconv.ParseBool(c.Query("wait")); !wait {
		c.JSON(http.StatusAccepted, generationResponse{Info: job.Info()})
		return
	}

	res, err := job.Wait(c.Request.Context())
	if err != nil {
		// Клиент ушел, задача продолжается в фоне.
		c.JSON(http.StatusAccepted, generationResponse{Info: job.Info()})
		return
	}
	c.JSON(http.StatusOK, generationResponse{Info: job.Info(), Story: res.Story})
}

func (h *Handler) listActiveGenerations(c *gin.Context) {
	jobs := h.coord.Active(c.Param("user_id"))
	infos := make([]generation.Info, 0, len(jobs))
	for _, job := range jobs {
		infos = append(infos, job.Info())
	}
	c.JSON(http.StatusOK, gin.H{"data": infos})
}

func (h *Handler) getGeneration(c *gin.Context) {
	job, ok := h.coord.Lookup(c.Param("user_id"), c.Param("request_key"))
	if !ok {
		h.handleServiceError(c, models.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, generationResponse{Info: job.Info()})
}

func (h *Handler) abandonGeneration(c *gin.Context) {
	if err := h.coord.Abandon(c.Param("user_id"), c.Param("request_key")); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listGenerationHistory(c *gin.Context) {
	if h.history == nil {
		h.handleServiceError(c, ErrHistoryDisabled)
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.handleServiceError(c, fmt.Errorf("%w: limit must be a non-negative integer", models.ErrInvalidInput))
			return
		}
		limit = parsed
	}

	records, err := h.history.ListByUser(c.Request.Context(), c.Param("user_id"), limit)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": records})
}

func invalidBody(err error) error {
	return fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
}
