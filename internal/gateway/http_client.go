// Package gateway содержит HTTP-клиент удаленного сервиса историй и генерации.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"novel-client/internal/interfaces"
	"novel-client/internal/models"

	"go.uber.org/zap"
)

const maxResponseBody = 4 << 20

// TokenSource выдает bearer-токен текущего пользователя.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc адаптирует функцию к TokenSource.
type TokenSourceFunc func(ctx context.Context) (string, error)

func (f TokenSourceFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// Config - параметры клиента.
type Config struct {
	BaseURL string
	// Timeout ограничивает каждый отдельный вызов.
	Timeout time.Duration
}

// errorResponse - тело ответа с ошибкой.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type listResponse struct {
	Data []models.Story `json:"data"`
}

type submitResponse struct {
	GenerationID string `json:"generation_id"`
}

type rateRequest struct {
	Rating int `json:"rating"`
}

var _ interfaces.StoryGateway = (*HTTPStoryGateway)(nil)

// HTTPStoryGateway реализует interfaces.StoryGateway поверх HTTP.
type HTTPStoryGateway struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     *zap.Logger
}

// NewHTTPStoryGateway создает клиент. tokens может быть nil, тогда заголовок Authorization не ставится.
func NewHTTPStoryGateway(cfg Config, tokens TokenSource, logger *zap.Logger) (*HTTPStoryGateway, error) {
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL for story gateway: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPStoryGateway{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		tokens: tokens,
		logger: logger.Named("HTTPStoryGateway"),
	}, nil
}

func (g *HTTPStoryGateway) ListStories(ctx context.Context, userID string) ([]models.Story, error) {
	var resp listResponse
	path := "/users/" + url.PathEscape(userID) + "/stories"
	if _, err := g.do(ctx, "list stories", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		resp.Data = []models.Story{}
	}
	return resp.Data, nil
}

func (g *HTTPStoryGateway) GetStory(ctx context.Context, storyID string) (*models.Story, error) {
	var story models.Story
	if _, err := g.do(ctx, "get story", http.MethodGet, "/stories/"+url.PathEscape(storyID), nil, &story); err != nil {
		return nil, err
	}
	return &story, nil
}

func (g *HTTPStoryGateway) CreateStory(ctx context.Context, story models.Story) (*models.Story, error) {
	var created models.Story
	if _, err := g.do(ctx, "create story", http.MethodPost, "/stories", story, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (g *HTTPStoryGateway) UpdateStory(ctx context.Context, story models.Story) (*models.Story, error) {
	if story.ID == "" {
		return nil, fmt.Errorf("%w: story id is required for update", models.ErrInvalidInput)
	}
	var updated models.Story
	if _, err := g.do(ctx, "update story", http.MethodPut, "/stories/"+url.PathEscape(story.ID), story, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (g *HTTPStoryGateway) DeleteStory(ctx context.Context, storyID string) error {
	_, err := g.do(ctx, "delete story", http.MethodDelete, "/stories/"+url.PathEscape(storyID), nil, nil)
	return err
}

func (g *HTTPStoryGateway) RateStory(ctx context.Context, storyID string, rating int) error {
	path := "/stories/" + url.PathEscape(storyID) + "/rating"
	_, err := g.do(ctx, "rate story", http.MethodPost, path, rateRequest{Rating: rating}, nil)
	return err
}

func (g *HTTPStoryGateway) SubmitGeneration(ctx context.Context, req models.GenerationRequest) (string, error) {
	var resp submitResponse
	if _, err := g.do(ctx, "submit generation", http.MethodPost, "/generations", req, &resp); err != nil {
		return "", err
	}
	if resp.GenerationID == "" {
		return "", models.NewDefinitiveError("submit generation", http.StatusOK, errors.New("response has no generation_id"))
	}
	return resp.GenerationID, nil
}

// PollGeneration возвращает models.ErrNotYetAvailable на 202 Accepted и 204 No Content.
func (g *HTTPStoryGateway) PollGeneration(ctx context.Context, generationID string, attemptNumber int) (*models.Generation, error) {
	path := "/generations/" + url.PathEscape(generationID) + "?attempt=" + strconv.Itoa(attemptNumber)
	var gen models.Generation
	status, err := g.do(ctx, "poll generation", http.MethodGet, path, nil, &gen)
	if err != nil {
		return nil, err
	}
	if status == http.StatusAccepted || status == http.StatusNoContent {
		return nil, models.ErrNotYetAvailable
	}
	if gen.GenerationID == "" {
		gen.GenerationID = generationID
	}
	if gen.AttemptNumber == 0 {
		gen.AttemptNumber = attemptNumber
	}
	if gen.Status == models.GenerationStatusPending {
		return nil, models.ErrNotYetAvailable
	}
	return &gen, nil
}

// do выполняет запрос и декодирует непустое тело успешного ответа в out. Возвращает код ответа.
func (g *HTTPStoryGateway) do(ctx context.Context, op, method, path string, body, out any) (int, error) {
	log := g.logger.With(zap.String("op", op), zap.String("method", method), zap.String("path", path))

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			log.Error("Failed to marshal request body", zap.Error(err))
			return 0, fmt.Errorf("internal error marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, bodyReader)
	if err != nil {
		log.Error("Failed to create HTTP request", zap.Error(err))
		return 0, fmt.Errorf("internal error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.tokens != nil {
		token, err := g.tokens.Token(ctx)
		if err != nil {
			log.Warn("Failed to obtain bearer token", zap.Error(err))
			return 0, models.NewDefinitiveError(op, 0, fmt.Errorf("%w: %v", models.ErrUnauthorized, err))
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	log.Debug("Sending request to story service")
	resp, err := g.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return 0, err
		}
		log.Warn("HTTP request failed", zap.Error(err))
		return 0, models.NewTransientError(op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		log.Warn("Failed to read response body", zap.Int("status", resp.StatusCode), zap.Error(err))
		return resp.StatusCode, models.NewTransientError(op, fmt.Errorf("failed to read response: %w", err))
	}

	if err := classifyStatus(op, resp.StatusCode, respBody); err != nil {
		log.Warn("Story service returned error status", zap.Int("status", resp.StatusCode), zap.Error(err))
		return resp.StatusCode, err
	}

	if out != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			log.Error("Failed to decode response body", zap.Int("status", resp.StatusCode), zap.Error(err))
			return resp.StatusCode, models.NewDefinitiveError(op, resp.StatusCode, fmt.Errorf("malformed response: %w", err))
		}
	}
	return resp.StatusCode, nil
}

// classifyStatus разделяет ответы на повторяемые и окончательные ошибки.
// 5xx, 408 и 429 повторяемы, остальные 4xx окончательны.
func classifyStatus(op string, status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	msg := errorMessage(body)

	switch {
	case status >= 500, status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return models.NewTransientError(op, fmt.Errorf("status %d: %s", status, msg))
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return models.NewDefinitiveError(op, status, fmt.Errorf("%w: %s", models.ErrUnauthorized, msg))
	case status == http.StatusNotFound:
		return models.NewDefinitiveError(op, status, fmt.Errorf("%w: %s", models.ErrNotFound, msg))
	case status >= 400:
		return models.NewDefinitiveError(op, status, fmt.Errorf("%w: %s", models.ErrInvalidInput, msg))
	default:
		return models.NewDefinitiveError(op, status, fmt.Errorf("unexpected status: %s", msg))
	}
}

func errorMessage(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil {
		if er.Error != "" {
			return er.Error
		}
		if er.Message != "" {
			return er.Message
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		return "empty response"
	}
	return msg
}
