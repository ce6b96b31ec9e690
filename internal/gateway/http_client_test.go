package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"novel-client/internal/gateway"
	"novel-client/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGateway(t *testing.T, handler http.HandlerFunc) *gateway.HTTPStoryGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tokens := gateway.TokenSourceFunc(func(ctx context.Context) (string, error) { return "token-123", nil })
	gw, err := gateway.NewHTTPStoryGateway(gateway.Config{BaseURL: srv.URL, Timeout: 2 * time.Second}, tokens, nil)
	require.NoError(t, err)
	return gw
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewHTTPStoryGateway_InvalidURL(t *testing.T) {
	_, err := gateway.NewHTTPStoryGateway(gateway.Config{BaseURL: "::not a url"}, nil, nil)
	assert.Error(t, err)
}

func TestListStories(t *testing.T) {
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/users/u1/stories", r.URL.Path)
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{"data": []map[string]any{
			{"id": "s1", "owner_id": "u1", "title": "One", "created_at": "2025-01-01T00:00:00Z", "unknown": true},
		}})
	})

	stories, err := gw.ListStories(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, stories, 1)
	assert.Equal(t, "s1", stories[0].ID)
	assert.Equal(t, "One", stories[0].Title)
}

func TestListStories_EmptyDataIsEmptySlice(t *testing.T) {
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{})
	})

	stories, err := gw.ListStories(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotNil(t, stories)
	assert.Empty(t, stories)
}

func TestStatusClassification(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		transient bool
		is        error
	}{
		{"server error", http.StatusBadGateway, true, models.ErrTransientNetwork},
		{"too many requests", http.StatusTooManyRequests, true, models.ErrTransientNetwork},
		{"request timeout", http.StatusRequestTimeout, true, models.ErrTransientNetwork},
		{"not found", http.StatusNotFound, false, models.ErrNotFound},
		{"unauthorized", http.StatusUnauthorized, false, models.ErrUnauthorized},
		{"validation", http.StatusUnprocessableEntity, false, models.ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tc.status, map[string]string{"error": "boom"})
			})

			_, err := gw.GetStory(context.Background(), "s1")
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.is)
			assert.Equal(t, tc.transient, models.IsTransient(err))
			if !tc.transient {
				var def *models.DefinitiveError
				require.True(t, errors.As(err, &def))
				assert.Equal(t, tc.status, def.StatusCode)
				assert.Contains(t, err.Error(), "boom")
			}
		})
	}
}

func TestConnectionFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	gw, err := gateway.NewHTTPStoryGateway(gateway.Config{BaseURL: url, Timeout: time.Second}, nil, nil)
	require.NoError(t, err)

	_, err = gw.ListStories(context.Background(), "u1")
	assert.ErrorIs(t, err, models.ErrTransientNetwork)
}

func TestCanceledContextIsNotTransient(t *testing.T) {
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": []any{}})
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gw.ListStories(ctx, "u1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, models.IsTransient(err))
}

func TestTokenSourceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not be sent without a token")
	}))
	defer srv.Close()

	tokens := gateway.TokenSourceFunc(func(ctx context.Context) (string, error) { return "", errors.New("signed out") })
	gw, err := gateway.NewHTTPStoryGateway(gateway.Config{BaseURL: srv.URL}, tokens, nil)
	require.NoError(t, err)

	_, err = gw.ListStories(context.Background(), "u1")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.ErrorIs(t, err, models.ErrDefinitiveRemote)
}

func TestMutations(t *testing.T) {
	var rated int
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/stories":
			var s models.Story
			require.NoError(t, json.NewDecoder(r.Body).Decode(&s))
			s.ID = "new-id"
			writeJSON(w, http.StatusCreated, s)
		case r.Method == http.MethodPut && r.URL.Path == "/stories/s1":
			var s models.Story
			require.NoError(t, json.NewDecoder(r.Body).Decode(&s))
			writeJSON(w, http.StatusOK, s)
		case r.Method == http.MethodDelete && r.URL.Path == "/stories/s1":
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodPost && r.URL.Path == "/stories/s1/rating":
			var body struct {
				Rating int `json:"rating"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			rated = body.Rating
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	created, err := gw.CreateStory(ctx, models.Story{OwnerID: "u1", Title: "Draft"})
	require.NoError(t, err)
	assert.Equal(t, "new-id", created.ID)
	assert.Equal(t, "Draft", created.Title)

	updated, err := gw.UpdateStory(ctx, models.Story{ID: "s1", Title: "Edited"})
	require.NoError(t, err)
	assert.Equal(t, "Edited", updated.Title)

	_, err = gw.UpdateStory(ctx, models.Story{Title: "no id"})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	require.NoError(t, gw.DeleteStory(ctx, "s1"))
	require.NoError(t, gw.RateStory(ctx, "s1", 5))
	assert.Equal(t, 5, rated)
}

func TestSubmitAndPollGeneration(t *testing.T) {
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/generations":
			var req models.GenerationRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "u1", req.UserID)
			writeJSON(w, http.StatusAccepted, map[string]string{"generation_id": "g1"})
		case r.URL.Path == "/generations/g1":
			switch r.URL.Query().Get("attempt") {
			case "1":
				w.WriteHeader(http.StatusAccepted)
			case "2":
				writeJSON(w, http.StatusOK, map[string]any{"generation_id": "g1", "status": "pending"})
			default:
				writeJSON(w, http.StatusOK, map[string]any{
					"generation_id":   "g1",
					"status":          "succeeded",
					"result_story_id": "s1",
				})
			}
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	id, err := gw.SubmitGeneration(ctx, models.GenerationRequest{UserID: "u1", Prompt: "dragons"})
	require.NoError(t, err)
	assert.Equal(t, "g1", id)

	_, err = gw.PollGeneration(ctx, "g1", 1)
	assert.ErrorIs(t, err, models.ErrNotYetAvailable)

	_, err = gw.PollGeneration(ctx, "g1", 2)
	assert.ErrorIs(t, err, models.ErrNotYetAvailable)

	gen, err := gw.PollGeneration(ctx, "g1", 3)
	require.NoError(t, err)
	assert.Equal(t, models.GenerationStatusSucceeded, gen.Status)
	assert.Equal(t, "s1", gen.ResultStoryID)
	assert.Equal(t, 3, gen.AttemptNumber)
}

func TestSubmitGeneration_MissingID(t *testing.T) {
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{})
	})

	_, err := gw.SubmitGeneration(context.Background(), models.GenerationRequest{UserID: "u1"})
	assert.ErrorIs(t, err, models.ErrDefinitiveRemote)
}

func TestMalformedResponse(t *testing.T) {
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data": [`))
	})

	_, err := gw.ListStories(context.Background(), "u1")
	assert.ErrorIs(t, err, models.ErrDefinitiveRemote)
}
