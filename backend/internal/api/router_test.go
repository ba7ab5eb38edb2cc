package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fritter/backend/internal/fanout"
	"fritter/backend/internal/memory"
	"fritter/backend/internal/model"
)

func newTestRouter(t *testing.T, users ...string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	graph := memory.NewGraph()
	feeds := memory.NewFeedStore()
	dir := memory.NewDirectory()
	for _, u := range users {
		require.NoError(t, dir.Register(model.UserID(u), u))
	}
	registry := fanout.NewRegistry(graph, feeds, fanout.Options{})
	relations := fanout.NewRelationshipGraph(graph, dir)
	coord := fanout.NewCoordinator(registry, relations, dir, feeds, nil)
	return NewRouter(coord, zap.NewNop(), false)
}

func do(t *testing.T, router *gin.Engine, method, path, actor string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set(actorHeader, actor)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)
	w := do(t, router, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestMissingActor(t *testing.T) {
	router := newTestRouter(t, "alice")
	w := do(t, router, http.MethodGet, "/api/feeds/news", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGroupLifecycle(t *testing.T) {
	router := newTestRouter(t, "alice", "bob", "carol")

	w := do(t, router, http.MethodPost, "/api/groups", "alice", gin.H{"name": "news", "is_public": true})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, router, http.MethodPost, "/api/groups", "alice", gin.H{"name": "news"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "duplicate", decode(t, w)["kind"])

	w = do(t, router, http.MethodPost, "/api/groups/news/followers", "bob", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, router, http.MethodPost, "/api/groups/news/followers", "bob", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_following", decode(t, w)["kind"])

	w = do(t, router, http.MethodPut, "/api/groups/news", "bob", gin.H{"command": "add_account", "username": "carol"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "not_authorized", decode(t, w)["kind"])

	w = do(t, router, http.MethodPut, "/api/groups/news", "alice", gin.H{"command": "add_account", "username": "carol"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, router, http.MethodGet, "/api/feeds/news", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var feed model.Feed
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &feed))
	assert.Equal(t, []model.UserID{"carol"}, feed.Accounts)

	w = do(t, router, http.MethodGet, "/api/groups", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{"news"}, decode(t, w)["groups"])

	w = do(t, router, http.MethodDelete, "/api/groups/news/followers", "bob", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, router, http.MethodGet, "/api/feeds/news", "bob", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodDelete, "/api/groups/news", "bob", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "not_owner", decode(t, w)["kind"])

	w = do(t, router, http.MethodDelete, "/api/groups/news", "alice", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, router, http.MethodGet, "/api/groups/news", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestApplyCommand_InvalidRequest(t *testing.T) {
	router := newTestRouter(t, "alice")
	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/api/groups", "alice", gin.H{"name": "news"}).Code)

	w := do(t, router, http.MethodPut, "/api/groups/news", "alice", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPut, "/api/groups/news", "alice", gin.H{"command": "rename", "username": "alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_argument", decode(t, w)["kind"])

	w = do(t, router, http.MethodPut, "/api/groups/news", "alice", gin.H{"command": "remove_moderator", "username": "alice"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invariant_violation", decode(t, w)["kind"])
}

func TestFeedSettings(t *testing.T) {
	router := newTestRouter(t, "alice")
	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/api/groups", "alice", gin.H{"name": "news"}).Code)

	w := do(t, router, http.MethodPut, "/api/feeds/news/sort", "alice", gin.H{"sort": "popularity"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPut, "/api/feeds/news/sort", "alice", gin.H{"sort": "reacts_per_view"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodPut, "/api/feeds/news/show-viewed", "alice", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPut, "/api/feeds/news/show-viewed", "alice", gin.H{"show": false})
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodGet, "/api/feeds/news", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "reacts_per_view", body["sort"])
	assert.Equal(t, false, body["show_viewed_posts"])
}

func TestRelations(t *testing.T) {
	router := newTestRouter(t, "alice", "bob")

	w := do(t, router, http.MethodPost, "/api/relations/friend/bob", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, router, http.MethodGet, "/api/users/bob/relation", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["friending"])
	assert.Equal(t, false, body["is_friendship"])

	w = do(t, router, http.MethodPost, "/api/relations/follow/nobody", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "user not found: nobody", decode(t, w)["error"])

	w = do(t, router, http.MethodPost, "/api/relations/enemy/bob", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/api/relations/follow_group/bob", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodDelete, "/api/relations/friend/bob", "alice", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestFriends(t *testing.T) {
	router := newTestRouter(t, "alice", "bob", "carol")

	w := do(t, router, http.MethodPost, "/api/relations/friend/bob", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = do(t, router, http.MethodPost, "/api/relations/friend/carol", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// only bob answered
	w = do(t, router, http.MethodGet, "/api/users/alice/friends", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["friends"])

	w = do(t, router, http.MethodPost, "/api/relations/friend/alice", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodGet, "/api/users/alice/friends", "carol", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{"bob"}, decode(t, w)["friends"])

	w = do(t, router, http.MethodGet, "/api/users/bob/friends", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{"alice"}, decode(t, w)["friends"])

	w = do(t, router, http.MethodGet, "/api/users/nobody/friends", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
