package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cppla/piazza/config"
	"github.com/cppla/piazza/controllers"
	"github.com/cppla/piazza/middleware"
	"github.com/cppla/piazza/repository"
	"github.com/cppla/piazza/services"
	"github.com/cppla/piazza/utils"
)

const testSecret = "router-test-secret"

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type postView struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Topic        string `json:"topic"`
	LikeCount    int    `json:"like_count"`
	DislikeCount int    `json:"dislike_count"`
	Status       string `json:"expiry_status"`
	Comments     []struct {
		CommentID string `json:"comment_id"`
		Username  string `json:"username"`
		Text      string `json:"text"`
	} `json:"comments"`
}

type harness struct {
	t      *testing.T
	engine *gin.Engine
	clock  *services.ManualClock
	tokens map[string]string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := repository.NewMemoryStore("alice", "bob", "carol")
	clock := services.NewManualClock(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	lifecycle := services.NewLifecycleService(store, services.Options{Clock: clock})
	query := services.NewQueryService(store, lifecycle)
	cfg := config.AppConfig{JWTSecret: testSecret, GinMode: "test", RateLimitPerMinute: 10000}
	engine := SetupRouter(cfg, controllers.NewPostController(lifecycle, query, clock, time.Minute))

	h := &harness{t: t, engine: engine, clock: clock, tokens: map[string]string{}}
	for _, u := range []string{"alice", "bob", "carol", "mallory"} {
		tok, err := utils.GenerateToken(testSecret, u, time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		h.tokens[u] = tok
	}
	return h
}

func (h *harness) do(user, method, path string, body interface{}) (int, apiResponse) {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			h.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+h.tokens[user])
	}
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	var resp apiResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		h.t.Fatalf("%s %s: bad body %q: %v", method, path, w.Body.String(), err)
	}
	return w.Code, resp
}

func (h *harness) post(resp apiResponse) postView {
	h.t.Helper()
	var wrapper struct {
		Post postView `json:"post"`
	}
	if err := json.Unmarshal(resp.Data, &wrapper); err != nil {
		h.t.Fatalf("decode post: %v (%s)", err, resp.Data)
	}
	return wrapper.Post
}

func TestPostLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t)

	code, resp := h.do("alice", http.MethodPost, "/api/v1/posts", gin.H{"title": "Hello", "topic": "Tech", "text": "first <b>post</b>"})
	if code != http.StatusOK {
		t.Fatalf("create = %d %s", code, resp.Message)
	}
	p := h.post(resp)
	if p.Username != "alice" || p.Status != "Live" {
		t.Fatalf("created post = %+v", p)
	}
	base := "/api/v1/posts/" + p.ID

	steps := []struct {
		user, action    string
		likes, dislikes int
	}{
		{"bob", "like", 1, 0},
		{"carol", "dislike", 1, 1},
		{"bob", "dislike", 0, 2},
	}
	for _, s := range steps {
		code, resp = h.do(s.user, http.MethodPatch, base+"/"+s.action, nil)
		if code != http.StatusOK {
			t.Fatalf("%s %s = %d %s", s.user, s.action, code, resp.Message)
		}
		got := h.post(resp)
		if got.LikeCount != s.likes || got.DislikeCount != s.dislikes {
			t.Fatalf("%s %s: counts %d/%d", s.user, s.action, got.LikeCount, got.DislikeCount)
		}
	}

	code, resp = h.do("alice", http.MethodPatch, base+"/like", nil)
	if code != http.StatusForbidden || resp.Code != 40311 {
		t.Fatalf("self like = %d %d", code, resp.Code)
	}

	code, resp = h.do("bob", http.MethodPost, base+"/comments", gin.H{"text": "nice post"})
	if code != http.StatusOK {
		t.Fatalf("comment = %d %s", code, resp.Message)
	}
	var created struct {
		Comment struct {
			ID string `json:"id"`
		} `json:"comment"`
	}
	if err := json.Unmarshal(resp.Data, &created); err != nil {
		t.Fatal(err)
	}

	_, resp = h.do("bob", http.MethodGet, base, nil)
	if got := h.post(resp); len(got.Comments) != 1 || got.Comments[0].CommentID != created.Comment.ID {
		t.Fatalf("comments after add = %+v", got.Comments)
	}

	code, resp = h.do("carol", http.MethodDelete, "/api/v1/comments/"+created.Comment.ID, nil)
	if code != http.StatusForbidden || resp.Code != 40312 {
		t.Fatalf("foreign delete = %d %d", code, resp.Code)
	}
	code, resp = h.do("bob", http.MethodDelete, "/api/v1/comments/"+created.Comment.ID, nil)
	if code != http.StatusOK || len(h.post(resp).Comments) != 0 {
		t.Fatalf("own delete = %d %s", code, resp.Message)
	}

	h.clock.Advance(500 * time.Minute)
	_, resp = h.do("bob", http.MethodGet, base, nil)
	if got := h.post(resp); got.Status != "Expired" {
		t.Fatalf("status after lifespan = %s", got.Status)
	}
	code, resp = h.do("bob", http.MethodPatch, base+"/like", nil)
	if code != http.StatusForbidden || resp.Code != 40310 {
		t.Fatalf("like expired = %d %d", code, resp.Code)
	}
	code, resp = h.do("carol", http.MethodPost, base+"/comments", gin.H{"text": "too late"})
	if code != http.StatusForbidden || resp.Code != 40310 {
		t.Fatalf("comment expired = %d %d", code, resp.Code)
	}

	code, resp = h.do("carol", http.MethodGet, "/api/v1/topics/Tech/expired", nil)
	if code != http.StatusOK || resp.Message != "success" {
		t.Fatalf("expired listing = %d %s", code, resp.Message)
	}
}

func TestListingsAndErrorsOverHTTP(t *testing.T) {
	h := newHarness(t)

	code, resp := h.do("alice", http.MethodGet, "/api/v1/topics/Sports/posts", nil)
	if code != http.StatusOK || resp.Message != "No posts here..." {
		t.Fatalf("empty topic = %d %q", code, resp.Message)
	}
	code, resp = h.do("alice", http.MethodGet, "/api/v1/topics/Sports/top", nil)
	if code != http.StatusOK || resp.Message != "No post here yet..." {
		t.Fatalf("empty top = %d %q", code, resp.Message)
	}
	code, resp = h.do("alice", http.MethodGet, "/api/v1/topics/Cooking/posts", nil)
	if code != http.StatusBadRequest || resp.Code != 40022 {
		t.Fatalf("bad topic = %d %d", code, resp.Code)
	}
	code, resp = h.do("alice", http.MethodPost, "/api/v1/posts", gin.H{"title": "x", "topic": "Cooking", "text": "y"})
	if code != http.StatusBadRequest || resp.Code != 40022 {
		t.Fatalf("create bad topic = %d %d", code, resp.Code)
	}
	code, resp = h.do("mallory", http.MethodPost, "/api/v1/posts", gin.H{"title": "x", "topic": "Tech", "text": "y"})
	if code != http.StatusNotFound || resp.Code != 40410 {
		t.Fatalf("unknown author = %d %d", code, resp.Code)
	}
	code, _ = h.do("", http.MethodGet, "/api/v1/posts", nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("anonymous = %d", code)
	}
	code, resp = h.do("bob", http.MethodGet, "/api/v1/posts/does-not-exist", nil)
	if code != http.StatusNotFound {
		t.Fatalf("missing post = %d %s", code, resp.Message)
	}

	_, resp = h.do("alice", http.MethodPost, "/api/v1/posts", gin.H{"title": "a", "topic": "Sports", "text": "a"})
	first := h.post(resp)
	_, resp = h.do("bob", http.MethodPost, "/api/v1/posts", gin.H{"title": "b", "topic": "Sports", "text": "b"})
	second := h.post(resp)
	h.do("carol", http.MethodPatch, "/api/v1/posts/"+second.ID+"/like", nil)

	code, resp = h.do("carol", http.MethodGet, "/api/v1/topics/Sports/top", nil)
	if code != http.StatusOK || h.post(resp).ID != second.ID {
		t.Fatalf("top = %d %s", code, resp.Data)
	}

	code, resp = h.do("carol", http.MethodGet, "/api/v1/users/alice/posts", nil)
	var list struct {
		Items []postView `json:"items"`
		Total int        `json:"total"`
	}
	if err := json.Unmarshal(resp.Data, &list); err != nil || code != http.StatusOK {
		t.Fatalf("user posts = %d %v", code, err)
	}
	if list.Total != 1 || list.Items[0].ID != first.ID {
		t.Fatalf("user posts = %+v", list)
	}

	code, resp = h.do("bob", http.MethodPost, "/api/v1/posts/"+first.ID+"/reconcile", nil)
	if code != http.StatusForbidden {
		t.Fatalf("reconcile by non-author = %d", code)
	}
	code, resp = h.do("alice", http.MethodPost, "/api/v1/posts/"+first.ID+"/reconcile", nil)
	if code != http.StatusOK {
		t.Fatalf("reconcile = %d %s", code, resp.Message)
	}
}

func TestAccessLogTagsUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)
	r := gin.New()
	r.Use(accessLog(zap.New(core)))
	r.GET("/who", func(c *gin.Context) {
		c.Set(middleware.ContextUsernameKey, "bob")
		c.Status(http.StatusNoContent)
	})
	r.GET("/anon", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, path := range []string{"/who", "/anon"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("log entries = %d, want 2", len(entries))
	}
	first := entries[0].ContextMap()
	if first["user"] != "bob" || first["path"] != "/who" || first["status"] != int64(http.StatusNoContent) {
		t.Fatalf("access log = %v", first)
	}
	if _, ok := entries[1].ContextMap()["user"]; ok {
		t.Fatalf("anonymous request tagged with a user: %v", entries[1].ContextMap())
	}
}
