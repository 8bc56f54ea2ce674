package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/piazza/middleware"
	"github.com/cppla/piazza/models"
	"github.com/cppla/piazza/services"
	"github.com/cppla/piazza/utils"
)

const listCachePrefix = "cache:posts:"

// PostController exposes the post lifecycle and listing queries over HTTP.
type PostController struct {
	lifecycle *services.LifecycleService
	query     *services.QueryService
	clock     services.Clock
	cacheTTL  time.Duration
}

// NewPostController creates a new PostController instance. cacheTTL caps how
// long listings stay in Redis; zero disables listing cache writes.
func NewPostController(lifecycle *services.LifecycleService, query *services.QueryService, clock services.Clock, cacheTTL time.Duration) *PostController {
	if clock == nil {
		clock = services.SystemClock{}
	}
	return &PostController{lifecycle: lifecycle, query: query, clock: clock, cacheTTL: cacheTTL}
}

// CreatePost writes a new post for the authenticated user.
func (p *PostController) CreatePost(ctx *gin.Context) {
	var req struct {
		Title string `json:"title" binding:"required,min=1,max=255"`
		Topic string `json:"topic" binding:"required"`
		Text  string `json:"text" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}
	title := utils.Sanitize(req.Title)
	text := utils.Sanitize(req.Text)
	if title == "" || text == "" {
		utils.Error(ctx, http.StatusBadRequest, 40021, "title and text cannot be empty")
		return
	}
	user, ok := middleware.CurrentUser(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	post, err := p.lifecycle.CreatePost(ctx.Request.Context(), user, title, strings.TrimSpace(req.Topic), text)
	if err != nil {
		p.fail(ctx, err)
		return
	}
	p.invalidate(ctx)
	utils.Success(ctx, gin.H{"post": post})
}

// GetPost returns a post after refreshing its expiry status.
func (p *PostController) GetPost(ctx *gin.Context) {
	post, err := p.lifecycle.RefreshAndGet(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		p.fail(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"post": post})
}

// ListPosts returns every post, newest first.
func (p *PostController) ListPosts(ctx *gin.Context) {
	p.respondList(ctx, listCachePrefix+"list:all", "No posts here...", p.query.ListAll)
}

// ListTopicPosts returns the posts of one topic.
func (p *PostController) ListTopicPosts(ctx *gin.Context) {
	topic := ctx.Param("topic")
	p.respondList(ctx, listCachePrefix+"list:topic="+topic, "No posts here...", func(c context.Context) ([]models.Post, error) {
		return p.query.ListByTopic(c, topic)
	})
}

// ListExpiredTopicPosts returns the expired posts of one topic. Not cached:
// any Live post of the topic may join the result at its expiry instant.
func (p *PostController) ListExpiredTopicPosts(ctx *gin.Context) {
	topic := ctx.Param("topic")
	p.respondList(ctx, "", "No expired posts here...", func(c context.Context) ([]models.Post, error) {
		return p.query.ListExpiredByTopic(c, topic)
	})
}

// ListUserPosts returns the posts written by a user.
func (p *PostController) ListUserPosts(ctx *gin.Context) {
	username := strings.TrimSpace(ctx.Param("username"))
	p.respondList(ctx, listCachePrefix+"list:user="+username, "No posts here...", func(c context.Context) ([]models.Post, error) {
		return p.query.ListByAuthor(c, username)
	})
}

// TopTopicPost returns the post of a topic with the most likes and dislikes.
func (p *PostController) TopTopicPost(ctx *gin.Context) {
	topic := ctx.Param("topic")
	key := listCachePrefix + "top:topic=" + topic
	if b, ok := utils.CacheGetBytes(ctx.Request.Context(), key); ok {
		ctx.Data(http.StatusOK, "application/json; charset=utf-8", b)
		return
	}
	post, err := p.query.TopPostByTopic(ctx.Request.Context(), topic)
	if err != nil {
		p.fail(ctx, err)
		return
	}
	var resp utils.JSONResponse
	if post == nil {
		resp = utils.JSONResponse{Code: 0, Message: "No post here yet..."}
	} else {
		resp = utils.JSONResponse{Code: 0, Message: "success", Data: gin.H{"post": post}}
		utils.CacheSetJSON(ctx.Request.Context(), key, resp, p.listTTL([]models.Post{*post}))
	}
	ctx.JSON(http.StatusOK, resp)
}

// LikePost records a like by the authenticated user.
func (p *PostController) LikePost(ctx *gin.Context) {
	p.vote(ctx, services.VoteLike)
}

// DislikePost records a dislike by the authenticated user.
func (p *PostController) DislikePost(ctx *gin.Context) {
	p.vote(ctx, services.VoteDislike)
}

func (p *PostController) vote(ctx *gin.Context, action services.VoteAction) {
	user, ok := middleware.CurrentUser(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	post, err := p.lifecycle.ApplyVote(ctx.Request.Context(), ctx.Param("id"), user, action)
	if err != nil {
		p.fail(ctx, err)
		return
	}
	p.invalidate(ctx)
	utils.Success(ctx, gin.H{"post": post})
}

// CreateComment adds a comment by the authenticated user to a Live post.
func (p *PostController) CreateComment(ctx *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40024, "invalid request payload")
		return
	}
	text := utils.Sanitize(req.Text)
	if text == "" {
		utils.Error(ctx, http.StatusBadRequest, 40025, "text cannot be empty")
		return
	}
	user, ok := middleware.CurrentUser(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	comment, err := p.lifecycle.AddComment(ctx.Request.Context(), ctx.Param("id"), user, text)
	if err != nil {
		p.fail(ctx, err)
		return
	}
	p.invalidate(ctx)
	utils.Success(ctx, gin.H{"comment": comment})
}

// DeleteComment removes the authenticated user's own comment.
func (p *PostController) DeleteComment(ctx *gin.Context) {
	cid := strings.TrimSpace(ctx.Param("commentId"))
	if cid == "" {
		utils.Error(ctx, http.StatusBadRequest, 40070, "missing comment id")
		return
	}
	user, ok := middleware.CurrentUser(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40120, "unauthorized")
		return
	}

	res, err := p.lifecycle.DeleteComment(ctx.Request.Context(), cid, user)
	if err != nil {
		p.fail(ctx, err)
		return
	}
	if res.ParentRemoved {
		utils.Notice(ctx, "Sorry! Either the post or the comment has been removed...")
		return
	}
	p.invalidate(ctx)
	utils.Success(ctx, gin.H{"post": res.Post})
}

// ReconcileComments lets a post's author repair its embedded comment list.
func (p *PostController) ReconcileComments(ctx *gin.Context) {
	user, ok := middleware.CurrentUser(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	post, err := p.lifecycle.RefreshAndGet(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		p.fail(ctx, err)
		return
	}
	if post.Author != user {
		utils.Error(ctx, http.StatusForbidden, 40330, "only the author can reconcile a post")
		return
	}
	report, err := p.lifecycle.ReconcileComments(ctx.Request.Context(), post.ID)
	if err != nil {
		p.fail(ctx, err)
		return
	}
	p.invalidate(ctx)
	utils.Success(ctx, gin.H{"post": report.Post, "added": report.Added, "dropped": report.Dropped})
}

// respondList serves a listing, through the Redis cache when key is non-empty.
// Empty listings answer with an informational message instead of data.
func (p *PostController) respondList(ctx *gin.Context, key, emptyMessage string, load func(context.Context) ([]models.Post, error)) {
	reqCtx := ctx.Request.Context()
	if key != "" {
		if b, ok := utils.CacheGetBytes(reqCtx, key); ok {
			ctx.Data(http.StatusOK, "application/json; charset=utf-8", b)
			return
		}
	}
	posts, err := load(reqCtx)
	if err != nil {
		p.fail(ctx, err)
		return
	}
	resp := utils.JSONResponse{Code: 0, Message: emptyMessage}
	if len(posts) > 0 {
		resp = utils.JSONResponse{Code: 0, Message: "success", Data: gin.H{"items": posts, "total": len(posts)}}
	}
	if key != "" {
		utils.CacheSetJSON(reqCtx, key, resp, p.listTTL(posts))
	}
	ctx.JSON(http.StatusOK, resp)
}

// listTTL caps the cache lifetime at the next expiry among the Live posts so
// a cached listing never reports a stale status.
func (p *PostController) listTTL(posts []models.Post) time.Duration {
	ttl := p.cacheTTL
	now := p.clock.Now()
	for i := range posts {
		if posts[i].Status != models.StatusLive {
			continue
		}
		if d := posts[i].ExpiresAt.Sub(now); d < ttl {
			ttl = d
		}
	}
	return ttl
}

func (p *PostController) invalidate(ctx *gin.Context) {
	utils.InvalidateByPrefix(ctx.Request.Context(), listCachePrefix)
}

// fail maps service errors onto the response envelope.
func (p *PostController) fail(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidTopic):
		utils.Error(ctx, http.StatusBadRequest, 40022, fmt.Sprintf("invalid topic, expected one of %v", models.Topics))
	case errors.Is(err, services.ErrInvalidVote):
		utils.Error(ctx, http.StatusBadRequest, 40023, "invalid vote action")
	case errors.Is(err, services.ErrAuthorNotFound):
		utils.Error(ctx, http.StatusNotFound, 40410, "User not found!")
	case errors.Is(err, services.ErrNotFound):
		utils.Error(ctx, http.StatusNotFound, 40401, err.Error())
	case errors.Is(err, services.ErrPostExpired):
		utils.Error(ctx, http.StatusForbidden, 40310, "Sorry, this post has expired...")
	case errors.Is(err, services.ErrSelfEngagement):
		utils.Error(ctx, http.StatusForbidden, 40311, "Sorry, you cannot like/dislike your own post!")
	case errors.Is(err, services.ErrForbidden):
		utils.Error(ctx, http.StatusForbidden, 40312, "You can only delete your own comment!")
	case errors.Is(err, services.ErrConflict):
		utils.Error(ctx, http.StatusConflict, 40901, "post is busy, please retry")
	default:
		_ = ctx.Error(err)
		utils.Error(ctx, http.StatusInternalServerError, 50020, "storage unavailable")
	}
}
