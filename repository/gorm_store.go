package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/piazza/models"
)

type gormStore struct {
	db   *gorm.DB
	inTx bool
}

// NewGormStore returns a Store backed by a gorm connection.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Posts() PostRepository       { return &gormPosts{db: s.db, lock: s.inTx} }
func (s *gormStore) Comments() CommentRepository { return &gormComments{db: s.db} }
func (s *gormStore) Users() UserDirectory        { return &gormUsers{db: s.db} }

func (s *gormStore) Atomic(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx, inTx: true})
	})
}

type gormPosts struct {
	db   *gorm.DB
	lock bool
}

func (r *gormPosts) Create(ctx context.Context, post *models.Post) error {
	return r.db.WithContext(ctx).Create(post).Error
}

func (r *gormPosts) Get(ctx context.Context, id string) (*models.Post, error) {
	q := r.db.WithContext(ctx)
	// SQLite has no row locks; its transactions already serialize writers.
	if r.lock && r.db.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var post models.Post
	if err := q.Where("id = ?", id).First(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &post, nil
}

func (r *gormPosts) List(ctx context.Context, filter PostFilter) ([]models.Post, error) {
	q := r.db.WithContext(ctx).Order("created_at DESC").Order("id ASC")
	if filter.Topic != "" {
		q = q.Where("topic = ?", filter.Topic)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Author != "" {
		q = q.Where("author = ?", filter.Author)
	}
	var posts []models.Post
	if err := q.Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

func (r *gormPosts) CompareAndSwap(ctx context.Context, next *models.Post, expectedVersion int64) (bool, error) {
	row := models.Post{
		Likes:        next.Likes,
		Dislikes:     next.Dislikes,
		LikeCount:    next.LikeCount,
		DislikeCount: next.DislikeCount,
		Comments:     next.Comments,
		Status:       next.Status,
		Version:      expectedVersion + 1,
	}
	res := r.db.WithContext(ctx).Model(&models.Post{}).
		Where("id = ? AND version = ?", next.ID, expectedVersion).
		Select("likes", "dislikes", "like_count", "dislike_count", "comments", "status", "version").
		Updates(&row)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	next.Version = expectedVersion + 1
	return true, nil
}

func (r *gormPosts) ExpireIfDue(ctx context.Context, id string, now time.Time) (bool, error) {
	res := r.expireQuery(ctx, now).Where("id = ?", id).Updates(expireUpdate())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormPosts) ExpireAllDue(ctx context.Context, now time.Time) (int64, error) {
	res := r.expireQuery(ctx, now).Updates(expireUpdate())
	return res.RowsAffected, res.Error
}

func (r *gormPosts) expireQuery(ctx context.Context, now time.Time) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Post{}).
		Where("status = ? AND expires_at <= ?", models.StatusLive, now)
}

func expireUpdate() map[string]interface{} {
	return map[string]interface{}{
		"status":  models.StatusExpired,
		"version": gorm.Expr("version + 1"),
	}
}

type gormComments struct {
	db *gorm.DB
}

func (r *gormComments) Create(ctx context.Context, comment *models.Comment) error {
	return r.db.WithContext(ctx).Create(comment).Error
}

func (r *gormComments) Get(ctx context.Context, id string) (*models.Comment, error) {
	var c models.Comment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *gormComments) ListByPost(ctx context.Context, postID string) ([]models.Comment, error) {
	var items []models.Comment
	err := r.db.WithContext(ctx).Where("post_id = ?", postID).
		Order("created_at ASC").Order("id ASC").Find(&items).Error
	return items, err
}

func (r *gormComments) DeleteByAuthor(ctx context.Context, id, author string) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ? AND author = ?", id, author).Delete(&models.Comment{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

type gormUsers struct {
	db *gorm.DB
}

func (r *gormUsers) Exists(ctx context.Context, username string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}
