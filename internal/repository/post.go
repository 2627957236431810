package repository

import (
	"context"
	"errors"

	"pulsefeed/internal/models"

	"gorm.io/gorm"
)

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Count(ctx context.Context) (int64, error)
	List(ctx context.Context, limit, offset int) ([]*models.Post, error)
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	// CreateWithOwner inserts the post and appends it to its creator's post
	// list in one transaction.
	CreateWithOwner(ctx context.Context, post *models.Post) error
	Update(ctx context.Context, post *models.Post) error
	// DeleteWithOwner removes the post from its creator's post list and
	// deletes it in one transaction.
	DeleteWithOwner(ctx context.Context, post *models.Post) error
}

// postRepository implements PostRepository
type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Post{}).Count(&n).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return n, nil
}

func (r *postRepository) List(ctx context.Context, limit, offset int) ([]*models.Post, error) {
	var posts []*models.Post
	err := r.db.WithContext(ctx).
		Preload("Creator").
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).Preload("Creator").First(&post, id).Error; err != nil {
		return nil, classify(err, "Post", id)
	}
	return &post, nil
}

func (r *postRepository) CreateWithOwner(ctx context.Context, post *models.Post) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owner models.User
		if err := tx.First(&owner, post.CreatorID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewInternalMessageError("No user found", err)
			}
			return models.NewInternalError(err)
		}

		post.Creator = nil
		if err := tx.Create(post).Error; err != nil {
			return models.NewInternalError(err)
		}
		if err := tx.Model(&owner).Association("Posts").Append(post); err != nil {
			return models.NewInternalError(err)
		}

		post.Creator = &owner
		return nil
	})
}

func (r *postRepository) Update(ctx context.Context, post *models.Post) error {
	res := r.db.WithContext(ctx).
		Model(post).
		Select("Title", "Content", "ImageURL", "UpdatedAt").
		Updates(post)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Post", post.ID)
	}
	return nil
}

func (r *postRepository) DeleteWithOwner(ctx context.Context, post *models.Post) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owner := &models.User{ID: post.CreatorID}
		if err := tx.Model(owner).Association("Posts").Delete(&models.Post{ID: post.ID}); err != nil {
			return models.NewInternalError(err)
		}

		res := tx.Delete(&models.Post{}, post.ID)
		if res.Error != nil {
			return models.NewInternalError(res.Error)
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError("Post", post.ID)
		}
		return nil
	})
}
