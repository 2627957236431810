package service

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"pulsefeed/internal/middleware"
	"pulsefeed/internal/models"
	"pulsefeed/internal/observability"
	"pulsefeed/internal/repository"
)

const (
	DefaultPostsPerPage = 2

	MsgNoImage        = "No image provided."
	MsgNotAuthorized  = "Not authorized!"
	MsgImageMismatch  = "Image reference does not match the post."
	MsgNoImagePicked  = "No file picked."
	imageFieldName    = "image"
	defaultPageNumber = 1
)

// Publisher is the publish side of the broadcast channel.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// ImageStore persists uploaded images and returns their public reference.
type ImageStore interface {
	Save(ctx context.Context, content []byte) (string, error)
	Delete(ctx context.Context, ref string) error
}

type PostService struct {
	posts     repository.PostRepository
	images    ImageStore
	publisher Publisher
	perPage   int
}

type ListPostsResult struct {
	Posts      []*models.Post
	TotalItems int64
	Page       int
	PerPage    int
}

type CreatePostInput struct {
	UserID  uint
	Title   string
	Content string
	Image   []byte
}

type UpdatePostInput struct {
	UserID  uint
	PostID  uint
	Title   string
	Content string
	// Image is a new upload; when empty ImageURL must name the current image.
	Image    []byte
	ImageURL string
}

type DeletePostInput struct {
	UserID uint
	PostID uint
}

func NewPostService(posts repository.PostRepository, images ImageStore, publisher Publisher, perPage int) *PostService {
	if perPage <= 0 {
		perPage = DefaultPostsPerPage
	}
	return &PostService{
		posts:     posts,
		images:    images,
		publisher: publisher,
		perPage:   perPage,
	}
}

// ListPosts returns one page of the feed, newest first. Pages below 1 clamp to 1.
func (s *PostService) ListPosts(ctx context.Context, page int) (*ListPostsResult, error) {
	if page < defaultPageNumber {
		page = defaultPageNumber
	}

	total, err := s.posts.Count(ctx)
	if err != nil {
		return nil, err
	}
	res := &ListPostsResult{Posts: []*models.Post{}, TotalItems: total, Page: page, PerPage: s.perPage}
	// Pages past the end are empty; this also keeps the offset from overflowing.
	if page-1 > math.MaxInt/s.perPage || int64((page-1)*s.perPage) >= total {
		return res, nil
	}
	posts, err := s.posts.List(ctx, s.perPage, (page-1)*s.perPage)
	if err != nil {
		return nil, err
	}
	return &ListPostsResult{Posts: posts, TotalItems: total, Page: page, PerPage: s.perPage}, nil
}

func (s *PostService) GetPost(ctx context.Context, id uint) (*models.Post, error) {
	return s.posts.GetByID(ctx, id)
}

func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	fields := PostFields{Title: in.Title, Content: in.Content}.Normalize()
	if err := fields.Validate(); err != nil {
		return nil, validationFailed(err)
	}
	if len(in.Image) == 0 {
		return nil, models.NewFieldValidationError(MsgNoImage, map[string]string{imageFieldName: MsgNoImage})
	}

	imageURL, err := s.images.Save(ctx, in.Image)
	if err != nil {
		return nil, err
	}

	post := &models.Post{
		Title:     fields.Title,
		Content:   fields.Content,
		ImageURL:  imageURL,
		CreatorID: in.UserID,
	}
	if err := s.posts.CreateWithOwner(ctx, post); err != nil {
		s.discardImage(ctx, imageURL)
		return nil, err
	}

	s.publish(ctx, models.PostCreated, post)
	return post, nil
}

func (s *PostService) UpdatePost(ctx context.Context, in UpdatePostInput) (*models.Post, error) {
	post, err := s.posts.GetByID(ctx, in.PostID)
	if err != nil {
		return nil, err
	}
	if !post.IsOwnedBy(in.UserID) {
		return nil, models.NewForbiddenError(MsgNotAuthorized)
	}

	fields := PostFields{Title: in.Title, Content: in.Content}.Normalize()
	if err := fields.Validate(); err != nil {
		return nil, validationFailed(err)
	}

	previousImage := post.ImageURL
	imageURL := strings.TrimSpace(in.ImageURL)
	uploaded := false
	switch {
	case len(in.Image) > 0:
		imageURL, err = s.images.Save(ctx, in.Image)
		if err != nil {
			return nil, err
		}
		uploaded = true
	case imageURL == "":
		return nil, models.NewFieldValidationError(MsgNoImagePicked, map[string]string{imageFieldName: MsgNoImagePicked})
	case imageURL != previousImage:
		return nil, models.NewFieldValidationError(MsgImageMismatch, map[string]string{imageFieldName: MsgImageMismatch})
	}

	post.Title = fields.Title
	post.Content = fields.Content
	post.ImageURL = imageURL
	if err := s.posts.Update(ctx, post); err != nil {
		if uploaded {
			s.discardImage(ctx, imageURL)
		}
		return nil, err
	}

	if imageURL != previousImage {
		s.discardImage(ctx, previousImage)
	}
	s.publish(ctx, models.PostUpdated, post)
	return post, nil
}

// DeletePost removes the post and returns its state prior to deletion.
func (s *PostService) DeletePost(ctx context.Context, in DeletePostInput) (*models.Post, error) {
	post, err := s.posts.GetByID(ctx, in.PostID)
	if err != nil {
		return nil, err
	}
	if !post.IsOwnedBy(in.UserID) {
		return nil, models.NewForbiddenError(MsgNotAuthorized)
	}

	if err := s.posts.DeleteWithOwner(ctx, post); err != nil {
		return nil, err
	}

	s.discardImage(ctx, post.ImageURL)
	s.publish(ctx, models.PostDeleted, post)
	return post, nil
}

// publish is best-effort: the mutation is already persisted.
func (s *PostService) publish(ctx context.Context, action models.PostAction, post *models.Post) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, models.TopicPosts, models.NewPostEvent(action, post)); err != nil {
		middleware.Logger.WarnContext(ctx, "Failed to publish post event",
			slog.String("action", string(action)),
			slog.Uint64("post_id", uint64(post.ID)),
			slog.String("error", err.Error()),
		)
	}
}

func (s *PostService) discardImage(ctx context.Context, ref string) {
	if ref == "" {
		return
	}
	if err := s.images.Delete(ctx, ref); err != nil {
		observability.ImageCleanupFailures.Inc()
		middleware.Logger.WarnContext(ctx, "Failed to remove image",
			slog.String("image", ref),
			slog.String("error", err.Error()),
		)
	}
}
