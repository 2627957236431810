package server

import (
	"pulsefeed/internal/models"
	"pulsefeed/internal/service"

	"github.com/gofiber/fiber/v2"
)

// Response messages of the feed API.
const (
	msgPostsFetched  = "Fetched posts successfully."
	msgPostCreated   = "Post created successfully!"
	msgPostFetched   = "Post fetched."
	msgPostUpdated   = "Post updated!"
	msgPostDeleted   = "Deleted post."
	msgStatusUpdated = "Status updated"
)

// postForm is the multipart (or JSON) body of create and update requests.
// Image holds an existing image reference; uploads arrive as the "image" file.
type postForm struct {
	Title   string `json:"title" form:"title"`
	Content string `json:"content" form:"content"`
	Image   string `json:"image" form:"image"`
}

// PostListResponse is one page of the feed.
type PostListResponse struct {
	Message    string            `json:"message"`
	Posts      []models.PostView `json:"posts"`
	TotalItems int64             `json:"totalItems"`
}

// PostResponse carries a single post.
type PostResponse struct {
	Message string                 `json:"message"`
	Post    models.PostView        `json:"post"`
	Creator *models.CreatorSummary `json:"creator,omitempty"`
}

// StatusResponse carries the caller's status line.
type StatusResponse struct {
	Message string `json:"message,omitempty"`
	Status  string `json:"status"`
}

// GetPosts handles GET /api/feed/posts
// @Summary List posts
// @Description Returns one page of the feed, newest first
// @Tags feed
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number (default 1)"
// @Success 200 {object} PostListResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /feed/posts [get]
func (s *Server) GetPosts(c *fiber.Ctx) error {
	result, err := s.postService.ListPosts(c.UserContext(), c.QueryInt("page", 1))
	if err != nil {
		return models.Respond(c, err)
	}

	return c.JSON(PostListResponse{
		Message:    msgPostsFetched,
		Posts:      models.PostViews(result.Posts),
		TotalItems: result.TotalItems,
	})
}

// CreatePost handles POST /api/feed/post
// @Summary Create post
// @Description Creates a post with an uploaded image and broadcasts it
// @Tags feed
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Param title formData string true "Title"
// @Param content formData string true "Content"
// @Param image formData file true "Image"
// @Success 201 {object} PostResponse
// @Failure 422 {object} models.ErrorResponse
// @Failure 429 {object} models.ErrorResponse
// @Router /feed/post [post]
func (s *Server) CreatePost(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}

	var form postForm
	if err := c.BodyParser(&form); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError(msgInvalidBody))
	}
	image, err := readUpload(c)
	if err != nil {
		return models.Respond(c, err)
	}

	post, err := s.postService.CreatePost(c.UserContext(), service.CreatePostInput{
		UserID:  userID,
		Title:   form.Title,
		Content: form.Content,
		Image:   image,
	})
	if err != nil {
		return models.Respond(c, err)
	}

	view := post.View()
	return c.Status(fiber.StatusCreated).JSON(PostResponse{
		Message: msgPostCreated,
		Post:    view,
		Creator: &view.Creator,
	})
}

// GetPost handles GET /api/feed/post/:postId
// @Summary Get post
// @Tags feed
// @Produce json
// @Security BearerAuth
// @Param postId path int true "Post ID"
// @Success 200 {object} PostResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /feed/post/{postId} [get]
func (s *Server) GetPost(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "postId")
	if err != nil {
		return nil
	}

	post, err := s.postService.GetPost(c.UserContext(), postID)
	if err != nil {
		return models.Respond(c, err)
	}

	return c.JSON(PostResponse{Message: msgPostFetched, Post: post.View()})
}

// UpdatePost handles PUT /api/feed/post/:postId
// @Summary Update post
// @Description Replaces title, content and optionally the image. Only the creator may update.
// @Tags feed
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Param postId path int true "Post ID"
// @Param title formData string true "Title"
// @Param content formData string true "Content"
// @Param image formData file false "New image, or the current image reference as a string"
// @Success 200 {object} PostResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Router /feed/post/{postId} [put]
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}
	postID, err := s.parseID(c, "postId")
	if err != nil {
		return nil
	}

	var form postForm
	if err := c.BodyParser(&form); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError(msgInvalidBody))
	}
	image, err := readUpload(c)
	if err != nil {
		return models.Respond(c, err)
	}

	post, err := s.postService.UpdatePost(c.UserContext(), service.UpdatePostInput{
		UserID:   userID,
		PostID:   postID,
		Title:    form.Title,
		Content:  form.Content,
		Image:    image,
		ImageURL: form.Image,
	})
	if err != nil {
		return models.Respond(c, err)
	}

	return c.JSON(PostResponse{Message: msgPostUpdated, Post: post.View()})
}

// DeletePost handles DELETE /api/feed/post/:postId
// @Summary Delete post
// @Tags feed
// @Produce json
// @Security BearerAuth
// @Param postId path int true "Post ID"
// @Success 200 {object} object{message=string}
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /feed/post/{postId} [delete]
func (s *Server) DeletePost(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}
	postID, err := s.parseID(c, "postId")
	if err != nil {
		return nil
	}

	if _, err := s.postService.DeletePost(c.UserContext(), service.DeletePostInput{
		UserID: userID,
		PostID: postID,
	}); err != nil {
		return models.Respond(c, err)
	}

	return c.JSON(fiber.Map{"message": msgPostDeleted})
}

// GetStatus handles GET /api/feed/status
// @Summary Get status
// @Tags feed
// @Produce json
// @Security BearerAuth
// @Success 200 {object} StatusResponse
// @Failure 403 {object} models.ErrorResponse
// @Router /feed/status [get]
func (s *Server) GetStatus(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}

	status, err := s.userService.GetStatus(c.UserContext(), userID)
	if err != nil {
		return models.Respond(c, err)
	}

	return c.JSON(StatusResponse{Status: status})
}

// UpdateStatus handles PATCH /api/feed/status
// @Summary Update status
// @Tags feed
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.StatusInput true "New status"
// @Success 200 {object} StatusResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Router /feed/status [patch]
func (s *Server) UpdateStatus(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}

	var req service.StatusInput
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError(msgInvalidBody))
	}

	status, err := s.userService.UpdateStatus(c.UserContext(), userID, req.Status)
	if err != nil {
		return models.Respond(c, err)
	}

	return c.JSON(StatusResponse{Message: msgStatusUpdated, Status: status})
}
