package server

import (
	"pulsefeed/internal/middleware"
	"pulsefeed/internal/models"
	"pulsefeed/internal/service"

	"github.com/gofiber/fiber/v2"
)

const (
	msgUserCreated = "User created!"
	msgLoggedOut   = "Logged out"
)

// LoginRequest is the login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignupResponse is returned after registration.
type SignupResponse struct {
	Message string `json:"message"`
	UserID  uint   `json:"userId"`
}

// LoginResponse carries the bearer token.
type LoginResponse struct {
	Token  string `json:"token"`
	UserID uint   `json:"userId"`
}

// Signup handles PUT /api/auth/signup
// @Summary User signup
// @Description Register a new user account
// @Tags auth
// @Accept json
// @Produce json
// @Param request body service.SignupInput true "Signup request"
// @Success 201 {object} SignupResponse
// @Failure 422 {object} models.ErrorResponse
// @Failure 429 {object} models.ErrorResponse
// @Router /auth/signup [put]
func (s *Server) Signup(c *fiber.Ctx) error {
	var req service.SignupInput
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError(msgInvalidBody))
	}

	user, err := s.authService.Signup(c.UserContext(), req)
	if err != nil {
		return models.Respond(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(SignupResponse{Message: msgUserCreated, UserID: user.ID})
}

// Login handles POST /api/auth/login
// @Summary User login
// @Description Authenticate user and return JWT token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login credentials"
// @Success 200 {object} LoginResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 429 {object} models.ErrorResponse
// @Router /auth/login [post]
func (s *Server) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError(msgInvalidBody))
	}

	result, err := s.authService.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return models.Respond(c, err)
	}

	return c.JSON(LoginResponse{Token: result.Token, UserID: result.User.ID})
}

// Logout handles POST /api/auth/logout
// @Summary User logout
// @Description Revokes the presented token until it expires
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{message=string}
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/logout [post]
func (s *Server) Logout(c *fiber.Ctx) error {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError("Not authenticated."))
	}

	if err := s.authService.Logout(c.UserContext(), identity); err != nil {
		return models.Respond(c, err)
	}

	return c.JSON(fiber.Map{"message": msgLoggedOut})
}
