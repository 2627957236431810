package server

import (
	"errors"
	"io"
	"strings"
	"unicode"

	"pulsefeed/internal/middleware"
	"pulsefeed/internal/models"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper.  Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

const (
	uploadField       = "image"
	msgInvalidBody    = "Invalid request body"
	msgUnreadableFile = "Unable to read uploaded file"
)

// parseID extracts a route parameter by name as a positive uint.
// On failure it writes a 400 JSON response and returns errResponseWritten.
// Callers should check: if err != nil { return nil }
// The error message is derived from the parameter name (e.g. "id" -> "Invalid ID",
// "postId" -> "Invalid post ID").
func (s *Server) parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid "+humanizeParam(param)))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// humanizeParam converts a route param name into a human-readable label.
func humanizeParam(param string) string {
	if param == "id" {
		return "ID"
	}
	if strings.HasSuffix(param, "Id") {
		words := splitCamel(param[:len(param)-2])
		return strings.ToLower(strings.Join(words, " ")) + " ID"
	}
	return param
}

// splitCamel splits a camelCase string into words.
func splitCamel(s string) []string {
	var words []string
	start := 0
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			words = append(words, s[start:i])
			start = i
		}
	}
	words = append(words, s[start:])
	return words
}

// currentUserID reads the id set by AuthRequired. Routes using it are always
// behind that middleware, so a missing id is an internal fault.
func (s *Server) currentUserID(c *fiber.Ctx) (uint, error) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		_ = models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Not authenticated."))
		return 0, errResponseWritten
	}
	return userID, nil
}

// readUpload returns the bytes of the multipart image file, or nil when the
// request carries none. Size and type checks belong to the image store.
func readUpload(c *fiber.Ctx) ([]byte, error) {
	file, err := c.FormFile(uploadField)
	if err != nil {
		// Missing file, or the request was not multipart at all.
		return nil, nil
	}

	src, err := file.Open()
	if err != nil {
		return nil, models.NewValidationError(msgUnreadableFile)
	}
	defer func() { _ = src.Close() }()

	content, err := io.ReadAll(src)
	if err != nil {
		return nil, models.NewValidationError(msgUnreadableFile)
	}
	return content, nil
}
