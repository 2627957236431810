package server

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"pulsefeed/internal/config"
	"pulsefeed/internal/database"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Port:                  "0",
		Env:                   "test",
		JWTSecret:             "test-secret-key-12345678901234567890123456789012",
		JWTIssuer:             "pulsefeed-api",
		JWTAudience:           "pulsefeed-client",
		JWTTTLMinutes:         60,
		ImageUploadDir:        t.TempDir(),
		ImageMaxUploadSizeMB:  1,
		ImageMaxDimension:     256,
		PostsPerPage:          2,
		RequestTimeoutSeconds: 5,
	}
}

func setupSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// newTestServer builds a fully wired server on sqlite. rdb may be nil.
func newTestServer(t *testing.T, rdb *redis.Client) (*Server, *fiber.App) {
	t.Helper()
	s, err := NewServerWithDeps(testConfig(t), setupSQLiteDB(t), rdb)
	require.NoError(t, err)
	s.authService.WithHashCost(bcrypt.MinCost)
	return s, s.App()
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func doRequest(t *testing.T, app *fiber.App, req *http.Request, token string) *http.Response {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return doRequest(t, app, req, token)
}

// doMultipart sends form fields plus an optional "image" file.
func doMultipart(t *testing.T, app *fiber.App, method, path, token string, fields map[string]string, file []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if file != nil {
		part, err := w.CreateFormFile("image", "upload.png")
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return doRequest(t, app, req, token)
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// registerUser signs up and logs in, returning the bearer token and user id.
func registerUser(t *testing.T, app *fiber.App, name, email string) (string, uint) {
	t.Helper()
	resp := doJSON(t, app, http.MethodPut, "/api/auth/signup", "", map[string]string{
		"email": email, "password": "secret123", "name": name,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPost, "/api/auth/login", "", LoginRequest{Email: email, Password: "secret123"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	login := decodeBody[LoginResponse](t, resp)
	require.NotEmpty(t, login.Token)
	return login.Token, login.UserID
}

// createPost creates a post through the API and returns its view.
func createPost(t *testing.T, app *fiber.App, token, title string) PostResponse {
	t.Helper()
	resp := doMultipart(t, app, http.MethodPost, "/api/feed/post", token, map[string]string{
		"title": title, "content": "Some content for " + title,
	}, testPNG(t, 32, 32))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeBody[PostResponse](t, resp)
}
