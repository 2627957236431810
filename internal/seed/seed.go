// Package seed provides helpers to create demo data for the application
// database. These helpers are intended for development and testing only.
package seed

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"time"

	"pulsefeed/internal/middleware"
	"pulsefeed/internal/models"
	"pulsefeed/internal/repository"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultPassword is used for generated users and fixture users without one.
const DefaultPassword = "password123"

const placeholderSize = 64

// ImageSaver stores an uploaded image and returns its public reference.
type ImageSaver interface {
	Save(ctx context.Context, content []byte) (string, error)
}

// Options configures a Seeder.
type Options struct {
	// Seed makes generated content reproducible. Zero picks a time-based seed.
	Seed int64
	// HashCost is the bcrypt cost; zero means bcrypt.DefaultCost.
	HashCost int
}

// Seeder writes users and posts through the repositories, so seeded posts
// are attached to their creators exactly like API-created ones.
type Seeder struct {
	db       *gorm.DB
	users    repository.UserRepository
	posts    repository.PostRepository
	images   ImageSaver
	faker    *gofakeit.Faker
	hashCost int
}

// NewSeeder binds a Seeder to db and the image store.
func NewSeeder(db *gorm.DB, images ImageSaver, opts Options) *Seeder {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	cost := opts.HashCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Seeder{
		db:       db,
		users:    repository.NewUserRepository(db),
		posts:    repository.NewPostRepository(db),
		images:   images,
		faker:    gofakeit.New(seed),
		hashCost: cost,
	}
}

// ClearAll removes every post, ownership link and user.
func (s *Seeder) ClearAll(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, table := range []string{"user_posts", "posts", "users"} {
			if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}

// SeedRandom creates numUsers users and spreads numPosts posts across them.
func (s *Seeder) SeedRandom(ctx context.Context, numUsers, numPosts int) ([]*models.User, error) {
	if numUsers <= 0 {
		return nil, nil
	}

	users := make([]*models.User, 0, numUsers)
	for i := 0; i < numUsers; i++ {
		user, err := s.createUser(ctx, FixtureUser{
			Name:  s.faker.Name(),
			Email: fmt.Sprintf("user%d.%s", i+1, s.faker.Email()),
		})
		if err != nil {
			return users, err
		}
		users = append(users, user)
	}

	for i := 0; i < numPosts; i++ {
		author := users[s.faker.Number(0, len(users)-1)]
		if _, err := s.createPost(ctx, author, FixturePost{
			Title:   s.faker.Sentence(5),
			Content: s.faker.Paragraph(1, 3, 8, "\n"),
		}); err != nil {
			return users, err
		}
	}

	middleware.Logger.InfoContext(ctx, "seeded random data",
		slog.Int("users", len(users)),
		slog.Int("posts", numPosts))
	return users, nil
}

// SeedFixture creates the users and posts described by f.
func (s *Seeder) SeedFixture(ctx context.Context, f *Fixture) ([]*models.User, error) {
	users := make([]*models.User, 0, len(f.Users))
	for _, fu := range f.Users {
		user, err := s.createUser(ctx, fu)
		if err != nil {
			return users, err
		}
		for _, fp := range fu.Posts {
			if _, err := s.createPost(ctx, user, fp); err != nil {
				return users, err
			}
		}
		users = append(users, user)
	}

	middleware.Logger.InfoContext(ctx, "seeded fixture", slog.Int("users", len(users)))
	return users, nil
}

func (s *Seeder) createUser(ctx context.Context, fu FixtureUser) (*models.User, error) {
	password := fu.Password
	if password == "" {
		password = DefaultPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Name:     fu.Name,
		Email:    fu.Email,
		Password: string(hash),
		Status:   fu.Status,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user %s: %w", fu.Email, err)
	}
	return user, nil
}

func (s *Seeder) createPost(ctx context.Context, author *models.User, fp FixturePost) (*models.Post, error) {
	ref, err := s.images.Save(ctx, s.placeholderImage())
	if err != nil {
		return nil, fmt.Errorf("store placeholder image: %w", err)
	}

	post := &models.Post{
		Title:     fp.Title,
		Content:   fp.Content,
		ImageURL:  ref,
		CreatorID: author.ID,
	}
	if err := s.posts.CreateWithOwner(ctx, post); err != nil {
		return nil, fmt.Errorf("create post %q: %w", fp.Title, err)
	}
	return post, nil
}

// placeholderImage renders a two-tone PNG in random colors.
func (s *Seeder) placeholderImage() []byte {
	top := s.randomColor()
	bottom := s.randomColor()

	img := image.NewRGBA(image.Rect(0, 0, placeholderSize, placeholderSize))
	for y := 0; y < placeholderSize; y++ {
		c := top
		if y >= placeholderSize/2 {
			c = bottom
		}
		for x := 0; x < placeholderSize; x++ {
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

func (s *Seeder) randomColor() color.RGBA {
	return color.RGBA{
		R: uint8(s.faker.Number(0, 255)),
		G: uint8(s.faker.Number(0, 255)),
		B: uint8(s.faker.Number(0, 255)),
		A: 255,
	}
}
