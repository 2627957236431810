package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"pulsefeed/internal/models"
)

// postRepoStub is an in-memory repository.PostRepository.
type postRepoStub struct {
	mu      sync.Mutex
	posts   map[uint]*models.Post
	users   map[uint]*models.User
	nextID  uint
	clock   time.Time
	updates int
	deletes int

	createErr error
	updateErr error
	deleteErr error
}

func newPostRepoStub(users ...*models.User) *postRepoStub {
	s := &postRepoStub{
		posts: map[uint]*models.Post{},
		users: map[uint]*models.User{},
		clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *postRepoStub) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.posts)), nil
}

func (s *postRepoStub) List(_ context.Context, limit, offset int) ([]*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]*models.Post, 0, len(s.posts))
	for _, p := range s.posts {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return []*models.Post{}, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], nil
}

func (s *postRepoStub) GetByID(_ context.Context, id uint) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, models.NewNotFoundError("Post", id)
	}
	cp := *p
	return &cp, nil
}

func (s *postRepoStub) CreateWithOwner(_ context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	owner, ok := s.users[post.CreatorID]
	if !ok {
		return models.NewInternalMessageError("No user found", errors.New("record not found"))
	}
	s.nextID++
	s.clock = s.clock.Add(time.Minute)
	post.ID = s.nextID
	post.CreatedAt = s.clock
	post.UpdatedAt = s.clock
	post.Creator = owner
	cp := *post
	s.posts[post.ID] = &cp
	return nil
}

func (s *postRepoStub) Update(_ context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	if s.updateErr != nil {
		return s.updateErr
	}
	if _, ok := s.posts[post.ID]; !ok {
		return models.NewNotFoundError("Post", post.ID)
	}
	cp := *post
	s.posts[post.ID] = &cp
	return nil
}

func (s *postRepoStub) DeleteWithOwner(_ context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	if s.deleteErr != nil {
		return s.deleteErr
	}
	if _, ok := s.posts[post.ID]; !ok {
		return models.NewNotFoundError("Post", post.ID)
	}
	delete(s.posts, post.ID)
	return nil
}

// imageStoreStub records saved and deleted references.
type imageStoreStub struct {
	mu        sync.Mutex
	saved     []string
	deleted   []string
	saveErr   error
	deleteErr error
}

func (s *imageStoreStub) Save(_ context.Context, content []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return "", s.saveErr
	}
	ref := fmt.Sprintf("images/%d-%s.webp", len(s.saved)+1, strings.TrimSpace(string(content)))
	s.saved = append(s.saved, ref)
	return ref, nil
}

func (s *imageStoreStub) Delete(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, ref)
	return s.deleteErr
}

// publisherStub records every published event.
type publisherStub struct {
	mu     sync.Mutex
	topics []string
	events []models.PostEvent
	err    error
}

func (p *publisherStub) Publish(_ context.Context, topic string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	if ev, ok := payload.(models.PostEvent); ok {
		p.events = append(p.events, ev)
	}
	return nil
}

func (p *publisherStub) Events() []models.PostEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.PostEvent(nil), p.events...)
}

// userRepoStub is an in-memory repository.UserRepository.
type userRepoStub struct {
	mu     sync.Mutex
	users  map[uint]*models.User
	nextID uint
}

func newUserRepoStub(users ...*models.User) *userRepoStub {
	s := &userRepoStub{users: map[uint]*models.User{}}
	for _, u := range users {
		s.users[u.ID] = u
		s.nextID = max(s.nextID, u.ID)
	}
	return s
}

func (s *userRepoStub) GetByID(_ context.Context, id uint) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, models.NewNotFoundError("User", id)
	}
	cp := *u
	return &cp, nil
}

func (s *userRepoStub) GetByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == strings.ToLower(strings.TrimSpace(email)) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *userRepoStub) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	user.ID = s.nextID
	if user.Status == "" {
		user.Status = models.DefaultStatus
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *userRepoStub) UpdateStatus(_ context.Context, id uint, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return models.NewNotFoundError("User", id)
	}
	u.Status = status
	return nil
}
