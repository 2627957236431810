package models

import "time"

// Post is a feed entry owned by exactly one User.
type Post struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"not null" json:"title"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	ImageURL  string    `gorm:"not null" json:"image_url"`
	CreatorID uint      `gorm:"not null;index" json:"creator_id"`
	Creator   *User     `gorm:"foreignKey:CreatorID" json:"-"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PostView is the wire representation of a post, used both in HTTP
// responses and in broadcast payloads.
type PostView struct {
	ID        uint           `json:"id"`
	Title     string         `json:"title"`
	Content   string         `json:"content"`
	ImageURL  string         `json:"image_url"`
	Creator   CreatorSummary `json:"creator"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// View projects the post for the wire. The creator falls back to the bare
// CreatorID when the association was not loaded.
func (p *Post) View() PostView {
	creator := p.Creator.Summary()
	if creator.ID == 0 {
		creator.ID = p.CreatorID
	}
	return PostView{
		ID:        p.ID,
		Title:     p.Title,
		Content:   p.Content,
		ImageURL:  p.ImageURL,
		Creator:   creator,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// PostViews projects a slice of posts.
func PostViews(posts []*Post) []PostView {
	out := make([]PostView, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.View())
	}
	return out
}

// IsOwnedBy reports whether userID authored the post.
func (p *Post) IsOwnedBy(userID uint) bool {
	return p != nil && p.CreatorID == userID
}
