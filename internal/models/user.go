// Package models contains data structures for the application's domain models.
package models

import "time"

// DefaultStatus is assigned to every new account.
const DefaultStatus = "I am new!"

// User represents an account that can author posts.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	Password  string    `gorm:"not null" json:"-"`
	Status    string    `gorm:"not null;default:'I am new!'" json:"status"`
	Posts     []Post    `gorm:"many2many:user_posts;" json:"posts,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreatorSummary is the public projection of a post's author.
type CreatorSummary struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// Summary returns the id/name projection used in post payloads.
func (u *User) Summary() CreatorSummary {
	if u == nil {
		return CreatorSummary{}
	}
	return CreatorSummary{ID: u.ID, Name: u.Name}
}
