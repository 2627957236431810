package models

// TopicPosts is the broadcast topic carrying post mutations.
const TopicPosts = "posts"

// PostAction names the mutation carried by a PostEvent.
type PostAction string

const (
	PostCreated PostAction = "create"
	PostUpdated PostAction = "update"
	PostDeleted PostAction = "delete"
)

// PostEvent is the payload published on TopicPosts after a successful mutation.
type PostEvent struct {
	Action PostAction `json:"action"`
	Post   PostView   `json:"post"`
}

// NewPostEvent builds the event for a mutated post.
func NewPostEvent(action PostAction, post *Post) PostEvent {
	return PostEvent{Action: action, Post: post.View()}
}
