package storage

import "time"

type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

type Group struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Membership struct {
	Group    string    `json:"group"`
	Username string    `json:"username"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// Message carries the resolved author username instead of the raw user id so
// a response never needs a second lookup. Content and Attachment are
// pointers: a nil field was NULL in the row and serializes as JSON null.
type Message struct {
	ID         int64     `json:"id"`
	GroupID    int64     `json:"group_id"`
	Username   string    `json:"username"`
	Content    *string   `json:"content"`
	Attachment *string   `json:"attachment"`
	CreatedAt  time.Time `json:"created_at"`
}
