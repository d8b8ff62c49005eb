package models

import (
	"time"

	"github.com/gofrs/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// Staff reports whether r may moderate other users' content.
func (r Role) Staff() bool {
	return r == RoleModerator || r == RoleAdmin
}

type User struct {
	ID           uuid.UUID   `bson:"_id" json:"id"`
	Username     string      `bson:"username" json:"username"`
	Email        string      `bson:"email" json:"email"`
	Password     string      `bson:"password" json:"-"`
	Name         string      `bson:"name" json:"name"`
	Role         Role        `bson:"role" json:"role"`
	Avatar       string      `bson:"avatar,omitempty" json:"avatar,omitempty"`
	RefreshToken string      `bson:"refreshToken,omitempty" json:"-"`
	Comments     []uuid.UUID `bson:"comments" json:"comments"`
	CreatedAt    time.Time   `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time   `bson:"updatedAt" json:"updatedAt"`
}

type Post struct {
	ID        uuid.UUID   `bson:"_id" json:"id"`
	Title     string      `bson:"title" json:"title"`
	Content   string      `bson:"content" json:"content"`
	Author    uuid.UUID   `bson:"author" json:"author"`
	Topics    []string    `bson:"topics" json:"topics"`
	Images    []string    `bson:"images" json:"images"`
	Likes     []uuid.UUID `bson:"likes" json:"likes"`
	Dislikes  []uuid.UUID `bson:"dislikes" json:"dislikes"`
	Comments  []uuid.UUID `bson:"comments" json:"comments"`
	CreatedAt time.Time   `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time   `bson:"updatedAt" json:"updatedAt"`
}

// Comment is a single entry of a post discussion. ParentComment is nil for top-level comments.
type Comment struct {
	ID            uuid.UUID  `bson:"_id" json:"id"`
	Content       string     `bson:"content" json:"content"`
	Author        uuid.UUID  `bson:"author" json:"author"`
	Post          uuid.UUID  `bson:"post" json:"post"`
	ParentComment *uuid.UUID `bson:"parentComment,omitempty" json:"parentComment"`
	CreatedAt     time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// IsReply reports whether the comment answers another comment.
func (c Comment) IsReply() bool {
	return c.ParentComment != nil && *c.ParentComment != uuid.Nil
}

type Reaction string

const (
	Like    Reaction = "like"
	Dislike Reaction = "dislike"
)

// React toggles the user's vote on the post. A like removes an existing dislike and vice versa;
// repeating the same vote withdraws it.
func (p *Post) React(userID uuid.UUID, r Reaction) {
	same, opposite := &p.Likes, &p.Dislikes
	if r == Dislike {
		same, opposite = &p.Dislikes, &p.Likes
	}

	*opposite = remove(*opposite, userID)
	if ContainsID(*same, userID) {
		*same = remove(*same, userID)
		return
	}
	*same = append(*same, userID)
}

func (p Post) LikedBy(userID uuid.UUID) bool {
	return ContainsID(p.Likes, userID)
}

func (p Post) DislikedBy(userID uuid.UUID) bool {
	return ContainsID(p.Dislikes, userID)
}

// ContainsID reports whether id is in ids.
func ContainsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func remove(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
