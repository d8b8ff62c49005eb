package comments

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	log "github.com/sirupsen/logrus"

	"forum/pkg/models"
	"forum/pkg/storage"
)

// Store is the subset of storage.Storage the cascade works with.
type Store interface {
	Comment(ctx context.Context, id uuid.UUID) (models.Comment, error)
	CommentsByPost(ctx context.Context, postID uuid.UUID) ([]models.Comment, error)
	CommentsByParent(ctx context.Context, parentID uuid.UUID) ([]models.Comment, error)
	DeleteComment(ctx context.Context, id uuid.UUID) error
	UnlinkUserComment(ctx context.Context, userID, commentID uuid.UUID) error
	UnlinkPostComment(ctx context.Context, postID, commentID uuid.UUID) error
	ClearPostComments(ctx context.Context, postID uuid.UUID) error
}

type Cascade struct {
	db Store
}

func NewCascade(db Store) *Cascade {
	return &Cascade{db: db}
}

// Authorize reports whether the principal may delete the comment: its author or any staff role.
func Authorize(userID uuid.UUID, role models.Role, c models.Comment) error {
	if c.Author == userID || role.Staff() {
		return nil
	}
	return ErrForbidden
}

// DeleteComment removes the comment with the given id and every reply below it. Each removed
// comment is unlinked from its author and its post before the record is deleted.
//
// A comment that no longer exists is skipped, so repeating the call is harmless. The first storage
// error stops the walk; comments removed before it stay removed.
func (c *Cascade) DeleteComment(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	removed := make([]uuid.UUID, 0)
	visited := make(map[uuid.UUID]bool)
	pending := []uuid.UUID{id}

	for len(pending) > 0 {
		cur := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true

		comment, err := c.db.Comment(ctx, cur)
		if errors.Is(err, storage.ErrCommentNotFound) {
			log.Debugf("[cascade] comment %v already gone", cur)
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("%w: read comment %v: %v", ErrStorageFailure, cur, err)
		}

		children, err := c.db.CommentsByParent(ctx, cur)
		if err != nil {
			return removed, fmt.Errorf("%w: read replies of %v: %v", ErrStorageFailure, cur, err)
		}
		for _, child := range children {
			pending = append(pending, child.ID)
		}

		if err := c.remove(ctx, comment, true); err != nil {
			return removed, err
		}
		removed = append(removed, cur)
	}

	return removed, nil
}

// DeletePostComments removes every comment of the post and clears the post's comment list.
// No per-comment authorization is performed.
func (c *Cascade) DeletePostComments(ctx context.Context, postID uuid.UUID) ([]uuid.UUID, error) {
	all, err := c.db.CommentsByPost(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("%w: read comments of post %v: %v", ErrStorageFailure, postID, err)
	}

	removed := make([]uuid.UUID, 0, len(all))
	for _, comment := range all {
		if err := c.remove(ctx, comment, false); err != nil {
			return removed, err
		}
		removed = append(removed, comment.ID)
	}

	err = c.db.ClearPostComments(ctx, postID)
	if err != nil && !errors.Is(err, storage.ErrPostNotFound) {
		return removed, fmt.Errorf("%w: clear comments of post %v: %v", ErrStorageFailure, postID, err)
	}

	return removed, nil
}

func (c *Cascade) remove(ctx context.Context, comment models.Comment, unlinkPost bool) error {
	if err := c.db.UnlinkUserComment(ctx, comment.Author, comment.ID); err != nil {
		return fmt.Errorf("%w: unlink comment %v from user: %v", ErrStorageFailure, comment.ID, err)
	}
	if unlinkPost {
		if err := c.db.UnlinkPostComment(ctx, comment.Post, comment.ID); err != nil {
			return fmt.Errorf("%w: unlink comment %v from post: %v", ErrStorageFailure, comment.ID, err)
		}
	}

	err := c.db.DeleteComment(ctx, comment.ID)
	if err != nil && !errors.Is(err, storage.ErrCommentNotFound) {
		return fmt.Errorf("%w: delete comment %v: %v", ErrStorageFailure, comment.ID, err)
	}
	return nil
}
