package api

import (
	"context"
	"errors"

	"github.com/gofrs/uuid"
	log "github.com/sirupsen/logrus"

	"forum/pkg/logger"
	"forum/pkg/metrics"
	"forum/pkg/models"
	"forum/pkg/storage"
)

// removeComment runs the comment cascade and drops the post's cached tree.
func (api *API) removeComment(ctx context.Context, c models.Comment) ([]uuid.UUID, error) {
	removed, err := api.cascade.DeleteComment(ctx, c.ID)
	metrics.CommentsDeleted.Add(float64(len(removed)))
	api.invalidateTree(c.Post)
	return removed, err
}

// removePost deletes the post's comments, its images and finally the post itself.
func (api *API) removePost(ctx context.Context, p models.Post) error {
	removed, err := api.cascade.DeletePostComments(ctx, p.ID)
	metrics.CommentsDeleted.Add(float64(len(removed)))
	api.invalidateTree(p.ID)
	if err != nil {
		return err
	}

	for _, img := range p.Images {
		if err := api.db.DeleteImage(ctx, img); err != nil && !errors.Is(err, storage.ErrImageNotFound) {
			return err
		}
	}

	err = api.db.DeletePost(ctx, p.ID)
	if err != nil && !errors.Is(err, storage.ErrPostNotFound) {
		return err
	}

	log.Debugf("[removePost][%s] post %v removed with %d comments", logger.Shorten(logger.RequestID(ctx)), p.ID, len(removed))
	return nil
}

// removeUser deletes everything the user authored, the avatar and then the account.
func (api *API) removeUser(ctx context.Context, u models.User) error {
	posts, err := api.db.PostsByAuthor(ctx, u.ID)
	if err != nil {
		return err
	}
	for _, p := range posts {
		if err := api.removePost(ctx, p); err != nil {
			return err
		}
	}

	own, err := api.db.CommentsByAuthor(ctx, u.ID)
	if err != nil {
		return err
	}
	for _, c := range own {
		if _, err := api.removeComment(ctx, c); err != nil {
			return err
		}
	}

	if u.Avatar != "" {
		if err := api.db.DeleteImage(ctx, u.Avatar); err != nil && !errors.Is(err, storage.ErrImageNotFound) {
			return err
		}
	}

	err = api.db.DeleteUser(ctx, u.ID)
	if err != nil && !errors.Is(err, storage.ErrUserNotFound) {
		return err
	}
	return nil
}

func (api *API) invalidateTree(postID uuid.UUID) {
	if api.opts.Trees != nil {
		api.opts.Trees.Invalidate(postID)
	}
}
