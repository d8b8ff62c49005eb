package mongo

import (
	"context"
	"time"

	"github.com/gofrs/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"forum/pkg/models"
	"forum/pkg/storage"
)

// CreateComment inserts a new comment into the database.
//
// Validates that the post exists and, if a parent is set, that the parent comment exists in
// the same post. ID and CreatedAt are generated when zero. After the insert the comment id is
// appended to the author's and the post's comment lists.
func (s *Storage) CreateComment(ctx context.Context, c models.Comment) (models.Comment, error) {
	if c.Post == uuid.Nil {
		return models.Comment{}, storage.ErrPostIDNotProvided
	}

	cnt, err := s.coll(postsColl).CountDocuments(ctx, bson.M{"_id": c.Post})
	if err != nil {
		return models.Comment{}, err
	}
	if cnt == 0 {
		return models.Comment{}, storage.ErrPostNotFound
	}

	if c.IsReply() {
		cnt, err := s.coll(commentsColl).CountDocuments(ctx, bson.M{
			"_id":  *c.ParentComment,
			"post": c.Post,
		})
		if err != nil {
			return models.Comment{}, err
		}
		if cnt == 0 {
			return models.Comment{}, storage.ErrParentCommentNotFound
		}
	} else {
		c.ParentComment = nil
	}

	if c.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return models.Comment{}, err
		}
		c.ID = id
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	c.UpdatedAt = c.CreatedAt

	if _, err := s.coll(commentsColl).InsertOne(ctx, c); err != nil {
		return models.Comment{}, err
	}

	ref := bson.M{"$addToSet": bson.M{"comments": c.ID}}
	res, err := s.coll(usersColl).UpdateOne(ctx, bson.M{"_id": c.Author}, ref)
	if err != nil {
		return models.Comment{}, err
	}
	if res.MatchedCount == 0 {
		s.coll(commentsColl).DeleteOne(ctx, bson.M{"_id": c.ID})
		return models.Comment{}, storage.ErrUserNotFound
	}
	if _, err := s.coll(postsColl).UpdateOne(ctx, bson.M{"_id": c.Post}, ref); err != nil {
		return models.Comment{}, err
	}

	return c, nil
}

func (s *Storage) Comment(ctx context.Context, id uuid.UUID) (models.Comment, error) {
	var c models.Comment
	err := s.coll(commentsColl).FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if err != nil {
		return models.Comment{}, notFound(err, storage.ErrCommentNotFound)
	}
	return c, nil
}

// CommentsByPost returns all comments of the post sorted by creation time ascending.
func (s *Storage) CommentsByPost(ctx context.Context, postID uuid.UUID) ([]models.Comment, error) {
	if postID == uuid.Nil {
		return nil, storage.ErrPostIDNotProvided
	}
	return s.findComments(ctx, bson.M{"post": postID})
}

func (s *Storage) CommentsByParent(ctx context.Context, parentID uuid.UUID) ([]models.Comment, error) {
	return s.findComments(ctx, bson.M{"parentComment": parentID})
}

func (s *Storage) CommentsByAuthor(ctx context.Context, author uuid.UUID) ([]models.Comment, error) {
	return s.findComments(ctx, bson.M{"author": author})
}

func (s *Storage) findComments(ctx context.Context, filter bson.M) ([]models.Comment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.coll(commentsColl).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	comments := []models.Comment{}
	if err := cur.All(ctx, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

func (s *Storage) UpdateComment(ctx context.Context, id uuid.UUID, content string) (models.Comment, error) {
	var c models.Comment
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	update := bson.M{"$set": bson.M{"content": content, "updatedAt": time.Now().UTC()}}
	err := s.coll(commentsColl).FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&c)
	if err != nil {
		return models.Comment{}, notFound(err, storage.ErrCommentNotFound)
	}
	return c, nil
}

func (s *Storage) DeleteComment(ctx context.Context, id uuid.UUID) error {
	res, err := s.coll(commentsColl).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return storage.ErrCommentNotFound
	}
	return nil
}

// UnlinkUserComment pulls commentID from the user's comment list. A missing user is not an error.
func (s *Storage) UnlinkUserComment(ctx context.Context, userID, commentID uuid.UUID) error {
	_, err := s.coll(usersColl).UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$pull": bson.M{"comments": commentID}})
	return err
}

// UnlinkPostComment pulls commentID from the post's comment list. A missing post is not an error.
func (s *Storage) UnlinkPostComment(ctx context.Context, postID, commentID uuid.UUID) error {
	_, err := s.coll(postsColl).UpdateOne(ctx, bson.M{"_id": postID}, bson.M{"$pull": bson.M{"comments": commentID}})
	return err
}
