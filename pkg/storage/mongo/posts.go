package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/gofrs/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"forum/pkg/models"
	"forum/pkg/storage"
)

func (s *Storage) CreatePost(ctx context.Context, p models.Post) (models.Post, error) {
	if p.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return models.Post{}, err
		}
		p.ID = id
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	p.UpdatedAt = p.CreatedAt
	if p.Topics == nil {
		p.Topics = []string{}
	}
	if p.Images == nil {
		p.Images = []string{}
	}
	if p.Likes == nil {
		p.Likes = []uuid.UUID{}
	}
	if p.Dislikes == nil {
		p.Dislikes = []uuid.UUID{}
	}
	if p.Comments == nil {
		p.Comments = []uuid.UUID{}
	}

	if _, err := s.coll(postsColl).InsertOne(ctx, p); err != nil {
		return models.Post{}, err
	}
	return p, nil
}

func (s *Storage) Post(ctx context.Context, id uuid.UUID) (models.Post, error) {
	var p models.Post
	err := s.coll(postsColl).FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if err != nil {
		return models.Post{}, notFound(err, storage.ErrPostNotFound)
	}
	return p, nil
}

func (s *Storage) Posts(ctx context.Context) ([]models.Post, error) {
	return s.findPosts(ctx, bson.M{})
}

func (s *Storage) PostsByAuthor(ctx context.Context, author uuid.UUID) ([]models.Post, error) {
	return s.findPosts(ctx, bson.M{"author": author})
}

func (s *Storage) findPosts(ctx context.Context, filter bson.M) ([]models.Post, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := s.coll(postsColl).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	posts := []models.Post{}
	if err := cur.All(ctx, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// FilterPosts counts the matching posts and returns the requested page. Sorting by likes uses the
// size of the likes array.
func (s *Storage) FilterPosts(ctx context.Context, f storage.PostFilter) ([]models.Post, int, error) {
	filter := bson.M{}
	if f.Keyword != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(f.Keyword), Options: "i"}
		filter["$or"] = bson.A{bson.M{"title": re}, bson.M{"content": re}}
	}
	if f.Author != uuid.Nil {
		filter["author"] = f.Author
	}
	if f.Topic != "" {
		filter["topics"] = primitive.Regex{Pattern: "^" + regexp.QuoteMeta(f.Topic) + "$", Options: "i"}
	}
	if f.MinLikes > 0 {
		filter[fmt.Sprintf("likes.%d", f.MinLikes-1)] = bson.M{"$exists": true}
	}

	total, err := s.coll(postsColl).CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	if f.Limit <= 0 {
		return []models.Post{}, int(total), nil
	}

	page := f.Page
	if page < 1 {
		page = 1
	}
	dir := -1
	if f.Asc {
		dir = 1
	}
	sortField := f.SortBy
	switch sortField {
	case storage.SortUpdatedAt, storage.SortTitle:
	case storage.SortLikes:
		sortField = "likeCount"
	default:
		sortField = storage.SortCreatedAt
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: filter}},
		{{Key: "$addFields", Value: bson.M{"likeCount": bson.M{"$size": "$likes"}}}},
		{{Key: "$sort", Value: bson.D{{Key: sortField, Value: dir}, {Key: "_id", Value: 1}}}},
		{{Key: "$skip", Value: (page - 1) * f.Limit}},
		{{Key: "$limit", Value: f.Limit}},
		{{Key: "$project", Value: bson.M{"likeCount": 0}}},
	}

	cur, err := s.coll(postsColl).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, 0, err
	}
	posts := []models.Post{}
	if err := cur.All(ctx, &posts); err != nil {
		return nil, 0, err
	}

	return posts, int(total), nil
}

func (s *Storage) UpdatePost(ctx context.Context, id uuid.UUID, upd storage.PostUpdate) (models.Post, error) {
	set := bson.M{"updatedAt": time.Now().UTC()}
	if upd.Title != nil {
		set["title"] = *upd.Title
	}
	if upd.Content != nil {
		set["content"] = *upd.Content
	}
	if upd.Topics != nil {
		set["topics"] = upd.Topics
	}
	return s.updatePost(ctx, id, bson.M{"$set": set})
}

func (s *Storage) SetReactions(ctx context.Context, id uuid.UUID, likes, dislikes []uuid.UUID) (models.Post, error) {
	if likes == nil {
		likes = []uuid.UUID{}
	}
	if dislikes == nil {
		dislikes = []uuid.UUID{}
	}
	return s.updatePost(ctx, id, bson.M{"$set": bson.M{"likes": likes, "dislikes": dislikes}})
}

// AddPostImages pushes the images only while the post has room for all of them. The room check is
// part of the update filter so concurrent uploads cannot overshoot the limit.
func (s *Storage) AddPostImages(ctx context.Context, id uuid.UUID, imageIDs []string, limit int) (models.Post, error) {
	filter := bson.M{"_id": id}
	if limit > 0 {
		room := limit - len(imageIDs)
		if room < 0 {
			return models.Post{}, storage.ErrTooManyImages
		}
		filter[fmt.Sprintf("images.%d", room)] = bson.M{"$exists": false}
	}

	var p models.Post
	update := bson.M{"$push": bson.M{"images": bson.M{"$each": imageIDs}}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := s.coll(postsColl).FindOneAndUpdate(ctx, filter, update, opts).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) && limit > 0 {
		if _, err := s.Post(ctx, id); err != nil {
			return models.Post{}, err
		}
		return models.Post{}, storage.ErrTooManyImages
	}
	if err != nil {
		return models.Post{}, notFound(err, storage.ErrPostNotFound)
	}
	return p, nil
}

func (s *Storage) ClearPostComments(ctx context.Context, postID uuid.UUID) error {
	_, err := s.updatePost(ctx, postID, bson.M{"$set": bson.M{"comments": bson.A{}}})
	return err
}

func (s *Storage) updatePost(ctx context.Context, id uuid.UUID, update bson.M) (models.Post, error) {
	var p models.Post
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := s.coll(postsColl).FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&p)
	if err != nil {
		return models.Post{}, notFound(err, storage.ErrPostNotFound)
	}
	return p, nil
}

func (s *Storage) DeletePost(ctx context.Context, id uuid.UUID) error {
	res, err := s.coll(postsColl).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return storage.ErrPostNotFound
	}
	return nil
}
