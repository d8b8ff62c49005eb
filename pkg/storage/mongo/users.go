package mongo

import (
	"context"
	"time"

	"github.com/gofrs/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"forum/pkg/models"
	"forum/pkg/storage"
)

func (s *Storage) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	if u.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return models.User{}, err
		}
		u.ID = id
	}
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	u.UpdatedAt = u.CreatedAt
	if u.Comments == nil {
		u.Comments = []uuid.UUID{}
	}

	_, err := s.coll(usersColl).InsertOne(ctx, u)
	if mongo.IsDuplicateKeyError(err) {
		return models.User{}, storage.ErrDuplicateUser
	}
	if err != nil {
		return models.User{}, err
	}

	return u, nil
}

func (s *Storage) User(ctx context.Context, id uuid.UUID) (models.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *Storage) UserByEmail(ctx context.Context, email string) (models.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *Storage) UserByUsername(ctx context.Context, username string) (models.User, error) {
	return s.findUser(ctx, bson.M{"username": username})
}

func (s *Storage) findUser(ctx context.Context, filter bson.M) (models.User, error) {
	var u models.User
	opts := options.FindOne().SetCollation(caseInsensitive)
	err := s.coll(usersColl).FindOne(ctx, filter, opts).Decode(&u)
	if err != nil {
		return models.User{}, notFound(err, storage.ErrUserNotFound)
	}
	return u, nil
}

func (s *Storage) Users(ctx context.Context) ([]models.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cur, err := s.coll(usersColl).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}

	users := []models.User{}
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Storage) UpdateUser(ctx context.Context, id uuid.UUID, upd storage.UserUpdate) (models.User, error) {
	set := bson.M{"updatedAt": time.Now().UTC()}
	if upd.Username != nil {
		set["username"] = *upd.Username
	}
	if upd.Name != nil {
		set["name"] = *upd.Name
	}
	if upd.Email != nil {
		set["email"] = *upd.Email
	}

	u, err := s.updateUser(ctx, id, bson.M{"$set": set})
	if mongo.IsDuplicateKeyError(err) {
		return models.User{}, storage.ErrDuplicateUser
	}
	return u, err
}

func (s *Storage) SetUserRole(ctx context.Context, id uuid.UUID, role models.Role) (models.User, error) {
	return s.updateUser(ctx, id, bson.M{"$set": bson.M{"role": role, "updatedAt": time.Now().UTC()}})
}

func (s *Storage) SetUserAvatar(ctx context.Context, id uuid.UUID, imageID string) (models.User, error) {
	return s.updateUser(ctx, id, bson.M{"$set": bson.M{"avatar": imageID, "updatedAt": time.Now().UTC()}})
}

func (s *Storage) SetRefreshToken(ctx context.Context, id uuid.UUID, tokenID string) error {
	_, err := s.updateUser(ctx, id, bson.M{"$set": bson.M{"refreshToken": tokenID}})
	return err
}

func (s *Storage) updateUser(ctx context.Context, id uuid.UUID, update bson.M) (models.User, error) {
	var u models.User
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := s.coll(usersColl).FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&u)
	if err != nil {
		return models.User{}, notFound(err, storage.ErrUserNotFound)
	}
	return u, nil
}

func (s *Storage) DeleteUser(ctx context.Context, id uuid.UUID) error {
	res, err := s.coll(usersColl).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return storage.ErrUserNotFound
	}
	return nil
}

// TopContributors ranks users by the length of their comment list, then by authored posts.
func (s *Storage) TopContributors(ctx context.Context, limit int) ([]storage.Contributor, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$addFields", Value: bson.M{
			"commentCount": bson.M{"$size": bson.M{"$ifNull": bson.A{"$comments", bson.A{}}}},
		}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         postsColl,
			"localField":   "_id",
			"foreignField": "author",
			"as":           "authored",
		}}},
		{{Key: "$addFields", Value: bson.M{"postCount": bson.M{"$size": "$authored"}}}},
		{{Key: "$project", Value: bson.M{"authored": 0}}},
		{{Key: "$sort", Value: bson.D{
			{Key: "commentCount", Value: -1},
			{Key: "postCount", Value: -1},
			{Key: "username", Value: 1},
		}}},
	}
	if limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: limit}})
	}

	cur, err := s.coll(usersColl).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		models.User  `bson:",inline"`
		CommentCount int `bson:"commentCount"`
		PostCount    int `bson:"postCount"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}

	res := make([]storage.Contributor, 0, len(rows))
	for _, r := range rows {
		res = append(res, storage.Contributor{User: r.User, Comments: r.CommentCount, Posts: r.PostCount})
	}
	return res, nil
}
