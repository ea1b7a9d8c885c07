// Package identity stores user documents and follow edges in MongoDB.
package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"chirp/internal/models"
	"chirp/internal/observability"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const usersCollection = "users"

var (
	// ErrNotFound is returned when no user matches, including malformed ids.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicate is returned when a username or email is already taken.
	ErrDuplicate = errors.New("username or email already exists")
)

// ProfileUpdate carries the mutable profile fields. Nil fields are left unchanged.
type ProfileUpdate struct {
	DisplayName *string
	Bio         *string
	Avatar      *string
	Location    *string
	Website     *string
}

// Store is the identity store contract used by services.
type Store interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	Credentials(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByUsernames(ctx context.Context, usernames []string) ([]models.User, error)
	Summaries(ctx context.Context, ids []string) (map[string]models.UserSummary, error)
	UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*models.User, error)
	UpdatePassword(ctx context.Context, id, hash string) error
	AddFollow(ctx context.Context, followerID, followeeID string) (bool, error)
	RemoveFollow(ctx context.Context, followerID, followeeID string) (bool, error)
	IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error)
	Search(ctx context.Context, query, afterID string, limit int) ([]models.User, error)
	Suggestions(ctx context.Context, userID string, limit int) ([]models.User, error)
}

// MongoStore implements Store on a users collection.
type MongoStore struct {
	coll    *mongo.Collection
	metrics *observability.DatabaseMetrics
	now     func() time.Time
}

// NewMongoStore returns a Store backed by db.users.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		coll:    db.Collection(usersCollection),
		metrics: observability.NewDatabaseMetrics(usersCollection),
		now:     time.Now,
	}
}

// publicProjection hides the password hash from reads that never need it.
var publicProjection = bson.D{{Key: "password", Value: 0}}

func (s *MongoStore) Create(ctx context.Context, u *models.User) error {
	ctx, span := observability.GetTraceLayer().TraceMongoOperation(ctx, usersCollection, "insert_one")
	defer span.End()
	defer s.metrics.TrackQuery("insert")()

	now := s.now().UTC()
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	u.CreatedAt, u.UpdatedAt = now, now
	if u.Followers == nil {
		u.Followers = []primitive.ObjectID{}
	}
	if u.Following == nil {
		u.Following = []primitive.ObjectID{}
	}

	if _, err := s.coll.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *MongoStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, bson.D{{Key: "_id", Value: oid}}, publicProjection)
}

// Credentials reads a user including the password hash, bypassing any cache.
func (s *MongoStore) Credentials(ctx context.Context, id string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, bson.D{{Key: "_id", Value: oid}}, nil)
}

func (s *MongoStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, bson.D{{Key: "email", Value: strings.ToLower(strings.TrimSpace(email))}}, nil)
}

func (s *MongoStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findOne(ctx, bson.D{{Key: "username", Value: strings.TrimSpace(username)}}, nil)
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.D, projection bson.D) (*models.User, error) {
	ctx, span := observability.GetTraceLayer().TraceMongoOperation(ctx, usersCollection, "find_one")
	defer span.End()
	defer s.metrics.TrackQuery("find_one")()

	opts := options.FindOne()
	if projection != nil {
		opts.SetProjection(projection)
	}
	var user models.User
	if err := s.coll.FindOne(ctx, filter, opts).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

func (s *MongoStore) GetByUsernames(ctx context.Context, usernames []string) ([]models.User, error) {
	if len(usernames) == 0 {
		return nil, nil
	}
	return s.find(ctx, bson.D{{Key: "username", Value: bson.D{{Key: "$in", Value: usernames}}}},
		options.Find().SetProjection(publicProjection))
}

// Summaries resolves ids to author summaries. Unknown or malformed ids are omitted.
func (s *MongoStore) Summaries(ctx context.Context, ids []string) (map[string]models.UserSummary, error) {
	oids := toObjectIDs(ids)
	out := make(map[string]models.UserSummary, len(oids))
	if len(oids) == 0 {
		return out, nil
	}
	users, err := s.find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: oids}}}},
		options.Find().SetProjection(bson.D{
			{Key: "username", Value: 1},
			{Key: "displayName", Value: 1},
			{Key: "avatar", Value: 1},
		}))
	if err != nil {
		return nil, err
	}
	for i := range users {
		out[users[i].HexID()] = users[i].Summary()
	}
	return out, nil
}

func (s *MongoStore) find(ctx context.Context, filter bson.D, opts *options.FindOptions) ([]models.User, error) {
	ctx, span := observability.GetTraceLayer().TraceMongoOperation(ctx, usersCollection, "find")
	defer span.End()
	defer s.metrics.TrackQuery("find")()

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return users, nil
}

func (s *MongoStore) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	set := bson.D{{Key: "updatedAt", Value: s.now().UTC()}}
	if upd.DisplayName != nil {
		set = append(set, bson.E{Key: "displayName", Value: *upd.DisplayName})
	}
	if upd.Bio != nil {
		set = append(set, bson.E{Key: "bio", Value: *upd.Bio})
	}
	if upd.Avatar != nil {
		set = append(set, bson.E{Key: "avatar", Value: *upd.Avatar})
	}
	if upd.Location != nil {
		set = append(set, bson.E{Key: "location", Value: *upd.Location})
	}
	if upd.Website != nil {
		set = append(set, bson.E{Key: "website", Value: *upd.Website})
	}

	ctx, span := observability.GetTraceLayer().TraceMongoOperation(ctx, usersCollection, "find_one_and_update")
	defer span.End()
	defer s.metrics.TrackQuery("update")()

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(publicProjection)
	var user models.User
	err = s.coll.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: oid}}, bson.D{{Key: "$set", Value: set}}, opts).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return &user, nil
}

func (s *MongoStore) UpdatePassword(ctx context.Context, id, hash string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	ctx, span := observability.GetTraceLayer().TraceMongoOperation(ctx, usersCollection, "update_one")
	defer span.End()
	defer s.metrics.TrackQuery("update")()

	res, err := s.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: oid}}, bson.D{{Key: "$set", Value: bson.D{
		{Key: "password", Value: hash},
		{Key: "updatedAt", Value: s.now().UTC()},
	}}})
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// AddFollow records follower -> followee on both documents. It reports false
// when the edge already existed. The follower document is the guard: its
// update only matches while followee is absent from its following array.
func (s *MongoStore) AddFollow(ctx context.Context, followerID, followeeID string) (bool, error) {
	follower, followee, err := objectIDPair(followerID, followeeID)
	if err != nil {
		return false, err
	}
	ctx, span := observability.GetTraceLayer().TraceMongoOperation(ctx, usersCollection, "add_follow")
	defer span.End()
	defer s.metrics.TrackQuery("follow")()

	now := s.now().UTC()
	res, err := s.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: follower}, {Key: "following", Value: bson.D{{Key: "$ne", Value: followee}}}},
		bson.D{
			{Key: "$addToSet", Value: bson.D{{Key: "following", Value: followee}}},
			{Key: "$inc", Value: bson.D{{Key: "followingCount", Value: 1}}},
			{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: now}}},
		})
	if err != nil {
		return false, fmt.Errorf("add following: %w", err)
	}
	if res.ModifiedCount == 0 {
		return false, nil
	}

	_, err = s.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: followee}, {Key: "followers", Value: bson.D{{Key: "$ne", Value: follower}}}},
		bson.D{
			{Key: "$addToSet", Value: bson.D{{Key: "followers", Value: follower}}},
			{Key: "$inc", Value: bson.D{{Key: "followersCount", Value: 1}}},
			{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: now}}},
		})
	if err != nil {
		return true, fmt.Errorf("add follower: %w", err)
	}
	return true, nil
}

// RemoveFollow is the inverse of AddFollow. It reports false when no edge existed.
func (s *MongoStore) RemoveFollow(ctx context.Context, followerID, followeeID string) (bool, error) {
	follower, followee, err := objectIDPair(followerID, followeeID)
	if err != nil {
		return false, err
	}
	ctx, span := observability.GetTraceLayer().TraceMongoOperation(ctx, usersCollection, "remove_follow")
	defer span.End()
	defer s.metrics.TrackQuery("unfollow")()

	now := s.now().UTC()
	res, err := s.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: follower}, {Key: "following", Value: followee}},
		bson.D{
			{Key: "$pull", Value: bson.D{{Key: "following", Value: followee}}},
			{Key: "$inc", Value: bson.D{{Key: "followingCount", Value: -1}}},
			{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: now}}},
		})
	if err != nil {
		return false, fmt.Errorf("remove following: %w", err)
	}
	if res.ModifiedCount == 0 {
		return false, nil
	}

	_, err = s.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: followee}, {Key: "followers", Value: follower}},
		bson.D{
			{Key: "$pull", Value: bson.D{{Key: "followers", Value: follower}}},
			{Key: "$inc", Value: bson.D{{Key: "followersCount", Value: -1}}},
			{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: now}}},
		})
	if err != nil {
		return true, fmt.Errorf("remove follower: %w", err)
	}
	return true, nil
}

func (s *MongoStore) IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error) {
	follower, followee, err := objectIDPair(followerID, followeeID)
	if err != nil {
		return false, nil
	}
	ctx, span := observability.GetTraceLayer().TraceMongoOperation(ctx, usersCollection, "count")
	defer span.End()

	n, err := s.coll.CountDocuments(ctx,
		bson.D{{Key: "_id", Value: follower}, {Key: "following", Value: followee}},
		options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("check follow: %w", err)
	}
	return n > 0, nil
}

// Search matches username or display name case-insensitively, newest users
// first. afterID is the last ObjectID of the previous page.
func (s *MongoStore) Search(ctx context.Context, query, afterID string, limit int) ([]models.User, error) {
	pattern := primitive.Regex{Pattern: regexp.QuoteMeta(strings.TrimSpace(query)), Options: "i"}
	filter := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "username", Value: pattern}},
		bson.D{{Key: "displayName", Value: pattern}},
	}}}
	if afterID != "" {
		if oid, err := primitive.ObjectIDFromHex(afterID); err == nil {
			filter = append(filter, bson.E{Key: "_id", Value: bson.D{{Key: "$lt", Value: oid}}})
		}
	}
	opts := options.Find().
		SetProjection(publicProjection).
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	return s.find(ctx, filter, opts)
}

// Suggestions returns the most-followed users that userID does not follow yet.
func (s *MongoStore) Suggestions(ctx context.Context, userID string, limit int) ([]models.User, error) {
	me, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	exclude := append([]primitive.ObjectID{me.ID}, me.Following...)
	opts := options.Find().
		SetProjection(publicProjection).
		SetSort(bson.D{{Key: "followersCount", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	return s.find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$nin", Value: exclude}}}}, opts)
}

func toObjectIDs(ids []string) []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]struct{}, len(ids))
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			continue
		}
		if _, ok := seen[oid]; ok {
			continue
		}
		seen[oid] = struct{}{}
		out = append(out, oid)
	}
	return out
}

func objectIDPair(a, b string) (primitive.ObjectID, primitive.ObjectID, error) {
	first, err := primitive.ObjectIDFromHex(a)
	if err != nil {
		return primitive.NilObjectID, primitive.NilObjectID, ErrNotFound
	}
	second, err := primitive.ObjectIDFromHex(b)
	if err != nil {
		return primitive.NilObjectID, primitive.NilObjectID, ErrNotFound
	}
	return first, second, nil
}
