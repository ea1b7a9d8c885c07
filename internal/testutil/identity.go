package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"chirp/internal/identity"
	"chirp/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryIdentityStore is an in-memory identity.Store for handler and seed
// tests. It mirrors the Mongo store's uniqueness and follow-edge rules.
type MemoryIdentityStore struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]*models.User
	now   func() time.Time
}

var _ identity.Store = (*MemoryIdentityStore)(nil)

func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{users: make(map[primitive.ObjectID]*models.User), now: time.Now}
}

func (s *MemoryIdentityStore) Create(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Username, u.Username) || strings.EqualFold(existing.Email, u.Email) {
			return identity.ErrDuplicate
		}
	}
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	now := s.now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

// Add inserts u with a fixed id, for fixtures.
func (s *MemoryIdentityStore) Add(id, username string) *models.User {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		panic(err)
	}
	u := &models.User{ID: oid, Username: username, Email: username + "@example.com", DisplayName: username}
	if err := s.Create(context.Background(), u); err != nil {
		panic(err)
	}
	return u
}

func (s *MemoryIdentityStore) lookup(id string) (*models.User, bool) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, false
	}
	u, ok := s.users[oid]
	return u, ok
}

// public strips the password and follow arrays like the Mongo projection.
func public(u *models.User) *models.User {
	cp := *u
	cp.Password = ""
	cp.Followers = nil
	cp.Following = nil
	return &cp
}

func (s *MemoryIdentityStore) GetByID(_ context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.lookup(id)
	if !ok {
		return nil, identity.ErrNotFound
	}
	return public(u), nil
}

func (s *MemoryIdentityStore) Credentials(_ context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.lookup(id)
	if !ok {
		return nil, identity.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryIdentityStore) findBy(match func(*models.User) bool) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, identity.ErrNotFound
}

func (s *MemoryIdentityStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return s.findBy(func(u *models.User) bool { return strings.EqualFold(u.Email, email) })
}

func (s *MemoryIdentityStore) GetByUsername(_ context.Context, username string) (*models.User, error) {
	return s.findBy(func(u *models.User) bool { return u.Username == username })
}

func (s *MemoryIdentityStore) GetByUsernames(_ context.Context, usernames []string) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]bool, len(usernames))
	for _, n := range usernames {
		want[n] = true
	}
	var out []models.User
	for _, u := range s.sorted() {
		if want[u.Username] {
			out = append(out, *public(u))
		}
	}
	return out, nil
}

func (s *MemoryIdentityStore) Summaries(_ context.Context, ids []string) (map[string]models.UserSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]models.UserSummary, len(ids))
	for _, id := range ids {
		if u, ok := s.lookup(id); ok {
			out[id] = u.Summary()
		}
	}
	return out, nil
}

func (s *MemoryIdentityStore) UpdateProfile(_ context.Context, id string, upd identity.ProfileUpdate) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.lookup(id)
	if !ok {
		return nil, identity.ErrNotFound
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&u.DisplayName, upd.DisplayName)
	set(&u.Bio, upd.Bio)
	set(&u.Avatar, upd.Avatar)
	set(&u.Location, upd.Location)
	set(&u.Website, upd.Website)
	u.UpdatedAt = s.now().UTC()
	return public(u), nil
}

func (s *MemoryIdentityStore) UpdatePassword(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.lookup(id)
	if !ok {
		return identity.ErrNotFound
	}
	u.Password = hash
	return nil
}

func (s *MemoryIdentityStore) AddFollow(_ context.Context, followerID, followeeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	follower, ok1 := s.lookup(followerID)
	followee, ok2 := s.lookup(followeeID)
	if !ok1 || !ok2 {
		return false, identity.ErrNotFound
	}
	if containsID(follower.Following, followee.ID) {
		return false, nil
	}
	follower.Following = append(follower.Following, followee.ID)
	follower.FollowingCount++
	followee.Followers = append(followee.Followers, follower.ID)
	followee.FollowersCount++
	return true, nil
}

func (s *MemoryIdentityStore) RemoveFollow(_ context.Context, followerID, followeeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	follower, ok1 := s.lookup(followerID)
	followee, ok2 := s.lookup(followeeID)
	if !ok1 || !ok2 {
		return false, identity.ErrNotFound
	}
	if !containsID(follower.Following, followee.ID) {
		return false, nil
	}
	follower.Following = removeID(follower.Following, followee.ID)
	follower.FollowingCount--
	followee.Followers = removeID(followee.Followers, follower.ID)
	followee.FollowersCount--
	return true, nil
}

func (s *MemoryIdentityStore) IsFollowing(_ context.Context, followerID, followeeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	follower, ok1 := s.lookup(followerID)
	followee, ok2 := s.lookup(followeeID)
	if !ok1 || !ok2 {
		return false, nil
	}
	return containsID(follower.Following, followee.ID), nil
}

// Search matches username or display name, newest id first.
func (s *MemoryIdentityStore) Search(_ context.Context, query, afterID string, limit int) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := strings.ToLower(strings.TrimSpace(query))
	after, _ := primitive.ObjectIDFromHex(afterID)
	var out []models.User
	for _, u := range s.sorted() {
		if !after.IsZero() && u.ID.Hex() >= after.Hex() {
			continue
		}
		if strings.Contains(strings.ToLower(u.Username), q) || strings.Contains(strings.ToLower(u.DisplayName), q) {
			out = append(out, *public(u))
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryIdentityStore) Suggestions(_ context.Context, userID string, limit int) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	me, ok := s.lookup(userID)
	if !ok {
		return nil, identity.ErrNotFound
	}
	candidates := s.sorted()
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].FollowersCount > candidates[j].FollowersCount
	})
	var out []models.User
	for _, u := range candidates {
		if u.ID == me.ID || containsID(me.Following, u.ID) {
			continue
		}
		out = append(out, *public(u))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// sorted returns users newest id first. Callers hold s.mu.
func (s *MemoryIdentityStore) sorted() []*models.User {
	out := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() > out[j].ID.Hex() })
	return out
}

func containsID(ids []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func removeID(ids []primitive.ObjectID, id primitive.ObjectID) []primitive.ObjectID {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
