package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"chirp/internal/identity"
	"chirp/internal/models"
	"chirp/internal/observability"
	"chirp/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Options configures the seeder.
type Options struct {
	NumUsers       int
	NumPosts       int
	FollowsPerUser int
	MaxDays        int
	PollRatio      float64
	SkipBcrypt     bool
	RandomSeed     int64
}

func (o Options) pollRatio() float64 {
	if o.PollRatio <= 0 {
		return 0.1
	}
	return o.PollRatio
}

// UserWriter is the part of the identity store the seeder writes through.
type UserWriter interface {
	Create(ctx context.Context, u *models.User) error
	AddFollow(ctx context.Context, followerID, followeeID string) (bool, error)
}

// Result summarizes one seeding run.
type Result struct {
	Users     int
	Follows   int
	Posts     int
	Likes     int
	Retweets  int
	Comments  int
	PollVotes int
	Repaired  int64
}

// Seeder writes demo data through the same repositories the API uses, so
// posts, polls and follow mirrors land exactly as they would in production.
type Seeder struct {
	db           *gorm.DB
	users        UserWriter
	posts        repository.PostRepository
	polls        repository.PollRepository
	follows      repository.FollowRepository
	interactions repository.InteractionRepository
	factory      *Factory
	opts         Options
	logger       *slog.Logger
}

// NewSeeder wires a seeder over db and the identity store.
func NewSeeder(db *gorm.DB, users UserWriter, opts Options) *Seeder {
	return &Seeder{
		db:           db,
		users:        users,
		posts:        repository.NewPostRepository(db),
		polls:        repository.NewPollRepository(db),
		follows:      repository.NewFollowRepository(db),
		interactions: repository.NewInteractionRepository(db),
		factory:      NewFactory(opts),
		opts:         opts,
		logger:       observability.GlobalLogger.With(slog.String("component", "seed")),
	}
}

// ClearRelational empties every relational table. Identity documents are
// left to the caller.
func (s *Seeder) ClearRelational(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if db.Dialector.Name() == "postgres" {
		return db.Exec(`TRUNCATE TABLE notifications, poll_votes, poll_options, polls, comments, likes, retweets, user_follows, posts RESTART IDENTITY CASCADE`).Error
	}
	for _, m := range []interface{}{
		&models.Notification{}, &models.PollVote{}, &models.PollOption{}, &models.Poll{},
		&models.Comment{}, &models.Like{}, &models.Retweet{}, &models.Follow{}, &models.Post{},
	} {
		if err := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m).Error; err != nil {
			return err
		}
	}
	return nil
}

// Run seeds users, follows, posts and engagement, then reconciles counters.
func (s *Seeder) Run(ctx context.Context) (*Result, error) {
	res := &Result{}

	users, err := s.SeedUsers(ctx, s.opts.NumUsers)
	if err != nil {
		return nil, fmt.Errorf("seed users: %w", err)
	}
	res.Users = len(users)
	if len(users) == 0 {
		return res, nil
	}

	if res.Follows, err = s.SeedFollows(ctx, users, s.opts.FollowsPerUser); err != nil {
		return nil, fmt.Errorf("seed follows: %w", err)
	}

	posts, err := s.SeedPosts(ctx, users, s.opts.NumPosts)
	if err != nil {
		return nil, fmt.Errorf("seed posts: %w", err)
	}
	res.Posts = len(posts)

	if err := s.SeedEngagement(ctx, users, posts, res); err != nil {
		return nil, fmt.Errorf("seed engagement: %w", err)
	}

	if res.Repaired, err = s.interactions.Reconcile(ctx); err != nil {
		return nil, fmt.Errorf("reconcile counters: %w", err)
	}
	s.logger.Info("seeding complete",
		slog.Int("users", res.Users),
		slog.Int("follows", res.Follows),
		slog.Int("posts", res.Posts),
		slog.Int("likes", res.Likes),
		slog.Int("retweets", res.Retweets),
		slog.Int("comments", res.Comments),
		slog.Int("poll_votes", res.PollVotes),
	)
	return res, nil
}

// SeedUsers creates count users. A "demo" account is always first when it
// does not exist yet.
func (s *Seeder) SeedUsers(ctx context.Context, count int) ([]*models.User, error) {
	users := make([]*models.User, 0, count)
	for i := 0; i < count; i++ {
		u := s.factory.BuildUser(i)
		if i == 0 {
			u.Username, u.Email, u.DisplayName = "demo", "demo@example.com", "Demo User"
		}
		if err := s.users.Create(ctx, u); err != nil {
			if errors.Is(err, identity.ErrDuplicate) {
				continue
			}
			return nil, err
		}
		users = append(users, u)
	}
	s.logger.Info("users created", slog.Int("count", len(users)))
	return users, nil
}

// SeedFollows gives every user up to perUser followees, mirrored into
// user_follows.
func (s *Seeder) SeedFollows(ctx context.Context, users []*models.User, perUser int) (int, error) {
	if perUser <= 0 {
		perUser = 5
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.HexID())
	}

	created := 0
	for _, follower := range ids {
		for _, followee := range sample(s.factory.rng, ids, perUser, follower) {
			added, err := s.users.AddFollow(ctx, follower, followee)
			if err != nil {
				return created, err
			}
			if !added {
				continue
			}
			if _, err := s.follows.Create(ctx, follower, followee); err != nil {
				return created, err
			}
			created++
		}
	}
	return created, nil
}

// SeedPosts creates count posts spread across users.
func (s *Seeder) SeedPosts(ctx context.Context, users []*models.User, count int) ([]*models.Post, error) {
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Username)
	}

	posts := make([]*models.Post, 0, count)
	for i := 0; i < count; i++ {
		author := users[s.factory.rng.Intn(len(users))]
		post, poll := s.factory.BuildPost(author.HexID(), names)
		if err := s.posts.Create(ctx, post, poll); err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	s.logger.Info("posts created", slog.Int("count", len(posts)))
	return posts, nil
}

// SeedEngagement adds likes, retweets, comments and poll votes on public
// posts. Counters are left for Reconcile.
func (s *Seeder) SeedEngagement(ctx context.Context, users []*models.User, posts []*models.Post, res *Result) error {
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.HexID())
	}
	rng := s.factory.rng
	db := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Session(&gorm.Session{})

	for _, post := range posts {
		if post.Visibility != models.VisibilityPublic {
			continue
		}

		var likes []*models.Like
		for _, uid := range sample(rng, ids, rng.Intn(len(ids)+1), "") {
			likes = append(likes, s.factory.BuildLike(uid, post))
		}
		if len(likes) > 0 {
			if err := db.Create(&likes).Error; err != nil {
				return err
			}
			res.Likes += len(likes)
		}

		var retweets []*models.Retweet
		for _, uid := range sample(rng, ids, rng.Intn(len(ids)/4+1), post.UserID) {
			retweets = append(retweets, s.factory.BuildRetweet(uid, post))
		}
		if len(retweets) > 0 {
			if err := db.Create(&retweets).Error; err != nil {
				return err
			}
			res.Retweets += len(retweets)
		}

		var comments []*models.Comment
		for n := rng.Intn(4); n > 0; n-- {
			comments = append(comments, s.factory.BuildComment(ids[rng.Intn(len(ids))], post))
		}
		if len(comments) > 0 {
			if err := s.db.WithContext(ctx).Create(&comments).Error; err != nil {
				return err
			}
			res.Comments += len(comments)
		}

		if post.Poll != nil && len(post.Poll.Options) > 0 {
			for _, uid := range sample(rng, ids, rng.Intn(len(ids)+1), "") {
				opt := post.Poll.Options[rng.Intn(len(post.Poll.Options))]
				if _, err := s.polls.Vote(ctx, post.Poll.ID, opt.ID, uid); err != nil {
					if errors.Is(err, models.ErrAlreadyVoted) {
						continue
					}
					return err
				}
				res.PollVotes++
			}
		}
	}
	return nil
}
