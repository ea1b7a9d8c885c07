// Package seed provides helpers to create demo data for development. These
// helpers are intended for development and testing only.
package seed

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"chirp/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
)

// DefaultPassword is the password every seeded account receives.
const DefaultPassword = "password123"

var topics = []string{
	"golang", "rustlang", "devops", "cloud", "ai", "startups", "homelab",
	"music", "movies", "gaming", "fitness", "travel", "food", "books",
	"photography", "linux", "frontend", "backend", "coffee", "weekend",
}

// Factory builds domain entities without persisting them.
type Factory struct {
	opts  Options
	faker *gofakeit.Faker
	rng   *rand.Rand
	now   func() time.Time
	hash  string
}

// NewFactory creates a Factory. A zero Options.RandomSeed seeds from the clock.
func NewFactory(opts Options) *Factory {
	seed := opts.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Factory{
		opts:  opts,
		faker: gofakeit.New(seed),
		// #nosec G404: acceptable for seeding
		rng: rand.New(rand.NewSource(seed)),
		now: time.Now,
	}
}

func (f *Factory) password() string {
	if f.opts.SkipBcrypt {
		return DefaultPassword
	}
	if f.hash == "" {
		hashed, _ := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.DefaultCost)
		f.hash = string(hashed)
	}
	return f.hash
}

// BuildUser returns an unsaved user. n keeps usernames unique within a run.
func (f *Factory) BuildUser(n int, overrides ...func(*models.User)) *models.User {
	username := sanitizeUsername(f.faker.Username(), n)
	user := &models.User{
		Username:    username,
		Email:       username + "@example.com",
		Password:    f.password(),
		DisplayName: f.faker.Name(),
		Bio:         f.faker.Sentence(10),
		Avatar:      fmt.Sprintf("https://i.pravatar.cc/150?u=%s", username),
		Location:    f.faker.City(),
	}
	for _, override := range overrides {
		override(user)
	}
	return user
}

// sanitizeUsername keeps only [a-z0-9_] and appends n.
func sanitizeUsername(raw string, n int) string {
	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	base := b.String()
	if len(base) > 20 {
		base = base[:20]
	}
	if base == "" {
		base = "user"
	}
	return fmt.Sprintf("%s%d", base, n)
}

// BuildPost returns an unsaved post by authorID with one to three hashtags,
// an occasional mention and an occasional poll. The poll is nil when none was
// drawn.
func (f *Factory) BuildPost(authorID string, mentionable []string, overrides ...func(*models.Post)) (*models.Post, *models.Poll) {
	tags := f.pickTopics(1 + f.rng.Intn(3))
	content := f.faker.Sentence(8 + f.rng.Intn(12))
	for _, tag := range tags {
		content += " #" + tag
	}
	var mentions []string
	if len(mentionable) > 0 && f.rng.Float64() < 0.2 {
		name := mentionable[f.rng.Intn(len(mentionable))]
		content = "@" + name + " " + content
		mentions = []string{name}
	}

	post := &models.Post{
		UserID:     authorID,
		Content:    content,
		Hashtags:   tags,
		Mentions:   mentions,
		Visibility: models.VisibilityPublic,
		CreatedAt:  f.pastTime(),
	}
	if f.rng.Float64() < 0.3 {
		post.MediaURLs = []string{fmt.Sprintf("https://picsum.photos/seed/%s/800/800", f.faker.UUID())}
	}
	if f.rng.Float64() < 0.05 {
		post.Visibility = models.VisibilityPrivate
	}
	if f.rng.Float64() < 0.3 {
		post.Location = f.faker.City()
	}
	post.UpdatedAt = post.CreatedAt

	var poll *models.Poll
	if f.rng.Float64() < f.opts.pollRatio() {
		poll = f.BuildPoll()
	}

	for _, override := range overrides {
		override(post)
	}
	return post, poll
}

// BuildPoll returns an unsaved poll with two to four options that closes
// within the next week.
func (f *Factory) BuildPoll() *models.Poll {
	n := 2 + f.rng.Intn(3)
	opts := make([]models.PollOption, 0, n)
	seen := map[string]bool{}
	for len(opts) < n {
		text := capitalize(f.faker.Word())
		if text == "" {
			text = "Option"
		}
		if seen[text] {
			text = fmt.Sprintf("%s %d", text, len(opts)+1)
		}
		seen[text] = true
		opts = append(opts, models.PollOption{Text: text})
	}
	expires := f.now().UTC().Add(time.Duration(24+f.rng.Intn(6*24)) * time.Hour)
	return &models.Poll{
		Question:  strings.TrimSuffix(f.faker.Question(), "?") + "?",
		ExpiresAt: &expires,
		Options:   opts,
	}
}

// BuildComment returns an unsaved comment by userID on post, placed after the
// post in time.
func (f *Factory) BuildComment(userID string, post *models.Post) *models.Comment {
	return &models.Comment{
		PostID:    post.ID,
		UserID:    userID,
		Content:   f.faker.Sentence(4 + f.rng.Intn(10)),
		CreatedAt: f.after(post.CreatedAt),
	}
}

// BuildRetweet returns an unsaved retweet of post, quoting it a third of
// the time.
func (f *Factory) BuildRetweet(userID string, post *models.Post) *models.Retweet {
	rt := &models.Retweet{PostID: post.ID, UserID: userID, CreatedAt: f.after(post.CreatedAt)}
	if f.rng.Intn(3) == 0 {
		rt.Comment = f.faker.Sentence(5)
	}
	return rt
}

func (f *Factory) BuildLike(userID string, post *models.Post) *models.Like {
	return &models.Like{PostID: post.ID, UserID: userID, CreatedAt: f.after(post.CreatedAt)}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (f *Factory) pickTopics(n int) []string {
	idx := f.rng.Perm(len(topics))[:n]
	out := make([]string, 0, n)
	for _, i := range idx {
		out = append(out, topics[i])
	}
	return out
}

// pastTime spreads creation times over the last MaxDays days.
func (f *Factory) pastTime() time.Time {
	maxDays := f.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 30
	}
	back := time.Duration(f.rng.Int63n(int64(maxDays) * int64(24*time.Hour)))
	return f.now().UTC().Add(-back).Truncate(time.Millisecond)
}

// after returns a time between t and now.
func (f *Factory) after(t time.Time) time.Time {
	span := f.now().UTC().Sub(t)
	if span <= 0 {
		return t
	}
	return t.Add(time.Duration(f.rng.Int63n(int64(span)))).Truncate(time.Millisecond)
}

// sample returns up to n distinct entries of pool, excluding skip.
func sample[T comparable](rng *rand.Rand, pool []T, n int, skip T) []T {
	out := make([]T, 0, n)
	for _, i := range rng.Perm(len(pool)) {
		if len(out) == n {
			break
		}
		if pool[i] == skip {
			continue
		}
		out = append(out, pool[i])
	}
	return out
}
