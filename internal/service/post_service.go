package service

import (
	"context"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"chirp/internal/cache"
	"chirp/internal/events"
	"chirp/internal/identity"
	"chirp/internal/models"
	"chirp/internal/repository"
)

const (
	MaxPostContentLen  = 2000
	MaxPostMedia       = 4
	MaxLocationLen     = 120
	MaxPollQuestionLen = 280
	MaxPollOptionLen   = 100
	MinPollOptions     = 2
	MaxPollOptions     = 10

	MaxTrendingHours = 168
	MaxTrendingLimit = 50

	analyticsWindow = 24 * time.Hour
)

var (
	hashtagPattern = regexp.MustCompile(`#(\w+)`)
	mentionPattern = regexp.MustCompile(`@(\w+)`)
)

type PostService struct {
	posts    repository.PostRepository
	feed     repository.FeedRepository
	users    identity.Store
	cache    cache.Store
	notifier *NotificationService
	emitter  Emitter
	now      func() time.Time
}

// CreatePollInput is the optional poll attached to a new post.
type CreatePollInput struct {
	Question  string     `json:"question"`
	Options   []string   `json:"options"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type CreatePostInput struct {
	UserID     string
	Content    string
	Media      []string
	Location   string
	Visibility models.Visibility
	Poll       *CreatePollInput
}

func NewPostService(
	posts repository.PostRepository,
	feed repository.FeedRepository,
	users identity.Store,
	store cache.Store,
	notifier *NotificationService,
	emitter Emitter,
) *PostService {
	if store == nil {
		store = cache.NoopStore{}
	}
	return &PostService{
		posts:    posts,
		feed:     feed,
		users:    users,
		cache:    store,
		notifier: notifier,
		emitter:  emitter,
		now:      time.Now,
	}
}

func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.PostView, error) {
	content := strings.TrimSpace(in.Content)
	media := compactStrings(in.Media)

	if content == "" && len(media) == 0 {
		return nil, models.NewValidationError("Post content or media is required")
	}
	if utf8.RuneCountInString(content) > MaxPostContentLen {
		return nil, models.NewValidationError("Post content too long (max 2000 characters)")
	}
	if len(media) > MaxPostMedia {
		return nil, models.NewValidationError("A post can carry at most 4 media items")
	}
	location := strings.TrimSpace(in.Location)
	if utf8.RuneCountInString(location) > MaxLocationLen {
		return nil, models.NewValidationError("Location too long (max 120 characters)")
	}

	visibility := in.Visibility
	switch visibility {
	case "":
		visibility = models.VisibilityPublic
	case models.VisibilityPublic, models.VisibilityPrivate:
	default:
		return nil, models.NewValidationError("Invalid visibility")
	}

	poll, err := s.buildPoll(in.Poll)
	if err != nil {
		return nil, err
	}

	post := &models.Post{
		UserID:     in.UserID,
		Content:    content,
		MediaURLs:  media,
		Hashtags:   ExtractHashtags(content),
		Mentions:   ExtractMentions(content),
		Location:   location,
		Visibility: visibility,
	}
	if err := s.posts.Create(ctx, post, poll); err != nil {
		return nil, appError(err)
	}

	view := &models.PostView{Post: *post}
	if post.Poll != nil {
		view.Poll = models.NewPollView(post.Poll, nil, s.now())
	}
	attachAuthors(ctx, s.users, []*models.PostView{view})

	if visibility == models.VisibilityPublic {
		emit(s.emitter, events.Broadcast(events.NewFeed, map[string]interface{}{
			"type": models.FeedItemPost,
			"post": view,
		}))
	}
	s.notifyMentions(ctx, post)
	return view, nil
}

func (s *PostService) buildPoll(in *CreatePollInput) (*models.Poll, error) {
	if in == nil {
		return nil, nil
	}
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return nil, models.NewValidationError("Poll question is required")
	}
	if utf8.RuneCountInString(question) > MaxPollQuestionLen {
		return nil, models.NewValidationError("Poll question too long (max 280 characters)")
	}

	options := compactStrings(in.Options)
	if len(options) < MinPollOptions {
		return nil, models.NewValidationError("Poll must have at least two non-empty options")
	}
	if len(options) > MaxPollOptions {
		return nil, models.NewValidationError("Poll cannot have more than 10 options")
	}
	poll := &models.Poll{Question: question}
	for _, o := range options {
		if utf8.RuneCountInString(o) > MaxPollOptionLen {
			return nil, models.NewValidationError("Poll option too long (max 100 characters)")
		}
		poll.Options = append(poll.Options, models.PollOption{Text: o})
	}

	if in.ExpiresAt != nil {
		if !in.ExpiresAt.After(s.now()) {
			return nil, models.NewValidationError("Poll expiry must be in the future")
		}
		at := in.ExpiresAt.UTC()
		poll.ExpiresAt = &at
	}
	return poll, nil
}

// notifyMentions resolves @usernames and notifies each mentioned user once.
func (s *PostService) notifyMentions(ctx context.Context, post *models.Post) {
	if len(post.Mentions) == 0 || s.notifier == nil {
		return
	}
	users, err := s.users.GetByUsernames(ctx, post.Mentions)
	if err != nil {
		logAsync(ctx, "resolve_mentions", err, map[string]interface{}{"post_id": post.ID})
		return
	}
	postID := post.ID
	for i := range users {
		s.notifier.Notify(ctx, NotifyInput{
			RecipientID: users[i].HexID(),
			ActorID:     post.UserID,
			Type:        models.NotificationMention,
			PostID:      &postID,
		})
	}
}

// GetPost returns a post annotated for viewerID. Deleted posts and other
// users' private posts are not found.
func (s *PostService) GetPost(ctx context.Context, postID uint, viewerID string) (*models.PostView, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, appError(err)
	}
	if !post.Visible(viewerID) {
		return nil, models.NewNotFoundMessage("Post not found")
	}
	views := []*models.PostView{{Post: *post}}
	if err := s.annotate(ctx, viewerID, views); err != nil {
		return nil, err
	}
	return views[0], nil
}

// GetPostIncludingDeleted reads a post for audit, ignoring soft deletion.
func (s *PostService) GetPostIncludingDeleted(ctx context.Context, postID uint) (*models.Post, error) {
	post, err := s.posts.GetIncludingDeleted(ctx, postID)
	return post, appError(err)
}

// DeletePost soft-deletes a post owned by userID.
func (s *PostService) DeletePost(ctx context.Context, postID uint, userID string) error {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return appError(err)
	}
	if post.UserID != userID {
		return models.NewForbiddenError("You can only delete your own posts")
	}
	if err := s.posts.SoftDelete(ctx, postID, s.now().UTC()); err != nil {
		return appError(err)
	}
	emit(s.emitter, events.Broadcast(events.PostDeleted, map[string]interface{}{
		"post_id": postID,
		"user_id": userID,
	}))
	return nil
}

// ListUserPosts pages through userID's posts as viewerID sees them.
func (s *PostService) ListUserPosts(ctx context.Context, userID, viewerID, cursor string, limit int) (models.Page[*models.PostView], error) {
	page, err := s.posts.ListByUser(ctx, userID, viewerID, cursor, limit)
	if err != nil {
		return models.Page[*models.PostView]{}, appError(err)
	}
	return s.viewPage(ctx, viewerID, page)
}

// Analytics reports engagement on a post to its owner.
func (s *PostService) Analytics(ctx context.Context, postID uint, userID string) (*models.PostAnalytics, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, appError(err)
	}
	if post.UserID != userID {
		return nil, models.NewForbiddenError("You can only view analytics for your own posts")
	}

	out, err := s.posts.Analytics(ctx, postID, s.now().Add(-analyticsWindow))
	if err != nil {
		return nil, appError(err)
	}

	var followers int64
	if owner, err := s.users.GetByID(ctx, userID); err == nil {
		followers = owner.FollowersCount
	} else {
		logAsync(ctx, "analytics_followers", err, map[string]interface{}{"user_id": userID})
	}
	out.EngagementRatePercent = EngagementRate(out.TotalEngagement, followers)
	return out, nil
}

// EngagementRate is engagement as a percentage of followers, rounded to two
// decimals. Zero followers count as one.
func EngagementRate(engagement, followers int64) float64 {
	if followers < 1 {
		followers = 1
	}
	rate := float64(engagement) * 100 / float64(followers)
	return math.Round(rate*100) / 100
}

// TrendingHashtags counts hashtags on public posts of the last hours.
func (s *PostService) TrendingHashtags(ctx context.Context, hours, limit int) ([]models.HashtagCount, error) {
	if hours <= 0 {
		hours = 24
	}
	if hours > MaxTrendingHours {
		hours = MaxTrendingHours
	}
	limit = repository.ClampLimit(limit, 10, MaxTrendingLimit)

	tags := []models.HashtagCount{}
	err := cache.Aside(ctx, s.cache, cache.TrendingKey(hours, limit), &tags, cache.TrendingTTL, func() error {
		rows, err := s.posts.TrendingHashtags(ctx, s.now().Add(-time.Duration(hours)*time.Hour), limit)
		if err != nil {
			return err
		}
		if rows != nil {
			tags = rows
		}
		return nil
	})
	if err != nil {
		return nil, appError(err)
	}
	return tags, nil
}

func (s *PostService) viewPage(ctx context.Context, viewerID string, page models.Page[*models.Post]) (models.Page[*models.PostView], error) {
	views := make([]*models.PostView, 0, len(page.Items))
	for _, p := range page.Items {
		views = append(views, &models.PostView{Post: *p})
	}
	if err := s.annotate(ctx, viewerID, views); err != nil {
		return models.Page[*models.PostView]{}, err
	}
	return models.Page[*models.PostView]{Items: views, NextCursor: page.NextCursor, HasMore: page.HasMore}, nil
}

func (s *PostService) annotate(ctx context.Context, viewerID string, views []*models.PostView) error {
	if err := s.feed.Annotate(ctx, viewerID, views); err != nil {
		return appError(err)
	}
	attachAuthors(ctx, s.users, views)
	return nil
}

// ExtractHashtags returns the lower-cased #tags in content, first
// occurrence order, without duplicates.
func ExtractHashtags(content string) []string {
	return extractTokens(hashtagPattern, content, strings.ToLower)
}

// ExtractMentions returns the @usernames in content without duplicates.
func ExtractMentions(content string) []string {
	return extractTokens(mentionPattern, content, func(s string) string { return s })
}

func extractTokens(re *regexp.Regexp, content string, norm func(string) string) []string {
	out := []string{}
	seen := map[string]struct{}{}
	for _, m := range re.FindAllStringSubmatch(content, -1) {
		tok := norm(m[1])
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

func compactStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
