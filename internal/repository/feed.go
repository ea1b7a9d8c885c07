package repository

import (
	"context"
	"strings"
	"time"

	"chirp/internal/models"
	"chirp/internal/observability"

	"gorm.io/gorm"
)

// FeedRepository assembles merged post/retweet timelines.
type FeedRepository interface {
	Live(ctx context.Context, viewerID, cursor string, limit int) (models.Page[models.FeedItem], error)
	Following(ctx context.Context, viewerID, cursor string, limit int) (models.Page[models.FeedItem], error)
	Annotate(ctx context.Context, viewerID string, views []*models.PostView) error
}

type feedRepository struct {
	db      *gorm.DB
	metrics *observability.DatabaseMetrics
	now     func() time.Time
}

// NewFeedRepository creates a new feed repository
func NewFeedRepository(db *gorm.DB) FeedRepository {
	return &feedRepository{
		db:      db,
		metrics: observability.NewDatabaseMetrics("feed"),
		now:     time.Now,
	}
}

// feedEvent is one row of the union before hydration.
type feedEvent struct {
	Kind      string
	EventID   uint
	EventTime time.Time
	PostID    uint
	ActorID   string
	Comment   string
}

func (r *feedRepository) Live(ctx context.Context, viewerID, cursor string, limit int) (models.Page[models.FeedItem], error) {
	defer r.metrics.TrackQuery("live")()
	return r.assemble(ctx, viewerID, "", cursor, limit)
}

func (r *feedRepository) Following(ctx context.Context, viewerID, cursor string, limit int) (models.Page[models.FeedItem], error) {
	defer r.metrics.TrackQuery("following")()
	return r.assemble(ctx, viewerID, viewerID, cursor, limit)
}

// assemble runs the post/retweet union. When followerID is set, events are
// restricted to that user and the users they follow.
func (r *feedRepository) assemble(ctx context.Context, viewerID, followerID, cursor string, limit int) (models.Page[models.FeedItem], error) {
	ctx, span := observability.GetTraceLayer().TraceRepositoryMethod(ctx, "assemble", "posts")
	defer span.End()

	limit = ClampLimit(limit, DefaultPageSize, MaxPageSize)
	sql, args := feedQuery(followerID, cursor, limit+1)

	var events []feedEvent
	if err := readDB(r.db).WithContext(ctx).Raw(sql, args...).Scan(&events).Error; err != nil {
		observability.RecordErrorInContext(ctx, err)
		return models.Page[models.FeedItem]{}, err
	}

	page := buildPage(events, limit, func(e feedEvent) (time.Time, uint) { return e.EventTime, e.EventID })
	items, err := r.hydrate(ctx, viewerID, page.Items)
	if err != nil {
		return models.Page[models.FeedItem]{}, err
	}
	return models.Page[models.FeedItem]{Items: items, NextCursor: page.NextCursor, HasMore: page.HasMore}, nil
}

// feedQuery builds the union. Each branch carries its own cursor predicate so
// it can walk the (created_at DESC, id DESC) indexes independently.
func feedQuery(followerID, cursor string, fetch int) (string, []interface{}) {
	var (
		postWhere    = []string{"p.is_deleted = ?", "p.visibility = ?"}
		retweetWhere = []string{"p.is_deleted = ?", "p.visibility = ?"}
		postArgs     = []interface{}{false, models.VisibilityPublic}
		retweetArgs  = []interface{}{false, models.VisibilityPublic}
	)
	if followerID != "" {
		postWhere = append(postWhere, followScope("p.user_id"))
		retweetWhere = append(retweetWhere, followScope("r.user_id"))
		postArgs = append(postArgs, followerID, followerID)
		retweetArgs = append(retweetArgs, followerID, followerID)
	}
	if cur, ok := DecodeCursor(cursor); ok {
		postWhere = append(postWhere, "(p.created_at < ? OR (p.created_at = ? AND p.id < ?))")
		retweetWhere = append(retweetWhere, "(r.created_at < ? OR (r.created_at = ? AND r.id < ?))")
		postArgs = append(postArgs, cur.Time, cur.Time, cur.ID)
		retweetArgs = append(retweetArgs, cur.Time, cur.Time, cur.ID)
	}

	sql := "SELECT 'post' AS kind, p.id AS event_id, p.created_at AS event_time, p.id AS post_id, p.user_id AS actor_id, '' AS comment" +
		" FROM posts p WHERE " + strings.Join(postWhere, " AND ") +
		" UNION ALL " +
		"SELECT 'retweet' AS kind, r.id AS event_id, r.created_at AS event_time, r.post_id AS post_id, r.user_id AS actor_id, r.comment AS comment" +
		" FROM retweets r JOIN posts p ON p.id = r.post_id WHERE " + strings.Join(retweetWhere, " AND ") +
		" ORDER BY event_time DESC, event_id DESC LIMIT ?"

	args := append(postArgs, retweetArgs...)
	args = append(args, fetch)
	return sql, args
}

func followScope(col string) string {
	return "(" + col + " = ? OR " + col + " IN (SELECT followee_id FROM user_follows WHERE follower_id = ?))"
}

// hydrate loads the posts behind events and annotates them for viewerID.
func (r *feedRepository) hydrate(ctx context.Context, viewerID string, events []feedEvent) ([]models.FeedItem, error) {
	items := make([]models.FeedItem, 0, len(events))
	if len(events) == 0 {
		return items, nil
	}

	ids := make([]uint, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.PostID)
	}
	var posts []models.Post
	if err := readDB(r.db).WithContext(ctx).
		Preload("Poll.Options", orderOptions).
		Where("id IN ?", uniqueUints(ids)).
		Find(&posts).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]*models.PostView, len(posts))
	views := make([]*models.PostView, 0, len(posts))
	for i := range posts {
		v := &models.PostView{Post: posts[i]}
		byID[posts[i].ID] = v
		views = append(views, v)
	}
	if err := r.Annotate(ctx, viewerID, views); err != nil {
		return nil, err
	}

	for _, e := range events {
		view, ok := byID[e.PostID]
		if !ok {
			continue
		}
		item := models.FeedItem{
			Type:      models.FeedItemType(e.Kind),
			EventID:   e.EventID,
			EventTime: e.EventTime,
			Post:      view,
		}
		if item.Type == models.FeedItemRetweet {
			item.RetweetedBy = &models.UserSummary{ID: e.ActorID}
			item.RetweetComment = e.Comment
		}
		items = append(items, item)
	}
	return items, nil
}

// Annotate fills viewer-relative state on views: like and retweet flags and
// the poll block with the viewer's vote. An anonymous viewer gets false flags.
func (r *feedRepository) Annotate(ctx context.Context, viewerID string, views []*models.PostView) error {
	if len(views) == 0 {
		return nil
	}
	postIDs := make([]uint, 0, len(views))
	pollIDs := make([]uint, 0)
	for _, v := range views {
		postIDs = append(postIDs, v.ID)
		if v.Post.Poll != nil {
			pollIDs = append(pollIDs, v.Post.Poll.ID)
		}
	}

	liked := map[uint]bool{}
	retweeted := map[uint]bool{}
	votes := map[uint]*models.PollVote{}
	if viewerID != "" {
		db := readDB(r.db).WithContext(ctx)
		var likedIDs, retweetedIDs []uint
		if err := db.Model(&models.Like{}).Where("user_id = ? AND post_id IN ?", viewerID, postIDs).Pluck("post_id", &likedIDs).Error; err != nil {
			return err
		}
		if err := db.Model(&models.Retweet{}).Where("user_id = ? AND post_id IN ?", viewerID, postIDs).Pluck("post_id", &retweetedIDs).Error; err != nil {
			return err
		}
		for _, id := range likedIDs {
			liked[id] = true
		}
		for _, id := range retweetedIDs {
			retweeted[id] = true
		}
		if len(pollIDs) > 0 {
			var rows []models.PollVote
			if err := db.Where("user_id = ? AND poll_id IN ?", viewerID, pollIDs).Find(&rows).Error; err != nil {
				return err
			}
			for i := range rows {
				votes[rows[i].PollID] = &rows[i]
			}
		}
	}

	now := r.now()
	for _, v := range views {
		v.IsLiked = liked[v.ID]
		v.IsRetweeted = retweeted[v.ID]
		if v.Post.Poll != nil {
			v.Poll = models.NewPollView(v.Post.Poll, votes[v.Post.Poll.ID], now)
		}
	}
	return nil
}

func uniqueUints(in []uint) []uint {
	seen := make(map[uint]struct{}, len(in))
	out := make([]uint, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
