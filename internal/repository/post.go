package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"chirp/internal/models"
	"chirp/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostSearch filters a post search. Empty fields are ignored.
type PostSearch struct {
	Query    string
	Hashtag  string
	AuthorID string
}

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post, poll *models.Poll) error
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	GetIncludingDeleted(ctx context.Context, id uint) (*models.Post, error)
	SoftDelete(ctx context.Context, id uint, at time.Time) error
	ListByUser(ctx context.Context, userID, viewerID, cursor string, limit int) (models.Page[*models.Post], error)
	Search(ctx context.Context, f PostSearch, cursor string, limit int) (models.Page[*models.Post], error)
	TrendingHashtags(ctx context.Context, since time.Time, limit int) ([]models.HashtagCount, error)
	Analytics(ctx context.Context, postID uint, since time.Time) (*models.PostAnalytics, error)
}

type postRepository struct {
	db      *gorm.DB
	log     *observability.RepoLogger
	metrics *observability.DatabaseMetrics
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{
		db:      db,
		log:     observability.NewRepoLogger("posts"),
		metrics: observability.NewDatabaseMetrics("posts"),
	}
}

// Create inserts the post and, when present, its poll and options in one
// transaction.
func (r *postRepository) Create(ctx context.Context, post *models.Post, poll *models.Poll) error {
	defer r.metrics.TrackQuery("create")()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(post).Error; err != nil {
			return err
		}
		if poll == nil {
			return nil
		}
		poll.PostID = post.ID
		if err := tx.Omit("Options").Create(poll).Error; err != nil {
			return err
		}
		for i := range poll.Options {
			poll.Options[i].PollID = poll.ID
			poll.Options[i].Position = i
		}
		if err := tx.Create(&poll.Options).Error; err != nil {
			return err
		}
		post.Poll = poll
		return nil
	})
	if err != nil {
		r.log.LogError(ctx, err, "create")
		return fmt.Errorf("create post: %w", err)
	}
	r.log.LogCreate(ctx, map[string]interface{}{"post_id": post.ID, "has_poll": poll != nil})
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	defer r.metrics.TrackQuery("get")()

	var post models.Post
	err := readDB(r.db).WithContext(ctx).
		Preload("Poll.Options", orderOptions).
		Where("id = ? AND is_deleted = ?", id, false).
		Take(&post).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errPostNotFound
		}
		return nil, err
	}
	return &post, nil
}

// GetIncludingDeleted reads a post regardless of soft-delete state, for audit.
func (r *postRepository) GetIncludingDeleted(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).Take(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Post", id)
		}
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) SoftDelete(ctx context.Context, id uint, at time.Time) error {
	defer r.metrics.TrackQuery("soft_delete")()

	res := r.db.WithContext(ctx).Model(&models.Post{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]interface{}{"is_deleted": true, "deleted_at": at, "updated_at": at})
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "soft_delete")
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errPostNotFound
	}
	r.log.LogDelete(ctx, map[string]interface{}{"post_id": id, "soft": true})
	return nil
}

// ListByUser pages through userID's posts. Private posts are only listed for
// their author.
func (r *postRepository) ListByUser(ctx context.Context, userID, viewerID, cursor string, limit int) (models.Page[*models.Post], error) {
	defer r.metrics.TrackQuery("list_by_user")()

	limit = ClampLimit(limit, DefaultPageSize, MaxPageSize)
	q := readDB(r.db).WithContext(ctx).
		Preload("Poll.Options", orderOptions).
		Where("user_id = ? AND is_deleted = ?", userID, false)
	if userID != viewerID {
		q = q.Where("visibility = ?", models.VisibilityPublic)
	}
	return r.pageOfPosts(afterCursor(q, cursor, "created_at", "id"), limit)
}

func (r *postRepository) Search(ctx context.Context, f PostSearch, cursor string, limit int) (models.Page[*models.Post], error) {
	defer r.metrics.TrackQuery("search")()

	limit = ClampLimit(limit, DefaultPageSize, MaxPageSize)
	q := readDB(r.db).WithContext(ctx).
		Preload("Poll.Options", orderOptions).
		Where("is_deleted = ? AND visibility = ?", false, models.VisibilityPublic)
	if term := strings.TrimSpace(f.Query); term != "" {
		q = q.Where("content ILIKE ?", "%"+escapeLike(term)+"%")
	}
	if tag := normalizeHashtag(f.Hashtag); tag != "" {
		contains, _ := json.Marshal([]string{tag})
		q = q.Where("hashtags @> ?::jsonb", string(contains))
	}
	if f.AuthorID != "" {
		q = q.Where("user_id = ?", f.AuthorID)
	}
	return r.pageOfPosts(afterCursor(q, cursor, "created_at", "id"), limit)
}

func (r *postRepository) pageOfPosts(q *gorm.DB, limit int) (models.Page[*models.Post], error) {
	var posts []*models.Post
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit + 1).Find(&posts).Error; err != nil {
		return models.Page[*models.Post]{}, err
	}
	return buildPage(posts, limit, func(p *models.Post) (time.Time, uint) { return p.CreatedAt, p.ID }), nil
}

func (r *postRepository) TrendingHashtags(ctx context.Context, since time.Time, limit int) ([]models.HashtagCount, error) {
	defer r.metrics.TrackQuery("trending")()

	var rows []models.HashtagCount
	err := readDB(r.db).WithContext(ctx).Raw(`
		SELECT tag, COUNT(*) AS count
		FROM posts, jsonb_array_elements_text(posts.hashtags) AS tag
		WHERE posts.is_deleted = ? AND posts.visibility = ? AND posts.created_at >= ?
		GROUP BY tag
		ORDER BY count DESC, tag ASC
		LIMIT ?`, false, models.VisibilityPublic, since, limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Analytics recomputes engagement from the join tables rather than trusting
// the cached counters.
func (r *postRepository) Analytics(ctx context.Context, postID uint, since time.Time) (*models.PostAnalytics, error) {
	defer r.metrics.TrackQuery("analytics")()

	out := &models.PostAnalytics{PostID: postID}
	err := readDB(r.db).WithContext(ctx).Raw(`
		SELECT
			(SELECT COUNT(*) FROM likes WHERE post_id = ?) AS likes,
			(SELECT COUNT(*) FROM retweets WHERE post_id = ?) AS retweets,
			(SELECT COUNT(*) FROM comments WHERE post_id = ?) AS comments,
			(SELECT COUNT(DISTINCT user_id) FROM likes WHERE post_id = ?) AS unique_likers,
			(SELECT COUNT(DISTINCT user_id) FROM retweets WHERE post_id = ?) AS unique_retweeters,
			(SELECT COUNT(*) FROM likes WHERE post_id = ? AND created_at >= ?) AS recent_likes,
			(SELECT COUNT(*) FROM retweets WHERE post_id = ? AND created_at >= ?) AS recent_retweets`,
		postID, postID, postID, postID, postID, postID, since, postID, since).
		Scan(out).Error
	if err != nil {
		return nil, err
	}
	out.PostID = postID
	out.TotalEngagement = out.Likes + out.Retweets + out.Comments
	return out, nil
}

func orderOptions(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC").Order("id ASC")
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func normalizeHashtag(tag string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
}
