package repository

import (
	"context"
	"errors"
	"time"

	"chirp/internal/database"
	"chirp/internal/models"
	"chirp/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrPollExpired is returned when voting after a poll's expiry.
var ErrPollExpired = models.NewValidationError("Poll has expired")

var errPollNotFound = models.NewNotFoundMessage("Poll not found")

// PollRepository defines poll read and vote operations.
type PollRepository interface {
	GetByPostID(ctx context.Context, postID uint) (*models.Poll, error)
	GetVote(ctx context.Context, pollID uint, userID string) (*models.PollVote, error)
	Vote(ctx context.Context, pollID, optionID uint, userID string) (*models.Poll, error)
}

type pollRepository struct {
	db      *gorm.DB
	metrics *observability.DatabaseMetrics
	now     func() time.Time
}

// NewPollRepository creates a new poll repository
func NewPollRepository(db *gorm.DB) PollRepository {
	return &pollRepository{
		db:      db,
		metrics: observability.NewDatabaseMetrics("polls"),
		now:     time.Now,
	}
}

// GetByPostID loads the poll attached to a visible post.
func (r *pollRepository) GetByPostID(ctx context.Context, postID uint) (*models.Poll, error) {
	defer r.metrics.TrackQuery("get_by_post")()

	var poll models.Poll
	err := readDB(r.db).WithContext(ctx).
		Preload("Options", orderOptions).
		Joins("JOIN posts ON posts.id = polls.post_id").
		Where("polls.post_id = ? AND posts.is_deleted = ?", postID, false).
		Take(&poll).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errPollNotFound
		}
		return nil, err
	}
	return &poll, nil
}

// GetVote returns userID's vote in pollID, or nil when they have not voted.
func (r *pollRepository) GetVote(ctx context.Context, pollID uint, userID string) (*models.PollVote, error) {
	if userID == "" {
		return nil, nil
	}
	var vote models.PollVote
	err := readDB(r.db).WithContext(ctx).
		Where("poll_id = ? AND user_id = ?", pollID, userID).
		Take(&vote).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &vote, nil
}

// Vote records userID's single vote and recounts the chosen option. The
// (poll_id, user_id) unique constraint decides duplicate votes, so two
// concurrent first votes cannot both succeed. The poll row is locked before
// anything else so concurrent voters recount one after another; without it a
// READ COMMITTED recount can miss a vote that committed while it waited.
func (r *pollRepository) Vote(ctx context.Context, pollID, optionID uint, userID string) (*models.Poll, error) {
	defer r.metrics.TrackQuery("vote")()

	var poll models.Poll
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", pollID).Take(&poll).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errPollNotFound
			}
			return err
		}
		var post models.Post
		if err := tx.Select("id", "user_id", "visibility", "is_deleted").Take(&post, poll.PostID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errPollNotFound
			}
			return err
		}
		if !post.Visible(userID) {
			return errPollNotFound
		}
		if poll.Expired(r.now()) {
			return ErrPollExpired
		}

		var option models.PollOption
		if err := tx.Where("id = ? AND poll_id = ?", optionID, pollID).Take(&option).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewValidationError("Invalid poll option")
			}
			return err
		}

		vote := &models.PollVote{PollID: pollID, UserID: userID, OptionID: optionID}
		if err := tx.Create(vote).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return models.ErrAlreadyVoted
			}
			return err
		}

		if err := tx.Exec(
			"UPDATE poll_options SET vote_count = (SELECT COUNT(*) FROM poll_votes WHERE option_id = ?) WHERE id = ?",
			optionID, optionID,
		).Error; err != nil {
			return err
		}
		return tx.Where("poll_id = ?", pollID).Order("position ASC").Order("id ASC").Find(&poll.Options).Error
	})
	if err != nil {
		return nil, err
	}
	return &poll, nil
}
