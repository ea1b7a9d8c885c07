package models

import "time"

// Poll is attached to exactly one post and created in the same transaction.
type Poll struct {
	ID        uint         `gorm:"primaryKey" json:"id"`
	PostID    uint         `gorm:"not null;uniqueIndex" json:"post_id"`
	Question  string       `gorm:"size:280;not null" json:"question"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	Options   []PollOption `gorm:"foreignKey:PollID" json:"options"`
}

// TableName specifies the table name for GORM
func (Poll) TableName() string {
	return "polls"
}

// Expired reports whether voting has closed at the given instant.
func (p *Poll) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}

// PollOption is one choice of a poll. Options are immutable after creation.
type PollOption struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	PollID    uint   `gorm:"not null;index" json:"poll_id"`
	Text      string `gorm:"column:option_text;size:100;not null" json:"text"`
	Position  int    `gorm:"not null;default:0" json:"position"`
	VoteCount int64  `gorm:"not null;default:0" json:"vote_count"`
}

// TableName specifies the table name for GORM
func (PollOption) TableName() string {
	return "poll_options"
}

// PollVote is a single user's choice. At most one per (poll, user).
type PollVote struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PollID    uint      `gorm:"not null;uniqueIndex:idx_poll_votes_poll_user" json:"poll_id"`
	UserID    string    `gorm:"size:24;not null;uniqueIndex:idx_poll_votes_poll_user" json:"user_id"`
	OptionID  uint      `gorm:"not null;index" json:"option_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (PollVote) TableName() string {
	return "poll_votes"
}

// PollView is a poll as seen by one viewer.
type PollView struct {
	ID               uint         `json:"id"`
	PostID           uint         `json:"post_id"`
	Question         string       `json:"question"`
	Options          []PollOption `json:"options"`
	TotalVotes       int64        `json:"total_votes"`
	ExpiresAt        *time.Time   `json:"expires_at,omitempty"`
	IsExpired        bool         `json:"is_expired"`
	HasVoted         bool         `json:"has_voted"`
	UserVoteOptionID *uint        `json:"user_vote_option_id"`
}

// NewPollView builds the viewer projection of a poll.
func NewPollView(p *Poll, vote *PollVote, now time.Time) *PollView {
	view := &PollView{
		ID:        p.ID,
		PostID:    p.PostID,
		Question:  p.Question,
		Options:   p.Options,
		ExpiresAt: p.ExpiresAt,
		IsExpired: p.Expired(now),
	}
	for _, o := range p.Options {
		view.TotalVotes += o.VoteCount
	}
	if vote != nil {
		optionID := vote.OptionID
		view.HasVoted = true
		view.UserVoteOptionID = &optionID
	}
	return view
}
