package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is the identity document stored in the users collection.
type User struct {
	ID             primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Username       string               `bson:"username" json:"username"`
	Email          string               `bson:"email" json:"email"`
	Password       string               `bson:"password" json:"-"`
	DisplayName    string               `bson:"displayName" json:"display_name"`
	Bio            string               `bson:"bio,omitempty" json:"bio"`
	Avatar         string               `bson:"avatar,omitempty" json:"avatar"`
	Location       string               `bson:"location,omitempty" json:"location,omitempty"`
	Website        string               `bson:"website,omitempty" json:"website,omitempty"`
	Followers      []primitive.ObjectID `bson:"followers" json:"-"`
	Following      []primitive.ObjectID `bson:"following" json:"-"`
	FollowersCount int64                `bson:"followersCount" json:"followers_count"`
	FollowingCount int64                `bson:"followingCount" json:"following_count"`
	CreatedAt      time.Time            `bson:"createdAt" json:"created_at"`
	UpdatedAt      time.Time            `bson:"updatedAt" json:"updated_at"`
}

// HexID returns the string form used as the user reference in the relational store.
func (u *User) HexID() string {
	return u.ID.Hex()
}

// Summary projects the user onto the fields embedded in feed items.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:          u.ID.Hex(),
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Avatar:      u.Avatar,
	}
}

// UserSummary is the compact author block carried by posts, comments and notifications.
type UserSummary struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar,omitempty"`
}

// Profile is the public profile view, with viewer-relative follow state.
type Profile struct {
	User
	IsFollowing bool `json:"is_following"`
	IsSelf      bool `json:"is_self"`
}
