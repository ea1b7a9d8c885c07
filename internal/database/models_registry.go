package database

import "chirp/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
// Users live in MongoDB and are not listed here.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.Post{},
		&models.Like{},
		&models.Retweet{},
		&models.Comment{},
		&models.Poll{},
		&models.PollOption{},
		&models.PollVote{},
		&models.Follow{},
		&models.Notification{},
	}
}
