// Command seed fills the identity and relational stores with demo data.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"chirp/internal/config"
	"chirp/internal/database"
	"chirp/internal/identity"
	"chirp/internal/seed"

	"go.mongodb.org/mongo-driver/bson"
)

func main() {
	numUsers := flag.Int("users", 50, "Number of users to create")
	numPosts := flag.Int("posts", 200, "Number of posts to create")
	followsPerUser := flag.Int("follows", 8, "Follow edges per user")
	maxDays := flag.Int("days", 30, "Spread post timestamps over this many days")
	shouldClean := flag.Bool("clean", true, "Clean both stores before seeding")
	fast := flag.Bool("fast", false, "Skip bcrypt hashing; seeded accounts cannot log in")
	randomSeed := flag.Int64("seed", 0, "Random seed (0 picks one)")
	flag.Parse()

	log.Printf("Target: %d users, %d posts, clean=%v", *numUsers, *numPosts, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	mongoClient, mongoDB, err := database.ConnectMongo(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()

	s := seed.NewSeeder(db, identity.NewMongoStore(mongoDB), seed.Options{
		NumUsers:       *numUsers,
		NumPosts:       *numPosts,
		FollowsPerUser: *followsPerUser,
		MaxDays:        *maxDays,
		SkipBcrypt:     *fast,
		RandomSeed:     *randomSeed,
	})

	if *shouldClean {
		if err := s.ClearRelational(ctx); err != nil {
			log.Fatalf("Relational cleanup failed: %v", err)
		}
		// DeleteMany keeps the unique indexes in place.
		if _, err := mongoDB.Collection("users").DeleteMany(ctx, bson.D{}); err != nil {
			log.Fatalf("Identity cleanup failed: %v", err)
		}
	}

	res, err := s.Run(ctx)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Seeded %d users, %d follows, %d posts, %d likes, %d retweets, %d comments, %d poll votes",
		res.Users, res.Follows, res.Posts, res.Likes, res.Retweets, res.Comments, res.PollVotes)
	log.Printf("All demo users have the password: %s", seed.DefaultPassword)
}
