// Command main runs the database seeder for PulseFeed.
package main

import (
	"context"
	"flag"
	"log"

	"pulsefeed/internal/config"
	"pulsefeed/internal/database"
	"pulsefeed/internal/seed"
	"pulsefeed/internal/storage"
)

func main() {
	// Parse command line flags
	numUsers := flag.Int("users", 5, "Number of users to create")
	numPosts := flag.Int("posts", 20, "Number of posts to create")
	fixture := flag.String("fixture", "", "Seed from a YAML fixture instead of random data")
	shouldClean := flag.Bool("clean", false, "Clean database before seeding")
	randomSeed := flag.Int64("seed", 0, "Random seed for reproducible data (0 = time based)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	ctx := context.Background()
	s := seed.NewSeeder(db, storage.NewImageStore(cfg), seed.Options{Seed: *randomSeed})

	if *shouldClean {
		if err := s.ClearAll(ctx); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	if *fixture != "" {
		f, err := seed.LoadFixture(*fixture)
		if err != nil {
			log.Fatalf("Failed to load fixture: %v", err)
		}
		if _, err := s.SeedFixture(ctx, f); err != nil {
			log.Fatalf("Fixture seeding failed: %v", err)
		}
	} else {
		log.Printf("Target: %d users, %d posts, clean=%v", *numUsers, *numPosts, *shouldClean)
		if _, err := s.SeedRandom(ctx, *numUsers, *numPosts); err != nil {
			log.Fatalf("Seeding failed: %v", err)
		}
	}

	log.Printf("Done. Users without a fixture password use %q", seed.DefaultPassword)
}
