// Command main runs the database seeder for SC Companion.
package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"sccompanion/internal/bootstrap"
	"sccompanion/internal/config"
	"sccompanion/internal/database"
	"sccompanion/internal/repository"
	"sccompanion/internal/seed"
	"sccompanion/internal/service"

	"github.com/urfave/cli/v2"
	"gorm.io/gorm"
)

func main() {
	app := &cli.App{
		Name:  "seed",
		Usage: "populate a database with demo pilots, posts and relationships",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "preset",
				Usage: fmt.Sprintf("built-in preset (%s) or a YAML file path", strings.Join(seed.PresetNames(), ", ")),
			},
			&cli.StringFlag{Name: "sqlite", Usage: "seed a SQLite file instead of the configured Postgres database"},
			&cli.BoolFlag{Name: "clean", Usage: "delete existing social data first"},
			&cli.IntFlag{Name: "users", Usage: "number of users (overrides the preset)"},
			&cli.IntFlag{Name: "posts-per-user", Usage: "mean posts per user (overrides the preset)"},
			&cli.Int64Flag{Name: "random-seed", Usage: "generator seed; the same seed yields the same data"},
			&cli.BoolFlag{Name: "with-admin", Usage: "also ensure the SEED_ADMIN_EMAIL super_admin"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
}

func run(c *cli.Context) error {
	opts := seed.DefaultOptions()
	if name := c.String("preset"); name != "" {
		var err error
		if opts, err = seed.LoadPreset(name); err != nil {
			return err
		}
	}
	if c.IsSet("users") {
		opts.Users = c.Int("users")
	}
	if c.IsSet("posts-per-user") {
		opts.PostsPerUser = c.Int("posts-per-user")
	}
	if c.IsSet("random-seed") {
		opts.RandomSeed = c.Int64("random-seed")
	}
	opts.Clean = c.Bool("clean")

	var (
		db  *gorm.DB
		cfg *config.Config
		err error
	)
	if path := c.String("sqlite"); path != "" {
		db, err = database.OpenSQLite(path)
	} else {
		if cfg, err = config.LoadConfig(); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		db, err = database.Connect(cfg)
	}
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	log.Printf("Seeding %d users (posts/user=%d follows/user=%d friends/user=%d clean=%t)",
		opts.Users, opts.PostsPerUser, opts.FollowsPerUser, opts.FriendsPerUser, opts.Clean)

	sum, err := seed.NewSeeder(db, opts).Run(c.Context)
	if err != nil {
		return err
	}
	log.Printf("Inserted %d users, %d posts, %d likes, %d follows, %d friendships",
		sum.Users, sum.Posts, sum.Likes, sum.Follows, sum.Friendships)
	log.Printf("All generated users have the password: %s", seed.DefaultPassword)

	if c.Bool("with-admin") {
		email, password := os.Getenv("SEED_ADMIN_EMAIL"), os.Getenv("SEED_ADMIN_PASSWORD")
		if cfg != nil {
			email, password = cfg.SeedAdminEmail, cfg.SeedAdminPassword
		}
		u, _, err := bootstrap.EnsureAdmin(c.Context, repository.NewStore(db), email, password, service.BcryptCost)
		if err != nil {
			return fmt.Errorf("ensure admin: %w", err)
		}
		log.Printf("Admin account: %s (%s)", u.Handle, u.Email)
	}
	return nil
}
