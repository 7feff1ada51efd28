// Command admin provides account management utilities for SC Companion.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"sccompanion/internal/bootstrap"
	"sccompanion/internal/cache"
	"sccompanion/internal/config"
	"sccompanion/internal/database"
	"sccompanion/internal/models"
	"sccompanion/internal/repository"
	"sccompanion/internal/service"

	"github.com/urfave/cli/v2"
)

type runtime struct {
	store *repository.Store
	users *service.UserService
}

func connect() (*runtime, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	// Cached profiles and leaderboards are invalidated when Redis is reachable.
	cache.InitRedis(cfg.RedisURL)

	store := repository.NewStore(db)
	return &runtime{store: store, users: service.NewUserService(store, service.Dependencies{})}, nil
}

// resolve accepts a numeric id or a handle.
func (r *runtime) resolve(ctx context.Context, ref string) (*models.User, error) {
	if ref == "" {
		return nil, fmt.Errorf("a user id or handle is required")
	}
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		return r.store.Users.GetByID(ctx, uint(id))
	}
	u, err := r.store.Users.GetByHandle(ctx, ref)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("user %q not found", ref)
	}
	return u, nil
}

func printUser(u *models.User) {
	banned := "no"
	if u.IsBanned {
		banned = "yes"
		if u.BannedUntil != nil {
			banned = "until " + u.BannedUntil.UTC().Format("2006-01-02 15:04")
		}
	}
	fmt.Printf("ID: %d | Handle: %s | Email: %s | Role: %s | XP: %d | Active: %t | Banned: %s\n",
		u.ID, u.Handle, u.Email, u.Role, u.XP, u.IsActive, banned)
}

// withUser connects, resolves the first argument and runs fn.
func withUser(fn func(ctx context.Context, rt *runtime, u *models.User, c *cli.Context) (*models.User, error)) cli.ActionFunc {
	return func(c *cli.Context) error {
		rt, err := connect()
		if err != nil {
			return err
		}
		u, err := rt.resolve(c.Context, c.Args().First())
		if err != nil {
			return err
		}
		updated, err := fn(c.Context, rt, u, c)
		if err != nil {
			return err
		}
		printUser(updated)
		return nil
	}
}

func main() {
	app := &cli.App{
		Name:  "admin",
		Usage: "manage SC Companion accounts",
		Commands: []*cli.Command{
			{
				Name:      "set-role",
				Usage:     "assign a role to a user",
				ArgsUsage: "<id|handle>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "role", Required: true, Usage: "user, moderator, admin or super_admin"},
				},
				Action: withUser(func(ctx context.Context, rt *runtime, u *models.User, c *cli.Context) (*models.User, error) {
					role, err := models.ParseRole(c.String("role"))
					if err != nil {
						return nil, err
					}
					return rt.users.AssignRole(ctx, u.ID, role)
				}),
			},
			{
				Name:      "ban",
				Usage:     "ban a user, permanently unless --hours is given",
				ArgsUsage: "<id|handle>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "reason", Required: true},
					&cli.IntFlag{Name: "hours", Usage: "ban duration in hours"},
				},
				Action: withUser(func(ctx context.Context, rt *runtime, u *models.User, c *cli.Context) (*models.User, error) {
					in := service.BanInput{Reason: c.String("reason")}
					if c.IsSet("hours") {
						hours := c.Int("hours")
						in.Duration = &hours
					}
					return rt.users.SystemBan(ctx, u.ID, in)
				}),
			},
			{
				Name:      "unban",
				Usage:     "lift a user's ban",
				ArgsUsage: "<id|handle>",
				Action: withUser(func(ctx context.Context, rt *runtime, u *models.User, _ *cli.Context) (*models.User, error) {
					return rt.users.SystemUnban(ctx, u.ID)
				}),
			},
			{
				Name:      "award-xp",
				Usage:     "grant XP to a user",
				ArgsUsage: "<id|handle>",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "amount", Required: true},
					&cli.StringFlag{Name: "reason", Value: "manual"},
				},
				Action: withUser(func(ctx context.Context, rt *runtime, u *models.User, c *cli.Context) (*models.User, error) {
					return rt.users.AwardXP(ctx, 0, u.ID, c.Int64("amount"), c.String("reason"))
				}),
			},
			{
				Name:      "deactivate",
				Usage:     "turn an account off",
				ArgsUsage: "<id|handle>",
				Action: withUser(func(ctx context.Context, rt *runtime, u *models.User, _ *cli.Context) (*models.User, error) {
					return rt.users.Deactivate(ctx, u.ID)
				}),
			},
			{
				Name:      "reactivate",
				Usage:     "turn a deactivated account back on",
				ArgsUsage: "<id|handle>",
				Action: withUser(func(ctx context.Context, rt *runtime, u *models.User, _ *cli.Context) (*models.User, error) {
					return rt.users.Reactivate(ctx, u.ID)
				}),
			},
			{
				Name:  "expire-bans",
				Usage: "clear every timed ban that has run out",
				Action: func(c *cli.Context) error {
					rt, err := connect()
					if err != nil {
						return err
					}
					n, err := rt.users.ExpireBans(c.Context)
					if err != nil {
						return err
					}
					fmt.Printf("Cleared %d expired bans\n", n)
					return nil
				},
			},
			{
				Name:  "ensure-admin",
				Usage: "create or promote a super_admin account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true, EnvVars: []string{"SEED_ADMIN_EMAIL"}},
					&cli.StringFlag{Name: "password", EnvVars: []string{"SEED_ADMIN_PASSWORD"}},
				},
				Action: func(c *cli.Context) error {
					rt, err := connect()
					if err != nil {
						return err
					}
					u, created, err := bootstrap.EnsureAdmin(c.Context, rt.store, c.String("email"), c.String("password"), service.BcryptCost)
					if err != nil {
						return err
					}
					if created {
						fmt.Println("Created super_admin account")
					}
					printUser(u)
					return nil
				},
			},
			{
				Name:  "list-admins",
				Usage: "list moderators and above",
				Action: func(c *cli.Context) error {
					rt, err := connect()
					if err != nil {
						return err
					}
					var staff []models.User
					err = rt.store.DB().WithContext(c.Context).
						Where("role IN ?", []models.Role{models.RoleModerator, models.RoleAdmin, models.RoleSuperAdmin}).
						Order("id").Find(&staff).Error
					if err != nil {
						return err
					}
					if len(staff) == 0 {
						fmt.Println("No staff accounts found")
						return nil
					}
					for i := range staff {
						printUser(&staff[i])
					}
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
