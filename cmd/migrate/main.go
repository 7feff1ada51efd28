// Command migrate applies, inspects and rolls back the SC Companion schema.
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"sccompanion/internal/config"
	"sccompanion/internal/database"

	"github.com/urfave/cli/v2"
	"gorm.io/gorm"
)

func open() (*config.Config, *gorm.DB, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: false})
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return cfg, db, nil
}

func main() {
	app := &cli.App{
		Name:  "migrate",
		Usage: "manage the database schema",
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply pending SQL migrations",
				Action: func(c *cli.Context) error {
					_, db, err := open()
					if err != nil {
						return err
					}
					if err := database.RunMigrations(c.Context, db); err != nil {
						return fmt.Errorf("sql migrations failed: %w", err)
					}
					log.Println("sql migrations applied")
					return nil
				},
			},
			{
				Name:  "auto",
				Usage: "run gorm AutoMigrate over every model",
				Action: func(c *cli.Context) error {
					cfg, db, err := open()
					if err != nil {
						return err
					}
					cfg.DBSchemaMode = database.SchemaModeAuto
					if err := database.ApplySchema(c.Context, db, cfg); err != nil {
						return fmt.Errorf("auto schema apply failed: %w", err)
					}
					log.Println("automigrations applied")
					return nil
				},
			},
			{
				Name:  "status",
				Usage: "show the schema plan and pending migrations",
				Action: func(c *cli.Context) error {
					cfg, db, err := open()
					if err != nil {
						return err
					}
					status, err := database.GetSchemaStatus(c.Context, db, cfg)
					if err != nil {
						return fmt.Errorf("schema status failed: %w", err)
					}
					fmt.Printf("mode=%s env=%s sql=%t auto=%t applied=%d pending=%d\n",
						status.Mode, status.Environment, status.RunSQL, status.RunAutoMigrate,
						len(status.AppliedVersions), len(status.PendingMigrations))
					for _, m := range status.PendingMigrations {
						fmt.Printf("pending  %s\n", m.String())
					}
					return nil
				},
			},
			{
				Name:  "list",
				Usage: "list the migrations built into this binary",
				Action: func(*cli.Context) error {
					for _, m := range database.GetMigrations() {
						fmt.Printf("%s  %s\n", m.String(), m.Checksum()[:12])
					}
					return nil
				},
			},
			{
				Name:      "down",
				Usage:     "roll back one applied migration",
				ArgsUsage: "<version>",
				Action: func(c *cli.Context) error {
					version, err := strconv.Atoi(c.Args().First())
					if err != nil {
						return fmt.Errorf("invalid version %q: %w", c.Args().First(), err)
					}
					_, db, err := open()
					if err != nil {
						return err
					}
					if err := database.RollbackMigration(c.Context, db, version); err != nil {
						return fmt.Errorf("rollback failed: %w", err)
					}
					log.Printf("rolled back migration %d", version)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
