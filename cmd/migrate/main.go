package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/pressly/goose/v3"
	"github.com/urfave/cli/v2"
	_ "modernc.org/sqlite"

	"bili_bot/migrations"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "migrate",
		Usage: "Manage the bili_bot SQLite schema",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db",
				Usage:   "path to sqlite database",
				EnvVars: []string{"DATABASE_PATH"},
				Value:   "./data/bot.db",
			},
		},
		Commands: []*cli.Command{
			gooseCmd("up", "Migrate to the latest version", goose.Up),
			gooseCmd("up-one", "Migrate one version up", goose.UpByOne),
			gooseCmd("down", "Roll back one version", goose.Down),
			gooseCmd("status", "Show migration status", goose.Status),
			gooseCmd("version", "Show current version", goose.Version),
			gooseCmd("reset", "Roll back all migrations", goose.Reset),
		},
	}
}

type gooseFunc func(db *sql.DB, dir string, opts ...goose.OptionsFunc) error

func gooseCmd(name, usage string, run gooseFunc) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Action: func(c *cli.Context) error {
			db, err := sql.Open("sqlite", c.String("db"))
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer func() { _ = db.Close() }()

			if err := migrations.Prepare(); err != nil {
				return err
			}
			if err := run(db, "."); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		},
	}
}
