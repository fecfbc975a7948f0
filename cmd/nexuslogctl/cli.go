package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"nexuslog/internal/app"
	"nexuslog/internal/category"
	"nexuslog/internal/config"
	"nexuslog/internal/provider"
	"nexuslog/internal/store"
	"nexuslog/internal/telegram"
)

// WebhookClient is the bot API surface the CLI manages.
type WebhookClient interface {
	Configured() bool
	SetWebhook(ctx context.Context, url, secretToken string) error
	WebhookInfo(ctx context.Context) (telegram.WebhookInfo, error)
	DeleteWebhook(ctx context.Context) error
}

type environment struct {
	cfg config.Config
	bot WebhookClient
	out io.Writer
}

func (e *environment) openStore(ctx context.Context) (*store.DB, error) {
	return store.Open(ctx, store.Config{
		Driver:       e.cfg.Database.Driver,
		URL:          e.cfg.Database.URL,
		MaxOpenConns: 2,
		MaxIdleConns: 1,
	})
}

// withStore opens the database, runs migrations so read commands work on a
// fresh file, and closes it afterwards.
func (e *environment) withStore(ctx context.Context, fn func(db *store.DB) error) error {
	db, err := e.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	if err := db.Migrate(ctx); err != nil {
		return err
	}
	return fn(db)
}

func newCLIApp(env *environment) *cli.App {
	a := &cli.App{
		Name:  "nexuslogctl",
		Usage: "Administer a NexusLog deployment",
		Commands: []*cli.Command{
			migrateCmd(env),
			webhookCmd(env),
			categoriesCmd(env),
			usageCmd(env),
			statusCmd(env),
		},
		Writer: env.out,
	}
	a.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return a
}

func migrateCmd(env *environment) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create the schema and seed the default categories",
		Action: func(c *cli.Context) error {
			return env.withStore(c.Context, func(db *store.DB) error {
				_, err := fmt.Fprintf(env.out, "database migrated (%s)\n", db.Driver())
				return err
			})
		},
	}
}

func webhookCmd(env *environment) *cli.Command {
	requireBot := func() error {
		if env.bot == nil || !env.bot.Configured() {
			return errors.New("TELEGRAM_BOT_TOKEN is required")
		}
		return nil
	}
	return &cli.Command{
		Name:  "webhook",
		Usage: "Manage the Telegram webhook",
		Subcommands: []*cli.Command{
			{
				Name:      "set",
				Usage:     "Point the bot at a public webhook URL",
				ArgsUsage: "<url>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "secret", Usage: "Secret token Telegram echoes back (defaults to TELEGRAM_WEBHOOK_SECRET)"},
				},
				Action: func(c *cli.Context) error {
					if err := requireBot(); err != nil {
						return err
					}
					url := c.Args().First()
					if url == "" {
						return errors.New("webhook URL is required")
					}
					secret := c.String("secret")
					if secret == "" {
						secret = env.cfg.Telegram.WebhookSecret
					}
					if err := env.bot.SetWebhook(c.Context, url, secret); err != nil {
						return err
					}
					_, err := fmt.Fprintf(env.out, "webhook set to %s\n", url)
					return err
				},
			},
			{
				Name:  "info",
				Usage: "Show the current webhook registration",
				Action: func(c *cli.Context) error {
					if err := requireBot(); err != nil {
						return err
					}
					info, err := env.bot.WebhookInfo(c.Context)
					if err != nil {
						return err
					}
					return writeJSON(env.out, info)
				},
			},
			{
				Name:  "delete",
				Usage: "Remove the webhook",
				Action: func(c *cli.Context) error {
					if err := requireBot(); err != nil {
						return err
					}
					if err := env.bot.DeleteWebhook(c.Context); err != nil {
						return err
					}
					_, err := fmt.Fprintln(env.out, "webhook deleted")
					return err
				},
			},
		},
	}
}

func categoriesCmd(env *environment) *cli.Command {
	return &cli.Command{
		Name:  "categories",
		Usage: "Print the category tree",
		Action: func(c *cli.Context) error {
			return env.withStore(c.Context, func(db *store.DB) error {
				nodes, err := category.New(db, env.cfg.MaxTopLevelCategories, nil).Tree(c.Context)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(env.out, category.Format(nodes))
				return err
			})
		},
	}
}

func usageCmd(env *environment) *cli.Command {
	return &cli.Command{
		Name:  "usage",
		Usage: "Summarize AI usage and estimated cost per provider",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "days", Aliases: []string{"d"}, Value: 30, Usage: "Look-back window in days"},
		},
		Action: func(c *cli.Context) error {
			days := c.Int("days")
			if days <= 0 {
				return errors.New("--days must be positive")
			}
			since := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
			return env.withStore(c.Context, func(db *store.DB) error {
				rows, err := db.UsageSummary(c.Context, since)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(env.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "PROVIDER\tCALLS\tINPUT\tOUTPUT\tCOST (USD)")
				var total float64
				for _, r := range rows {
					total += r.CostUSD
					fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.6f\n", r.Provider, r.Calls, r.InputTokens, r.OutputTokens, r.CostUSD)
				}
				fmt.Fprintf(tw, "TOTAL\t\t\t\t%.6f\n", total)
				return tw.Flush()
			})
		},
	}
}

type statusReport struct {
	Database  string                `json:"database"`
	Providers []string              `json:"providers"`
	Skipped   []string              `json:"skipped_providers"`
	Webhook   *telegram.WebhookInfo `json:"webhook,omitempty"`
	Telegram  string                `json:"telegram"`
}

func statusCmd(env *environment) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Check the database, AI providers and Telegram webhook",
		Action: func(c *cli.Context) error {
			report := statusReport{Database: "ok", Telegram: "not configured"}

			db, err := env.openStore(c.Context)
			if err == nil {
				err = db.Health(c.Context)
				_ = db.Close()
			}
			if err != nil {
				report.Database = err.Error()
			}

			adapters, err := app.Adapters(env.cfg.Providers, app.NewHTTPClient(10*time.Second), nil)
			if err != nil {
				return err
			}
			router := provider.NewRouter(adapters, provider.WithLogger(app.NewLogger("error")))
			report.Providers = router.Adapters()
			report.Skipped = router.Skipped()

			if env.bot != nil && env.bot.Configured() {
				info, err := env.bot.WebhookInfo(c.Context)
				if err != nil {
					report.Telegram = err.Error()
				} else {
					report.Telegram = "ok"
					report.Webhook = &info
				}
			}
			return writeJSON(env.out, report)
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
