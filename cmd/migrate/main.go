package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"notebook.app/internal/auth"
	"notebook.app/internal/migrate"
	"notebook.app/internal/obs"
	"notebook.app/internal/store/pg"
)

func main() {
	app := &cli.App{
		Name:  "migrate",
		Usage: "Schema and maintenance tasks for the notebook database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dsn",
				Usage:   "PostgreSQL DSN",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 30 * time.Second,
				Usage: "Overall timeout for the command",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log each migration as it is applied",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "up",
				Usage:  "Apply all pending migrations",
				Action: withManager(migrateUp),
			},
			{
				Name:   "down",
				Usage:  "Roll back the most recent migration",
				Action: withManager(migrateDown),
			},
			{
				Name:   "status",
				Usage:  "Show applied and pending migrations",
				Action: withManager(migrateStatus),
			},
			{
				Name:   "purge-tokens",
				Usage:  "Delete expired and revoked refresh tokens now",
				Action: withStore(purgeTokens),
			},
			{
				Name:  "create-admin",
				Usage: "Create an ADMIN account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Required: true, Usage: "Username"},
					&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Required: true, Usage: "Email"},
					&cli.StringFlag{
						Name:    "password",
						Aliases: []string{"p"},
						EnvVars: []string{"ADMIN_PASSWORD"},
						Usage:   "Password (prefer ADMIN_PASSWORD over the flag)",
					},
					&cli.IntFlag{Name: "bcrypt-cost", Value: 12, EnvVars: []string{"BCRYPT_COST"}, Usage: "bcrypt cost"},
				},
				Action: withStore(createAdmin),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func openStore(c *cli.Context) (*pg.Store, context.Context, context.CancelFunc, error) {
	dsn := c.String("dsn")
	if dsn == "" {
		return nil, nil, nil, errors.New("missing DSN: provide via --dsn or DATABASE_URL")
	}
	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	store, err := pg.Open(ctx, dsn)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return store, ctx, cancel, nil
}

func withStore(fn func(context.Context, *cli.Context, *pg.Store) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		store, ctx, cancel, err := openStore(c)
		if err != nil {
			return err
		}
		defer cancel()
		defer store.Close()
		return fn(ctx, c, store)
	}
}

func withManager(fn func(context.Context, *migrate.Manager) error) cli.ActionFunc {
	return withStore(func(ctx context.Context, c *cli.Context, store *pg.Store) error {
		mgr, err := migrate.NewManager(store.DB(), migrate.WithVerbose(c.Bool("verbose")))
		if err != nil {
			return err
		}
		return fn(ctx, mgr)
	})
}

func migrateUp(ctx context.Context, mgr *migrate.Manager) error {
	n, err := mgr.Up(ctx)
	if err != nil {
		return err
	}
	v, err := mgr.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("applied %d migration(s), schema version %d\n", n, v)
	return nil
}

func migrateDown(ctx context.Context, mgr *migrate.Manager) error {
	if err := mgr.Down(ctx); err != nil {
		return err
	}
	v, err := mgr.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("rolled back, schema version %d\n", v)
	return nil
}

func migrateStatus(ctx context.Context, mgr *migrate.Manager) error {
	list, err := mgr.Status(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED AT")
	for _, s := range list {
		applied := "pending"
		if s.Applied {
			applied = s.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", s.Version, s.Name, applied)
	}
	return tw.Flush()
}

func purgeTokens(ctx context.Context, _ *cli.Context, store *pg.Store) error {
	n, err := store.RefreshTokens().PurgeExpiredAndRevoked(ctx, time.Now())
	if err != nil {
		return err
	}
	obs.Logger().Info("refresh tokens purged", "count", n)
	fmt.Printf("purged %d refresh token(s)\n", n)
	return nil
}

func createAdmin(ctx context.Context, c *cli.Context, store *pg.Store) error {
	password := c.String("password")
	if password == "" {
		return errors.New("password is required: set ADMIN_PASSWORD or --password")
	}
	// no tokens are issued from this tool, so the signing key is throwaway
	key := make([]byte, auth.MinSecretBytes)
	if _, err := rand.Read(key); err != nil {
		return err
	}
	codec, err := auth.NewCodec(key, "", 0, nil)
	if err != nil {
		return err
	}
	svc, err := auth.NewService(store.Users(), codec,
		auth.NewRefreshTokens(store.RefreshTokens(), 0, nil),
		auth.WithBcryptCost(c.Int("bcrypt-cost")))
	if err != nil {
		return err
	}
	u, err := svc.CreateAdmin(ctx, auth.RegisterInput{
		Username: c.String("username"),
		Email:    c.String("email"),
		Password: password,
	})
	if err != nil {
		return err
	}
	fmt.Printf("created admin %s (%s)\n", u.Email, u.ID)
	return nil
}
