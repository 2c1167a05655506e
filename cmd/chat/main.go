package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hola-chat/internal/auth"
	"hola-chat/internal/domain/profile"
	"hola-chat/internal/transport"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "hola",
		Usage: "Terminal client for hola-chat direct messages",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "token",
				Sources: cli.EnvVars("HOLA_ACCESS_TOKEN"),
				Usage:   "Access token of the signed-in user",
			},
			&cli.StringFlag{
				Name:    "realtime-url",
				Sources: cli.EnvVars("REALTIME_URL"),
				Usage:   "Websocket URL of the realtime gateway",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log engine activity to stderr",
			},
		},
		Commands: []*cli.Command{
			contactsCommand(),
			chatCommand(),
			tokenCommand(),
		},
	}
	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func contactsCommand() *cli.Command {
	return &cli.Command{
		Name:  "contacts",
		Usage: "List everyone you can message",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			deps, err := connect(ctx, cmd)
			if err != nil {
				return err
			}
			defer deps.Close()

			contacts, err := deps.directory.Contacts(ctx)
			if err != nil {
				return describe(err)
			}
			for _, p := range contacts {
				fmt.Printf("%-16s %s\n", p.Username, p.DisplayName())
			}
			return nil
		},
	}
}

func chatCommand() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Open a conversation",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "peer",
				Usage:    "Username to talk to",
				Required: true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			deps, err := connect(ctx, cmd)
			if err != nil {
				return err
			}
			defer deps.Close()

			peer, err := deps.directory.ByUsername(ctx, cmd.String("peer"))
			if err != nil {
				return describe(err)
			}
			r := newREPL(deps.session, peer, deps.cfg.Sync.MaxUploadBytes, os.Stdout)
			if err := deps.session.SetActiveChat(ctx, peer.ID); err != nil {
				r.printf("! %s\n", describe(err))
			}
			if w, err := deps.backend.WatchTyping(ctx, peer.ID); err == nil {
				defer w.Close()
				go r.watchTyping(ctx, w.Events())
			}
			return r.Run(ctx, os.Stdin)
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Issue a development access token",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "user",
				Usage:    "Username to sign in as",
				Required: true,
			},
			&cli.DurationFlag{
				Name:  "ttl",
				Usage: "Token lifetime",
				Value: 24 * time.Hour,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			deps, err := connect(ctx, cmd)
			if err != nil {
				return err
			}
			defer deps.Close()

			rows, err := deps.rows.Query(ctx, profile.TableName,
				transport.Filter{All: []transport.Cond{transport.Eq(profile.ColUsername, cmd.String("user"))}},
				transport.Order{Limit: 1})
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				return fmt.Errorf("no profile named %q", cmd.String("user"))
			}
			p, err := profile.FromRow(rows[0])
			if err != nil {
				return err
			}
			token, expiresAt, err := auth.NewTokenService(deps.cfg.JWTSecret, cmd.Duration("ttl")).Issue(p.ID)
			if err != nil {
				return err
			}
			fmt.Printf("export HOLA_ACCESS_TOKEN=%s  # expires %s\n", token, expiresAt.Format(time.RFC3339))
			return nil
		},
	}
}
