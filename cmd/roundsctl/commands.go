package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"prode/internal/config"
	"prode/internal/domain"
	"prode/internal/leaderboard"
	"prode/internal/rounds"
	"prode/internal/service"
	"prode/pkg/auth"
	"prode/pkg/logger"
)

// newApp builds the CLI. Tables go to out, logs to errOut.
func newApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:      "roundsctl",
		Usage:     "inspect league rounds and leaderboards on the prediction API",
		Writer:    out,
		ErrWriter: errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "api-base-url",
				Usage:   "prediction API base URL",
				EnvVars: []string{"API_BASE_URL"},
			},
			&cli.StringFlag{
				Name:     "token",
				Usage:    "bearer token of the user to act as",
				EnvVars:  []string{"PRODE_TOKEN"},
				Required: true,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "warn",
			},
		},
		Commands: []*cli.Command{
			defaultRoundCommand(),
			leaderboardCommand(),
			legacyResultsCommand(),
		},
	}
}

// client wires an API client from the environment and global flags
func client(c *cli.Context) (*service.APIClient, *logger.Logger, context.Context, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	if c.IsSet("api-base-url") {
		cfg.APIBaseURL = strings.TrimRight(c.String("api-base-url"), "/")
	}

	log := logger.NewWithWriter(c.String("log-level"), c.App.ErrWriter)
	ctx := auth.WithToken(c.Context, c.String("token"))
	return service.NewAPIClient(cfg, log), log, ctx, nil
}

func defaultRoundCommand() *cli.Command {
	return &cli.Command{
		Name:  "default-round",
		Usage: "print the round a league screen opens on",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "league", Required: true},
			&cli.BoolFlag{Name: "not-general", Usage: "exclude the general round"},
		},
		Action: func(c *cli.Context) error {
			api, _, ctx, err := client(c)
			if err != nil {
				return err
			}

			list, err := api.ListRounds(ctx, c.Int("league"), c.Bool("not-general"))
			if err != nil {
				return err
			}
			id, err := rounds.ComputeDefaultRound(list, time.Now())
			if err != nil {
				return err
			}
			round, _ := domain.FindRoundByID(list, id)
			return printRounds(c.App.Writer, list, round.Slug)
		},
	}
}

func leaderboardCommand() *cli.Command {
	return &cli.Command{
		Name:  "leaderboard",
		Usage: "print a round leaderboard",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "round", Required: true},
			&cli.IntFlag{Name: "tournament", Usage: "0 for the general leaderboard"},
			&cli.BoolFlag{Name: "all", Usage: "follow cursors until the last page"},
		},
		Action: func(c *cli.Context) error {
			api, log, ctx, err := client(c)
			if err != nil {
				return err
			}

			pager := leaderboard.NewPager(api, log)
			view, err := pager.ResetAndFetchFirstPage(ctx, c.String("round"), c.Int("tournament"))
			if err != nil {
				return err
			}
			for c.Bool("all") && view.HasMore {
				if view, err = pager.LoadMore(ctx); err != nil {
					return err
				}
			}

			if err := printEntries(c.App.Writer, view.Entries); err != nil {
				return err
			}
			if view.HasMore {
				fmt.Fprintln(c.App.Writer, "… more pages available (use --all)")
			}
			return nil
		},
	}
}

func legacyResultsCommand() *cli.Command {
	return &cli.Command{
		Name:  "legacy-results",
		Usage: "print one page of the offset-paginated results endpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "round", Required: true},
			&cli.IntFlag{Name: "tournament"},
			&cli.IntFlag{Name: "offset"},
			&cli.IntFlag{Name: "limit", Value: 20},
		},
		Action: func(c *cli.Context) error {
			api, _, ctx, err := client(c)
			if err != nil {
				return err
			}

			page, err := api.FetchLegacyResults(ctx, c.String("round"), c.Int("tournament"), c.Int("offset"), c.Int("limit"))
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "count: %d\n", page.Count)
			return printEntries(c.App.Writer, page.Results)
		},
	}
}

func printRounds(w io.Writer, list []domain.Round, activeSlug string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tSLUG\tNAME\tSTATE\tSTART")
	for _, r := range list {
		marker := ""
		if r.Slug == activeSlug {
			marker = "*"
		}
		start := "-"
		if r.StartDate != nil {
			start = r.StartDate.Format(time.DateOnly)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n", marker, r.ID, r.Slug, r.Name, r.State, start)
	}
	return tw.Flush()
}

func printEntries(w io.Writer, entries []domain.LeaderboardEntry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "POS\tUSER\tPOINTS\tEXACT")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\n", e.Position, e.DisplayName, e.Points, e.ExactPredictions)
	}
	return tw.Flush()
}
