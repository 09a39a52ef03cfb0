// Package main provides atomctl, a command line client running the same
// extraction pipeline as the server and printing JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/atom-api/atom/internal/buildinfo"
	"github.com/atom-api/atom/internal/config"
	"github.com/atom-api/atom/internal/logger"
	"github.com/atom-api/atom/internal/scraper"
	"github.com/atom-api/atom/internal/service"
)

// options holds the persistent flags.
type options struct {
	logLevel string
	groups   []string
	religion bool
	health   bool
	short    string
	random   bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, loadService).ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// serviceFactory builds the service for one invocation.
type serviceFactory func(opts *options) (*service.Service, error)

func newRootCmd(out io.Writer, build serviceFactory) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "atomctl",
		Short:         "Query school timetables, directory and substitutions",
		Version:       buildinfo.DisplayVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level written to stderr")
	flags.StringSliceVar(&opts.groups, "groups", nil, "keep only lessons of these groups, e.g. 1/2,j1")
	flags.BoolVar(&opts.religion, "religion", true, "include religion lessons")
	flags.BoolVar(&opts.health, "health", true, "include health education lessons")
	flags.BoolVar(&opts.random, "random-agent", false, "send a random browser User-Agent")

	root.AddCommand(
		&cobra.Command{
			Use:   "directory",
			Short: "List sections, teachers and rooms",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				svc, err := build(opts)
				if err != nil {
					return err
				}
				dir, err := svc.GetDirectory(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(out, dir)
			},
		},
		timetableCmd(out, opts, build),
		&cobra.Command{
			Use:   "substitutions [id]",
			Short: "Show the substitution notice, optionally for one section or teacher",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				svc, err := build(opts)
				if err != nil {
					return err
				}
				identifier := ""
				if len(args) == 1 {
					identifier = args[0]
				}
				result, err := svc.GetSubstitutions(cmd.Context(), identifier, service.SubstitutionQuery{
					Groups:   opts.groups,
					Subjects: subjectFlags(cmd, opts),
				})
				if err != nil {
					return err
				}
				return printJSON(out, result)
			},
		},
	)
	return root
}

func timetableCmd(out io.Writer, opts *options, build serviceFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timetable <id>",
		Short: "Show the plan of a section (o…), teacher (n…) or room (s…)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := build(opts)
			if err != nil {
				return err
			}
			q := service.TimetableQuery{
				Groups:   opts.groups,
				Subjects: subjectFlags(cmd, opts),
			}
			if opts.short != "" {
				q.ShortDay = &opts.short
			}
			tt, err := svc.GetTimetable(cmd.Context(), args[0], q)
			if err != nil {
				return err
			}
			return printJSON(out, tt)
		},
	}
	cmd.Flags().StringVar(&opts.short, "short", "", "day on which the shortened schedule applies, e.g. Piątek")
	return cmd
}

// subjectFlags passes the religion and health switches on only when the
// user set them, so unset flags keep every subject.
func subjectFlags(cmd *cobra.Command, opts *options) map[string]bool {
	var religion, health *bool
	if cmd.Flags().Changed("religion") {
		religion = &opts.religion
	}
	if cmd.Flags().Changed("health") {
		health = &opts.health
	}
	return service.SubjectFlags(religion, health)
}

func loadService(opts *options) (*service.Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	userAgent := cfg.UserAgent
	if opts.random {
		userAgent = scraper.RandomUserAgent
	}

	log := logger.NewWithWriter(opts.logLevel, os.Stderr)
	client := scraper.NewClient(scraper.Options{
		Timeout:     cfg.ScraperTimeout,
		Concurrency: int64(cfg.ScraperConcurrency),
		UserAgent:   userAgent,
	})
	return service.New(service.Options{
		Directory:     cfg.Directory,
		Plans:         cfg.Plans,
		Substitutions: cfg.Substitutions,
		Groups:        cfg.Groups,
		ShortSchedule: cfg.ShortSchedule,
		Fetcher:       client,
		Logger:        log,
	}), nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
