package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"xnom/internal/auth"
	"xnom/internal/cmdlog"
	"xnom/internal/config"
	"xnom/internal/model"
	"xnom/internal/push"
	"xnom/internal/store"
	"xnom/internal/theme"
	"xnom/internal/util"
)

var (
	initForce   bool
	statsHours  int
	statsJSON   bool
	ideasCount  int
	ideasList   bool
	approveID   string
	publishID   string
	commandWait time.Duration
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config to --config",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdlog.Run("init", func() error {
			if !initForce {
				if _, err := os.Stat(configPath); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
				}
			}
			if err := config.Save(configPath, config.Default()); err != nil {
				return err
			}
			abs, _ := filepath.Abs(configPath)
			fmt.Fprintln(cmd.OutOrStdout(), "Config written to:", abs)
			return nil
		})
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch, score and store one batch of mentions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdlog.Run("ingest", func() error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.pipeline.RunOnce(ctx); err != nil {
					return err
				}
				st, err := a.pipeline.Stats(ctx)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), notificationSummary(st.TotalToday, st.Breakdown))
				return nil
			})
		})
	},
}

var engageCmd = &cobra.Command{
	Use:   "engage",
	Short: "Run one auto-engagement pass",
	Long: `Searches for popular tweets and engages with the eligible ones, honouring
the exclude and target keywords, the engagement threshold and the hourly
budget. The auto-engagement toggle is not consulted for a single pass.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdlog.Run("engage", func() error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				res, err := a.engine.Tick(ctx)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), theme.KV("Engagement pass", map[string]string{
					"outcome":    res.Outcome,
					"candidates": strconv.Itoa(res.Candidates),
					"attempted":  strconv.Itoa(res.Attempted),
					"succeeded":  strconv.Itoa(res.Succeeded),
					"skipped":    strconv.Itoa(res.Skipped),
				}))
				return nil
			})
		})
	},
}

var likeCmd = &cobra.Command{
	Use:   "like <tweet-id>",
	Short: "Like one tweet, with retries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdlog.Run("like", func() error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				res := a.engine.EngageManually(ctx, args[0])
				fmt.Fprintf(cmd.OutOrStdout(), "like %s: %s\n", args[0], theme.Outcome(res.Success))
				if !res.Success {
					return errors.New(res.Error)
				}
				return nil
			})
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show notification and engagement stats",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdlog.Run("stats", func() error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				ns, err := a.pipeline.Stats(ctx)
				if err != nil {
					return err
				}
				es, err := a.engine.Stats(ctx, statsHours)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if statsJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(map[string]any{"notifications": ns, "engagement": es})
				}
				fmt.Fprint(out, notificationSummary(ns.TotalToday, ns.Breakdown))
				kv := map[string]string{"window": fmt.Sprintf("%dh", es.WindowHours)}
				for kind, c := range es.ByKind {
					kv[string(kind)] = fmt.Sprintf("%d ok / %d failed", c.Successful, c.Failed)
				}
				fmt.Fprint(out, theme.KV("Engagement", kv))
				for _, act := range es.RecentActions {
					fmt.Fprintf(out, "  %s  %-8s %-22s %s\n",
						act.Timestamp.Format(time.RFC3339), act.Kind, act.TargetEventID, theme.Outcome(act.Success))
				}
				return nil
			})
		})
	},
}

var ideasCmd = &cobra.Command{
	Use:   "ideas [topic]",
	Short: "Generate, list or approve post ideas",
	Long: `With a topic, generates and stores post ideas scheduled into upcoming
non-quiet hours. With --list, prints stored ideas; with --approve <id>,
approves one; with --publish <id>, posts an approved idea.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdlog.Run("ideas", func() error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				out := cmd.OutOrStdout()
				switch {
				case publishID != "":
					tweetID, err := a.ideas.Publish(ctx, a.client, publishID)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "published %s as tweet %s\n", publishID, tweetID)
					return nil
				case approveID != "":
					idea, err := a.ideas.Approve(ctx, approveID)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "approved %s\n", idea.ID)
					return nil
				case ideasList:
					ideas, err := a.ideas.List(ctx, false, 50)
					if err != nil {
						return err
					}
					printIdeas(cmd, ideas)
					return nil
				case len(args) == 0:
					return errors.New("a topic is required")
				}
				ideas, err := a.ideas.Generate(ctx, args[0], ideasCount)
				if err != nil {
					return err
				}
				printIdeas(cmd, ideas)
				return nil
			})
		})
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an API token for the configured account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdlog.Run("token", func() error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				iss, err := a.issuer()
				if err != nil {
					return err
				}
				u, err := a.currentUser(ctx)
				if err != nil {
					return err
				}
				acc, err := auth.EnsureAccount(ctx, a.store, u, time.Now().UTC())
				if err != nil {
					return err
				}
				tok, err := iss.Issue(acc)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), tok)
				return nil
			})
		})
	},
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing config")
	statsCmd.Flags().IntVar(&statsHours, "hours", 24, "Engagement window in hours")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Print raw JSON")
	ideasCmd.Flags().IntVarP(&ideasCount, "count", "n", 5, "Number of ideas to generate (max 10)")
	ideasCmd.Flags().BoolVar(&ideasList, "list", false, "List stored ideas")
	ideasCmd.Flags().StringVar(&approveID, "approve", "", "Approve the idea with this id")
	ideasCmd.Flags().StringVar(&publishID, "publish", "", "Post the approved idea with this id")
	for _, c := range []*cobra.Command{ingestCmd, engageCmd, likeCmd, statsCmd, ideasCmd, tokenCmd} {
		c.Flags().DurationVar(&commandWait, "timeout", 2*time.Minute, "Give up after this long")
	}
}

// withApp loads config, wires the services with a log-only push sink and
// runs f under the --timeout deadline.
func withApp(cmd *cobra.Command, f func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, commandWait)
	defer cancel()
	a, err := newApp(ctx, cfg, push.LogSink{})
	if err != nil {
		return err
	}
	defer a.Close()
	return f(ctx, a)
}

// currentUser asks X who the credentials belong to, falling back to the
// configured username when there are no credentials.
func (a *app) currentUser(ctx context.Context) (model.User, error) {
	if a.cfg.Credentials.BearerToken != "" || a.cfg.Credentials.UserToken != "" {
		return a.client.GetMe(ctx)
	}
	name := strings.TrimPrefix(a.cfg.Account.Username, "@")
	if name == "" {
		return model.User{}, errors.New("no credentials and no account.username configured")
	}
	return model.User{ID: "local:" + name, Username: name}, nil
}

func notificationSummary(total int, rows []store.KindPriorityCount) string {
	kv := map[string]string{"last 24h": strconv.Itoa(total)}
	for _, r := range rows {
		kv[fmt.Sprintf("%s/%s", r.Kind, r.Priority)] = theme.Priority(r.Priority) + " " + strconv.Itoa(r.Count)
	}
	return theme.KV("Notifications", kv)
}

func printIdeas(cmd *cobra.Command, ideas []model.PostIdea) {
	out := cmd.OutOrStdout()
	if len(ideas) == 0 {
		fmt.Fprintln(out, "no ideas")
		return
	}
	for _, p := range ideas {
		when := "-"
		if p.ScheduledFor != nil {
			when = p.ScheduledFor.Format("Mon 15:04")
		}
		mark := " "
		if p.Approved {
			mark = "✓"
		}
		fmt.Fprintf(out, "%s %s  %4.1f  %-9s %-10s %s\n", mark, util.Truncate(p.ID, 8), p.Score, when, p.Category, p.Content)
	}
}
