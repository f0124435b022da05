package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"herald/internal/queue"
	"herald/internal/queueaccess"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the post queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueAddCommand(ctx))
	queueCmd.AddCommand(newQueueApproveCommand(ctx))
	queueCmd.AddCommand(newQueueRejectCommand(ctx))
	queueCmd.AddCommand(newQueueScheduleCommand(ctx))
	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	queueCmd.AddCommand(newQueuePublishCommand(ctx))
	queueCmd.AddCommand(newQueueHistoryCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List posts",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(statusFlags)
			if err != nil {
				return err
			}
			return ctx.withQueue(cmd, func(access queueaccess.Access) error {
				posts, err := access.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if jsonOutput {
					if posts == nil {
						posts = []queue.Post{}
					}
					return writeJSON(cmd, posts)
				}
				if len(posts) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Platform", "Type", "Status", "Scheduled", "Retries", "Text"},
					buildPostListRows(posts),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by status (pending, approved, scheduled, posted, failed)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one post in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd, func(access queueaccess.Access) error {
				post, err := access.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, post)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Field", "Value"},
					buildPostDetailRows(post),
					[]columnAlignment{alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

type addFlags struct {
	platform     string
	postType     string
	text         string
	hashtags     []string
	mentions     []string
	link         string
	pollOptions  []string
	pollDuration int
	assets       []string
	at           string
	draftFile    string
	approve      bool
	jsonOutput   bool
}

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	var flags addFlags

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Queue a new post for approval",
		Long: "Queue a new post. Fields come from flags, or from a JSON draft with --file\n" +
			"(use - for stdin). The post starts pending unless --approve is given.",
		Example: "  herald queue add --platform twitter --text \"Launch day\" --at +2h\n" +
			"  herald queue add --platform instagram --type reel --asset clips/launch.mp4 --approve",
		RunE: func(cmd *cobra.Command, args []string) error {
			draft, err := buildDraft(cmd, flags, time.Now())
			if err != nil {
				return err
			}
			return ctx.withQueue(cmd, func(access queueaccess.Access) error {
				id, err := access.Add(cmd.Context(), draft)
				if err != nil {
					return err
				}
				approved := false
				if flags.approve {
					if approved, err = access.Approve(cmd.Context(), id); err != nil {
						return fmt.Errorf("post %s queued but not approved: %w", id, err)
					}
				}
				if flags.jsonOutput {
					return writeJSON(cmd, map[string]any{"id": id, "approved": approved})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued post %s\n", id)
				if approved {
					fmt.Fprintln(cmd.OutOrStdout(), "Approved for publishing")
				}
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.platform, "platform", "p", "", "Destination platform (twitter, instagram, facebook, tiktok)")
	f.StringVarP(&flags.postType, "type", "t", "", "Post type (feed, reel, story, thread, poll); defaults per platform")
	f.StringVar(&flags.text, "text", "", "Post text")
	f.StringSliceVar(&flags.hashtags, "hashtag", nil, "Hashtag to append (repeatable)")
	f.StringSliceVar(&flags.mentions, "mention", nil, "Account to mention (repeatable)")
	f.StringVar(&flags.link, "link", "", "Link to attach")
	f.StringSliceVar(&flags.pollOptions, "poll-option", nil, "Poll option (repeatable, 2 to 4)")
	f.IntVar(&flags.pollDuration, "poll-duration", 0, "Poll duration in minutes")
	f.StringSliceVarP(&flags.assets, "asset", "a", nil, "Asset id relative to paths.asset_dir (repeatable)")
	f.StringVar(&flags.at, "at", "", "Scheduled time: RFC 3339, \"2006-01-02 15:04\" local, +duration, or now")
	f.StringVarP(&flags.draftFile, "file", "f", "", "Read a JSON draft from this file (- for stdin)")
	f.BoolVar(&flags.approve, "approve", false, "Approve the post right after queueing it")
	f.BoolVar(&flags.jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func buildDraft(cmd *cobra.Command, flags addFlags, now time.Time) (queue.Draft, error) {
	var draft queue.Draft
	if path := strings.TrimSpace(flags.draftFile); path != "" {
		data, err := readDraftSource(cmd, path)
		if err != nil {
			return draft, err
		}
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&draft); err != nil {
			return draft, fmt.Errorf("parse draft %s: %w", path, err)
		}
	}

	// Flags override the file.
	if flags.platform != "" {
		platform, err := queue.ParsePlatform(flags.platform)
		if err != nil {
			return draft, err
		}
		draft.Platform = platform
	}
	if flags.postType != "" {
		draft.PostType = queue.PostType(strings.ToLower(strings.TrimSpace(flags.postType)))
	}
	if flags.text != "" {
		draft.Content.Text = flags.text
	}
	if len(flags.hashtags) > 0 {
		draft.Content.Hashtags = flags.hashtags
	}
	if len(flags.mentions) > 0 {
		draft.Content.Mentions = flags.mentions
	}
	if flags.link != "" {
		draft.Content.Link = flags.link
	}
	if len(flags.pollOptions) > 0 {
		draft.Content.PollOptions = flags.pollOptions
	}
	if flags.pollDuration > 0 {
		draft.Content.PollDurationMinutes = flags.pollDuration
	}
	if len(flags.assets) > 0 {
		draft.AssetIDs = flags.assets
	}
	if flags.at != "" {
		at, err := parseWhen(flags.at, now)
		if err != nil {
			return draft, err
		}
		draft.ScheduledTime = at
	}
	if draft.Platform == "" {
		return draft, errors.New("--platform is required")
	}
	return draft, nil
}

func readDraftSource(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read draft: %w", err)
	}
	return data, nil
}

func newQueueApproveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <id>...",
		Short: "Approve pending posts for publishing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd, func(access queueaccess.Access) error {
				return forEachID(cmd, args, "Approved", access.Approve)
			})
		},
	}
}

func newQueueRejectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reject <id>...",
		Short: "Remove pending or approved posts from the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd, func(access queueaccess.Access) error {
				return forEachID(cmd, args, "Rejected", access.Reject)
			})
		},
	}
}

func newQueueScheduleCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule <id> <when>",
		Short: "Change when a pending or approved post goes out",
		Long: "Change the scheduled time of a post. <when> accepts RFC 3339,\n" +
			"\"2006-01-02 15:04\" in local time, +duration (e.g. +90m), or now.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := parseWhen(args[1], time.Now())
			if err != nil {
				return err
			}
			return ctx.withQueue(cmd, func(access queueaccess.Access) error {
				if _, err := access.Schedule(cmd.Context(), args[0], at); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Post %s scheduled for %s\n", args[0], formatTime(at))
				return nil
			})
		},
	}
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show post counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd, func(access queueaccess.Access) error {
				stats, err := access.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, stats)
				}
				if stats.Total == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Status", "Count"},
					buildStatsRows(stats),
					[]columnAlignment{alignLeft, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newQueuePublishCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "publish <id>",
		Short: "Publish an approved post now, ignoring its schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd, func(access queueaccess.Access) error {
				post, err := access.PublishNow(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, post)
				}
				out := cmd.OutOrStdout()
				switch post.Status {
				case queue.StatusPosted:
					fmt.Fprintf(out, "Posted %s to %s", post.ID, post.Platform)
					if post.PostURL != "" {
						fmt.Fprintf(out, ": %s", post.PostURL)
					}
					fmt.Fprintln(out)
				case queue.StatusFailed:
					return fmt.Errorf("post %s failed: %s", post.ID, post.Error)
				default:
					fmt.Fprintf(out, "Post %s not published (%s); retry %d scheduled for %s\n",
						post.ID, post.Error, post.RetryCount, formatTime(post.ScheduledTime))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newQueueHistoryCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show recorded publish attempts for a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd, func(access queueaccess.Access) error {
				attempts, err := access.History(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, attempts)
				}
				if len(attempts) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No attempts recorded for %s\n", args[0])
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"#", "Stage", "Result", "Started", "Took", "Detail"},
					buildHistoryRows(attempts),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

// forEachID applies action to each id and reports per-id results. Every id is
// attempted; the first error is returned after the loop.
func forEachID(cmd *cobra.Command, ids []string, verb string, action func(context.Context, string) (bool, error)) error {
	out := cmd.OutOrStdout()
	var firstErr error
	for _, id := range ids {
		changed, err := action(cmd.Context(), id)
		switch {
		case err != nil:
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", id, err)
			if firstErr == nil {
				firstErr = err
			}
		case changed:
			fmt.Fprintf(out, "%s post %s\n", verb, id)
		default:
			fmt.Fprintf(out, "Post %s unchanged\n", id)
		}
	}
	return firstErr
}

func parseStatuses(values []string) ([]queue.Status, error) {
	statuses := make([]queue.Status, 0, len(values))
	for _, v := range values {
		s, err := queue.ParseStatus(v)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, s)
	}
	return statuses, nil
}

var localLayouts = []string{"2006-01-02 15:04", "2006-01-02T15:04", "2006-01-02 15:04:05"}

// parseWhen accepts RFC 3339, a local wall-clock layout, +duration, or now.
func parseWhen(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return time.Time{}, errors.New("time is required")
	case strings.EqualFold(value, "now"):
		return now, nil
	case strings.HasPrefix(value, "+"):
		d, err := time.ParseDuration(value[1:])
		if err != nil {
			return time.Time{}, fmt.Errorf("parse offset %q: %w", value, err)
		}
		return now.Add(d), nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q; use RFC 3339, \"2006-01-02 15:04\", +duration, or now", value)
}
