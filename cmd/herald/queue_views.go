package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"

	"herald/internal/history"
	"herald/internal/queue"
)

const listTextWidth = 48

func buildPostListRows(posts []queue.Post) [][]string {
	rows := make([][]string, 0, len(posts))
	for _, p := range posts {
		rows = append(rows, []string{
			p.ID,
			string(p.Platform),
			string(p.PostType),
			string(p.Status),
			formatTime(p.ScheduledTime),
			fmt.Sprint(p.RetryCount),
			summarizeText(p),
		})
	}
	return rows
}

func summarizeText(p queue.Post) string {
	summary := strings.Join(strings.Fields(p.Content.Text), " ")
	if summary == "" && len(p.AssetIDs) > 0 {
		summary = fmt.Sprintf("(%d asset(s))", len(p.AssetIDs))
	}
	return text.Snip(summary, listTextWidth, "...")
}

func buildPostDetailRows(p queue.Post) [][]string {
	rows := [][]string{
		{"ID", p.ID},
		{"Platform", string(p.Platform)},
		{"Type", string(p.PostType)},
		{"Status", string(p.Status)},
		{"Scheduled", formatTime(p.ScheduledTime)},
		{"Retries", fmt.Sprint(p.RetryCount)},
		{"Created", formatTime(p.CreatedAt)},
		{"Updated", formatTime(p.UpdatedAt)},
		{"Text", p.Content.Text},
	}
	if len(p.Content.Hashtags) > 0 {
		rows = append(rows, []string{"Hashtags", strings.Join(p.Content.Hashtags, " ")})
	}
	if len(p.Content.Mentions) > 0 {
		rows = append(rows, []string{"Mentions", strings.Join(p.Content.Mentions, " ")})
	}
	if p.Content.Link != "" {
		rows = append(rows, []string{"Link", p.Content.Link})
	}
	if len(p.Content.PollOptions) > 0 {
		rows = append(rows, []string{"Poll", fmt.Sprintf("%s (%d min)", strings.Join(p.Content.PollOptions, " / "), p.Content.PollDurationMinutes)})
	}
	for i, asset := range p.AssetIDs {
		rows = append(rows, []string{fmt.Sprintf("Asset %d", i+1), asset})
	}
	keys := make([]string, 0, len(p.AdaptedAssets))
	for key := range p.AdaptedAssets {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		rows = append(rows, []string{"Rendition " + key, p.AdaptedAssets[key]})
	}
	if p.PostedAt != nil {
		rows = append(rows, []string{"Posted", formatTime(*p.PostedAt)})
	}
	if p.PostID != "" {
		rows = append(rows, []string{"Remote ID", p.PostID})
	}
	if p.PostURL != "" {
		rows = append(rows, []string{"URL", p.PostURL})
	}
	if p.Error != "" {
		rows = append(rows, []string{"Error", p.Error})
	}
	return rows
}

func buildStatsRows(stats queue.Stats) [][]string {
	entries := []struct {
		label string
		count int
	}{
		{"Pending", stats.Pending},
		{"Approved", stats.Approved},
		{"Scheduled", stats.Scheduled},
		{"Posted", stats.Posted},
		{"Failed", stats.Failed},
	}
	rows := make([][]string, 0, len(entries)+1)
	for _, e := range entries {
		if e.count == 0 {
			continue
		}
		rows = append(rows, []string{e.label, fmt.Sprint(e.count)})
	}
	return append(rows, []string{"Total", fmt.Sprint(stats.Total)})
}

func buildHistoryRows(attempts []history.Attempt) [][]string {
	rows := make([][]string, 0, len(attempts))
	for _, a := range attempts {
		result := "ok"
		detail := a.URL
		if !a.Success {
			result = "failed"
			if a.Retryable {
				result = "retryable"
			}
			detail = a.Error
		}
		rows = append(rows, []string{
			fmt.Sprint(a.Attempt),
			string(a.Stage),
			result,
			formatTime(a.StartedAt),
			a.FinishedAt.Sub(a.StartedAt).Round(time.Millisecond).String(),
			detail,
		})
	}
	return rows
}

// formatTime renders t in local time; zero times render as a dash.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
