// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package report renders archive run results for the terminal.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bcem/archiver/internal/job"
	"github.com/bcem/archiver/internal/models"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#CCCCCC"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801"))
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	dryRunStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999")).Italic(true)
	sectionStyle = lipgloss.NewStyle().MarginTop(1)
)

type column struct {
	title string
	width int
}

var userColumns = []column{
	{"USER", 32},
	{"FETCHED", 8},
	{"REJECTED", 9},
	{"ARCHIVED", 9},
	{"INSERTED", 9},
	{"CONFLICTS", 10},
	{"ISSUES", 7},
	{"PRIVATE", 8},
	{"STATUS", 8},
}

// Options controls how much of the run is shown.
type Options struct {
	// Details lists every conflict and issue under the summary table.
	Details bool
	// Archived lists the archived appointments per user.
	Archived bool
}

// Render formats a tenant run as a summary header, a per-user table and,
// optionally, the review items and archived appointments.
func Render(res *job.Result, opts Options) string {
	if res == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(renderHeader(res))
	b.WriteString("\n")
	b.WriteString(sectionStyle.Render(renderTable(res)))
	b.WriteString("\n")
	b.WriteString(sectionStyle.Render(renderTotals(res)))
	b.WriteString("\n")

	if opts.Details {
		if d := renderDetails(res); d != "" {
			b.WriteString(sectionStyle.Render(d))
			b.WriteString("\n")
		}
	}
	if opts.Archived {
		if a := renderArchived(res); a != "" {
			b.WriteString(sectionStyle.Render(a))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func renderHeader(res *job.Result) string {
	title := titleStyle.Render(fmt.Sprintf("Archive run: %s", res.TenantAlias))
	span := detailStyle.Render(fmt.Sprintf("%s to %s", res.From.Format("2006-01-02 15:04 MST"), res.To.Format("2006-01-02 15:04 MST")))
	lines := []string{title, span}
	if res.DryRun {
		lines = append(lines, dryRunStyle.Render("dry run: nothing was written"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderTable(res *job.Result) string {
	rows := make([]string, 0, len(res.Users)+1)

	header := make([]string, len(userColumns))
	for i, c := range userColumns {
		header[i] = headerStyle.Width(c.width).Render(c.title)
	}
	rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, header...))

	for _, u := range res.Users {
		status, style := "ok", okStyle
		switch {
		case u.Err != nil:
			status, style = "failed", failStyle
		case u.Errors > 0 || u.Conflicts > 0:
			status, style = "review", warnStyle
		}

		values := []string{
			truncate(u.UserID, userColumns[0].width-1),
			fmt.Sprint(u.Fetched),
			fmt.Sprint(u.Rejected),
			fmt.Sprint(u.Archived),
			fmt.Sprint(u.Inserted),
			fmt.Sprint(u.Conflicts),
			fmt.Sprint(u.Issues),
			fmt.Sprint(u.MarkedPrivate),
		}
		cells := make([]string, 0, len(userColumns))
		for i, v := range values {
			cells = append(cells, lipgloss.NewStyle().Width(userColumns[i].width).Render(v))
		}
		cells = append(cells, style.Width(userColumns[len(userColumns)-1].width).Render(status))
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func renderTotals(res *job.Result) string {
	line := fmt.Sprintf("%d users, %d archived, %d inserted, %d conflicts, %d issues in %s",
		len(res.Users), res.TotalArchived, res.TotalInserted, res.TotalConflicts, res.TotalIssues,
		res.Elapsed.Round(time.Millisecond))
	if res.FailedUsers > 0 {
		return lipgloss.JoinVertical(lipgloss.Left, line, failStyle.Render(fmt.Sprintf("%d users failed", res.FailedUsers)))
	}
	return line
}

func renderDetails(res *job.Result) string {
	var lines []string
	for _, u := range res.Users {
		if u.Err != nil {
			lines = append(lines, failStyle.Render(u.UserID+": "+u.Err.Error()))
		}
		for _, c := range u.Pipeline.Conflicts {
			lines = append(lines, warnStyle.Render(fmt.Sprintf("%s: conflict %s", u.UserID, describeGroup(c.Members))))
		}
		for _, is := range u.Pipeline.Issues {
			lines = append(lines, detailStyle.Render(fmt.Sprintf("%s: %s", u.UserID, is)))
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return lipgloss.JoinVertical(lipgloss.Left, append([]string{headerStyle.Render("Review")}, lines...)...)
}

func renderArchived(res *job.Result) string {
	var lines []string
	for _, u := range res.Users {
		for _, a := range u.Pipeline.Archived {
			lines = append(lines, describeAppointment(u.UserID, a))
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return lipgloss.JoinVertical(lipgloss.Left, append([]string{headerStyle.Render("Archived")}, lines...)...)
}

func describeGroup(members []models.Appointment) string {
	parts := make([]string, 0, len(members))
	for _, m := range members {
		parts = append(parts, fmt.Sprintf("%q %s-%s", m.Subject, m.Start.Format("15:04"), m.End.Format("15:04")))
	}
	return strings.Join(parts, ", ")
}

func describeAppointment(user string, a models.Appointment) string {
	var tags []string
	if a.Customer != "" {
		tags = append(tags, fmt.Sprintf("%s/%s", a.Customer, a.BillingType))
	}
	if a.IsPrivate {
		tags = append(tags, "private")
	}
	if len(a.MergeSource) > 0 {
		tags = append(tags, "merged "+strings.Join(a.MergeSource, ","))
	}
	line := fmt.Sprintf("%s  %s  %s-%s  %s", user, a.Start.Format("2006-01-02"), a.Start.Format("15:04"), a.End.Format("15:04"), a.Subject)
	if len(tags) > 0 {
		line += "  " + detailStyle.Render("["+strings.Join(tags, "; ")+"]")
	}
	return line
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
