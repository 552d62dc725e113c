package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"FRBScanner/internal/catalog"
	"FRBScanner/internal/domain"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Width(14)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#3FB950"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
}

func renderSummary(s domain.RunSummary) string {
	status := okStyle.Render(string(s.Status))
	if s.Status != domain.RunSucceeded {
		status = warnStyle.Render(string(s.Status))
	}

	lines := []string{
		titleStyle.Render("FRB scan " + s.RunID),
		row("status", status),
		row("documents", fmt.Sprintf("%d scanned, %d screened out", s.Scanned, s.Screened)),
		row("candidates", fmt.Sprintf("%d (accepted %d, review %d, rejected %d)", s.Candidates, s.Accepted, s.Review, s.Rejected)),
		row("duplicates", fmt.Sprintf("%d, conflicts %d", s.Duplicates, s.Conflicts)),
	}
	if len(s.NewNames) > 0 {
		lines = append(lines, row("new", strings.Join(s.NewNames, ", ")))
	} else {
		lines = append(lines, row("new", "none"))
	}
	if n := s.FetchFailures(); n > 0 {
		lines = append(lines, row("fetch errors", warnStyle.Render(fmt.Sprintf("%d origin(s)", n))))
	}
	for _, d := range s.Diagnostic {
		lines = append(lines, row("diagnostic", fmt.Sprintf("%s [%s] %s", d.DocumentID, d.Stage, d.Message)))
	}
	for _, h := range s.Held {
		lines = append(lines, row("held", fmt.Sprintf("%s (%s): %s", h.Name, h.DocumentID, h.Reason)))
	}
	if s.Proposal != nil {
		target := s.Proposal.URL
		if target == "" {
			target = s.Proposal.ID
		}
		if s.Proposal.Reused {
			target += " (reused)"
		}
		lines = append(lines, row("proposal", target))
	}
	if s.Error != "" {
		lines = append(lines, row("error", warnStyle.Render(s.Error)))
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func renderStats(st catalog.Stats) string {
	lines := []string{
		titleStyle.Render("FRB catalog"),
		row("records", fmt.Sprint(st.Total)),
		row("with z", fmt.Sprint(st.WithRedshift)),
	}
	if st.MinRedshift != nil && st.MaxRedshift != nil {
		lines = append(lines, row("z range", fmt.Sprintf("%.4g to %.4g", *st.MinRedshift, *st.MaxRedshift)))
	}
	for _, t := range st.ByTelescope {
		lines = append(lines, row(t.Telescope, fmt.Sprint(t.Count)))
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// writeGitHubOutput appends workflow outputs when running inside an Actions job.
func writeGitHubOutput(path string, s domain.RunSummary) error {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open GITHUB_OUTPUT: %w", err)
	}
	defer f.Close()

	_, err = fmt.Fprint(f, gitHubOutput(s))
	if err != nil {
		return fmt.Errorf("write GITHUB_OUTPUT: %w", err)
	}
	return nil
}

func gitHubOutput(s domain.RunSummary) string {
	return fmt.Sprintf("new_frbs_count=%d\nnew_frbs_names=%s\n", len(s.NewNames), strings.Join(s.NewNames, ","))
}
