package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/contracts"
)

type styles struct {
	title   lipgloss.Style
	section lipgloss.Style
	command lipgloss.Style
	dim     lipgloss.Style
	pass    lipgloss.Style
	fail    lipgloss.Style
	skip    lipgloss.Style
	phase   lipgloss.Style
}

// newStyles binds styles to w so color is only emitted to terminals.
func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF")),
		section: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#4FD1C5")),
		command: r.NewStyle().Foreground(lipgloss.Color("#4CAF50")),
		dim:     r.NewStyle().Foreground(lipgloss.Color("#A0AEC0")),
		pass:    r.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true),
		fail:    r.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true),
		skip:    r.NewStyle().Foreground(lipgloss.Color("#999999")),
		phase:   r.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true),
	}
}

func (s styles) status(status string) string {
	switch status {
	case string(contracts.CheckPass):
		return s.pass.Render(status)
	case string(contracts.CheckFail), string(contracts.OverallError):
		return s.fail.Render(status)
	default:
		return s.skip.Render(status)
	}
}

func renderMerge(w io.Writer, m *contracts.MergedContract, diff *contracts.ContractDiff) {
	st := newStyles(w)
	_, _ = fmt.Fprintf(w, "%s %s@%s\n", st.title.Render("Merged"), m.Contract.Name, m.Contract.Version)
	_, _ = fmt.Fprintf(w, "Digest:  %s\n", m.Digest)
	if len(m.AppliedOrder) > 0 {
		_, _ = fmt.Fprintf(w, "Applied: %s\n", strings.Join(m.AppliedOrder, " -> "))
	} else {
		_, _ = fmt.Fprintln(w, "Applied: "+st.dim.Render("(no patches)"))
	}
	sum := diff.Summary()
	_, _ = fmt.Fprintf(w, "Changes: %d added, %d modified, %d removed\n", sum.Added, sum.Modified, sum.Removed)
	for _, e := range diff.Entries {
		_, _ = fmt.Fprintf(w, "  %-8s %s %s\n", e.Kind, st.dim.Render(e.Section), e.Path)
	}
}

func renderPlan(w io.Writer, plan *contracts.ExecutionPlan) {
	st := newStyles(w)
	_, _ = fmt.Fprintln(w, st.title.Render("Execution plan"))
	for _, step := range plan.Steps {
		_, _ = fmt.Fprintf(w, "  %s %s\n", st.phase.Render(fmt.Sprintf("%-9s", step.Phase)), strings.Join(step.HandlerIDs, ", "))
	}
	for _, warn := range plan.Warnings {
		_, _ = fmt.Fprintf(w, "  %s %s\n", st.skip.Render("warning:"), warn)
	}
	_, _ = fmt.Fprintf(w, "Digest: %s\n", plan.Digest)
}

func renderReport(w io.Writer, r *contracts.VerificationReport) {
	st := newStyles(w)
	_, _ = fmt.Fprintf(w, "%s %s tier: %s\n", st.title.Render("Verification"), r.Tier, st.status(string(r.Overall)))
	for _, c := range r.Checks {
		line := fmt.Sprintf("  %-20s %s", c.CheckID, st.status(string(c.Status)))
		if c.Reason != "" {
			line += " " + st.dim.Render(c.Reason)
		}
		_, _ = fmt.Fprintln(w, line)
		if c.Message != "" && c.Status != contracts.CheckPass {
			_, _ = fmt.Fprintf(w, "      %s\n", c.Message)
		}
	}
	if r.Error != "" {
		_, _ = fmt.Fprintf(w, "Error: %s\n", r.Error)
	}
}
