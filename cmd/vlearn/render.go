package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/vango-go/vlearn/pkg/core/suggest"
	"github.com/vango-go/vlearn/pkg/core/types"
)

type printer struct {
	out   io.Writer
	color bool

	title     lipgloss.Style
	cardTitle lipgloss.Style
	card      lipgloss.Style
	user      lipgloss.Style
	assistant lipgloss.Style
	muted     lipgloss.Style
	warn      lipgloss.Style
}

func newPrinter(out io.Writer, noColor bool) *printer {
	r := lipgloss.NewRenderer(out)
	return &printer{
		out:       out,
		color:     !noColor && shouldUseColor(out),
		title:     r.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		cardTitle: r.NewStyle().Bold(true).Foreground(lipgloss.Color("62")),
		card:      r.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1).Width(60),
		user:      r.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
		assistant: r.NewStyle().Foreground(lipgloss.Color("135")).Bold(true),
		muted:     r.NewStyle().Foreground(lipgloss.Color("243")),
		warn:      r.NewStyle().Foreground(lipgloss.Color("214")),
	}
}

func shouldUseColor(out io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := out.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (p *printer) style(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

func (p *printer) heading(text string) {
	fmt.Fprintln(p.out, p.style(p.title, text))
}

func (p *printer) info(format string, args ...any) {
	fmt.Fprintln(p.out, p.style(p.muted, fmt.Sprintf(format, args...)))
}

func (p *printer) warning(format string, args ...any) {
	fmt.Fprintln(p.out, p.style(p.warn, fmt.Sprintf(format, args...)))
}

func (p *printer) turn(t types.Turn) {
	label := "child"
	st := p.user
	if t.Role == types.RoleAssistant {
		label = "guide"
		st = p.assistant
	}
	fmt.Fprintf(p.out, "%s %s\n", p.style(st, "["+label+"]"), t.Text)
}

func (p *printer) cards(cards []types.ActivityCard) {
	for i, c := range cards {
		head := fmt.Sprintf("%s %d. %s", suggest.Icon(c.Title), i+1, c.Title)
		if !p.color {
			fmt.Fprintf(p.out, "%s\n   %s\n", head, c.Description)
			continue
		}
		body := p.cardTitle.Render(head) + "\n" + c.Description
		fmt.Fprintln(p.out, p.card.Render(body))
	}
}

func (p *printer) starters(list []string) {
	for _, s := range list {
		fmt.Fprintf(p.out, "  %s %s\n", p.style(p.muted, "•"), strings.TrimSpace(s))
	}
}
