package client

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// noticeKind selects how a console line is styled
type noticeKind int

const (
	noticePlain noticeKind = iota
	noticeChat
	noticeList
	noticeInfo
	noticeWarning
	noticeDisconnect
)

var (
	primaryColor = lipgloss.Color("39")  // Blue
	errorColor   = lipgloss.Color("196") // Red
	warningColor = lipgloss.Color("214") // Orange
	mutedColor   = lipgloss.Color("243") // Gray
)

// Console writes operator-facing lines. Colors are dropped automatically when
// out is not a terminal.
type Console struct {
	out    io.Writer
	styles map[noticeKind]lipgloss.Style
}

// NewConsole creates a console rendering for out
func NewConsole(out io.Writer) *Console {
	r := lipgloss.NewRenderer(out)
	return &Console{
		out: out,
		styles: map[noticeKind]lipgloss.Style{
			noticePlain:      r.NewStyle(),
			noticeChat:       r.NewStyle().Bold(true).Foreground(primaryColor),
			noticeList:       r.NewStyle().Foreground(primaryColor),
			noticeInfo:       r.NewStyle().Foreground(mutedColor),
			noticeWarning:    r.NewStyle().Foreground(warningColor),
			noticeDisconnect: r.NewStyle().Bold(true).Foreground(errorColor),
		},
	}
}

// notice is one rendered unit of console output: a styled prefix and an
// unstyled body
type notice struct {
	kind   noticeKind
	prefix string
	body   string
}

func (c *Console) print(n notice) error {
	style := c.styles[n.kind]

	var b strings.Builder
	for _, line := range strings.Split(n.prefix+n.body, "\n") {
		if n.prefix != "" && strings.HasPrefix(line, n.prefix) {
			b.WriteString(style.Render(n.prefix))
			b.WriteString(strings.TrimPrefix(line, n.prefix))
		} else {
			b.WriteString(style.Render(line))
		}
		b.WriteByte('\n')
	}

	_, err := io.WriteString(c.out, b.String())
	return err
}

func listNotice(names []string) notice {
	return notice{kind: noticeList, prefix: "list:", body: " " + strings.Join(names, " ")}
}

func chatNotice(sender, text string) notice {
	return notice{kind: noticeChat, prefix: "msg: " + sender + ":", body: " " + text}
}

func disconnectNotice(reason string) notice {
	return notice{kind: noticeDisconnect, prefix: "disconnected:", body: " " + reason}
}

func infoNotice(text string) notice {
	return notice{kind: noticeInfo, body: text}
}

func warningNotice(format string, args ...any) notice {
	return notice{kind: noticeWarning, body: fmt.Sprintf(format, args...)}
}
