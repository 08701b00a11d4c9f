package ui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/BioHazard786/Huddle/cli/internal/call"
	"github.com/BioHazard786/Huddle/cli/internal/utils"
)

// Session is the part of a call the view drives.
type Session interface {
	Snapshot() call.Snapshot
	Updates() <-chan struct{}
	SendMessage(text string) (call.Message, error)
	ToggleVideo() (bool, error)
	ToggleAudio() (bool, error)
	StartScreenShare(ctx context.Context) error
	StopScreenShare() error
	SendFile(ctx context.Context, path string) (call.Transfer, error)
	SendCaption(text, language string, final bool) error
	StartTyping()
	StopTyping()
}

// Command is a slash command typed into the call view.
type Command string

const (
	CmdChat    Command = "chat"
	CmdVideo   Command = "video"
	CmdAudio   Command = "audio"
	CmdShare   Command = "share"
	CmdFile    Command = "file"
	CmdCaption Command = "cc"
	CmdLeave   Command = "leave"
	CmdHelp    Command = "help"
	CmdUnknown Command = "unknown"
)

const (
	captionLanguage = "en"
	helpText        = "/video  /audio  /share  /file PATH  /cc TEXT  /leave  (Esc leaves)"
)

// ParseCommand splits an input line into a command and its argument. Plain
// text is chat; a leading "//" sends a literal slash.
func ParseCommand(line string) (Command, string) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return "", ""
	case strings.HasPrefix(line, "//"):
		return CmdChat, line[1:]
	case !strings.HasPrefix(line, "/"):
		return CmdChat, line
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	switch c := Command(strings.ToLower(name)); c {
	case CmdVideo, CmdAudio, CmdShare, CmdFile, CmdCaption, CmdLeave, CmdHelp:
		return c, strings.TrimSpace(arg)
	}
	return CmdUnknown, name
}

// TickMsg refreshes the elapsed call time.
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

type updateMsg struct{}

type resultMsg struct {
	note string
	err  error
}

// CallModel is the interactive call screen.
type CallModel struct {
	ctx     context.Context
	session Session
	snap    call.Snapshot

	input      textinput.Model
	transcript viewport.Model
	spinner    spinner.Model
	bar        progress.Model

	note    string
	noteErr bool
	width   int
	height  int
	leaving bool
}

func NewCallModel(ctx context.Context, s Session) *CallModel {
	in := textinput.New()
	in.Placeholder = "Message, or /help"
	in.Prompt = IconChat + " "
	in.CharLimit = 4096
	in.Width = 60
	in.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = SpinnerStyle

	m := &CallModel{
		ctx:        ctx,
		session:    s,
		input:      in,
		transcript: viewport.New(76, 10),
		spinner:    sp,
		bar: progress.New(
			progress.WithGradient(ProgressStart, ProgressEnd),
			progress.WithWidth(25),
			progress.WithoutPercentage(),
		),
		width:  80,
		height: 30,
	}
	m.refresh()
	return m
}

// Leaving reports whether the user asked to leave the call.
func (m *CallModel) Leaving() bool { return m.leaving }

func (m *CallModel) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		m.waitForUpdates(),
		tickCmd(),
	)
}

func (m *CallModel) waitForUpdates() tea.Cmd {
	updates := m.session.Updates()
	return func() tea.Msg {
		select {
		case _, ok := <-updates:
			if !ok {
				return nil
			}
			return updateMsg{}
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *CallModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.leaving = true
			return m, tea.Quit
		case tea.KeyEnter:
			line := m.input.Value()
			m.input.SetValue("")
			m.session.StopTyping()
			return m, m.submit(line)
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.transcript, cmd = m.transcript.Update(msg)
			return m, cmd
		}

		before := m.input.Value()
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
		if v := m.input.Value(); v != before {
			if strings.TrimSpace(v) == "" || strings.HasPrefix(v, "/") {
				m.session.StopTyping()
			} else {
				m.session.StartTyping()
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(20, msg.Width-8)
		m.bar.Width = min(25, max(10, msg.Width-60))
		m.layout()

	case updateMsg:
		m.refresh()
		cmds = append(cmds, m.waitForUpdates())

	case resultMsg:
		m.setNote(msg.note, msg.err)
		m.refresh()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case TickMsg:
		if !m.leaving {
			cmds = append(cmds, tickCmd())
		}

	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *CallModel) setNote(note string, err error) {
	switch {
	case err != nil:
		m.note, m.noteErr = err.Error(), true
	case note != "":
		m.note, m.noteErr = note, false
	}
}

// submit runs a typed line. Anything that may block goes through a command
// so the view keeps drawing.
func (m *CallModel) submit(line string) tea.Cmd {
	cmd, arg := ParseCommand(line)
	switch cmd {
	case "":
		return nil
	case CmdChat:
		return m.run(func() (string, error) {
			_, err := m.session.SendMessage(arg)
			return "", err
		})
	case CmdVideo:
		return m.run(func() (string, error) {
			on, err := m.session.ToggleVideo()
			return onOff("Camera", on), err
		})
	case CmdAudio:
		return m.run(func() (string, error) {
			on, err := m.session.ToggleAudio()
			return onOff("Microphone", on), err
		})
	case CmdShare:
		if m.snap.Local.ScreenShare {
			return m.run(func() (string, error) {
				return "Stopped sharing your screen", m.session.StopScreenShare()
			})
		}
		return m.run(func() (string, error) {
			return "Sharing your screen", m.session.StartScreenShare(m.ctx)
		})
	case CmdFile:
		if arg == "" {
			m.setNote("", errors.New("usage: /file PATH"))
			return nil
		}
		return m.run(func() (string, error) {
			t, err := m.session.SendFile(m.ctx, arg)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Sent %s to %s", t.Name, t.Peer), nil
		})
	case CmdCaption:
		if arg == "" {
			m.setNote("", errors.New("usage: /cc TEXT"))
			return nil
		}
		return m.run(func() (string, error) {
			return "", m.session.SendCaption(arg, captionLanguage, true)
		})
	case CmdLeave:
		m.leaving = true
		return tea.Quit
	case CmdHelp:
		m.setNote(helpText, nil)
		return nil
	default:
		m.setNote("", fmt.Errorf("unknown command /%s, try /help", arg))
		return nil
	}
}

func (m *CallModel) run(f func() (string, error)) tea.Cmd {
	return func() tea.Msg {
		note, err := f()
		return resultMsg{note: note, err: err}
	}
}

func onOff(what string, on bool) string {
	if on {
		return what + " on"
	}
	return what + " off"
}

func (m *CallModel) refresh() {
	m.snap = m.session.Snapshot()
	m.layout()

	follow := m.transcript.AtBottom()
	lines := make([]string, 0, len(m.snap.Messages))
	wrap := lipgloss.NewStyle().Width(m.transcript.Width)
	for _, msg := range m.snap.Messages {
		lines = append(lines, wrap.Render(FormatMessage(msg, m.snap.SelfID)))
	}
	m.transcript.SetContent(strings.Join(lines, "\n"))
	if follow {
		m.transcript.GotoBottom()
	}
}

// layout gives the transcript whatever height the rest of the view leaves.
func (m *CallModel) layout() {
	used := lipgloss.Height(RosterView(m.snap)) + 10 + len(m.activeTransfers())
	m.transcript.Width = max(20, m.width-4)
	m.transcript.Height = max(5, m.height-used)
}

func (m *CallModel) activeTransfers() []call.Transfer {
	var out []call.Transfer
	for _, t := range m.snap.Transfers {
		if t.Status == call.TransferActive {
			out = append(out, t)
		}
	}
	return out
}

func (m *CallModel) View() string {
	if m.leaving {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.header() + "\n\n")
	b.WriteString(RosterView(m.snap) + "\n")
	b.WriteString(m.transcript.View() + "\n")

	if line := TypingLine(m.snap.Typing); line != "" {
		b.WriteString(MutedStyle.Render(line) + "\n")
	}
	if c := m.snap.Caption; c != nil {
		b.WriteString(CaptionStyle.Render(fmt.Sprintf("%s %s: %s", IconCaption, c.SpeakerName, c.Text)) + "\n")
	}
	for _, t := range m.activeTransfers() {
		b.WriteString(m.transferLine(t) + "\n")
	}
	if m.note != "" {
		if m.noteErr {
			b.WriteString(ErrorStyle.Render(IconError+" "+m.note) + "\n")
		} else {
			b.WriteString(MutedStyle.Render(m.note) + "\n")
		}
	}

	b.WriteString(InputStyle.Render(m.input.View()) + "\n")
	b.WriteString(MutedStyle.Render(helpText))
	return b.String()
}

func (m *CallModel) header() string {
	title := HeaderStyle.Render("Huddle " + m.snap.RoomID)

	badge := StatusStyle
	switch m.snap.Status {
	case call.StatusConnected:
		badge = badge.Background(Success)
	case call.StatusLocalOnly:
		badge = badge.Background(Warning)
	case call.StatusConnecting:
		badge = badge.Background(Secondary)
	default:
		badge = badge.Background(Muted)
	}
	status := badge.Render(string(m.snap.Status))
	if m.snap.Status == call.StatusConnecting {
		status = m.spinner.View() + " " + status
	}

	elapsed := ""
	if !m.snap.JoinedAt.IsZero() {
		elapsed = MutedStyle.Render(IconTime + " " + utils.FormatDuration(time.Since(m.snap.JoinedAt)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, title, " ", status, "  ", elapsed)
}

func (m *CallModel) transferLine(t call.Transfer) string {
	var pct float64
	if t.Total > 0 {
		pct = float64(t.Done) / float64(t.Total)
	}
	arrow := "↑"
	if t.Direction == call.Incoming {
		arrow = "↓"
	}
	name := utils.TruncateString(filepath.Base(t.Name), 22)
	return fmt.Sprintf("  %s %s %s %s %5.1f%% %s",
		IconFile, arrow,
		lipgloss.NewStyle().Width(24).Render(name),
		m.bar.ViewAs(pct),
		pct*100,
		MutedStyle.Render(t.Peer),
	)
}

// FormatMessage renders one transcript line.
func FormatMessage(msg call.Message, selfID string) string {
	stamp := MutedStyle.Render(msg.Timestamp.Format("15:04"))
	switch msg.Kind {
	case call.KindSystem:
		return stamp + " " + SystemStyle.Render(msg.Text)
	case call.KindFile:
		return stamp + " " + IconFile + " " + msg.Text
	}

	name := msg.Sender
	if name == "" {
		name = "Someone"
	}
	if msg.SenderID != "" && msg.SenderID == selfID {
		name = SelfStyle.Render(name)
	} else {
		name = PeerStyle.Render(name)
	}
	return fmt.Sprintf("%s %s: %s", stamp, name, msg.Text)
}

// TypingLine describes who is typing.
func TypingLine(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " is typing…"
	case 2:
		return names[0] + " and " + names[1] + " are typing…"
	default:
		return "Several people are typing…"
	}
}

// RunCall shows the call view until the user leaves or ctx ends.
func RunCall(ctx context.Context, s Session) error {
	p := tea.NewProgram(NewCallModel(ctx, s), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
