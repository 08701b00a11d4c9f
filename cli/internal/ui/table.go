package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/BioHazard786/Huddle/cli/internal/call"
	"github.com/BioHazard786/Huddle/cli/internal/signaling"
	"github.com/BioHazard786/Huddle/cli/internal/utils"
	"github.com/BioHazard786/Huddle/internal/discovery"
)

func newWriter(title string) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.Style().Color.Header = text.Colors{text.FgHiGreen, text.Bold}
	if title != "" {
		t.SetTitle(title)
	}
	return t
}

// RoomTable renders the relay's summary of a room.
func RoomTable(info signaling.RoomInfo) string {
	t := newWriter(IconRoom + " Room " + info.RoomID)
	t.AppendHeader(table.Row{"Field", "Value"})
	t.AppendRow(table.Row{"Code", info.RoomID})
	t.AppendRow(table.Row{"Participants", info.ParticipantCount})
	if !info.CreatedAt.IsZero() {
		t.AppendRow(table.Row{"Created", info.CreatedAt.Local().Format(time.DateTime)})
		t.AppendRow(table.Row{"Age", utils.FormatDuration(time.Since(info.CreatedAt))})
	}
	return t.Render()
}

// RelaysTable lists relays found on the local network.
func RelaysTable(relays []discovery.Relay) string {
	if len(relays) == 0 {
		return MutedStyle.Render("No relays found on the local network")
	}
	t := newWriter(IconWeb + " Relays")
	t.AppendHeader(table.Row{"#", "Name", "URL", "Version"})
	for i, r := range relays {
		version := r.Version
		if version == "" {
			version = "-"
		}
		t.AppendRow(table.Row{i + 1, r.Instance, r.URL(), version})
	}
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 1, Align: text.AlignRight}})
	return t.Render()
}

// CallSummary renders what happened during a call once the view exits.
func CallSummary(s call.Snapshot, left time.Time) string {
	t := newWriter("📊 Call Summary")
	t.AppendHeader(table.Row{"Metric", "Value"})
	if s.RoomID != "" {
		t.AppendRow(table.Row{"Room", s.RoomID})
	}
	if !s.JoinedAt.IsZero() {
		t.AppendRow(table.Row{"Duration", utils.FormatDuration(left.Sub(s.JoinedAt))})
	}

	names := make([]string, 0, len(s.Participants))
	for _, p := range s.Participants {
		names = append(names, p.Name)
	}
	people := "-"
	if len(names) > 0 {
		people = strings.Join(names, ", ")
	}
	t.AppendRow(table.Row{"Participants", people})

	var chats int
	for _, m := range s.Messages {
		if m.Kind == call.KindChat {
			chats++
		}
	}
	t.AppendRow(table.Row{"Messages", chats})

	var sent, received, failed int
	for _, tr := range s.Transfers {
		switch {
		case tr.Status == call.TransferFailed:
			failed++
		case tr.Direction == call.Outgoing:
			sent++
		default:
			received++
		}
	}
	t.AppendRow(table.Row{"Files", fmt.Sprintf("%d sent, %d received, %d failed", sent, received, failed)})
	return t.Render()
}

// RosterView draws the live participant table inside the call view.
func RosterView(s call.Snapshot) string {
	rows := [][]string{{
		s.Name + " (you)",
		mediaIcon(s.Local.Video, IconCamera),
		mediaIcon(s.Local.Audio, IconMic),
		mediaIcon(s.Local.ScreenShare, IconScreen),
		string(s.Status),
	}}
	for _, p := range s.Participants {
		rows = append(rows, []string{
			utils.TruncateString(p.Name, 24),
			mediaIcon(p.Media.Video, IconCamera),
			mediaIcon(p.Media.Audio, IconMic),
			mediaIcon(p.Media.ScreenShare, IconScreen),
			p.State,
		})
	}

	tbl := lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(IconPeer+" Name", "Video", "Audio", "Screen", "Link").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == lgtable.HeaderRow:
				return TableHeaderStyle
			case row == 0:
				return tableCellStyle.Foreground(Primary)
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})
	return tbl.Render()
}

func mediaIcon(on bool, icon string) string {
	if on {
		return icon
	}
	return MutedStyle.Render("off")
}

// RoomBox announces a freshly created room.
func RoomBox(roomID string, copied bool) string {
	content := fmt.Sprintf("%s Room Created!\n\n%s Room code:  %s",
		IconSuccess,
		IconRoom, BoldStyle.Foreground(Primary).Render(roomID),
	)
	if copied {
		content += "\n" + MutedStyle.Render(IconCopy+" Copied to clipboard")
	}
	content += "\n\n" + MutedStyle.Render("Others join with: huddle join "+roomID)
	return SuccessBoxStyle.Render(content)
}
