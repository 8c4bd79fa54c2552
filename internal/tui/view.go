package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/smartchat-ai/smartchat/internal/transcript"
)

func (m Model) View() string {
	var out string
	switch {
	case m.expired:
		out = m.renderExpiredModal()
	case m.quitConfirm:
		out = m.renderQuitConfirm()
	case m.paymentOpen:
		out = m.renderPaymentPane()
	case m.screen == screenAuth:
		out = m.renderAuth()
	default:
		out = lipgloss.JoinVertical(lipgloss.Left,
			m.renderHeader(),
			m.renderTranscriptPanel(),
			m.renderComposer(),
			m.renderFooter(),
		)
	}
	return m.theme.root.Render(out)
}

// ---- auth screen ----

func (m *Model) renderAuth() string {
	title := "Sign in to SmartChat"
	action := "enter: sign in · ctrl+n: create an account"
	if m.registerMode {
		title = "Create a SmartChat account"
		action = "enter: register · ctrl+n: back to sign in"
	}

	userField := m.username.View()
	passField := m.password.View()
	if m.authFocus == 0 {
		userField = m.theme.selectedMark.Render("› ") + userField
		passField = "  " + passField
	} else {
		userField = "  " + userField
		passField = m.theme.selectedMark.Render("› ") + passField
	}

	lines := []string{
		m.theme.title.Render(title),
		"",
		m.theme.help.Render("username") + "\n" + userField,
		m.theme.help.Render("password") + "\n" + passField,
		"",
	}
	if m.authBusy {
		lines = append(lines, m.spin.View()+" contacting server…")
	} else if m.authErr != "" {
		lines = append(lines, m.theme.errorStatus.Render(m.authErr))
	}
	lines = append(lines, "", m.theme.help.Render(action+" · tab: switch field · esc: quit"))

	panel := m.theme.panel.Width(clamp(m.width-4, 40, 64)).Render(strings.Join(lines, "\n"))
	return m.centered(panel)
}

// ---- chat screen ----

func (m *Model) renderHeader() string {
	left := m.theme.title.Render("SmartChat")
	if m.deps.Creds != nil && m.deps.Creds.Username() != "" {
		left += m.theme.help.Render(" · " + m.deps.Creds.Username())
	}

	var badges []string
	if m.deps.Capture != nil && m.deps.Capture.Capturing() {
		badges = append(badges, m.theme.micActive.Render("● rec"))
	}
	if m.deps.Playback != nil && m.deps.Playback.SpeakingIndex() >= 0 {
		badges = append(badges, m.theme.speaking.Render("▶ speaking"))
	}
	if m.deps.Sender != nil && m.deps.Sender.Thinking() {
		badges = append(badges, m.theme.thinking.Render(m.spin.View()+" thinking"))
	}

	right := strings.Join(badges, "  ")
	width := max(20, m.width-4)
	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return m.theme.header.Width(width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m *Model) renderTranscriptPanel() string {
	width := max(20, m.width-4)
	height := max(4, m.height-10)
	return m.theme.panel.Width(width).Height(height).Render(m.timeline.View())
}

func (m *Model) renderComposer() string {
	return m.theme.composer.Width(max(20, m.width-4)).Render(m.composer.View())
}

func (m *Model) renderFooter() string {
	status := m.theme.status.Render(m.statusLine)
	if m.statusErr {
		status = m.theme.errorStatus.Render(m.statusLine)
	}
	help := "ctrl+r mic · ctrl+g grammar · ctrl+p/n select · ctrl+s speak · ctrl+x hush · " +
		"ctrl+b subscribe · ctrl+t theme · ctrl+l sign out · esc quit"
	return m.theme.footer.Width(max(20, m.width-4)).Render(
		status + "\n" + m.theme.help.Render(help),
	)
}

// renderTimeline rebuilds the viewport content from the current transcript
// snapshot.
func (m *Model) renderTimeline() {
	if len(m.messages) == 0 {
		m.timeline.SetContent(m.theme.help.Render("No messages yet. Type below or press ctrl+r to talk."))
		return
	}
	blocks := make([]string, 0, len(m.messages))
	for i, msg := range m.messages {
		blocks = append(blocks, m.renderMessage(i, msg))
	}
	m.timeline.SetContent(strings.Join(blocks, "\n"))
}

func (m *Model) renderMessage(index int, msg transcript.Message) string {
	marker := "  "
	if index == m.selected {
		marker = m.theme.selectedMark.Render("│ ")
	}

	label := m.theme.assistantLabel.Render("smartchat")
	if msg.IsUser {
		label = m.theme.userLabel.Render("you")
	}

	var tags []string
	if msg.IsUser && !msg.Confirmed() {
		tags = append(tags, m.theme.pending.Render("sending…"))
	}
	if msg.IsUser && msg.Confirmed() && m.deps.Grammar != nil && m.deps.Grammar.InFlight(msg.ServerID) {
		tags = append(tags, m.theme.thinking.Render(m.spin.View()+" checking"))
	}
	if !msg.IsUser && m.deps.Playback != nil && m.deps.Playback.SpeakingIndex() == index {
		tags = append(tags, m.theme.speaking.Render("▶"))
	}

	head := label
	if len(tags) > 0 {
		head += "  " + strings.Join(tags, " ")
	}

	lines := []string{marker + head, marker + msg.Text}
	if msg.Corrected != "" {
		lines = append(lines, marker+m.theme.corrected.Render("✓ ")+m.renderCorrection(msg.Text, msg.Corrected))
	}
	return strings.Join(lines, "\n") + "\n"
}

// renderCorrection renders the corrected text with the words that differ from
// the original highlighted.
func (m *Model) renderCorrection(original, corrected string) string {
	segments := transcript.DiffWords(original, corrected)
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg.Kind {
		case transcript.SegmentDeleted:
			// Dropped words do not appear in the corrected rendering.
		case transcript.SegmentSame:
			parts = append(parts, m.theme.corrected.Render(seg.Text))
		default:
			parts = append(parts, m.theme.diffChanged.Render(seg.Text))
		}
	}
	return strings.Join(parts, " ")
}

// ---- overlays ----

func (m *Model) renderExpiredModal() string {
	body := strings.Join([]string{
		m.theme.modalTitle.Render("Session expired"),
		"",
		"Your session is no longer valid. Sign in again to continue.",
		"",
		m.theme.help.Render("enter: sign out · ctrl+c: quit"),
	}, "\n")
	return m.centered(m.theme.modal.Render(body))
}

func (m *Model) renderQuitConfirm() string {
	body := strings.Join([]string{
		m.theme.modalTitle.Render("Quit SmartChat?"),
		"",
		m.theme.help.Render("y/enter: quit · n/esc: stay"),
	}, "\n")
	return m.centered(m.theme.modal.Render(body))
}

func (m *Model) renderPaymentPane() string {
	lines := []string{
		m.theme.title.Render("SmartChat subscription"),
		"",
		fmt.Sprintf("Amount due: %s", formatAmount(m.deps.PaymentAmount)),
		"",
	}
	switch {
	case m.paymentBusy:
		lines = append(lines, m.spin.View()+" processing payment…")
	case m.paymentStatus != "":
		lines = append(lines, m.theme.status.Render(m.paymentStatus))
	}
	lines = append(lines, "", m.theme.help.Render("enter: pay · esc: not now"))
	return m.centered(m.theme.panel.Render(strings.Join(lines, "\n")))
}

// ---- layout helpers ----

func (m *Model) centered(panel string) string {
	return lipgloss.Place(
		max(lipgloss.Width(panel), m.width-2),
		max(10, m.height-2),
		lipgloss.Center,
		lipgloss.Center,
		panel,
	)
}

func (m *Model) resize() {
	m.timeline.Width = max(20, m.width-8)
	m.timeline.Height = max(4, m.height-12)
	m.composer.Width = max(20, m.width-10)
}

// formatAmount renders minor currency units for display.
func formatAmount(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
