package arbiter

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Chat commands recognized on the inbound webhook path. Matching is
// case-insensitive on the trimmed message body.
const (
	cmdAIOff  = "/ia off"
	cmdAIOn   = "/ia on"
	cmdStatus = "/ia estado"
	cmdHuman  = "/human"
)

// parseCommand returns the canonical command string, or "" when the
// text is not a recognized command. Unrecognized "/" prefixed text is
// not a command; it falls through to normal reply evaluation.
func parseCommand(text string) string {
	switch strings.ToLower(text) {
	case cmdAIOff:
		return cmdAIOff
	case cmdAIOn:
		return cmdAIOn
	case cmdStatus:
		return cmdStatus
	case cmdHuman:
		return cmdHuman
	default:
		return ""
	}
}

// runCommand applies cmd to the chat's state and returns the status
// reply to send back. Must be called with st under the per-chat lock.
func (a *Arbitrator) runCommand(cmd string, st *ChatState, now time.Time) string {
	switch cmd {
	case cmdAIOff:
		setAIActive(st, false)
		return "🤖 IA desactivada para este chat."
	case cmdAIOn:
		setAIActive(st, true)
		return "🤖 IA reactivada para este chat."
	case cmdStatus:
		return statusText(*st, now, a.pauseWindow)
	case cmdHuman:
		st.LastHumanInterventionAt = now
		return fmt.Sprintf("⏸️ Tomando el control. La IA se pausará por %d minutos.", int(a.pauseWindow.Minutes()))
	default:
		return ""
	}
}

// statusText renders the /ia estado reply: current activation plus the
// remaining pause minutes when a pause window is still running.
func statusText(st ChatState, now time.Time, window time.Duration) string {
	estado := "✅ Activa"
	if !st.AIActive {
		estado = "❌ Desactivada"
	}

	pausa := ""
	if mins := remainingPauseMinutes(st, now, window); mins > 0 {
		pausa = fmt.Sprintf("\n⏸️ En pausa por intervención humana. Se reactivará en %d minutos.", mins)
	}

	return "Estado actual de la IA: " + estado + pausa
}

// remainingPauseMinutes returns ceil of the remaining pause time in
// minutes, or 0 when no pause is pending or the window has expired.
func remainingPauseMinutes(st ChatState, now time.Time, window time.Duration) int {
	if st.LastHumanInterventionAt.IsZero() {
		return 0
	}
	remaining := st.LastHumanInterventionAt.Add(window).Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Minutes()))
}
