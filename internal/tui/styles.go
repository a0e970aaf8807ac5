package tui

import (
	"agentvoice/native/internal/domain"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorIdle       = lipgloss.Color("#4b5563")
	colorConnecting = lipgloss.Color("#7c3aed")
	colorWaiting    = lipgloss.Color("#d97706")
	colorReady      = lipgloss.Color("#16a34a")
	colorProcessing = lipgloss.Color("#2563eb")
	colorSpeaking   = lipgloss.Color("#06b6d4")
	colorError      = lipgloss.Color("#dc2626")
	colorMuted      = lipgloss.Color("#9ca3af")
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	labelStyle = lipgloss.NewStyle().Foreground(colorMuted).Width(8)
	errorStyle = lipgloss.NewStyle().Foreground(colorError)
	userStyle  = lipgloss.NewStyle().Foreground(colorProcessing)
	agentStyle = lipgloss.NewStyle().Foreground(colorSpeaking)
	helpStyle  = lipgloss.NewStyle().Foreground(colorMuted).MarginTop(1)
)

func stateColor(s domain.State) lipgloss.Color {
	switch s {
	case domain.StateConnecting:
		return colorConnecting
	case domain.StateWaiting:
		return colorWaiting
	case domain.StateReady:
		return colorReady
	case domain.StateProcessing:
		return colorProcessing
	case domain.StateSpeaking:
		return colorSpeaking
	case domain.StateError:
		return colorError
	default:
		return colorIdle
	}
}

func stateBadge(s domain.State) string {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#ffffff")).
		Background(stateColor(s)).
		Padding(0, 1).
		Render(string(s))
}
