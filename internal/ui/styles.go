package ui

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles shared by the chat surface.
type Styles struct {
	User      lipgloss.Style
	Assistant lipgloss.Style
	System    lipgloss.Style
	Error     lipgloss.Style
	Confirm   lipgloss.Style
	Stale     lipgloss.Style
	Border    lipgloss.Style
	Title     lipgloss.Style
	Footer    lipgloss.Style
}

// NewStyles creates the default style set.
func NewStyles() *Styles {
	return &Styles{
		User:      lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true),
		Assistant: lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		System:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		Confirm:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
		Stale:     lipgloss.NewStyle().Foreground(lipgloss.Color("178")).Italic(true),
		Border:    lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")),
		Title:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).MarginBottom(1),
		Footer:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
}
