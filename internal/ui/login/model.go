// Package login implements the interactive sign-in form used by the
// login command.
package login

import (
	"fmt"
	"net/url"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/carfeed/internal/theme"
)

// Credentials are the values collected by the form.
type Credentials struct {
	UserID  string
	BaseURL string
	Token   string
}

// Model is the Bubble Tea model wrapping the login form.
type Model struct {
	form    *huh.Form
	creds   *Credentials
	width   int
	done    bool
	aborted bool
}

// New creates a login form prefilled with defaults.
func New(defaults Credentials, width int) Model {
	creds := defaults
	m := Model{creds: &creds, width: width}
	m.form = m.buildForm()
	return m
}

func (m Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("User ID").
				Description("Your marketplace account id").
				Placeholder("user-123").
				Value(&m.creds.UserID).
				Validate(validateRequired("User ID")),
			huh.NewInput().
				Title("API URL").
				Description("Marketplace API base URL").
				Placeholder("https://api.example.com").
				Value(&m.creds.BaseURL).
				Validate(validateURL),
			huh.NewInput().
				Title("Access Token").
				Description("Bearer token issued for your account").
				EchoMode(huh.EchoModePassword).
				Value(&m.creds.Token).
				Validate(validateToken),
		),
	).WithWidth(m.formWidth())
}

func (m Model) formWidth() int {
	if m.width <= 0 {
		return 60
	}
	return min(m.width-4, 80)
}

// Init initializes the form.
func (m Model) Init() tea.Cmd {
	return m.form.Init()
}

// Update forwards messages to the form and quits once it completes.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if km, ok := msg.(tea.KeyMsg); ok && km.String() == "ctrl+c" {
		m.aborted = true
		return m, tea.Quit
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.done = true
		return m, tea.Quit
	case huh.StateAborted:
		m.aborted = true
		return m, tea.Quit
	}
	return m, cmd
}

// View renders the form below a title bar.
func (m Model) View() string {
	if m.done || m.aborted {
		return ""
	}
	title := theme.HeaderStyle.Render("carfeed login")
	return lipgloss.JoinVertical(lipgloss.Left, title, "", m.form.View())
}

// Result returns the trimmed credentials and whether the form was
// completed.
func (m Model) Result() (Credentials, bool) {
	if !m.done {
		return Credentials{}, false
	}
	return Credentials{
		UserID:  strings.TrimSpace(m.creds.UserID),
		BaseURL: strings.TrimRight(strings.TrimSpace(m.creds.BaseURL), "/"),
		Token:   strings.TrimSpace(m.creds.Token),
	}, true
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateURL(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("URL is required")
	}
	parsed, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL must start with http:// or https://")
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL must include a host (e.g., https://api.example.com)")
	}
	return nil
}

// validateToken checks the token looks like a compact JWT. The signature
// is verified by the server, not here.
func validateToken(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("token is required")
	}
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return fmt.Errorf("token must have three dot-separated parts")
	}
	for _, p := range parts[:2] {
		if p == "" {
			return fmt.Errorf("token has an empty segment")
		}
	}
	return nil
}
