package util

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"runtime"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/manifoldco/promptui"
)

var (
	IsDebug bool

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF4757")).
			Bold(true)

	debugErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#FF4757")).
			Padding(1, 2)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA726")).
			Bold(true)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF69B4")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s-]`)
	whitespaceRun       = regexp.MustCompile(`\s+`)
)

// maxFilenameLength bounds the sanitized title used for downloads
const maxFilenameLength = 100

// SetDebugMode sets the debug mode
func SetDebugMode(debug bool) {
	IsDebug = debug
}

// ErrorHandler returns a stylized error message. Debug mode prints the full
// wrapped chain including stack traces from pkg/errors.
func ErrorHandler(err error) string {
	if IsDebug {
		header := errorStyle.Render("DEBUG ERROR")
		return fmt.Sprintf("%s\n%s", header, debugErrorStyle.Render(fmt.Sprintf("%+v", err)))
	}

	styledError := errorStyle.Render(fmt.Sprintf("✗ %v", err))
	styledHint := warningStyle.Render("run the command with --debug to see details")
	return fmt.Sprintf("%s\n%s", styledError, styledHint)
}

// Title renders a heading line
func Title(s string) string { return titleStyle.Render(s) }

// Label renders a field label
func Label(s string) string { return labelStyle.Render(s) }

// Success renders a confirmation line
func Success(s string) string { return successStyle.Render("✓ " + s) }

// SanitizeFilename keeps letters, digits, whitespace and dashes, turns
// whitespace runs into underscores and caps the result at 100 characters.
func SanitizeFilename(title string) string {
	safe := unsafeFilenameChars.ReplaceAllString(title, "")
	safe = whitespaceRun.ReplaceAllString(strings.TrimSpace(safe), "_")
	if len(safe) > maxFilenameLength {
		safe = safe[:maxFilenameLength]
	}
	return safe
}

// PromptInput asks for a single line of text. validate may be nil.
func PromptInput(label string, validate func(string) error) (string, error) {
	if runtime.GOOS == "windows" {
		return simpleInput(label, validate)
	}

	prompt := promptui.Prompt{
		Label: promptStyle.Render(label),
	}
	if validate != nil {
		prompt.Validate = promptui.ValidateFunc(validate)
	}

	value, err := prompt.Run()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

// simpleInput provides a fallback input method for Windows consoles
func simpleInput(label string, validate func(string) error) (string, error) {
	fmt.Print(promptStyle.Render(label + ": "))

	reader := bufio.NewReader(os.Stdin)
	value, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	value = strings.TrimSpace(value)
	if validate != nil {
		if err := validate(value); err != nil {
			return "", err
		}
	}
	return value, nil
}
