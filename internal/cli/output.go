package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warnColor    = color.New(color.FgYellow, color.Bold)
	headerColor  = color.New(color.FgMagenta, color.Bold)
	nameColor    = color.New(color.Bold)
	versionColor = color.New(color.FgGreen)
	mutedColor   = color.New(color.FgHiBlack)
)

// stdout is swapped in tests.
var stdout io.Writer = os.Stdout

// InitColor disables color when asked to or when NO_COLOR is set.
func InitColor() {
	if (NoColor != nil && *NoColor) || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}
}

func printSuccess(format string, args ...any) {
	_, _ = successColor.Fprint(stdout, "✓ ")
	_, _ = fmt.Fprintf(stdout, format+"\n", args...)
}

func printWarning(format string, args ...any) {
	_, _ = warnColor.Fprint(stdout, "! ")
	_, _ = fmt.Fprintf(stdout, format+"\n", args...)
}

func printHeader(format string, args ...any) {
	_, _ = headerColor.Fprintf(stdout, format+"\n", args...)
}

// runWithSpinner shows message while fn runs.
func runWithSpinner(message string, fn func() error) error {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + message
	if !color.NoColor {
		_ = s.Color("cyan")
	}
	s.Start()
	err := fn()
	s.Stop()

	if err != nil {
		_, _ = errorColor.Fprint(os.Stderr, "✗ ")
		_, _ = fmt.Fprintf(os.Stderr, "%s: %v\n", message, err)
		return err
	}
	printSuccess("%s - done", message)
	return nil
}
