package ui

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/mgutz/ansi"

	apperrors "hcahps/pkg/errors"
)

var (
	// Check if output supports colors
	supportsColor = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

	// Out receives all messages of this package
	Out io.Writer = os.Stdout

	// Color functions
	ColorSuccess = colorFunc(ansi.Green)
	ColorError   = colorFunc(ansi.Red)
	ColorWarning = colorFunc(ansi.Yellow)
	ColorInfo    = colorFunc(ansi.Cyan)
	ColorBold    = colorFunc("default+b")
	ColorDim     = colorFunc("default+h")
)

// SupportsColor reports whether stdout is a terminal
func SupportsColor() bool {
	return supportsColor
}

// colorFunc returns a function that colors text if supported
func colorFunc(color string) func(string) string {
	return func(text string) string {
		if supportsColor {
			return ansi.Color(text, color)
		}
		return text
	}
}

// ShowHeader displays a formatted header
func ShowHeader(title string) {
	width := 50
	if len(title)+4 > width {
		width = len(title) + 4
	}
	padding := (width - len(title) - 2) / 2

	fmt.Fprintln(Out, "\n+"+strings.Repeat("-", width-2)+"+")
	fmt.Fprintf(Out, "|%s%s%s|\n",
		strings.Repeat(" ", padding),
		ColorBold(title),
		strings.Repeat(" ", width-2-padding-len(title)),
	)
	fmt.Fprintln(Out, "+"+strings.Repeat("-", width-2)+"+")
}

// ShowError displays an error with its code and suggestions when it is an
// application error.
func ShowError(err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		fmt.Fprintf(Out, "\n%s %s\n", ColorError("ERROR:"), err.Error())
		return
	}

	fmt.Fprintf(Out, "\n%s %s\n", ColorError("ERROR:"), ColorError(fmt.Sprintf("[%s] %s", appErr.Code, appErr.Message)))
	if appErr.Cause != nil {
		fmt.Fprintf(Out, "  %s\n", ColorDim(appErr.Cause.Error()))
	}
	for _, s := range appErr.Suggestions {
		fmt.Fprintf(Out, "  %s %s\n", ColorInfo("TIP:"), s)
	}
}

// ShowSuccess displays a success message
func ShowSuccess(message string) {
	fmt.Fprintf(Out, "%s %s\n", ColorSuccess("SUCCESS:"), message)
}

// ShowWarning displays a warning message
func ShowWarning(message string) {
	fmt.Fprintf(Out, "%s %s\n", ColorWarning("WARNING:"), ColorWarning(message))
}

// ShowInfo displays an info message
func ShowInfo(message string) {
	fmt.Fprintf(Out, "%s %s\n", ColorInfo("INFO:"), message)
}

// PrintSection prints a section header
func PrintSection(title string) {
	fmt.Fprintf(Out, "\n%s %s\n", ColorBold(">"), ColorBold(title))
	fmt.Fprintln(Out, strings.Repeat("-", 50))
}

// PrintKeyValue prints a key-value pair in a formatted way
func PrintKeyValue(key, value string) {
	fmt.Fprintf(Out, "  %-20s %s\n", ColorDim(key+":"), value)
}
