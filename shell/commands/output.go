package commands

import (
	"fmt"

	"github.com/fatih/color"
)

// Printer is the output side of an ishell.Context.
type Printer interface {
	Printf(format string, args ...interface{})
}

var (
	errorColor   = color.New(color.FgRed, color.Bold).SprintFunc()
	successColor = color.New(color.FgGreen).SprintFunc()
	noticeColor  = color.New(color.FgYellow).SprintFunc()
)

// PrintErr reports a failed command.
func PrintErr(p Printer, name string, err error) {
	p.Printf("%s: %s\n", name, errorColor(err.Error()))
}

// PrintOK reports a successful step.
func PrintOK(p Printer, format string, args ...interface{}) {
	p.Printf("%s\n", successColor(fmt.Sprintf(format, args...)))
}

// PrintNotice reports something that needs the user's attention without being
// an error.
func PrintNotice(p Printer, format string, args ...interface{}) {
	p.Printf("%s\n", noticeColor(fmt.Sprintf(format, args...)))
}
