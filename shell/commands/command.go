// Package commands holds types and functions common across all ACMEShell
// commands.
package commands

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"strings"

	"github.com/abiosoft/ishell"
)

const (
	// The base prompt used for shell commands
	BasePrompt = "[ ACME ] > "
	// The ishell context key that we store the shell session under.
	SessionKey = "session"
)

func OkURL(urlStr string) bool {
	result, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	if result.Scheme != "http" && result.Scheme != "https" {
		return false
	}
	return true
}

// shellContext is a common interface that can be used to retrieve objects from
// a ishell.Shell or an ishell.Context.
type shellContext interface {
	Get(string) interface{}
}

// GetSession reads a *Session from the shellContext or panics.
func GetSession(c shellContext) *Session {
	if c.Get(SessionKey) == nil {
		panic(fmt.Sprintf("nil %q value in shellContext", SessionKey))
	}

	rawSession := c.Get(SessionKey)
	switch s := rawSession.(type) {
	case *Session:
		return s
	}

	panic(fmt.Sprintf(
		"%q value in shellContext was not a *commands.Session",
		SessionKey))
}

// ReadLines prompts for newline separated values, ended by a line holding only
// ".".
func ReadLines(c *ishell.Context, prompt, help string) []string {
	c.SetPrompt(BasePrompt + prompt + " > ")
	defer c.SetPrompt(BasePrompt)
	terminator := "."
	c.Printf("%s. End by sending '%s'\n", help, terminator)
	input := strings.TrimSuffix(c.ReadMultiLines(terminator), terminator)
	return SplitList(strings.ReplaceAll(input, "\n", ","))
}

// SplitList splits a comma separated list, dropping empty entries.
func SplitList(list string) []string {
	var values []string
	for _, v := range strings.Split(list, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}

func PrintJSON(ob interface{}) (string, error) {
	bytes, err := json.MarshalIndent(ob, "", "  ")
	if err != nil {
		return "", err
	}
	return string(bytes), err
}

// ParseFlagSetArgs parses args with flags and returns the leftover arguments.
// flag.ErrHelp is returned once the usage has been printed.
func ParseFlagSetArgs(args []string, flags *flag.FlagSet) ([]string, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	return flags.Args(), nil
}

var commands []commandRegistry

type commandRegistry struct {
	Cmd           *ishell.Cmd
	Autocompleter NewCommandAutocompleter
}

type NewCommandAutocompleter func(s *Session) func(args []string) []string

// AddCommands adds every registered command to shell.
func AddCommands(shell *ishell.Shell, s *Session) {
	for _, cmdReg := range commands {
		if cmdReg.Autocompleter != nil {
			cmdReg.Cmd.Completer = cmdReg.Autocompleter(s)
		}
		shell.AddCmd(cmdReg.Cmd)
	}
}

// Registered returns the names of the registered commands.
func Registered() []string {
	names := make([]string, 0, len(commands))
	for _, cmdReg := range commands {
		names = append(names, cmdReg.Cmd.Name)
	}
	return names
}

type NewCommandHandler func(c *ishell.Context, args []string)

// RegisterCommand registers cmd with the shell. Handlers receive the raw
// command arguments and build their own flag set per invocation.
func RegisterCommand(
	cmd *ishell.Cmd,
	completerFunc NewCommandAutocompleter,
	handler NewCommandHandler) {
	// Stomp the cmd's Func with a wrapped version that passes the command
	// arguments along.
	cmd.Func = wrapHandler(handler)
	commands = append(commands, commandRegistry{
		Cmd:           cmd,
		Autocompleter: completerFunc,
	})
}

func wrapHandler(handler NewCommandHandler) func(*ishell.Context) {
	return func(c *ishell.Context) {
		handler(c, c.Args)
	}
}

// ChallengeTypeAutocompleter completes challenge type flag values.
func ChallengeTypeAutocompleter(_ *Session) func(args []string) []string {
	return func(args []string) []string {
		return []string{"http-01", "dns-01", "tls-alpn-01"}
	}
}
