// Package commands parses chat commands such as "!meme cat" and dispatches
// them to handlers registered at startup.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ajitpratap0/memereact/internal/metrics"
	"github.com/ajitpratap0/memereact/internal/models"
)

var (
	// ErrUnknownCommand is returned when no handler is registered under the name.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrBadArguments is returned when the arguments do not fit the declared parameters.
	ErrBadArguments = errors.New("bad command arguments")
)

// DefaultMarkers are the prefixes that turn a message into a command.
var DefaultMarkers = []string{"sudo ", "!", "`", `\`}

// ParamKind is the declared shape of one command parameter.
type ParamKind int

const (
	// ParamString consumes one whitespace separated word.
	ParamString ParamKind = iota
	// ParamInt consumes one word and parses it as an integer (0x and 0 prefixes allowed).
	ParamInt
	// ParamFloat consumes one word and parses it as a float.
	ParamFloat
	// ParamRest consumes the remaining text. It must be the last parameter.
	ParamRest
)

func (k ParamKind) String() string {
	switch k {
	case ParamString:
		return "string"
	case ParamInt:
		return "int"
	case ParamFloat:
		return "float"
	case ParamRest:
		return "text"
	default:
		return "unknown"
	}
}

// Param declares one parameter.
type Param struct {
	Name string
	Kind ParamKind
}

// Replier sends a text reply to a channel.
type Replier interface {
	Reply(ctx context.Context, channelID, text string) error
}

// Args are the converted arguments, in parameter order.
type Args []any

// String returns argument i as a string.
func (a Args) String(i int) string {
	s, _ := a[i].(string)
	return s
}

// Int returns argument i as an int64.
func (a Args) Int(i int) int64 {
	n, _ := a[i].(int64)
	return n
}

// Float returns argument i as a float64.
func (a Args) Float(i int) float64 {
	f, _ := a[i].(float64)
	return f
}

// Invocation is what a handler receives.
type Invocation struct {
	Message models.Message
	Args    Args
	replier Replier
}

// Reply answers in the channel the command came from.
func (inv *Invocation) Reply(ctx context.Context, format string, args ...any) error {
	if inv.replier == nil {
		return nil
	}
	return inv.replier.Reply(ctx, inv.Message.ChannelID, fmt.Sprintf(format, args...))
}

// Handler runs a command.
type Handler func(ctx context.Context, inv *Invocation) error

// Command is a named handler with a declared parameter shape.
type Command struct {
	Name        string
	Description string
	Params      []Param
	Handler     Handler
}

// Usage renders the command as "name(params): description".
func (c Command) Usage() string {
	parts := make([]string, len(c.Params))
	for i, p := range c.Params {
		parts[i] = p.Name + " " + p.Kind.String()
	}
	return fmt.Sprintf("%s(%s): %s", c.Name, strings.Join(parts, ", "), c.Description)
}

// Result describes what Dispatch did with a message.
type Result struct {
	// Handled is true when the message had the command format. Such messages
	// are not passed on to the reactor, even when the command failed.
	Handled bool
	Command string
	Err     error
}

// Registry holds the commands. Register everything before the first Dispatch.
type Registry struct {
	commands map[string]Command
	pattern  *regexp.Regexp
	logger   *slog.Logger
}

// NewRegistry creates a registry recognising the given markers (DefaultMarkers
// when empty). The help command is always registered.
func NewRegistry(markers []string, logger *slog.Logger) *Registry {
	if len(markers) == 0 {
		markers = DefaultMarkers
	}
	quoted := make([]string, len(markers))
	for i, m := range markers {
		quoted[i] = regexp.QuoteMeta(strings.TrimRight(m, " "))
		if strings.HasSuffix(m, " ") {
			quoted[i] += " +"
		}
	}
	r := &Registry{
		commands: make(map[string]Command),
		pattern:  regexp.MustCompile(`(?s)^(?:` + strings.Join(quoted, "|") + `)([a-zA-Z]+)(.*)$`),
		logger:   logger,
	}
	r.MustRegister(Command{
		Name:        "help",
		Description: "writes this list",
		Handler: func(ctx context.Context, inv *Invocation) error {
			return inv.Reply(ctx, "%s", r.Help())
		},
	})
	return r
}

// Register adds cmd. Names are case insensitive and must be unique.
func (r *Registry) Register(cmd Command) error {
	name := strings.ToLower(cmd.Name)
	if name == "" || cmd.Handler == nil {
		return fmt.Errorf("registering command %q: name and handler are required", cmd.Name)
	}
	if _, dup := r.commands[name]; dup {
		return fmt.Errorf("registering command %q: duplicate name", name)
	}
	for i, p := range cmd.Params {
		if p.Kind == ParamRest && i != len(cmd.Params)-1 {
			return fmt.Errorf("registering command %q: rest parameter %q must be last", name, p.Name)
		}
	}
	cmd.Name = name
	r.commands[name] = cmd
	return nil
}

// MustRegister is Register that panics on error. For use during startup.
func (r *Registry) MustRegister(cmd Command) {
	if err := r.Register(cmd); err != nil {
		panic(err)
	}
}

// Commands returns the registered commands sorted by name.
func (r *Registry) Commands() []Command {
	out := make([]Command, 0, len(r.commands))
	for _, c := range r.commands {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Help lists every command with its usage.
func (r *Registry) Help() string {
	var b strings.Builder
	for i, c := range r.Commands() {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(c.Usage())
	}
	return b.String()
}

// Parse splits text into a command name and its raw argument text. ok is false
// when text does not start with a marker followed by a name.
func (r *Registry) Parse(text string) (name, rest string, ok bool) {
	m := r.pattern.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	return strings.ToLower(m[1]), m[2], true
}

// Dispatch runs the command in msg, if any. Unknown commands and bad arguments
// are answered with a hint to run help.
func (r *Registry) Dispatch(ctx context.Context, msg models.Message, replier Replier) Result {
	name, rest, ok := r.Parse(msg.Text)
	if !ok {
		return Result{}
	}
	res := Result{Handled: true, Command: name}

	cmd, found := r.commands[name]
	if !found {
		res.Err = fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	} else if args, err := convert(cmd.Params, rest); err != nil {
		res.Err = fmt.Errorf("%s: %w", name, err)
	} else {
		inv := &Invocation{Message: msg, Args: args, replier: replier}
		if err := cmd.Handler(ctx, inv); err != nil {
			res.Err = fmt.Errorf("%s: %w", name, err)
		}
	}

	outcome := "ok"
	switch {
	case errors.Is(res.Err, ErrUnknownCommand):
		outcome = "unknown"
		name = "unknown"
	case errors.Is(res.Err, ErrBadArguments):
		outcome = "bad_arguments"
	case res.Err != nil:
		outcome = "error"
	}
	metrics.CommandsTotal.WithLabelValues(name, outcome).Inc()
	r.logger.Info("command", "author", msg.AuthorName, "author_id", msg.AuthorID, "text", msg.Text, "outcome", outcome)

	if outcome == "unknown" || outcome == "bad_arguments" {
		inv := &Invocation{Message: msg, replier: replier}
		if err := inv.Reply(ctx, "Could not resolve command %q! Run help for a list of available commands", res.Command); err != nil {
			r.logger.Warn("replying to command failed", "error", err)
		}
	}
	return res
}

// convert splits raw into words and converts them according to params.
func convert(params []Param, raw string) (Args, error) {
	rest := strings.TrimSpace(raw)
	args := make(Args, 0, len(params))
	for _, p := range params {
		if p.Kind == ParamRest {
			if rest == "" {
				return nil, fmt.Errorf("%w: missing %s", ErrBadArguments, p.Name)
			}
			args = append(args, rest)
			rest = ""
			continue
		}
		word, tail := nextWord(rest)
		if word == "" {
			return nil, fmt.Errorf("%w: missing %s", ErrBadArguments, p.Name)
		}
		rest = tail
		switch p.Kind {
		case ParamString:
			args = append(args, word)
		case ParamInt:
			n, err := strconv.ParseInt(word, 0, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %s is not an integer: %q", ErrBadArguments, p.Name, word)
			}
			args = append(args, n)
		case ParamFloat:
			f, err := strconv.ParseFloat(word, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %s is not a number: %q", ErrBadArguments, p.Name, word)
			}
			args = append(args, f)
		}
	}
	if rest != "" {
		return nil, fmt.Errorf("%w: unexpected %q", ErrBadArguments, rest)
	}
	return args, nil
}

func nextWord(s string) (word, rest string) {
	s = strings.TrimLeft(s, " \t\n\r")
	if i := strings.IndexAny(s, " \t\n\r"); i >= 0 {
		return s[:i], strings.TrimSpace(s[i:])
	}
	return s, ""
}
