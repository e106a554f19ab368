package client

import (
	"errors"
	"strconv"
	"strings"

	"github.com/aeolun/udpchat/pkg/protocol"
)

// ErrIncorrectFormat is returned for a msg command that does not follow
// msg <n> <user1> .. <userN> <text>
var ErrIncorrectFormat = errors.New("incorrect userinput format")

// CommandKind identifies what an input line asks for
type CommandKind int

const (
	CommandUnrecognized CommandKind = iota
	CommandMsg
	CommandList
	CommandHelp
	CommandQuit
)

func (k CommandKind) String() string {
	switch k {
	case CommandMsg:
		return "msg"
	case CommandList:
		return "list"
	case CommandHelp:
		return "help"
	case CommandQuit:
		return "quit"
	default:
		return "unrecognized"
	}
}

// Command is one parsed line of operator input
type Command struct {
	Kind       CommandKind
	Verb       string // first token as typed
	Recipients []string
	Text       string
}

// HelpText lists every command the console accepts
const HelpText = `All inputs and their format:
msg <number_of_users> <username1> <username2> ... <message>
list
help
quit`

// ParseCommand parses a console line. Surrounding whitespace is ignored; the verb
// is everything before the first space. Only msg takes arguments, the other verbs
// ignore anything after them.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	verb, rest, _ := strings.Cut(line, " ")

	switch verb {
	case "msg":
		return parseMsg(rest)
	case "list":
		return Command{Kind: CommandList, Verb: verb}, nil
	case "help":
		return Command{Kind: CommandHelp, Verb: verb}, nil
	case "quit":
		return Command{Kind: CommandQuit, Verb: verb}, nil
	default:
		return Command{Kind: CommandUnrecognized, Verb: verb}, nil
	}
}

// parseMsg parses "<n> <user1> .. <userN> <text>"; the text keeps its inner spaces
func parseMsg(args string) (Command, error) {
	countToken, rest, ok := strings.Cut(args, " ")
	if !ok {
		return Command{}, ErrIncorrectFormat
	}
	n, err := strconv.Atoi(countToken)
	if err != nil || n < 1 {
		return Command{}, ErrIncorrectFormat
	}

	recipients := make([]string, 0, n)
	for i := 0; i < n; i++ {
		var name string
		name, rest, ok = strings.Cut(rest, " ")
		if !ok || name == "" {
			return Command{}, ErrIncorrectFormat
		}
		recipients = append(recipients, name)
	}

	if rest == "" {
		return Command{}, ErrIncorrectFormat
	}

	return Command{
		Kind:       CommandMsg,
		Verb:       "msg",
		Recipients: recipients,
		Text:       rest,
	}, nil
}

// Request returns the message to send to the server for this command, if any.
// username is the name this client joined with.
func (c Command) Request(username string) (string, bool) {
	switch c.Kind {
	case CommandMsg:
		return protocol.SendMessage(c.Recipients, c.Text), true
	case CommandList:
		return protocol.RequestUsersListMessage(), true
	case CommandQuit:
		return protocol.DisconnectMessage(username), true
	default:
		return "", false
	}
}
