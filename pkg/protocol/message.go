package protocol

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Verb is the application-level message type carried in a packet body
type Verb string

// Client → Server
const (
	VerbJoin             Verb = "join"
	VerbDisconnect       Verb = "disconnect"
	VerbRequestUsersList Verb = "request_users_list"
	VerbSendMessage      Verb = "send_message"
)

// Server → Client
const (
	VerbResponseUsersList      Verb = "response_users_list"
	VerbForwardMessage         Verb = "forward_message"
	VerbErrServerFull          Verb = "err_server_full"
	VerbErrUsernameUnavailable Verb = "err_username_unavailable"
	VerbErrUnknownMessage      Verb = "err_unknown_message"
)

// Known reports whether v is one of the verbs defined by the protocol
func (v Verb) Known() bool {
	switch v {
	case VerbJoin, VerbDisconnect, VerbRequestUsersList, VerbSendMessage,
		VerbResponseUsersList, VerbForwardMessage,
		VerbErrServerFull, VerbErrUsernameUnavailable, VerbErrUnknownMessage:
		return true
	}
	return false
}

// IsError reports whether v is one of the err_* replies
func (v Verb) IsError() bool {
	return v == VerbErrServerFull || v == VerbErrUsernameUnavailable || v == VerbErrUnknownMessage
}

func (v Verb) String() string {
	return string(v)
}

// Format selects how MakeMessage lays out a message
type Format int

const (
	FormatName  Format = 1 // payload is a single username
	FormatEmpty Format = 2 // no payload, length is 0
	FormatList  Format = 3 // payload is a counted name list
	FormatText  Format = 4 // payload is a name list followed by free text
)

const (
	fieldSeparator = " "
	listSeparator  = ","

	// only the first three spaces split fields; the rest belongs to the last field
	maxSignificantSpaces = 3
)

// MakeMessage lays out verb and payload as "<verb> <len> <payload>".
// FormatEmpty ignores payload and writes "<verb> 0". Unknown formats yield "".
func MakeMessage(verb Verb, format Format, payload string) string {
	switch format {
	case FormatEmpty:
		return string(verb) + fieldSeparator + "0"
	case FormatName, FormatList, FormatText:
		return string(verb) + fieldSeparator + strconv.Itoa(utf8.RuneCountInString(payload)) + fieldSeparator + payload
	default:
		return ""
	}
}

// ParseMessage splits data into at most four fields. Only the first three spaces are
// significant: everything after the third one, spaces included, is the final field.
func ParseMessage(data string) []string {
	fields := make([]string, 0, maxSignificantSpaces+1)
	rest := data
	for len(fields) < maxSignificantSpaces {
		field, tail, found := strings.Cut(rest, fieldSeparator)
		if !found {
			break
		}
		fields = append(fields, field)
		rest = tail
	}
	return append(fields, rest)
}

// Message is the typed view of a decoded message string
type Message struct {
	Verb   Verb
	Length int    // Informational payload length, -1 when absent or not numeric
	Arg    string // Third field: username or counted name list
	Text   string // Fourth field: free text
}

// DecodeMessage parses data into a Message. It never fails; missing fields are empty.
func DecodeMessage(data string) Message {
	fields := ParseMessage(data)
	msg := Message{Verb: Verb(fields[0]), Length: -1}
	if len(fields) > 1 {
		if n, err := strconv.Atoi(fields[1]); err == nil {
			msg.Length = n
		}
	}
	if len(fields) > 2 {
		msg.Arg = fields[2]
	}
	if len(fields) > 3 {
		msg.Text = fields[3]
	}
	return msg
}

// Names decodes Arg as a counted name list
func (m Message) Names() []string {
	return DecodeNameList(m.Arg)
}

// EncodeNameList writes names as "<count>,<name1>,<name2>,..."
func EncodeNameList(names []string) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(len(names)))
	for _, name := range names {
		b.WriteString(listSeparator)
		b.WriteString(name)
	}
	return b.String()
}

// DecodeNameList returns the names of a counted list. The leading count is
// informational and is not checked against the number of names.
func DecodeNameList(list string) []string {
	pieces := strings.Split(list, listSeparator)
	if len(pieces) < 2 {
		return nil
	}
	return pieces[1:]
}

// JoinMessage asks the server to register username for the sending endpoint
func JoinMessage(username string) string {
	return MakeMessage(VerbJoin, FormatName, username)
}

// DisconnectMessage asks the server to drop the sending endpoint's session
func DisconnectMessage(username string) string {
	return MakeMessage(VerbDisconnect, FormatName, username)
}

// RequestUsersListMessage asks for the list of active usernames
func RequestUsersListMessage() string {
	return MakeMessage(VerbRequestUsersList, FormatEmpty, "")
}

// ResponseUsersListMessage answers a list request; names should already be sorted
func ResponseUsersListMessage(names []string) string {
	return MakeMessage(VerbResponseUsersList, FormatList, EncodeNameList(names))
}

// SendMessage addresses text to one or more recipients
func SendMessage(recipients []string, text string) string {
	return MakeMessage(VerbSendMessage, FormatText, EncodeNameList(recipients)+fieldSeparator+text)
}

// ForwardMessage delivers text to a recipient on behalf of sender
func ForwardMessage(sender, text string) string {
	return MakeMessage(VerbForwardMessage, FormatText, EncodeNameList([]string{sender})+fieldSeparator+text)
}

// ErrorMessage builds one of the payload-less err_* replies
func ErrorMessage(verb Verb) string {
	return MakeMessage(verb, FormatEmpty, "")
}
