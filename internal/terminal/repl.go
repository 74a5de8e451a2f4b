// Package terminal is the line-oriented chat host used by `pixel chat`.
package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gwi.com/pixel-chat/internal/apperr"
	"gwi.com/pixel-chat/internal/core"
	"gwi.com/pixel-chat/internal/logger"
)

const (
	prompt             = "you> "
	defaultHistorySize = 10
)

const helpText = `Commands:
  /new                 start a new chat
  /load <id>           continue a saved chat
  /delete              delete the current chat
  /history [n]         list recent chats
  /set <key> [value]   change a preference (no value clears it)
  /status              show model and session state
  /help                show this help
  /quit                leave`

type REPL struct {
	chat   *core.ChatService
	in     io.Reader
	out    io.Writer
	render Renderer
}

func NewREPL(chat *core.ChatService, in io.Reader, out io.Writer, render Renderer) *REPL {
	if render == nil {
		render = PlainRenderer
	}
	return &REPL{chat: chat, in: in, out: out, render: render}
}

// Run reads lines until /quit or end of input.
func (r *REPL) Run(ctx context.Context) error {
	status := r.chat.Status()
	fmt.Fprintf(r.out, "Pixel v%s 💖 model %s. Type /help for commands.\n", status.Version, status.Model)
	if !status.HasCredential {
		fmt.Fprintln(r.out, "No API key yet. Set one with /set credential <key>.")
	}

	done := make(chan struct{})
	defer close(done)
	lines, readErr := r.readLines(done)

	for {
		fmt.Fprint(r.out, prompt)
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out)
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(r.out)
				return <-readErr
			}
			if quit := r.Handle(ctx, line); quit {
				return nil
			}
		}
	}
}

// readLines feeds input lines to a channel so Run can also watch ctx.
func (r *REPL) readLines(done <-chan struct{}) (<-chan string, <-chan error) {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r.in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		readErr <- scanner.Err()
	}()
	return lines, readErr
}

// Handle processes one input line and reports whether the user asked to quit.
func (r *REPL) Handle(ctx context.Context, line string) bool {
	text := strings.TrimSpace(line)
	if text == "" {
		return false
	}
	if !strings.HasPrefix(text, "/") {
		r.submit(ctx, line)
		return false
	}

	fields := strings.Fields(text)
	switch cmd := strings.ToLower(fields[0]); cmd {
	case "/quit", "/exit":
		fmt.Fprintln(r.out, "Bye bye! 👋")
		return true
	case "/help":
		fmt.Fprintln(r.out, helpText)
	case "/new":
		r.chat.NewSession()
		fmt.Fprintln(r.out, "Started a new chat ✨")
	case "/load":
		if len(fields) != 2 {
			fmt.Fprintln(r.out, "Usage: /load <id>")
			return false
		}
		r.load(fields[1])
	case "/delete":
		if err := r.chat.DeleteCurrent(); err != nil {
			r.printError(err)
			return false
		}
		fmt.Fprintln(r.out, "Chat deleted. Starting fresh 🌸")
	case "/history":
		n := defaultHistorySize
		if len(fields) > 1 {
			parsed, err := strconv.Atoi(fields[1])
			if err != nil {
				fmt.Fprintln(r.out, "Usage: /history [n]")
				return false
			}
			n = parsed
		}
		PrintHistory(r.out, r.chat.ListRecent(n))
	case "/set":
		r.set(text, fields)
	case "/status":
		r.printStatus()
	default:
		fmt.Fprintf(r.out, "Unknown command %s. Type /help for commands.\n", cmd)
	}
	return false
}

func (r *REPL) submit(ctx context.Context, text string) {
	reply, err := r.chat.Submit(ctx, text)
	if reply.Content != "" {
		fmt.Fprintf(r.out, "pixel> %s\n", r.render(reply.Content))
	}
	if err != nil {
		r.printError(err)
	}
}

func (r *REPL) load(id string) {
	if !r.chat.LoadSession(id) {
		fmt.Fprintf(r.out, "No saved chat with id %s.\n", id)
		return
	}
	for _, m := range r.chat.CurrentMessages() {
		fmt.Fprintf(r.out, "%s> %s\n", speaker(string(m.Role)), r.render(m.Content))
	}
	fmt.Fprintf(r.out, "Loaded %s.\n", id)
}

// set keeps everything after the key as the value, so prompts may contain spaces.
func (r *REPL) set(text string, fields []string) {
	if len(fields) < 2 {
		fmt.Fprintln(r.out, "Usage: /set <key> [value]")
		return
	}
	key := fields[1]
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text[len(fields[0]):]), key))

	var value any
	if rest != "" {
		value = rest
	}
	if err := r.chat.UpdatePreference(key, value); err != nil {
		r.printError(err)
		return
	}
	if value == nil {
		fmt.Fprintf(r.out, "Cleared %s.\n", key)
		return
	}
	fmt.Fprintf(r.out, "Saved %s.\n", key)
}

func (r *REPL) printStatus() {
	s := r.chat.Status()
	id := s.CurrentID
	if id == "" {
		id = "(unsaved)"
	}
	fmt.Fprintf(r.out, "model: %s (%s)\ntemperature: %.2f\nchat: %s %s [%s]\nsaved chats: %d\n",
		s.Model, s.Provider, s.Temperature, id, s.Title, s.State, s.Conversations)
}

func (r *REPL) printError(err error) {
	logger.Debug("Command failed", "error", err)
	switch apperr.KindOf(err) {
	case apperr.KindInvalidCredential:
		fmt.Fprintln(r.out, "Your API key was rejected. Set a new one with /set credential <key>.")
	case apperr.KindPrecondition:
		fmt.Fprintf(r.out, "Oops: %s\n", apperr.MessageOf(err))
	case apperr.KindStore:
		fmt.Fprintf(r.out, "Could not save: %s\n", apperr.MessageOf(err))
	default:
		fmt.Fprintf(r.out, "Error (%s): %s. Your message is kept; send another to retry.\n", apperr.KindOf(err), apperr.MessageOf(err))
	}
}

// PrintHistory lists conversations, marking the live one with '*'.
func PrintHistory(w io.Writer, summaries []core.ConversationSummary) {
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No saved chats yet.")
		return
	}
	for _, s := range summaries {
		marker := " "
		if s.Current {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %s  %s  (%d messages)\n", marker, s.ID, s.Title, s.MessageCount)
	}
}

func speaker(role string) string {
	if role == "assistant" {
		return "pixel"
	}
	if role == "user" {
		return "you"
	}
	return role
}
