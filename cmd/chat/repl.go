package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"hola-chat/config"
	"hola-chat/internal/chat"
	"hola-chat/internal/domain/message"
	"hola-chat/internal/domain/profile"
	"hola-chat/internal/events"
	hola_errors "hola-chat/pkg/errors"
)

const refreshEvery = 500 * time.Millisecond

const help = `commands:
  <text>                 send a message
  /more                  load older messages
  /reply <id>            quote a message in the next send
  /cancel                drop the reply target
  /react <id> <emoji>    toggle a reaction
  /retry <id>            resend a failed message
  /delete <id>           hide one of your messages locally
  /file <path> [text]    send an attachment with an optional caption
  /quit                  leave`

type command struct {
	name string
	args []string
	text string
}

// arity is the minimum number of arguments each command takes.
var arity = map[string]int{
	"more":   0,
	"reply":  1,
	"cancel": 0,
	"react":  2,
	"retry":  1,
	"delete": 1,
	"file":   1,
	"quit":   0,
	"help":   0,
}

// parseLine turns one input line into a command. Plain text becomes a
// "send". A nil command means there is nothing to do.
func parseLine(line string) (*command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}
	if !strings.HasPrefix(line, "/") {
		return &command{name: "send", text: line}, nil
	}

	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return nil, errors.New("empty command")
	}
	name := strings.ToLower(fields[0])
	want, ok := arity[name]
	if !ok {
		return nil, fmt.Errorf("unknown command /%s", name)
	}
	args := fields[1:]
	if len(args) < want {
		return nil, fmt.Errorf("/%s needs %d argument(s)", name, want)
	}

	cmd := &command{name: name, args: args}
	if name == "file" && len(args) > 1 {
		// Caption keeps its original spacing.
		rest := strings.TrimSpace(line[1:])
		rest = strings.TrimSpace(rest[len(fields[0]):])
		cmd.text = strings.TrimSpace(rest[len(args[0]):])
	}
	return cmd, nil
}

// shortID is the handle shown next to each message.
func shortID(id string) string {
	n := 8
	if message.IsProvisionalID(id) {
		n = 12
	}
	if len(id) <= n {
		return id
	}
	return id[:n]
}

// resolveID finds the single message whose id starts with prefix.
func resolveID(msgs []message.Message, prefix string) (string, error) {
	var found string
	for _, m := range msgs {
		if !strings.HasPrefix(m.ID, prefix) {
			continue
		}
		if found != "" {
			return "", fmt.Errorf("%q matches more than one message", prefix)
		}
		found = m.ID
	}
	if found == "" {
		return "", fmt.Errorf("no message starting with %q", prefix)
	}
	return found, nil
}

// formatMessage renders one line of the transcript.
func formatMessage(m message.Message, me string, names map[string]string, reactions []chat.EmojiCount) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s ", shortID(m.ID), m.CreatedAt.Local().Format("15:04"))
	if m.SenderID == me {
		b.WriteString("you")
	} else if n, ok := names[m.SenderID]; ok {
		b.WriteString(n)
	} else {
		b.WriteString(shortID(m.SenderID))
	}
	b.WriteString(": ")
	if m.ReplyTo != nil {
		fmt.Fprintf(&b, "> %q ", m.ReplyTo.SnapshotContent)
	}
	b.WriteString(m.Content)
	if m.Attachment != nil {
		if m.Content != "" {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "<%s %s>", m.Attachment.MimeType, m.Attachment.URL)
	}
	for _, r := range reactions {
		fmt.Fprintf(&b, " %s%d", r.Emoji, r.Count)
	}
	switch m.DeliveryState {
	case message.StatePending:
		b.WriteString(" (sending)")
	case message.StateFailed:
		b.WriteString(" (failed, /retry " + shortID(m.ID) + ")")
	default:
		if m.SenderID == me && m.Read {
			b.WriteString(" ✓✓")
		}
	}
	return b.String()
}

type repl struct {
	session   *chat.Session
	peer      profile.Profile
	maxUpload int64

	outMu sync.Mutex
	out   io.Writer

	// shown remembers the last rendering of each message so only changes
	// are printed.
	shown map[string]string
}

func newREPL(s *chat.Session, peer profile.Profile, maxUpload int64, out io.Writer) *repl {
	if maxUpload <= 0 {
		maxUpload = config.DefaultSyncConfig().MaxUploadBytes
	}
	return &repl{session: s, peer: peer, maxUpload: maxUpload, out: out, shown: make(map[string]string)}
}

func (r *repl) printf(format string, args ...any) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

func (r *repl) Run(ctx context.Context, in io.Reader) error {
	r.printf("chatting with %s (/help for commands)\n", r.peer.DisplayName())

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(refreshEvery)
	defer ticker.Stop()

	var lastSyncErr error
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.refresh()
			if err := r.session.SyncFailed(); err != nil && !errors.Is(err, lastSyncErr) {
				r.printf("! %s\n", describe(err))
			}
			lastSyncErr = r.session.SyncFailed()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			cmd, err := parseLine(line)
			if err != nil {
				r.printf("! %s\n", err)
				continue
			}
			if cmd == nil {
				continue
			}
			if cmd.name == "quit" {
				return nil
			}
			if err := r.exec(ctx, cmd); err != nil {
				r.printf("! %s\n", describe(err))
			}
			r.refresh()
		}
	}
}

func (r *repl) exec(ctx context.Context, cmd *command) error {
	s := r.session
	switch cmd.name {
	case "help":
		r.printf("%s\n", help)
	case "send":
		s.Composer().SetDraft(cmd.text)
		_, err := s.Send(ctx, chat.Draft{Content: cmd.text})
		return err
	case "more":
		if !s.HasOlder() {
			r.printf("no older messages\n")
			return nil
		}
		if s.LoadMore(ctx) {
			r.reprint()
		}
	case "cancel":
		s.Composer().CancelReply()
	case "reply":
		id, err := resolveID(s.ActiveConversationMessages(), cmd.args[0])
		if err != nil {
			return err
		}
		if err := s.Composer().SetReplyTarget(id); err != nil {
			return err
		}
		r.printf("replying to %q\n", s.Composer().ReplyTarget().SnapshotContent)
	case "react":
		id, err := resolveID(s.ActiveConversationMessages(), cmd.args[0])
		if err != nil {
			return err
		}
		_, err = s.ToggleReaction(id, cmd.args[1])
		return err
	case "retry":
		id, err := resolveID(s.ActiveConversationMessages(), cmd.args[0])
		if err != nil {
			return err
		}
		_, err = s.Retry(ctx, id)
		return err
	case "delete":
		id, err := resolveID(s.ActiveConversationMessages(), cmd.args[0])
		if err != nil {
			return err
		}
		if err := s.DeleteLocal(id); err != nil {
			return err
		}
		delete(r.shown, id)
		r.reprint()
	case "file":
		f, err := readAttachment(cmd.args[0], r.maxUpload)
		if err != nil {
			return err
		}
		_, err = s.Send(ctx, chat.Draft{Content: cmd.text, Attachment: f})
		return err
	}
	return nil
}

// readAttachment refuses files over limit before reading them.
func readAttachment(path string, limit int64) (*chat.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > limit {
		return nil, hola_errors.Upload(fmt.Errorf("%s is %d bytes, limit %d: %w", filepath.Base(path), info.Size(), limit, hola_errors.ErrTooLarge))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &chat.File{Name: filepath.Base(path), ContentType: contentType, Data: data}, nil
}

func (r *repl) names() map[string]string {
	return map[string]string{r.peer.ID: r.peer.DisplayName()}
}

// refresh prints messages that are new or changed since the last pass.
func (r *repl) refresh() {
	me := r.session.Me()
	names := r.names()
	for _, m := range r.session.ActiveConversationMessages() {
		line := formatMessage(m, me, names, r.session.Reactions(m.ID))
		if r.shown[m.ID] == line {
			continue
		}
		r.shown[m.ID] = line
		r.printf("%s\n", line)
	}
}

// reprint redraws the whole visible window.
func (r *repl) reprint() {
	r.shown = make(map[string]string)
	r.printf("--- %s ---\n", r.peer.DisplayName())
	r.refresh()
}

func (r *repl) watchTyping(ctx context.Context, feed <-chan events.TypingEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-feed:
			if !ok {
				return
			}
			if ev.Typing {
				r.printf("… %s is typing\n", r.peer.DisplayName())
			}
		}
	}
}
