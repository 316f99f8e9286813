package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"chatline/internal/app/chat"
	"chatline/internal/app/controller"
)

// printer renders pushed state as plain lines. It implements chat.Listener.
type printer struct {
	mu   sync.Mutex
	w    io.Writer
	ctrl *controller.Controller
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w}
}

func (p *printer) attach(ctrl *controller.Controller) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ctrl = ctrl
}

func (p *printer) controller() *controller.Controller {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ctrl
}

func (p *printer) println(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) StatusChanged(state chat.ConnectionState) {
	p.println("* %s", state)
}

func (p *printer) EventApplied(event chat.EventName) {
	ctrl := p.controller()
	if ctrl == nil {
		return
	}

	switch event {
	case chat.EventNewMessage:
		msgs := ctrl.Messages()
		if len(msgs) > 0 {
			p.message(msgs[len(msgs)-1])
		}
	case chat.EventMessageDeleted:
		p.println("* a message was deleted")
	case chat.EventAllMessagesCleared:
		p.println("* all messages were cleared")
	case chat.EventUserTyping:
		if typing := ctrl.TypingUsers(); len(typing) > 0 {
			names := make([]string, 0, len(typing))
			for _, t := range typing {
				names = append(names, t.Username)
			}
			p.println("* typing: %v", names)
		}
	}
}

func (p *printer) Notice(message string) {
	p.println("! %s", message)
}

func (p *printer) notice(message string) {
	p.Notice(message)
}

func (p *printer) message(m chat.Message) {
	p.println("[%s] %s (%s) %s: %s", m.Timestamp.Local().Format(time.Kitchen), m.ID, m.Role, m.Username, m.Content)
}

func (p *printer) who(online []chat.PresenceEntry, history []chat.StatusChange) {
	for _, u := range online {
		p.println("online: %s (%s) since %s", u.Username, u.Role, u.ConnectedAt.Local().Format(time.Kitchen))
	}
	if n := len(history); n > 0 {
		last := history[n-1]
		p.println("last change: %s went %s at %s", last.Username, last.Status, last.Timestamp.Local().Format(time.Kitchen))
	}
}
