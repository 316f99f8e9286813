package main

import (
	"context"
	"strings"

	"chatline/internal/app/controller"
)

// handleLine runs one stdin line. It reports whether the host should exit.
func handleLine(ctx context.Context, ctrl *controller.Controller, out *printer, line string) (bool, error) {
	command, arg, _ := strings.Cut(strings.TrimSpace(line), " ")

	switch command {
	case "":
		return false, nil
	case "/quit":
		return true, nil
	case "/logout":
		return true, ctrl.Logout(ctx)
	case "/delete":
		return false, ctrl.DeleteMessage(strings.TrimSpace(arg))
	case "/clear":
		return false, ctrl.ClearAllMessages()
	case "/reconnect":
		return false, ctrl.Reconnect(ctx)
	case "/who":
		out.who(ctrl.OnlineUsers(), ctrl.PresenceHistory())
		return false, nil
	}

	ctrl.ContentChanged()
	return false, ctrl.Send(line)
}
