/*
Package main is a headless host for the chatline client core.

It restores a persisted session or signs in with the configured role, then turns
stdin lines into chat intents and prints what the server pushes. Commands:
/delete <id>, /clear, /who, /reconnect, /logout, /quit. Any other line is sent
as a message.
*/
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"chatline/internal/app/api"
	"chatline/internal/app/chat"
	"chatline/internal/app/controller"
	"chatline/internal/app/session"
	"chatline/internal/app/storage"
	"chatline/internal/app/user"
	"chatline/internal/configs"
	"chatline/internal/pkg/logx"
)

func main() {
	cfg, err := configs.LoadClientConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logx.InitGlobalLogger(cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logx.Fatal(err, "Chat client stopped with an error")
	}
}

func run(ctx context.Context, cfg *configs.ClientConfig) error {
	kv, err := storage.Open(ctx, cfg.StorePath)
	if err != nil {
		return err
	}
	defer kv.Close()

	wsURL, err := api.WebSocketURL(cfg.BackendURL)
	if err != nil {
		return err
	}

	out := newPrinter(os.Stdout)
	conn := chat.NewConnectionManager(wsURL, nil, chat.NewPresenceHistory(ctx, kv), out)
	ctrl := controller.New(
		session.NewStore(kv, nil),
		api.NewClient(cfg.BackendURL, cfg.RequestTimeout),
		conn,
		nil,
		nil,
	)
	out.attach(ctrl)
	defer conn.Close()

	if !ctrl.RestoreOnStartup(ctx) {
		if err := signIn(ctx, ctrl, cfg); err != nil {
			return err
		}
	}

	for _, msg := range ctrl.Messages() {
		out.message(msg)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			done, err := handleLine(ctx, ctrl, out, line)
			if err != nil {
				out.notice(err.Error())
			}
			if done {
				return nil
			}
		}
	}
}

func signIn(ctx context.Context, ctrl *controller.Controller, cfg *configs.ClientConfig) error {
	role := user.Role(cfg.Role)
	if err := ctrl.ChooseRole(ctx, role); err != nil {
		return err
	}
	if role != user.RoleAdmin {
		return nil
	}

	if cfg.AdminPassword == "" {
		return fmt.Errorf("ADMIN_PASSWORD is required to sign in as admin")
	}
	return ctrl.Authenticate(ctx, cfg.AdminPassword)
}
