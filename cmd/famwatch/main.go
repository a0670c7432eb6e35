// Package main is famwatch, a terminal companion for the family messaging
// backend: it follows the feed live, and can send messages or change the
// member's state.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cem-sucu/ia-familiale/internal/client"
	"github.com/cem-sucu/ia-familiale/internal/store"
)

func main() {
	serverURL := flag.String("server", "http://localhost:8787", "Backend base URL")
	memberID := flag.String("member", "", "Member id to log in as")
	password := flag.String("password", "", "Password (or FAMWATCH_PASSWORD)")
	sendText := flag.String("send", "", "Send this message and exit")
	sendTo := flag.String("to", "", "Recipient member id (empty = whole circle)")
	sendTrigger := flag.String("trigger", "maintenant", "Delivery trigger for -send")
	setState := flag.String("state", "", "Change own state and exit")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if *memberID == "" {
		fmt.Fprintln(os.Stderr, "famwatch: -member is required")
		os.Exit(2)
	}
	pass := *password
	if pass == "" {
		pass = os.Getenv("FAMWATCH_PASSWORD")
	}
	if pass == "" {
		fmt.Fprintln(os.Stderr, "famwatch: no password given (-password or FAMWATCH_PASSWORD)")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(*serverURL)
	if err := c.Login(ctx, *memberID, pass); err != nil {
		fmt.Fprintf(os.Stderr, "famwatch: login failed: %v\n", err)
		os.Exit(1)
	}

	switch {
	case *setState != "":
		delivered, err := c.ChangeState(ctx, *setState)
		if err != nil {
			fmt.Fprintf(os.Stderr, "famwatch: state change failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("état changé en %s (%d message(s) livré(s))\n", *setState, delivered)
		return

	case *sendText != "":
		msg, err := c.Send(ctx, *sendTo, *sendText, *sendTrigger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "famwatch: send failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("message %s envoyé (%s)\n", msg.ID, msg.Status)
		return
	}

	watch(ctx, c, logger)
}

// watch follows the feed until interrupted.
func watch(ctx context.Context, c *client.Client, logger *slog.Logger) {
	members := memberNames(ctx, c)

	adapter := client.NewAdapter(c, logger)
	defer adapter.Close()
	go adapter.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-adapter.Updates():
			if !ok {
				return
			}
			render(update, members, c.Member().ID)
		}
	}
}

func memberNames(ctx context.Context, c *client.Client) map[string]string {
	names := make(map[string]string)
	members, err := c.Members(ctx)
	if err != nil {
		return names
	}
	for _, m := range members {
		names[m.ID] = m.Name
	}
	return names
}

func render(update client.Update, names map[string]string, selfID string) {
	if update.Fresh != nil && update.Fresh.SenderID != selfID {
		fmt.Printf("\a🔔 Message de %s : %s\n", displayName(names, update.Fresh.SenderID), update.Fresh.Text)
	}

	fmt.Print("\033[H\033[2J") // clear screen
	for _, item := range client.WithSeparators(update.Messages, time.Now()) {
		if item.Separator != "" {
			fmt.Printf("— %s —\n", item.Separator)
			continue
		}
		fmt.Println(formatMessage(item.Message, names, selfID))
	}
}

func formatMessage(msg *store.Message, names map[string]string, selfID string) string {
	sender := displayName(names, msg.SenderID)
	if msg.SenderID == selfID {
		sender = "moi"
	}

	when := msg.SentAt.Local().Format("15:04")
	switch msg.Status {
	case store.StatusPending:
		return fmt.Sprintf("%s  %s: %s  (en attente)", when, sender, msg.Text)
	case store.StatusCanceled:
		return fmt.Sprintf("%s  %s: %s  (annulé)", when, sender, msg.Text)
	default:
		if msg.DeliveredAt != nil && !msg.DeliveredAt.Equal(msg.SentAt) {
			return fmt.Sprintf("%s  %s: %s  (livré à %s)", when, sender, msg.Text, msg.DeliveredAt.Local().Format("15:04"))
		}
		return fmt.Sprintf("%s  %s: %s", when, sender, msg.Text)
	}
}

func displayName(names map[string]string, id string) string {
	if name, ok := names[id]; ok {
		return name
	}
	return id
}
