package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"

	"duochat/domain"
	"duochat/internal"
	"duochat/moderation"
	"duochat/presence"
	"duochat/repositories"
	"duochat/runtime"
	"duochat/runtime/workers"
	"duochat/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the demo lifecycle, and centralizes
// error reporting, so every defer (database close, presence release) executes
// before the process exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Realtime bus & gateway
	bus := runtime.NewBus(log, config.BufferSize)
	store := repositories.NewStore(db, log, bus)

	censorChar := '*'
	if config.CensorChar != "" {
		censorChar = []rune(config.CensorChar)[0]
	}
	moderator, err := moderation.NewModerator(config.CensoredWords, censorChar, log)
	if err != nil {
		return fmt.Errorf("building moderator: %w", err)
	}

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Two demo clients on the same process-local bus
	alice, bob := uuid.New(), uuid.New()
	for _, p := range []domain.Profile{
		{ID: alice, Name: "Alice", StatusMessage: lo.ToPtr("around")},
		{ID: bob, Name: "Bob"},
	} {
		if err := store.SaveProfile(ctx, p); err != nil {
			return fmt.Errorf("seeding profile: %w", err)
		}
	}

	supervisor := workers.NewSupervisor(log, config.RestartInterval)
	sessions := make(map[string]*services.Session, 2)
	for name, userID := range map[string]uuid.UUID{"Alice": alice, "Bob": bob} {
		tracker := presence.NewTracker(bus, store, log)
		session := services.NewSession(services.SessionDeps{
			Gateway:          store,
			Bus:              bus,
			Tracker:          tracker,
			Moderator:        &moderator,
			Log:              log.With("client", name),
			UserID:           userID,
			MaxContentLength: config.MaxContentLength,
		})
		ws, err := session.Start(ctx)
		if err != nil {
			return fmt.Errorf("starting %s: %w", name, err)
		}
		supervisor.Add(ws...)
		supervisor.Add(presence.NewHeartbeatWorker(log.With("client", name), store, tracker, config.HeartbeatInterval))
		sessions[name] = session
		defer session.Close(context.Background())
	}
	go supervisor.Run(ctx)

	// 6. A short scripted exchange
	if err := demo(ctx, sessions["Alice"], sessions["Bob"], bob); err != nil {
		return err
	}

	log.Info("Demo running, Ctrl+C to stop")
	<-ctx.Done()
	supervisor.Stop()
	return nil
}

func demo(ctx context.Context, alice, bob *services.Session, bobID uuid.UUID) error {
	chatID, err := alice.CreateOrReuseChat(ctx, bobID)
	if err != nil {
		return err
	}
	if err := alice.SelectChat(ctx, chatID); err != nil {
		return err
	}
	if err := bob.SelectChat(ctx, chatID); err != nil {
		return err
	}

	if _, err := alice.SendMessage(ctx, domain.Draft{Content: lo.ToPtr("Hello Bob!")}); err != nil {
		return err
	}
	// Give the bus a beat to fan the insert out before Bob reads it.
	time.Sleep(100 * time.Millisecond)
	if err := bob.Focus(ctx); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)

	for _, msg := range alice.Messages() {
		content := ""
		if msg.Content != nil {
			content = *msg.Content
		}
		color.Green.Printf("%s  %s  [%s]\n", msg.CreatedAt.Format(time.TimeOnly), content, msg.Status)
	}
	for _, summary := range bob.Summaries() {
		color.Cyan.Printf("chat %s  unread=%d\n", summary.ChatID, summary.Unread)
	}
	if bob.IsOnline(bobID) {
		color.Yellow.Println("Bob is online")
	}
	return nil
}
