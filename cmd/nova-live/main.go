// Command nova-live is a terminal client for the realtime voice engine.
//
// It connects the default microphone and speaker to a live session, prints
// rolling captions for both sides of the conversation, and lets you submit
// text turns from stdin alongside the continuous audio stream.
//
// Usage:
//
//	go run ./cmd/nova-live
//
// Environment variables:
//
//	GEMINI_API_KEY - Required.
//
// Controls:
//
//	<text>  - Send a text turn
//	q       - Quit
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/nova-labs/nova-live/pkg/live"
)

func main() {
	_ = godotenv.Load()

	var (
		model  = flag.String("model", live.DefaultModel, "realtime model identifier")
		voice  = flag.String("voice", string(live.VoicePuck), "synthesized voice name")
		system = flag.String("system", "", "system instruction override")
		debug  = flag.Bool("debug", false, "verbose logging")
	)
	flag.Parse()

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "GEMINI_API_KEY required")
		os.Exit(1)
	}

	level := slog.LevelWarn
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	builder := &live.TranscriptBuilder{}

	engine, err := live.NewEngine(live.Config{
		APIKey:            apiKey,
		Model:             *model,
		Voice:             live.Voice(*voice),
		SystemInstruction: *system,
		Logger:            logger,
		OnConnectionChange: func(connected bool) {
			if connected {
				fmt.Println("[connected: speak naturally, type to send text, q to quit]")
				return
			}
			for _, msg := range builder.Flush() {
				fmt.Printf("\n[%s] %s\n", msg.Role, msg.Text)
			}
			fmt.Println("[disconnected]")
		},
		OnTranscript: func(text string, role live.Role, final bool) {
			for _, msg := range builder.Add(text, role, final) {
				fmt.Printf("\n[%s] %s\n", msg.Role, msg.Text)
			}
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		engine.Disconnect()
		cancel()
	}()

	if err := engine.Connect(ctx, nil); err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	defer engine.Disconnect()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "q" || line == "quit" {
			break
		}
		if err := engine.SendText(line); err != nil {
			fmt.Fprintf(os.Stderr, "send: %v\n", err)
			break
		}
	}

	engine.Disconnect()
	if err := engine.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "session: %v\n", err)
		os.Exit(1)
	}
}
