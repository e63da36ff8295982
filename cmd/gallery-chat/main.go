// Command gallery-chat talks to a gallery's artist chat from the terminal.
// Theme and language tool calls act on local state; a language switch
// moves the current page once the reply is complete.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/HugeFrog24/nini-artgallery/internal/chat"
	"github.com/HugeFrog24/nini-artgallery/internal/chat/bridge"
	"github.com/HugeFrog24/nini-artgallery/internal/chat/clienttools"
)

type navigationFunc func(target string)

func (f navigationFunc) Set(target string) { f(target) }

func main() {
	_ = godotenv.Load()

	endpoint := flag.String("url", envOr("GALLERY_CHAT_URL", "http://localhost:8080/api/chat"), "chat endpoint URL")
	host := flag.String("host", os.Getenv("GALLERY_CHAT_HOST"), "Host header selecting the tenant")
	loc := flag.String("locale", "en", "starting locale")
	scheme := flag.String("system-scheme", "light", "appearance used for the \"system\" color scheme (light, dark)")
	debug := flag.Bool("debug", false, "log bridge state changes")
	flag.Parse()

	level := slog.LevelWarn
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	state := clienttools.NewState(*loc)
	state.SetSystemScheme(*scheme)
	page := "/" + state.Locale()

	transport := &bridge.HTTPTransport{URL: *endpoint, Client: http.DefaultClient}
	if *host != "" {
		transport.Header = http.Header{"Host": {*host}}
	}

	var b *bridge.Bridge
	tools := clienttools.New(state, navigationFunc(func(target string) {
		b.Navigation().Set(target)
	}))
	registry, err := tools.NewRegistry(logger)
	if err != nil {
		log.Fatalf("Failed to build tool registry: %v", err)
	}

	b = bridge.New(transport, registry,
		bridge.WithClientState(state),
		bridge.WithLogger(logger),
		bridge.OnStateChange(func(s bridge.State) {
			logger.Debug("bridge state", slog.String("state", string(s)))
		}),
		bridge.OnPart(func(p chat.Part) {
			switch p.Type {
			case chat.PartTextDelta:
				fmt.Print(p.Delta)
			case chat.PartToolCall:
				fmt.Printf("\n[%s %s]\n", p.ToolName, string(p.Input))
			}
		}),
		bridge.OnReady(func(chat.Message) {
			fmt.Println()
		}),
		bridge.OnNavigate(func(target string) {
			if state.SetLocale(target) {
				page = clienttools.LocalizedPath(page, target)
				fmt.Printf("[navigated to %s]\n", page)
			}
		}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Chatting with %s as %s. Commands: /retry /reset /theme /quit\n", *endpoint, state.Locale())
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		if target, ok := b.Navigation().Peek(); ok && b.State() != bridge.StateReady {
			fmt.Printf("[switch to %s pending until a reply completes]\n", target)
		}
		fmt.Printf("%s> ", page)
		var line string
		select {
		case <-ctx.Done():
			b.Abort()
			fmt.Println()
			return
		case l, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(l)
		}

		switch line {
		case "":
			continue
		case "/quit":
			return
		case "/reset":
			b.Reset()
			fmt.Println("[conversation cleared]")
			continue
		case "/theme":
			fmt.Println(string(state.ThemeJSON()))
			continue
		case "/retry":
			report(b.Retry(ctx))
			continue
		}
		report(b.Send(ctx, line))
	}
}

func report(err error) {
	if err == nil {
		return
	}
	var httpErr *bridge.HTTPError
	var streamErr *bridge.StreamError
	switch {
	case errors.Is(err, bridge.ErrAborted):
		fmt.Println("\n[aborted]")
	case errors.As(err, &httpErr):
		fmt.Printf("\n[error %d: %s] type /retry to try again\n", httpErr.StatusCode, httpErr.Message)
	case errors.As(err, &streamErr):
		fmt.Printf("\n[error: %s] type /retry to try again\n", streamErr.Text)
	default:
		fmt.Printf("\n[error: %v]\n", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
