package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"loom/internal/chatstream"
	"loom/internal/domain/models"
	"loom/internal/service/chat"
)

// A small terminal client for the chat server. It logs in, opens a
// conversation, and streams one answer per prompt line, printing
// thinking output dimmed ahead of the answer.
func main() {
	serverURL := flag.String("server", "http://localhost:8080", "chat server base URL")
	username := flag.String("username", "admin", "account username")
	password := flag.String("password", "", "account password")
	model := flag.String("model", "gpt-4o-mini", "answer model id")
	thinkingModel := flag.String("thinking-model", "", "enable a thinking pass with this model")
	conversationID := flag.String("conversation", "", "resume an existing conversation")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	jar, err := cookiejar.New(nil)
	if err != nil {
		log.Fatalf("cookie jar: %v", err)
	}
	httpClient := &http.Client{Jar: jar}

	if err := login(httpClient, *serverURL, *username, *password); err != nil {
		log.Fatalf("login failed: %v", err)
	}

	session := chatstream.NewSession(*serverURL, httpClient, logger, printProgress)
	if err := session.LoadWorkspace(context.Background()); err != nil {
		log.Fatalf("load workspace: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	history := []models.ChatMessage{}
	currentConversation := *conversationID

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		prompt := strings.TrimSpace(scanner.Text())
		if prompt == "" {
			fmt.Print("> ")
			continue
		}
		if prompt == "/quit" {
			return
		}

		history = append(history, models.ChatMessage{
			Role:    models.RoleUser,
			Content: models.TextContent(prompt),
		})

		request := chat.Request{
			ConversationID: currentConversation,
			Messages:       history,
			Settings:       buildSettings(*model, *thinkingModel),
		}

		resolvedID, err := session.SendChat(ctx, request)
		fmt.Println()
		if err != nil {
			if ctx.Err() != nil {
				fmt.Fprintln(os.Stderr, "stopped")
				return
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		} else {
			if resolvedID != "" {
				currentConversation = resolvedID
			}
			history = append(history, models.ChatMessage{
				Role:    models.RoleAssistant,
				Content: models.TextContent(session.State().Message),
			})
		}

		fmt.Print("> ")
	}
}

func buildSettings(model, thinkingModel string) chat.Settings {
	settings := chat.Settings{Model: model}
	if thinkingModel != "" {
		settings.Thinking = &chat.ThinkingSettings{
			Enabled:       true,
			ThinkingModel: thinkingModel,
			AnswerModel:   model,
		}
	}
	return settings
}

// printed tracks how much of each accumulator has been echoed so far,
// so progress callbacks print only the fresh suffix.
var printed struct {
	thinking int
	message  int
}

func printProgress(state chatstream.State) {
	if !state.IsStreaming {
		printed.thinking = 0
		printed.message = 0
		return
	}
	if len(state.Thinking) > printed.thinking {
		fmt.Fprint(os.Stderr, state.Thinking[printed.thinking:])
		printed.thinking = len(state.Thinking)
	}
	if len(state.Message) > printed.message {
		fmt.Print(state.Message[printed.message:])
		printed.message = len(state.Message)
	}
}

func login(client *http.Client, serverURL, username, password string) error {
	payload, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return err
	}

	resp, err := client.Post(serverURL+"/api/auth/login", "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
