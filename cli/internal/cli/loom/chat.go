package loom

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/loomworks/loom/go/pkg/workspace/model"
	"github.com/loomworks/loom/go/pkg/workspace/stream"
)

// ChatConfig holds the chat command toggles.
type ChatConfig struct {
	WebSearch     bool
	DeepReasoning bool
	SQLMode       bool
	DataSourceID  string
}

// NewChatCmd creates the interactive chat command.
func NewChatCmd() *cobra.Command {
	cfg := &ChatConfig{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat interactively with the workspace",
		Long: `Start an interactive chat against the active session.

In-session commands:
  /new          start a new conversation
  /sessions     list conversations
  /switch N     switch to conversation N
  /good /bad    rate the last answer
  /retry        regenerate the last answer
  /quit         exit`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.WebSearch, "web-search", false, "Allow web search")
	cmd.Flags().BoolVar(&cfg.DeepReasoning, "deep-reasoning", false, "Request an extended reasoning trace")
	cmd.Flags().BoolVar(&cfg.SQLMode, "sql", false, "Answer from the connected data source")
	cmd.Flags().StringVar(&cfg.DataSourceID, "data-source", "", "Data source id for SQL mode")

	return cmd
}

func runChat(ctx context.Context, cfg *ChatConfig) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	go func() {
		if err := app.Syncer.Run(ctx); err != nil {
			fmt.Fprintln(os.Stderr, color.YellowString("sync degraded: %v", err))
		}
	}()

	userLabel := color.New(color.FgCyan, color.Bold).Sprint("you")
	asstLabel := color.New(color.FgGreen, color.Bold).Sprint("loom")

	fmt.Printf("Connected to %s. Type /quit to exit.\n", app.Ws.ActiveSessionID())
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Printf("%s> ", userLabel)
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := runSlashCommand(ctx, app, cfg, line); quit {
				return nil
			}
			continue
		}

		runExchange(app, cfg, line, false)
		fmt.Printf("%s: %s\n", asstLabel, renderActiveAnswer(app))
	}
}

func runSlashCommand(ctx context.Context, app *App, cfg *ChatConfig, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/new":
		app.Ws.CreateSession()
		fmt.Println("started a new conversation")
	case "/sessions":
		for i, s := range app.Ws.Sessions() {
			marker := " "
			if s.ID == app.Ws.ActiveSessionID() {
				marker = "*"
			}
			fmt.Printf("%s %2d  %s\n", marker, i, s.Title)
		}
	case "/switch":
		if len(fields) < 2 {
			fmt.Println("usage: /switch N")
			return false
		}
		n, err := strconv.Atoi(fields[1])
		sessions := app.Ws.Sessions()
		if err != nil || n < 0 || n >= len(sessions) {
			fmt.Println("no such conversation")
			return false
		}
		app.Ws.SelectSession(ctx, sessions[n].ID)
	case "/good", "/bad":
		rateLastAnswer(app, fields[0] == "/good")
	case "/retry":
		if query, ok := lastUserQuery(app); ok {
			runExchange(app, cfg, query, true)
			fmt.Println(renderActiveAnswer(app))
		} else {
			fmt.Println("nothing to retry")
		}
	default:
		fmt.Printf("unknown command %s\n", fields[0])
	}
	return false
}

// runExchange submits the query and blocks until the stream finishes.
func runExchange(app *App, cfg *ChatConfig, query string, retry bool) {
	_, _, err := app.Engine.Submit(app.Ws.ActiveSessionID(), query, stream.Options{
		WebSearch:     cfg.WebSearch,
		DeepReasoning: cfg.DeepReasoning,
		SQLMode:       cfg.SQLMode,
		DataSourceID:  cfg.DataSourceID,
		RetryQuery:    retry,
	})
	if err != nil {
		return
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " thinking"
	s.Start()
	for {
		if _, _, active := app.Engine.Active(); !active {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	s.Stop()
}

// renderActiveAnswer prints the last assistant message of the active
// session, including any tabular result.
func renderActiveAnswer(app *App) string {
	session, ok := app.Ws.ActiveSession()
	if !ok || len(session.Messages) == 0 {
		return ""
	}
	msg := session.Messages[len(session.Messages)-1]
	if msg.Role != model.RoleAssistant {
		return ""
	}

	var b strings.Builder
	if msg.Thinking != "" {
		fmt.Fprintf(&b, "%s\n", color.New(color.Faint).Sprintf("thought for %.1fs", msg.ThinkingSeconds))
	}
	b.WriteString(msg.Text)
	if msg.GeneratedQuery != "" {
		fmt.Fprintf(&b, "\n\n%s\n", color.New(color.Faint).Sprint(msg.GeneratedQuery))
	}
	if msg.Table != nil {
		b.WriteString("\n")
		b.WriteString(renderTable(msg.Table))
	}
	return b.String()
}

func renderTable(result *model.TableResult) string {
	w := table.NewWriter()
	header := table.Row{}
	for _, col := range result.Columns {
		header = append(header, col)
	}
	w.AppendHeader(header)
	for _, row := range result.Rows {
		out := table.Row{}
		out = append(out, row...)
		w.AppendRow(out)
	}
	w.SetStyle(table.StyleLight)
	return w.Render()
}

func rateLastAnswer(app *App, positive bool) {
	session, ok := app.Ws.ActiveSession()
	if !ok {
		return
	}
	index := len(session.Messages) - 1
	if err := app.Recorder.Record(session.ID, index, positive); err != nil {
		fmt.Println("that message cannot be rated")
		return
	}
	fmt.Println("thanks for the feedback")
}

func lastUserQuery(app *App) (string, bool) {
	session, ok := app.Ws.ActiveSession()
	if !ok {
		return "", false
	}
	for i := len(session.Messages) - 1; i >= 0; i-- {
		if session.Messages[i].Role == model.RoleUser {
			return session.Messages[i].Text, true
		}
	}
	return "", false
}
