package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"thinkchat/config"
	"thinkchat/model"
	"thinkchat/provider"
)

const commandTimeout = 30 * time.Second

func newAskCmd() *cobra.Command {
	var (
		conversationID string
		hideSteps      bool
		explain        bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if a.auth != nil && !a.auth.SignedIn() {
				return errors.New("not logged in (run: thinkchat login <email>)")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			out := newAskPrinter(cmd.OutOrStdout(), !hideSteps, explain)
			return ask(ctx, a, conversationID, strings.Join(args, " "), out)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&conversationID, "conversation", "c", "", "continue an existing conversation instead of starting one")
	flags.BoolVar(&hideSteps, "no-steps", false, "print only the reply")
	flags.BoolVar(&explain, "explain", false, "print each step's explanation")

	return cmd
}

// ask runs one turn outside the TUI. The reply is saved only if the stream
// ends normally.
func ask(ctx context.Context, a *app, conversationID, question string, out *askPrinter) error {
	storeCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var history []model.Message
	if conversationID == "" {
		conv, err := a.store.CreateConversation(storeCtx, "New Conversation")
		if err != nil {
			return fmt.Errorf("failed to create conversation: %w", err)
		}
		conversationID = conv.ID
	} else {
		msgs, err := a.store.GetMessages(storeCtx, conversationID)
		if err != nil {
			return fmt.Errorf("failed to load conversation: %w", err)
		}
		history = msgs
	}

	user := model.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           model.RoleUser,
		Content:        question,
		Timestamp:      time.Now(),
	}
	if _, err := a.store.CreateMessage(storeCtx, conversationID, user); err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	turnCtx, cancelTurn := context.WithTimeout(ctx, a.cfg.Stream.TurnTimeout)
	defer cancelTurn()

	src, err := a.backend.OpenResponseStream(turnCtx, model.BuildTranscript(append(history, user)), conversationID)
	if err != nil {
		return err
	}
	defer src.Cancel()

	reply := model.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           model.RoleAssistant,
		Timestamp:      time.Now(),
	}

	ended := false
	for ev := range src.Events() {
		switch ev.Type {
		case model.EventStrategy:
			reply.Strategy = ev.Text
			out.strategy(ev.Text)
		case model.EventSteps:
			reply.Steps = append(reply.Steps, ev.Step)
			out.step(len(reply.Steps), ev.Step)
		case model.EventContent:
			reply.Content += ev.Text
			out.content(ev.Text)
		case model.EventError:
			if ev.Terminal {
				out.finish()
				if model.NeedsSignIn(ev.Err) {
					return fmt.Errorf("%w (run: thinkchat login <email>)", ev.Err)
				}
				return fmt.Errorf("response failed: %s", ev.Text)
			}
			out.warn(ev.Text)
		case model.EventEnd:
			ended = true
		}
		if ended {
			break
		}
	}
	out.finish()

	if ctx.Err() != nil {
		return errors.New("response cancelled")
	}
	if !ended {
		return errors.New("response ended unexpectedly")
	}

	saveCtx, cancelSave := context.WithTimeout(context.Background(), commandTimeout)
	defer cancelSave()
	if _, err := a.store.CreateMessage(saveCtx, conversationID, reply); err != nil {
		return fmt.Errorf("failed to save response: %w", err)
	}
	out.conversation(conversationID)
	return nil
}

// askPrinter writes a streamed reply. On a terminal steps and notes are
// styled; piped output stays plain text.
type askPrinter struct {
	w         io.Writer
	tty       bool
	showSteps bool
	explain   bool
	inContent bool
	dim       lipgloss.Style
	warnStyle lipgloss.Style
}

func newAskPrinter(w io.Writer, showSteps, explain bool) *askPrinter {
	tty := false
	if f, ok := w.(*os.File); ok {
		tty = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &askPrinter{
		w:         w,
		tty:       tty,
		showSteps: showSteps,
		explain:   explain,
		dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		warnStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
	}
}

func (p *askPrinter) style(s lipgloss.Style, text string) string {
	if !p.tty {
		return text
	}
	return s.Render(text)
}

func (p *askPrinter) strategy(name string) {
	if p.showSteps {
		fmt.Fprintln(p.w, p.style(p.dim, "· "+name))
	}
}

func (p *askPrinter) step(n int, step model.Step) {
	if !p.showSteps {
		return
	}
	fmt.Fprintln(p.w, p.style(p.dim, fmt.Sprintf("%d. %s", n, step.Text)))
	if p.explain && step.Explanation != "" {
		fmt.Fprintln(p.w, p.style(p.dim, "   "+step.Explanation))
	}
}

func (p *askPrinter) content(text string) {
	if !p.inContent && p.showSteps {
		fmt.Fprintln(p.w)
	}
	p.inContent = true
	fmt.Fprint(p.w, text)
}

func (p *askPrinter) warn(text string) {
	if p.inContent {
		fmt.Fprintln(p.w)
	}
	fmt.Fprintln(p.w, p.style(p.warnStyle, "warning: "+text))
}

func (p *askPrinter) finish() {
	if p.inContent {
		fmt.Fprintln(p.w)
		p.inContent = false
	}
}

func (p *askPrinter) conversation(id string) {
	if p.tty {
		fmt.Fprintln(p.w, p.style(p.dim, "conversation "+id))
	}
}

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <email>",
		Short: "Sign in to the conversation server (password read from stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if a.client == nil {
				return fmt.Errorf("%s does not need a login", a.cfg.BackendKind().DisplayName())
			}

			if f, ok := cmd.InOrStdin().(*os.File); ok && isatty.IsTerminal(f.Fd()) {
				fmt.Fprint(cmd.OutOrStdout(), "Password: ")
			}
			password, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("failed to read password: %w", err)
			}
			password = strings.TrimRight(password, "\r\n")
			if password == "" {
				return errors.New("password is required")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			if err := a.client.Login(ctx, args[0], password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", args[0])
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored server session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if a.client == nil {
				return fmt.Errorf("%s does not need a login", a.cfg.BackendKind().DisplayName())
			}
			if err := a.client.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func newConversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "List and manage conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listConversations(cmd)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List conversations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listConversations(cmd)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "create [title]",
		Short: "Start an empty conversation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := "New Conversation"
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				title = strings.TrimSpace(args[0])
			}
			return withStore(cmd, func(ctx context.Context, store model.Store) error {
				conv, err := store.CreateConversation(ctx, title)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), conv.ID)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Rename a conversation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.TrimSpace(args[1])
			if title == "" {
				return errors.New("title must not be empty")
			}
			return withStore(cmd, func(ctx context.Context, store model.Store) error {
				return store.UpdateConversationTitle(ctx, args[0], title)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a conversation and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store model.Store) error {
				return store.DeleteConversation(ctx, args[0])
			})
		},
	})

	return cmd
}

func listConversations(cmd *cobra.Command) error {
	return withStore(cmd, func(ctx context.Context, store model.Store) error {
		convs, err := store.ListConversations(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCREATED\tTITLE")
		for _, c := range convs {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", c.ID, c.CreatedAt.Local().Format("2006-01-02 15:04"), c.Title)
		}
		return tw.Flush()
	})
}

func withStore(cmd *cobra.Command, fn func(ctx context.Context, store model.Store) error) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()
	if a.auth != nil && !a.auth.SignedIn() {
		return errors.New("not logged in (run: thinkchat login <email>)")
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()
	return fn(ctx, a.store)
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the backend settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config:   %s\n", cfg.UserConfigPath())
			fmt.Fprintf(out, "backend:  %s\n", cfg.BackendKind())
			fmt.Fprintf(out, "model:    %s\n", cfg.Model())
			fmt.Fprintf(out, "base_url: %s\n", cfg.BaseURL())
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <field> <value>",
		Short: "Set a [backend] field: kind, model, base_url or thinking_budget",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return config.UpdateBackendField(cfg.DataDir(), args[0], args[1])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "data-dir <path>",
		Short: "Move conversations and credentials to another directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			system, err := config.LoadSystemConfig()
			if err != nil {
				return err
			}
			system.DataDirectory = args[0]
			if err := config.SaveSystemConfig(system); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "data directory: %s\n", config.ExpandPath(args[0]))
			return nil
		},
	})

	return cmd
}

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models offered by the configured backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			lister, ok := a.backend.(provider.ModelLister)
			if !ok {
				return fmt.Errorf("%s cannot list models", a.cfg.BackendKind().DisplayName())
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			models, err := lister.ListModels(ctx)
			if err != nil {
				return err
			}
			current := a.cfg.Model()
			for _, m := range models {
				marker := "  "
				if strings.HasPrefix(m, current) && current != "" {
					marker = "* "
				}
				fmt.Fprintln(cmd.OutOrStdout(), marker+m)
			}
			return nil
		},
	}
}

func newSetKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-key <backend> <api-key>",
		Short: "Store the API key for a direct backend",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := config.ParseBackendKind(args[0])
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := unlockCredentials(cfg); err != nil {
				return err
			}
			if err := config.SetAPIKey(cfg, kind, strings.TrimSpace(args[1])); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "API key stored for %s\n", kind.DisplayName())
			return nil
		},
	}
}
