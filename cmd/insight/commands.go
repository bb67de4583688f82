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
	"syscall"

	"github.com/spf13/cobra"

	"github.com/insight-ai/insight-go/internal/assistant"
	"github.com/insight-ai/insight-go/internal/prefs"
	"github.com/insight-ai/insight-go/internal/schema"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Capture the screen and ask one question about it",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.requireSession(); err != nil {
				return err
			}

			reply, err := a.orchestrator.Send(ctx, strings.Join(args, " "))
			if err != nil {
				// Already shown to the user by the notifier.
				return errSilent
			}
			if reply == nil {
				fmt.Fprintln(a.out, "(no reply)")
				return nil
			}

			printMessage(a.out, *reply, a.player.IsPlaying)
			a.waitPlayback(ctx)
			return nil
		})
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Each line you type is sent as a question about the current screen.

Commands:
  /history              show the conversation
  /play <id>            play or stop the audio of a reply
  /stop                 stop audio playback
  /feedback <id> <val>  rate a reply (neutral, positive, negative)
  /mute, /unmute        toggle spoken replies
  /clear                delete the conversation history
  /quit                 leave`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			if err := a.store.Refresh(ctx); err != nil {
				a.logger.Debug().Err(err).Msg("Could not load history")
			}
			printHistory(a.out, a.store.List(), a.player.IsPlaying)
			return runChat(ctx, a, cmd.InOrStdin())
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the conversation history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			if err := a.store.Refresh(ctx); err != nil {
				return errSilent
			}
			printHistory(a.out, a.store.List(), a.player.IsPlaying)
			return nil
		})
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the conversation history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			if err := a.orchestrator.DeleteHistory(ctx); err != nil {
				return errSilent
			}
			fmt.Fprintln(a.out, "History cleared")
			return nil
		})
	},
}

var feedbackCmd = &cobra.Command{
	Use:   "feedback [id] [neutral|positive|negative]",
	Short: "Rate an assistant reply",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fb, err := schema.ParseFeedback(args[1])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			if err := a.orchestrator.Feedback(ctx, schema.MessageID(args[0]), fb); err != nil {
				return errSilent
			}
			fmt.Fprintf(a.out, "Feedback recorded for %s\n", args[0])
			return nil
		})
	},
}

var playCmd = &cobra.Command{
	Use:   "play [id]",
	Short: "Play the audio of a reply",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			if err := a.store.Refresh(ctx); err != nil {
				return errSilent
			}
			if err := playMessage(a, schema.MessageID(args[0])); err != nil {
				return err
			}
			a.waitPlayback(ctx)
			return nil
		})
	},
}

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show or change preferences",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			printPrefs(a.out, a.prefs.Load())
			return nil
		})
	},
}

var prefsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change preferences",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			flags := cmd.Flags()
			p, err := a.prefs.Update(func(p *prefs.Preferences) {
				if flags.Changed("muted") {
					p.Muted, _ = flags.GetBool("muted")
				}
				if flags.Changed("voice") {
					v, _ := flags.GetString("voice")
					p.Voice = schema.Voice(v)
				}
				if flags.Changed("speed") {
					p.Speed, _ = flags.GetFloat64("speed")
				}
			})
			if err != nil {
				return err
			}
			printPrefs(a.out, p)
			return nil
		})
	},
}

var loginCmd = &cobra.Command{
	Use:   "login [token]",
	Short: "Store the access token used for the backend",
	Long:  "Store the access token used for the backend. Without an argument the token is read from stdin.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			token := ""
			if len(args) == 1 {
				token = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return fmt.Errorf("read token: %w", err)
				}
				token = line
			}
			if err := a.session.Save(token); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Signed in")
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored access token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.session.Clear(); err != nil {
				return err
			}
			// Without a session the store empties itself.
			_ = a.store.Refresh(ctx)
			fmt.Fprintln(a.out, "Signed out")
			return nil
		})
	},
}

func init() {
	historyCmd.AddCommand(historyClearCmd)
	prefsCmd.AddCommand(prefsSetCmd)

	prefsSetCmd.Flags().Bool("muted", true, "Disable spoken replies")
	prefsSetCmd.Flags().String("voice", "", "Voice: alloy, echo, fable, onyx, nova, shimmer")
	prefsSetCmd.Flags().Float64("speed", 1.0, "Playback speed (0.25-4.0)")
}

// errSilent marks a failure the user has already been told about.
var errSilent = errors.New("already reported")

func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	a := newApp(cfg, logger, cmd.OutOrStdout(), cmd.ErrOrStderr())
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return fn(ctx, a)
}

func playMessage(a *app, id schema.MessageID) error {
	m, ok := a.store.Get(id)
	if !ok {
		return fmt.Errorf("no message with id %s", id)
	}
	if !m.HasAudio() {
		return fmt.Errorf("message %s has no audio", id)
	}
	return a.player.Toggle(m.EncodedAudio, id)
}

type sendResult struct {
	reply *schema.Message
	err   error
}

// runChat reads questions and slash commands from in. Sends run in the
// background so the single-flight guard can refuse a second question; all
// output is written from this loop.
func runChat(ctx context.Context, a *app, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	// The view follows the store; the latest snapshot wins.
	updates := make(chan []schema.Message, 1)
	a.store.Watch(func(list []schema.Message) {
		for {
			select {
			case updates <- list:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	view := &chatView{messages: a.store.List(), updates: updates}

	results := make(chan sendResult)
	pending := 0

	for {
		select {
		case <-ctx.Done():
			return nil
		case list := <-updates:
			view.messages = list
		case r := <-results:
			pending--
			printSendResult(a, r)
		case line, ok := <-lines:
			if !ok {
				for ; pending > 0; pending-- {
					select {
					case r := <-results:
						printSendResult(a, r)
					case <-ctx.Done():
						return nil
					}
				}
				return nil
			}

			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, "/") {
				if quit := runChatCommand(ctx, a, view, line); quit {
					return nil
				}
				continue
			}

			if a.orchestrator.Busy() {
				fmt.Fprintln(a.out, busyMessage)
				continue
			}

			pending++
			go func(text string) {
				reply, err := a.orchestrator.Send(ctx, text)
				select {
				case results <- sendResult{reply: reply, err: err}:
				case <-ctx.Done():
				}
			}(line)
		}
	}
}

const busyMessage = "Still working on the previous question..."

func printSendResult(a *app, r sendResult) {
	switch {
	case errors.Is(r.err, assistant.ErrInFlight):
		fmt.Fprintln(a.out, busyMessage)
	case r.err == nil && r.reply != nil:
		printMessage(a.out, *r.reply, a.player.IsPlaying)
	}
}

// chatView is the conversation as last published by the store.
type chatView struct {
	messages []schema.Message
	updates  <-chan []schema.Message
}

// latest applies a snapshot that is waiting to be received.
func (v *chatView) latest() []schema.Message {
	select {
	case list := <-v.updates:
		v.messages = list
	default:
	}
	return v.messages
}

// runChatCommand executes a slash command and reports whether to quit.
func runChatCommand(ctx context.Context, a *app, view *chatView, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/history":
		printHistory(a.out, view.latest(), a.player.IsPlaying)
	case "/play":
		if len(fields) != 2 {
			fmt.Fprintln(a.out, "usage: /play <id>")
			return false
		}
		if err := playMessage(a, schema.MessageID(fields[1])); err != nil {
			fmt.Fprintf(a.out, "error: %v\n", err)
		}
	case "/stop":
		a.player.Stop()
	case "/feedback":
		if len(fields) != 3 {
			fmt.Fprintln(a.out, "usage: /feedback <id> <neutral|positive|negative>")
			return false
		}
		fb, err := schema.ParseFeedback(fields[2])
		if err != nil {
			fmt.Fprintf(a.out, "error: %v\n", err)
			return false
		}
		if err := a.orchestrator.Feedback(ctx, schema.MessageID(fields[1]), fb); err == nil {
			fmt.Fprintln(a.out, "Feedback recorded")
		}
	case "/mute", "/unmute":
		muted := fields[0] == "/mute"
		if _, err := a.prefs.Update(func(p *prefs.Preferences) { p.Muted = muted }); err != nil {
			fmt.Fprintf(a.out, "error: %v\n", err)
			return false
		}
		if muted {
			a.player.Stop()
		}
		printPrefs(a.out, a.prefs.Load())
	case "/clear":
		if err := a.orchestrator.DeleteHistory(ctx); err == nil {
			fmt.Fprintln(a.out, "History cleared")
		}
	default:
		fmt.Fprintf(a.out, "unknown command %s\n", fields[0])
	}
	return false
}
