package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"whatschat/chat"
	"whatschat/persona"
)

func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow the acting user's conversations live",
		Long: `Join the relay as the acting user and print the contact list whenever
another context changes the store, plus typing notices addressed to the user.
Incoming messages are marked delivered.

Example:
  whatschat watch -u tech_alex`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.open(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			user, err := a.actingUser(ctx, rootOpts.User)
			if err != nil {
				return err
			}
			if err := a.connect(cmd, user.ID, true); err != nil {
				return err
			}

			refresh := func() {
				contacts, err := a.engine.GetContacts(ctx, user.ID)
				if err != nil {
					a.fail(err)
					return
				}
				a.out.Success(contacts, formatContacts(contacts)+"\n")
			}

			session := chat.NewSession(a.engine, user.ID,
				chat.WithQuietPeriod(a.cfg.TypingQuietPeriod()),
				chat.OnUpdate(refresh),
				chat.OnTyping(func(peerID string, isTyping bool) {
					state := "stopped typing"
					if isTyping {
						state = "is typing..."
					}
					a.out.Success(map[string]any{"typing": peerID, "isTyping": isTyping},
						fmt.Sprintf("%s %s", peerID, state))
				}),
			)
			if err := session.Start(ctx); err != nil {
				return a.fail(err)
			}
			defer session.Stop()

			refresh()
			select {
			case <-ctx.Done():
			case <-a.client.Done():
				a.out.VerboseLog("relay closed the connection")
			}
			return nil
		},
	}
}

type PersonaOptions struct {
	*RootOptions
	Instruction string
}

func NewPersonaCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PersonaOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "persona",
		Short: "Let a language model answer as the acting user",
		Long: `Join the relay as the acting user and answer every unread direct
conversation with a reply generated by Gemini. Without an API key (or when
generation fails) a fixed apology is sent instead.

Example:
  GEMINI_API_KEY=... whatschat persona -u granny_love --instruction "You are a warm grandmother."`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			user, err := a.actingUser(ctx, opts.User)
			if err != nil {
				return err
			}
			if err := a.connect(cmd, user.ID, true); err != nil {
				return err
			}

			responder := persona.NewResponder(newGenerator(ctx, a), user.ID, a.logger)
			bot := persona.NewBot(a.engine, user.ID, opts.Instruction, responder, a.logger)

			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			go func() {
				select {
				case <-a.client.Done():
					cancel()
				case <-runCtx.Done():
				}
			}()

			a.out.VerboseLog("answering as %s", user.Username)
			if err := bot.Run(runCtx); err != nil {
				return a.fail(err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Instruction, "instruction", "", "system instruction describing the persona")

	return cmd
}

// newGenerator returns the Gemini backend, or nil when it cannot be set up.
func newGenerator(ctx context.Context, a *app) persona.Generator {
	gen, err := persona.NewGemini(ctx, a.cfg.GeminiAPIKey, a.cfg.GeminiModel)
	if err != nil {
		a.out.VerboseLog("persona generation disabled: %v", err)
		return nil
	}
	return gen
}
