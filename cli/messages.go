package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"whatschat/chat"
	"whatschat/models"
)

// peerID resolves a conversation argument: a group id, or a user id or
// username.
func (a *app) peerID(ctx context.Context, arg string) (string, error) {
	if _, err := a.engine.GetGroup(ctx, arg); err == nil {
		return arg, nil
	} else if !chat.IsNotFound(err) {
		return "", a.fail(err)
	}
	u, err := a.engine.ResolveUser(ctx, arg)
	if err != nil {
		return "", a.fail(err)
	}
	return u.ID, nil
}

func formatMessages(msgs []models.Message, selfID string) string {
	if len(msgs) == 0 {
		return "No messages"
	}
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteByte('\n')
		}
		who := m.SenderID
		if who == selfID {
			who = "me"
		}
		fmt.Fprintf(&b, "[%s] %s: %s", m.Timestamp.Local().Format("2006-01-02 15:04"), who, m.Text)
		if m.SenderID == selfID {
			fmt.Fprintf(&b, " (%s)", m.Status)
		}
	}
	return b.String()
}

func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "history <peer>",
		Short:         "Print a conversation, oldest first",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.open(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			user, err := a.actingUser(ctx, rootOpts.User)
			if err != nil {
				return err
			}
			peer, err := a.peerID(ctx, args[0])
			if err != nil {
				return err
			}
			msgs, err := a.engine.GetMessages(ctx, user.ID, peer)
			if err != nil {
				return a.fail(err)
			}
			if msgs == nil {
				msgs = []models.Message{}
			}
			return a.out.Success(msgs, formatMessages(msgs, user.ID))
		},
	}
}

func NewSendCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "send <peer> <text...>",
		Short: "Send a message to a user or group",
		Long: `Send a message. Connected contexts are told to refresh.

Example:
  whatschat send -u sofia_m tech_alex "see you at 6"`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.openLinked(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			user, err := a.actingUser(ctx, rootOpts.User)
			if err != nil {
				return err
			}
			peer, err := a.peerID(ctx, args[0])
			if err != nil {
				return err
			}
			msg, err := a.engine.SendMessage(ctx, user.ID, peer, strings.Join(args[1:], " "))
			if err != nil {
				return a.fail(err)
			}
			return a.out.Success(msg, "Sent "+msg.ID)
		},
	}
}

func NewReadCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "read <peer>",
		Short:         "Mark a conversation as read",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.openLinked(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			user, err := a.actingUser(ctx, rootOpts.User)
			if err != nil {
				return err
			}
			peer, err := a.peerID(ctx, args[0])
			if err != nil {
				return err
			}
			if err := a.engine.MarkAsRead(ctx, user.ID, peer); err != nil {
				return a.fail(err)
			}
			return a.out.Success(map[string]string{"read": peer}, "Marked "+peer+" as read")
		},
	}
}
