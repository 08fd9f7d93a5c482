package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"whatschat/models"
)

func formatContacts(contacts []models.Contact) string {
	if len(contacts) == 0 {
		return "No contacts"
	}
	var b strings.Builder
	for i, c := range contacts {
		if i > 0 {
			b.WriteByte('\n')
		}
		kind := "user "
		if c.IsGroup {
			kind = "group"
		}
		fmt.Fprintf(&b, "%s %-12s %-20s", kind, c.ID, c.Name)
		if c.Status == models.PresenceOnline {
			b.WriteString(" [online]")
		}
		if c.UnreadCount > 0 {
			fmt.Fprintf(&b, " (%d unread)", c.UnreadCount)
		}
		if c.LastMessage != "" {
			fmt.Fprintf(&b, "  %s", c.LastMessage)
		}
	}
	return b.String()
}

func NewContactsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "contacts",
		Short:         "List the acting user's conversations, most recent first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.open(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.actingUser(cmd.Context(), rootOpts.User)
			if err != nil {
				return err
			}
			contacts, err := a.engine.GetContacts(cmd.Context(), user.ID)
			if err != nil {
				return a.fail(err)
			}
			if contacts == nil {
				contacts = []models.Contact{}
			}
			return a.out.Success(contacts, formatContacts(contacts))
		},
	}
}

func NewAddContactCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "add-contact <username-or-id>",
		Short:         "Add a contact for the acting user (both ways)",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.openLinked(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.actingUser(cmd.Context(), rootOpts.User)
			if err != nil {
				return err
			}
			added, err := a.engine.AddContact(cmd.Context(), user.ID, args[0])
			if err != nil {
				return a.fail(err)
			}
			return a.out.Success(toPublic(added),
				fmt.Sprintf("%s added to contacts", added.Name))
		},
	}
}

func NewRemoveContactCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "remove-contact <username-or-id>",
		Short:         "Remove a contact of the acting user (both ways)",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.openLinked(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.actingUser(cmd.Context(), rootOpts.User)
			if err != nil {
				return err
			}
			contact, err := a.engine.ResolveUser(cmd.Context(), args[0])
			if err != nil {
				return a.fail(err)
			}
			if err := a.engine.RemoveContact(cmd.Context(), user.ID, contact.ID); err != nil {
				return a.fail(err)
			}
			return a.out.Success(map[string]string{"removed": contact.ID},
				fmt.Sprintf("%s removed from contacts", contact.Name))
		},
	}
}
