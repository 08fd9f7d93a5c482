package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func NewGroupCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Create and manage groups",
	}
	cmd.AddCommand(newGroupCreateCommand(rootOpts))
	cmd.AddCommand(newGroupAddCommand(rootOpts))
	cmd.AddCommand(newGroupLeaveCommand(rootOpts))
	return cmd
}

type GroupCreateOptions struct {
	*RootOptions
	Description string
	Members     []string
}

func newGroupCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GroupCreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a group administered by the acting user",
		Long: `Create a group. The acting user becomes its admin and a member.

Example:
  whatschat group create -u sofia_m "Family" --members tech_alex,granny_love`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openLinked(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			admin, err := a.actingUser(ctx, opts.User)
			if err != nil {
				return err
			}

			members := make([]string, 0, len(opts.Members))
			for _, m := range opts.Members {
				u, err := a.engine.ResolveUser(ctx, m)
				if err != nil {
					return a.fail(err)
				}
				members = append(members, u.ID)
			}

			group, err := a.engine.CreateGroup(ctx, strings.Join(args, " "), opts.Description, members, admin.ID)
			if err != nil {
				return a.fail(err)
			}
			return a.out.Success(group,
				fmt.Sprintf("Created group %s (%s) with %d members", group.Name, group.ID, len(group.MemberIDs)))
		},
	}

	cmd.Flags().StringVar(&opts.Description, "description", "", "group description")
	cmd.Flags().StringSliceVar(&opts.Members, "members", nil, "members (ids or usernames)")

	return cmd
}

func newGroupAddCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "add <group-id> <user>",
		Short:         "Add a member (admin only)",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.openLinked(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			admin, err := a.actingUser(ctx, rootOpts.User)
			if err != nil {
				return err
			}
			member, err := a.engine.ResolveUser(ctx, args[1])
			if err != nil {
				return a.fail(err)
			}
			if err := a.engine.AddGroupMember(ctx, admin.ID, args[0], member.ID); err != nil {
				return a.fail(err)
			}
			return a.out.Success(map[string]string{"group": args[0], "added": member.ID},
				fmt.Sprintf("%s added to %s", member.Name, args[0]))
		},
	}
}

func newGroupLeaveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "leave <group-id>",
		Short:         "Leave a group",
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
			if err := a.engine.LeaveGroup(ctx, user.ID, args[0]); err != nil {
				return a.fail(err)
			}
			return a.out.Success(map[string]string{"left": args[0]}, "Left "+args[0])
		},
	}
}
