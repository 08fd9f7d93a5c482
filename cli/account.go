package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"whatschat/chat"
	"whatschat/models"
)

// publicUser is a user as shown to people: no password hash.
type publicUser struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Avatar   string `json:"avatar"`
	About    string `json:"about,omitempty"`
}

func toPublic(u *models.User) publicUser {
	return publicUser{
		ID:       u.ID,
		Name:     u.Name,
		Username: u.Username,
		Email:    u.Email,
		Avatar:   u.Avatar,
		About:    u.About,
	}
}

func describeUser(u *models.User) string {
	s := fmt.Sprintf("%s (@%s, %s) %s", u.Name, u.Username, u.Email, u.ID)
	if u.About != "" {
		s += "\n  " + u.About
	}
	return s
}

type RegisterOptions struct {
	*RootOptions
	Name     string
	Username string
	Email    string
	Password string
}

func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RegisterOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a user",
		Long: `Create a user. Username and email must be unique ignoring case.

Example:
  whatschat register --name "Dana Lee" --username dana --email dana@example.com --password secret`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openLinked(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.engine.Register(cmd.Context(), chat.RegisterRequest{
				Name:     opts.Name,
				Username: opts.Username,
				Email:    opts.Email,
				Password: opts.Password,
			})
			if err != nil {
				return a.fail(err)
			}
			return a.out.Success(toPublic(user), "Registered "+describeUser(user))
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Username, "username", "", "unique username")
	cmd.Flags().StringVar(&opts.Email, "email", "", "unique email")
	cmd.Flags().StringVar(&opts.Password, "password", "", "password")

	return cmd
}

type LoginOptions struct {
	*RootOptions
	Password string
}

func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoginOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "login <username-or-email>",
		Short:         "Check credentials and print the user",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.engine.Login(cmd.Context(), args[0], opts.Password)
			if err != nil {
				return a.fail(err)
			}
			return a.out.Success(toPublic(user), "Logged in as "+describeUser(user))
		},
	}

	cmd.Flags().StringVar(&opts.Password, "password", "", "password")

	return cmd
}

type ProfileOptions struct {
	*RootOptions
	Name  string
	About string
}

func NewProfileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProfileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or update the acting user's profile",
		Long: `Show the acting user's profile. With --name or --about, update only
those fields first.

Example:
  whatschat profile -u sofia_m --about "At the gym"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openLinked(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.actingUser(cmd.Context(), opts.User)
			if err != nil {
				return err
			}

			var upd chat.ProfileUpdate
			if cmd.Flags().Changed("name") {
				upd.Name = &opts.Name
			}
			if cmd.Flags().Changed("about") {
				upd.About = &opts.About
			}
			if upd.Name != nil || upd.About != nil {
				user, err = a.engine.UpdateProfile(cmd.Context(), user.ID, upd)
				if err != nil {
					return a.fail(err)
				}
			}
			return a.out.Success(toPublic(user), describeUser(user))
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "new display name")
	cmd.Flags().StringVar(&opts.About, "about", "", "new about text")

	return cmd
}
