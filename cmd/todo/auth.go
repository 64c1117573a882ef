package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRegisterCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "register <email> <password>",
		Short: "Create a backend account",
		Args:  cobra.ExactArgs(2),
		RunE: func(command *cobra.Command, arguments []string) error {
			stack, stackErr := buildClientStack(command.Context())
			if stackErr != nil {
				return stackErr
			}
			defer stack.close()

			user, registerErr := stack.sessions.Register(command.Context(), arguments[0], arguments[1])
			if registerErr != nil {
				return registerErr
			}
			fmt.Printf("registered %s (id %s)\n", user.Email, user.ID)
			return nil
		},
	}
}

func newLoginCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "login <email> <password>",
		Short: "Log in and store the session tokens",
		Args:  cobra.ExactArgs(2),
		RunE: func(command *cobra.Command, arguments []string) error {
			stack, stackErr := buildClientStack(command.Context())
			if stackErr != nil {
				return stackErr
			}
			defer stack.close()

			result, loginErr := stack.sessions.Login(command.Context(), arguments[0], arguments[1])
			if loginErr != nil {
				return loginErr
			}
			state := stack.sessions.CurrentSession(command.Context())
			fmt.Printf("logged in as %s (subject %s, expires in %ds)\n", state.Email, state.Subject, result.ExpiresIn)
			return nil
		},
	}
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			stack, stackErr := buildClientStack(command.Context())
			if stackErr != nil {
				return stackErr
			}
			defer stack.close()

			if logoutErr := stack.sessions.Logout(command.Context()); logoutErr != nil {
				return logoutErr
			}
			fmt.Println("logged out")
			return nil
		},
	}
}

func newWhoAmICommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the authenticated account profile",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			stack, stackErr := buildClientStack(command.Context())
			if stackErr != nil {
				return stackErr
			}
			defer stack.close()

			user, profileErr := stack.executor.Profile(command.Context())
			if profileErr != nil {
				return profileErr
			}
			fmt.Printf("%s\t%s\trole=%s\tverified=%t\n", user.ID, user.Email, user.Role, user.IsVerified)
			return nil
		},
	}
}
