package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sarwatafreen/todo-app-website/internal/apiclient"
)

func newChatCommand() *cobra.Command {
	chatCmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Send a message to the task assistant",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			stack, stackErr := buildClientStack(command.Context())
			if stackErr != nil {
				return stackErr
			}
			defer stack.close()

			subject, subjectErr := stack.executor.Subject(command.Context())
			if subjectErr != nil {
				return subjectErr
			}
			fresh, _ := command.Flags().GetBool("new")
			if fresh {
				if forgetErr := stack.sessions.ForgetConversation(command.Context()); forgetErr != nil {
					return forgetErr
				}
			}
			client := apiclient.NewChatClient(stack.executor, stack.sessions)
			reply, sendErr := client.Send(command.Context(), subject, strings.Join(arguments, " "), "")
			if sendErr != nil {
				return sendErr
			}
			fmt.Println(reply.Response)
			return nil
		},
	}
	chatCmd.Flags().Bool("new", false, "Start a fresh conversation")
	return chatCmd
}
