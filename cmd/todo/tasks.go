package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sarwatafreen/todo-app-website/internal/apiclient"
)

func newTaskCommand() *cobra.Command {
	taskCmd := &cobra.Command{
		Use:   "task",
		Short: "Manage the task list",
	}
	taskCmd.AddCommand(
		newTaskListCommand(),
		newTaskAddCommand(),
		newTaskDoneCommand(),
		newTaskRemoveCommand(),
	)
	return taskCmd
}

func resolveTaskClient(ctx context.Context, stack *clientStack) (*apiclient.TaskClient, string, error) {
	subject, subjectErr := stack.executor.Subject(ctx)
	if subjectErr != nil {
		return nil, "", subjectErr
	}
	return apiclient.NewTaskClient(stack.executor), subject, nil
}

func newTaskListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			stack, stackErr := buildClientStack(command.Context())
			if stackErr != nil {
				return stackErr
			}
			defer stack.close()

			client, subject, resolveErr := resolveTaskClient(command.Context(), stack)
			if resolveErr != nil {
				return resolveErr
			}
			tasks, listErr := client.List(command.Context(), subject)
			if listErr != nil {
				return listErr
			}
			if len(tasks) == 0 {
				fmt.Println("no tasks")
				return nil
			}
			for _, task := range tasks {
				marker := " "
				if task.IsCompleted {
					marker = "x"
				}
				fmt.Printf("[%s] %s\t%s\n", marker, task.ID, task.Title)
			}
			return nil
		},
	}
}

func newTaskAddCommand() *cobra.Command {
	addCmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			stack, stackErr := buildClientStack(command.Context())
			if stackErr != nil {
				return stackErr
			}
			defer stack.close()

			client, subject, resolveErr := resolveTaskClient(command.Context(), stack)
			if resolveErr != nil {
				return resolveErr
			}
			description, _ := command.Flags().GetString("description")
			dueDate, _ := command.Flags().GetString("due")
			task, createErr := client.Create(command.Context(), subject, apiclient.TaskCreate{
				Title:       strings.Join(arguments, " "),
				Description: description,
				DueDate:     dueDate,
			})
			if createErr != nil {
				return createErr
			}
			fmt.Printf("created %s\t%s\n", task.ID, task.Title)
			return nil
		},
	}
	addCmd.Flags().String("description", "", "Task description")
	addCmd.Flags().String("due", "", "Due date (RFC 3339)")
	return addCmd
}

func newTaskDoneCommand() *cobra.Command {
	doneCmd := &cobra.Command{
		Use:   "done <task-id>",
		Short: "Toggle a task's completion state",
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			stack, stackErr := buildClientStack(command.Context())
			if stackErr != nil {
				return stackErr
			}
			defer stack.close()

			client, subject, resolveErr := resolveTaskClient(command.Context(), stack)
			if resolveErr != nil {
				return resolveErr
			}
			reopen, _ := command.Flags().GetBool("reopen")
			task, toggleErr := client.ToggleComplete(command.Context(), subject, arguments[0], !reopen)
			if toggleErr != nil {
				return toggleErr
			}
			state := "completed"
			if !task.IsCompleted {
				state = "reopened"
			}
			fmt.Printf("%s %s\t%s\n", state, task.ID, task.Title)
			return nil
		},
	}
	doneCmd.Flags().Bool("reopen", false, "Mark the task as not completed instead")
	return doneCmd
}

func newTaskRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <task-id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			stack, stackErr := buildClientStack(command.Context())
			if stackErr != nil {
				return stackErr
			}
			defer stack.close()

			client, subject, resolveErr := resolveTaskClient(command.Context(), stack)
			if resolveErr != nil {
				return resolveErr
			}
			if deleteErr := client.Delete(command.Context(), subject, arguments[0]); deleteErr != nil {
				return deleteErr
			}
			fmt.Printf("deleted %s\n", arguments[0])
			return nil
		},
	}
}
