package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

func askCmd(flags *globalFlags) *cobra.Command {
	var agentType string

	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Send a message to an agent and wait for its response",
		Long: `Send an agent_process request and print the agent's response.

The request times out after requests.timeout (30s by default).

Examples:
  hubclient ask --agent intake "summarize claim C-1"
  hubclient ask -a fraud "score claim C-7"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), flags, agentType, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVarP(&agentType, "agent", "a", "general", "agent type to address")

	return cmd
}

func runAsk(parent context.Context, flags *globalFlags, agentType, message string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(flags)
	if err != nil {
		return err
	}
	defer a.client.Close()

	if err := a.connect(ctx, flags.connect); err != nil {
		return err
	}

	future := a.client.ProcessWithAgent(agentType, message)
	a.logger.Debug("request sent", "request_id", future.ID(), "agent", agentType)

	response, err := future.Wait(ctx)
	if err != nil {
		return fmt.Errorf("agent %s: %w", agentType, err)
	}

	fmt.Println(response)
	return nil
}
