package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/hubclient/internal/protocol"
)

func workflowCmd(flags *globalFlags) *cobra.Command {
	var (
		claim     string
		claimFile string
		follow    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Start a claim workflow",
		Long: `Send a workflow_start command and print its request id. With --follow,
keep printing workflow updates for the claim until the workflow completes,
fails or the follow duration elapses.

Examples:
  hubclient workflow --claim '{"claim_id":"C-1","amount":1200}'
  hubclient workflow --claim-file claim.json --follow 2m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readClaim(claim, claimFile)
			if err != nil {
				return err
			}
			return runWorkflow(cmd.Context(), flags, data, follow)
		},
	}

	cmd.Flags().StringVar(&claim, "claim", "", "claim data as a JSON object")
	cmd.Flags().StringVar(&claimFile, "claim-file", "", "path to a JSON file with claim data")
	cmd.Flags().DurationVar(&follow, "follow", 0, "print workflow notifications for this long")

	return cmd
}

func readClaim(inline, path string) (map[string]any, error) {
	var raw []byte
	switch {
	case inline != "" && path != "":
		return nil, errors.New("use either --claim or --claim-file, not both")
	case inline != "":
		raw = []byte(inline)
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read claim file: %w", err)
		}
		raw = data
	default:
		return nil, errors.New("claim data is required (--claim or --claim-file)")
	}

	var claim map[string]any
	if err := json.Unmarshal(raw, &claim); err != nil {
		return nil, fmt.Errorf("parse claim data: %w", err)
	}
	return claim, nil
}

func runWorkflow(parent context.Context, flags *globalFlags, claim map[string]any, follow time.Duration) error {
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

	id, err := a.client.StartWorkflow(claim)
	if err != nil {
		return err
	}
	fmt.Println(id)

	if follow <= 0 {
		return nil
	}

	followCtx, cancel := context.WithTimeout(ctx, follow)
	defer cancel()

	for {
		select {
		case <-followCtx.Done():
			return nil
		case n, ok := <-a.client.Notifications():
			if !ok {
				return nil
			}
			switch n.Event {
			case protocol.TagWorkflowUpdate, protocol.TagWorkflowStarted, protocol.TagWorkflowProgress:
				fmt.Println(formatNotification(n))
			case protocol.TagWorkflowCompleted:
				fmt.Println(formatNotification(n))
				return nil
			case protocol.TagWorkflowError:
				fmt.Println(formatNotification(n))
				return errors.New(n.Message)
			}
		}
	}
}
