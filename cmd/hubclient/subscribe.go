package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func subscribeCmd(flags *globalFlags) *cobra.Command {
	var (
		wait  time.Duration
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "subscribe topic [topic...]",
		Short: "Subscribe to topics and print what the hub confirmed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubscribe(cmd.Context(), flags, args, wait, watch)
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 5*time.Second, "how long to wait for confirmation")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep printing notifications after confirmation")

	return cmd
}

func runSubscribe(parent context.Context, flags *globalFlags, topics []string, wait time.Duration, watch bool) error {
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
	if err := a.client.Subscribe(topics...); err != nil {
		return err
	}

	confirmed, err := waitConfirmed(ctx, a.client.Subscriptions, topics, wait)
	for _, t := range confirmed {
		fmt.Println(t)
	}
	if err != nil {
		return err
	}

	if watch {
		go func() {
			<-ctx.Done()
			a.client.Close()
		}()
		printNotifications(os.Stdout, a.client.Notifications(), false)
	}
	return nil
}

// waitConfirmed polls current until every topic in want is confirmed.
func waitConfirmed(ctx context.Context, current func() []string, want []string, wait time.Duration) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		got := current()
		missing := 0
		for _, t := range want {
			if !slices.Contains(got, t) {
				missing++
			}
		}
		if missing == 0 {
			return got, nil
		}

		select {
		case <-ctx.Done():
			return got, fmt.Errorf("%d of %d topics not confirmed: %w", missing, len(want), ctx.Err())
		case <-ticker.C:
		}
	}
}
