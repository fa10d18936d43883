package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"hooktrigger/internal"
	"hooktrigger/pkg/trigger"
)

type matchFlags struct {
	provider string
	event    string
	payload  string
	publish  bool
	list     bool
}

func newMatchCmd(state *cliState) *cobra.Command {
	flags := &matchFlags{}
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Evaluate a webhook payload against the configured pipelines",
		Long: `Evaluate a stored webhook payload offline and print the match report as JSON.

The event is the provider's event header value: X-GitHub-Event (push,
pull_request), X-Gitlab-Event (Push Hook, Tag Push Hook, Merge Request Hook)
or X-Event-Key (repo:push, pullrequest:created, ...). With --list the
supported provider/event type pairs are printed instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatch(cmd, state.cfg, flags)
		},
	}
	cmd.Flags().StringVar(&flags.provider, "provider", "", "provider: github, gitlab or bitbucket")
	cmd.Flags().StringVar(&flags.event, "event", "", "provider event name")
	cmd.Flags().StringVarP(&flags.payload, "payload", "f", "-", "payload file, - for stdin")
	cmd.Flags().BoolVar(&flags.publish, "publish", false, "publish trigger messages for matches")
	cmd.Flags().BoolVar(&flags.list, "list", false, "list supported provider/event type pairs and exit")
	return cmd
}

func runMatch(cmd *cobra.Command, cfg internal.Config, flags *matchFlags) error {
	if flags.list {
		return listSupported(cmd.OutOrStdout(), cfg)
	}
	if flags.provider == "" || flags.event == "" {
		return errors.New("--provider and --event are required")
	}
	body, err := readPayload(cmd.InOrStdin(), flags.payload)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	logger := internal.NewLogger("match")

	store, err := internal.OpenPipelineStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("pipeline store: %w", err)
	}
	defer store.Close()

	var publisher internal.Publisher
	if flags.publish {
		publisher, err = internal.NewPublisher(cfg.Watermill)
		if err != nil {
			return fmt.Errorf("publisher: %w", err)
		}
		defer publisher.Close()
	}
	dispatcher, err := newDispatcher(cfg, store, publisher, logger)
	if err != nil {
		return err
	}

	provider := trigger.Provider(strings.ToLower(strings.TrimSpace(flags.provider)))
	prepared, err := dispatcher.Engine().PrepareAllRaw(provider, flags.event, body)
	if err != nil {
		if errors.Is(err, trigger.ErrUnsupportedEvent) {
			return fmt.Errorf("%w (event %q)", err, flags.event)
		}
		return err
	}
	reports, err := dispatcher.DispatchAll(ctx, uuid.NewString(), prepared)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(internal.ReportBody(reports), "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}

func listSupported(w io.Writer, cfg internal.Config) error {
	engine, err := internal.NewEngine(cfg.Engine, trigger.NopObserver{})
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	for _, pair := range engine.Registry().Supported() {
		if _, err := fmt.Fprintln(w, pair); err != nil {
			return err
		}
	}
	return nil
}

func readPayload(stdin io.Reader, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return body, nil
}
