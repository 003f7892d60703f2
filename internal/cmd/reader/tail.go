package reader

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/rzbill/flr/internal/parser"
	"github.com/rzbill/flr/internal/runtime"
	"github.com/rzbill/flr/pkg/log"
)

func newTailCommand(a *app) *cobra.Command {
	var (
		sel      selection
		opts     runtime.TailOptions
		asJSON   bool
		ordered  bool
		noFollow bool
	)
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow the chunk files of a repository directory",
		Long: "tail prints events as the producer rotates chunk files into the repository. " +
			"Without --from-start or --start it begins with events newer than the latest chunk. " +
			"With --consumer the position is checkpointed and the next run resumes after it.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if opts.Start, opts.End, err = sel.window(time.Now()); err != nil {
				return err
			}
			opts.Fixed = noFollow
			tail, err := a.rt.OpenTail(opts)
			if err != nil {
				return err
			}
			defer func() { _ = tail.Close() }()
			if cmd.Flags().Changed("ordered") {
				tail.SetOrdered(ordered)
			}

			p := newEventPrinter(cmd.OutOrStdout(), asJSON)
			if err := sel.onEvent(tail, func(e *parser.Event) {
				if err := p.print(e); err != nil {
					a.logger.Error("write failed", log.Err(err))
					_ = tail.Close()
				}
			}); err != nil {
				return err
			}

			if err := tail.StartAsync(); err != nil {
				return err
			}
			done := make(chan struct{})
			go func() {
				_, _ = tail.AwaitTermination(0)
				close(done)
			}()
			select {
			case <-cmd.Context().Done():
				a.logger.Info("interrupted, stopping")
				_ = tail.Close()
				<-done
			case <-done:
			}
			return tail.Err()
		},
	}
	sel.register(cmd)
	cmd.Flags().StringVar(&opts.Repository, "repository", "", "Repository directory (default: config repositoryDir)")
	cmd.Flags().BoolVar(&opts.FromStart, "from-start", false, "Start at the oldest chunk")
	cmd.Flags().StringVar(&opts.Consumer, "consumer", "", "Consumer name; resumes from and records a checkpoint")
	cmd.Flags().BoolVar(&noFollow, "no-follow", false, "Stop at the chunk flagged final instead of waiting for new chunks")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print one JSON object per event")
	cmd.Flags().BoolVar(&ordered, "ordered", false, "Sort the events of each chunk by end time")
	return cmd
}
