package reader

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rzbill/flr/internal/consumer"
	"github.com/rzbill/flr/internal/parser"
)

// selection holds the flags that narrow which events a command sees.
type selection struct {
	start  string
	end    string
	filter string
	limit  int
}

func (s *selection) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.start, "start", "", "First event end time: RFC3339, ns since epoch, or relative (-5m)")
	cmd.Flags().StringVar(&s.end, "end", "", "Exclusive event end time bound, same formats as --start")
	cmd.Flags().StringVar(&s.filter, "filter", "", "CEL expression over name, start_ns, end_ns, duration_ns and fields")
	cmd.Flags().IntVar(&s.limit, "limit", 0, "Stop after N events (0 = no limit)")
}

func (s *selection) window(now time.Time) (time.Time, time.Time, error) {
	start, err := parseTime(s.start, now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseTime(s.end, now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

// onEvent registers fn on stream behind the filter and limit. The stream is
// closed once the limit is reached.
func (s *selection) onEvent(stream consumer.EventStream, fn func(*parser.Event)) error {
	f, err := consumer.NewFilter(s.filter)
	if err != nil {
		return err
	}
	seen := 0
	stream.OnEvent(f.Wrap(func(e *parser.Event) {
		if s.limit > 0 && seen >= s.limit {
			return
		}
		seen++
		fn(e)
		if s.limit > 0 && seen == s.limit {
			_ = stream.Close()
		}
	}))
	return nil
}

func (a *app) openFile(path string, sel *selection) (*consumer.FileStream, error) {
	s := a.rt.OpenFile(path)
	start, end, err := sel.window(time.Now())
	if err != nil {
		return nil, err
	}
	if !start.IsZero() {
		if err := s.SetStartTime(start); err != nil {
			return nil, err
		}
	}
	if !end.IsZero() {
		if err := s.SetEndTime(end); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func newPrintCommand(a *app) *cobra.Command {
	var (
		sel     selection
		asJSON  bool
		ordered bool
	)
	cmd := &cobra.Command{
		Use:   "print <file>",
		Short: "Print the events of a recording file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openFile(args[0], &sel)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("ordered") {
				s.SetOrdered(ordered)
			}
			p := newEventPrinter(cmd.OutOrStdout(), asJSON)
			var printErr error
			if err := sel.onEvent(s, func(e *parser.Event) {
				if err := p.print(e); err != nil && printErr == nil {
					printErr = err
					_ = s.Close()
				}
			}); err != nil {
				return err
			}
			if err := s.Start(); err != nil {
				return err
			}
			return printErr
		},
	}
	sel.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print one JSON object per event")
	cmd.Flags().BoolVar(&ordered, "ordered", false, "Sort the events of each chunk by end time")
	return cmd
}

type typeStats struct {
	name     string
	count    int
	total    time.Duration
	first    int64
	last     int64
	hasRange bool
}

func newSummaryCommand(a *app) *cobra.Command {
	var sel selection
	cmd := &cobra.Command{
		Use:   "summary <file>",
		Short: "Count the events of a recording file per type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openFile(args[0], &sel)
			if err != nil {
				return err
			}
			s.SetReuse(true)
			stats := map[string]*typeStats{}
			chunks := 0
			s.OnChunkComplete(func(int64) { chunks++ })
			if err := sel.onEvent(s, func(e *parser.Event) {
				st := stats[e.Name()]
				if st == nil {
					st = &typeStats{name: e.Name()}
					stats[e.Name()] = st
				}
				st.count++
				st.total += e.Duration()
				if !st.hasRange || e.EndNanos < st.first {
					st.first = e.EndNanos
				}
				if !st.hasRange || e.EndNanos > st.last {
					st.last = e.EndNanos
				}
				st.hasRange = true
			}); err != nil {
				return err
			}
			if err := s.Start(); err != nil {
				return err
			}
			return writeSummary(cmd, chunks, stats)
		},
	}
	sel.register(cmd)
	return cmd
}

func writeSummary(cmd *cobra.Command, chunks int, stats map[string]*typeStats) error {
	rows := make([]*typeStats, 0, len(stats))
	total := 0
	for _, st := range stats {
		rows = append(rows, st)
		total += st.count
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].count != rows[j].count {
			return rows[i].count > rows[j].count
		}
		return rows[i].name < rows[j].name
	})

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "chunks: %d\nevents: %d\n\n", chunks, total)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tCOUNT\tTOTAL DURATION\tFIRST\tLAST")
	for _, st := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", st.name, st.count, st.total,
			time.Unix(0, st.first).UTC().Format(time.RFC3339Nano),
			time.Unix(0, st.last).UTC().Format(time.RFC3339Nano))
	}
	return tw.Flush()
}
