package reader

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rzbill/flr/internal/chunk"
	"github.com/rzbill/flr/internal/metadata"
)

type chunkInfo struct {
	Sequence int64         `json:"sequence"`
	Offset   int64         `json:"offset"`
	Size     int64         `json:"size"`
	Version  string        `json:"version"`
	Start    time.Time     `json:"start"`
	Duration time.Duration `json:"duration_ns"`
	Final    bool          `json:"final"`
	Types    int           `json:"types"`
}

// readChunks walks the header chain of the file at path.
func readChunks(path string, blockSize int) ([]chunkInfo, error) {
	r, err := chunk.Open(path, blockSize)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	var out []chunkInfo
	h, err := chunk.ReadHeader(r, 0, 0)
	for err == nil {
		md, mdErr := metadata.Read(h)
		if mdErr != nil {
			return out, mdErr
		}
		out = append(out, chunkInfo{
			Sequence: h.Sequence,
			Offset:   h.Start,
			Size:     h.Size,
			Version:  fmt.Sprintf("%d.%d", h.Major, h.Minor),
			Start:    h.StartTime().UTC(),
			Duration: h.Duration(),
			Final:    h.Final(),
			Types:    len(md.Types),
		})
		h, err = h.NextHeader()
	}
	if chunk.IsIOError(err) && len(out) > 0 {
		return out, nil
	}
	return out, err
}

func newChunksCommand(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "chunks <file>",
		Short: "List the chunk headers of a recording file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := readChunks(args[0], a.cfg.BlockSize)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				for _, c := range infos {
					if err := enc.Encode(c); err != nil {
						return err
					}
				}
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SEQ\tOFFSET\tSIZE\tVERSION\tSTART\tDURATION\tTYPES\tFINAL")
			for _, c := range infos {
				fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%s\t%s\t%d\t%t\n",
					c.Sequence, c.Offset, c.Size, c.Version,
					c.Start.Format(time.RFC3339Nano), c.Duration, c.Types, c.Final)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print one JSON object per chunk")
	return cmd
}
