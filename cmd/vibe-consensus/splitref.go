package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/inodb/vibe-consensus/internal/reference"
	"github.com/inodb/vibe-consensus/internal/task"
)

func newSplitRefCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "split-ref <task-dir> <fasta>",
		Short: "Split a multi-FASTA reference into the per-order files of a task",
		Example: `  vibe-consensus split-ref /data/tasks/T1 segments.fasta
  vibe-consensus split-ref /data/tasks/T1 genome.fasta.gz`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			layout := task.FromDir(args[0])
			meta, err := reference.Split(args[1], layout)
			if err != nil {
				return err
			}
			if meta.RefNum > 1 {
				logger.Warn("reference file contains multiple sequences",
					zap.String("path", args[1]),
					zap.Int("sequences", meta.RefNum))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote %d reference(s) to %s\n", meta.RefNum, layout.ReferenceDir())
			for order := 1; order <= meta.RefNum; order++ {
				sm := meta.SeqMeta[order]
				fmt.Fprintf(out, "  %d\t%d bp\t%s\n", order, sm.SeqLength, sm.FASTAHeader)
			}
			return nil
		},
	}
}
