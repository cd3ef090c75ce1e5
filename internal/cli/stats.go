package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/eunmann/exocdf/pkg/exodus"
	"github.com/eunmann/exocdf/pkg/summary"
)

func (a *app) statsCmd() *cobra.Command {
	var (
		names []string
		step  int
	)
	cmd := &cobra.Command{
		Use:   "stats <input>",
		Short: "Summarize the coordinates and results of an ExodusII model",
		Long: `Print the coordinate bounding box and, for one time step, the count, min,
max, mean and standard deviation of each result variable. The last step is
used unless --step is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.open(cmd, args[0])
			if err != nil {
				return err
			}
			r, err := exodus.NewReader(f)
			if err != nil {
				f.Close()
				return err
			}
			defer r.Close()

			if step < 0 {
				step = r.NumTimeSteps() - 1
			}
			return printStats(cmd.OutOrStdout(), r, step, names)
		},
	}
	cmd.Flags().StringSliceVar(&names, "var", nil, "variables to include (default all)")
	cmd.Flags().IntVar(&step, "step", -1, "time step (0-based, default last)")
	return cmd
}

func printStats(out io.Writer, r *exodus.Reader, step int, names []string) error {
	coords, err := r.Coord()
	if err != nil {
		return err
	}
	axes, err := r.CoordNames()
	if err != nil {
		return err
	}
	box := summary.BoundingBox(coords)
	extent := box.Extent()
	fmt.Fprintln(out, "bounds:")
	for i := range coords {
		axis := fmt.Sprintf("axis%d", i)
		if i < len(axes) && axes[i] != "" {
			axis = axes[i]
		}
		fmt.Fprintf(out, "  %s: [%g, %g] extent %g\n", axis, box.Min[i], box.Max[i], extent[i])
	}

	if r.NumTimeSteps() == 0 {
		fmt.Fprintln(out, "no time steps")
		return nil
	}
	if step < 0 || step >= r.NumTimeSteps() {
		return fmt.Errorf("%w: step %d of %d", exodus.ErrStepRange, step, r.NumTimeSteps())
	}
	stats, err := summary.Step(r, step, names...)
	if err != nil {
		return err
	}
	times, err := r.Times()
	if err != nil {
		return err
	}
	t := 0.0
	if step < len(times) {
		t = times[step]
	}
	fmt.Fprintf(out, "step %d (time %g):\n", step, t)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  kind\tname\tcount\tmin\tmax\tmean\tstddev")
	for _, s := range stats {
		fmt.Fprintf(tw, "  %s\t%s\t%d\t%g\t%g\t%g\t%g\n",
			s.Kind, s.Name, s.Count, s.Min, s.Max, s.Mean, s.StdDev)
	}
	return tw.Flush()
}
