package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/eunmann/exocdf/pkg/cdf"
)

func (a *app) dumpCmd() *cobra.Command {
	var (
		name string
		step int
	)
	cmd := &cobra.Command{
		Use:   "dump <input>",
		Short: "Print the values of one variable",
		Long: `Print the values of one variable. For a record variable --step selects a
single record; without it every record is printed. Char variables are printed
one string per row.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.open(cmd, args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			v, err := f.Variable(name)
			if err != nil {
				return err
			}
			return dumpVariable(cmd.OutOrStdout(), f, v, step)
		},
	}
	cmd.Flags().StringVar(&name, "var", "", "variable name")
	cmd.Flags().IntVar(&step, "step", -1, "record index (0-based) of a record variable")
	_ = cmd.MarkFlagRequired("var")
	return cmd
}

func dumpVariable(out io.Writer, f *cdf.File, v *cdf.Variable, step int) error {
	if v.Type() == cdf.Char {
		rows, err := v.Strings()
		if err != nil {
			return err
		}
		for _, row := range rows {
			fmt.Fprintf(out, "%q\n", row)
		}
		return nil
	}

	if !v.IsRecord() {
		if step >= 0 {
			return fmt.Errorf("%s is not a record variable; drop --step", v.Name())
		}
		vals, err := v.Values()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s = %v\n", v.Name(), vals)
		return nil
	}

	first, last := 0, f.NumRecords()
	if step >= 0 {
		first, last = step, step+1
	}
	for rec := first; rec < last; rec++ {
		vals, err := v.Record(rec)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s[%d] = %v\n", v.Name(), rec, vals)
	}
	return nil
}
