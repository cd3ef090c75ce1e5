package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/eunmann/exocdf/internal/logctx"
	"github.com/eunmann/exocdf/pkg/exodus"
	"github.com/eunmann/exocdf/pkg/export"
	"github.com/eunmann/exocdf/pkg/fileutil"
	"github.com/eunmann/exocdf/pkg/logging"
)

func (a *app) exportCmd() *cobra.Command {
	var (
		out   string
		kinds []string
		names []string
	)
	cmd := &cobra.Command{
		Use:   "export <input>",
		Short: "Write the result history of an ExodusII model as Parquet",
		Long: `Write one Parquet row per time step, variable and node or element:
step, time, kind, variable, block, entity, value. The output is written to a
temporary file and renamed into place.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return errors.New("--out is required")
			}
			varKinds, err := parseKinds(kinds)
			if err != nil {
				return err
			}

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

			log := logctx.FromContext(cmd.Context())
			opts := export.Options{
				Kinds:       varKinds,
				Variables:   names,
				Compression: a.cfg.GetString(keyCompression),
				Logger:      &log,
			}
			if err := fileutil.CleanupTmpFiles(out); err != nil {
				return err
			}
			start := time.Now()
			var rows int
			err = fileutil.WriteAtomic(out, func(w io.Writer) error {
				var err error
				rows, err = export.WriteTimeHistory(w, r, opts)
				return err
			})
			if err != nil {
				return fmt.Errorf("export %s: %w", args[0], err)
			}

			logging.FileWritten(log, "export", time.Since(start)).
				Str("path", out).
				Count("rows", int64(rows)).
				Log("time history written")
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows to %s\n", rows, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output Parquet file")
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "variable kinds: global, nodal, element (default all)")
	cmd.Flags().StringSliceVar(&names, "var", nil, "variables to include (default all)")
	cmd.Flags().String("compression", "snappy", "snappy, zstd or none")
	a.bind(keyCompression, cmd.Flags().Lookup("compression"))
	return cmd
}

func parseKinds(names []string) ([]exodus.VarKind, error) {
	var out []exodus.VarKind
	for _, name := range names {
		switch strings.ToLower(name) {
		case "global":
			out = append(out, exodus.Global)
		case "nodal", "node":
			out = append(out, exodus.Nodal)
		case "element", "elem":
			out = append(out, exodus.Element)
		default:
			return nil, fmt.Errorf("unknown variable kind %q", name)
		}
	}
	return out, nil
}
