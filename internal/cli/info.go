package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eunmann/exocdf/internal/logctx"
	"github.com/eunmann/exocdf/pkg/cdf"
	"github.com/eunmann/exocdf/pkg/exodus"
	"github.com/eunmann/exocdf/pkg/humanfmt"
	"github.com/eunmann/exocdf/pkg/source"
)

func (a *app) infoCmd() *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "info <input>...",
		Short: "Print the header of each input and its ExodusII model summary",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := a.sourceOptions(cmd)
			if err != nil {
				return err
			}
			files, err := source.OpenAll(cmd.Context(), args, opts, concurrency)
			if err != nil {
				return err
			}
			defer func() {
				for _, f := range files {
					f.Close()
				}
			}()

			out := cmd.OutOrStdout()
			for i, f := range files {
				if i > 0 {
					fmt.Fprintln(out)
				}
				fmt.Fprintf(out, "== %s\n", args[i])
				if err := printInfo(out, f); err != nil {
					return fmt.Errorf("info %s: %w", args[i], err)
				}
			}
			log := logctx.FromContext(cmd.Context())
			log.Debug().Int("inputs", len(files)).Msg("info done")
			return nil
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "inputs opened in parallel")
	return cmd
}

func printInfo(out io.Writer, f *cdf.File) error {
	printHeader(out, f)
	if !exodus.IsExodus(f) {
		return nil
	}
	// The caller closes f, which releases the reader too.
	r, err := exodus.NewReader(f)
	if err != nil {
		return err
	}
	printModel(out, r)
	return nil
}

func printHeader(out io.Writer, f *cdf.File) {
	fmt.Fprintf(out, "format: CDF-%d, %s records\n", int(f.Version()), humanfmt.Count(int64(f.NumRecords())))

	fmt.Fprintln(out, "dimensions:")
	for _, d := range f.Dimensions() {
		if d.IsUnlimited() {
			fmt.Fprintf(out, "  %s = UNLIMITED (%d currently)\n", d.Name(), f.NumRecords())
			continue
		}
		fmt.Fprintf(out, "  %s = %d\n", d.Name(), d.Len())
	}

	fmt.Fprintln(out, "variables:")
	for _, v := range f.Variables() {
		fmt.Fprintf(out, "  %s %s(%s)\n", v.Type(), v.Name(), strings.Join(v.Dimensions(), ", "))
		printAttrs(out, "    ", &v.Attrs)
	}

	if f.Attrs.Len() > 0 {
		fmt.Fprintln(out, "global attributes:")
		printAttrs(out, "  ", &f.Attrs)
	}
}

func printAttrs(out io.Writer, indent string, attrs *cdf.Attributes) {
	for _, name := range attrs.Names() {
		val, _ := attrs.Get(name)
		fmt.Fprintf(out, "%s:%s = %s\n", indent, name, val)
	}
}

func printModel(out io.Writer, r *exodus.Reader) {
	p := r.Init()
	fmt.Fprintln(out, "exodus:")
	fmt.Fprintf(out, "  title: %q\n", p.Title)
	fmt.Fprintf(out, "  word size: %d\n", r.WordSize())
	fmt.Fprintf(out, "  dimensions: %d, nodes: %d, elements: %d\n", p.NumDim, p.NumNodes, p.NumElem)
	fmt.Fprintf(out, "  element blocks: %d, node sets: %d, side sets: %d\n",
		p.NumElemBlk, p.NumNodeSets, p.NumSideSets)

	for _, b := range r.Blocks() {
		fmt.Fprintf(out, "  block %d: %s, %d elements x %d nodes, %d attributes\n",
			b.ID, b.ElemType, b.NumElem, b.NodesPerElem, b.NumAttr)
	}
	for _, id := range r.IDs(exodus.NodeSet) {
		if ns, err := r.NodeSet(id); err == nil {
			fmt.Fprintf(out, "  node set %d: %d nodes\n", id, len(ns.Nodes))
		}
	}
	for _, id := range r.IDs(exodus.SideSet) {
		if ss, err := r.SideSet(id); err == nil {
			fmt.Fprintf(out, "  side set %d: %d sides\n", id, len(ss.Sides))
		}
	}
	for _, kind := range []exodus.VarKind{exodus.Global, exodus.Nodal, exodus.Element} {
		if names := r.VarNames(kind); len(names) > 0 {
			fmt.Fprintf(out, "  %s variables: %s\n", kind, strings.Join(names, ", "))
		}
	}
	fmt.Fprintf(out, "  time steps: %d\n", r.NumTimeSteps())
}
