package cli

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/eunmann/exocdf/internal/logctx"
	"github.com/eunmann/exocdf/pkg/exodus"
	"github.com/eunmann/exocdf/pkg/fileutil"
	"github.com/eunmann/exocdf/pkg/humanfmt"
	"github.com/eunmann/exocdf/pkg/logging"
)

// version is recorded in the QA record of generated files.
const version = "0.1.0"

func (a *app) generateCmd() *cobra.Command {
	var (
		g     grid
		force bool
	)
	cmd := &cobra.Command{
		Use:   "generate <output>",
		Short: "Write a structured QUAD4 mesh with synthetic results",
		Long: `Write an nx by ny grid of unit QUAD4 elements in one block, a node set on
the left edge (id 1), a side set on the bottom edge (id 1) and --steps time
steps of results: the global "energy", the nodal "temp" and the element
"pressure".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if fileutil.Exists(path) && !force {
				return fmt.Errorf("%s exists; use --force to overwrite", path)
			}
			if err := fileutil.CleanupTmpFiles(path); err != nil {
				return err
			}
			log := logctx.FromContext(cmd.Context())
			start := time.Now()
			if err := g.write(path, log); err != nil {
				return err
			}
			logging.FileWritten(log, "generate", time.Since(start)).
				Str("path", path).
				Count("nodes", int64(g.nodes())).
				Count("elements", int64(g.elems())).
				Int("steps", g.steps).
				Log("mesh generated")
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s nodes, %s elements, %d steps to %s\n",
				humanfmt.Count(int64(g.nodes())), humanfmt.Count(int64(g.elems())), g.steps, path)
			return nil
		},
	}
	cmd.Flags().IntVar(&g.nx, "nx", 10, "elements along x")
	cmd.Flags().IntVar(&g.ny, "ny", 10, "elements along y")
	cmd.Flags().IntVar(&g.steps, "steps", 5, "time steps")
	cmd.Flags().IntVar(&g.wordSize, "word-size", 8, "floating-point word size (4 or 8)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing output")
	return cmd
}

// grid is a structured quadrilateral mesh on [0,nx]x[0,ny]. Node (i, j) has
// index j*(nx+1)+i and element (i, j) has index j*nx+i.
type grid struct {
	nx, ny   int
	steps    int
	wordSize int
}

func (g grid) nodes() int { return (g.nx + 1) * (g.ny + 1) }
func (g grid) elems() int { return g.nx * g.ny }
func (g grid) node(i, j int) int { return j*(g.nx+1) + i }

func (g grid) validate() error {
	if g.nx < 1 || g.ny < 1 {
		return fmt.Errorf("grid must be at least 1x1, got %dx%d", g.nx, g.ny)
	}
	if g.steps < 0 {
		return errors.New("--steps must not be negative")
	}
	return nil
}

// temp is the synthetic nodal field: a wave travelling along x.
func (g grid) temp(step, i, j int) float64 {
	return 300 + 10*math.Sin(float64(i-step)/float64(g.nx)*2*math.Pi) + float64(j)
}

func (g grid) write(path string, log zerolog.Logger) error {
	if err := g.validate(); err != nil {
		return err
	}
	w, err := exodus.Create(path, exodus.WithWordSize(g.wordSize), exodus.WithLogger(log))
	if err != nil {
		return err
	}
	if err := g.populate(w, log); err != nil {
		w.Close()
		return fmt.Errorf("generate %s: %w", path, err)
	}
	return w.Close()
}

func (g grid) populate(w *exodus.Writer, log zerolog.Logger) error {
	err := w.PutInit(exodus.InitParams{
		Title:       fmt.Sprintf("structured %dx%d quad mesh", g.nx, g.ny),
		NumDim:      2,
		NumNodes:    g.nodes(),
		NumElem:     g.elems(),
		NumElemBlk:  1,
		NumNodeSets: 1,
		NumSideSets: 1,
	})
	if err != nil {
		return err
	}
	if err := w.PutQARecords([]exodus.QARecord{{
		Code:    "exodump",
		Version: version,
		Date:    time.Now().UTC().Format("2006-01-02"),
		Time:    time.Now().UTC().Format("15:04:05"),
	}}); err != nil {
		return err
	}
	if err := w.PutCoordNames([]string{"x", "y"}); err != nil {
		return err
	}

	x := make([]float64, 0, g.nodes())
	y := make([]float64, 0, g.nodes())
	for j := 0; j <= g.ny; j++ {
		for i := 0; i <= g.nx; i++ {
			x = append(x, float64(i))
			y = append(y, float64(j))
		}
	}
	if err := w.PutCoord(x, y); err != nil {
		return err
	}

	if err := w.PutElemBlock(1, "QUAD4", g.elems(), 4, 0); err != nil {
		return err
	}
	conn := make([][]int, 0, g.elems())
	for j := range g.ny {
		for i := range g.nx {
			conn = append(conn, []int{g.node(i, j), g.node(i+1, j), g.node(i+1, j+1), g.node(i, j+1)})
		}
	}
	if err := w.PutElemConn(1, conn); err != nil {
		return err
	}
	if err := w.PutNames(exodus.ElemBlock, []string{"plate"}); err != nil {
		return err
	}

	left := make([]int, 0, g.ny+1)
	for j := 0; j <= g.ny; j++ {
		left = append(left, g.node(0, j))
	}
	if err := w.PutNodeSetParam(1, len(left), 0); err != nil {
		return err
	}
	if err := w.PutNodeSet(1, left); err != nil {
		return err
	}

	// Side 1 of a QUAD4 is the edge from its first to its second node.
	bottom := make([]int, g.nx)
	sides := make([]int, g.nx)
	for i := range g.nx {
		bottom[i] = i
		sides[i] = 1
	}
	if err := w.PutSideSetParam(1, g.nx, 0); err != nil {
		return err
	}
	if err := w.PutSideSet(1, bottom, sides); err != nil {
		return err
	}
	if err := w.PutNames(exodus.NodeSet, []string{"left"}); err != nil {
		return err
	}
	if err := w.PutNames(exodus.SideSet, []string{"bottom"}); err != nil {
		return err
	}

	for _, v := range []struct {
		kind exodus.VarKind
		name string
	}{
		{exodus.Global, "energy"},
		{exodus.Nodal, "temp"},
		{exodus.Element, "pressure"},
	} {
		if err := w.PutVarParam(v.kind, 1); err != nil {
			return err
		}
		if err := w.PutVarNames(v.kind, []string{v.name}); err != nil {
			return err
		}
	}

	tracker := logging.NewStepTracker("generate", g.steps, 10, log)
	temp := make([]float64, g.nodes())
	pressure := make([]float64, g.elems())
	for step := range g.steps {
		if err := w.PutTime(step, float64(step)*0.1); err != nil {
			return err
		}
		energy := 0.0
		for j := 0; j <= g.ny; j++ {
			for i := 0; i <= g.nx; i++ {
				temp[g.node(i, j)] = g.temp(step, i, j)
				energy += temp[g.node(i, j)]
			}
		}
		for e, nodes := range conn {
			p := 0.0
			for _, n := range nodes {
				p += temp[n]
			}
			pressure[e] = p / float64(len(nodes))
		}
		if err := w.PutGlobVars(step, []float64{energy}); err != nil {
			return err
		}
		if err := w.PutNodalVar(step, "temp", temp); err != nil {
			return err
		}
		if err := w.PutElemVar(step, "pressure", 1, pressure); err != nil {
			return err
		}
		tracker.Step()
	}
	return nil
}
