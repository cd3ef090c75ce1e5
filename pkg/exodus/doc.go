// Package exodus writes and reads ExodusII finite-element models stored in
// the NetCDF classic container.
//
// A model is a set of nodes with coordinates, element blocks that share an
// element topology, node sets and side sets for boundary conditions, and
// result variables sampled at time steps. Blocks and sets are addressed by
// caller-chosen ids; on disk they occupy numbered slots in declaration
// order. Node and element indices are 0-based in this API and 1-based on
// disk.
//
// Writing:
//
//	w, err := exodus.Create("mesh.exo")
//	if err != nil {
//		return err
//	}
//	w.PutInit(exodus.InitParams{Title: "t", NumDim: 2, NumNodes: 4, NumElem: 1, NumElemBlk: 1})
//	w.PutCoord([]float64{0, 1, 1, 0}, []float64{0, 0, 1, 1})
//	w.PutElemBlock(10, "QUAD4", 1, 4, 0)
//	w.PutElemConn(10, [][]int{{0, 1, 2, 3}})
//	return w.Close()
//
// Reading:
//
//	r, err := exodus.Open("mesh.exo")
//	if err != nil {
//		return err
//	}
//	defer r.Close()
//	conn, err := r.ElemConn(10)
package exodus
