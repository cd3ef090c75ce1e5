package exodus

import (
	"fmt"

	"github.com/eunmann/exocdf/pkg/idindex"
)

// Dimension names and fixed lengths of the ExodusII vocabulary.
const (
	dimLenString   = "len_string"
	dimLenLine     = "len_line"
	dimFour        = "four"
	dimTimeStep    = "time_step"
	dimNumDim      = "num_dim"
	dimNumNodes    = "num_nodes"
	dimNumElem     = "num_elem"
	dimNumElemBlk  = "num_el_blk"
	dimNumNodeSets = "num_node_sets"
	dimNumSideSets = "num_side_sets"
	dimNumQARec    = "num_qa_rec"
	dimNumInfo     = "num_info"
	dimNumGloVar   = "num_glo_var"
	dimNumNodVar   = "num_nod_var"
	dimNumElemVar  = "num_elem_var"

	// LenString is the stored width of a name, terminator included.
	LenString = 33
	// LenLine is the stored width of an info or title line, terminator included.
	LenLine = 81
	// MaxNameLength is the longest name stored without truncation.
	MaxNameLength = LenString - 1
	// MaxLineLength is the longest line stored without truncation.
	MaxLineLength = LenLine - 1
)

// Variable names.
const (
	varTime       = "time_whole"
	varCoordNames = "coor_names"
	varQARecords  = "qa_records"
	varInfo       = "info_records"
	varNodeNumMap = "node_num_map"
	varElemNumMap = "elem_num_map"
	varElemVarTab = "elem_var_tab"
	varGloVals    = "vals_glo_var"
)

// Global attribute names.
const (
	attrTitle      = "title"
	attrAPIVersion = "api_version"
	attrVersion    = "version"
	attrWordSize   = "floating_point_word_size"
	attrFileSize   = "file_size"
	attrMaxNameLen = "maximum_name_length"
	attrElemType   = "elem_type"
	attrPropName   = "name"
	propID         = "ID"
	apiVersion     = 4.98
	formatVersion  = 2.0
)

var coordVars = [3]string{"coordx", "coordy", "coordz"}

// Class identifies an object class with its own id space.
type Class = idindex.Class

const (
	ElemBlock = idindex.ElemBlock
	NodeSet   = idindex.NodeSet
	SideSet   = idindex.SideSet
)

// classSchema names the per-class arrays.
type classSchema struct {
	countDim string
	status   string
	prop     string // format, 1-based column
	names    string
}

var classSchemas = map[Class]classSchema{
	ElemBlock: {dimNumElemBlk, "eb_status", "eb_prop%d", "eb_names"},
	NodeSet:   {dimNumNodeSets, "ns_status", "ns_prop%d", "ns_names"},
	SideSet:   {dimNumSideSets, "ss_status", "ss_prop%d", "ss_names"},
}

func schemaFor(c Class) (classSchema, error) {
	s, ok := classSchemas[c]
	if !ok {
		return classSchema{}, fmt.Errorf("%w: %s", ErrNotFound, c)
	}
	return s, nil
}

func propVar(c Class, column int) string {
	return fmt.Sprintf(classSchemas[c].prop, column)
}

// Per-object names take a 1-based slot number.

func dimElemInBlk(slot int) string { return fmt.Sprintf("num_el_in_blk%d", slot+1) }
func dimNodPerEl(slot int) string { return fmt.Sprintf("num_nod_per_el%d", slot+1) }
func dimAttInBlk(slot int) string { return fmt.Sprintf("num_att_in_blk%d", slot+1) }
func dimNodNS(slot int) string { return fmt.Sprintf("num_nod_ns%d", slot+1) }
func dimSideSS(slot int) string { return fmt.Sprintf("num_side_ss%d", slot+1) }
func dimDFSS(slot int) string { return fmt.Sprintf("num_df_ss%d", slot+1) }
func varConnect(slot int) string { return fmt.Sprintf("connect%d", slot+1) }
func varAttrib(slot int) string { return fmt.Sprintf("attrib%d", slot+1) }
func varNodeNS(slot int) string { return fmt.Sprintf("node_ns%d", slot+1) }
func varDistFactNS(slot int) string { return fmt.Sprintf("dist_fact_ns%d", slot+1) }
func varElemSS(slot int) string { return fmt.Sprintf("elem_ss%d", slot+1) }
func varSideSS(slot int) string { return fmt.Sprintf("side_ss%d", slot+1) }
func varDistFactSS(slot int) string { return fmt.Sprintf("dist_fact_ss%d", slot+1) }
func varNodVals(index int) string { return fmt.Sprintf("vals_nod_var%d", index+1) }

func varElemVals(index, slot int) string {
	return fmt.Sprintf("vals_elem_var%deb%d", index+1, slot+1)
}

// VarKind selects a family of result variables.
type VarKind int

const (
	Global VarKind = iota
	Nodal
	Element
	numVarKinds
)

func (k VarKind) String() string {
	switch k {
	case Global:
		return "global"
	case Nodal:
		return "nodal"
	case Element:
		return "element"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

type varSchema struct {
	countDim string
	names    string
}

var varSchemas = [numVarKinds]varSchema{
	Global:  {dimNumGloVar, "name_glo_var"},
	Nodal:   {dimNumNodVar, "name_nod_var"},
	Element: {dimNumElemVar, "name_elem_var"},
}

func varSchemaFor(k VarKind) (varSchema, error) {
	if k < 0 || k >= numVarKinds {
		return varSchema{}, fmt.Errorf("%w: %s", ErrNotFound, k)
	}
	return varSchemas[k], nil
}

// InitParams are the model sizes fixed by PutInit.
type InitParams struct {
	Title       string
	NumDim      int
	NumNodes    int
	NumElem     int
	NumElemBlk  int
	NumNodeSets int
	NumSideSets int
}

func (p InitParams) count(c Class) int {
	switch c {
	case ElemBlock:
		return p.NumElemBlk
	case NodeSet:
		return p.NumNodeSets
	case SideSet:
		return p.NumSideSets
	}
	return 0
}

// Block describes an element block.
type Block struct {
	ID           int
	ElemType     string
	NumElem      int
	NodesPerElem int
	NumAttr      int
}

// NodeSetData is a node set with 0-based node indices.
type NodeSetData struct {
	ID       int
	Nodes    []int
	DistFact []float64
}

// SideSetData is a side set with 0-based element indices and 1-based local
// side numbers.
type SideSetData struct {
	ID       int
	Elems    []int
	Sides    []int
	DistFact []float64
}

// QARecord identifies a program that touched the file.
type QARecord struct {
	Code    string
	Version string
	Date    string
	Time    string
}

func (q QARecord) fields() [4]string { return [4]string{q.Code, q.Version, q.Date, q.Time} }

// set is the per-slot shape of a node or side set.
type set struct {
	count int
	numDF int
}
