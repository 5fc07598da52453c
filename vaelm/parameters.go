package vaelm

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/VaeLM/utils"
)

// Parameter is one learnable tensor. Vectors are stored as n×1 matrices and
// bound into graphs as 1×n rows.
type Parameter struct {
	Name   string
	Value  *mat.Dense
	vector bool
}

func (p *Parameter) IsVector() bool { return p.vector }

// Len is the number of scalars held by p.
func (p *Parameter) Len() int {
	r, c := p.Value.Dims()
	return r * c
}

// ParameterCollection owns every parameter of a model in creation order.
// The optimizer mutates the values in place between batches.
type ParameterCollection struct {
	params []*Parameter
	byName map[string]*Parameter
	rng    *rand.Rand
}

func NewParameterCollection(rng *rand.Rand) *ParameterCollection {
	return &ParameterCollection{byName: make(map[string]*Parameter), rng: rng}
}

func (pc *ParameterCollection) add(name string, value *mat.Dense, vector bool) *Parameter {
	if _, dup := pc.byName[name]; dup {
		panic(fmt.Sprintf("vaelm: duplicate parameter %q", name))
	}
	p := &Parameter{Name: name, Value: value, vector: vector}
	pc.params = append(pc.params, p)
	pc.byName[name] = p
	return p
}

// AddMatrix adds a rows×cols weight drawn uniformly from ±1/sqrt(cols).
func (pc *ParameterCollection) AddMatrix(name string, rows, cols int) *Parameter {
	w := mat.NewDense(rows, cols, utils.RandomArray(pc.rng, rows*cols, float64(cols)))
	return pc.add(name, w, false)
}

// AddVector adds a zero bias of length n.
func (pc *ParameterCollection) AddVector(name string, n int) *Parameter {
	return pc.add(name, mat.NewDense(n, 1, nil), true)
}

// AddLookup adds an embedding table with one row of width dim per id.
func (pc *ParameterCollection) AddLookup(name string, n, dim int) *Parameter {
	e := mat.NewDense(n, dim, utils.RandomArray(pc.rng, n*dim, float64(dim)))
	return pc.add(name, e, false)
}

func (pc *ParameterCollection) Params() []*Parameter { return pc.params }

func (pc *ParameterCollection) Get(name string) (*Parameter, bool) {
	p, ok := pc.byName[name]
	return p, ok
}

// Size is the total number of scalars across all parameters.
func (pc *ParameterCollection) Size() int {
	n := 0
	for _, p := range pc.params {
		n += p.Len()
	}
	return n
}
