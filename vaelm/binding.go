package vaelm

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Binding is the view of a ParameterCollection inside one expression graph.
// A parameter gets a node the first time it is used; the node holds a copy
// of the current value so graph execution never writes into the collection.
//
// Graphs built through a Binding are row-batched: every activation is a
// rows×width matrix with one row per sentence (or per sentence and latent
// sample), so the node count depends on sentence length only.
type Binding struct {
	g       *G.ExprGraph
	nodes   map[*Parameter]*G.Node
	order   []*Parameter
	touched map[*Parameter]bool
	inputs  int

	transposed map[*Parameter]*G.Node
	biases     map[biasKey]*G.Node
	ones       map[int]*G.Node
	gathers    []gather
}

type biasKey struct {
	p    *Parameter
	rows int
}

// gather is an embedding lookup done outside the graph. Its rows enter the
// graph as an input whose gradient is scattered back into table.
type gather struct {
	table *Parameter
	ids   []int
	node  *G.Node
}

func NewBinding(g *G.ExprGraph) *Binding {
	return &Binding{
		g:          g,
		nodes:      make(map[*Parameter]*G.Node),
		touched:    make(map[*Parameter]bool),
		transposed: make(map[*Parameter]*G.Node),
		biases:     make(map[biasKey]*G.Node),
		ones:       make(map[int]*G.Node),
	}
}

func (b *Binding) touch(p *Parameter) {
	if !b.touched[p] {
		b.touched[p] = true
		b.order = append(b.order, p)
	}
}

// Node returns the graph node of p, creating it on first use. Vector
// parameters are bound as 1×n rows.
func (b *Binding) Node(p *Parameter) *G.Node {
	if n, ok := b.nodes[p]; ok {
		return n
	}
	r, c := p.Value.Dims()
	if p.IsVector() {
		r, c = 1, r
	}
	t := tensor.New(tensor.WithShape(r, c), tensor.WithBacking(flatten(p.Value)))
	n := G.NewMatrix(b.g, tensor.Float64, G.WithShape(r, c), G.WithName(p.Name), G.WithValue(t))
	b.nodes[p] = n
	b.touch(p)
	return n
}

// T is the transpose of a weight, built once per graph.
func (b *Binding) T(p *Parameter) (*G.Node, error) {
	if n, ok := b.transposed[p]; ok {
		return n, nil
	}
	n, err := G.Transpose(b.Node(p))
	if err != nil {
		return nil, fmt.Errorf("%sᵀ: %w", p.Name, err)
	}
	b.transposed[p] = n
	return n, nil
}

// Bias repeats a vector parameter over rows, built once per (parameter, rows).
func (b *Binding) Bias(p *Parameter, rows int) (*G.Node, error) {
	key := biasKey{p, rows}
	if n, ok := b.biases[key]; ok {
		return n, nil
	}
	ones, ok := b.ones[rows]
	if !ok {
		ones = b.Input("ones", constant(1, rows), rows, 1)
		b.ones[rows] = ones
	}
	n, err := G.Mul(ones, b.Node(p))
	if err != nil {
		return nil, fmt.Errorf("bias %s: %w", p.Name, err)
	}
	b.biases[key] = n
	return n, nil
}

// Embed gathers the rows ids of an embedding table into a len(ids)×dim input.
func (b *Binding) Embed(table *Parameter, ids []int) (*G.Node, error) {
	rows, dim := table.Value.Dims()
	data := make([]float64, 0, len(ids)*dim)
	for _, id := range ids {
		if id < 0 || id >= rows {
			return nil, fmt.Errorf("lookup %s: id %d outside [0,%d)", table.Name, id, rows)
		}
		data = append(data, table.Value.RawRowView(id)...)
	}
	n := b.Input(table.Name, data, len(ids), dim)
	b.gathers = append(b.gathers, gather{table: table, ids: append([]int(nil), ids...), node: n})
	b.touch(table)
	return n, nil
}

// Input creates a non-learnable tensor holding a copy of data. Without a
// shape it is a vector of len(data).
func (b *Binding) Input(name string, data []float64, shape ...int) *G.Node {
	b.inputs++
	if len(shape) == 0 {
		shape = []int{len(data)}
	}
	backing := append([]float64(nil), data...)
	t := tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing))
	return G.NewTensor(b.g, tensor.Float64, len(shape), G.WithShape(shape...),
		G.WithName(fmt.Sprintf("%s_%d", name, b.inputs)), G.WithValue(t))
}

// Zeros creates a non-learnable rows×cols zero matrix.
func (b *Binding) Zeros(rows, cols int) *G.Node {
	return b.Input("zeros", make([]float64, rows*cols), rows, cols)
}

// Learnables returns the parameters touched so far in first-use order.
func (b *Binding) Learnables() []*Parameter {
	return append([]*Parameter(nil), b.order...)
}

// wrt lists every node a gradient is needed for: bound parameters first,
// then gathered embedding rows.
func (b *Binding) wrt() G.Nodes {
	nodes := make(G.Nodes, 0, len(b.nodes)+len(b.gathers))
	for _, p := range b.order {
		if n, ok := b.nodes[p]; ok {
			nodes = append(nodes, n)
		}
	}
	for _, gt := range b.gathers {
		nodes = append(nodes, gt.node)
	}
	return nodes
}

// accumulate folds the gradients returned for wrt() into one dense matrix
// per learnable, scattering gathered rows into their tables.
func (b *Binding) accumulate(vals [][]float64) ([]*mat.Dense, error) {
	grads := make(map[*Parameter]*mat.Dense, len(b.order))
	at := func(p *Parameter) *mat.Dense {
		g, ok := grads[p]
		if !ok {
			r, c := p.Value.Dims()
			g = mat.NewDense(r, c, nil)
			grads[p] = g
		}
		return g
	}
	i := 0
	for _, p := range b.order {
		if _, ok := b.nodes[p]; !ok {
			continue
		}
		g := at(p)
		r, c := g.Dims()
		if len(vals[i]) != r*c {
			return nil, fmt.Errorf("grad of %s has %d values, want %d", p.Name, len(vals[i]), r*c)
		}
		g.Add(g, mat.NewDense(r, c, vals[i]))
		i++
	}
	for _, gt := range b.gathers {
		g := at(gt.table)
		_, dim := g.Dims()
		if len(vals[i]) != len(gt.ids)*dim {
			return nil, fmt.Errorf("grad of %s rows has %d values, want %d", gt.table.Name, len(vals[i]), len(gt.ids)*dim)
		}
		for k, id := range gt.ids {
			row := g.RawRowView(id)
			for j, v := range vals[i][k*dim : (k+1)*dim] {
				row[j] += v
			}
		}
		i++
	}
	out := make([]*mat.Dense, len(b.order))
	for k, p := range b.order {
		out[k] = at(p)
	}
	return out, nil
}

func flatten(m *mat.Dense) []float64 {
	r, c := m.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		out = append(out, m.RawRowView(i)...)
	}
	return out
}

func constant(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
