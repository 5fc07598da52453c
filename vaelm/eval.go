package vaelm

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Result is what one execution of a Binding's graph produced.
type Result struct {
	Loss    float64
	Watched [][]float64  // flattened value of each watched node
	Params  []*Parameter // learnables, when gradients were requested
	Grads   []*mat.Dense // d Loss / d Params[i], shaped like Params[i].Value
}

// Evaluate runs the graph of b once. With grads set it also differentiates
// cost with respect to every parameter the graph touched. Every extracted
// value is read through a Read node so later ops reusing memory cannot
// clobber it.
func Evaluate(b *Binding, cost *G.Node, grads bool, watch ...*G.Node) (*Result, error) {
	res := &Result{}
	var gradVals []G.Value
	if grads {
		gs, err := G.Grad(cost, b.wrt()...)
		if err != nil {
			return nil, fmt.Errorf("grad: %w", err)
		}
		gradVals = make([]G.Value, len(gs))
		for i, g := range gs {
			G.Read(g, &gradVals[i])
		}
	}
	var lossVal G.Value
	G.Read(cost, &lossVal)
	watchVals := make([]G.Value, len(watch))
	for i, n := range watch {
		G.Read(n, &watchVals[i])
	}

	vm := G.NewTapeMachine(b.g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return nil, fmt.Errorf("run graph: %w", err)
	}

	var err error
	if res.Loss, err = Scalar(lossVal); err != nil {
		return nil, fmt.Errorf("loss: %w", err)
	}
	res.Watched = make([][]float64, len(watchVals))
	for i, v := range watchVals {
		if res.Watched[i], err = Floats(v); err != nil {
			return nil, fmt.Errorf("watched node %d: %w", i, err)
		}
	}
	if !grads {
		return res, nil
	}
	flat := make([][]float64, len(gradVals))
	for i, v := range gradVals {
		if flat[i], err = Floats(v); err != nil {
			return nil, fmt.Errorf("grad %d: %w", i, err)
		}
	}
	res.Params = b.Learnables()
	if res.Grads, err = b.accumulate(flat); err != nil {
		return nil, err
	}
	return res, nil
}

// Scalar extracts a single float64 from a graph value.
func Scalar(v G.Value) (float64, error) {
	switch x := v.(type) {
	case nil:
		return 0, fmt.Errorf("value was never computed")
	case *G.F64:
		return float64(*x), nil
	case tensor.Tensor:
		data, err := Floats(x)
		if err != nil {
			return 0, err
		}
		if len(data) != 1 {
			return 0, fmt.Errorf("expected a scalar, got shape %v", x.Shape())
		}
		return data[0], nil
	default:
		return 0, fmt.Errorf("unsupported value %T", v)
	}
}

// Floats copies the float64 contents of a graph value.
func Floats(v G.Value) ([]float64, error) {
	switch x := v.(type) {
	case nil:
		return nil, fmt.Errorf("value was never computed")
	case *G.F64:
		return []float64{float64(*x)}, nil
	case tensor.Tensor:
		switch d := x.Data().(type) {
		case []float64:
			return append([]float64(nil), d...), nil
		case float64:
			return []float64{d}, nil
		}
		return nil, fmt.Errorf("unsupported tensor dtype %v", x.Dtype())
	default:
		return nil, fmt.Errorf("unsupported value %T", v)
	}
}
