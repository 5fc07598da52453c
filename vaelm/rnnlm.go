package vaelm

import (
	"fmt"
	"math/rand/v2"

	G "gorgonia.org/gorgonia"

	"github.com/manningwu07/VaeLM/params"
)

// RnnLM is the recurrent baseline: embedding, one GRU and a vocabulary
// projection trained with teacher forcing.
type RnnLM struct {
	pc        *ParameterCollection
	vocabSize int

	lookup *Parameter
	rnn    *GRU
	out    outputLayer
}

func NewRnnLM(cfg params.TrainingConfig, vocabSize int, rng *rand.Rand) (*RnnLM, error) {
	cfg.Model = params.ModelRNN
	if err := checkShape(cfg, vocabSize); err != nil {
		return nil, err
	}
	pc := NewParameterCollection(rng)
	m := &RnnLM{pc: pc, vocabSize: vocabSize}
	m.rnn = NewGRU(pc, "rnn", cfg.InputDim, cfg.HiddenDim)
	m.out = outputLayer{
		w:    pc.AddMatrix("W_hv", vocabSize, cfg.HiddenDim),
		bias: pc.AddVector("b_v", vocabSize),
	}
	m.lookup = pc.AddLookup("lookup", vocabSize, cfg.InputDim)
	return m, nil
}

func (m *RnnLM) Name() string                     { return params.ModelRNN }
func (m *RnnLM) Parameters() *ParameterCollection { return m.pc }

// Forward returns the summed next-token negative log-likelihood of sent.
func (m *RnnLM) Forward(b *Binding, sent []int) (*G.Node, error) {
	return m.ForwardBatch(b, [][]int{sent})
}

func (m *RnnLM) ForwardBatch(b *Binding, sents [][]int) (*G.Node, error) {
	if err := checkBatch(sents, m.vocabSize); err != nil {
		return nil, err
	}
	h0 := b.Zeros(len(sents), m.rnn.HiddenDim)
	steps, err := teacherForced(b, m.rnn, m.out, m.lookup, h0, sents)
	if err != nil {
		return nil, fmt.Errorf("rnn forward: %w", err)
	}
	return G.ReduceAdd(steps)
}
