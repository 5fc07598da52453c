package vaelm

import (
	"fmt"
	"math/rand/v2"

	G "gorgonia.org/gorgonia"

	"github.com/manningwu07/VaeLM/params"
)

// Posterior is the encoder's diagonal Gaussian q(z|x), one row per sentence.
type Posterior struct {
	Mean   *G.Node
	LogVar *G.Node
}

// Decoding holds the per-step negative log-likelihoods of a batch of
// reconstructions, each summed over rows, and their total.
type Decoding struct {
	Loss  *G.Node
	Steps []*G.Node
}

// Terms are the pieces of a batch loss. Recon sums every sentence over
// every noise sample; Loss is KL + Recon/Samples.
type Terms struct {
	Posterior *Posterior
	KL        *G.Node
	Recon     *G.Node
	Samples   int
	Loss      *G.Node
}

// VariationalLM is a sequence-to-sequence VAE: a GRU encoder maps the
// sentence to q(z|x), a reparameterized sample initializes a second GRU
// that reconstructs the sentence with teacher forcing.
type VariationalLM struct {
	pc           *ParameterCollection
	noise        NoiseSource
	vocabSize    int
	noiseSamples int
	hiddenDim    int

	lookup *Parameter // shared by encoder and decoder
	source *GRU
	target *GRU

	wHH2, bH2 *Parameter
	wH2M, bM  *Parameter
	wH2S, bS  *Parameter
	wZH0, bH0 *Parameter
	out       outputLayer
}

func NewVariationalLM(cfg params.TrainingConfig, vocabSize int, rng *rand.Rand, noise NoiseSource) (*VariationalLM, error) {
	cfg.Model = params.ModelVAE
	if err := checkShape(cfg, vocabSize); err != nil {
		return nil, err
	}
	pc := NewParameterCollection(rng)
	m := &VariationalLM{
		pc:           pc,
		noise:        noise,
		vocabSize:    vocabSize,
		noiseSamples: cfg.NoiseSamples,
		hiddenDim:    cfg.HiddenDim,
	}
	m.source = NewGRU(pc, "enc", cfg.InputDim, cfg.HiddenDim)
	m.target = NewGRU(pc, "dec", cfg.InputDim, cfg.HiddenDim)

	m.wHH2 = pc.AddMatrix("W_hh2", cfg.Hidden2Dim, cfg.HiddenDim)
	m.bH2 = pc.AddVector("b_h2", cfg.Hidden2Dim)
	m.wH2M = pc.AddMatrix("W_h2m", cfg.LatentDim, cfg.Hidden2Dim)
	m.bM = pc.AddVector("b_m", cfg.LatentDim)
	m.wH2S = pc.AddMatrix("W_h2s", cfg.LatentDim, cfg.Hidden2Dim)
	m.bS = pc.AddVector("b_s", cfg.LatentDim)
	m.wZH0 = pc.AddMatrix("W_zh0", cfg.HiddenDim, cfg.LatentDim)
	m.bH0 = pc.AddVector("b_h0", cfg.HiddenDim)
	m.out = outputLayer{
		w:    pc.AddMatrix("W_hv", vocabSize, cfg.HiddenDim),
		bias: pc.AddVector("b_v", vocabSize),
	}
	m.lookup = pc.AddLookup("lookup", vocabSize, cfg.InputDim)
	return m, nil
}

func (m *VariationalLM) Name() string                     { return params.ModelVAE }
func (m *VariationalLM) Parameters() *ParameterCollection { return m.pc }

// Encode runs the source GRU over every token of each sentence from a zero
// state and maps the final states to posterior means and log-variances.
func (m *VariationalLM) Encode(b *Binding, sents [][]int) (*Posterior, error) {
	if err := checkBatch(sents, m.vocabSize); err != nil {
		return nil, err
	}
	xs := make([]*G.Node, len(sents[0]))
	for t := range xs {
		var err error
		if xs[t], err = b.Embed(m.lookup, column(sents, t)); err != nil {
			return nil, err
		}
	}
	states, err := m.source.Run(b, b.Zeros(len(sents), m.hiddenDim), xs)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	pre, err := affine(b, m.wHH2, m.bH2, states[len(states)-1])
	if err != nil {
		return nil, err
	}
	h2, err := G.Tanh(pre)
	if err != nil {
		return nil, err
	}
	mean, err := affine(b, m.wH2M, m.bM, h2)
	if err != nil {
		return nil, err
	}
	logvar, err := affine(b, m.wH2S, m.bS, h2)
	if err != nil {
		return nil, err
	}
	return &Posterior{Mean: mean, LogVar: logvar}, nil
}

// Decode initializes the target GRU from the rows of z and scores row i of
// z against sents[i] with teacher forcing. It emits exactly n-1 steps for
// sentences of n ids.
func (m *VariationalLM) Decode(b *Binding, z *G.Node, sents [][]int) (*Decoding, error) {
	if err := checkBatch(sents, m.vocabSize); err != nil {
		return nil, err
	}
	if rows := z.Shape()[0]; rows != len(sents) {
		return nil, fmt.Errorf("decode: %d latent rows for %d sentences", rows, len(sents))
	}
	h0, err := affine(b, m.wZH0, m.bH0, z)
	if err != nil {
		return nil, err
	}
	steps, err := teacherForced(b, m.target, m.out, m.lookup, h0, sents)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	loss, err := G.ReduceAdd(steps)
	if err != nil {
		return nil, err
	}
	return &Decoding{Loss: loss, Steps: steps}, nil
}

// ForwardTerms encodes the batch once, draws noise_samples independent
// latents per sentence and decodes all of them as one stack of rows.
func (m *VariationalLM) ForwardTerms(b *Binding, sents [][]int) (*Terms, error) {
	post, err := m.Encode(b, sents)
	if err != nil {
		return nil, err
	}
	kl, err := KL(post)
	if err != nil {
		return nil, fmt.Errorf("kl: %w", err)
	}
	zs := make([]*G.Node, m.noiseSamples)
	for i := range zs {
		if zs[i], err = Reparameterize(b, post, m.noise); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
	}
	z := zs[0]
	if len(zs) > 1 {
		if z, err = G.Concat(0, zs...); err != nil {
			return nil, fmt.Errorf("stack samples: %w", err)
		}
	}
	dec, err := m.Decode(b, z, repeatRows(sents, m.noiseSamples))
	if err != nil {
		return nil, err
	}
	loss, err := ComposeLoss(kl, dec.Loss, m.noiseSamples)
	if err != nil {
		return nil, err
	}
	return &Terms{Posterior: post, KL: kl, Recon: dec.Loss, Samples: m.noiseSamples, Loss: loss}, nil
}

func (m *VariationalLM) Forward(b *Binding, sent []int) (*G.Node, error) {
	return m.ForwardBatch(b, [][]int{sent})
}

func (m *VariationalLM) ForwardBatch(b *Binding, sents [][]int) (*G.Node, error) {
	t, err := m.ForwardTerms(b, sents)
	if err != nil {
		return nil, err
	}
	return t.Loss, nil
}
