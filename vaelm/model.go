package vaelm

import (
	"errors"
	"fmt"
	"math/rand/v2"

	G "gorgonia.org/gorgonia"

	"github.com/manningwu07/VaeLM/params"
)

// LanguageModel builds sentence losses into a Binding's graph.
type LanguageModel interface {
	Name() string
	// Forward is the loss of one sentence.
	Forward(b *Binding, sent []int) (*G.Node, error)
	// ForwardBatch is the summed loss of sentences sharing one length,
	// computed as a single row-batched pass.
	ForwardBatch(b *Binding, sents [][]int) (*G.Node, error)
	Parameters() *ParameterCollection
}

// New builds the model named by cfg.Model over a vocabulary of vocabSize ids.
func New(cfg params.TrainingConfig, vocabSize int, rng *rand.Rand) (LanguageModel, error) {
	if err := checkShape(cfg, vocabSize); err != nil {
		return nil, err
	}
	switch cfg.Model {
	case params.ModelVAE:
		return NewVariationalLM(cfg, vocabSize, rng, NewGaussianNoise(rng.Uint64()))
	case params.ModelRNN:
		return NewRnnLM(cfg, vocabSize, rng)
	default:
		return nil, &params.ConfigError{Field: "model", Reason: fmt.Sprintf("unknown model %q", cfg.Model)}
	}
}

func checkShape(cfg params.TrainingConfig, vocabSize int) error {
	if cfg.Layers != 1 {
		return &params.ConfigError{Field: "layers", Reason: fmt.Sprintf("multi-layer recurrent stacks are not supported (got %d)", cfg.Layers)}
	}
	if vocabSize <= 0 {
		return &params.ConfigError{Field: "vocab", Reason: fmt.Sprintf("vocabulary size must be > 0 (got %d)", vocabSize)}
	}
	type dim struct {
		field string
		v     int
	}
	dims := []dim{{"input_dim", cfg.InputDim}, {"hidden_dim", cfg.HiddenDim}}
	if cfg.Model == params.ModelVAE {
		dims = append(dims, dim{"hidden2_dim", cfg.Hidden2Dim}, dim{"latent_dim", cfg.LatentDim})
		if cfg.NoiseSamples < 1 {
			return &params.ConfigError{Field: "noise_samples", Reason: fmt.Sprintf("must be >= 1 (got %d)", cfg.NoiseSamples)}
		}
	}
	for _, d := range dims {
		if d.v <= 0 {
			return &params.ConfigError{Field: d.field, Reason: fmt.Sprintf("must be > 0 (got %d)", d.v)}
		}
	}
	return nil
}

// checkSentence rejects sentences that cannot be scored.
func checkSentence(sent []int, vocabSize int) error {
	if len(sent) < 2 {
		return fmt.Errorf("sentence of %d ids is too short to score", len(sent))
	}
	for i, id := range sent {
		if id < 0 || id >= vocabSize {
			return fmt.Errorf("id %d at position %d outside vocabulary of %d", id, i, vocabSize)
		}
	}
	return nil
}

// checkBatch requires a non-empty batch of scorable sentences of one length.
func checkBatch(sents [][]int, vocabSize int) error {
	if len(sents) == 0 {
		return errors.New("empty batch")
	}
	for i, s := range sents {
		if err := checkSentence(s, vocabSize); err != nil {
			return fmt.Errorf("sentence %d: %w", i, err)
		}
		if len(s) != len(sents[0]) {
			return fmt.Errorf("sentence %d has %d ids, batch length is %d", i, len(s), len(sents[0]))
		}
	}
	return nil
}

// column is position t of every sentence.
func column(sents [][]int, t int) []int {
	ids := make([]int, len(sents))
	for i, s := range sents {
		ids[i] = s[t]
	}
	return ids
}

// repeatRows stacks k copies of sents, copy-major.
func repeatRows(sents [][]int, k int) [][]int {
	out := make([][]int, 0, k*len(sents))
	for i := 0; i < k; i++ {
		out = append(out, sents...)
	}
	return out
}

// outputLayer projects hidden states to vocabulary logits.
type outputLayer struct {
	w, bias *Parameter
}

// nll is Σ_rows -log softmax(h·wᵀ + bias)[row, targets[row]].
func (o outputLayer) nll(b *Binding, h *G.Node, targets []int) (*G.Node, error) {
	logits, err := affine(b, o.w, o.bias, h)
	if err != nil {
		return nil, err
	}
	logp, err := G.LogSoftMax(logits)
	if err != nil {
		return nil, err
	}
	vocab, _ := o.w.Value.Dims()
	onehot := make([]float64, len(targets)*vocab)
	for r, id := range targets {
		onehot[r*vocab+id] = 1
	}
	picked, err := G.HadamardProd(logp, b.Input("target", onehot, len(targets), vocab))
	if err != nil {
		return nil, err
	}
	ll, err := G.Sum(picked)
	if err != nil {
		return nil, err
	}
	return G.Neg(ll)
}

// teacherForced runs rnn over positions [0, n-1) of the batch from h0;
// step t scores position t+1 and is summed over rows.
func teacherForced(b *Binding, rnn *GRU, out outputLayer, table *Parameter, h0 *G.Node, sents [][]int) ([]*G.Node, error) {
	n := len(sents[0])
	xs := make([]*G.Node, n-1)
	for t := range xs {
		var err error
		if xs[t], err = b.Embed(table, column(sents, t)); err != nil {
			return nil, err
		}
	}
	states, err := rnn.Run(b, h0, xs)
	if err != nil {
		return nil, err
	}
	steps := make([]*G.Node, len(states))
	for t, h := range states {
		if steps[t], err = out.nll(b, h, column(sents, t+1)); err != nil {
			return nil, fmt.Errorf("step %d: %w", t, err)
		}
	}
	return steps, nil
}
