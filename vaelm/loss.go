package vaelm

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// KL is the divergence of N(mean, exp(logvar)) from N(0, I), summed over
// rows: 0.5 · Σ(exp(logvar) + mean² − 1 − logvar).
func KL(post *Posterior) (*G.Node, error) {
	ev, err := G.Exp(post.LogVar)
	if err != nil {
		return nil, err
	}
	m2, err := G.Square(post.Mean)
	if err != nil {
		return nil, err
	}
	s, err := G.Add(ev, m2)
	if err != nil {
		return nil, err
	}
	if s, err = G.Sub(s, post.LogVar); err != nil {
		return nil, err
	}
	total, err := G.Sum(s)
	if err != nil {
		return nil, err
	}
	n := post.Mean.Shape().TotalSize()
	if total, err = G.Sub(total, G.NewConstant(float64(n))); err != nil {
		return nil, err
	}
	return G.Mul(total, G.NewConstant(0.5))
}

// ComposeLoss is kl plus recon averaged over the noise samples it sums.
func ComposeLoss(kl, recon *G.Node, samples int) (*G.Node, error) {
	if samples < 1 {
		return nil, fmt.Errorf("compose loss: %d noise samples", samples)
	}
	mean := recon
	if samples > 1 {
		var err error
		if mean, err = G.Mul(recon, G.NewConstant(1/float64(samples))); err != nil {
			return nil, err
		}
	}
	return G.Add(kl, mean)
}
