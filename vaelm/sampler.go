package vaelm

import (
	G "gorgonia.org/gorgonia"
)

// Reparameterize draws z = mean + exp(0.5·logvar) ⊙ ε with a fresh ε from
// noise, shaped like the mean. Gradients flow to mean and logvar, never to ε.
func Reparameterize(b *Binding, post *Posterior, noise NoiseSource) (*G.Node, error) {
	half, err := G.Mul(post.LogVar, G.NewConstant(0.5))
	if err != nil {
		return nil, err
	}
	std, err := G.Exp(half)
	if err != nil {
		return nil, err
	}
	shape := post.Mean.Shape()
	eps := b.Input("eps", noise.Sample(shape.TotalSize()), shape...)
	scaled, err := G.HadamardProd(std, eps)
	if err != nil {
		return nil, err
	}
	return G.Add(post.Mean, scaled)
}
