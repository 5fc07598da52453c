package params

import (
	"encoding/json"
	"fmt"
	"os"
)

// Embed structs and globals
type Vocabulary struct {
	TokenToID map[string]int
	IDToToken []string
}

// Model kinds accepted by TrainingConfig.Model.
const (
	ModelVAE = "vae"
	ModelRNN = "rnn"
)

type TrainingConfig struct {
	// Core model parameters
	Model        string `json:"model"`         // "vae" or "rnn"
	Layers       int    `json:"layers"`        // recurrent layers, only 1 supported
	InputDim     int    `json:"input_dim"`     // token embedding width
	HiddenDim    int    `json:"hidden_dim"`    // GRU state width
	Hidden2Dim   int    `json:"hidden2_dim"`   // encoder projection between GRU and latent
	LatentDim    int    `json:"latent_dim"`    // z width
	NoiseSamples int    `json:"noise_samples"` // reparameterization draws per sentence

	// Optimization parameters
	LearningRate float64 `json:"learning_rate"`
	AdamBeta1    float64 `json:"adam_beta1"` // default 0.9
	AdamBeta2    float64 `json:"adam_beta2"` // default 0.999
	AdamEps      float64 `json:"adam_eps"`   // default 1e-8
	GradClip     float64 `json:"grad_clip"`  // <=0 disables

	MaxEpochs     int   `json:"max_epochs"`
	BatchSize     int   `json:"batch_size"`   // max sentences per length bucket
	ReportEvery   int   `json:"report_every"` // report after this many sentences
	Seed          int64 `json:"seed"`
	SkipNonFinite bool  `json:"skip_non_finite"` // drop the update of a NaN/Inf batch

	// Data
	TrainPath string `json:"train_path"`
	DevPath   string `json:"dev_path"`
	VocabOut  string `json:"vocab_out"`
	CSVLog    string `json:"csv_log"`
	BOS       string `json:"bos"`
	EOS       string `json:"eos"`
	UNK       string `json:"unk"` // as defined in the ptb train file
}

var Config = Defaults()

// Defaults mirrors the hyperparameters used for the PTB runs.
func Defaults() TrainingConfig {
	return TrainingConfig{
		Model:        ModelVAE,
		Layers:       1,
		InputDim:     64,
		HiddenDim:    128,
		Hidden2Dim:   32,
		LatentDim:    10,
		NoiseSamples: 10,

		LearningRate: 0.001,
		AdamBeta1:    0.9,
		AdamBeta2:    0.999,
		AdamEps:      1e-8,
		GradClip:     5.0,

		MaxEpochs:   2,
		BatchSize:   32,
		ReportEvery: 500,
		Seed:        1,

		BOS: "<bos>",
		EOS: "<eos>",
		UNK: "<unk>",
	}
}

// ConfigError reports an invalid hyperparameter. It is always fatal.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

func configErr(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks every option the trainer depends on.
func (c TrainingConfig) Validate() error {
	if c.Model != ModelVAE && c.Model != ModelRNN {
		return configErr("model", "unknown model %q (want %q or %q)", c.Model, ModelVAE, ModelRNN)
	}
	if c.Layers != 1 {
		return configErr("layers", "multi layer rnn not implemented (got %d)", c.Layers)
	}
	dims := []struct {
		name string
		v    int
	}{
		{"input_dim", c.InputDim},
		{"hidden_dim", c.HiddenDim},
		{"hidden2_dim", c.Hidden2Dim},
		{"latent_dim", c.LatentDim},
	}
	for _, d := range dims {
		if d.v <= 0 {
			return configErr(d.name, "must be > 0 (got %d)", d.v)
		}
	}
	if c.NoiseSamples < 1 {
		return configErr("noise_samples", "must be >= 1 (got %d)", c.NoiseSamples)
	}
	if c.BatchSize <= 0 {
		return configErr("batch_size", "must be > 0 (got %d)", c.BatchSize)
	}
	if c.MaxEpochs < 1 {
		return configErr("max_epochs", "must be >= 1 (got %d)", c.MaxEpochs)
	}
	if c.ReportEvery < 1 {
		return configErr("report_every", "must be >= 1 (got %d)", c.ReportEvery)
	}
	if c.LearningRate <= 0 {
		return configErr("learning_rate", "must be > 0 (got %g)", c.LearningRate)
	}
	if c.AdamBeta1 < 0 || c.AdamBeta1 >= 1 {
		return configErr("adam_beta1", "must be in [0,1) (got %g)", c.AdamBeta1)
	}
	if c.AdamBeta2 < 0 || c.AdamBeta2 >= 1 {
		return configErr("adam_beta2", "must be in [0,1) (got %g)", c.AdamBeta2)
	}
	if c.BOS == "" || c.EOS == "" || c.UNK == "" {
		return configErr("bos/eos/unk", "sentinel tokens must be non-empty")
	}
	if c.TrainPath == "" {
		return configErr("train_path", "no training corpus given")
	}
	return nil
}

// LoadJSON overlays the options present in a JSON file onto cfg.
func LoadJSON(path string, cfg *TrainingConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
