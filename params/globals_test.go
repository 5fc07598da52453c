package params

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func validConfig() TrainingConfig {
	c := Defaults()
	c.TrainPath = "train.txt"
	return c
}

func TestDefaultsValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		field string
		edit  func(c *TrainingConfig)
	}{
		{"layers", func(c *TrainingConfig) { c.Layers = 2 }},
		{"batch_size", func(c *TrainingConfig) { c.BatchSize = 0 }},
		{"noise_samples", func(c *TrainingConfig) { c.NoiseSamples = 0 }},
		{"latent_dim", func(c *TrainingConfig) { c.LatentDim = 0 }},
		{"model", func(c *TrainingConfig) { c.Model = "lstm" }},
		{"max_epochs", func(c *TrainingConfig) { c.MaxEpochs = 0 }},
		{"report_every", func(c *TrainingConfig) { c.ReportEvery = 0 }},
		{"train_path", func(c *TrainingConfig) { c.TrainPath = "" }},
	}
	for _, tc := range cases {
		c := validConfig()
		tc.edit(&c)
		err := c.Validate()
		var ce *ConfigError
		if !errors.As(err, &ce) {
			t.Fatalf("%s: want *ConfigError, got %v", tc.field, err)
		}
		if ce.Field != tc.field {
			t.Errorf("field = %q, want %q", ce.Field, tc.field)
		}
	}
}

func TestLoadJSONOverlays(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	if err := os.WriteFile(path, []byte(`{"hidden_dim": 16, "batch_size": 4, "model": "rnn"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	c := Defaults()
	if err := LoadJSON(path, &c); err != nil {
		t.Fatal(err)
	}
	if c.HiddenDim != 16 || c.BatchSize != 4 || c.Model != ModelRNN {
		t.Fatalf("overlay not applied: %+v", c)
	}
	if c.LatentDim != Defaults().LatentDim {
		t.Fatalf("untouched field changed: latent_dim=%d", c.LatentDim)
	}
}

func TestLoadJSONUnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	if err := os.WriteFile(path, []byte(`{"hiden_dim": 16}`), 0o644); err != nil {
		t.Fatal(err)
	}
	c := Defaults()
	if err := LoadJSON(path, &c); err == nil {
		t.Fatal("expected error for misspelled option")
	}
}
