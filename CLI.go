package main

import (
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/manningwu07/VaeLM/IO"
	"github.com/manningwu07/VaeLM/optimizations"
	"github.com/manningwu07/VaeLM/params"
	"github.com/manningwu07/VaeLM/training"
	"github.com/manningwu07/VaeLM/vaelm"
)

func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "vaelm",
		Short:         "Train variational and recurrent sentence language models",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.AddCommand(newTrainCmd(out), newExportCmd(out))
	return root
}

func newTrainCmd(out io.Writer) *cobra.Command {
	cfg := params.Config
	var configPath string

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a model on a one-sentence-per-line corpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				if err := applyConfigFile(cmd.Flags(), configPath, &cfg); err != nil {
					return err
				}
			}
			return runTrain(cfg, out)
		},
	}

	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "JSON file with training options (flags override it)")
	f.StringVar(&cfg.Model, "model", cfg.Model, "model kind: vae or rnn")
	f.IntVar(&cfg.Layers, "layers", cfg.Layers, "recurrent layers (only 1 is supported)")
	f.IntVar(&cfg.InputDim, "input-dim", cfg.InputDim, "token embedding width")
	f.IntVar(&cfg.HiddenDim, "hidden-dim", cfg.HiddenDim, "GRU state width")
	f.IntVar(&cfg.Hidden2Dim, "hidden2-dim", cfg.Hidden2Dim, "encoder projection width")
	f.IntVar(&cfg.LatentDim, "latent-dim", cfg.LatentDim, "latent code width")
	f.IntVar(&cfg.NoiseSamples, "noise-samples", cfg.NoiseSamples, "latent draws per sentence")
	f.Float64Var(&cfg.LearningRate, "lr", cfg.LearningRate, "Adam learning rate")
	f.Float64Var(&cfg.AdamBeta1, "adam-beta1", cfg.AdamBeta1, "Adam first moment decay")
	f.Float64Var(&cfg.AdamBeta2, "adam-beta2", cfg.AdamBeta2, "Adam second moment decay")
	f.Float64Var(&cfg.AdamEps, "adam-eps", cfg.AdamEps, "Adam epsilon")
	f.Float64Var(&cfg.GradClip, "grad-clip", cfg.GradClip, "global gradient norm clip (<=0 disables)")
	f.IntVar(&cfg.MaxEpochs, "epochs", cfg.MaxEpochs, "training epochs")
	f.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "max sentences per length bucket")
	f.IntVar(&cfg.ReportEvery, "report-every", cfg.ReportEvery, "report after this many sentences")
	f.Int64Var(&cfg.Seed, "seed", cfg.Seed, "RNG seed")
	f.BoolVar(&cfg.SkipNonFinite, "skip-non-finite", cfg.SkipNonFinite, "drop the update of a batch with NaN/Inf loss")
	f.StringVar(&cfg.TrainPath, "train", cfg.TrainPath, "training corpus")
	f.StringVar(&cfg.DevPath, "dev", cfg.DevPath, "validation corpus (optional)")
	f.StringVar(&cfg.VocabOut, "vocab-out", cfg.VocabOut, "write the frozen vocabulary to this JSON file")
	f.StringVar(&cfg.CSVLog, "csv-log", cfg.CSVLog, "write one CSV row per epoch to this file")
	f.StringVar(&cfg.BOS, "bos", cfg.BOS, "sentence start token")
	f.StringVar(&cfg.EOS, "eos", cfg.EOS, "sentence end token")
	f.StringVar(&cfg.UNK, "unk", cfg.UNK, "unknown token")
	return cmd
}

// applyConfigFile overlays a JSON config onto cfg, then re-applies every
// flag given on the command line so flags win over the file.
func applyConfigFile(flags *pflag.FlagSet, path string, cfg *params.TrainingConfig) error {
	changed := map[string]string{}
	flags.Visit(func(f *pflag.Flag) {
		if f.Name != "config" {
			changed[f.Name] = f.Value.String()
		}
	})
	if err := params.LoadJSON(path, cfg); err != nil {
		return err
	}
	for name, v := range changed {
		if err := flags.Set(name, v); err != nil {
			return fmt.Errorf("re-apply --%s: %w", name, err)
		}
	}
	return nil
}

func runTrain(cfg params.TrainingConfig, out io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	dict := IO.NewDictionary(cfg.BOS, cfg.EOS, cfg.UNK)
	train, err := IO.ReadCorpus(cfg.TrainPath, dict)
	if err != nil {
		return err
	}
	dict.Freeze()
	IO.LogDataStats(out, train, dict, "train")

	var dev [][]int
	if cfg.DevPath != "" {
		if dev, err = IO.ReadCorpus(cfg.DevPath, dict); err != nil {
			return err
		}
		IO.LogDataStats(out, dev, dict, "dev")
	}

	if cfg.VocabOut != "" {
		if err := IO.ExportVocabJSON(cfg.VocabOut, dict.Vocabulary()); err != nil {
			return err
		}
		fmt.Fprintf(out, "Exported vocabulary to %s\n", cfg.VocabOut)
	}

	rng := rand.New(rand.NewPCG(uint64(cfg.Seed), uint64(cfg.Seed)^0x9e3779b97f4a7c15))
	model, err := vaelm.New(cfg, dict.Size(), rng)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s model: %d parameters\n", model.Name(), model.Parameters().Size())

	opt := optimizations.NewAdam(cfg.LearningRate, cfg.AdamBeta1, cfg.AdamBeta2, cfg.AdamEps, cfg.GradClip)
	tr, err := training.NewTrainer(cfg, model, opt, train, dev, rng, out)
	if err != nil {
		return err
	}

	t1 := time.Now()
	sum, err := tr.Run()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nTime taken to train: %s (%d updates)\n", time.Since(t1), sum.Updates)
	return nil
}

type exportOptions struct {
	in, out, vocab string
	shardBytes     int64
	force          bool
	bos, eos, unk  string
}

func newExportCmd(out io.Writer) *cobra.Command {
	opts := exportOptions{bos: params.Config.BOS, eos: params.Config.EOS, unk: params.Config.UNK}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Encode a corpus into binary id shards plus a vocabulary file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, out)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.in, "in", "", "corpus to encode")
	f.StringVar(&opts.out, "out", "", "shard prefix")
	f.StringVar(&opts.vocab, "vocab", "", "vocabulary JSON (reused when present, default <out>.vocab.json)")
	f.Int64Var(&opts.shardBytes, "shard-bytes", 5*1024*1024*1024, "max bytes per shard")
	f.BoolVar(&opts.force, "force", false, "rebuild vocabulary and shards even if cached")
	f.StringVar(&opts.bos, "bos", opts.bos, "sentence start token")
	f.StringVar(&opts.eos, "eos", opts.eos, "sentence end token")
	f.StringVar(&opts.unk, "unk", opts.unk, "unknown token")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func runExport(opts exportOptions, out io.Writer) error {
	vocabPath := opts.vocab
	if vocabPath == "" {
		vocabPath = opts.out + ".vocab.json"
	}

	var dict *IO.Dictionary
	if _, err := os.Stat(vocabPath); err == nil && !opts.force {
		v, err := IO.ImportVocabJSON(vocabPath)
		if err != nil {
			return err
		}
		if dict, err = IO.DictionaryFromVocabulary(v, opts.bos, opts.eos, opts.unk); err != nil {
			return fmt.Errorf("%s: %w", vocabPath, err)
		}
		fmt.Fprintf(out, "Using cached %s\n", vocabPath)
	} else {
		dict = IO.NewDictionary(opts.bos, opts.eos, opts.unk)
	}

	data, err := IO.ReadCorpus(opts.in, dict)
	if err != nil {
		return err
	}
	if !dict.Frozen() {
		dict.Freeze()
		if err := IO.ExportVocabJSON(vocabPath, dict.Vocabulary()); err != nil {
			return err
		}
		fmt.Fprintf(out, "Exported %s\n", vocabPath)
	}
	IO.LogDataStats(out, data, dict, "export")

	if !IO.ShardMissing(opts.out) && !opts.force {
		fmt.Fprintf(out, "Using cached shards %s-*.bin\n", opts.out)
		return nil
	}
	shards, err := IO.ExportTokenIDsBinary(data, opts.out, opts.shardBytes)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Exported %d shard(s) to %s-*.bin\n", shards, opts.out)
	return nil
}
