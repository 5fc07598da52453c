package training

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"strconv"
	"time"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"

	"github.com/manningwu07/VaeLM/IO"
	"github.com/manningwu07/VaeLM/params"
	"github.com/manningwu07/VaeLM/utils"
	"github.com/manningwu07/VaeLM/vaelm"
)

// Optimizer applies one update from gradients aligned with ps.
type Optimizer interface {
	Step(ps []*vaelm.Parameter, grads []*mat.Dense) (float64, error)
}

// NumericAnomaly reports a batch whose loss or gradients are NaN or Inf.
type NumericAnomaly struct {
	Epoch   int
	Batch   IO.Batch
	Loss    float64
	Skipped bool // the optimizer update was dropped
}

func (e *NumericAnomaly) Error() string {
	return fmt.Sprintf("non-finite loss %v in epoch %d, sentences [%d,%d)", e.Loss, e.Epoch, e.Batch.Begin, e.Batch.End())
}

var ErrNoWords = errors.New("batch has no words to score")

// BatchResult is the outcome of one training step.
type BatchResult struct {
	Loss      float64 // summed sentence losses
	Words     int
	Sentences int
	ClipScale float64
	Anomaly   *NumericAnomaly
}

// EpochStats is one row of the epoch log.
type EpochStats struct {
	Epoch      int
	TrainLoss  float64
	TrainWords int
	DevLoss    float64
	DevWords   int
	Duration   time.Duration
}

type Summary struct {
	Epochs  []EpochStats
	Updates int
}

// Perplexity is exp(loss/words).
func Perplexity(loss float64, words int) float64 {
	return math.Exp(loss / float64(words))
}

type Trainer struct {
	cfg   params.TrainingConfig
	model vaelm.LanguageModel
	opt   Optimizer
	rng   *rand.Rand
	out   io.Writer

	train, dev               [][]int
	trainBatches, devBatches []IO.Batch

	epoch   int
	updates int
}

// NewTrainer sorts copies of both corpora by length and buckets them; the
// caller's slices keep their order. dev may be empty.
func NewTrainer(cfg params.TrainingConfig, model vaelm.LanguageModel, opt Optimizer,
	train, dev [][]int, rng *rand.Rand, out io.Writer) (*Trainer, error) {
	if cfg.ReportEvery < 1 {
		return nil, &params.ConfigError{Field: "report_every", Reason: fmt.Sprintf("must be >= 1 (got %d)", cfg.ReportEvery)}
	}
	t := &Trainer{
		cfg:   cfg,
		model: model,
		opt:   opt,
		rng:   rng,
		out:   out,
		train: append([][]int(nil), train...),
		dev:   append([][]int(nil), dev...),
	}
	if t.out == nil {
		t.out = io.Discard
	}
	IO.SortByLength(t.train)
	var err error
	if t.trainBatches, err = IO.CreateBatches(t.train, cfg.BatchSize); err != nil {
		return nil, fmt.Errorf("train batches: %w", err)
	}
	if len(t.dev) > 0 {
		IO.SortByLength(t.dev)
		if t.devBatches, err = IO.CreateBatches(t.dev, cfg.BatchSize); err != nil {
			return nil, fmt.Errorf("dev batches: %w", err)
		}
	}
	return t, nil
}

func (t *Trainer) TrainBatches() []IO.Batch { return t.trainBatches }

// forward builds the summed loss of one same-length batch as a single
// row-batched graph and runs it.
func (t *Trainer) forward(sents [][]int, grads bool) (*vaelm.Result, int, error) {
	words := 0
	for _, s := range sents {
		words += len(s) - 1
	}
	if words <= 0 {
		return nil, 0, ErrNoWords
	}
	b := vaelm.NewBinding(G.NewGraph())
	total, err := t.model.ForwardBatch(b, sents)
	if err != nil {
		return nil, 0, err
	}
	res, err := vaelm.Evaluate(b, total, grads)
	if err != nil {
		return nil, 0, err
	}
	return res, words, nil
}

// Step trains on one batch of the training corpus.
func (t *Trainer) Step(batch IO.Batch) (BatchResult, error) {
	sents := t.train[batch.Begin:batch.End()]
	res, words, err := t.forward(sents, true)
	if err != nil {
		return BatchResult{}, err
	}
	out := BatchResult{Loss: res.Loss, Words: words, Sentences: len(sents), ClipScale: 1}

	if math.IsNaN(res.Loss) || math.IsInf(res.Loss, 0) || !utils.AllFinite(res.Grads...) {
		out.Anomaly = &NumericAnomaly{Epoch: t.epoch, Batch: batch, Loss: res.Loss, Skipped: t.cfg.SkipNonFinite}
		fmt.Fprintf(t.out, "warning: %v\n", out.Anomaly)
		if t.cfg.SkipNonFinite {
			return out, nil
		}
	}
	if out.ClipScale, err = t.opt.Step(res.Params, res.Grads); err != nil {
		return out, err
	}
	t.updates++
	return out, nil
}

// Evaluate scores corpus batch by batch without updating parameters.
func (t *Trainer) Evaluate(corpus [][]int, batches []IO.Batch) (loss float64, words int, err error) {
	for _, b := range batches {
		res, w, err := t.forward(corpus[b.Begin:b.End()], false)
		if err != nil {
			return 0, 0, err
		}
		loss += res.Loss
		words += w
	}
	return loss, words, nil
}

func (t *Trainer) report(loss float64, words, sents int) {
	fmt.Fprintf(t.out, "epoch %d | sents %d | loss/word %.4f | ppl %.2f\n",
		t.epoch, sents, loss/float64(words), Perplexity(loss, words))
}

// Run trains for cfg.MaxEpochs epochs over a freshly shuffled batch order
// each epoch. Reported train figures are running averages since the start
// of the epoch.
func (t *Trainer) Run() (Summary, error) {
	var sum Summary
	logWriter, closeLog, err := t.openLog()
	if err != nil {
		return sum, err
	}
	defer closeLog()

	for t.epoch = 1; t.epoch <= t.cfg.MaxEpochs; t.epoch++ {
		start := time.Now()
		var loss float64
		var words, sents int
		nextReport := t.cfg.ReportEvery

		for _, bi := range t.rng.Perm(len(t.trainBatches)) {
			r, err := t.Step(t.trainBatches[bi])
			if err != nil {
				return sum, fmt.Errorf("epoch %d: %w", t.epoch, err)
			}
			loss += r.Loss
			words += r.Words
			sents += r.Sentences
			if sents >= nextReport {
				t.report(loss, words, sents)
				for nextReport <= sents {
					nextReport += t.cfg.ReportEvery
				}
			}
		}
		t.report(loss, words, sents)

		stats := EpochStats{Epoch: t.epoch, TrainLoss: loss, TrainWords: words}
		if len(t.devBatches) > 0 {
			if stats.DevLoss, stats.DevWords, err = t.Evaluate(t.dev, t.devBatches); err != nil {
				return sum, fmt.Errorf("epoch %d dev: %w", t.epoch, err)
			}
			fmt.Fprintf(t.out, "epoch %d | dev loss/word %.4f | dev ppl %.2f\n",
				t.epoch, stats.DevLoss/float64(stats.DevWords), Perplexity(stats.DevLoss, stats.DevWords))
		}
		stats.Duration = time.Since(start)
		fmt.Fprintf(t.out, "epoch %d done in %v, params norm=%.6g\n", t.epoch, stats.Duration, t.paramNorm())

		if logWriter != nil {
			if err := logWriter.Write(stats.record()); err != nil {
				return sum, err
			}
			logWriter.Flush()
		}
		sum.Epochs = append(sum.Epochs, stats)
	}
	sum.Updates = t.updates
	return sum, nil
}

func (t *Trainer) paramNorm() float64 {
	ps := t.model.Parameters().Params()
	values := make([]*mat.Dense, len(ps))
	for i, p := range ps {
		values[i] = p.Value
	}
	return utils.GlobalNorm(values...)
}

// openLog creates the per-epoch CSV log when cfg.CSVLog is set.
func (t *Trainer) openLog() (*csv.Writer, func(), error) {
	if t.cfg.CSVLog == "" {
		return nil, func() {}, nil
	}
	f, err := os.Create(t.cfg.CSVLog)
	if err != nil {
		return nil, nil, &IO.FileError{Path: t.cfg.CSVLog, Err: err}
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{"epoch", "train_loss_per_word", "train_ppl", "dev_loss_per_word", "dev_ppl", "seconds"}); err != nil {
		f.Close()
		return nil, nil, err
	}
	return w, func() {
		w.Flush()
		f.Close()
	}, nil
}

func (s EpochStats) record() []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
	row := []string{strconv.Itoa(s.Epoch), f(s.TrainLoss / float64(s.TrainWords)), f(Perplexity(s.TrainLoss, s.TrainWords)), "", ""}
	if s.DevWords > 0 {
		row[3] = f(s.DevLoss / float64(s.DevWords))
		row[4] = f(Perplexity(s.DevLoss, s.DevWords))
	}
	return append(row, f(s.Duration.Seconds()))
}
