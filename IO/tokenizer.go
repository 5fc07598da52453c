package IO

import (
	"fmt"

	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/model/wordlevel"
	"github.com/sugarme/tokenizer/pretokenizer"

	"github.com/manningwu07/VaeLM/params"
)

// Dictionary maps whitespace-separated tokens to dense ids. It grows while
// the corpus is scanned and is frozen before training; once frozen every
// out-of-vocabulary token maps to the unknown-token id.
type Dictionary struct {
	vocab  map[string]int // shared with the word-level model
	tokens []string
	frozen bool

	bosTok, eosTok, unkTok string

	tok *tk.Tokenizer
}

// NewDictionary reserves ids 0, 1 and 2 for the begin, end and unknown sentinels.
func NewDictionary(bos, eos, unk string) *Dictionary {
	d := &Dictionary{
		vocab:  make(map[string]int, 1<<12),
		bosTok: bos,
		eosTok: eos,
		unkTok: unk,
	}
	for _, s := range []string{bos, eos, unk} {
		d.add(s)
	}
	d.initTokenizer()
	return d
}

// DictionaryFromVocabulary rebuilds a frozen dictionary from an exported vocabulary.
func DictionaryFromVocabulary(v params.Vocabulary, bos, eos, unk string) (*Dictionary, error) {
	for _, s := range []string{bos, eos, unk} {
		if _, ok := v.TokenToID[s]; !ok {
			return nil, fmt.Errorf("vocabulary is missing sentinel %q", s)
		}
	}
	d := &Dictionary{
		vocab:  make(map[string]int, len(v.IDToToken)),
		tokens: make([]string, len(v.IDToToken)),
		bosTok: bos,
		eosTok: eos,
		unkTok: unk,
	}
	for id, t := range v.IDToToken {
		if got, ok := v.TokenToID[t]; !ok || got != id {
			return nil, fmt.Errorf("vocabulary is not bijective at id %d (%q)", id, t)
		}
		d.vocab[t] = id
		d.tokens[id] = t
	}
	d.initTokenizer()
	d.frozen = true
	return d, nil
}

func (d *Dictionary) initTokenizer() {
	// wordlevel.New never fails; it keeps a reference to d.vocab so ids
	// added while scanning are visible to the model.
	model, _ := wordlevel.New(d.vocab, d.unkTok)
	d.tok = tk.NewTokenizer(model)
	d.tok.WithPreTokenizer(pretokenizer.NewWhitespaceSplit())
}

func (d *Dictionary) add(t string) int {
	if id, ok := d.vocab[t]; ok {
		return id
	}
	id := len(d.tokens)
	d.vocab[t] = id
	d.tokens = append(d.tokens, t)
	return id
}

// Convert returns the id of t, adding it while the dictionary is unfrozen.
func (d *Dictionary) Convert(t string) int {
	if id, ok := d.vocab[t]; ok {
		return id
	}
	if d.frozen {
		return d.vocab[d.unkTok]
	}
	return d.add(t)
}

// Encode wraps a raw line in the sentinels and returns the word-level
// model's ids. While the dictionary grows, tokens the model reported as
// unknown are added first.
func (d *Dictionary) Encode(line string) ([]int, error) {
	wrapped := d.bosTok + " " + line + " " + d.eosTok
	enc, err := d.tok.EncodeSingle(wrapped)
	if err != nil {
		return nil, fmt.Errorf("tokenize %q: %w", wrapped, err)
	}
	ids := append([]int(nil), enc.Ids...)
	if d.frozen {
		return ids, nil
	}
	unk := d.UnkID()
	for i, id := range ids {
		if id == unk && enc.Tokens[i] != d.unkTok {
			ids[i] = d.Convert(enc.Tokens[i])
		}
	}
	return ids, nil
}

func (d *Dictionary) Freeze()      { d.frozen = true }
func (d *Dictionary) Frozen() bool { return d.frozen }
func (d *Dictionary) Size() int    { return len(d.tokens) }
func (d *Dictionary) BOSID() int   { return d.vocab[d.bosTok] }
func (d *Dictionary) EOSID() int   { return d.vocab[d.eosTok] }
func (d *Dictionary) UnkID() int   { return d.vocab[d.unkTok] }

// Token returns the surface form of id.
func (d *Dictionary) Token(id int) (string, bool) {
	if id < 0 || id >= len(d.tokens) {
		return "", false
	}
	return d.tokens[id], true
}

// Vocabulary returns a copy of the current mapping.
func (d *Dictionary) Vocabulary() params.Vocabulary {
	tok2id := make(map[string]int, len(d.vocab))
	for t, id := range d.vocab {
		tok2id[t] = id
	}
	return params.Vocabulary{
		TokenToID: tok2id,
		IDToToken: append([]string(nil), d.tokens...),
	}
}
