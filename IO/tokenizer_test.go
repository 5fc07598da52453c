package IO

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestDictionary() *Dictionary {
	return NewDictionary("<s>", "</s>", "<unk>")
}

func TestDictionaryReservesSentinels(t *testing.T) {
	d := newTestDictionary()
	if d.BOSID() != 0 || d.EOSID() != 1 || d.UnkID() != 2 {
		t.Fatalf("sentinel ids = %d,%d,%d; want 0,1,2", d.BOSID(), d.EOSID(), d.UnkID())
	}
	if d.Size() != 3 {
		t.Fatalf("size = %d, want 3", d.Size())
	}
}

func TestDictionaryGrowsThenFreezes(t *testing.T) {
	d := newTestDictionary()
	a := d.Convert("the")
	b := d.Convert("cat")
	if a != 3 || b != 4 || d.Convert("the") != a {
		t.Fatalf("unexpected ids the=%d cat=%d", a, b)
	}
	d.Freeze()
	if got := d.Convert("dog"); got != d.UnkID() {
		t.Fatalf("frozen OOV id = %d, want unk %d", got, d.UnkID())
	}
	if d.Size() != 5 {
		t.Fatalf("frozen dictionary grew to %d", d.Size())
	}
}

func TestEncodeWrapsSentence(t *testing.T) {
	d := newTestDictionary()
	ids, err := d.Encode("the cat sat")
	if err != nil {
		t.Fatal(err)
	}
	want := []int{0, 3, 4, 5, 1}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
}

func TestEncodeUsesModelIDs(t *testing.T) {
	d := newTestDictionary()
	ids, err := d.Encode("a b a c b")
	if err != nil {
		t.Fatal(err)
	}
	want := []int{0, 3, 4, 3, 5, 4, 1}
	for i := range want {
		if len(ids) != len(want) || ids[i] != want[i] {
			t.Fatalf("growing ids = %v, want %v", ids, want)
		}
	}

	d.Freeze()
	ids, err = d.Encode("c zzz <unk> a")
	if err != nil {
		t.Fatal(err)
	}
	want = []int{0, 5, 2, 2, 3, 1}
	for i := range want {
		if len(ids) != len(want) || ids[i] != want[i] {
			t.Fatalf("frozen ids = %v, want %v", ids, want)
		}
	}
	if d.Size() != 6 {
		t.Fatalf("frozen dictionary grew to %d", d.Size())
	}
}

func TestEncodeBlankLine(t *testing.T) {
	d := newTestDictionary()
	ids, err := d.Encode("")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != d.BOSID() || ids[1] != d.EOSID() {
		t.Fatalf("blank line = %v, want [bos eos]", ids)
	}
}

func TestReadCorpus(t *testing.T) {
	dir := t.TempDir()
	train := filepath.Join(dir, "train.txt")
	dev := filepath.Join(dir, "dev.txt")
	if err := os.WriteFile(train, []byte("a b\nb c a\r\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dev, []byte("a z\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	d := newTestDictionary()
	data, err := ReadCorpus(train, d)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 2 || len(data[0]) != 4 || len(data[1]) != 5 {
		t.Fatalf("unexpected corpus shape %v", data)
	}
	d.Freeze()

	devData, err := ReadCorpus(dev, d)
	if err != nil {
		t.Fatal(err)
	}
	if devData[0][2] != d.UnkID() {
		t.Fatalf("dev OOV not mapped to unk: %v", devData[0])
	}
	if d.Size() != 6 {
		t.Fatalf("dev pass grew the dictionary to %d", d.Size())
	}
}

func TestReadCorpusMissingFile(t *testing.T) {
	_, err := ReadCorpus(filepath.Join(t.TempDir(), "nope.txt"), newTestDictionary())
	var fe *FileError
	if !errors.As(err, &fe) {
		t.Fatalf("want *FileError, got %v", err)
	}
	if !strings.Contains(fe.Error(), "nope.txt") {
		t.Fatalf("error does not name the path: %v", fe)
	}
}

func TestVocabularyRoundTrip(t *testing.T) {
	d := newTestDictionary()
	if _, err := d.Encode("x y z"); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "vocab.json")
	if err := ExportVocabJSON(path, d.Vocabulary()); err != nil {
		t.Fatal(err)
	}
	v, err := ImportVocabJSON(path)
	if err != nil {
		t.Fatal(err)
	}
	back, err := DictionaryFromVocabulary(v, "<s>", "</s>", "<unk>")
	if err != nil {
		t.Fatal(err)
	}
	if !back.Frozen() || back.Size() != d.Size() {
		t.Fatalf("restored frozen=%v size=%d, want frozen size %d", back.Frozen(), back.Size(), d.Size())
	}
	for id := 0; id < d.Size(); id++ {
		a, _ := d.Token(id)
		b, _ := back.Token(id)
		if a != b {
			t.Fatalf("id %d: %q vs %q", id, a, b)
		}
	}
	if back.Convert("y") != d.Convert("y") || back.Convert("nope") != back.UnkID() {
		t.Fatal("restored dictionary disagrees with original")
	}
}

func TestDictionaryFromVocabularyMissingSentinel(t *testing.T) {
	v := newTestDictionary().Vocabulary()
	if _, err := DictionaryFromVocabulary(v, "<bos>", "</s>", "<unk>"); err == nil {
		t.Fatal("expected error for missing sentinel")
	}
}

func TestComputeDataStats(t *testing.T) {
	d := newTestDictionary()
	data := [][]int{{0, 2, 1}, {0, 3, 4, 2, 1}}
	s := ComputeDataStats(data, d)
	if s.Sentences != 2 || s.Tokens != 8 || s.MinLen != 3 || s.MaxLen != 5 || s.Unknown != 2 {
		t.Fatalf("stats = %+v", s)
	}
}
