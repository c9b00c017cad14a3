// Package tokenizer normalises raw text into a lazy sequence of 64-bit
// token hashes (spec §4.1). Tokens are lower-cased ASCII runs of
// [a-z0-9]; everything else is a separator. Adjacent unigrams can be
// combined into n-grams up to a configured width before hashing.
package tokenizer

import (
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"

	"github.com/alexandria-go/alexidx/internal/apierr"
)

// ngramSeparator joins adjacent unigrams before hashing an n-gram. Any
// byte outside [a-z0-9] works since it can never appear inside a unigram;
// 0x1F (ASCII unit separator) keeps the joined string unambiguous.
const ngramSeparator = byte(0x1F)

// Config controls tokenizer behaviour.
type Config struct {
	// MinLen is the minimum accepted unigram length. Spec default: 2.
	MinLen int
	// MaxLen is the maximum accepted unigram length.
	MaxLen int
	// NGrams is the maximum n-gram width to emit in addition to
	// unigrams. 1 means unigrams only.
	NGrams int
	// Strict rejects malformed UTF-8 with apierr.ErrTokenization instead
	// of silently passing the offending bytes through.
	Strict bool
	// StopWords is the set of unigrams to drop. Nil uses DefaultStopWords.
	StopWords map[string]struct{}
}

// DefaultConfig mirrors the defaults implied by spec §4.1.
func DefaultConfig() Config {
	return Config{
		MinLen:    2,
		MaxLen:    32,
		NGrams:    1,
		Strict:    false,
		StopWords: DefaultStopWords,
	}
}

// DefaultStopWords is a small, fixed English stop-word set. Spec §4.1
// only requires "a fixed stop-word set" without naming one; this list is
// a deliberate, documented choice (see DESIGN.md).
var DefaultStopWords = func() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "of", "at", "by",
		"for", "with", "about", "against", "between", "into", "through",
		"during", "before", "after", "above", "below", "to", "from",
		"up", "down", "in", "out", "on", "off", "over", "under", "is",
		"are", "was", "were", "be", "been", "being", "have", "has",
		"had", "do", "does", "did", "this", "that", "these", "those",
		"it", "its", "as", "not", "no", "so", "than", "too", "very",
		"can", "will", "just",
	}
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}()

// Hash returns the stable 64-bit hash for a normalised token string. Both
// ingestion (shard build) and query evaluation must use this function so
// the same text always routes to the same posting list.
func Hash(token string) uint64 {
	return xxhash.Sum64String(token)
}

// Tokenizer lazily scans text into a sequence of token hashes.
type Tokenizer struct {
	data []byte
	pos  int
	cfg  Config

	ring    []string // most recent unigrams, newest last, capped at cfg.NGrams
	pending []uint64 // hashes queued from the last unigram step

	err error
}

// New creates a Tokenizer over text using cfg. If cfg.StopWords is nil,
// DefaultStopWords is used.
func New(text []byte, cfg Config) *Tokenizer {
	if cfg.StopWords == nil {
		cfg.StopWords = DefaultStopWords
	}
	if cfg.NGrams < 1 {
		cfg.NGrams = 1
	}
	return &Tokenizer{data: text, cfg: cfg}
}

// Err returns the first tokenization error encountered, if any. Only ever
// non-nil when cfg.Strict is set and the input contains malformed UTF-8.
func (t *Tokenizer) Err() error { return t.err }

// Next advances the tokenizer and returns the next token hash. ok is false
// once the input is exhausted or a strict-mode error has occurred (check
// Err in that case).
func (t *Tokenizer) Next() (hash uint64, ok bool) {
	if len(t.pending) > 0 {
		h := t.pending[0]
		t.pending = t.pending[1:]
		return h, true
	}
	if t.err != nil {
		return 0, false
	}

	for {
		token, scanned := t.nextRawToken()
		if !scanned {
			return 0, false
		}
		if t.err != nil {
			return 0, false
		}
		if len(token) < t.cfg.MinLen || len(token) > t.cfg.MaxLen {
			continue
		}
		if _, stop := t.cfg.StopWords[token]; stop {
			continue
		}

		t.pushRing(token)
		t.queueNGrams()
		if len(t.pending) == 0 {
			continue
		}
		h := t.pending[0]
		t.pending = t.pending[1:]
		return h, true
	}
}

// pushRing appends token to the n-gram ring, evicting the oldest entry
// once the ring reaches cfg.NGrams width.
func (t *Tokenizer) pushRing(token string) {
	t.ring = append(t.ring, token)
	if len(t.ring) > t.cfg.NGrams {
		t.ring = t.ring[len(t.ring)-t.cfg.NGrams:]
	}
}

// queueNGrams emits the unigram plus every n-gram ending at the ring's
// newest entry, for n up to min(cfg.NGrams, len(ring)).
func (t *Tokenizer) queueNGrams() {
	t.pending = append(t.pending, Hash(t.ring[len(t.ring)-1]))
	for n := 2; n <= t.cfg.NGrams && n <= len(t.ring); n++ {
		start := len(t.ring) - n
		buf := make([]byte, 0, 16*n)
		for i := start; i < len(t.ring); i++ {
			if i > start {
				buf = append(buf, ngramSeparator)
			}
			buf = append(buf, t.ring[i]...)
		}
		t.pending = append(t.pending, Hash(string(buf)))
	}
}

// nextRawToken scans forward from t.pos to the next maximal run of
// case-folded [a-z0-9] bytes, treating everything else as a separator.
func (t *Tokenizer) nextRawToken() (string, bool) {
	n := len(t.data)
	for t.pos < n {
		b := t.data[t.pos]
		if isAlnum(b) {
			break
		}
		if t.cfg.Strict && b >= 0x80 {
			if !t.advanceRune() {
				return "", false
			}
			continue
		}
		t.pos++
	}
	if t.pos >= n {
		return "", false
	}

	buf := make([]byte, 0, 16)
	for t.pos < n {
		b := t.data[t.pos]
		if isAlnum(b) {
			buf = append(buf, foldLower(b))
			t.pos++
			continue
		}
		break
	}
	return string(buf), true
}

// advanceRune validates and skips one UTF-8 rune starting at t.pos when in
// strict mode; returns false and sets t.err on malformed input.
func (t *Tokenizer) advanceRune() bool {
	r, size := utf8.DecodeRune(t.data[t.pos:])
	if r == utf8.RuneError && size <= 1 {
		t.err = apierr.Wrap(apierr.KindMalformedQuery, "invalid UTF-8 byte sequence", apierr.ErrTokenization)
		return false
	}
	t.pos += size
	return true
}

func isAlnum(b byte) bool {
	lower := foldLower(b)
	return (lower >= 'a' && lower <= 'z') || (lower >= '0' && lower <= '9')
}

func foldLower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b - 'A' + 'a'
	}
	return b
}

// All drains t into a slice of hashes. Convenience for short queries; the
// shard builder and long documents should use Next directly to stay
// streaming.
func All(text []byte, cfg Config) ([]uint64, error) {
	tk := New(text, cfg)
	var hashes []uint64
	for {
		h, ok := tk.Next()
		if !ok {
			break
		}
		hashes = append(hashes, h)
	}
	if tk.Err() != nil {
		return nil, tk.Err()
	}
	return hashes, nil
}

// Words returns the filtered, case-folded unigrams of text in order,
// skipping n-gram emission entirely. Callers that need to report on or
// display the surface form of a token (rather than only its hash), such
// as per-word document-frequency statistics, use this instead of All.
func Words(text []byte, cfg Config) ([]string, error) {
	cfg.NGrams = 1
	tk := New(text, cfg)
	var words []string
	for {
		token, scanned := tk.nextRawToken()
		if !scanned {
			break
		}
		if tk.err != nil {
			break
		}
		if len(token) < tk.cfg.MinLen || len(token) > tk.cfg.MaxLen {
			continue
		}
		if _, stop := tk.cfg.StopWords[token]; stop {
			continue
		}
		words = append(words, token)
	}
	if tk.err != nil {
		return nil, tk.err
	}
	return words, nil
}
