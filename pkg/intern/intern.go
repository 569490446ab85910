// Package intern implements the Literal Interner (spec.md §4.A): a
// monotonic bijection between label-value strings and fixed-width value
// tokens, grounded on constraint.py's GlobalInfo.get_or_create_literal.
package intern

import (
	"sync"

	"github.com/Azure/netreach/pkg/npmerrors"
	"github.com/Azure/netreach/pkg/sort"
)

// Token is an opaque, counter-allocated value-sort literal.
type Token uint32

// Interner maps label-value strings to distinct Tokens, allocated in first-
// seen order starting at zero. It is consulted only during fact emission;
// engine answers carry raw Token integers back to callers.
type Interner struct {
	mu     sync.Mutex
	tokens map[string]Token
	values []string
	next   uint64
}

// New creates an empty Interner.
func New() *Interner {
	return &Interner{tokens: make(map[string]Token)}
}

// Intern returns s's existing token if present, otherwise allocates and
// returns the next one. Fails with ResourceExhaustion once the counter
// would overflow the 32-bit value sort.
func (in *Interner) Intern(s string) (Token, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if tok, ok := in.tokens[s]; ok {
		return tok, nil
	}

	if in.next >= (uint64(1) << sort.ValueSortBits) {
		return 0, npmerrors.New(npmerrors.ResourceExhaustion, "Intern",
			"literal counter exceeds the 32-bit value sort")
	}

	tok := Token(in.next)
	in.tokens[s] = tok
	in.values = append(in.values, s)
	in.next++
	return tok, nil
}

// Lookup reverse-maps a token to the string it was interned from, for
// callers that want to render engine answers back to label values.
func (in *Interner) Lookup(tok Token) (string, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()

	idx := int(tok)
	if idx < 0 || idx >= len(in.values) {
		return "", false
	}
	return in.values[idx], true
}

// Len reports how many distinct strings have been interned so far.
func (in *Interner) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.values)
}
