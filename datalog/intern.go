package datalog

import (
	"sync"
)

// SymbolIntern deduplicates symbol text so that facts decoded from storage
// and parsed from source share one backing string per distinct symbol.
// Uses sync.Map for lock-free concurrent reads
type SymbolIntern struct {
	cache sync.Map // map[string]string
}

// Global symbol intern instance
var symbolIntern = &SymbolIntern{}

// InternSymbol returns a symbol value whose text is shared with every other
// interned symbol of the same spelling
func InternSymbol(s string) Value {
	// Fast path: load existing (lock-free)
	if val, ok := symbolIntern.cache.Load(s); ok {
		return Symbol(val.(string))
	}

	// Slow path: clone so we never pin a larger buffer, then store
	owned := string([]byte(s))
	actual, _ := symbolIntern.cache.LoadOrStore(owned, owned)
	return Symbol(actual.(string))
}

// ClearInterns clears the symbol intern cache
// Useful for testing or when memory needs to be reclaimed
func ClearInterns() {
	symbolIntern = &SymbolIntern{}
}
