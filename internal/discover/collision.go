package discover

import (
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// CollisionResolver assigns every input a distinct output name. Two names
// clash when they are equal ignoring case, so outputs stay distinct on
// case-insensitive filesystems too. Safe for concurrent use.
type CollisionResolver struct {
	mu    sync.Mutex
	taken map[string]string // lower-cased output name -> input holding it
}

func NewCollisionResolver() *CollisionResolver {
	return &CollisionResolver{taken: make(map[string]string)}
}

// Resolve returns requested when no other input holds it, otherwise the
// lowest-numbered free "<stem> - dupN<ext>". Resolving the same input twice
// yields the same name.
func (r *CollisionResolver) Resolve(input, requested string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	for n := 0; ; n++ {
		name := dupName(requested, n)
		if r.claim(name, input) {
			return name
		}
	}
}

// claim records input as the holder of name unless another input has it.
func (r *CollisionResolver) claim(name, input string) bool {
	key := strings.ToLower(name)
	if holder, ok := r.taken[key]; ok && holder != input {
		return false
	}
	r.taken[key] = input
	return true
}

// dupName inserts the nth duplicate marker before the extension; n == 0 is
// the name itself.
func dupName(name string, n int) string {
	if n == 0 {
		return name
	}
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + " - dup" + strconv.Itoa(n) + ext
}
