package analyzer

// StorageClass is where a declared variable lives.
type StorageClass int

const (
	Global StorageClass = iota
	BlockLocal
	FunctionLocal
)

func (s StorageClass) String() string {
	switch s {
	case Global:
		return "global"
	case BlockLocal:
		return "block-local"
	default:
		return "function-local"
	}
}

// Scope is the tracker consulted for every statement. It is passed by value
// so each compound statement's body gets its own copy and the caller's flags
// come back untouched.
type Scope struct {
	InIf   bool
	InLoop bool
	InFunc bool
}

func (s Scope) enterIf() Scope {
	s.InIf = true
	return s
}

func (s Scope) enterLoop() Scope {
	s.InLoop, s.InIf = true, false
	return s
}

func (s Scope) enterFunc() Scope {
	return Scope{InFunc: true}
}

// Class is the storage class of a fresh declaration made under s. Callers
// reject declarations inside loops before asking.
func (s Scope) Class() StorageClass {
	switch {
	case s.InFunc:
		return FunctionLocal
	case s.InIf:
		return BlockLocal
	default:
		return Global
	}
}

// slotsFor is the number of words a declaration reserves.
func (c StorageClass) slotsFor(isArray bool, length int64) int64 {
	switch {
	case !isArray:
		return 1
	case c == Global:
		return length + 1
	default:
		return length + 2
	}
}

// varInfo is what a lookup table remembers about a visible name.
type varInfo struct {
	isArray bool
	length  int64
}

// table is one storage class's set of visible names.
type table map[string]varInfo

// snapshot records which names were already visible when a nested body
// began; those names survive the body's purge.
func (t table) snapshot() map[string]bool {
	shadow := make(map[string]bool, len(t))
	for name := range t {
		shadow[name] = true
	}
	return shadow
}

// purge drops the names a body declared, except shadowed ones.
func (t table) purge(declared []string, shadow map[string]bool) {
	for _, name := range declared {
		if !shadow[name] {
			delete(t, name)
		}
	}
}
