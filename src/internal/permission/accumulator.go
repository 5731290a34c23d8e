package permission

// TargetAccumulator collects, for a whole run, the names of state variables read by
// guard logic. Names from different contracts are not distinguished.
type TargetAccumulator struct {
	names []string
	seen  map[string]bool
}

func NewTargetAccumulator() *TargetAccumulator {
	return &TargetAccumulator{seen: make(map[string]bool)}
}

func (a *TargetAccumulator) Add(names ...string) {
	for _, n := range names {
		if n == "" || a.seen[n] {
			continue
		}
		a.seen[n] = true
		a.names = append(a.names, n)
	}
}

func (a *TargetAccumulator) Contains(name string) bool {
	return a.seen[name]
}

// Names returns the accumulated names in first-seen order.
func (a *TargetAccumulator) Names() []string {
	return append([]string(nil), a.names...)
}

func (a *TargetAccumulator) Len() int {
	return len(a.names)
}
