package pricing

// framework is the reference framework: one bit per sequence, set for the
// variables that were non-basic at the last weight initialization.
type framework []uint64

func newFramework(n int) framework {
	return make(framework, (n+63)>>6)
}

func (f framework) has(seq int) bool {
	return f[seq>>6]&(1<<(uint(seq)&63)) != 0
}

func (f framework) set(seq int, in bool) {
	if in {
		f[seq>>6] |= 1 << (uint(seq) & 63)
	} else {
		f[seq>>6] &^= 1 << (uint(seq) & 63)
	}
}

// bit is 1 for members, 0 otherwise.
func (f framework) bit(seq int) float64 {
	if f.has(seq) {
		return 1
	}
	return 0
}
