package gp

import "gonum.org/v1/gonum/mat"

// Workspace provides size-keyed reuse of matrix allocations within a single
// objective evaluation. It must not carry factorization results across
// evaluations; it only amortizes raw allocations of the O(N^2) buffers.
type Workspace struct {
	sym map[int][]*mat.SymDense
}

// NewWorkspace creates an empty workspace.
func NewWorkspace() *Workspace {
	return &Workspace{
		sym: make(map[int][]*mat.SymDense),
	}
}

// GetSym returns an n-by-n symmetric matrix, reusing a pooled one when the
// size matches.
func (w *Workspace) GetSym(n int) *mat.SymDense {
	pool := w.sym[n]
	if len(pool) > 0 {
		m := pool[len(pool)-1]
		w.sym[n] = pool[:len(pool)-1]
		m.Zero()
		return m
	}
	return mat.NewSymDense(n, nil)
}

// PutSym returns a symmetric matrix to the pool.
func (w *Workspace) PutSym(m *mat.SymDense) {
	n := m.SymmetricDim()
	w.sym[n] = append(w.sym[n], m)
}
