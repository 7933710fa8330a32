package completion

import (
	"sync"
)

// state is the gate's one bit of state.  next is true when a signal
// is pending and has not been consumed by a reader.  The caller must
// hold the state's lock for get and set.
type state struct {
	sync.Mutex
	next bool
}

func (st *state) get() bool {
	return st.next
}

func (st *state) set(next bool) {
	st.next = next
}
