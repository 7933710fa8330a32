package refmap

import (
	"fmt"

	db "complgate/debug"
)

//
// Map of ref-counted references of type K to objects of type T.  For
// example, gatedev uses this in per-open mode to have one gate (T)
// per open handle (K), shared by the handle's duplicates, and to
// close the gate when the last duplicate is released.  The caller is
// responsible for concurrency control.
//

type entry[T any] struct {
	n int
	e T
}

func (e *entry[T]) String() string {
	return fmt.Sprintf("{n %d %v}", e.n, e.e)
}

type RefTable[K comparable, T any] struct {
	debug db.Tselector
	refs  map[K]*entry[T]
}

func NewRefTable[K comparable, T any](debug db.Tselector) *RefTable[K, T] {
	return &RefTable[K, T]{
		debug: debug + db.REFMAP_SUFFIX,
		refs:  make(map[K]*entry[T]),
	}
}

func (rf *RefTable[K, T]) Lookup(k K) (T, bool) {
	var r T
	if e, ok := rf.refs[k]; ok {
		db.DPrintf(rf.debug, "lookup %v %v", k, e)
		return e.e, true
	}
	db.DPrintf(rf.debug, "lookup %v no entry", k)
	return r, false
}

// Insert adds a reference to k, creating its object with newT if k
// isn't present.  It reports whether k was present.
func (rf *RefTable[K, T]) Insert(k K, newT func() T) (T, bool) {
	if e, ok := rf.refs[k]; ok {
		e.n += 1
		db.DPrintf(rf.debug, "insert %v %v", k, e)
		return e.e, true
	}
	e := &entry[T]{n: 1, e: newT()}
	db.DPrintf(rf.debug, "new insert %v %v", k, e)
	rf.refs[k] = e
	return e.e, false
}

// Delete drops a reference to k.  It returns k's object and whether
// that was the last reference, in which case k is gone from the table.
func (rf *RefTable[K, T]) Delete(k K) (T, bool, error) {
	var r T
	e, ok := rf.refs[k]
	if !ok {
		db.DPrintf(db.ERROR, "delete %v %v", rf.debug, k)
		return r, false, fmt.Errorf("Delete: %v not present", k)
	}
	e.n -= 1
	if e.n <= 0 {
		db.DPrintf(rf.debug, "delete %v -> %v", k, e.e)
		delete(rf.refs, k)
		return e.e, true, nil
	}
	return e.e, false, nil
}

func (rf *RefTable[K, T]) NRef(k K) int {
	if e, ok := rf.refs[k]; ok {
		return e.n
	}
	return 0
}

func (rf *RefTable[K, T]) Len() int {
	return len(rf.refs)
}
