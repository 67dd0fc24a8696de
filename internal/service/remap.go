package service

import "github.com/rvelloso/finledger-go/internal/domain"

// remapContext is the translation table from snapshot-local identifiers to
// freshly inserted ids, plus a per-operation cache of resolved category
// names. One remapContext exists per import/restore call and dies with it;
// it is never shared or stored.
type remapContext struct {
	accounts   map[string]int64
	categories map[string]int64
	currencies map[string]bool
}

func newRemapContext() *remapContext {
	return &remapContext{
		accounts:   make(map[string]int64),
		categories: make(map[string]int64),
		currencies: make(map[string]bool),
	}
}

func (r *remapContext) putAccount(snapshotID domain.FlexID, newID int64) {
	if snapshotID.IsSet {
		r.accounts[snapshotID.Raw] = newID
	}
}

// account resolves a snapshot-local account reference. A miss means the
// referencing row should be skipped, never inserted with a dangling key.
func (r *remapContext) account(ref domain.FlexID) (int64, bool) {
	if !ref.IsSet {
		return 0, false
	}
	id, ok := r.accounts[ref.Raw]
	return id, ok
}

func (r *remapContext) putCategory(name string, id int64) {
	r.categories[name] = id
}

func (r *remapContext) category(name string) (int64, bool) {
	id, ok := r.categories[name]
	return id, ok
}
