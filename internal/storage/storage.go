// Package storage re-exports the aggregate store interface so wiring code
// does not import the domain package for persistence plumbing.
package storage

import "github.com/mailgoatai/mailgoat-inbox/internal/domain"

// Store is the aggregate persistence interface implemented by the memory and
// SQL backends.
type Store = domain.Store
