package core

import "sort"

// Registry maps each online user to the handle of their one live connection.
// It is owned by the hub loop and is not safe for concurrent use.
type Registry struct {
	byUser map[string]string
	byConn map[string]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]string),
		byConn: make(map[string]string),
	}
}

// Join inserts or replaces the entry for userID. The last join wins.
func (r *Registry) Join(userID, handle string) {
	if old, ok := r.byUser[userID]; ok {
		delete(r.byConn, old)
	}
	// A handle belongs to exactly one user.
	if prevUser, ok := r.byConn[handle]; ok && prevUser != userID {
		delete(r.byUser, prevUser)
	}
	r.byUser[userID] = handle
	r.byConn[handle] = userID
}

// Leave removes userID if present.
func (r *Registry) Leave(userID string) {
	handle, ok := r.byUser[userID]
	if !ok {
		return
	}
	delete(r.byUser, userID)
	delete(r.byConn, handle)
}

// Lookup returns the live connection handle for userID.
func (r *Registry) Lookup(userID string) (string, bool) {
	handle, ok := r.byUser[userID]
	return handle, ok
}

// UserFor returns the user owning handle.
func (r *Registry) UserFor(handle string) (string, bool) {
	userID, ok := r.byConn[handle]
	return userID, ok
}

// ListOnline returns a sorted snapshot of online users.
func (r *Registry) ListOnline() []string {
	users := make([]string, 0, len(r.byUser))
	for userID := range r.byUser {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

// Len returns the number of online users.
func (r *Registry) Len() int {
	return len(r.byUser)
}
