/*

Authorization capability for the mutating configuration surface. Parameter
setters and period resets check the caller once at the boundary; the pricing
and validation math below stays free of access-control concerns.

*/

package authz

import (
	"errors"
	"strings"
	"sync"
)

var ErrUnauthorized = errors.New("caller is not authorized")

// Authorizer answers whether a caller may mutate engine configuration.
type Authorizer interface {
	Authorize(caller string) error
}

// AllowList authorizes a fixed set of admin identities. Matching is
// case-insensitive on the trimmed identity string.
type AllowList struct {
	mu      sync.RWMutex
	allowed map[string]struct{}
}

func NewAllowList(admins []string) *AllowList {
	l := &AllowList{allowed: make(map[string]struct{}, len(admins))}
	for _, a := range admins {
		if key := normalize(a); key != "" {
			l.allowed[key] = struct{}{}
		}
	}
	return l
}

func normalize(caller string) string {
	return strings.ToLower(strings.TrimSpace(caller))
}

func (l *AllowList) Authorize(caller string) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if _, ok := l.allowed[normalize(caller)]; !ok {
		return ErrUnauthorized
	}
	return nil
}

// Grant adds an identity to the list.
func (l *AllowList) Grant(caller string) {
	key := normalize(caller)
	if key == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowed[key] = struct{}{}
}

// Revoke removes an identity from the list.
func (l *AllowList) Revoke(caller string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.allowed, normalize(caller))
}
