// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mbus

import (
	"strings"
	"sync"
)

// Hop is one step of a route: a service name made of '/'-separated selectors.
type Hop struct {
	selectors []string
}

// ParseHop parses "a/b/c" into a hop.
func ParseHop(s string) Hop {
	s = strings.TrimSpace(s)
	if s == "" {
		return Hop{}
	}
	return Hop{selectors: strings.Split(s, "/")}
}

// Selectors returns the hop's selectors.
func (h Hop) Selectors() []string { return h.selectors }

// String returns the service name of the hop.
func (h Hop) String() string { return strings.Join(h.selectors, "/") }

// Route is the ordered list of hops a message follows.
type Route struct {
	hops []Hop
}

// NewRoute returns a route over hops.
func NewRoute(hops ...Hop) Route { return Route{hops: hops} }

// ParseRoute parses a whitespace separated list of hops.
func ParseRoute(s string) Route {
	var r Route
	for _, f := range strings.Fields(s) {
		r.hops = append(r.hops, ParseHop(f))
	}
	return r
}

// NumHops returns the number of hops.
func (r Route) NumHops() int { return len(r.hops) }

// Hop returns hop i.
func (r Route) Hop(i int) Hop { return r.hops[i] }

// IsEmpty reports whether the route has no hops.
func (r Route) IsEmpty() bool { return len(r.hops) == 0 }

// String renders the route in the form accepted by ParseRoute.
func (r Route) String() string {
	parts := make([]string, len(r.hops))
	for i, h := range r.hops {
		parts[i] = h.String()
	}
	return strings.Join(parts, " ")
}

// RoutingTable resolves route names.
type RoutingTable interface {
	Route(name string) (Route, bool)
}

// Routes is a RoutingTable keyed by route name. It is safe for
// concurrent use.
type Routes struct {
	mu     sync.RWMutex
	routes map[string]Route
}

// NewRoutes returns an empty table.
func NewRoutes() *Routes {
	return &Routes{routes: make(map[string]Route)}
}

// Add registers route under name, replacing any previous entry.
func (t *Routes) Add(name string, route Route) *Routes {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes[name] = route
	return t
}

// Route implements RoutingTable.
func (t *Routes) Route(name string) (Route, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.routes[name]
	return r, ok
}
