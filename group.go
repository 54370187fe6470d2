package corosched

// Group is an unordered collection of child coroutine handles. It
// exists so that a coroutine which spawns several helpers can tear all
// of them down together without tracking each handle itself.
type Group struct {
	rt       *Runtime
	children map[*Coroutine]struct{}
}

// NewGroup creates an empty Group bound to rt.
func NewGroup(rt *Runtime) *Group {
	return &Group{rt: rt, children: make(map[*Coroutine]struct{})}
}

// Spawn starts a new coroutine running body, retains it in the group,
// and returns its handle.
func (g *Group) Spawn(body func(*Runtime) error) *Coroutine {
	co := g.rt.Spawn(body)
	g.children[co] = struct{}{}
	return co
}

// Cancel cancels every child currently retained by the group and clears
// the group's collection. Like Coroutine.Cancel, it never blocks.
func (g *Group) Cancel() {
	for co := range g.children {
		co.Cancel()
	}
	g.children = make(map[*Coroutine]struct{})
}

// Len reports how many children the group currently retains.
func (g *Group) Len() int { return len(g.children) }
