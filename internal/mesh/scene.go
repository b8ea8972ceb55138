package mesh

// TouchAreaName is the part that, when present, is the sampling target
// instead of the whole model.
const TouchAreaName = "touch_area"

// Node is one part of a loaded model: an optional mesh in its own frame plus
// children placed relative to it.
type Node struct {
	Name     string
	Local    Transform
	Mesh     *Mesh
	Children []*Node
}

// NewNode returns a node with an identity local transform.
func NewNode(name string, m *Mesh, children ...*Node) *Node {
	return &Node{Name: name, Local: Identity(), Mesh: m, Children: children}
}

// Find returns the first node named name in depth-first order.
func (n *Node) Find(name string) *Node {
	if n == nil {
		return nil
	}
	if n.Name == name {
		return n
	}
	for _, c := range n.Children {
		if found := c.Find(name); found != nil {
			return found
		}
	}
	return nil
}

// Flatten merges every mesh in the subtree into one world-space mesh,
// treating n's Local as its world placement.
func (n *Node) Flatten() *Mesh {
	var out []*Triangle
	n.flatten(Identity(), &out)
	return &Mesh{triangles: out}
}

// SamplingSurface flattens the touch area part when the model has one,
// placed by all of its ancestors, and the whole model otherwise.
func (n *Node) SamplingSurface() *Mesh {
	var out []*Triangle
	if !n.flattenNamed(TouchAreaName, Identity(), &out) {
		n.flatten(Identity(), &out)
	}
	return &Mesh{triangles: out}
}

func (n *Node) flatten(parent Transform, out *[]*Triangle) {
	if n == nil {
		return
	}
	world := n.local().Then(parent)
	if !n.Mesh.Empty() {
		*out = append(*out, n.Mesh.Transform(world).triangles...)
	}
	for _, c := range n.Children {
		c.flatten(world, out)
	}
}

func (n *Node) flattenNamed(name string, parent Transform, out *[]*Triangle) bool {
	if n == nil {
		return false
	}
	if n.Name == name {
		n.flatten(parent, out)
		return true
	}
	world := n.local().Then(parent)
	for _, c := range n.Children {
		if c.flattenNamed(name, world, out) {
			return true
		}
	}
	return false
}

// local treats an unset transform as the identity.
func (n *Node) local() Transform {
	if n.Local == (Transform{}) {
		return Identity()
	}
	return n.Local
}
