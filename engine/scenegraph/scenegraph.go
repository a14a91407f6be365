// Package scenegraph provides a minimal tree of named, transform-bearing
// nodes used to resolve an IK effector's target_node path to a world
// transform.
package scenegraph

import (
	"fmt"

	"github.com/nyx-engine/ewbik/ik"
	"github.com/nyx-engine/ewbik/ikmath"
)

// Node is a single named node in a Graph: a local transform composed
// against its parent's global transform.
type Node struct {
	name     string
	parent   *Node
	children []*Node
	local    ikmath.Transform3D
}

// Name returns the node's path-unique identifier.
func (n *Node) Name() string { return n.name }

// Parent returns the node's parent, or nil at a root node.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the node's direct children.
func (n *Node) Children() []*Node { return n.children }

// LocalTransform returns the node's transform relative to its parent.
func (n *Node) LocalTransform() ikmath.Transform3D { return n.local }

// SetLocalTransform sets the node's transform relative to its parent.
func (n *Node) SetLocalTransform(t ikmath.Transform3D) { n.local = t }

// GlobalTransform returns the node's transform in world space, composing
// up the parent chain. It implements ik.SpatialNode.
func (n *Node) GlobalTransform() ikmath.Transform3D {
	if n.parent == nil {
		return n.local
	}
	return n.parent.GlobalTransform().Compose(n.local)
}

// Graph is a registry of Nodes keyed by path, with parent/child links.
// It implements ik.SceneGraph.
type Graph struct {
	nodes map[string]*Node
}

// NewGraph returns an empty Graph.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]*Node)}
}

// AddNode registers a new node at path, parented under parentPath (empty
// for a root node), with the given local transform. Returns an error if
// path is already registered or parentPath doesn't resolve.
func (g *Graph) AddNode(path, parentPath string, local ikmath.Transform3D) (*Node, error) {
	if path == "" {
		return nil, fmt.Errorf("scenegraph: empty node path")
	}
	if _, exists := g.nodes[path]; exists {
		return nil, fmt.Errorf("scenegraph: node %q already registered", path)
	}
	n := &Node{name: path, local: local}
	if parentPath != "" {
		p, ok := g.nodes[parentPath]
		if !ok {
			return nil, fmt.Errorf("scenegraph: parent path %q not found", parentPath)
		}
		n.parent = p
		p.children = append(p.children, n)
	}
	g.nodes[path] = n
	return n, nil
}

// RemoveNode unregisters path and detaches it from its parent's child
// list. It does not recursively remove descendants; their Parent link
// is left dangling to a now-unregistered node, matching the rest of the
// graph's "removal is the caller's responsibility" ownership model.
func (g *Graph) RemoveNode(path string) {
	n, ok := g.nodes[path]
	if !ok {
		return
	}
	if n.parent != nil {
		siblings := n.parent.children
		for i, c := range siblings {
			if c == n {
				n.parent.children = append(siblings[:i], siblings[i+1:]...)
				break
			}
		}
	}
	delete(g.nodes, path)
}

// Find resolves path to a node, implementing ik.SceneGraph.
func (g *Graph) Find(path string) (ik.SpatialNode, bool) {
	n, ok := g.nodes[path]
	if !ok {
		return nil, false
	}
	return n, true
}
