// Package uitree reads the UI object tree hanging off a root instance.
//
// Every node is a class instance. Its instance dict is filtered down to a
// set of keys of interest whose values are decoded by type: strings,
// numbers, booleans and None become Go values, lists and dicts are decoded
// element-wise, and other instances become nested nodes. The "children" entry
// leads to the child nodes through its "_childrenObjects" list.
package uitree

import "github.com/yndnr/heapsight-go/internal/core/domain"

// DefaultKeys are the instance dict keys kept on every node.
var DefaultKeys = []string{
	"_top", "_left", "_width", "_height",
	"_displayX", "_displayY", "_displayHeight", "_displayWidth",
	"_name", "_text", "_setText",
	"children",
	"texturePath", "_bgTexturePath",
	"_hint", "_display",
	"lastShield", "lastArmor", "lastStructure",
	"_lastValue",
	"ramp_active",
	"_rotation",
	"_color",
	"_sr",
	"htmlstr",
	"_texturePath", "_opacity", "_bgColor", "isExpanded",
}

// ChildrenKey holds the children container of a node.
const ChildrenKey = "children"

// ChildrenListKey holds the child list inside the children container.
const ChildrenListKey = "_childrenObjects"

// Node is one decoded UI object.
type Node struct {
	Addr     domain.Addr    `json:"addr" yaml:"addr"`
	Type     string         `json:"type" yaml:"type"`
	Fields   map[string]any `json:"fields,omitempty" yaml:"fields,omitempty"`
	Children []*Node        `json:"children,omitempty" yaml:"children,omitempty"`
	// Truncated is set when a bound or a cycle stopped the walk at this node.
	Truncated bool `json:"truncated,omitempty" yaml:"truncated,omitempty"`
}

// Ref stands for a value that was not decoded.
type Ref struct {
	Addr domain.Addr `json:"ref" yaml:"ref"`
	Type string      `json:"type,omitempty" yaml:"type,omitempty"`
}

// Count returns the number of nodes in the subtree rooted at n.
func (n *Node) Count() int {
	if n == nil {
		return 0
	}
	c := 1
	for _, ch := range n.Children {
		c += ch.Count()
	}
	return c
}

// Find returns the first node in depth-first order for which match is true.
func (n *Node) Find(match func(*Node) bool) *Node {
	if n == nil {
		return nil
	}
	if match(n) {
		return n
	}
	for _, ch := range n.Children {
		if got := ch.Find(match); got != nil {
			return got
		}
	}
	return nil
}
