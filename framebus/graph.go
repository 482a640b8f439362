package framebus

// GraphNode is one frame in the discovered tree. Error stubs stand in for
// frames that did not answer and have no children.
type GraphNode struct {
	FrameID    string       `json:"frameId"`
	Children   []*GraphNode `json:"children"`
	Error      string       `json:"error,omitempty"`
	TrackingID string       `json:"trackingId,omitempty"`
}

// Stub error markers.
const (
	StubTimeout     = "timeout"
	StubDepth       = "depth"
	StubUnreachable = "unreachable"
)

// Flatten returns the ids of every reachable frame in preorder. Error stubs
// are skipped because they cannot answer.
func (g *GraphNode) Flatten() []string {
	if g == nil || g.Error != "" {
		return nil
	}
	out := []string{g.FrameID}
	for _, c := range g.Children {
		out = append(out, c.Flatten()...)
	}
	return out
}

// Find returns the node with id frameID, or nil.
func (g *GraphNode) Find(frameID string) *GraphNode {
	if g == nil {
		return nil
	}
	if g.FrameID == frameID {
		return g
	}
	for _, c := range g.Children {
		if n := c.Find(frameID); n != nil {
			return n
		}
	}
	return nil
}

// Chain returns the frame ids from g down to frameID, both included, or nil
// when frameID is not in the tree.
func (g *GraphNode) Chain(frameID string) []string {
	if g == nil {
		return nil
	}
	if g.FrameID == frameID {
		return []string{g.FrameID}
	}
	for _, c := range g.Children {
		if sub := c.Chain(frameID); sub != nil {
			return append([]string{g.FrameID}, sub...)
		}
	}
	return nil
}

// Count returns the number of nodes, stubs included.
func (g *GraphNode) Count() int {
	if g == nil {
		return 0
	}
	n := 1
	for _, c := range g.Children {
		n += c.Count()
	}
	return n
}

// Clone returns a deep copy.
func (g *GraphNode) Clone() *GraphNode {
	if g == nil {
		return nil
	}
	c := &GraphNode{FrameID: g.FrameID, Error: g.Error, TrackingID: g.TrackingID}
	c.Children = make([]*GraphNode, len(g.Children))
	for i, ch := range g.Children {
		c.Children[i] = ch.Clone()
	}
	return c
}
