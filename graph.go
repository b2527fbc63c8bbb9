package audiograph

// NodeID is a stable opaque identifier for a node in the graph. IDs remain
// valid under mutation of other nodes; nodes are never removed before the
// context is torn down.
type NodeID struct {
	idx int
}

// Output names an output port of the node.
func (id NodeID) Output(port int) OutputPort {
	return OutputPort{Node: id, Port: port}
}

// Input names an input port of the node.
func (id NodeID) Input(port int) InputPort {
	return InputPort{Node: id, Port: port}
}

// ParamInput names a parameter port of the node. Connections to a parameter port
// are down-mixed to mono and summed into the parameter's per-frame value.
func (id NodeID) ParamInput(param ParamType) InputPort {
	return InputPort{Node: id, isParam: true, param: param}
}

// OutputPort identifies one output port of one node.
type OutputPort struct {
	Node NodeID
	Port int
}

// InputPort identifies one input port or one parameter port of one node.
type InputPort struct {
	Node    NodeID
	Port    int
	isParam bool
	param   ParamType
}

// connection is a single out-port to in-port link within an edge. cache
// holds the producer's block between the producer's visit and the
// consumer's visit of the same traversal.
type connection struct {
	output   int
	input    InputPort
	cache    Block
	hasCache bool
}

// edge bundles every connection between one ordered pair of nodes.
type edge struct {
	from, to    NodeID
	connections []*connection
}

func (e *edge) hasBetween(output int, input InputPort) bool {
	for _, c := range e.connections {
		if c.output == output && c.input == input {
			return true
		}
	}
	return false
}

func (e *edge) retain(keep func(*connection) bool) {
	kept := e.connections[:0]
	for _, c := range e.connections {
		if keep(c) {
			kept = append(kept, c)
		}
	}
	e.connections = kept
}

type graphNode struct {
	engine   AudioNodeEngine
	outgoing []*edge
	incoming []*edge
	// drivenParams are the param ports that carried a signal during the
	// previous traversal, so stale signal blocks can be cleared.
	drivenParams []ParamType
}

// audioGraph owns the node engines and the connection topology. It is only
// ever touched from the render goroutine.
type audioGraph struct {
	nodes []*graphNode
	dest  NodeID
}

func newAudioGraph(destChannels int) *audioGraph {
	g := &audioGraph{}
	g.dest = g.addNode(newDestinationNode(destChannels))
	return g
}

func (g *audioGraph) destID() NodeID {
	return g.dest
}

func (g *audioGraph) addNode(engine AudioNodeEngine) NodeID {
	g.nodes = append(g.nodes, &graphNode{engine: engine})
	return NodeID{idx: len(g.nodes) - 1}
}

func (g *audioGraph) valid(id NodeID) bool {
	return id.idx >= 0 && id.idx < len(g.nodes)
}

func (g *audioGraph) node(id NodeID) AudioNodeEngine {
	return g.nodes[id.idx].engine
}

// addEdge connects an output port to an input or parameter port. Duplicate
// (out, in) pairs and references to unknown nodes are ignored.
func (g *audioGraph) addEdge(out OutputPort, in InputPort) {
	if !g.valid(out.Node) || !g.valid(in.Node) {
		return
	}
	from := g.nodes[out.Node.idx]
	for _, e := range from.outgoing {
		if e.to == in.Node {
			if e.hasBetween(out.Port, in) {
				return
			}
			e.connections = append(e.connections, &connection{output: out.Port, input: in})
			return
		}
	}
	e := &edge{
		from:        out.Node,
		to:          in.Node,
		connections: []*connection{{output: out.Port, input: in}},
	}
	from.outgoing = append(from.outgoing, e)
	g.nodes[in.Node.idx].incoming = append(g.nodes[in.Node.idx].incoming, e)
}

// removeEdge drops the edge from both endpoints' lists.
func (g *audioGraph) removeEdge(target *edge) {
	from := g.nodes[target.from.idx]
	for i, e := range from.outgoing {
		if e == target {
			from.outgoing = append(from.outgoing[:i], from.outgoing[i+1:]...)
			break
		}
	}
	to := g.nodes[target.to.idx]
	for i, e := range to.incoming {
		if e == target {
			to.incoming = append(to.incoming[:i], to.incoming[i+1:]...)
			break
		}
	}
}

// disconnectAllFrom removes every outgoing edge of the node.
func (g *audioGraph) disconnectAllFrom(id NodeID) {
	if !g.valid(id) {
		return
	}
	outgoing := append([]*edge(nil), g.nodes[id.idx].outgoing...)
	for _, e := range outgoing {
		g.removeEdge(e)
	}
}

// disconnectOutput removes every connection leaving the given output port.
func (g *audioGraph) disconnectOutput(out OutputPort) {
	if !g.valid(out.Node) {
		return
	}
	outgoing := append([]*edge(nil), g.nodes[out.Node.idx].outgoing...)
	for _, e := range outgoing {
		e.retain(func(c *connection) bool { return c.output != out.Port })
		if len(e.connections) == 0 {
			g.removeEdge(e)
		}
	}
}

// disconnectBetween removes the whole edge between two nodes.
func (g *audioGraph) disconnectBetween(from, to NodeID) {
	if !g.valid(from) || !g.valid(to) {
		return
	}
	for _, e := range g.nodes[from.idx].outgoing {
		if e.to == to {
			g.removeEdge(e)
			return
		}
	}
}

// disconnectTo removes every connection from a node into one input port.
func (g *audioGraph) disconnectTo(from NodeID, to InputPort) {
	if !g.valid(from) || !g.valid(to.Node) {
		return
	}
	for _, e := range g.nodes[from.idx].outgoing {
		if e.to == to.Node {
			e.retain(func(c *connection) bool { return c.input != to })
			if len(e.connections) == 0 {
				g.removeEdge(e)
			}
			return
		}
	}
}

// disconnectOutputBetween removes every connection from an output port into
// one node.
func (g *audioGraph) disconnectOutputBetween(out OutputPort, to NodeID) {
	if !g.valid(out.Node) || !g.valid(to) {
		return
	}
	for _, e := range g.nodes[out.Node.idx].outgoing {
		if e.to == to {
			e.retain(func(c *connection) bool { return c.output != out.Port })
			if len(e.connections) == 0 {
				g.removeEdge(e)
			}
			return
		}
	}
}

// disconnectOutputBetweenTo removes the single connection between an output
// port and an input port.
func (g *audioGraph) disconnectOutputBetweenTo(out OutputPort, to InputPort) {
	if !g.valid(out.Node) || !g.valid(to.Node) {
		return
	}
	for _, e := range g.nodes[out.Node.idx].outgoing {
		if e.to == to.Node {
			e.retain(func(c *connection) bool {
				return c.output != out.Port || c.input != to
			})
			if len(e.connections) == 0 {
				g.removeEdge(e)
			}
			return
		}
	}
}

// process renders one block: every node is visited exactly once in
// dependency order (depth-first post-order from the destination over
// reversed edges), and the destination's mixed chunk is returned.
func (g *audioGraph) process(info *BlockInfo) Chunk {
	g.traverse(func(id NodeID, gn *graphNode) {
		engine := gn.engine
		inputs := g.assembleInputs(gn, engine)

		out := engine.Process(inputs, info)
		if out.Len() != engine.OutputCount() {
			panic("audiograph: node produced wrong output count")
		}
		if engine.OutputCount() == 0 {
			return
		}

		// Count consumers per output port so the last consumer of each
		// port can take the block instead of cloning it.
		counts := make([]int, engine.OutputCount())
		for _, e := range gn.outgoing {
			for _, c := range e.connections {
				counts[c.output]++
			}
		}
		for _, e := range gn.outgoing {
			for _, c := range e.connections {
				counts[c.output]--
				if counts[c.output] == 0 {
					c.cache = out.Blocks[c.output].Take()
				} else {
					c.cache = out.Blocks[c.output].Clone()
				}
				c.hasCache = true
			}
		}
	})

	data, ok := g.node(g.dest).DestinationData()
	if !ok {
		panic("audiograph: destination node has no data after traversal")
	}
	return data
}

// assembleInputs drains the cached blocks on the node's incoming
// connections, feeds parameter ports, and mixes each input port according
// to the node's channel count mode.
func (g *audioGraph) assembleInputs(gn *graphNode, engine AudioNodeEngine) Chunk {
	chunk := Chunk{Blocks: make([]Block, engine.InputCount())}

	perPort := make([][]Block, engine.InputCount())
	var driven []ParamType
	paramBlocks := make(map[ParamType]Block)

	for _, e := range gn.incoming {
		for _, c := range e.connections {
			if !c.hasCache {
				panic("audiograph: connection cache empty; traversal order broken")
			}
			block := c.cache
			c.cache = Block{}
			c.hasCache = false
			if c.input.isParam {
				// Parameter signals are mono: down-mix with the
				// Speakers rules, then sum.
				block.Mix(1, Speakers)
				if acc, ok := paramBlocks[c.input.param]; ok {
					paramBlocks[c.input.param] = acc.Sum(block)
				} else {
					paramBlocks[c.input.param] = block
					driven = append(driven, c.input.param)
				}
			} else {
				perPort[c.input.Port] = append(perPort[c.input.Port], block)
			}
		}
	}

	// Clear signal blocks left over from params that are no longer driven.
	for _, tag := range gn.drivenParams {
		if _, ok := paramBlocks[tag]; !ok {
			engine.GetParam(tag).setBlock(nil)
		}
	}
	for tag, block := range paramBlocks {
		block.ExplicitSilence()
		engine.GetParam(tag).setBlock(block.Data())
	}
	gn.drivenParams = driven

	info := engine.ChannelInfo()
	for i, blocks := range perPort {
		switch {
		case len(blocks) == 0:
			if info.Mode == Explicit {
				// Silence, but mixed to the explicit count anyway.
				chunk.Blocks[i].Mix(info.Count, info.Interpretation)
			}
		case len(blocks) == 1:
			chunk.Blocks[i] = blocks[0]
			switch info.Mode {
			case Explicit:
				chunk.Blocks[i].Mix(info.Count, info.Interpretation)
			case ClampedMax:
				if chunk.Blocks[i].ChanCount() > info.Count {
					chunk.Blocks[i].Mix(info.Count, info.Interpretation)
				}
			case Max:
				// A single source maxes itself.
			}
		default:
			mixCount := info.Count
			if info.Mode != Explicit {
				mixCount = 0
				for j := range blocks {
					if n := blocks[j].ChanCount(); n > mixCount {
						mixCount = n
					}
				}
				if info.Mode == ClampedMax && mixCount > info.Count {
					mixCount = info.Count
				}
			}
			acc := Block{}
			for j := range blocks {
				blocks[j].Mix(mixCount, info.Interpretation)
				acc = acc.Sum(blocks[j])
			}
			chunk.Blocks[i] = acc
		}
	}
	return chunk
}

// traverse runs visit over every node reachable from the destination in
// depth-first post-order, children before parents.
func (g *audioGraph) traverse(visit func(NodeID, *graphNode)) {
	const (
		unseen = iota
		discovered
		finished
	)
	state := make([]byte, len(g.nodes))

	type frame struct {
		id   NodeID
		next int
	}
	stack := []frame{{id: g.dest}}
	state[g.dest.idx] = discovered

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		gn := g.nodes[top.id.idx]
		if top.next < len(gn.incoming) {
			child := gn.incoming[top.next].from
			top.next++
			if state[child.idx] == unseen {
				state[child.idx] = discovered
				stack = append(stack, frame{id: child})
			}
			continue
		}
		state[top.id.idx] = finished
		visit(top.id, gn)
		stack = stack[:len(stack)-1]
	}
}
