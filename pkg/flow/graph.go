package flow

// GraphNode is one state of the turn-routing machine, as reported to
// frontends via the get_flow_graph request.
type GraphNode struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// GraphEdge is a possible transition between states.
type GraphEdge struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Condition string `json:"condition,omitempty"`
}

// Graph describes the state machine topology.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// GraphSpec returns the static node/edge description of the state machine.
func GraphSpec() Graph {
	return Graph{
		Nodes: []GraphNode{
			{Name: string(RouteReasoning), Kind: "llm"},
			{Name: string(RouteToolExec), Kind: "tools"},
			{Name: string(RouteActionExec), Kind: "tools"},
			{Name: string(RouteHumanWait), Kind: "interrupt"},
			{Name: string(RouteEnd), Kind: "terminal"},
		},
		Edges: []GraphEdge{
			{From: string(RouteReasoning), To: string(RouteToolExec), Condition: "auto tool calls"},
			{From: string(RouteReasoning), To: string(RouteActionExec), Condition: "action tool calls"},
			{From: string(RouteReasoning), To: string(RouteEnd), Condition: "plain or fallback output"},
			{From: string(RouteToolExec), To: string(RouteReasoning), Condition: "narration pass"},
			{From: string(RouteActionExec), To: string(RouteReasoning), Condition: "narration pass"},
			{From: string(RouteActionExec), To: string(RouteEnd), Condition: "direct action"},
			{From: string(RouteHumanWait), To: string(RouteReasoning), Condition: "user speech"},
			{From: string(RouteHumanWait), To: string(RouteEnd), Condition: "exit keyword"},
		},
	}
}
