package gateway

import "github.com/amira/goalflow/pkg/flow"

// Envelope is the JSON message shape clients send over the socket.
type Envelope struct {
	Type  string                 `json:"type"`
	Token string                 `json:"token,omitempty"`
	Text  string                 `json:"text,omitempty"`
	Args  map[string]interface{} `json:"args,omitempty"`
}

// Response is the reply for one request envelope. Type is the request type
// with a _response suffix.
type Response struct {
	Type    string      `json:"type"`
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// SpeakMessage is the outbound assistant utterance frame.
type SpeakMessage struct {
	Action string `json:"action"`
	Text   string `json:"text"`
}

// Request envelope types.
const (
	TypeAuth         = "auth"
	TypeChat         = "chat"
	TypeClearHistory = "clear_history"
	TypeFlowGraph    = "get_flow_graph"
)

func okResponse(reqType string, data interface{}) Response {
	return Response{Type: reqType + "_response", Status: "success", Data: data}
}

func errResponse(reqType, message string) Response {
	return Response{Type: reqType + "_response", Status: "error", Message: message}
}

func graphResponse() Response {
	return okResponse(TypeFlowGraph, flow.GraphSpec())
}
