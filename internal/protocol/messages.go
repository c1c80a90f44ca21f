package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name,omitempty"`
	MaxQueue        int    `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	Dimension       string `json:"dimension"`
	Seed            int64  `json:"seed"`
	ParallaxSize    int    `json:"parallax_size"`
	FluidHeight     int    `json:"fluid_height"`
	ChunkSize       int    `json:"chunk_size"`
	PackDigest      string `json:"pack_digest,omitempty"`
}

// QUERY (client -> server). Which coordinates matter depends on Query:
// column queries read X and Z, block queries read all three.
type QueryMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
	Query           string `json:"query"`
	X               int    `json:"x"`
	Y               int    `json:"y,omitempty"`
	Z               int    `json:"z"`
	IgnoreFluid     bool   `json:"ignore_fluid,omitempty"`
}

// RESULT (server -> client)
type ResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
	Query           string `json:"query"`
	Value           any    `json:"value"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

// AreaResult answers GENERATE_AREA.
type AreaResult struct {
	Generated bool   `json:"generated"`
	Chunk     [2]int `json:"chunk"`
	State     string `json:"state"`
}

// ChunkBlock is one parallax block of a CHUNK result.
type ChunkBlock struct {
	Pos   [3]int `json:"pos"`
	Block string `json:"block"`
}

func NewError(id, code, msg string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, ID: id, Code: code, Message: msg}
}

func NewResult(q QueryMsg, v any) ResultMsg {
	return ResultMsg{Type: TypeResult, ProtocolVersion: Version, ID: q.ID, Query: q.Query, Value: v}
}
