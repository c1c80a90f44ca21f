package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeQuery   = "QUERY"
	TypeResult  = "RESULT"
	TypeError   = "ERROR"
)

// Query kinds.
const (
	QueryHighest      = "HIGHEST"
	QueryUnderwater   = "UNDERWATER"
	QuerySolid        = "SOLID"
	QueryBiome        = "BIOME"
	QueryGenerateArea = "GENERATE_AREA"
	QueryBlock        = "BLOCK"
	QueryChunk        = "CHUNK"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
