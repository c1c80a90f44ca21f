package parallax

// PlacementEntry describes one placement attempt.
type PlacementEntry struct {
	Session    string `json:"session"`
	Seed       int64  `json:"seed"`
	CX         int    `json:"cx"`
	CZ         int    `json:"cz"`
	X          int    `json:"x"`
	Z          int    `json:"z"`
	Biome      string `json:"biome"`
	Object     string `json:"object"`
	Underwater bool   `json:"underwater,omitempty"`
	Placed     bool   `json:"placed"`
	Error      string `json:"error,omitempty"`
}

// LayerEntry summarizes one generated layer.
type LayerEntry struct {
	Session  string  `json:"session"`
	CX       int     `json:"cx"`
	CZ       int     `json:"cz"`
	Biome    string  `json:"biome"`
	Attempts int     `json:"attempts"`
	Placed   int     `json:"placed"`
	Failed   int     `json:"failed"`
	Millis   float64 `json:"ms"`
}

// SizeEntry records one parallax size computation.
type SizeEntry struct {
	Session       string `json:"session"`
	Dimension     string `json:"dimension"`
	Seed          int64  `json:"seed"`
	Size          int    `json:"size"`
	MaxX          int    `json:"max_x"`
	MaxZ          int    `json:"max_z"`
	Objects       int    `json:"objects"`
	ProbeFailures int    `json:"probe_failures"`
}

// Recorder receives generation records. Records are informational; a
// failing recorder never affects generation.
type Recorder interface {
	RecordPlacement(PlacementEntry) error
	RecordLayer(LayerEntry) error
	RecordSize(SizeEntry) error
}
