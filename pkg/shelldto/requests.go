package shelldto

// NewGameRequest leaves unset fields at the configured defaults.
type NewGameRequest struct {
	BoardSize *int     `json:"board_size,omitempty"`
	Komi      *float64 `json:"komi,omitempty"`
	Handicap  *int     `json:"handicap,omitempty"`
}

type PlayRequest struct {
	Color  string `json:"color"`
	Vertex string `json:"vertex"`
}

type PassRequest struct {
	Color string `json:"color"`
}

type GameResponse struct {
	State *GameState `json:"state"`
}

type LifecycleResponse struct {
	Suspended bool   `json:"suspended"`
	Message   string `json:"message,omitempty"`
}
