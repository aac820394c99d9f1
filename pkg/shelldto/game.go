package shelldto

type Move struct {
	Color  string `json:"color"`
	Vertex string `json:"vertex"`
}

type Captured struct {
	Black int `json:"black"`
	White int `json:"white"`
}

// GameState is the current game as the control API shows it. Rows run from
// the top row down; X is black, O is white.
type GameState struct {
	ID        string   `json:"id"`
	BoardSize int      `json:"board_size"`
	Komi      float64  `json:"komi"`
	Handicap  []string `json:"handicap,omitempty"`
	Next      string   `json:"next"`
	Moves     []Move   `json:"moves"`
	MoveCount int      `json:"move_count"`
	Rows      []string `json:"rows"`
	Captured  Captured `json:"captured"`
}
