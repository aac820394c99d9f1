// Package control serves the shell's local JSON API: game commands, the
// lifecycle switches and the metrics endpoint.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/park285/goban-state/internal/contract"
	"github.com/park285/goban-state/internal/domain"
	"github.com/park285/goban-state/internal/executor"
	"github.com/park285/goban-state/internal/game"
	"github.com/park285/goban-state/internal/msgcat"
	"github.com/park285/goban-state/pkg/shelldto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

// Game is the part of *game.Game the API drives.
type Game interface {
	NewGame(ctx context.Context, s game.Settings) error
	Play(ctx context.Context, color domain.Color, vertex string) error
	Pass(ctx context.Context, color domain.Color) error
	Undo(ctx context.Context) error
	View() game.View
}

// Runner runs commands one at a time. *executor.Executor satisfies it.
type Runner interface {
	Submit(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

// Lifecycle is satisfied by *lifecycle.Bridge.
type Lifecycle interface {
	Suspend(ctx context.Context, source string) error
	Resume(source string) error
	Suspended() bool
}

type Config struct {
	Game      Game
	Runner    Runner
	Lifecycle Lifecycle
	// Status renders GET /status.
	Status   func() shelldto.StatusResponse
	Defaults game.Settings
	Messages *msgcat.Catalog
	Logger   *zap.Logger
	// Timeout bounds each command, including the save it triggers.
	Timeout time.Duration
}

type Server struct {
	cfg     Config
	logger  *zap.Logger
	metrics fasthttp.RequestHandler
	srv     *fasthttp.Server
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	s := &Server{
		cfg:     cfg,
		logger:  cfg.Logger,
		metrics: fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()),
	}
	s.srv = &fasthttp.Server{
		Handler:      s.Handle,
		Name:         "goban-shell",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("control_listen", zap.String("addr", addr))
	return s.srv.ListenAndServe(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.ShutdownWithContext(ctx)
}

// Handle routes one request.
func (s *Server) Handle(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	switch {
	case ctx.IsGet() && path == "/status":
		s.status(ctx)
	case ctx.IsGet() && path == "/game":
		writeJSON(ctx, fasthttp.StatusOK, shelldto.GameResponse{State: s.state()})
	case ctx.IsGet() && path == "/metrics":
		s.metrics(ctx)
	case ctx.IsPost() && path == "/game/new":
		s.newGame(ctx)
	case ctx.IsPost() && path == "/game/play":
		s.play(ctx)
	case ctx.IsPost() && path == "/game/pass":
		s.pass(ctx)
	case ctx.IsPost() && path == "/game/undo":
		s.command(ctx, "undo", func(c context.Context) error { return s.cfg.Game.Undo(c) }, nil)
	case ctx.IsPost() && path == "/lifecycle/suspend":
		s.suspend(ctx)
	case ctx.IsPost() && path == "/lifecycle/resume":
		s.resume(ctx)
	default:
		s.fail(ctx, fasthttp.StatusNotFound, "not_found", map[string]any{"Path": path}, "not found")
	}
}

func (s *Server) status(ctx *fasthttp.RequestCtx) {
	if s.cfg.Status == nil {
		writeJSON(ctx, fasthttp.StatusOK, shelldto.StatusResponse{})
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, s.cfg.Status())
}

func (s *Server) newGame(ctx *fasthttp.RequestCtx) {
	var req shelldto.NewGameRequest
	if !s.decode(ctx, &req) {
		return
	}
	settings := s.cfg.Defaults
	if req.BoardSize != nil {
		settings.BoardSize = *req.BoardSize
	}
	if req.Komi != nil {
		settings.Komi = *req.Komi
	}
	if req.Handicap != nil {
		settings.Handicap = *req.Handicap
	}
	s.command(ctx, "new_game", func(c context.Context) error { return s.cfg.Game.NewGame(c, settings) },
		map[string]any{"BoardSize": settings.BoardSize})
}

func (s *Server) play(ctx *fasthttp.RequestCtx) {
	var req shelldto.PlayRequest
	if !s.decode(ctx, &req) {
		return
	}
	color, ok := parseColor(req.Color)
	if !ok {
		s.fail(ctx, fasthttp.StatusBadRequest, "bad_color", nil, "bad color")
		return
	}
	view := s.cfg.Game.View()
	s.command(ctx, "play", func(c context.Context) error { return s.cfg.Game.Play(c, color, req.Vertex) },
		map[string]any{"Vertex": strings.ToUpper(strings.TrimSpace(req.Vertex)), "BoardSize": view.BoardSize, "Next": colorName(view.Next)})
}

func (s *Server) pass(ctx *fasthttp.RequestCtx) {
	var req shelldto.PassRequest
	if !s.decode(ctx, &req) {
		return
	}
	color, ok := parseColor(req.Color)
	if !ok {
		s.fail(ctx, fasthttp.StatusBadRequest, "bad_color", nil, "bad color")
		return
	}
	s.command(ctx, "pass", func(c context.Context) error { return s.cfg.Game.Pass(c, color) },
		map[string]any{"Next": colorName(s.cfg.Game.View().Next)})
}

// command runs fn on the runner and answers with the resulting game state.
// Mutations are refused while suspended: their save would wait for resume.
func (s *Server) command(ctx *fasthttp.RequestCtx, name string, fn func(context.Context) error, data map[string]any) {
	if s.cfg.Lifecycle != nil && s.cfg.Lifecycle.Suspended() {
		s.failRetry(ctx, fasthttp.StatusServiceUnavailable, "suspended", nil, "suspended")
		return
	}
	c, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()
	if err := s.cfg.Runner.Submit(c, name, fn); err != nil {
		s.commandError(ctx, name, err, data)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, shelldto.GameResponse{State: s.state()})
}

func (s *Server) commandError(ctx *fasthttp.RequestCtx, name string, err error, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	switch {
	case contract.IsViolation(err):
		data["Detail"] = err.Error()
		s.logger.Error("control_contract_violation", zap.String("command", name), zap.Error(err))
		s.fail(ctx, fasthttp.StatusInternalServerError, "contract_violation", data, err.Error())
	case errors.Is(err, domain.ErrIllegalVertex):
		s.fail(ctx, fasthttp.StatusBadRequest, "illegal_vertex", data, err.Error())
	case errors.Is(err, domain.ErrBadBoardSize):
		s.fail(ctx, fasthttp.StatusBadRequest, "bad_board_size", data, err.Error())
	case errors.Is(err, game.ErrBadHandicap):
		s.fail(ctx, fasthttp.StatusBadRequest, "bad_handicap", data, err.Error())
	case errors.Is(err, game.ErrOccupied):
		s.fail(ctx, fasthttp.StatusConflict, "occupied", data, err.Error())
	case errors.Is(err, game.ErrSuicide):
		s.fail(ctx, fasthttp.StatusConflict, "suicide", data, err.Error())
	case errors.Is(err, game.ErrNotYourTurn):
		s.fail(ctx, fasthttp.StatusConflict, "not_your_turn", data, err.Error())
	case errors.Is(err, game.ErrNothingToUndo):
		s.fail(ctx, fasthttp.StatusConflict, "nothing_to_undo", data, err.Error())
	case errors.Is(err, executor.ErrClosed), errors.Is(err, context.DeadlineExceeded):
		s.failRetry(ctx, fasthttp.StatusServiceUnavailable, "internal", data, err.Error())
	default:
		s.logger.Error("control_command_failed", zap.String("command", name), zap.Error(err))
		s.fail(ctx, fasthttp.StatusInternalServerError, "internal", data, err.Error())
	}
}

func (s *Server) suspend(ctx *fasthttp.RequestCtx) {
	if s.cfg.Lifecycle == nil {
		s.fail(ctx, fasthttp.StatusNotFound, "not_found", map[string]any{"Path": string(ctx.Path())}, "not found")
		return
	}
	c, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()
	if err := s.cfg.Lifecycle.Suspend(c, "control"); err != nil {
		s.commandError(ctx, "suspend", err, nil)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, shelldto.LifecycleResponse{Suspended: true, Message: s.text("lifecycle.suspended")})
}

func (s *Server) resume(ctx *fasthttp.RequestCtx) {
	if s.cfg.Lifecycle == nil {
		s.fail(ctx, fasthttp.StatusNotFound, "not_found", map[string]any{"Path": string(ctx.Path())}, "not found")
		return
	}
	if err := s.cfg.Lifecycle.Resume("control"); err != nil {
		s.commandError(ctx, "resume", err, nil)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, shelldto.LifecycleResponse{Suspended: false, Message: s.text("lifecycle.resumed")})
}

func (s *Server) decode(ctx *fasthttp.RequestCtx, v any) bool {
	body := ctx.PostBody()
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, v); err != nil {
		s.fail(ctx, fasthttp.StatusBadRequest, "bad_request", map[string]any{"Detail": err.Error()}, err.Error())
		return false
	}
	return true
}

func (s *Server) text(key string) string {
	if s.cfg.Messages == nil {
		return ""
	}
	out, err := s.cfg.Messages.Render(key, nil)
	if err != nil {
		return ""
	}
	return out
}

func (s *Server) fail(ctx *fasthttp.RequestCtx, status int, code string, data map[string]any, fallback string) {
	writeJSON(ctx, status, shelldto.ErrorResponse{Code: code, Message: s.cfg.Messages.ErrorText(code, data, fallback)})
}

func (s *Server) failRetry(ctx *fasthttp.RequestCtx, status int, code string, data map[string]any, fallback string) {
	writeJSON(ctx, status, shelldto.ErrorResponse{Code: code, Message: s.cfg.Messages.ErrorText(code, data, fallback), Retryable: true})
}

func (s *Server) state() *shelldto.GameState {
	return ToState(s.cfg.Game.View())
}

// ToState converts a game view to its API form.
func ToState(v game.View) *shelldto.GameState {
	st := &shelldto.GameState{
		ID:        v.ID,
		BoardSize: v.BoardSize,
		Komi:      v.Komi,
		Handicap:  v.Handicap,
		Next:      colorName(v.Next),
		Moves:     make([]shelldto.Move, 0, len(v.Moves)),
		MoveCount: len(v.Moves),
		Rows:      v.Rows,
		Captured: shelldto.Captured{
			Black: v.Captured[domain.Black],
			White: v.Captured[domain.White],
		},
	}
	for _, m := range v.Moves {
		st.Moves = append(st.Moves, shelldto.Move{Color: colorName(m.Color), Vertex: m.Vertex})
	}
	return st
}

func parseColor(s string) (domain.Color, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "b", "black":
		return domain.Black, true
	case "w", "white":
		return domain.White, true
	default:
		return "", false
	}
}

func colorName(c domain.Color) string {
	switch c {
	case domain.Black:
		return "black"
	case domain.White:
		return "white"
	default:
		return ""
	}
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"error":"internal","message":"encode response"}`)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}
