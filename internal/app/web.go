package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/relabs-tech/manipulator/internal/config"
	"github.com/relabs-tech/manipulator/internal/kinematics"
	"github.com/relabs-tech/manipulator/internal/logging"
	"github.com/relabs-tech/manipulator/internal/orientation"
	"github.com/relabs-tech/manipulator/internal/trajectory"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// Controller is what the web API drives.
type Controller interface {
	GetKinematicsPose(ctx context.Context, group string) (kinematics.Pose, error)
	TrajectorySin(ctx context.Context, req trajectory.Request) (trajectory.Sequence, error)
	SetGripper(ctx context.Context, cmd kinematics.GripperCommand) error
}

// StatusSource reports the latest manipulation module status.
type StatusSource interface {
	Status() kinematics.ArmStatus
}

// TrajectoryRequest is the body of POST /api/trajectory. Angles in degrees.
type TrajectoryRequest struct {
	Group string  `json:"group"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	XC    float64 `json:"xc"`
	YC    float64 `json:"yc"`
	ZC    float64 `json:"zc"`
	Time  float64 `json:"time"`
	Res   float64 `json:"res"`
}

// Request converts the body to a trajectory request.
func (r TrajectoryRequest) Request() trajectory.Request {
	return trajectory.Request{
		Group:       r.Group,
		Target:      r3.Vector{X: r.X, Y: r.Y, Z: r.Z},
		Orientation: orientation.Pose{Roll: r.Roll, Pitch: r.Pitch, Yaw: r.Yaw},
		Arc:         r3.Vector{X: r.XC, Y: r.YC, Z: r.ZC},
		Duration:    r.Time,
		Resolution:  r.Res,
	}
}

// TrajectoryResponse summarises a published trajectory.
type TrajectoryResponse struct {
	Group     string  `json:"group"`
	Rule      string  `json:"rule"`
	Waypoints int     `json:"waypoints"`
	Res       float64 `json:"res"`
}

// GripperRequest is the body of POST /api/gripper: either group, grip and
// thumb_yaw, or joints with degrees.
type GripperRequest struct {
	Group    string    `json:"group,omitempty"`
	Grip     float64   `json:"grip,omitempty"`
	ThumbYaw float64   `json:"thumb_yaw,omitempty"`
	Joints   []string  `json:"joints,omitempty"`
	Degrees  []float64 `json:"degrees,omitempty"`
}

// Command converts the body to a gripper command.
func (r GripperRequest) Command() kinematics.GripperCommand {
	if len(r.Joints) > 0 || len(r.Degrees) > 0 {
		return kinematics.JointGrip(r.Joints, r.Degrees)
	}
	return kinematics.GroupGrip(r.Group, r.Grip, r.ThumbYaw)
}

// WebServer serves the manipulator API and streams status over websockets.
type WebServer struct {
	ctl    Controller
	status StatusSource
	logger *zap.SugaredLogger

	mu      sync.Mutex
	clients map[chan kinematics.ArmStatus]struct{}
}

// NewWebServer returns a server for ctl and status.
func NewWebServer(ctl Controller, status StatusSource, logger *zap.SugaredLogger) *WebServer {
	return &WebServer{
		ctl:     ctl,
		status:  status,
		logger:  logger,
		clients: make(map[chan kinematics.ArmStatus]struct{}),
	}
}

// Handler returns the API routes.
func (s *WebServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/pose", s.handlePose)
	mux.HandleFunc("POST /api/trajectory", s.handleTrajectory)
	mux.HandleFunc("POST /api/gripper", s.handleGripper)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /ws/status", s.handleStatusWS)
	return mux
}

// Broadcast pushes st to every websocket client. Slow clients miss updates
// rather than block the caller.
func (s *WebServer) Broadcast(st kinematics.ArmStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.clients {
		select {
		case ch <- st:
		default:
		}
	}
}

func (s *WebServer) handlePose(w http.ResponseWriter, r *http.Request) {
	group := r.URL.Query().Get("group")
	if group == "" {
		group = kinematics.GroupLeftArm
	}
	p, err := s.ctl.GetKinematicsPose(r.Context(), group)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *WebServer) handleTrajectory(w http.ResponseWriter, r *http.Request) {
	var body TrajectoryRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("bad request body: %v", err), http.StatusBadRequest)
		return
	}
	seq, err := s.ctl.TrajectorySin(r.Context(), body.Request())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, TrajectoryResponse{
		Group:     seq.Group,
		Rule:      seq.Rule.String(),
		Waypoints: seq.Len(),
		Res:       seq.Resolution,
	})
}

func (s *WebServer) handleGripper(w http.ResponseWriter, r *http.Request) {
	var body GripperRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("bad request body: %v", err), http.StatusBadRequest)
		return
	}
	if err := s.ctl.SetGripper(r.Context(), body.Command()); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *WebServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.status.Status())
}

// handleStatusWS sends the current status, then every update until the
// client goes away.
func (s *WebServer) handleStatusWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("web: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	updates := make(chan kinematics.ArmStatus, 8)
	s.mu.Lock()
	s.clients[updates] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.clients, updates)
		s.mu.Unlock()
	}()

	// reader: only needed to notice the close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Warnf("web: websocket error: %v", err)
				}
				return
			}
		}
	}()

	if err := conn.WriteJSON(s.status.Status()); err != nil {
		return
	}
	for {
		select {
		case st := <-updates:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(st); err != nil {
				s.logger.Warnf("web: websocket write error: %v", err)
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *WebServer) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warnf("web: json encode error: %v", err)
	}
}

func (s *WebServer) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, kinematics.ErrInvalidArgument):
		code = http.StatusBadRequest
	case errors.Is(err, kinematics.ErrServiceUnavailable):
		code = http.StatusServiceUnavailable
	}
	s.logger.Warnf("web: %v", err)
	http.Error(w, err.Error(), code)
}

// RunWeb serves the API and the static files in ./web until ctx is done.
func RunWeb(ctx context.Context) error {
	cfg := config.Get()
	logger := logging.L()

	ctl, err := connect(ctx, cfg, cfg.MQTTClientIDWeb, logger)
	if err != nil {
		return err
	}
	defer ctl.Close()

	watcher := kinematics.NewStatusWatcher(ctl.bus, cfg.TopicStatus, logger)
	srv := NewWebServer(ctl, watcher, logger)
	watcher.OnUpdate = srv.Broadcast
	stop, err := watcher.Start(ctx)
	if err != nil {
		return err
	}
	defer stop()

	api := srv.Handler()
	mux := http.NewServeMux()
	mux.Handle("/api/", api)
	mux.Handle("/ws/", api)
	mux.Handle("/", http.FileServer(http.Dir("web")))

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	httpSrv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Infof("web: server listening on %s", addr)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

var (
	_ StatusSource = (*kinematics.StatusWatcher)(nil)
	_ Controller   = (*kinematics.Kinematics)(nil)
)
