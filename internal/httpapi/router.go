// Package httpapi implements the literal path-based REST surface in front
// of the Session Manager, using chi for routing.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/skybridge-systems/mavsessiond/internal/config"
	"github.com/skybridge-systems/mavsessiond/internal/flightlog"
	"github.com/skybridge-systems/mavsessiond/internal/logging"
	"github.com/skybridge-systems/mavsessiond/internal/middleware"
	"github.com/skybridge-systems/mavsessiond/internal/session"
	"github.com/skybridge-systems/mavsessiond/internal/sessionmanager"
)

// sessionHandle is the subset of *session.Session the HTTP handlers call.
type sessionHandle interface {
	Arm() error
	Disarm() error
	Takeoff(height float32) error
	Land() error
	ReturnToLaunch() error
	SetMode(mode string) error
	SetParameter(id string, value float32) error
	GetAvailableModes() ([]string, error)
	GetDroneInfo() session.DroneInfo
	GetAllParameters() (map[string]float32, error)
}

// kinder is implemented by every error type in the session package's
// taxonomy, letting handlers map errors to HTTP status without a type
// switch per error.
type kinder interface {
	Kind() string
}

// kindStatus maps taxonomy kinds to HTTP status codes. A session that is
// registered but disconnected yields 400 DroneNotConnected; addressing a
// connection string with no registered session at all yields 404 instead
// (see withSession).
var kindStatus = map[string]int{
	"DroneNotConnected":     http.StatusBadRequest,
	"DroneAlreadyConnected": http.StatusBadRequest,
	"AckTimeout":            http.StatusBadRequest,
	"CommandFailed":         http.StatusBadRequest,
	"ValueError":            http.StatusBadRequest,
	"KeyNotFound":           http.StatusNotFound,
}

// Router builds the chi.Router implementing the REST surface.
type Router struct {
	manager *sessionmanager.Manager
	cfg     config.Config
	logger  *logging.Logger
	drones  *config.DroneRegistry
}

// New constructs a Router. drones may be nil if no registry file is configured.
func New(manager *sessionmanager.Manager, cfg config.Config, logger *logging.Logger, drones *config.DroneRegistry) *Router {
	return &Router{manager: manager, cfg: cfg, logger: logger, drones: drones}
}

// Handler assembles the chi.Mux with middleware and all routes.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(rt.logger))
	r.Use(middleware.CORS(rt.cfg.Server.CORSOrigins))

	r.Get("/healthz", rt.handleHealthz)

	r.Get("/connect/{conn}", rt.handleConnect)
	r.Get("/{conn}/disconnect", rt.handleDisconnect)
	r.Get("/{conn}/arm", rt.handleArm)
	r.Get("/{conn}/disarm", rt.handleDisarm)
	r.Get("/{conn}/takeoff/{h}", rt.handleTakeoff)
	r.Get("/{conn}/land", rt.handleLand)
	r.Get("/{conn}/rtl", rt.handleRTL)
	r.Get("/{conn}/modes", rt.handleModes)
	r.Get("/{conn}/set_mode/{m}", rt.handleSetMode)
	r.Get("/{conn}/set_parameter/{id}/{v}", rt.handleSetParameter)
	r.Get("/{conn}/drone_info", rt.handleDroneInfo)
	r.Get("/drones_info", rt.handleDronesInfo)
	r.Get("/{conn}/drone_parameters", rt.handleDroneParameters)

	r.Get("/logs", rt.handleListLogs)
	r.Get("/logs/{filename}", rt.handleReadLog)
	r.Delete("/logs/{filename}", rt.handleDeleteLog)
	r.Get("/logs/download/{filename}", rt.handleDownloadLog)

	return r
}

// resolveConn extracts the {conn} URL parameter, translating a literal "+"
// back into "/" (raw connection strings such as "serial:/dev/ttyUSB0:57600"
// would otherwise be split across path segments), then resolves it through
// the optional drone registry.
func (rt *Router) resolveConn(r *http.Request) string {
	conn := strings.ReplaceAll(chi.URLParam(r, "conn"), "+", "/")
	return rt.drones.Resolve(conn)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps a taxonomy error (or a plain error, as 500) to a JSON
// {response, type} body.
func writeError(w http.ResponseWriter, err error) {
	if k, ok := err.(kinder); ok {
		status, ok := kindStatus[k.Kind()]
		if !ok {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, map[string]string{"response": err.Error(), "type": k.Kind()})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"response": err.Error(), "type": "Unknown"})
}

func writeSessionNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"response": "no session for connection string",
		"type":     "DroneNotConnected",
	})
}

func (rt *Router) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (rt *Router) handleConnect(w http.ResponseWriter, r *http.Request) {
	conn := rt.resolveConn(r)
	if err := rt.manager.ConnectDrone(conn); err != nil {
		// Connect has its own contract: only an already-connected session is
		// the caller's fault; every other connect failure (no heartbeat,
		// parameter retrieval, transport) is a 500.
		if k, ok := err.(kinder); ok && k.Kind() == "DroneAlreadyConnected" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"response": err.Error(), "type": k.Kind()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"response": err.Error(), "type": "Unknown"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Connected to drone"})
}

func (rt *Router) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	conn := rt.resolveConn(r)
	if err := rt.manager.DisconnectDrone(conn); err != nil {
		// Both a missing session and a registered-but-disconnected one
		// answer 404 here: there is nothing to disconnect.
		writeJSON(w, http.StatusNotFound, map[string]string{"response": err.Error(), "type": "DroneNotConnected"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Disconnected from drone"})
}

func (rt *Router) withSession(w http.ResponseWriter, r *http.Request, fn func(s sessionHandle)) {
	conn := rt.resolveConn(r)
	s, ok := rt.manager.Get(conn)
	if !ok {
		writeSessionNotFound(w)
		return
	}
	fn(s)
}

func (rt *Router) handleArm(w http.ResponseWriter, r *http.Request) {
	rt.withSession(w, r, func(s sessionHandle) {
		if err := s.Arm(); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Arming"})
	})
}

func (rt *Router) handleDisarm(w http.ResponseWriter, r *http.Request) {
	rt.withSession(w, r, func(s sessionHandle) {
		if err := s.Disarm(); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Disarming"})
	})
}

func (rt *Router) handleTakeoff(w http.ResponseWriter, r *http.Request) {
	height, err := strconv.ParseFloat(chi.URLParam(r, "h"), 32)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"response": "invalid height", "type": "ValueError"})
		return
	}
	rt.withSession(w, r, func(s sessionHandle) {
		if err := s.Takeoff(float32(height)); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Taking off"})
	})
}

func (rt *Router) handleLand(w http.ResponseWriter, r *http.Request) {
	rt.withSession(w, r, func(s sessionHandle) {
		if err := s.Land(); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Landing"})
	})
}

func (rt *Router) handleRTL(w http.ResponseWriter, r *http.Request) {
	rt.withSession(w, r, func(s sessionHandle) {
		if err := s.ReturnToLaunch(); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Returning to launch"})
	})
}

func (rt *Router) handleModes(w http.ResponseWriter, r *http.Request) {
	rt.withSession(w, r, func(s sessionHandle) {
		modes, err := s.GetAvailableModes()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"modes": modes})
	})
}

func (rt *Router) handleSetMode(w http.ResponseWriter, r *http.Request) {
	mode := chi.URLParam(r, "m")
	rt.withSession(w, r, func(s sessionHandle) {
		if err := s.SetMode(mode); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Setting mode to " + mode})
	})
}

func (rt *Router) handleSetParameter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	vStr := chi.URLParam(r, "v")
	v, err := strconv.ParseFloat(vStr, 32)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"response": "invalid parameter value", "type": "ValueError"})
		return
	}
	rt.withSession(w, r, func(s sessionHandle) {
		if err := s.SetParameter(id, float32(v)); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Setting parameter " + id + " to " + vStr})
	})
}

func (rt *Router) handleDroneInfo(w http.ResponseWriter, r *http.Request) {
	rt.withSession(w, r, func(s sessionHandle) {
		writeJSON(w, http.StatusOK, s.GetDroneInfo())
	})
}

func (rt *Router) handleDronesInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rt.manager.AllInfo())
}

func (rt *Router) handleDroneParameters(w http.ResponseWriter, r *http.Request) {
	rt.withSession(w, r, func(s sessionHandle) {
		params, err := s.GetAllParameters()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, params)
	})
}

func (rt *Router) handleListLogs(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("connection_string")
	logs, err := flightlog.List(rt.cfg.FlightLog.Directory, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": logs})
}

func (rt *Router) handleReadLog(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	maxEntries := 0
	if raw := r.URL.Query().Get("max_entries"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			maxEntries = n
		}
	}

	entries, truncated, err := flightlog.ReadEntries(rt.cfg.FlightLog.Directory, filename, maxEntries)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"response": err.Error(), "type": "NotFound"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries":   entries,
		"total":     len(entries),
		"truncated": truncated,
	})
}

func (rt *Router) handleDeleteLog(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if err := flightlog.Delete(rt.cfg.FlightLog.Directory, filename); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"response": err.Error(), "type": "NotFound"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "deleted " + filename})
}

func (rt *Router) handleDownloadLog(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	f, err := flightlog.Open(rt.cfg.FlightLog.Directory, filename)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"response": err.Error(), "type": "NotFound"})
		return
	}
	defer f.Close()

	w.Header().Set("Content-Disposition", "attachment; filename=\""+filename+"\"")
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = io.Copy(w, f)
}
