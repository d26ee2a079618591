// Package httpapi is the control-plane HTTP surface. Grounded
// on e2e/trading/mockserver/server.go's gorilla/mux router and
// http.Error/json response style, adapted from mocking a broker's REST
// API to exposing the runtime's own deploy/list/pause/resume/stop
// surface.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-trading/internal/config"
	"github.com/rxtech-lab/argo-trading/internal/credentials"
	"github.com/rxtech-lab/argo-trading/internal/evaluator"
	"github.com/rxtech-lab/argo-trading/internal/logging"
	"github.com/rxtech-lab/argo-trading/internal/stats"
	"github.com/rxtech-lab/argo-trading/internal/supervisor"
	"github.com/rxtech-lab/argo-trading/internal/types"
	"github.com/rxtech-lab/argo-trading/pkg/errors"
)

// uploadMaxBytes bounds a single strategy source upload.
const uploadMaxBytes = 1 << 20 // 1 MiB

// Server wraps a Supervisor with the HTTP surface requires.
type Server struct {
	sup           *supervisor.Supervisor
	evaluators    map[string]evaluator.SignalEvaluator
	statsMgr      *stats.Manager
	credStore     *credentials.Store
	strategiesDir string
	log           *logging.Logger
	router        *mux.Router
}

// New builds the control-plane router. strategiesDir is where
// POST /upload_strategy saves uploaded strategy source files.
func New(sup *supervisor.Supervisor, evaluators map[string]evaluator.SignalEvaluator, statsMgr *stats.Manager, credStore *credentials.Store, strategiesDir string, log *logging.Logger) *Server {
	s := &Server{
		sup: sup, evaluators: evaluators, statsMgr: statsMgr, credStore: credStore,
		strategiesDir: strategiesDir, log: log.Component("httpapi"),
	}

	router := mux.NewRouter()
	router.HandleFunc("/deploy/validate", s.handleDeployValidate).Methods(http.MethodPost)
	router.HandleFunc("/deploy/start", s.handleDeployStart).Methods(http.MethodPost)
	router.HandleFunc("/upload_strategy", s.handleUploadStrategy).Methods(http.MethodPost)
	router.HandleFunc("/config", s.handleConfig).Methods(http.MethodPost)
	router.HandleFunc("/strategies", s.handleListStrategies).Methods(http.MethodGet)
	router.HandleFunc("/strategies/{id}", s.handleGetStrategy).Methods(http.MethodGet)
	router.HandleFunc("/strategies/{id}/statistics", s.handleStatistics).Methods(http.MethodGet)
	router.HandleFunc("/strategies/{id}/pause", s.handlePause).Methods(http.MethodPost)
	router.HandleFunc("/strategies/{id}/resume", s.handleResume).Methods(http.MethodPost)
	router.HandleFunc("/strategies/{id}/stop", s.handleStop).Methods(http.MethodPost)
	router.HandleFunc("/engines", s.handleEngines).Methods(http.MethodGet)

	s.router = router

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch errors.GetCode(err) {
	case errors.ErrCodeInvalidConfiguration, errors.ErrCodeInvalidParameter, errors.ErrCodeUnknownEngine, errors.ErrCodeStrategyFileNotFound, errors.ErrCodeAllocationExceeded:
		status = http.StatusBadRequest
	case errors.ErrCodeStrategyNotFound:
		status = http.StatusNotFound
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeDeploySpecBody(r *http.Request) (supervisor.DeploySpec, error) {
	var file config.DeploySpecFile
	if err := json.NewDecoder(r.Body).Decode(&file); err != nil {
		return supervisor.DeploySpec{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "decoding deploy spec body", err)
	}

	return config.DeploySpecFromFile(file)
}

func (s *Server) handleDeployValidate(w http.ResponseWriter, r *http.Request) {
	spec, err := decodeDeploySpecBody(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if _, ok := s.evaluators[spec.Engine]; !ok {
		writeError(w, errors.Newf(errors.ErrCodeUnknownEngine, "unknown engine %q", spec.Engine))
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

func (s *Server) handleDeployStart(w http.ResponseWriter, r *http.Request) {
	spec, err := decodeDeploySpecBody(r)
	if err != nil {
		writeError(w, err)
		return
	}

	id, err := s.sup.Deploy(r.Context(), spec)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// uploadStrategyResponse is the body of a successful /upload_strategy call.
type uploadStrategyResponse struct {
	Path string `json:"path"`
}

func (s *Server) handleUploadStrategy(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(uploadMaxBytes); err != nil {
		writeError(w, errors.Wrap(errors.ErrCodeInvalidParameter, "parsing upload", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, errors.Wrap(errors.ErrCodeInvalidParameter, "reading uploaded file", err))
		return
	}
	defer file.Close()

	if err := os.MkdirAll(s.strategiesDir, 0o755); err != nil {
		writeError(w, errors.Wrap(errors.ErrCodeInvalidConfiguration, "creating strategies directory", err))
		return
	}

	// filepath.Base strips any directory components a client might smuggle
	// into the multipart filename, keeping the write inside strategiesDir.
	dest := filepath.Join(s.strategiesDir, filepath.Base(header.Filename))

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		writeError(w, errors.Wrap(errors.ErrCodeInvalidConfiguration, "creating strategy file", err))
		return
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		writeError(w, errors.Wrap(errors.ErrCodeInvalidConfiguration, "saving strategy file", err))
		return
	}

	s.log.Info("strategy source uploaded", zap.String("path", dest))

	writeJSON(w, http.StatusCreated, uploadStrategyResponse{Path: dest})
}

// configRequest is the JSON body of a /config call: it stores a single
// provider credential, e.g. {"provider":"binance","key":"api_key","value":"..."}.
type configRequest struct {
	Provider string `json:"provider"`
	Key      string `json:"key"`
	Value    string `json:"value"`
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	var body configRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errors.Wrap(errors.ErrCodeInvalidConfiguration, "decoding config body", err))
		return
	}

	if body.Provider == "" || body.Key == "" {
		writeError(w, errors.New(errors.ErrCodeInvalidConfiguration, "provider and key are required"))
		return
	}

	if err := s.credStore.Set(body.Provider, body.Key, body.Value); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, nil)
}

// listStrategiesResponse envelopes the active strategy set.
type listStrategiesResponse struct {
	Strategies []types.StrategyRecord `json:"strategies"`
}

func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listStrategiesResponse{Strategies: s.sup.List()})
}

func (s *Server) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	rec, err := s.sup.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	snap, err := s.statsMgr.Snapshot(id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.sup.Pause(id); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.sup.Resume(id); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, nil)
}

// stopRequest is the optional JSON body for a stop request.
type stopRequest struct {
	Liquidate bool `json:"liquidate"`
	Force     bool `json:"force"`
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var body stopRequest
	_ = json.NewDecoder(r.Body).Decode(&body) // absent/empty body means default StopOptions

	snap, err := s.sup.Stop(r.Context(), id, supervisor.StopOptions{Liquidate: body.Liquidate, Force: body.Force})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// engineInfo describes one registered evaluator engine. Reason is only
// populated for an engine that failed to load and is kept in the map as a
// placeholder; every entry currently reachable through evaluators loaded
// successfully, so Available is always true today.
type engineInfo struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// enginesResponse envelopes the set of engines the daemon knows about.
type enginesResponse struct {
	Engines []engineInfo `json:"engines"`
}

func (s *Server) handleEngines(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.evaluators))
	for name := range s.evaluators {
		names = append(names, name)
	}

	sort.Strings(names)

	engines := make([]engineInfo, 0, len(names))
	for _, name := range names {
		engines = append(engines, engineInfo{Name: name, Available: true})
	}

	writeJSON(w, http.StatusOK, enginesResponse{Engines: engines})
}
