package server

import (
	"encoding/json"
	"net/http"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/quickmod/pkg/buildinfo"
	qerrors "github.com/matzehuels/quickmod/pkg/errors"
	"github.com/matzehuels/quickmod/pkg/manifest"
	"github.com/matzehuels/quickmod/pkg/quickmod"
	"github.com/matzehuels/quickmod/pkg/resolve"
)

// maxBodySize bounds request bodies.
const maxBodySize = 1 << 20

// ResolutionRequest starts a resolution. Mods are uids or descriptor URLs.
type ResolutionRequest struct {
	Mods     []string `json:"mods"`
	FailFast bool     `json:"failFast,omitempty"`
}

// InstallRequest starts an install.
type InstallRequest struct {
	Mods        []string `json:"mods"`
	GameVersion string   `json:"gameVersion,omitempty"`
	FailFast    bool     `json:"failFast,omitempty"`
}

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"build":  buildinfo.Get(),
	})
}

func (s *Server) handleStartResolution(w http.ResponseWriter, r *http.Request) {
	var req ResolutionRequest
	if !s.decode(w, r, &req) {
		return
	}
	seeds, err := parseSeeds(req.Mods)
	if err != nil {
		s.writeError(w, err)
		return
	}
	run := s.startResolution(seeds, req.FailFast)
	writeJSON(w, http.StatusAccepted, run.snapshot())
}

func (s *Server) handleGetResolution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, ok := s.resolution(id)
	if !ok {
		s.writeError(w, qerrors.New(qerrors.ErrCodeNotFound, "no resolution %s", id))
		return
	}
	writeJSON(w, http.StatusOK, run.snapshot())
}

func (s *Server) handleStartInstall(w http.ResponseWriter, r *http.Request) {
	var req InstallRequest
	if !s.decode(w, r, &req) {
		return
	}
	seeds, err := parseSeeds(req.Mods)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if s.opts.Downloader == nil {
		s.writeError(w, qerrors.New(qerrors.ErrCodeUnsupported, "this server does not download"))
		return
	}
	gameVersion := req.GameVersion
	if gameVersion == "" {
		gameVersion = s.opts.GameVersion
	}
	run := s.startInstall(seeds, gameVersion, req.FailFast)
	writeJSON(w, http.StatusAccepted, run.snapshot())
}

func (s *Server) handleGetInstall(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, ok := s.install(id)
	if !ok {
		s.writeError(w, qerrors.New(qerrors.ErrCodeNotFound, "no install %s", id))
		return
	}
	writeJSON(w, http.StatusOK, run.snapshot())
}

func (s *Server) handleListMods(w http.ResponseWriter, r *http.Request) {
	match := r.URL.Query().Get("match")
	if match != "" && !doublestar.ValidatePattern(match) {
		s.writeError(w, qerrors.New(qerrors.ErrCodeInvalidInput, "invalid pattern %q", match))
		return
	}
	out := []ModSummary{}
	for _, m := range s.opts.Store.All() {
		if match != "" {
			if ok, _ := doublestar.Match(match, string(m.UID)); !ok {
				continue
			}
		}
		out = append(out, summarize(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetMod(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	if err := qerrors.ValidateUID(uid); err != nil {
		s.writeError(w, err)
		return
	}
	m, ok := s.opts.Store.Lookup(quickmod.UID(uid))
	if !ok {
		s.writeError(w, qerrors.New(qerrors.ErrCodeNotFound, "no descriptor for %s", uid))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func parseSeeds(mods []string) ([]resolve.Seed, error) {
	if len(mods) == 0 {
		return nil, qerrors.New(qerrors.ErrCodeInvalidInput, "no mods given")
	}
	return manifest.ParseArgs(mods)
}

// decode reads a JSON request body into v, answering 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, qerrors.Wrap(qerrors.ErrCodeInvalidInput, err, "invalid request body"))
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := qerrors.GetCode(err)
	if code == "" {
		code = qerrors.ErrCodeInternal
	}
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Code: string(code), Error: qerrors.UserMessage(err)})
}

func statusFor(code qerrors.Code) int {
	switch code {
	case qerrors.ErrCodeInvalidInput, qerrors.ErrCodeInvalidUID, qerrors.ErrCodeInvalidManifest:
		return http.StatusBadRequest
	case qerrors.ErrCodeNotFound:
		return http.StatusNotFound
	case qerrors.ErrCodeUnsupported:
		return http.StatusNotImplemented
	case qerrors.ErrCodeStoreUnusable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
