package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/mux"
	"github.com/nvsettings/nvsettings/internal/settings"
	"github.com/nvsettings/nvsettings/internal/webcodec"
	"github.com/sirupsen/logrus"
)

// maxFormBytes bounds a submitted settings form
const maxFormBytes = 64 << 10

const contentTypeCBOR = "application/cbor"

// APIResponse wraps every JSON or CBOR reply
type APIResponse struct {
	Success bool        `json:"success" cbor:"success"`
	Data    interface{} `json:"data,omitempty" cbor:"data,omitempty"`
	Error   string      `json:"error,omitempty" cbor:"error,omitempty"`
}

// UpdateResponse is returned after a form submission
type UpdateResponse struct {
	Result   webcodec.Result    `json:"result" cbor:"result"`
	Settings *webcodec.Document `json:"settings" cbor:"settings"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, map[string]string{
		"status": "healthy",
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	})
}

// handleGetSettings returns the projection. The action query parameter
// lets a plain GET set, erase or restart as well.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	switch action := r.URL.Query().Get("action"); action {
	case "":
	case "set":
		body, err := io.ReadAll(io.LimitReader(r.Body, maxFormBytes))
		if err != nil {
			s.writeError(w, r, "Failed to read request body", http.StatusBadRequest)
			return
		}
		s.applyForm(w, r, string(body))
		return
	case "erase":
		s.handleErase(w, r)
		return
	case "restart":
		s.handleRestart(w, r)
		return
	default:
		s.writeError(w, r, "Unknown action: "+action, http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	doc := webcodec.Project(s.pack)
	s.mu.Unlock()

	s.writeJSON(w, r, doc)
}

func (s *Server) handlePostSettings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxFormBytes))
	if err != nil {
		s.writeError(w, r, "Failed to read request body", http.StatusBadRequest)
		return
	}
	s.applyForm(w, r, string(body))
}

// applyForm parses a URL-encoded form into the pack and saves it
func (s *Server) applyForm(w http.ResponseWriter, r *http.Request, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := webcodec.ParseQuery(s.pack, body)
	if err != nil {
		s.writeError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	logger := s.logger.WithFields(logrus.Fields{
		"changed":   result.Changed,
		"rejected":  result.Rejected,
		"malformed": result.Malformed,
	})
	if err := s.codec.Save(r.Context(), s.pack); err != nil {
		logger.WithError(err).Error("Settings save failed")
		s.writeError(w, r, "Failed to save settings: "+err.Error(), http.StatusInternalServerError)
		return
	}
	logger.Info("Settings updated")

	s.writeJSON(w, r, UpdateResponse{Result: result, Settings: webcodec.Project(s.pack)})
}

func (s *Server) handleErase(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.codec.Erase(r.Context(), s.pack); err != nil {
		s.writeError(w, r, "Failed to erase settings: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, r, webcodec.Project(s.pack))
}

// handleRestart answers first and restarts afterwards
func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	s.logger.Warn("Restart requested")
	s.writeJSON(w, r, map[string]string{"status": "restarting"})
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	s.restart()
}

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	setting, ok := s.findSetting(w, r)
	if !ok {
		return
	}
	if dt, isDT := setting.Value.(*settings.DateTime); isDT {
		dt.Sync(s.pack.Now())
	}
	s.writeJSON(w, r, webcodec.ProjectSetting(setting))
}

// handlePutSetting assigns the form field "value" to one setting and
// persists only that setting.
func (s *Server) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		s.writeError(w, r, "Invalid form body", http.StatusBadRequest)
		return
	}
	values, present := r.PostForm["value"]

	s.mu.Lock()
	defer s.mu.Unlock()

	setting, ok := s.findSetting(w, r)
	if !ok {
		return
	}
	if setting.Disabled {
		s.writeError(w, r, webcodec.ErrDisabled.Error(), http.StatusForbidden)
		return
	}

	raw := ""
	if present && len(values) > 0 {
		raw = values[0]
	} else if _, isBool := setting.Value.(*settings.Bool); !isBool {
		s.writeError(w, r, "Missing form field: value", http.StatusBadRequest)
		return
	}

	if err := webcodec.Assign(setting, raw); err != nil {
		switch {
		case errors.Is(err, webcodec.ErrRejected):
			s.metricsManager.RecordSetterRejection(string(setting.Type()))
			s.writeError(w, r, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, webcodec.ErrMalformed):
			s.writeError(w, r, err.Error(), http.StatusBadRequest)
		default:
			s.writeError(w, r, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	if err := s.codec.WriteSingle(r.Context(), s.pack, setting); err != nil {
		s.writeError(w, r, "Failed to save setting: "+err.Error(), http.StatusInternalServerError)
		return
	}

	s.logger.WithField("key", setting.Key()).Info("Setting updated")
	s.writeJSON(w, r, webcodec.ProjectSetting(setting))
}

// findSetting resolves the route variables, answering 404 itself
func (s *Server) findSetting(w http.ResponseWriter, r *http.Request) (*settings.Setting, bool) {
	vars := mux.Vars(r)
	setting, err := s.pack.Find(vars["group"], vars["setting"])
	if err != nil {
		s.writeError(w, r, err.Error(), http.StatusNotFound)
		return nil, false
	}
	return setting, true
}

// Helper methods

func wantsCBOR(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), contentTypeCBOR)
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, data interface{}) {
	s.writeResponse(w, r, http.StatusOK, APIResponse{Success: true, Data: data})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	s.writeResponse(w, r, statusCode, APIResponse{Success: false, Error: message})
	s.logger.WithField("error", message).WithField("status", statusCode).Warn("API error")
}

func (s *Server) writeResponse(w http.ResponseWriter, r *http.Request, statusCode int, resp APIResponse) {
	if wantsCBOR(r) {
		data, err := cbor.Marshal(resp)
		if err == nil {
			w.Header().Set("Content-Type", contentTypeCBOR)
			w.WriteHeader(statusCode)
			w.Write(data)
			return
		}
		s.logger.WithError(err).Error("CBOR encoding failed, falling back to JSON")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}
