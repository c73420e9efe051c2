package server

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"

	"ghibli_backend/core"
	"ghibli_backend/metrics"
	"ghibli_backend/stylize"
)

// healthRecent is how many recent stylizations /health lists.
const healthRecent = 5

// multipartSlack covers multipart framing and small form fields on top of
// the upload limit.
const multipartSlack = 1 << 20

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status       string           `json:"status"`
	Version      string           `json:"version"`
	ModelLoaded  bool             `json:"model_loaded"`
	Backend      string           `json:"backend"`
	Device       string           `json:"device,omitempty"`
	Precision    string           `json:"precision,omitempty"`
	StallTS      float64          `json:"stall_ts"`
	Stylizations *stylizeCounters `json:"stylizations,omitempty"`
}

type stylizeCounters struct {
	Total   int64                   `json:"total"`
	Success int64                   `json:"success"`
	Errors  int64                   `json:"errors"`
	Recent  []metrics.StylizeRecord `json:"recent"`
}

func (s *Server) handleStylize(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != PathStylize && r.URL.Path != PathStylizeNoSlash {
		s.handleNotFound(w, r)
		return
	}
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	if s.tracker != nil {
		done, ok := s.tracker.Track()
		if !ok {
			writeError(w, http.StatusServiceUnavailable, DetailShuttingDown)
			return
		}
		defer done()
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.service.MaxUploadBytes()+multipartSlack)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeStylizeError(w, formError(err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	isStall := false
	if raw := r.FormValue("is_stall"); raw != "" {
		v, ok := core.ParseBool(raw)
		if !ok {
			writeStylizeError(w, stylize.NewError(stylize.KindBadRequest,
				fmt.Errorf("is_stall must be a boolean, got %q", raw)))
			return
		}
		isStall = v
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeStylizeError(w, formError(err))
		return
	}
	defer file.Close()

	res, err := s.service.Stylize(r.Context(), file, stylize.Options{
		Stall:     isStall,
		RequestID: RequestIDFromContext(r.Context()),
	})
	if err != nil {
		writeStylizeError(w, err)
		return
	}

	writePNG(w, res.PNG)
}

// formError classifies multipart parsing failures.
func formError(err error) error {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return stylize.NewError(stylize.KindTooLarge, stylize.ErrUploadTooLarge)
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return stylize.NewError(stylize.KindBadRequest, stylize.ErrMissingFile)
	case errors.Is(err, multipart.ErrMessageTooLarge):
		return stylize.NewError(stylize.KindTooLarge, stylize.ErrUploadTooLarge)
	default:
		return stylize.NewError(stylize.KindBadRequest, fmt.Errorf("invalid multipart form: %w", err))
	}
}

func (s *Server) handleStallStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]float64{"ts": s.service.Slot().Timestamp()})
}

func (s *Server) handleStallLatest(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	entry, ok := s.service.Slot().Latest()
	if !ok {
		writeError(w, http.StatusNotFound, DetailNotFound)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writePNG(w, entry.Data)
}

func (s *Server) handleDownloadLatest(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	entry, ok := s.service.Slot().Latest()
	if !ok {
		writeError(w, http.StatusNotFound, DetailNoImage)
		return
	}
	w.Header().Set("Content-Disposition", "attachment; filename="+DownloadFilename)
	writePNG(w, entry.Data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	resp := HealthResponse{
		Status:      "ok",
		Version:     core.Version,
		ModelLoaded: s.service.ModelLoaded(),
		Backend:     s.service.Backend(),
		Device:      s.device.Device,
		Precision:   s.device.Precision,
		StallTS:     s.service.Slot().Timestamp(),
	}
	if !resp.ModelLoaded {
		resp.Status = "degraded"
	}
	if s.metrics != nil {
		store := s.metrics.Store()
		sum := store.Summary()
		resp.Stylizations = &stylizeCounters{
			Total:   sum.Total,
			Success: sum.Success,
			Errors:  sum.Errors,
			Recent:  store.Recent(healthRecent),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, DetailNotFound)
}

// allowMethod writes 405 unless r uses method (GET also admits HEAD).
func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method || (method == http.MethodGet && r.Method == http.MethodHead) {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, DetailMethodNotAllowed)
	return false
}

func writePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
