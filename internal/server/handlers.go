package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/varalys/blockscrub/internal/types"
)

// Response headers on a successful sanitize.
const (
	HeaderMalicious      = "X-Blockscrub-Malicious"
	HeaderReplacedBlocks = "X-Blockscrub-Replaced-Blocks"
	HeaderNotes          = "X-Blockscrub-Notes"
)

// FormField is the multipart field carrying the upload.
const FormField = "file"

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// StatusFor maps a processing error code to an HTTP status.
func StatusFor(code types.ErrorCode) int {
	if code == types.CodeInvalidFormat {
		return http.StatusUnsupportedMediaType
	}
	return http.StatusUnprocessableEntity
}

func (s *Server) handleSanitize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := s.logger.With().Str("request_id", RequestID(ctx)).Logger()

	mr, err := r.MultipartReader()
	if err != nil {
		s.sendError(w, r, http.StatusBadRequest, "BadRequest", "expected a multipart/form-data body")
		return
	}
	var part io.ReadCloser
	var filename string
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.sendError(w, r, http.StatusBadRequest, "BadRequest", "malformed multipart body")
			return
		}
		if p.FormName() == FormField {
			part, filename = p, p.FileName()
			break
		}
		_ = p.Close()
	}
	if part == nil {
		s.sendError(w, r, http.StatusBadRequest, "MissingFile", fmt.Sprintf("multipart field %q is required", FormField))
		return
	}
	defer func() { _ = part.Close() }()

	ext := filepath.Ext(filename)
	if q := r.URL.Query().Get("ext"); q != "" {
		ext = q
	}
	ext = types.NormalizeExt(ext)
	eng, ok := s.Registry().Lookup(ext)
	if !ok {
		s.sendError(w, r, StatusFor(types.CodeInvalidFormat), string(types.CodeInvalidFormat),
			fmt.Sprintf("no format registered for extension %q", ext))
		return
	}

	tmp, err := os.CreateTemp(s.cfg.TempDir, "blockscrub-upload-*")
	if err != nil {
		log.Error().Err(err).Msg("create temp file")
		s.sendError(w, r, http.StatusInternalServerError, "Internal", "internal error")
		return
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	started := time.Now()
	res, err := eng.Process(ctx, part, tmp)
	s.metrics.Observe(ext, res, err, time.Since(started))
	if err != nil {
		if ctx.Err() != nil {
			log.Warn().Err(err).Msg("client went away")
			return
		}
		log.Error().Err(err).Str("format", ext).Msg("sanitize failed")
		s.sendError(w, r, http.StatusInternalServerError, "Internal", "internal error")
		return
	}
	if !res.Success {
		log.Info().Str("format", ext).Str("code", string(res.Error.Code)).Msg(res.Error.Detail)
		s.sendError(w, r, StatusFor(res.Error.Code), string(res.Error.Code), res.Error.Detail)
		return
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		log.Error().Err(err).Msg("rewind temp file")
		s.sendError(w, r, http.StatusInternalServerError, "Internal", "internal error")
		return
	}
	rep := res.Report
	h := w.Header()
	h.Set("Content-Type", "application/octet-stream")
	h.Set("Content-Length", strconv.FormatInt(rep.BytesOut, 10))
	if filename != "" {
		h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filepath.Base(filename)}))
	}
	h.Set(HeaderMalicious, strconv.FormatBool(rep.WasMalicious))
	h.Set(HeaderReplacedBlocks, strconv.Itoa(rep.ReplacedBlocks))
	h.Set(HeaderNotes, rep.Notes)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, tmp); err != nil {
		log.Warn().Err(err).Msg("write response")
	}
}

type formatView struct {
	Extension     string `json:"extension"`
	Prefix        string `json:"prefix"`
	Suffix        string `json:"suffix"`
	BlockPattern  string `json:"block_pattern"`
	Replacement   string `json:"replacement"`
	MaxBlockBytes int    `json:"max_block_bytes"`
	Processor     string `json:"processor"`
}

func (s *Server) handleFormats(w http.ResponseWriter, r *http.Request) {
	specs := s.Registry().Specs()
	out := make([]formatView, 0, len(specs))
	for _, spec := range specs {
		out = append(out, formatView{
			Extension:     spec.Extension,
			Prefix:        string(spec.Prefix),
			Suffix:        string(spec.Suffix),
			BlockPattern:  spec.BlockPattern,
			Replacement:   string(spec.Replacement),
			MaxBlockBytes: spec.MaxBlockBytes,
			Processor:     string(spec.Processor),
		})
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"formats": out})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"formats": s.Registry().Count(),
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("encode JSON response")
	}
}

func (s *Server) sendError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	s.sendJSON(w, status, ErrorResponse{
		Code:      code,
		Message:   message,
		RequestID: RequestID(r.Context()),
	})
}
