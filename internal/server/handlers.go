package server

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kapu/trendscope-go/internal/domain"
	"github.com/kapu/trendscope-go/internal/export"
	"github.com/kapu/trendscope-go/pkg/errors"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps typed errors to HTTP status codes.
func statusFor(err error) (int, errorResponse) {
	var (
		validationErr *errors.ValidationError
		uploadErr     *errors.UploadError
		configErr     *errors.ConfigError
	)
	switch {
	case stderrors.As(err, &validationErr):
		return http.StatusBadRequest, errorResponse{Error: validationErr.Message, Code: validationErr.Code, Field: validationErr.Field}
	case stderrors.As(err, &uploadErr):
		status := uploadErr.StatusCode
		if status < 400 {
			status = http.StatusBadRequest
		}
		return status, errorResponse{Error: uploadErr.Error(), Code: uploadErr.Code}
	case stderrors.As(err, &configErr):
		return http.StatusInternalServerError, errorResponse{Error: configErr.Message, Code: configErr.Code}
	default:
		return http.StatusInternalServerError, errorResponse{Error: err.Error()}
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, body)
}

func (s *Server) handleAnalysisPost(w http.ResponseWriter, r *http.Request) {
	var req domain.AnalysisRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, analysisBodyLimit)).Decode(&req); err != nil {
		s.writeError(w, r, errors.NewValidationError("invalid JSON body", "body", nil))
		return
	}
	s.runAnalysis(w, r, req)
}

func (s *Server) handleAnalysisGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := domain.AnalysisRequest{
		Keyword:   q.Get("keyword"),
		StartDate: q.Get("startDate"),
		EndDate:   q.Get("endDate"),
	}

	var err error
	if req.VideoSampleSize, err = queryInt(q.Get("videoCount")); err != nil {
		s.writeError(w, r, errors.NewValidationError("videoCount must be an integer", "videoCount", q.Get("videoCount")))
		return
	}
	if req.CommentSampleSize, err = queryInt(q.Get("commentCount")); err != nil {
		s.writeError(w, r, errors.NewValidationError("commentCount must be an integer", "commentCount", q.Get("commentCount")))
		return
	}
	s.runAnalysis(w, r, req)
}

// queryInt returns 0 for an empty value so the service applies its default.
func queryInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func (s *Server) runAnalysis(w http.ResponseWriter, r *http.Request, req domain.AnalysisRequest) {
	outcome, err := s.analyzer.FetchAnalysis(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeError(w, r, errors.NewValidationError(err.Error(), "format", r.URL.Query().Get("format")))
		return
	}

	var result domain.AnalysisResult
	if err := json.NewDecoder(io.LimitReader(r.Body, exportBodyLimit)).Decode(&result); err != nil {
		s.writeError(w, r, errors.NewValidationError("invalid JSON body", "body", nil))
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, &result, s.clock.Now()); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": export.FileName(result.Keyword, format),
	}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleUpload accepts either a multipart form with "file" (and optional
// "productName") or the raw JSON file as the request body.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	fileName, data, formName, err := s.readUpload(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, err := s.uploader.Upload(r.Context(), fileName, data, formName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) readUpload(r *http.Request) (fileName string, data []byte, formName string, err error) {
	// One byte past the limit lets the uploader report the size error itself.
	limit := s.uploadMaxBytes + 1

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		fileName = r.URL.Query().Get("filename")
		if fileName == "" {
			fileName = "upload.json"
		}
		data, err = io.ReadAll(io.LimitReader(r.Body, limit))
		if err != nil {
			return "", nil, "", errors.NewUploadError("failed to read upload", http.StatusBadRequest, fileName, err)
		}
		return fileName, data, r.URL.Query().Get("productName"), nil
	}

	r.Body = http.MaxBytesReader(nil, r.Body, limit+1<<20)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return "", nil, "", errors.NewUploadError("file too large", http.StatusRequestEntityTooLarge, "", err)
		}
		return "", nil, "", errors.NewUploadError("invalid multipart form", http.StatusBadRequest, "", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, "", errors.NewUploadError("missing file field", http.StatusBadRequest, "", err)
	}
	defer file.Close()

	data, err = io.ReadAll(io.LimitReader(file, limit))
	if err != nil {
		return "", nil, "", errors.NewUploadError("failed to read upload", http.StatusBadRequest, header.Filename, err)
	}
	return header.Filename, data, strings.TrimSpace(r.FormValue("productName")), nil
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistorySize
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, r, errors.NewValidationError(fmt.Sprintf("limit must be a positive integer (got %q)", v), "limit", v))
			return
		}
		limit = min(n, maxHistorySize)
	}

	if s.history == nil {
		writeJSON(w, http.StatusOK, []domain.HistoryEntry{})
		return
	}

	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
