package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kapu/trendscope-go/internal/config"
	"github.com/kapu/trendscope-go/internal/domain"
	"github.com/kapu/trendscope-go/internal/util"
	"github.com/kapu/trendscope-go/pkg/errors"
)

type fakeAnalyzer struct {
	mu   sync.Mutex
	reqs []domain.AnalysisRequest
	err  error
}

func (f *fakeAnalyzer) FetchAnalysis(ctx context.Context, req domain.AnalysisRequest) (*domain.Outcome, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if req.Keyword == "" {
		return nil, errors.NewValidationError("keyword is required", "keyword", "")
	}
	return &domain.Outcome{
		Result: &domain.AnalysisResult{Keyword: req.Keyword, Recommendations: []string{"stock up"}},
		Source: domain.SourceLive,
	}, nil
}

type fakeUploader struct {
	fileName string
	data     []byte
	formName string
	err      error
}

func (f *fakeUploader) Upload(ctx context.Context, fileName string, data []byte, formName string) (*domain.ProductUploadResponse, error) {
	f.fileName, f.data, f.formName = fileName, data, formName
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ProductUploadResponse{Message: "ok"}, nil
}

type fakeHistory struct {
	limit int
}

func (f *fakeHistory) Recent(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	f.limit = limit
	return []domain.HistoryEntry{{ID: 1, Keyword: "iPhone", Source: domain.SourceLive}}, nil
}

func newTestServer(an *fakeAnalyzer, up *fakeUploader, hist HistoryReader) *Server {
	return New(config.ServerConfig{Addr: ":0", UploadMaxBytes: 1024}, Deps{
		Analyzer: an,
		Uploader: up,
		History:  hist,
		Clock:    util.NewManualClock(time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)),
		Logger:   zap.NewNop(),
	})
}

func TestAnalysisPost(t *testing.T) {
	an := &fakeAnalyzer{}
	srv := newTestServer(an, &fakeUploader{}, nil)

	body := `{"keyword":"iPhone","startDate":"2025-01-01","endDate":"2025-03-01","videoCount":50,"commentCount":100}`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/analysis", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var outcome domain.Outcome
	if err := json.Unmarshal(rec.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if outcome.Source != domain.SourceLive || outcome.Result.Keyword != "iPhone" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if an.reqs[0].VideoSampleSize != 50 || an.reqs[0].CommentSampleSize != 100 {
		t.Fatalf("unexpected request %+v", an.reqs[0])
	}
}

func TestAnalysisGetQuery(t *testing.T) {
	an := &fakeAnalyzer{}
	srv := newTestServer(an, &fakeUploader{}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analysis?keyword=Camera&startDate=2025-01-01&endDate=2025-02-01", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if got := an.reqs[0]; got.Keyword != "Camera" || got.VideoSampleSize != 0 {
		t.Fatalf("unexpected request %+v", got)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analysis?keyword=Camera&videoCount=lots", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad videoCount, got %d", rec.Code)
	}
}

func TestAnalysisErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", errors.NewValidationError("bad", "keyword", ""), http.StatusBadRequest},
		{"config", errors.NewConfigError("GEMINI_API_URL is not configured", "GEMINI_API_URL"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(&fakeAnalyzer{err: tc.err}, &fakeUploader{}, nil)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/analysis", strings.NewReader(`{"keyword":"x"}`)))
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
		})
	}
}

func TestExportCSV(t *testing.T) {
	srv := newTestServer(&fakeAnalyzer{}, &fakeUploader{}, nil)

	body := `{"keyword":"Gaming Laptop","dateRange":"2025-01-01 - 2025-02-01","trendData":[{"date":"2025-01","interest":40}],"sentimentData":[],"analysis":"ok","recommendations":["a"]}`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/analysis/export?format=csv", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename=analysis_Gaming_Laptop.csv` {
		t.Fatalf("unexpected disposition %q", cd)
	}
	if !strings.Contains(rec.Body.String(), "2025-01,40") {
		t.Fatalf("trend row missing:\n%s", rec.Body.String())
	}
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	srv := newTestServer(&fakeAnalyzer{}, &fakeUploader{}, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/analysis/export?format=pdf", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUploadRawBody(t *testing.T) {
	up := &fakeUploader{}
	srv := newTestServer(&fakeAnalyzer{}, up, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/products/upload?filename=stock.json&productName=Camera", strings.NewReader(`{"Sales":10}`))
	req.Header.Set("Content-Type", "application/json")
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if up.fileName != "stock.json" || up.formName != "Camera" || string(up.data) != `{"Sales":10}` {
		t.Fatalf("unexpected upload %q %q %q", up.fileName, up.formName, up.data)
	}
}

func TestUploadMultipart(t *testing.T) {
	up := &fakeUploader{}
	srv := newTestServer(&fakeAnalyzer{}, up, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "inventory.json")
	_, _ = io.WriteString(fw, `{"Camera":{"Sales":5}}`)
	_ = mw.WriteField("productName", " Camera ")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/products/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if up.fileName != "inventory.json" || up.formName != "Camera" {
		t.Fatalf("unexpected upload %q %q", up.fileName, up.formName)
	}
}

func TestUploadErrorStatus(t *testing.T) {
	up := &fakeUploader{err: errors.NewUploadError("file too large", http.StatusRequestEntityTooLarge, "big.json", nil)}
	srv := newTestServer(&fakeAnalyzer{}, up, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/products/upload", strings.NewReader(`{}`)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestHistory(t *testing.T) {
	hist := &fakeHistory{}
	srv := newTestServer(&fakeAnalyzer{}, &fakeUploader{}, hist)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history?limit=500", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if hist.limit != maxHistorySize {
		t.Fatalf("limit should be capped, got %d", hist.limit)
	}

	rec = httptest.NewRecorder()
	newTestServer(&fakeAnalyzer{}, &fakeUploader{}, nil).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty list without history, got %s", rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&fakeAnalyzer{}, &fakeUploader{}, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}

func TestAnalysisSocket(t *testing.T) {
	srv := newTestServer(&fakeAnalyzer{}, &fakeUploader{}, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/analysis"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(domain.AnalysisRequest{Keyword: "iPhone", StartDate: "2025-01-01", EndDate: "2025-02-01"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	var status, result SocketMessage
	if err := conn.ReadJSON(&status); err != nil || status.Type != MessageStatus {
		t.Fatalf("expected status message, got %+v %v", status, err)
	}
	if err := conn.ReadJSON(&result); err != nil || result.Type != MessageResult {
		t.Fatalf("expected result message, got %+v %v", result, err)
	}
	if result.Outcome == nil || result.Outcome.Result.Keyword != "iPhone" {
		t.Fatalf("unexpected outcome %+v", result.Outcome)
	}

	if err := conn.WriteJSON(domain.AnalysisRequest{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var failed SocketMessage
	_ = conn.ReadJSON(&status)
	if err := conn.ReadJSON(&failed); err != nil || failed.Type != MessageError || failed.Error.Field != "keyword" {
		t.Fatalf("expected validation error message, got %+v %v", failed, err)
	}
}
