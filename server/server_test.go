package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ghibli_backend/metrics"
	"ghibli_backend/sdruntime"
	"ghibli_backend/shutdown"
	"ghibli_backend/stylize"
)

func decodeDetail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var body ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Detail
}

func TestStylize_JPEGBecomes512PNG(t *testing.T) {
	s, _ := newTestServer(t, &fakePipeline{}, stylize.Config{})

	for _, path := range []string{PathStylize, PathStylizeNoSlash} {
		t.Run(path, func(t *testing.T) {
			rec := serve(s, multipartRequest(t, path, jpegBytes(t, 1024, 768), nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
			}
			if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
				t.Errorf("Content-Type = %q", ct)
			}
			if rec.Header().Get(RequestIDHeader) == "" {
				t.Error("missing X-Request-ID")
			}
			img, err := png.Decode(rec.Body)
			if err != nil {
				t.Fatalf("response is not a PNG: %v", err)
			}
			if b := img.Bounds(); b.Dx() != 512 || b.Dy() != 512 {
				t.Errorf("image = %v, want 512x512", b)
			}
		})
	}
}

func TestStylize_Errors(t *testing.T) {
	tests := []struct {
		name       string
		pipeline   stylize.Pipeline
		cfg        stylize.Config
		req        func(t *testing.T) *http.Request
		wantStatus int
		wantDetail string
	}{
		{
			name:       "non-image bytes",
			pipeline:   &fakePipeline{},
			req:        func(t *testing.T) *http.Request { return multipartRequest(t, PathStylize, []byte("hello"), nil) },
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "missing file field",
			pipeline:   &fakePipeline{},
			req:        func(t *testing.T) *http.Request { return multipartRequest(t, PathStylize, nil, map[string]string{"x": "y"}) },
			wantStatus: http.StatusBadRequest,
			wantDetail: stylize.ErrMissingFile.Error(),
		},
		{
			name:     "not multipart",
			pipeline: &fakePipeline{},
			req: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, PathStylize, strings.NewReader(`{"file":1}`))
				req.Header.Set("Content-Type", "application/json")
				return req
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad is_stall",
			pipeline:   &fakePipeline{},
			req:        func(t *testing.T) *http.Request { return multipartRequest(t, PathStylize, jpegBytes(t, 8, 8), map[string]string{"is_stall": "maybe"}) },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "upload over limit",
			pipeline:   &fakePipeline{},
			cfg:        stylize.Config{MaxUploadBytes: 64},
			req:        func(t *testing.T) *http.Request { return multipartRequest(t, PathStylize, jpegBytes(t, 64, 64), nil) },
			wantStatus: http.StatusRequestEntityTooLarge,
		},
		{
			name:       "model not loaded",
			pipeline:   &stylize.UnavailablePipeline{Cause: sdruntime.ErrModelNotFound},
			req:        func(t *testing.T) *http.Request { return multipartRequest(t, PathStylize, jpegBytes(t, 8, 8), nil) },
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "pool busy",
			pipeline:   &fakePipeline{err: sdruntime.ErrAcquireTimeout},
			req:        func(t *testing.T) *http.Request { return multipartRequest(t, PathStylize, jpegBytes(t, 8, 8), nil) },
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "generation timeout",
			pipeline:   &fakePipeline{err: sdruntime.ErrGenerationTimeout},
			req:        func(t *testing.T) *http.Request { return multipartRequest(t, PathStylize, jpegBytes(t, 8, 8), nil) },
			wantStatus: http.StatusGatewayTimeout,
		},
		{
			name:       "generation failed",
			pipeline:   &fakePipeline{err: sdruntime.ErrGenerationFailed},
			req:        func(t *testing.T) *http.Request { return multipartRequest(t, PathStylize, jpegBytes(t, 8, 8), nil) },
			wantStatus: http.StatusInternalServerError,
			wantDetail: sdruntime.ErrGenerationFailed.Error(),
		},
		{
			name:       "wrong method",
			pipeline:   &fakePipeline{},
			req:        func(t *testing.T) *http.Request { return httptest.NewRequest(http.MethodGet, PathStylize, nil) },
			wantStatus: http.StatusMethodNotAllowed,
			wantDetail: DetailMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, svc := newTestServer(t, tt.pipeline, tt.cfg)
			rec := serve(s, tt.req(t))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			detail := decodeDetail(t, rec)
			if detail == "" {
				t.Error("detail is empty")
			}
			if tt.wantDetail != "" && detail != tt.wantDetail {
				t.Errorf("detail = %q, want %q", detail, tt.wantDetail)
			}
			if svc.Slot().Timestamp() != 0 {
				t.Error("failed request touched the stall slot")
			}
		})
	}
}

func TestStall_EmptySlot(t *testing.T) {
	s, _ := newTestServer(t, &fakePipeline{}, stylize.Config{})

	rec := serve(s, httptest.NewRequest(http.MethodGet, PathStallStatus, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"ts":0}` {
		t.Errorf("body = %s, want {\"ts\":0}", got)
	}

	rec = serve(s, httptest.NewRequest(http.MethodGet, PathStallLatest, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("latest status = %d, want 404", rec.Code)
	}
	if d := decodeDetail(t, rec); d != DetailNotFound {
		t.Errorf("latest detail = %q", d)
	}

	rec = serve(s, httptest.NewRequest(http.MethodGet, PathDownloadLatest, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("download status = %d, want 404", rec.Code)
	}
	if d := decodeDetail(t, rec); d != "No image available" {
		t.Errorf("download detail = %q, want %q", d, "No image available")
	}
}

func TestStall_PublishAndRead(t *testing.T) {
	s, _ := newTestServer(t, &fakePipeline{}, stylize.Config{})

	// A plain request does not publish.
	rec := serve(s, multipartRequest(t, PathStylize, jpegBytes(t, 40, 40), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if serve(s, httptest.NewRequest(http.MethodGet, PathStallLatest, nil)).Code != http.StatusNotFound {
		t.Error("non-stall upload published to the slot")
	}

	before := float64(time.Now().Unix()) - 1
	rec = serve(s, multipartRequest(t, PathStylize, jpegBytes(t, 40, 40), map[string]string{"is_stall": "true"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("stall upload status = %d", rec.Code)
	}
	produced := rec.Body.Bytes()

	rec = serve(s, httptest.NewRequest(http.MethodGet, PathStallStatus, nil))
	var status struct {
		TS float64 `json:"ts"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.TS < before {
		t.Errorf("ts = %v, want >= %v", status.TS, before)
	}

	rec = serve(s, httptest.NewRequest(http.MethodGet, PathStallLatest, nil))
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("latest = %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !bytes.Equal(rec.Body.Bytes(), produced) {
		t.Error("latest differs from the stylized response")
	}

	rec = serve(s, httptest.NewRequest(http.MethodGet, PathDownloadLatest, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("download status = %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != "attachment; filename=ghiblification_result.png" {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !bytes.Equal(rec.Body.Bytes(), produced) {
		t.Error("download differs from the stylized response")
	}
}

func TestCORS_Preflight(t *testing.T) {
	s, _ := newTestServer(t, &fakePipeline{}, stylize.Config{})

	paths := []string{PathStylize, PathStallStatus, PathStallLatest, PathDownloadLatest, "/anything/else"}
	origins := []string{"http://localhost:3000", "https://kiosk.example.org"}

	for _, path := range paths {
		for _, origin := range origins {
			t.Run(path+" "+origin, func(t *testing.T) {
				req := httptest.NewRequest(http.MethodOptions, path, nil)
				req.Header.Set("Origin", origin)
				req.Header.Set("Access-Control-Request-Method", "POST")
				req.Header.Set("Access-Control-Request-Headers", "content-type, x-custom")

				rec := serve(s, req)
				if rec.Code != http.StatusOK {
					t.Fatalf("status = %d, want 200", rec.Code)
				}
				h := rec.Header()
				if got := h.Get("Access-Control-Allow-Origin"); got != origin {
					t.Errorf("Allow-Origin = %q, want %q", got, origin)
				}
				if h.Get("Access-Control-Allow-Credentials") != "true" {
					t.Error("credentials not allowed")
				}
				if !strings.Contains(h.Get("Access-Control-Allow-Methods"), "POST") {
					t.Errorf("Allow-Methods = %q", h.Get("Access-Control-Allow-Methods"))
				}
				if got := h.Get("Access-Control-Allow-Headers"); got != "content-type, x-custom" {
					t.Errorf("Allow-Headers = %q", got)
				}
			})
		}
	}
}

func TestCORS_RequestedMethods(t *testing.T) {
	const base = "DELETE, GET, HEAD, OPTIONS, PATCH, POST, PUT"
	tests := []struct {
		name   string
		method string
		want   string
	}{
		{"none", "", base},
		{"listed", "post", base},
		{"unusual", "purge", base + ", PURGE"},
		{"prefix of a listed method", "GE", base + ", GE"},
		{"suffix of a listed method", "UT", base + ", UT"},
	}

	s, _ := newTestServer(t, &fakePipeline{}, stylize.Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, PathStallStatus, nil)
			if tt.method != "" {
				req.Header.Set("Access-Control-Request-Method", tt.method)
			}
			rec := serve(s, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
				t.Errorf("Allow-Origin without Origin = %q, want *", got)
			}
			if got := rec.Header().Get("Access-Control-Allow-Methods"); got != tt.want {
				t.Errorf("Allow-Methods = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCORS_SimpleRequest(t *testing.T) {
	s, _ := newTestServer(t, &fakePipeline{}, stylize.Config{})

	req := httptest.NewRequest(http.MethodGet, PathStallStatus, nil)
	req.Header.Set("Origin", "http://display.local")
	rec := serve(s, req)

	if rec.Header().Get("Access-Control-Allow-Origin") != "http://display.local" {
		t.Errorf("Allow-Origin = %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition") {
		t.Error("Content-Disposition not exposed")
	}
}

func TestHealth(t *testing.T) {
	m, err := metrics.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Shutdown(context.Background())

	s, svc := newTestServer(t, &fakePipeline{}, stylize.Config{},
		WithMetrics(m), WithDeviceInfo(DeviceInfo{Device: "cpu", Precision: "f32"}))
	svc.SetRecorder(m)

	serve(s, multipartRequest(t, PathStylize, jpegBytes(t, 16, 16), nil))
	serve(s, multipartRequest(t, PathStylize, []byte("not an image"), nil))

	rec := serve(s, httptest.NewRequest(http.MethodGet, PathHealth, nil))
	var body HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || !body.ModelLoaded || body.Backend != "fake" || body.Device != "cpu" || body.Precision != "f32" {
		t.Errorf("health = %+v", body)
	}
	st := body.Stylizations
	if st == nil {
		t.Fatal("stylization counters missing with metrics enabled")
	}
	if st.Total != 2 || st.Success != 1 || st.Errors != 1 {
		t.Errorf("counters = %+v", st)
	}
	if len(st.Recent) != 2 || st.Recent[0].Status != metrics.StatusSuccess || st.Recent[1].ErrorKind != string(stylize.KindInvalidImage) {
		t.Errorf("recent = %+v", st.Recent)
	}

	degraded, _ := newTestServer(t, nil, stylize.Config{})
	rec = serve(degraded, httptest.NewRequest(http.MethodGet, PathHealth, nil))
	body = HealthResponse{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "degraded" || body.ModelLoaded {
		t.Errorf("health without model = %+v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m, err := metrics.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Shutdown(context.Background())
	s, svc := newTestServer(t, &fakePipeline{}, stylize.Config{}, WithMetrics(m))
	svc.SetRecorder(m)

	serve(s, multipartRequest(t, PathStylize, jpegBytes(t, 16, 16), nil))
	rec := serve(s, httptest.NewRequest(http.MethodGet, PathMetrics, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"http_request_duration", "stylize_requests", `route="/ghiblification/"`} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}

	noMetrics, _ := newTestServer(t, &fakePipeline{}, stylize.Config{})
	if rec := serve(noMetrics, httptest.NewRequest(http.MethodGet, PathMetrics, nil)); rec.Code != http.StatusNotFound {
		t.Errorf("/metrics without metrics = %d, want 404", rec.Code)
	}
}

func TestNotFound(t *testing.T) {
	s, _ := newTestServer(t, &fakePipeline{}, stylize.Config{})

	for _, path := range []string{"/", "/nope", "/ghiblification/extra"} {
		rec := serve(s, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", path, rec.Code)
			continue
		}
		if d := decodeDetail(t, rec); d != DetailNotFound {
			t.Errorf("%s detail = %q", path, d)
		}
	}
}

func TestRequestID(t *testing.T) {
	s, _ := newTestServer(t, &fakePipeline{}, stylize.Config{})

	req := httptest.NewRequest(http.MethodGet, PathStallStatus, nil)
	req.Header.Set(RequestIDHeader, "client-supplied-1")
	if got := serve(s, req).Header().Get(RequestIDHeader); got != "client-supplied-1" {
		t.Errorf("X-Request-ID = %q, want echoed value", got)
	}

	req = httptest.NewRequest(http.MethodGet, PathStallStatus, nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("a", 200))
	if got := serve(s, req).Header().Get(RequestIDHeader); len(got) != 36 {
		t.Errorf("oversized id not replaced: %q", got)
	}
}

func TestStylize_RejectedDuringShutdown(t *testing.T) {
	tracker := shutdown.NewOperationTracker()
	pipe := &fakePipeline{}
	s, _ := newTestServer(t, pipe, stylize.Config{}, WithTracker(tracker))
	tracker.Close()

	rec := serve(s, multipartRequest(t, PathStylize, jpegBytes(t, 8, 8), nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if d := decodeDetail(t, rec); d != DetailShuttingDown {
		t.Errorf("detail = %q", d)
	}
	if pipe.calls != 0 {
		t.Error("pipeline ran during shutdown")
	}
}

func TestServer_ServeAndShutdown(t *testing.T) {
	s, _ := newTestServer(t, &fakePipeline{}, stylize.Config{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + PathStallStatus)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := <-errCh; err != nil {
		t.Errorf("Serve() returned %v after Shutdown", err)
	}
}

func TestStatusForKind(t *testing.T) {
	tests := map[stylize.Kind]int{
		stylize.KindBadRequest:       400,
		stylize.KindTooLarge:         413,
		stylize.KindInvalidImage:     500,
		stylize.KindModelUnavailable: 503,
		stylize.KindBusy:             503,
		stylize.KindTimeout:          504,
		stylize.KindCanceled:         StatusClientClosedRequest,
		stylize.KindInternal:         500,
		stylize.Kind("unknown"):      500,
	}
	for kind, want := range tests {
		if got := statusForKind(kind); got != want {
			t.Errorf("statusForKind(%s) = %d, want %d", kind, got, want)
		}
	}
}

func TestUIMount(t *testing.T) {
	ui := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ui:" + r.URL.Path))
	})
	s, _ := newTestServer(t, &fakePipeline{}, stylize.Config{}, WithUI("/ui/", ui))

	for _, path := range []string{"/ui", "/ui/", "/ui/app.js"} {
		rec := serve(s, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != "ui:"+path {
			t.Errorf("%s -> %d %q", path, rec.Code, rec.Body.String())
		}
	}

	without, _ := newTestServer(t, &fakePipeline{}, stylize.Config{})
	if rec := serve(without, httptest.NewRequest(http.MethodGet, "/ui/", nil)); rec.Code != http.StatusNotFound {
		t.Errorf("/ui/ without UI = %d, want 404", rec.Code)
	}
}
