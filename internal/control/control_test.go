package control

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/recorder/internal/orchestrator"
	"github.com/aura-webinar/recorder/internal/registry"
	"github.com/aura-webinar/recorder/internal/sfurouter"
)

func fakeBinary(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-bin")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func newTestSurface(t *testing.T, router sfurouter.Router) (*Surface, *gin.Engine) {
	gin.SetMode(gin.TestMode)

	ffmpeg := fakeBinary(t, "#!/bin/sh\necho \"frame=1\" >&2\nwhile IFS= read -r l; do [ \"$l\" = q ] && exit 0; done\nexit 0\n")
	ffprobe := fakeBinary(t, "#!/bin/sh\necho '{\"format\":{\"duration\":\"1.0\"}}'\n")

	cfg := orchestrator.Config{
		OutputRoot:      t.TempDir(),
		PortMin:         35000,
		PortMax:         36000,
		PortMaxAttempts: 50,
		FFmpegPath:      ffmpeg,
		FFprobePath:     ffprobe,
		ExitGrace:       10 * time.Millisecond,
		QuitWait:        time.Second,
		StarveWait:      500 * time.Millisecond,
	}
	svc := orchestrator.NewService(cfg, registry.New(), nil)

	providers := RouterProvider(func(room string) (sfurouter.Router, bool) {
		if router == nil {
			return nil, false
		}
		return router, true
	})

	surface := New(svc, providers, nil, nil)
	r := gin.New()
	surface.RegisterRoutes(r)
	return surface, r
}

func TestStartParticipant_RouterUnavailableReturns503(t *testing.T) {
	_, r := newTestSurface(t, nil)

	body, _ := json.Marshal(startRequest{Room: "room1", User: "user1"})
	req := httptest.NewRequest(http.MethodPost, "/recordings/participant/start", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStartAndStopParticipant_Success(t *testing.T) {
	router := sfurouter.NewFake()
	router.AddProducer(sfurouter.NewFakeProducer("v1", sfurouter.CodecInfo{Kind: sfurouter.KindVideo, MimeName: "VP8", ClockRate: 90000}, sfurouter.CodecInfo{}))
	_, r := newTestSurface(t, router)

	body, _ := json.Marshal(startRequest{Room: "room1", User: "user1"})
	req := httptest.NewRequest(http.MethodPost, "/recordings/participant/start", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var started struct {
		Data struct {
			RecID string `json:"rec_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	require.NotEmpty(t, started.Data.RecID)

	statusReq := httptest.NewRequest(http.MethodGet, "/recordings/"+started.Data.RecID+"/status", nil)
	statusRec := httptest.NewRecorder()
	r.ServeHTTP(statusRec, statusReq)
	require.Equal(t, http.StatusOK, statusRec.Code)

	stopBody, _ := json.Marshal(stopRequest{RecordingID: started.Data.RecID})
	stopReq := httptest.NewRequest(http.MethodPost, "/recordings/participant/stop", bytes.NewReader(stopBody))
	stopReq.Header.Set("Content-Type", "application/json")
	stopRec := httptest.NewRecorder()
	r.ServeHTTP(stopRec, stopReq)
	require.Equal(t, http.StatusOK, stopRec.Code)

	var stopped struct {
		Data struct {
			RecID      string  `json:"rec_id"`
			FileName   string  `json:"file_name"`
			Path       string  `json:"path"`
			FileExists bool    `json:"file_exists"`
			Duration   float64 `json:"duration"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(stopRec.Body.Bytes(), &stopped))
	require.Equal(t, started.Data.RecID, stopped.Data.RecID)
	require.NotEmpty(t, stopped.Data.FileName)
	require.NotEmpty(t, stopped.Data.Path)
	require.True(t, stopped.Data.FileExists)
}

func TestStopRecording_UnknownIDReturns404(t *testing.T) {
	_, r := newTestSurface(t, sfurouter.NewFake())

	stopBody, _ := json.Marshal(stopRequest{RecordingID: "missing"})
	req := httptest.NewRequest(http.MethodPost, "/recordings/participant/stop", bytes.NewReader(stopBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
