package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/logops/internal/chat"
	"github.com/dbsmedya/logops/internal/config"
	"github.com/dbsmedya/logops/internal/joblog"
	"github.com/dbsmedya/logops/internal/lifecycle"
	"github.com/dbsmedya/logops/internal/region"
	"github.com/dbsmedya/logops/internal/sqlguard"
)

func newTestServer(t *testing.T) (*Server, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		Regions: map[string]config.DatabaseConfig{
			"US": {Host: "us.example", Port: 3306, Database: "dsilogs"},
		},
	}
	regions := region.NewManager(nil, cfg, nil)
	regions.Adopt("US", db)

	engine := lifecycle.NewEngine(joblog.NewLogger(nil), config.RetentionConfig{
		ArchiveMinAgeDays: 7, DeleteMinAgeDays: 30,
		PreviewSampleRows: 5, DuplicateProbeBatch: 1000,
	}, nil)
	orch := chat.NewOrchestrator(regions, engine, sqlguard.NewExecutor(nil), nil, nil, nil)

	s := New(config.ServerConfig{Host: "127.0.0.1", Port: 0, Mode: "test"},
		orch, regions, joblog.NewService(nil), nil)
	return s, mock
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "ok", out["status"])
}

func TestChatEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/chat",
		`{"role": "admin", "region": "US", "message": "hello"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp chat.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, chat.CardWelcome, resp.CardType)
	assert.NotEmpty(t, resp.SessionID)
}

func TestChatEndpointBadBody(t *testing.T) {
	s, _ := newTestServer(t)

	// Missing the required role field.
	w := doJSON(t, s, http.MethodPost, "/api/chat", `{"message": "hello"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfirmEndpoint(t *testing.T) {
	s, mock := newTestServer(t)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(25))
	mock.ExpectQuery("SELECT \\*").
		WillReturnRows(sqlmock.NewRows([]string{"ActivityID"}))

	w := doJSON(t, s, http.MethodPost, "/api/chat",
		`{"role": "admin", "region": "US", "message": "archive activities older than 1 year", "session_id": "s1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp chat.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, chat.CardConfirmation, resp.CardType)
	require.NotEmpty(t, resp.Token)

	// Cancel through the confirm endpoint.
	w = doJSON(t, s, http.MethodPost, "/api/confirm",
		`{"role": "admin", "session_id": "s1", "token": "`+resp.Token+`", "confirm": false}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, chat.CardCancelled, resp.CardType)
}

func TestRegionsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/api/regions", "")
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		Regions   []string        `json:"regions"`
		Connected map[string]bool `json:"connected"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, []string{"US"}, out.Regions)
	assert.True(t, out.Connected["US"])
}

func TestRegionTestEndpoint(t *testing.T) {
	s, mock := newTestServer(t)

	mock.ExpectQuery("SELECT 1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	for i := 0; i < 4; i++ {
		mock.ExpectQuery("SELECT COUNT").
			WillReturnRows(sqlmock.NewRows([]string{"c"}).AddRow(5))
	}

	w := doJSON(t, s, http.MethodGet, "/api/regions/US/test", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"healthy":true`)
}

func TestJobLogsEndpoint(t *testing.T) {
	s, mock := newTestServer(t)

	started := time.Date(2025, 10, 15, 11, 0, 0, 0, time.UTC)
	mock.ExpectQuery("(?s)SELECT .+ FROM job_logs").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "schema_name", "job_type", "table_name", "status", "source",
			"reason", "records_affected", "started_at", "finished_at"}).
			AddRow(1, "", joblog.JobArchive, "dsiactivities", joblog.StatusSuccess, joblog.SourceChatbot,
				"done", 100, started, started.Add(time.Minute)))

	w := doJSON(t, s, http.MethodGet, "/api/joblogs?region=US&status=SUCCESS", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
}

func TestUnknownRegionConnect(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/regions/MARS/connect", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
