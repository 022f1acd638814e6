package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cycleuser/audiblez/internal/db"
	"github.com/cycleuser/audiblez/internal/logger"
	"github.com/cycleuser/audiblez/internal/models"
)

const testToken = "123456:ABCDEF"

func newTestServer(t *testing.T) (*db.Store, http.Handler) {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, New(store, testToken, logger.NewLogger(logger.TestConfig())).Handler()
}

func get(t *testing.T, h http.Handler, path string, user *TelegramUser) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if user != nil {
		req.Header.Set("X-Telegram-InitData", buildSignedInitData(t, testToken, *user, time.Now()))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t)
	rec := get(t, h, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJobsRequireInitData(t *testing.T) {
	_, h := newTestServer(t)
	rec := get(t, h, "/api/jobs", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJobsEndpoints(t *testing.T) {
	ctx := context.Background()
	store, h := newTestServer(t)
	owner := TelegramUser{ID: 42, Username: "reader"}
	other := TelegramUser{ID: 7}

	output := filepath.Join(t.TempDir(), "dune.m4b")
	require.NoError(t, os.WriteFile(output, []byte("m4b-bytes"), 0o644))

	job, err := store.CreateJob(ctx, models.Job{UserID: owner.ID, Source: "dune.epub", Lang: "en-gb", Voice: "af_sky", Speed: 1})
	require.NoError(t, err)
	require.NoError(t, store.AddChapter(ctx, job.ID, models.AudioChapterFile{Index: 1, Path: "a.wav", Chars: 10}))

	t.Run("Should list only own jobs", func(t *testing.T) {
		rec := get(t, h, "/api/jobs", &owner)
		require.Equal(t, http.StatusOK, rec.Code)
		var jobs []models.Job
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
		require.Len(t, jobs, 1)
		assert.Equal(t, job.ID, jobs[0].ID)

		rec = get(t, h, "/api/jobs", &other)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, "[]", rec.Body.String())
	})

	t.Run("Should return job details with chapters", func(t *testing.T) {
		rec := get(t, h, "/api/jobs/"+job.ID, &owner)
		require.Equal(t, http.StatusOK, rec.Code)
		var details struct {
			ID       string             `json:"id"`
			Chapters []db.ChapterRecord `json:"chapters"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &details))
		assert.Equal(t, job.ID, details.ID)
		assert.Len(t, details.Chapters, 1)

		assert.Equal(t, http.StatusNotFound, get(t, h, "/api/jobs/"+job.ID, &other).Code)
	})

	t.Run("Should serve the audiobook only when completed", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, get(t, h, "/api/files/"+job.ID, &owner).Code)

		require.NoError(t, store.FinishJob(ctx, job.ID, models.JobCompleted, "", output))
		rec := get(t, h, "/api/files/"+job.ID, &owner)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "audio/mp4", rec.Header().Get("Content-Type"))
		assert.Equal(t, "m4b-bytes", rec.Body.String())
	})
}
