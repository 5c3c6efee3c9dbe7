package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-case-tracker/internal/files"
	"go-case-tracker/internal/models"
)

const gockBase = "http://cases.test"

func testConfig(base string) models.Config {
	return models.Config{
		BaseURL:           base,
		FetchAttempts:     3,
		FetchRetryDelayMs: 1,
	}
}

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient(nil, models.Config{})

	assert.Equal(t, DefaultBaseURL, client.BaseURL)
	assert.Equal(t, uint(3), client.FetchAttempts)
	assert.Equal(t, 500*time.Millisecond, client.FetchRetryDelay)
	require.NotNil(t, client.HttpClient)
	assert.Equal(t, 30*time.Second, client.HttpClient.Timeout)
}

func TestNewClient_TrimsTrailingSlash(t *testing.T) {
	client := NewClient(nil, models.Config{BaseURL: "http://host:9000/", APIClientTimeoutSec: 5})
	assert.Equal(t, "http://host:9000", client.BaseURL)
	assert.Equal(t, 5*time.Second, client.HttpClient.Timeout)
}

func TestListCases(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/casos", r.URL.Path)
		_, err := uuid.Parse(r.Header.Get(RequestIDHeader))
		assert.NoError(t, err, "every request carries a uuid request id")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"cases":[
			{"id":7,"caso":"Ponte","descricao":"Teste","progress_pct":50,"img_path":null,"ifc_path":null,"data":"01/03/2024","uploaded_at_iso":"2024-03-01T10:00:00"},
			{"id":3,"caso":"Viaduto","descricao":"","progress_pct":10,"img_path":"http://x/files/a.png","ifc_path":null,"data":"","uploaded_at_iso":""}
		]}`))
	}))
	defer server.Close()

	client := NewClient(nil, testConfig(server.URL))
	cases, err := client.ListCases(context.Background())
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, 7, cases[0].ID)
	assert.Equal(t, "Viaduto", cases[1].Name)
	require.NotNil(t, cases[1].ImageRef)
}

func TestListCases_EmptyCollection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"cases":[]}`))
	}))
	defer server.Close()

	cases, err := NewClient(nil, testConfig(server.URL)).ListCases(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, cases)
	assert.Empty(t, cases)
}

func TestListCases_RetriesServerErrors(t *testing.T) {
	defer gock.Off()

	gock.New(gockBase).
		Get("/casos").
		Times(2).
		Reply(503).
		BodyString("busy")
	gock.New(gockBase).
		Get("/casos").
		Reply(200).
		JSON(map[string]any{"cases": []map[string]any{{"id": 1, "caso": "A"}}})

	client := NewClient(nil, testConfig(gockBase))
	cases, err := client.ListCases(context.Background())
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, "A", cases[0].Name)
	assert.True(t, gock.IsDone())
	assert.False(t, gock.HasUnmatchedRequest())
}

func TestListCases_GivesUpAfterAttempts(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewClient(nil, testConfig(server.URL)).ListCases(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrServerError))
	assert.Equal(t, int32(3), hits.Load())

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 500, statusErr.Code)
	assert.Equal(t, "Fetch cases failed: 500 Internal Server Error — boom", statusErr.Error())
}

func TestListCases_ClientErrorsAreNotRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := NewClient(nil, testConfig(server.URL)).ListCases(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, "Fetch cases failed: 400 Bad Request", err.Error())
}

func TestListCases_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewClient(nil, testConfig(url)).ListCases(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestCreateCase_Multipart(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/casos", r.URL.Path)

		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "Ponte", r.FormValue("caso"))
		assert.Equal(t, "Teste", r.FormValue("desc"))

		img, imgHeader, err := r.FormFile("img")
		if !assert.NoError(t, err) {
			return
		}
		defer img.Close()
		assert.Equal(t, "photo.png", imgHeader.Filename)
		assert.Equal(t, "image/png", imgHeader.Header.Get("Content-Type"))
		data, _ := io.ReadAll(img)
		assert.Equal(t, "png-bytes", string(data))

		_, ifcHeader, err := r.FormFile("ifc")
		if assert.NoError(t, err) {
			assert.Equal(t, "tower.ifc", ifcHeader.Filename)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":12,"caso":"Ponte","descricao":"Teste"}`))
	}))
	defer server.Close()

	sub := models.Submission{
		Mode:        models.ModeCreate,
		Name:        "Ponte",
		Description: "Teste",
		Image:       files.NewBytesFile("photo.png", "image/png", []byte("png-bytes")),
		Model:       files.NewBytesFile("tower.ifc", "", []byte("ISO-10303-21;")),
	}
	created, err := NewClient(nil, testConfig(server.URL)).CreateCase(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, 12, created.ID)
	assert.Equal(t, int32(1), calls.Load())
}

func TestUpdateCase_OmitsUnreplacedFiles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/casos/7", r.URL.Path)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Empty(t, r.MultipartForm.File["img"])
		assert.Empty(t, r.MultipartForm.File["ifc"])
		assert.Equal(t, "Ponte nova", r.FormValue("caso"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sub := models.Submission{Mode: models.ModeEdit, TargetID: 7, Name: "Ponte nova", Description: "x"}
	_, err := NewClient(nil, testConfig(server.URL)).UpdateCase(context.Background(), 7, sub)
	require.NoError(t, err)
}

func TestUpdateCase_FailureBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"Caso não encontrado"}`))
	}))
	defer server.Close()

	_, err := NewClient(nil, testConfig(server.URL)).UpdateCase(context.Background(), 99, models.Submission{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, `Upload failed: 404 Not Found — {"detail":"Caso não encontrado"}`, err.Error())
}

func TestDeleteCase(t *testing.T) {
	defer gock.Off()

	gock.New(gockBase).
		Delete("/casos/7").
		MatchHeader(RequestIDHeader, ".+").
		Reply(200).
		JSON(map[string]any{"ok": true, "id": 7})

	err := NewClient(nil, testConfig(gockBase)).DeleteCase(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, gock.IsDone())
}

func TestDeleteCase_ServerError(t *testing.T) {
	defer gock.Off()

	gock.New(gockBase).
		Delete("/casos/7").
		Reply(500).
		BodyString("db locked")

	err := NewClient(nil, testConfig(gockBase)).DeleteCase(context.Background(), 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServerError)
	assert.Equal(t, "Delete failed: 500 Internal Server Error — db locked", err.Error())
	assert.True(t, gock.IsDone(), "deletes are never retried")
}

func TestGetCase(t *testing.T) {
	defer gock.Off()

	gock.New(gockBase).
		Get("/casos/5").
		Reply(200).
		JSON(map[string]any{"id": 5, "caso": "Torre", "descricao": "Bloco B", "progress_pct": 80.5})

	kase, err := NewClient(nil, testConfig(gockBase)).GetCase(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "Torre", kase.Name)
	assert.Equal(t, 80.5, kase.Progress)
}

func TestSeedSamples(t *testing.T) {
	defer gock.Off()

	gock.New(gockBase).
		Post("/seed").
		Reply(200).
		JSON(map[string]any{"ok": true})

	require.NoError(t, NewClient(nil, testConfig(gockBase)).SeedSamples(context.Background()))
	assert.True(t, gock.IsDone())
}
