package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbirkedal/vendorledger/internal/domain/category"
	"github.com/mbirkedal/vendorledger/internal/domain/model"
	"github.com/mbirkedal/vendorledger/internal/infrastructure/storage"
	"github.com/mbirkedal/vendorledger/internal/jobs"
	"github.com/mbirkedal/vendorledger/internal/oracle"
	"github.com/mbirkedal/vendorledger/internal/pipeline"
)

// stubOracle classifies everything as a vendor payment to Stripe.
type stubOracle struct{}

func (stubOracle) Categorize(ctx context.Context, txn model.ParsedTransaction) (*oracle.Categorization, error) {
	return &oracle.Categorization{Category: category.VendorPayment}, nil
}

func (stubOracle) IdentifyVendor(ctx context.Context, txn model.ParsedTransaction) (*oracle.VendorIdentification, error) {
	return &oracle.VendorIdentification{VendorName: "Stripe"}, nil
}

func (stubOracle) EnrichVendor(ctx context.Context, name string) (*oracle.VendorInfo, error) {
	conf := 0.9
	return &oracle.VendorInfo{Name: name, DefaultProductType: "services", Confidence: &conf}, nil
}

func (stubOracle) BatchCategorize(ctx context.Context, txns []model.ParsedTransaction) ([]oracle.BatchResult, error) {
	results := make([]oracle.BatchResult, len(txns))
	for i := range txns {
		conf := 0.95
		results[i] = oracle.BatchResult{
			TransactionID:    i,
			Category:         category.VendorPayment,
			Confidence:       &conf,
			VendorName:       "Stripe",
			VendorConfidence: &conf,
		}
	}
	return results, nil
}

type testEnv struct {
	server *Server
	repo   *storage.Storage
	store  *jobs.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo, err := storage.NewStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	processor := pipeline.NewProcessor(repo, stubOracle{}, pipeline.Options{})
	jobStore := jobs.NewMemoryStore()
	queue := jobs.NewQueue(8, 1, jobStore)
	queue.Start(context.Background(), NewProcessJobHandler(processor, jobStore, nil))
	t.Cleanup(func() { _ = queue.Stop(context.Background()) })

	cfg := DefaultConfig()
	cfg.UploadDir = t.TempDir()
	server := NewServer(cfg, repo, processor, jobStore, queue, nil)

	return &testEnv{server: server, repo: repo, store: jobStore}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) upload(t *testing.T, csvData, excludedIndices string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "statement.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(csvData))
	require.NoError(t, err)
	if excludedIndices != "" {
		require.NoError(t, w.WriteField("excluded_indices", excludedIndices))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/process", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) waitForJob(t *testing.T, id string) *jobs.ProcessJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if job, ok := e.store.GetJob(id); ok {
			if job.Status == jobs.StatusCompleted || job.Status == jobs.StatusFailed {
				return job
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never finished", id)
	return nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// statementCSV uses today's date so the rows land inside the duplicate
// detector's lookback window on re-import.
var statementCSV = fmt.Sprintf("Date;Text;Amount\n"+
	"%[1]s;STRIPE TECHNOLOGY EU;-1.234,56\n"+
	"%[1]s;STRIPE PAYMENT 88 91;-42,00\n",
	time.Now().UTC().Format(time.DateOnly))

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])
}

func TestProcessUpload_RunsToCompletion(t *testing.T) {
	env := newTestEnv(t)

	rec := env.upload(t, statementCSV, "")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	jobID, _ := body["job_id"].(string)
	require.NotEmpty(t, jobID)
	assert.EqualValues(t, 2, body["row_count"])

	job := env.waitForJob(t, jobID)
	require.Equal(t, jobs.StatusCompleted, job.Status, "job error: %s", job.Error)
	assert.Equal(t, 100, job.Progress)

	rec = env.do(t, http.MethodGet, "/api/jobs/"+jobID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", decodeBody(t, rec)["status"])

	rec = env.do(t, http.MethodGet, "/api/transactions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody(t, rec)
	assert.EqualValues(t, 2, list["total_count"])

	rec = env.do(t, http.MethodGet, "/api/vendors", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	vendorsBody := decodeBody(t, rec)
	assert.EqualValues(t, 1, vendorsBody["count"], "both rows resolve to one Stripe vendor")
}

func TestProcessUpload_DuplicateConfirmationFlow(t *testing.T) {
	env := newTestEnv(t)

	// First import persists the rows.
	rec := env.upload(t, statementCSV, "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	env.waitForJob(t, decodeBody(t, rec)["job_id"].(string))

	// Re-uploading the identical file is flagged, not processed.
	rec = env.upload(t, statementCSV, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["requires_confirmation"])
	dups, ok := body["duplicates"].([]any)
	require.True(t, ok)
	assert.Len(t, dups, 2)

	// Confirming both rows processes them anyway.
	rec = env.upload(t, statementCSV, "0,1")
	require.Equal(t, http.StatusAccepted, rec.Code)
	job := env.waitForJob(t, decodeBody(t, rec)["job_id"].(string))
	assert.Equal(t, jobs.StatusCompleted, job.Status)

	rec = env.do(t, http.MethodGet, "/api/transactions", nil)
	assert.EqualValues(t, 4, decodeBody(t, rec)["total_count"])
}

func TestProcessUpload_BadRequests(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/process", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing file")

	rec = env.upload(t, "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "empty csv")

	rec = env.upload(t, statementCSV, "zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "bad excluded_indices")
}

func TestGetJob_NotFound(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/jobs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVendorEndpoints(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v := &model.Vendor{Name: "Stripe", Nicknames: []string{"stripe.com"}, Domain: "stripe.com"}
	require.NoError(t, env.repo.CreateVendor(ctx, v))

	rec := env.do(t, http.MethodGet, "/api/vendors", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decodeBody(t, rec)["count"])

	rec = env.do(t, http.MethodPut, fmt.Sprintf("/api/vendors/%d", v.ID), map[string]any{
		"name":      "Stripe Inc",
		"nicknames": []string{"stripe", "stripe.com"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody(t, rec)
	assert.Equal(t, "Stripe Inc", updated["name"])
	assert.Len(t, updated["nicknames"], 2)

	got, err := env.repo.GetVendor(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"stripe", "stripe.com"}, got.Nicknames)

	rec = env.do(t, http.MethodPut, "/api/vendors/9999", map[string]any{"name": "X"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/vendors", map[string]any{"ids": []int64{v.ID}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decodeBody(t, rec)["deleted"])
}

func TestUpdateVendor_RenameCollision(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := &model.Vendor{Name: "Stripe"}
	b := &model.Vendor{Name: "Mailchimp"}
	require.NoError(t, env.repo.CreateVendor(ctx, a))
	require.NoError(t, env.repo.CreateVendor(ctx, b))

	rec := env.do(t, http.MethodPut, fmt.Sprintf("/api/vendors/%d", b.ID), map[string]any{"name": "stripe"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestEnrichmentEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v := &model.Vendor{Name: "Stripe"}
	require.NoError(t, env.repo.CreateVendor(ctx, v))
	require.NoError(t, env.repo.SaveEnrichment(ctx, &model.VendorEnrichment{
		VendorID:   v.ID,
		Source:     "llm",
		Payload:    `{"name":"Stripe"}`,
		Confidence: 0.9,
	}))

	rec := env.do(t, http.MethodGet, fmt.Sprintf("/api/vendors/%d/enrichments", v.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decodeBody(t, rec)["count"])
}

func TestStatsAndReset(t *testing.T) {
	env := newTestEnv(t)

	rec := env.upload(t, statementCSV, "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	env.waitForJob(t, decodeBody(t, rec)["job_id"].(string))

	rec = env.do(t, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody(t, rec)
	assert.EqualValues(t, 2, stats["total_transactions"])
	assert.EqualValues(t, 1, stats["total_vendors"])

	rec = env.do(t, http.MethodPost, "/api/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/stats", nil)
	assert.EqualValues(t, 0, decodeBody(t, rec)["total_transactions"])
}

func TestDeleteTransactions(t *testing.T) {
	env := newTestEnv(t)

	rec := env.upload(t, statementCSV, "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	env.waitForJob(t, decodeBody(t, rec)["job_id"].(string))

	rec = env.do(t, http.MethodGet, "/api/transactions", nil)
	list := decodeBody(t, rec)
	txns := list["transactions"].([]any)
	require.Len(t, txns, 2)
	first := txns[0].(map[string]any)
	id := int64(first["id"].(float64))

	rec = env.do(t, http.MethodDelete, "/api/transactions", map[string]any{"ids": []int64{id}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decodeBody(t, rec)["deleted"])

	rec = env.do(t, http.MethodGet, "/api/transactions", nil)
	assert.EqualValues(t, 1, decodeBody(t, rec)["total_count"])
}

func TestParseExcludedIndices(t *testing.T) {
	out, err := parseExcludedIndices(" 0, 3,7 ")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 3, 7}, out)

	out, err = parseExcludedIndices("")
	require.NoError(t, err)
	assert.Nil(t, out)

	_, err = parseExcludedIndices("1,x")
	assert.Error(t, err)
}
