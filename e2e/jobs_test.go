package e2e

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
)

func submitTask(t *testing.T, ta *testApp) string {
	t.Helper()

	resp, err := doRequest(ta.app, http.MethodPost, "/task", validTaskBody(testIntakeSecret), nil)
	if err != nil {
		t.Fatalf("submit request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)

	result := parseJSON(t, resp)
	return result["jobId"].(string)
}

func TestJobStatus_Success(t *testing.T) {
	ta := setupApp(t)
	jobID := submitTask(t, ta)

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/jobs/"+jobID+"/status", "")
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	if result["jobId"] != jobID {
		t.Errorf("expected jobId %s, got %v", jobID, result["jobId"])
	}
	if result["status"] != "queued" {
		t.Errorf("expected status 'queued', got %v", result["status"])
	}
	if result["stage"] != "received" {
		t.Errorf("expected stage 'received', got %v", result["stage"])
	}
}

func TestJobStatus_NoAuth(t *testing.T) {
	ta := setupApp(t)
	jobID := submitTask(t, ta)

	resp, err := doRequest(ta.app, http.MethodGet, "/api/jobs/"+jobID+"/status", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestJobStatus_NotFound(t *testing.T) {
	ta := setupApp(t)

	fakeJobID := uuid.New().String()
	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/jobs/"+fakeJobID+"/status", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusNotFound)

	result := parseJSON(t, resp)
	errObj := result["error"].(map[string]interface{})
	if errObj["code"] != "NOT_FOUND" {
		t.Errorf("expected error code NOT_FOUND, got %v", errObj["code"])
	}
}

func TestJobResult_NotCompleted(t *testing.T) {
	ta := setupApp(t)
	jobID := submitTask(t, ta)

	// Job is still queued (no worker running in e2e), so the result is not
	// available yet
	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/jobs/"+jobID+"/result", "")
	if err != nil {
		t.Fatalf("result request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)
}

func TestJobResult_NotFound(t *testing.T) {
	ta := setupApp(t)

	fakeJobID := uuid.New().String()
	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/jobs/"+fakeJobID+"/result", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusNotFound)
}
