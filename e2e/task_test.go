package e2e

import (
	"fmt"
	"net/http"
	"testing"
)

func validTaskBody(secret string) string {
	return fmt.Sprintf(`{
		"email": "builder@example.com",
		"secret": "%s",
		"task": "sample-portfolio-site",
		"round": 1,
		"evaluation_url": "https://eval.example.com/callback",
		"nonce": "abc123",
		"brief": "A one-page portfolio with a dark theme",
		"checks": ["index.html exists at repo root"]
	}`, secret)
}

func TestTaskSubmit_Success(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/task", validTaskBody(testIntakeSecret), nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusAccepted)

	result := parseJSON(t, resp)
	if result["jobId"] == nil || result["jobId"] == "" {
		t.Error("expected 'jobId' in response")
	}
	if result["status"] != "accepted" {
		t.Errorf("expected status 'accepted', got %v", result["status"])
	}
	if result["email"] != "builder@example.com" {
		t.Errorf("expected email echoed back, got %v", result["email"])
	}
	if result["round"] != float64(1) {
		t.Errorf("expected round 1, got %v", result["round"])
	}
}

func TestTaskSubmit_WrongSecret(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/task", validTaskBody("wrong-secret"), nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusForbidden)

	result := parseJSON(t, resp)
	errObj := result["error"].(map[string]interface{})
	if errObj["code"] != "FORBIDDEN" {
		t.Errorf("expected error code FORBIDDEN, got %v", errObj["code"])
	}
}

func TestTaskSubmit_MissingFields(t *testing.T) {
	ta := setupApp(t)

	body := `{"email": "builder@example.com", "secret": "x"}`

	resp, err := doRequest(ta.app, http.MethodPost, "/task", body, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)

	result := parseJSON(t, resp)
	errObj := result["error"].(map[string]interface{})
	if errObj["code"] != "VALIDATION_ERROR" {
		t.Errorf("expected error code VALIDATION_ERROR, got %v", errObj["code"])
	}
}

func TestTaskSubmit_InvalidEvaluationURL(t *testing.T) {
	ta := setupApp(t)

	body := fmt.Sprintf(`{
		"email": "builder@example.com",
		"secret": "%s",
		"task": "sample-site",
		"round": 1,
		"evaluation_url": "not-a-url"
	}`, testIntakeSecret)

	resp, err := doRequest(ta.app, http.MethodPost, "/task", body, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)
}

func TestTaskSubmit_EmptySlug(t *testing.T) {
	ta := setupApp(t)

	// Task name with no usable characters yields an empty slug
	body := fmt.Sprintf(`{
		"email": "builder@example.com",
		"secret": "%s",
		"task": "!!!",
		"round": 1,
		"evaluation_url": "https://eval.example.com/callback"
	}`, testIntakeSecret)

	resp, err := doRequest(ta.app, http.MethodPost, "/task", body, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)
}

func TestTaskSubmit_InvalidBody(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/task", `{not json`, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)
}
