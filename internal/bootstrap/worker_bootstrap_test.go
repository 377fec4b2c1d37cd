package bootstrap

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"calsync_server/config"
)

func memoryConfig() *config.Config {
	cfg := config.Defaults()
	cfg.StoreBackend = config.StoreMemory
	cfg.JWTSecret = "test-secret"
	cfg.AdminToken = "admin"
	cfg.SyncLockTTL = 0
	return cfg
}

func TestNewDependenciesRejectsInvalidConfig(t *testing.T) {
	cfg := memoryConfig()
	cfg.SyncDays = 0
	if _, _, err := NewDependencies(context.Background(), cfg); err == nil {
		t.Fatal("invalid config accepted")
	}

	cfg = memoryConfig()
	cfg.JWTSecret = ""
	if _, _, err := NewDependencies(context.Background(), cfg); err == nil {
		t.Fatal("missing JWT secret accepted")
	}
}

func TestAPIUserFlow(t *testing.T) {
	d, cleanup, err := NewDependencies(context.Background(), memoryConfig())
	if err != nil {
		t.Fatalf("NewDependencies: %v", err)
	}
	defer cleanup()
	app := NewAPI(d)

	call := func(method, path, body string, headers map[string]string) (int, map[string]any) {
		t.Helper()
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatalf("%s %s: %v", method, path, err)
		}
		raw, _ := io.ReadAll(resp.Body)
		var out map[string]any
		_ = json.Unmarshal(raw, &out)
		return resp.StatusCode, out
	}
	admin := map[string]string{"X-Admin-Token": "admin"}

	if status, body := call("POST", "/users", `{"name":"alice","password":"pw"}`, admin); status != 201 {
		t.Fatalf("create user = %d %v", status, body)
	}
	status, body := call("POST", "/users/login", `{"name":"alice","password":"pw"}`, nil)
	if status != 200 {
		t.Fatalf("login = %d %v", status, body)
	}
	token := body["data"].(map[string]any)["token"].(string)
	session := map[string]string{"Authorization": "Bearer " + token}

	status, body = call("PUT", "/users/me/config",
		`{"rooms":[{"id":"room1@resource.calendar.google.com","title":"Room 1"}],"filters":["private"],
		  "attendees":[{"outlook":"bob@corp.com","google":"bob@gmail.com"}]}`, session)
	if status != 200 {
		t.Fatalf("save config = %d %v", status, body)
	}

	status, body = call("GET", "/users/me/config", "", session)
	if status != 200 {
		t.Fatalf("get config = %d %v", status, body)
	}
	data := body["data"].(map[string]any)
	if info := data["info"].(map[string]any); info["passwordHash"] != nil {
		t.Errorf("password hash leaked: %v", info)
	}
	if atts, _ := data["attendees"].([]any); len(atts) != 1 {
		t.Errorf("attendees = %v", data["attendees"])
	}

	// No tokens are stored, so the pass reports alice as failed.
	status, body = call("POST", "/sync", "", admin)
	if status != 200 {
		t.Fatalf("sync = %d %v", status, body)
	}
	report := body["data"].(map[string]any)
	if report["users"].(float64) != 1 {
		t.Errorf("report = %v", report)
	}
	if failed, _ := report["failedUsers"].([]any); len(failed) != 1 || failed[0] != "alice" {
		t.Errorf("failedUsers = %v", report["failedUsers"])
	}
}

func TestNewWorkerRejectsBadSchedule(t *testing.T) {
	cfg := memoryConfig()
	cfg.SyncCron = "whenever"
	d, cleanup, err := NewDependencies(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewDependencies: %v", err)
	}
	defer cleanup()
	if _, err := NewWorker(d); err == nil {
		t.Fatal("bad schedule accepted")
	}
}

func TestWorkerStartStop(t *testing.T) {
	d, cleanup, err := NewDependencies(context.Background(), memoryConfig())
	if err != nil {
		t.Fatalf("NewDependencies: %v", err)
	}
	defer cleanup()
	w, err := NewWorker(d)
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	w.Start()
	w.Stop()
}
