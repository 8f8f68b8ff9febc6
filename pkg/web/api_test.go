package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/hamradio-go/dmr-trunkctl/pkg/database"
	"github.com/hamradio-go/dmr-trunkctl/pkg/logger"
)

func TestHandleTuneEvents_NoRepo(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	api := NewAPI(log)

	req := httptest.NewRequest("GET", "/api/tune-events", nil)
	w := httptest.NewRecorder()

	api.HandleTuneEvents(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var events []map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&events); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("Expected empty event list, got %d", len(events))
	}
}

func TestHandleTuneEvents_WithData(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	dbPath := "/tmp/test_api_tune_events.db"
	defer os.Remove(dbPath)

	db, err := database.NewDB(database.Config{Path: dbPath}, log)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	repo := database.NewTuneEventRepository(db.GetDB())
	now := time.Now()
	if err := repo.RecordTune("tune", 451_025_000, 1, 3101, 1234567, now); err != nil {
		t.Fatalf("Failed to record tune event: %v", err)
	}

	api := NewAPI(log)
	api.SetTuneEventRepo(repo)

	req := httptest.NewRequest("GET", "/api/tune-events", nil)
	w := httptest.NewRecorder()
	api.HandleTuneEvents(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var events []map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&events); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if events[0]["kind"] != "tune" {
		t.Errorf("Expected kind=tune, got %v", events[0]["kind"])
	}
}

func TestHandleTransmissions_NoRepo(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	api := NewAPI(log)

	req := httptest.NewRequest("GET", "/api/transmissions", nil)
	w := httptest.NewRecorder()

	api.HandleTransmissions(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if total, ok := response["total"].(float64); !ok || total != 0 {
		t.Errorf("Expected total 0, got %v", response["total"])
	}
}

func TestHandleTransmissions_WithData(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	dbPath := "/tmp/test_api_transmissions.db"
	defer os.Remove(dbPath)

	db, err := database.NewDB(database.Config{Path: dbPath}, log)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	repo := database.NewTransmissionRepository(db.GetDB())

	// Create test transmissions
	now := time.Now()
	for i := 0; i < 3; i++ {
		tx := &database.Transmission{
			RadioID:     uint32(1234560 + i),
			TalkgroupID: 91,
			Timeslot:    1,
			Duration:    float64(i + 1),
			StreamID:    uint32(1000 + i),
			StartTime:   now.Add(time.Duration(i) * time.Minute),
			EndTime:     now.Add(time.Duration(i)*time.Minute + time.Duration(i+1)*time.Second),
			RepeaterID:  3001,
			PacketCount: 10 + i,
		}
		if err := repo.Create(tx); err != nil {
			t.Fatalf("Failed to create transmission: %v", err)
		}
	}

	// Create API with repo
	api := NewAPI(log)
	api.SetTransmissionRepo(repo)

	req := httptest.NewRequest("GET", "/api/transmissions?page=1&per_page=2", nil)
	w := httptest.NewRecorder()

	api.HandleTransmissions(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if total, ok := response["total"].(float64); !ok || total != 3 {
		t.Errorf("Expected total 3, got %v", response["total"])
	}

	if page, ok := response["page"].(float64); !ok || page != 1 {
		t.Errorf("Expected page 1, got %v", response["page"])
	}

	if perPage, ok := response["per_page"].(float64); !ok || perPage != 2 {
		t.Errorf("Expected per_page 2, got %v", response["per_page"])
	}

	transmissions, ok := response["transmissions"].([]interface{})
	if !ok {
		t.Fatalf("Expected transmissions array")
	}

	if len(transmissions) != 2 {
		t.Errorf("Expected 2 transmissions on first page, got %d", len(transmissions))
	}
}

func TestHandleTransmissions_MethodNotAllowed(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	api := NewAPI(log)

	req := httptest.NewRequest("POST", "/api/transmissions", nil)
	w := httptest.NewRecorder()

	api.HandleTransmissions(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

