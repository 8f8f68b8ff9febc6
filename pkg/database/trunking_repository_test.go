package database

import (
	"os"
	"testing"

	"github.com/hamradio-go/dmr-trunkctl/pkg/logger"
)

func TestTrunkChannelRepository_UpsertAndLoadAll(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	dbPath := "/tmp/test_trunk_channels.db"
	defer func() { _ = os.Remove(dbPath) }()

	db, err := NewDB(Config{Path: dbPath}, log)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := NewTrunkChannelRepository(db.GetDB())
	if err := repo.Upsert(&TrunkChannel{LPChanNum: 12, FreqHz: 451_025_000}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	channels, err := repo.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if channels[12] != 451_025_000 {
		t.Errorf("channels[12] = %d, want 451025000", channels[12])
	}
}

func TestTalkgroupRepository_UpsertAndLoadAll(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	dbPath := "/tmp/test_talkgroups.db"
	defer func() { _ = os.Remove(dbPath) }()

	db, err := NewDB(Config{Path: dbPath}, log)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := NewTalkgroupRepository(db.GetDB())
	if err := repo.Upsert(&Talkgroup{TGID: 3101, Name: "DISP", Mode: "A"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	groups, err := repo.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if groups[3101].Mode != "A" {
		t.Errorf("groups[3101].Mode = %q, want \"A\"", groups[3101].Mode)
	}
}

func TestTuneEventRepository_CreateAndGetRecent(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	dbPath := "/tmp/test_tune_events.db"
	defer func() { _ = os.Remove(dbPath) }()

	db, err := NewDB(Config{Path: dbPath}, log)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := NewTuneEventRepository(db.GetDB())
	if err := repo.Create(&TuneEvent{Kind: "tune", FreqHz: 451_025_000, Slot: 1, Target: 3101}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	events, err := repo.GetRecent(10)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if len(events) != 1 || events[0].FreqHz != 451_025_000 {
		t.Fatalf("events = %+v, want one tune event at 451025000", events)
	}
}
