package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hamradio-go/dmr-trunkctl/pkg/database"
	"github.com/hamradio-go/dmr-trunkctl/pkg/logger"
	"github.com/hamradio-go/dmr-trunkctl/pkg/sitemodel"
)

// API handles REST API endpoints
type API struct {
	logger    *logger.Logger
	txRepo    *database.TransmissionRepository
	tuneRepo  *database.TuneEventRepository
	userRepo  *database.DMRUserRepository
	streamMap map[uint32]*streamActivity // Track active streams
	siteModel *sitemodel.Store
}

// streamActivity tracks active transmission metadata
type streamActivity struct {
	streamID    uint32
	radioID     uint32
	talkgroupID uint32
	timeslot    int
	repeaterID  uint32
	startTime   time.Time
	lastSeen    time.Time
	packetCount int
}

// NewAPI creates a new API instance
func NewAPI(log *logger.Logger) *API {
	return &API{
		logger:    log,
		streamMap: make(map[uint32]*streamActivity),
	}
}

// SetTransmissionRepo sets the transmission repository
func (a *API) SetTransmissionRepo(repo *database.TransmissionRepository) {
	a.txRepo = repo
}

// SetTuneEventRepo provides the tune/retune activity log for /api/tune-events.
func (a *API) SetTuneEventRepo(repo *database.TuneEventRepository) {
	a.tuneRepo = repo
}

// SetSiteModel provides the trunking site model for /api/trunking.
func (a *API) SetSiteModel(store *sitemodel.Store) {
	a.siteModel = store
}

// SetUserRepo provides the DMR subscriber database for /api/user/.
func (a *API) SetUserRepo(repo *database.DMRUserRepository) {
	a.userRepo = repo
}

// HandleUserLookup handles GET /api/user/{radioID}, resolving a source
// or target radio ID seen in a grant into a callsign/name, so the
// dashboard can show who is using a talkgroup rather than a bare ID.
func (a *API) HandleUserLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	idStr := strings.TrimPrefix(r.URL.Path, "/api/user/")
	radioID, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		http.Error(w, "invalid radio id", http.StatusBadRequest)
		return
	}

	if a.userRepo == nil {
		http.Error(w, "user database not available", http.StatusServiceUnavailable)
		return
	}

	user, err := a.userRepo.GetByRadioID(uint32(radioID))
	if err != nil {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"radio_id": user.RadioID,
		"callsign": user.Callsign,
		"name":     user.FullName(),
		"city":     user.City,
		"state":    user.State,
		"country":  user.Country,
	})
}

// TrunkingDTO is a lightweight response for the current trunking
// site state: frequencies, sync freshness, and per-slot activity.
type TrunkingDTO struct {
	CCFreqHz      uint64    `json:"cc_freq_hz"`
	VCFreqHz      [2]uint64 `json:"vc_freq_hz"`
	IsTuned       bool      `json:"is_tuned"`
	IsConnectPlus bool      `json:"is_connect_plus"`
	Branding      string    `json:"branding"`
	BrandingSub   string    `json:"branding_sub"`
	SiteParms     string    `json:"site_parms"`
	RestChannel   uint8     `json:"rest_channel"`
	TGHold        uint32    `json:"tg_hold"`
	ActiveChannel [2]string `json:"active_channel"`
	LastCCSyncAgo float64   `json:"last_cc_sync_ago_seconds"`
	LastVCSyncAgo float64   `json:"last_vc_sync_ago_seconds"`
}

// HandleTrunking handles the /api/trunking endpoint.
func (a *API) HandleTrunking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	if a.siteModel == nil {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(TrunkingDTO{})
		return
	}

	snap := a.siteModel.Snapshot()
	now := time.Now()
	dto := TrunkingDTO{
		CCFreqHz:      snap.CCFreq,
		VCFreqHz:      snap.VCFreq,
		IsTuned:       snap.IsTuned,
		IsConnectPlus: snap.IsConPlus,
		Branding:      snap.Branding,
		BrandingSub:   snap.BrandingSub,
		SiteParms:     snap.SiteParms,
		RestChannel:   snap.RestChannel,
		TGHold:        snap.TGHold,
		ActiveChannel: snap.ActiveChannel,
		LastCCSyncAgo: now.Sub(snap.LastCCSync).Seconds(),
		LastVCSyncAgo: now.Sub(snap.LastVCSync).Seconds(),
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(dto)
}

// TuneEventDTO is a lightweight response for a single tune/clear
// activity-log row.
type TuneEventDTO struct {
	Kind      string `json:"kind"`
	FreqHz    uint64 `json:"freq_hz"`
	Slot      int    `json:"slot"`
	Target    uint32 `json:"target"`
	Source    uint32 `json:"source"`
	Timestamp int64  `json:"timestamp"`
}

// HandleTuneEvents handles the /api/tune-events endpoint, returning
// the most recent tune/clear decisions the policy engine recorded.
func (a *API) HandleTuneEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	if a.tuneRepo == nil {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode([]TuneEventDTO{})
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 500 {
			limit = l
		}
	}

	events, err := a.tuneRepo.GetRecent(limit)
	if err != nil {
		a.logger.Error("Failed to get tune events", logger.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	dtos := make([]TuneEventDTO, 0, len(events))
	for _, ev := range events {
		dtos = append(dtos, TuneEventDTO{
			Kind:      ev.Kind,
			FreqHz:    ev.FreqHz,
			Slot:      ev.Slot,
			Target:    ev.Target,
			Source:    ev.Source,
			Timestamp: ev.Timestamp.Unix(),
		})
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(dtos)
}

// TransmissionDTO is a lightweight response for transmissions
type TransmissionDTO struct {
	ID          uint    `json:"id"`
	RadioID     uint32  `json:"radio_id"`
	TalkgroupID uint32  `json:"talkgroup_id"`
	Timeslot    int     `json:"timeslot"`
	Duration    float64 `json:"duration"`
	StartTime   int64   `json:"start_time"`
	EndTime     int64   `json:"end_time"`
	RepeaterID  uint32  `json:"repeater_id"`
	PacketCount int     `json:"packet_count"`
}

// HandleStatus handles the /api/status endpoint
func (a *API) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	response := map[string]interface{}{
		"status":  "running",
		"service": "dmrtrunkctl",
		"version": "dev",
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		a.logger.Error("Failed to encode status response", logger.Error(err))
	}
}

// HandleActivity handles the /api/activity endpoint
func (a *API) HandleActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// Return empty array for now - will be populated with actual activity data
	activity := []interface{}{}
	if err := json.NewEncoder(w).Encode(activity); err != nil {
		a.logger.Error("Failed to encode activity response", logger.Error(err))
	}
}

// HandleTransmissions handles the /api/transmissions endpoint
func (a *API) HandleTransmissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	// If no transmission repo, return empty list
	if a.txRepo == nil {
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(map[string]interface{}{
			"transmissions": []TransmissionDTO{},
			"total":         0,
			"page":          1,
			"per_page":      50,
		}); err != nil {
			a.logger.Error("Failed to encode transmissions response", logger.Error(err))
		}
		return
	}

	// Parse pagination parameters
	page := 1
	perPage := 50

	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}

	if perPageStr := r.URL.Query().Get("per_page"); perPageStr != "" {
		if pp, err := strconv.Atoi(perPageStr); err == nil && pp > 0 && pp <= 100 {
			perPage = pp
		}
	}

	// Get transmissions from database
	transmissions, total, err := a.txRepo.GetRecentPaginated(page, perPage)
	if err != nil {
		a.logger.Error("Failed to get transmissions", logger.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	// Convert to DTOs
	dtos := make([]TransmissionDTO, 0, len(transmissions))
	for _, tx := range transmissions {
		dtos = append(dtos, TransmissionDTO{
			ID:          tx.ID,
			RadioID:     tx.RadioID,
			TalkgroupID: tx.TalkgroupID,
			Timeslot:    tx.Timeslot,
			Duration:    tx.Duration,
			StartTime:   tx.StartTime.Unix(),
			EndTime:     tx.EndTime.Unix(),
			RepeaterID:  tx.RepeaterID,
			PacketCount: tx.PacketCount,
		})
	}

	response := map[string]interface{}{
		"transmissions": dtos,
		"total":         total,
		"page":          page,
		"per_page":      perPage,
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		a.logger.Error("Failed to encode transmissions response", logger.Error(err))
	}
}
