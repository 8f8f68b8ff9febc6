package database

import (
	"time"

	"gorm.io/gorm"
)

// TrunkChannelRepository handles trunk_chan_map persistence.
type TrunkChannelRepository struct {
	db *gorm.DB
}

// NewTrunkChannelRepository creates a new trunk channel repository.
func NewTrunkChannelRepository(db *gorm.DB) *TrunkChannelRepository {
	return &TrunkChannelRepository{db: db}
}

// Upsert creates or updates a channel-to-frequency mapping.
func (r *TrunkChannelRepository) Upsert(ch *TrunkChannel) error {
	ch.UpdatedAt = time.Now()
	return r.db.Save(ch).Error
}

// LoadAll returns the full channel map, keyed by logical channel number.
func (r *TrunkChannelRepository) LoadAll() (map[uint16]uint64, error) {
	var channels []TrunkChannel
	if err := r.db.Find(&channels).Error; err != nil {
		return nil, err
	}
	out := make(map[uint16]uint64, len(channels))
	for _, c := range channels {
		out[c.LPChanNum] = c.FreqHz
	}
	return out, nil
}

// TalkgroupRepository handles group_map persistence.
type TalkgroupRepository struct {
	db *gorm.DB
}

// NewTalkgroupRepository creates a new talkgroup repository.
func NewTalkgroupRepository(db *gorm.DB) *TalkgroupRepository {
	return &TalkgroupRepository{db: db}
}

// Upsert creates or updates a talkgroup's name/mode entry.
func (r *TalkgroupRepository) Upsert(tg *Talkgroup) error {
	tg.UpdatedAt = time.Now()
	return r.db.Save(tg).Error
}

// LoadAll returns the full group map, keyed by talkgroup ID.
func (r *TalkgroupRepository) LoadAll() (map[uint32]struct {
	Name string
	Mode string
}, error) {
	var groups []Talkgroup
	if err := r.db.Find(&groups).Error; err != nil {
		return nil, err
	}
	out := make(map[uint32]struct {
		Name string
		Mode string
	}, len(groups))
	for _, g := range groups {
		out[g.TGID] = struct {
			Name string
			Mode string
		}{Name: g.Name, Mode: g.Mode}
	}
	return out, nil
}

// TuneEventRepository handles the tune/retune activity log.
type TuneEventRepository struct {
	db *gorm.DB
}

// NewTuneEventRepository creates a new tune event repository.
func NewTuneEventRepository(db *gorm.DB) *TuneEventRepository {
	return &TuneEventRepository{db: db}
}

// Create appends one tune/retune decision to the activity log.
func (r *TuneEventRepository) Create(ev *TuneEvent) error {
	return r.db.Create(ev).Error
}

// RecordTune satisfies trunking.Recorder, persisting a tune/clear
// decision made by the policy engine as an activity-log row.
func (r *TuneEventRepository) RecordTune(kind string, freqHz uint64, slot int, target, source uint32, at time.Time) error {
	return r.Create(&TuneEvent{
		Kind:      kind,
		FreqHz:    freqHz,
		Slot:      slot,
		Target:    target,
		Source:    source,
		Timestamp: at,
	})
}

// GetRecent retrieves the most recent N tune events.
func (r *TuneEventRepository) GetRecent(limit int) ([]TuneEvent, error) {
	var events []TuneEvent
	err := r.db.Order("timestamp DESC").Limit(limit).Find(&events).Error
	return events, err
}
