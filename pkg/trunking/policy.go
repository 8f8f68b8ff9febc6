// Package trunking implements the effectful half of the CSBK pipeline:
// given a pure csbk.Event and the current sitemodel.Store, decide
// whether to tune, clear back to the control channel, or do nothing,
// then drive a tuner.Tuner accordingly.
package trunking

import (
	"context"
	"time"

	"github.com/hamradio-go/dmr-trunkctl/pkg/csbk"
	"github.com/hamradio-go/dmr-trunkctl/pkg/logger"
	"github.com/hamradio-go/dmr-trunkctl/pkg/metrics"
	"github.com/hamradio-go/dmr-trunkctl/pkg/mqtt"
	"github.com/hamradio-go/dmr-trunkctl/pkg/sitemodel"
	"github.com/hamradio-go/dmr-trunkctl/pkg/tuner"
)

// Config carries the immutable trunking policy knobs named in the
// external-interfaces configuration section.
type Config struct {
	TrunkEnabled      bool
	TuneGroupCalls    bool
	TunePrivateCalls  bool
	TuneDataCalls     bool
	UseAllowList      bool
	HangTime          time.Duration
	SetmodBW          uint32
	DmrlaOverrideSet  bool
	DmrlaOverrideN    uint8
}

// DecisionKind enumerates the policy engine's three possible outputs.
type DecisionKind int

const (
	NoOp DecisionKind = iota
	Tune
	RetuneToCC
)

// Decision is what the policy engine decided to do, for logging and
// testing; Controller.Apply performs the tuner calls itself.
type Decision struct {
	Kind DecisionKind
	Freq uint64
	Slot int
}

// Broadcaster pushes a named event with a JSON-able payload to
// connected dashboard clients; web.Server implements this.
type Broadcaster interface {
	BroadcastTrunking(kind string, data map[string]interface{})
}

// Recorder persists a tune/clear decision to the activity log;
// database.TuneEventRepository implements this.
type Recorder interface {
	RecordTune(kind string, freqHz uint64, slot int, target, source uint32, at time.Time) error
}

// Controller holds the policy config, site state, and tuner driven by
// incoming events. It is the only place that issues tuner commands.
type Controller struct {
	cfg         Config
	store       *sitemodel.Store
	tuner       tuner.Tuner
	log         *logger.Logger
	metrics     *metrics.Collector
	publisher   *mqtt.Publisher
	broadcaster Broadcaster
	recorder    Recorder
}

// NewController wires a policy Config, a Store, and a Tuner together.
func NewController(cfg Config, store *sitemodel.Store, t tuner.Tuner, log *logger.Logger) *Controller {
	return &Controller{cfg: cfg, store: store, tuner: t, log: log.WithComponent("trunking.policy")}
}

// WithMetrics attaches a metrics collector; tune/retune/failure counts
// are recorded as Apply runs. Safe to omit: a nil collector is a no-op.
func (c *Controller) WithMetrics(m *metrics.Collector) *Controller {
	c.metrics = m
	return c
}

// WithPublisher attaches an MQTT publisher; tune/clear decisions are
// published as they're made. Safe to omit: a nil publisher is a no-op.
func (c *Controller) WithPublisher(p *mqtt.Publisher) *Controller {
	c.publisher = p
	return c
}

// WithBroadcaster attaches a dashboard broadcaster; tune/clear
// decisions are pushed over it as they're made. Safe to omit.
func (c *Controller) WithBroadcaster(b Broadcaster) *Controller {
	c.broadcaster = b
	return c
}

// WithRecorder attaches an activity-log recorder; every tune/clear
// decision is persisted as it's made. Safe to omit.
func (c *Controller) WithRecorder(r Recorder) *Controller {
	c.recorder = r
	return c
}

// Apply routes a parsed Event to the matching handler. Unhandled
// event types are a no-op. Apply makes only tune/clear decisions and
// writes no display text; the dispatch loop records that into
// sitemodel after Apply returns.
func (c *Controller) Apply(ctx context.Context, ev csbk.Event, now time.Time) Decision {
	switch e := ev.(type) {
	case csbk.ChannelGrant:
		return c.applyGrant(ctx, e, now)
	case csbk.Clear:
		return c.applyClear(ctx, now)
	case csbk.ConnectPlusGrant:
		return c.applyConnectPlusGrant(ctx, e, now)
	case csbk.CapPlusStatus:
		return c.applyCapPlusStatus(ctx, e, now)
	case csbk.XptSiteStatus:
		return c.applyXptSiteStatus(ctx, e, now)
	default:
		return Decision{Kind: NoOp}
	}
}

// grantCategory classifies a ChannelGrant opcode family per §4.F.
type grantCategory int

const (
	categoryGroup grantCategory = iota
	categoryData
	categoryPrivate
)

func categorize(kind csbk.GrantKind) grantCategory {
	switch kind {
	case csbk.GrantTV, csbk.GrantBTV:
		return categoryGroup
	case csbk.GrantPDSingle, csbk.GrantTDSingle, csbk.GrantPDDX, csbk.GrantPDMulti, csbk.GrantTDMulti:
		return categoryData
	default: // PV, PV_dx
		return categoryPrivate
	}
}

func (c *Controller) applyGrant(ctx context.Context, g csbk.ChannelGrant, now time.Time) Decision {
	switch categorize(g.Kind) {
	case categoryGroup:
		if !c.cfg.TuneGroupCalls {
			return Decision{Kind: NoOp}
		}
	case categoryData:
		if !c.cfg.TuneDataCalls {
			return Decision{Kind: NoOp}
		}
	case categoryPrivate:
		if !c.cfg.TunePrivateCalls {
			return Decision{Kind: NoOp}
		}
	}

	freq := c.resolveFreq(g)
	if freq == 0 {
		return Decision{Kind: NoOp}
	}

	mode := c.resolveMode(g.Target)

	snap := c.store.Snapshot()
	if snap.TGHold != 0 {
		if snap.TGHold == g.Target {
			mode = "A"
		} else {
			mode = "B"
		}
	}

	if snap.TGHold != 0 && snap.TGHold == g.Target {
		c.store.ResetVCSync()
		snap = c.store.Snapshot()
	}

	if mode == "B" || mode == "DE" {
		return Decision{Kind: NoOp}
	}
	if snap.CCFreq == 0 || !c.cfg.TrunkEnabled {
		return Decision{Kind: NoOp}
	}

	// A fresh last_vc_sync means the receiver is already locked onto an
	// active call; only a stale one calls for a new tune.
	if now.Sub(snap.LastVCSync) <= 2*time.Second {
		return Decision{Kind: NoOp}
	}

	return c.tune(ctx, freq, g.Slot, g.Target, g.Source, now)
}

// tune drives the tuner to freq and records the resulting Tune
// decision across metrics/publisher/broadcaster/recorder, shared by
// every policy path that ends in a channel tune (grant, Cap+/XPT LSN
// activity). Returns a NoOp Decision on tuner failure.
func (c *Controller) tune(ctx context.Context, freq uint64, slot int, target, source uint32, now time.Time) Decision {
	c.store.NoteClear(now)

	if c.cfg.SetmodBW != 0 {
		_ = c.tuner.SetBandwidth(ctx, c.cfg.SetmodBW)
	}
	if err := c.tuner.SetFreq(ctx, freq); err != nil {
		c.log.Warn("tune failed", logger.Uint64("freq", freq), logger.Error(err))
		if c.metrics != nil {
			c.metrics.TuneFailed()
		}
		return Decision{Kind: NoOp}
	}
	c.store.SetTunerState(now, freq, true)
	if c.metrics != nil {
		c.metrics.Tuned()
	}
	if c.publisher != nil {
		_ = c.publisher.PublishTune(mqtt.TuneEvent{FreqHz: freq, Slot: slot, Target: target, Source: source, Timestamp: now})
	}
	if c.broadcaster != nil {
		c.broadcaster.BroadcastTrunking("tune", map[string]interface{}{
			"freq_hz": freq, "slot": slot, "target": target, "source": source,
		})
	}
	if c.recorder != nil {
		_ = c.recorder.RecordTune("tune", freq, slot, target, source, now)
	}

	return Decision{Kind: Tune, Freq: freq, Slot: slot}
}

func (c *Controller) resolveFreq(g csbk.ChannelGrant) uint64 {
	if g.LPChanNum == 0xFFF {
		if g.AbsParams != nil {
			return g.AbsParams.RxFreqHz
		}
		return 0
	}
	return c.store.ChannelFreq(g.LPChanNum)
}

func (c *Controller) resolveMode(target uint32) string {
	mode := ""
	if c.cfg.UseAllowList {
		mode = "B"
	}
	if entry, ok := c.store.GroupEntryFor(target); ok {
		mode = entry.Mode
	}
	return mode
}

// applyClear decides whether a P_CLEAR PDU should return the receiver
// to the control channel. It is idempotent: processing a second
// P_CLEAR while already untuned makes no further tuner calls.
func (c *Controller) applyClear(ctx context.Context, now time.Time) Decision {
	snap := c.store.Snapshot()
	if !snap.IsTuned || snap.CCFreq == 0 || !c.cfg.TrunkEnabled {
		return Decision{Kind: NoOp}
	}

	clear := now.Sub(snap.LastVCSync) > c.cfg.HangTime && !c.cfg.TuneDataCalls
	if !clear && snap.TGHold != 0 {
		for _, tg := range snap.LastTG {
			if tg == snap.TGHold {
				clear = true
				break
			}
		}
	}
	if !clear {
		return Decision{Kind: NoOp}
	}

	if c.cfg.SetmodBW != 0 {
		_ = c.tuner.SetBandwidth(ctx, c.cfg.SetmodBW)
	}
	if err := c.tuner.SetFreq(ctx, snap.CCFreq); err != nil {
		c.log.Warn("retune to cc failed", logger.Uint64("freq", snap.CCFreq), logger.Error(err))
		if c.metrics != nil {
			c.metrics.TuneFailed()
		}
		return Decision{Kind: NoOp}
	}
	c.store.NoteClear(now)
	if c.metrics != nil {
		c.metrics.Retuned()
	}
	if c.publisher != nil {
		_ = c.publisher.PublishClear(mqtt.ClearEvent{CCFreqHz: snap.CCFreq, Timestamp: now})
	}
	if c.broadcaster != nil {
		c.broadcaster.BroadcastTrunking("clear", map[string]interface{}{"cc_freq_hz": snap.CCFreq})
	}
	if c.recorder != nil {
		_ = c.recorder.RecordTune("clear", snap.CCFreq, 0, 0, 0, now)
	}

	return Decision{Kind: RetuneToCC, Freq: snap.CCFreq}
}

// applyCapPlusStatus iterates a reassembled Capacity+ Channel Status
// PDU's group-call activity vector (LSN 1..16) and tunes to the first
// matched and allowed LSN.
func (c *Controller) applyCapPlusStatus(ctx context.Context, e csbk.CapPlusStatus, now time.Time) Decision {
	var lsns []uint16
	var targets []uint32
	for i, active := range e.GroupBits {
		if !active {
			continue
		}
		lsns = append(lsns, uint16(i+1))
		targets = append(targets, uint32(e.GroupTargets[i]))
	}
	return c.applyLSNActivity(ctx, lsns, targets, now)
}

// applyXptSiteStatus iterates a Hytera XPT site-status PDU's LSN
// activity vector the same way: status 3 ("active, carries a TG")
// is the only state worth a tune attempt. With trunking enabled and
// cc_freq still unknown, cc_freq is first latched from the tuner's
// current frequency.
func (c *Controller) applyXptSiteStatus(ctx context.Context, e csbk.XptSiteStatus, now time.Time) Decision {
	if c.cfg.TrunkEnabled && c.store.Snapshot().CCFreq == 0 {
		if f, err := c.tuner.CurrentFreq(ctx); err == nil && f != 0 {
			c.store.SetCCFreq(f)
		}
	}

	var lsns []uint16
	var targets []uint32
	for i, status := range e.LSNStatus {
		if status != 3 {
			continue
		}
		lsns = append(lsns, uint16(i+int(e.Seq)*6+1))
		targets = append(targets, uint32(e.LSNTarget[i]))
	}
	return c.applyLSNActivity(ctx, lsns, targets, now)
}

// applyLSNActivity is the decision shared by Cap+ and XPT: walk an
// LSN activity vector in order and tune to the first entry that
// resolves to a real frequency and passes the same group-call,
// TG-hold, and freshness gates as an ordinary ChannelGrant.
func (c *Controller) applyLSNActivity(ctx context.Context, lsns []uint16, targets []uint32, now time.Time) Decision {
	if !c.cfg.TuneGroupCalls || !c.cfg.TrunkEnabled {
		return Decision{Kind: NoOp}
	}

	snap := c.store.Snapshot()
	if snap.CCFreq == 0 {
		return Decision{Kind: NoOp}
	}
	if now.Sub(snap.LastVCSync) <= 2*time.Second {
		return Decision{Kind: NoOp}
	}

	for i, lsn := range lsns {
		freq := c.store.ChannelFreq(lsn)
		if freq == 0 {
			continue
		}
		target := targets[i]
		mode := c.resolveMode(target)
		if snap.TGHold != 0 {
			if snap.TGHold == target {
				mode = "A"
			} else {
				mode = "B"
			}
		}
		if mode == "B" || mode == "DE" {
			continue
		}
		return c.tune(ctx, freq, 1, target, 0, now)
	}
	return Decision{Kind: NoOp}
}

// applyConnectPlusGrant mirrors applyGrant's group-call gating for the
// simpler Connect+ Voice Channel Grant, which carries its own
// (lcn, slot) pair rather than a logical physical channel number.
func (c *Controller) applyConnectPlusGrant(ctx context.Context, g csbk.ConnectPlusGrant, now time.Time) Decision {
	if !c.cfg.TuneGroupCalls {
		return Decision{Kind: NoOp}
	}
	freq := c.store.ChannelFreq(uint16(g.LCN))
	if freq == 0 {
		return Decision{Kind: NoOp}
	}

	snap := c.store.Snapshot()
	if snap.CCFreq == 0 || !c.cfg.TrunkEnabled {
		return Decision{Kind: NoOp}
	}

	if err := c.tuner.SetFreq(ctx, freq); err != nil {
		c.log.Warn("connect+ tune failed", logger.Uint64("freq", freq), logger.Error(err))
		if c.metrics != nil {
			c.metrics.TuneFailed()
		}
		return Decision{Kind: NoOp}
	}
	c.store.SetTunerState(now, freq, true)
	c.store.SetConPlus(true)
	if c.metrics != nil {
		c.metrics.Tuned()
	}
	if c.publisher != nil {
		_ = c.publisher.PublishTune(mqtt.TuneEvent{FreqHz: freq, Slot: g.Slot, Timestamp: now})
	}
	if c.broadcaster != nil {
		c.broadcaster.BroadcastTrunking("tune", map[string]interface{}{"freq_hz": freq, "slot": g.Slot, "connect_plus": true})
	}
	if c.recorder != nil {
		_ = c.recorder.RecordTune("tune", freq, g.Slot, 0, 0, now)
	}

	return Decision{Kind: Tune, Freq: freq, Slot: g.Slot}
}
