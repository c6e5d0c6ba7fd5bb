package igpustats

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/igpu-go/igpustats/internal/hwmon"
	"github.com/igpu-go/igpustats/internal/perfevent"
	"github.com/igpu-go/igpustats/internal/pmu"
	"github.com/igpu-go/igpustats/internal/rapl"
	"github.com/igpu-go/igpustats/internal/rate"
	"github.com/igpu-go/igpustats/internal/sysfs"
	"github.com/igpu-go/igpustats/internal/throttle"
)

// engineOrder fixes the order engine classes are opened in, matching
// the order they're reported in EngineStats.
var engineOrder = []pmu.EngineClass{
	pmu.EngineRender,
	pmu.EngineCopy,
	pmu.EngineVideo,
	pmu.EngineVideoEnhance,
	pmu.EngineCompute,
}

// instanceCounters holds one engine instance's open busy/wait/sema
// counters and the running totals needed to turn their deltas into
// nanosecond deltas per read.
type instanceCounters struct {
	group *perfevent.Group
	busy  *perfevent.Event
	wait  *perfevent.Event
	sema  *perfevent.Event

	busyCounter rate.Counter
	waitCounter rate.Counter
	semaCounter rate.Counter
}

// engineCounters holds every open instance of one engine class. An
// adapter with multiple rings of the same class (e.g. two VCS video
// decode rings) sums their busy/wait/sema deltas into a single
// EngineUtilization, per spec.md §4.3 — the denominator is the elapsed
// wall-clock interval, not the instance count.
type engineCounters struct {
	instances []*instanceCounters
}

func (ec *engineCounters) readUtilization(elapsedNs uint64) (EngineUtilization, error) {
	var busySum, waitSum, semaSum uint64
	var sawWait, sawSema bool

	for _, inst := range ec.instances {
		values, err := inst.group.ReadAll()
		if err != nil {
			return EngineUtilization{}, err
		}
		if raw, ok := values[inst.busy]; ok {
			busySum += inst.busyCounter.Sample(raw)
		}
		if inst.wait != nil {
			if raw, ok := values[inst.wait]; ok {
				waitSum += inst.waitCounter.Sample(raw)
				sawWait = true
			}
		}
		if inst.sema != nil {
			if raw, ok := values[inst.sema]; ok {
				semaSum += inst.semaCounter.Sample(raw)
				sawSema = true
			}
		}
	}

	u := EngineUtilization{BusyPercent: rate.Percent(busySum, elapsedNs)}
	if sawWait {
		u.WaitPercent = rate.Percent(waitSum, elapsedNs)
	}
	if sawSema {
		u.SemaPercent = rate.Percent(semaSum, elapsedNs)
	}
	return u, nil
}

// Close closes every open instance's counter group, returning the first
// error encountered, if any.
func (ec *engineCounters) Close() error {
	var firstErr error
	for _, inst := range ec.instances {
		if err := inst.group.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// IntelGpu is an open handle to one Intel GPU's telemetry counters. The
// zero value is not usable; construct one with Detect or Open.
type IntelGpu struct {
	mu sync.Mutex

	info    GpuInfo
	pmuInfo pmu.Info

	engines    map[pmu.EngineClass]*engineCounters
	hasCompute bool

	hasBaseline bool
	lastStats   GpuStats

	freqGroup            *perfevent.Group
	freqActual           *perfevent.Event
	freqRequested        *perfevent.Event
	freqActualCounter    rate.Counter
	freqRequestedCounter rate.Counter
	freqActualScale      float64
	freqRequestedScale   float64

	rc6Event   *perfevent.Event
	rc6Counter rate.Counter

	window rate.Window

	hwmonReader    *hwmon.Reader
	raplReader     *rapl.Reader
	throttleReader *throttle.Reader

	closed bool
}

// ListGPUs enumerates every Intel GPU adapter visible on this host, in
// ascending card-index order.
func ListGPUs() ([]GpuInfo, error) {
	return sysfs.ListGPUs()
}

// Detect opens the first Intel GPU found.
func Detect() (*IntelGpu, error) {
	info, err := sysfs.Detect()
	if err != nil {
		return nil, translateSysfsErr(err)
	}
	return openAdapter(info)
}

// Open opens the Intel GPU identified by card id (e.g. "card0") or by
// one of its device node paths (render node or card node).
func Open(path string) (*IntelGpu, error) {
	gpus, err := sysfs.ListGPUs()
	if err != nil {
		return nil, ErrIO{Path: "/sys/class/drm", Err: err}
	}
	for _, g := range gpus {
		if g.ID == path || g.RenderNode == path || g.CardNode == path {
			return openAdapter(g)
		}
	}
	return nil, ErrNoIntelGpu{}
}

func translateSysfsErr(err error) error {
	var notFound sysfs.ErrNoIntelGpu
	if errors.As(err, &notFound) {
		return ErrNoIntelGpu{}
	}
	return ErrIO{Path: "/sys/class/drm", Err: err}
}

func openAdapter(info GpuInfo) (*IntelGpu, error) {
	pmuInfo, err := pmu.ForCard(info.ID)
	if err != nil {
		return nil, ErrPmuUnavailable{Driver: info.Driver.String()}
	}

	g := &IntelGpu{
		info:           info,
		pmuInfo:        pmuInfo,
		engines:        make(map[pmu.EngineClass]*engineCounters),
		hwmonReader:    hwmon.New(info.PCIPath),
		raplReader:     rapl.New(info.PCIPath),
		throttleReader: throttle.New(info.ID),
	}

	if err := g.openEngineEvents(); err != nil {
		g.closeResources()
		return nil, err
	}
	g.openFrequencyEvents()
	g.openRC6Event()

	runtime.SetFinalizer(g, finalizeIntelGpu)
	return g, nil
}

func finalizeIntelGpu(g *IntelGpu) {
	if !g.closed {
		fmt.Fprintln(os.Stderr, "igpustats: IntelGpu garbage collected without Close; perf event file descriptors were leaked")
	}
}

// openEngineEvents opens the busy/wait/sema counters for every engine
// class the PMU reports an instance for. A class whose busy counter
// can't be opened at all is skipped rather than failing adapter open —
// not every engine class exists on every adapter (compute engines are
// Arc-only, for instance).
func (g *IntelGpu) openEngineEvents() error {
	instances := pmu.GetEngineInstances(g.pmuInfo)

	for _, class := range engineOrder {
		insts, ok := instances[class]
		if !ok || len(insts) == 0 {
			continue
		}

		ec := &engineCounters{}
		for _, instance := range insts {
			inst, err := g.openEngineInstance(class, instance)
			if err != nil {
				var perm perfevent.ErrPermissionDenied
				if errors.As(err, &perm) {
					return ErrPermissionDenied{Event: perm.Event}
				}
				continue
			}
			ec.instances = append(ec.instances, inst)
		}
		if len(ec.instances) == 0 {
			continue
		}

		g.engines[class] = ec
		if class == pmu.EngineCompute {
			g.hasCompute = true
		}
	}
	return nil
}

// openEngineInstance opens one engine instance's busy/wait/sema group.
// Wait and sema are best-effort followers; only busy must succeed.
func (g *IntelGpu) openEngineInstance(class pmu.EngineClass, instance uint16) (*instanceCounters, error) {
	busyConfig, ok := g.engineConfig(class, instance, pmu.SampleBusy)
	if !ok {
		return nil, fmt.Errorf("igpustats: no PMU event for %s", engineEventName(class, "busy"))
	}
	group, err := perfevent.NewGroup(g.pmuInfo.TypeID, busyConfig, engineEventName(class, "busy"))
	if err != nil {
		return nil, err
	}

	inst := &instanceCounters{group: group, busy: group.Leader()}

	if waitConfig, ok := g.engineConfig(class, instance, pmu.SampleWait); ok {
		if wait, err := group.AddMember(waitConfig, engineEventName(class, "wait")); err == nil {
			inst.wait = wait
		}
	}
	if semaConfig, ok := g.engineConfig(class, instance, pmu.SampleSema); ok {
		if sema, err := group.AddMember(semaConfig, engineEventName(class, "sema")); err == nil {
			inst.sema = sema
		}
	}

	if err := group.EnableAll(); err != nil {
		_ = group.Close()
		return nil, err
	}
	return inst, nil
}

// engineConfig resolves one engine counter's raw perf event config. i915
// packs class/instance/sample-type into a single u64 the package can
// compute directly; xe exposes per-class "*-group-busy" events under the
// PMU whose bit layout differs (and may carry a gt= field), so those
// MUST be resolved by looking up the event's name in the PMU's event
// table rather than synthesized, per spec.md §4.3. xe exposes no
// separate wait/sema events, so those lookups simply report !ok.
func (g *IntelGpu) engineConfig(class pmu.EngineClass, instance uint16, sample pmu.SampleType) (uint64, bool) {
	if g.pmuInfo.Driver == sysfs.DriverXe {
		name := xeEngineEventName(class, sample)
		if name == "" {
			return 0, false
		}
		return g.pmuInfo.EventConfig(name)
	}
	return pmu.EngineConfig(class, instance, sample), true
}

// xeEngineEventName maps an engine class/sample pair to the xe PMU's
// event name, matching GetEngineInstances' parseXeGroupBusyName table.
// The xe "media" group covers both video decode and video-enhance
// workloads, so both classes resolve to the same event name. xe has no
// separate wait/sema events.
func xeEngineEventName(class pmu.EngineClass, sample pmu.SampleType) string {
	if sample != pmu.SampleBusy {
		return ""
	}
	switch class {
	case pmu.EngineRender:
		return "render-group-busy"
	case pmu.EngineCopy:
		return "copy-group-busy"
	case pmu.EngineVideo, pmu.EngineVideoEnhance:
		return "media-group-busy"
	case pmu.EngineCompute:
		return "compute-group-busy"
	default:
		return ""
	}
}

func engineEventName(class pmu.EngineClass, sample string) string {
	return fmt.Sprintf("engine-%d-%s", class, sample)
}

func (g *IntelGpu) openFrequencyEvents() {
	actualDesc, ok := g.pmuInfo.EventDesc("actual-frequency")
	if !ok {
		return
	}
	group, err := perfevent.NewGroup(g.pmuInfo.TypeID, actualDesc.Config, "actual-frequency")
	if err != nil {
		return
	}
	g.freqGroup = group
	g.freqActual = group.Leader()
	g.freqActualScale = actualDesc.Scale

	if reqDesc, ok := g.pmuInfo.EventDesc("requested-frequency"); ok {
		if req, err := group.AddMember(reqDesc.Config, "requested-frequency"); err == nil {
			g.freqRequested = req
			g.freqRequestedScale = reqDesc.Scale
		}
	}
	_ = group.EnableAll()
}

func (g *IntelGpu) openRC6Event() {
	config, ok := g.pmuInfo.EventConfig("rc6-residency")
	if !ok {
		return
	}
	ev, err := perfevent.Open(g.pmuInfo.TypeID, config, -1, "rc6-residency")
	if err != nil {
		return
	}
	_ = ev.Enable()
	g.rc6Event = ev
}

// ReadStats samples every open counter and returns one fully assembled
// snapshot. The very first call reports a zero sample duration and zero
// rates, establishing the baseline every counter's delta is measured
// against from then on. Any later call made less than a millisecond
// after the previous one does not touch a single counter — doing so
// would consume part of the delta the next, properly-spaced read needs
// — and instead repeats the last computed snapshot verbatim but for its
// timestamp.
func (g *IntelGpu) ReadStats() (GpuStats, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return GpuStats{}, fmt.Errorf("igpustats: adapter is closed")
	}

	now := time.Now()
	elapsed, ok := g.window.Advance(now)
	if !ok && g.hasBaseline {
		stats := g.lastStats
		stats.Timestamp = now
		return stats, nil
	}
	g.hasBaseline = true

	var elapsedNs uint64
	if ok {
		elapsedNs = uint64(elapsed.Nanoseconds())
	}

	stats := GpuStats{Timestamp: now, SampleDurationNs: elapsedNs}

	for class, ec := range g.engines {
		util, err := ec.readUtilization(elapsedNs)
		if err != nil {
			// A transient counter-group read failure must not abort the
			// whole sample; the engine's field simply stays at its zero
			// value for this round.
			continue
		}
		if class == pmu.EngineCompute {
			stats.Engines.Compute = &util
			continue
		}
		assignEngine(&stats.Engines, class, util)
	}

	stats.Frequency = g.readFrequency(elapsedNs)

	if g.rc6Event != nil {
		if residency, ok := g.readRC6(elapsedNs); ok {
			stats.RC6 = &Rc6Stats{ResidencyPercent: residency}
		}
	}

	if g.hwmonReader.IsAvailable() {
		if c, err := g.hwmonReader.TemperatureCelsius(); err == nil {
			temp := &TemperatureStats{GPUCelsius: c}
			if rpm, hasFan := g.hwmonReader.FanRPM(); hasFan {
				temp.FanRPM = &rpm
			}
			stats.Temperature = temp
		}
	}

	if g.raplReader.HasGPUPower() || g.raplReader.HasPackagePower() {
		power := &PowerStats{}
		if w, ok := g.raplReader.ReadGPUWatts(elapsedNs); ok {
			power.GPUWatts = w
		}
		if w, ok := g.raplReader.ReadPackageWatts(elapsedNs); ok {
			power.PackageWatts = &w
		}
		stats.Power = power
	}

	if g.throttleReader.IsAvailable() {
		if info, err := g.throttleReader.Read(); err == nil {
			stats.Throttle = &ThrottleInfo{
				IsThrottled: info.AnyThrottling(),
				Status:      info.Status,
				PowerLimit:  info.PL1,
				Thermal:     info.Thermal,
				Prochot:     info.Prochot,
				RATL:        info.RATL,
				VRThermal:   info.VRThermal,
				VRTDC:       info.VRTDC,
			}
		}
	}

	g.lastStats = stats
	return stats, nil
}

func assignEngine(e *EngineStats, class pmu.EngineClass, util EngineUtilization) {
	switch class {
	case pmu.EngineRender:
		e.Render = util
	case pmu.EngineCopy:
		e.Blitter = util
	case pmu.EngineVideo:
		e.Video = util
	case pmu.EngineVideoEnhance:
		e.VideoEnhance = util
	}
}

func (g *IntelGpu) readFrequency(elapsedNs uint64) FrequencyStats {
	if g.freqGroup == nil {
		return FrequencyStats{}
	}
	values, err := g.freqGroup.ReadAll()
	if err != nil {
		return FrequencyStats{}
	}

	var f FrequencyStats
	if raw, ok := values[g.freqActual]; ok {
		f.ActualMHz = rate.MHz(g.freqActualCounter.Sample(raw), elapsedNs, g.freqActualScale)
	}
	if g.freqRequested != nil {
		if raw, ok := values[g.freqRequested]; ok {
			f.RequestedMHz = rate.MHz(g.freqRequestedCounter.Sample(raw), elapsedNs, g.freqRequestedScale)
		}
	}
	return f
}

func (g *IntelGpu) readRC6(elapsedNs uint64) (float64, bool) {
	raw, err := g.rc6Event.Read()
	if err != nil {
		return 0, false
	}
	delta := g.rc6Counter.Sample(raw)
	return rate.Percent(delta, elapsedNs), true
}

// GpuInfo returns the static sysfs-derived facts about this adapter.
func (g *IntelGpu) GpuInfo() GpuInfo { return g.info }

// Driver reports which kernel driver is bound to this adapter.
func (g *IntelGpu) Driver() GpuDriver { return g.info.Driver }

// HasComputeEngine reports whether this adapter exposes a dedicated
// compute engine (discrete Arc cards only).
func (g *IntelGpu) HasComputeEngine() bool { return g.hasCompute }

// HasTemperature reports whether a hwmon temperature sensor was found.
func (g *IntelGpu) HasTemperature() bool { return g.hwmonReader.IsAvailable() }

// HasFan reports whether this adapter exposes a fan speed sensor.
func (g *IntelGpu) HasFan() bool {
	_, ok := g.hwmonReader.FanRPM()
	return ok
}

// HasThrottle reports whether throttle-reason data is available.
func (g *IntelGpu) HasThrottle() bool { return g.throttleReader.IsAvailable() }

// HasPower reports whether any power source — hwmon or RAPL — was found.
func (g *IntelGpu) HasPower() bool {
	return g.raplReader.HasGPUPower() || g.raplReader.HasPackagePower()
}

// StartSampling begins periodic background sampling of this adapter,
// delivering every result to sink until the returned handle is
// stopped. It is a thin convenience wrapper over the package-level
// StartSampling.
func (g *IntelGpu) StartSampling(interval time.Duration, sink func(GpuStats, error)) *SamplingHandle {
	return StartSampling(g, interval, sink)
}

// closeResources closes every counter group/event this adapter has
// opened so far. It is called both by Close and by openAdapter's
// failure path, where a later engine class's open failing partway
// through must not leak the classes that already succeeded.
func (g *IntelGpu) closeResources() error {
	var firstErr error
	recordErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for _, ec := range g.engines {
		recordErr(ec.Close())
	}
	if g.freqGroup != nil {
		recordErr(g.freqGroup.Close())
	}
	if g.rc6Event != nil {
		recordErr(g.rc6Event.Close())
	}
	return firstErr
}

// Close releases every open perf event file descriptor. Close is
// idempotent and safe to call more than once.
func (g *IntelGpu) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil
	}
	g.closed = true

	err := g.closeResources()
	runtime.SetFinalizer(g, nil)
	return err
}

// Name implements service.Service, allowing an *IntelGpu to be added to
// a service list purely so its Close runs on shutdown.
func (g *IntelGpu) Name() string { return "igpu:" + g.info.ID }

// Init implements service.Initializer. The adapter is already fully
// open by the time Detect/Open returns, so Init is a no-op.
func (g *IntelGpu) Init() error { return nil }

// Run implements service.Runner by blocking until ctx is cancelled.
// The adapter does no work of its own in the background — ReadStats is
// called on demand by exporters — but joining the run group as a
// Runner ensures Close runs when the group shuts down.
func (g *IntelGpu) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// Shutdown implements service.Shutdowner by closing the adapter.
func (g *IntelGpu) Shutdown() error { return g.Close() }
