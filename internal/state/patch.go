package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/opsboard/opsboard/internal/kv"
	"github.com/opsboard/opsboard/internal/metrics"
	"github.com/opsboard/opsboard/internal/store"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severities lists severities from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

type VulnStatus string

const (
	VulnOpen    VulnStatus = "open"
	VulnPatched VulnStatus = "patched"
)

type Vulnerability struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Severity    Severity   `json:"severity"`
	ExternalRef string     `json:"externalRef"`
	Status      VulnStatus `json:"status"`
	DetectedAt  time.Time  `json:"detectedAt"`
	Host        string     `json:"host,omitempty"`
}

type ScanStatus string

const (
	ScanIdle      ScanStatus = "idle"
	ScanScanning  ScanStatus = "scanning"
	ScanSucceeded ScanStatus = "succeeded"
	ScanFailed    ScanStatus = "failed"
)

const DefaultScanTimeout = 60 * time.Second

var (
	ErrScanInFlight = errors.New("vulnerability scan already in progress")
	ErrNoScanner    = errors.New("no vulnerability source configured")
)

// VulnerabilitySource fetches the raw vendor scan response.
type VulnerabilitySource interface {
	FetchVulnerabilities(ctx context.Context) ([]byte, error)
}

type PatchFilters struct {
	Search   string `json:"search"`
	Severity string `json:"severity"`
	Status   string `json:"status"`
	Host     string `json:"host"`
}

type PatchFiltersPatch struct {
	Search   *string `json:"search"`
	Severity *string `json:"severity"`
	Status   *string `json:"status"`
	Host     *string `json:"host"`
}

func (p PatchFiltersPatch) apply(f PatchFilters) PatchFilters {
	set(&f.Search, p.Search)
	set(&f.Severity, p.Severity)
	set(&f.Status, p.Status)
	set(&f.Host, p.Host)
	return f
}

func (f PatchFilters) matches(v Vulnerability) bool {
	return store.MatchesSearch(f.Search, v.Title, v.ExternalRef, v.Host) &&
		store.MatchesEqual(f.Severity, string(v.Severity)) &&
		store.MatchesEqual(f.Status, string(v.Status)) &&
		store.MatchesEqual(f.Host, v.Host)
}

type PatchState struct {
	Vulnerabilities []Vulnerability  `json:"vulnerabilities"`
	Selected        *Vulnerability   `json:"selected"`
	Filters         PatchFilters     `json:"filters"`
	Pagination      store.Pagination `json:"pagination"`
	ScanStatus      ScanStatus       `json:"scanStatus"`
	Loading         bool             `json:"loading"`
	Error           string           `json:"error,omitempty"`
	LastScan        time.Time        `json:"lastScan"`
}

func (st PatchState) Filtered() []Vulnerability {
	out := make([]Vulnerability, 0, len(st.Vulnerabilities))
	for _, v := range st.Vulnerabilities {
		if st.Filters.matches(v) {
			out = append(out, v)
		}
	}
	return out
}

func (st PatchState) Page() []Vulnerability {
	return store.PageOf(st.Filtered(), st.Pagination)
}

func (st PatchState) normalize() PatchState {
	st.Pagination = store.Paginate(st.Pagination, len(st.Filtered()))
	if st.Selected != nil {
		if v, ok := store.FindByID(st.Vulnerabilities, st.Selected.ID, vulnID); ok {
			st.Selected = &v
		} else {
			st.Selected = nil
		}
	}
	return st
}

func vulnID(v Vulnerability) string { return v.ID }

// SeverityCounts tallies open findings per severity plus patched findings.
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Patched  int `json:"patched"`
}

func (c SeverityCounts) Open() int { return c.Critical + c.High + c.Medium + c.Low }

// HygieneScore is 100 minus 10 per critical, 5 per high, 2 per medium and 1
// per low open finding, floored at 0.
func (c SeverityCounts) HygieneScore() int {
	score := 100 - (10*c.Critical + 5*c.High + 2*c.Medium + c.Low)
	if score < 0 {
		return 0
	}
	return score
}

func CountSeverities(vulns []Vulnerability) SeverityCounts {
	var c SeverityCounts
	for _, v := range vulns {
		if v.Status == VulnPatched {
			c.Patched++
			continue
		}
		switch v.Severity {
		case SeverityCritical:
			c.Critical++
		case SeverityHigh:
			c.High++
		case SeverityMedium:
			c.Medium++
		default:
			c.Low++
		}
	}
	return c
}

type patchPersisted struct {
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
	LastScan        time.Time       `json:"lastScan"`
}

// PatchOptions configures the scan side of a PatchStore.
type PatchOptions struct {
	Source  VulnerabilitySource
	Timeout time.Duration
	// Notify receives scan completion and failure notices.
	Notify func(Notification)
	Now    func() time.Time
	Logger *slog.Logger
}

// PatchStore owns the last scan result and runs at most one scan at a time.
type PatchStore struct {
	s        *store.Store[PatchState]
	source   VulnerabilitySource
	timeout  time.Duration
	notify   func(Notification)
	now      func() time.Time
	logger   *slog.Logger
	inFlight atomic.Bool
}

func NewPatchStore(storage kv.Storage, opts PatchOptions) *PatchStore {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ps := &PatchStore{
		s: store.New(PatchState{
			Vulnerabilities: []Vulnerability{},
			Pagination:      store.DefaultPagination(),
			ScanStatus:      ScanIdle,
		}),
		source:  opts.Source,
		timeout: opts.Timeout,
		notify:  opts.Notify,
		now:     opts.Now,
		logger:  logger,
	}
	if ps.timeout <= 0 {
		ps.timeout = DefaultScanTimeout
	}
	if ps.now == nil {
		ps.now = time.Now
	}
	attach(ps.s, storage, KeyPatch,
		func(st PatchState) patchPersisted {
			return patchPersisted{Vulnerabilities: st.Vulnerabilities, LastScan: st.LastScan}
		},
		func(cur PatchState, p patchPersisted) PatchState {
			cur.Vulnerabilities = store.Clone(p.Vulnerabilities)
			cur.LastScan = p.LastScan
			return cur.normalize()
		},
		logger,
	)
	recordOpenVulnerabilities(ps.s.Get().Vulnerabilities)
	return ps
}

func (ps *PatchStore) State() PatchState { return ps.s.Get() }

func (ps *PatchStore) Subscribe(fn store.Listener[PatchState]) func() { return ps.s.Subscribe(fn) }

func (ps *PatchStore) update(fn func(PatchState) PatchState) PatchState {
	return mutate(ps.s, "patch", func(st PatchState) PatchState { return fn(st).normalize() })
}

// Scanning reports whether a scan is in flight.
func (ps *PatchStore) Scanning() bool { return ps.inFlight.Load() }

// PerformScan fetches and normalizes a new result set. It returns
// ErrScanInFlight while another scan runs. On failure the previous results
// and last-scan time are kept, the state moves to failed and the error is
// returned.
func (ps *PatchStore) PerformScan(ctx context.Context) error {
	if ps.source == nil {
		return ErrNoScanner
	}
	if !ps.inFlight.CompareAndSwap(false, true) {
		metrics.ScanRunsTotal.WithLabelValues("rejected").Inc()
		return ErrScanInFlight
	}
	defer ps.inFlight.Store(false)

	ps.update(func(st PatchState) PatchState {
		st.ScanStatus = ScanScanning
		st.Loading = true
		st.Error = ""
		return st
	})

	started := time.Now()
	vulns, completedAt, err := ps.fetch(ctx)
	metrics.ScanDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		err = fmt.Errorf("vulnerability scan: %w", err)
		ps.update(func(st PatchState) PatchState {
			st.ScanStatus = ScanFailed
			st.Loading = false
			st.Error = err.Error()
			return st
		})
		metrics.ScanRunsTotal.WithLabelValues("failed").Inc()
		ps.logger.Warn("vulnerability scan failed", "err", err)
		ps.emit(Notification{Kind: NotificationError, Title: "Vulnerability scan failed", Message: err.Error()})
		return err
	}

	ps.update(func(st PatchState) PatchState {
		st.Vulnerabilities = vulns
		st.LastScan = completedAt
		st.ScanStatus = ScanSucceeded
		st.Loading = false
		st.Error = ""
		return st
	})
	metrics.ScanRunsTotal.WithLabelValues("succeeded").Inc()
	recordOpenVulnerabilities(vulns)

	counts := CountSeverities(vulns)
	ps.logger.Info("vulnerability scan completed", "findings", len(vulns), "critical", counts.Critical, "high", counts.High)
	ps.emit(Notification{
		Kind:    NotificationSuccess,
		Title:   "Vulnerability scan completed",
		Message: fmt.Sprintf("%d findings (%d critical, %d high)", len(vulns), counts.Critical, counts.High),
	})
	return nil
}

func (ps *PatchStore) fetch(ctx context.Context) ([]Vulnerability, time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, ps.timeout)
	defer cancel()

	body, err := ps.source.FetchVulnerabilities(ctx)
	if err != nil {
		return nil, time.Time{}, err
	}
	completedAt := ps.now()
	vulns, err := NormalizeScan(body, completedAt)
	if err != nil {
		return nil, time.Time{}, err
	}
	return vulns, completedAt, nil
}

func (ps *PatchStore) emit(n Notification) {
	if ps.notify != nil {
		ps.notify(n)
	}
}

func recordOpenVulnerabilities(vulns []Vulnerability) {
	c := CountSeverities(vulns)
	metrics.VulnerabilitiesOpen.WithLabelValues(string(SeverityCritical)).Set(float64(c.Critical))
	metrics.VulnerabilitiesOpen.WithLabelValues(string(SeverityHigh)).Set(float64(c.High))
	metrics.VulnerabilitiesOpen.WithLabelValues(string(SeverityMedium)).Set(float64(c.Medium))
	metrics.VulnerabilitiesOpen.WithLabelValues(string(SeverityLow)).Set(float64(c.Low))
}

func (ps *PatchStore) SetVulnerabilities(vulns []Vulnerability) {
	ps.update(func(st PatchState) PatchState {
		st.Vulnerabilities = store.Unique(vulns, vulnID)
		return st
	})
}

// SetStatus marks a finding open or patched.
func (ps *PatchStore) SetStatus(id string, status VulnStatus) {
	st := ps.update(func(st PatchState) PatchState {
		vulns, updated, ok := store.UpdateByID(st.Vulnerabilities, id, vulnID, func(v Vulnerability) Vulnerability {
			v.Status = status
			return v
		})
		if !ok {
			return st
		}
		st.Vulnerabilities = vulns
		if st.Selected != nil && st.Selected.ID == id {
			st.Selected = &updated
		}
		return st
	})
	recordOpenVulnerabilities(st.Vulnerabilities)
}

func (ps *PatchStore) SelectVulnerability(id string) {
	ps.update(func(st PatchState) PatchState {
		st.Selected = nil
		if v, ok := store.FindByID(st.Vulnerabilities, id, vulnID); ok {
			st.Selected = &v
		}
		return st
	})
}

func (ps *PatchStore) SetFilters(patch PatchFiltersPatch) {
	ps.update(func(st PatchState) PatchState {
		st.Filters = patch.apply(st.Filters)
		st.Pagination.Page = 1
		return st
	})
}

func (ps *PatchStore) ClearFilters() {
	ps.update(func(st PatchState) PatchState {
		st.Filters = PatchFilters{}
		st.Pagination = store.DefaultPagination()
		return st
	})
}

func (ps *PatchStore) SetPage(page int) {
	ps.update(func(st PatchState) PatchState {
		st.Pagination.Page = page
		return st
	})
}

func (ps *PatchStore) SetPageSize(size int) {
	ps.update(func(st PatchState) PatchState {
		st.Pagination.PageSize = size
		st.Pagination.Page = 1
		return st
	})
}

func (ps *PatchStore) Counts() SeverityCounts {
	return CountSeverities(ps.s.Get().Vulnerabilities)
}
