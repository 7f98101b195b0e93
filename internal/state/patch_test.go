package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opsboard/opsboard/internal/kv"
)

type fakeSource struct {
	body  []byte
	err   error
	calls int
	// block, when set, holds the fetch until it is closed.
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeSource) FetchVulnerabilities(ctx context.Context) ([]byte, error) {
	f.calls++
	if f.entered != nil {
		close(f.entered)
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.body, f.err
}

var scanClock = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestPatchStore(storage kv.Storage, src VulnerabilitySource, notify func(Notification)) *PatchStore {
	return NewPatchStore(storage, PatchOptions{
		Source: src,
		Notify: notify,
		Now:    func() time.Time { return scanClock },
		Logger: testLogger(),
	})
}

func TestPerformScanSingleObject(t *testing.T) {
	t.Parallel()

	src := &fakeSource{body: []byte(`{"response":{"vulnerabilities":{"vulnerability":{"severity":"Critical Risk","cve_id":"CVE-2024-1","vulnerability_name":"X"}}}}`)}
	var notes []Notification
	ps := newTestPatchStore(nil, src, func(n Notification) { notes = append(notes, n) })

	if err := ps.PerformScan(context.Background()); err != nil {
		t.Fatalf("PerformScan: %v", err)
	}

	st := ps.State()
	if len(st.Vulnerabilities) != 1 {
		t.Fatalf("len(vulnerabilities) = %d, want 1", len(st.Vulnerabilities))
	}
	v := st.Vulnerabilities[0]
	if v.Severity != SeverityCritical || v.ExternalRef != "CVE-2024-1" || v.Status != VulnOpen || v.ID == "" || v.Title != "X" {
		t.Fatalf("vulnerability = %+v", v)
	}
	if !v.DetectedAt.Equal(scanClock) {
		t.Fatalf("DetectedAt = %v, want completion time %v", v.DetectedAt, scanClock)
	}
	if st.ScanStatus != ScanSucceeded || st.Loading || !st.LastScan.Equal(scanClock) {
		t.Fatalf("state status=%s loading=%v lastScan=%v", st.ScanStatus, st.Loading, st.LastScan)
	}
	if len(notes) != 1 || notes[0].Kind != NotificationSuccess {
		t.Fatalf("notifications = %+v, want one success", notes)
	}
}

func TestPerformScanEmptyPayloadSucceeds(t *testing.T) {
	t.Parallel()

	for _, body := range []string{``, `{}`, `{"response":{}}`, `{"response":{"vulnerabilities":{}}}`, `{"response":{"vulnerabilities":{"vulnerability":null}}}`} {
		ps := newTestPatchStore(nil, &fakeSource{body: []byte(body)}, nil)
		ps.SetVulnerabilities([]Vulnerability{{ID: "stale"}})
		if err := ps.PerformScan(context.Background()); err != nil {
			t.Fatalf("PerformScan(%q): %v", body, err)
		}
		st := ps.State()
		if len(st.Vulnerabilities) != 0 || st.ScanStatus != ScanSucceeded {
			t.Fatalf("body %q: vulnerabilities=%d status=%s", body, len(st.Vulnerabilities), st.ScanStatus)
		}
	}
}

func TestPerformScanFailureKeepsResults(t *testing.T) {
	t.Parallel()

	prev := []Vulnerability{{ID: "vuln-1", Title: "old", Severity: SeverityHigh, Status: VulnOpen}}
	lastScan := scanClock.Add(-time.Hour)
	wantErr := errors.New("connection refused")

	for _, src := range []*fakeSource{{err: wantErr}, {body: []byte(`<html>`)}} {
		ps := newTestPatchStore(nil, src, nil)
		ps.SetVulnerabilities(prev)
		ps.s.Update(func(st PatchState) PatchState {
			st.LastScan = lastScan
			return st
		})

		err := ps.PerformScan(context.Background())
		if err == nil {
			t.Fatal("PerformScan error = nil, want failure")
		}
		if src.err != nil && !errors.Is(err, wantErr) {
			t.Fatalf("error = %v, want wrapped %v", err, wantErr)
		}

		st := ps.State()
		if st.ScanStatus != ScanFailed || st.Loading || st.Error == "" {
			t.Fatalf("state status=%s loading=%v error=%q", st.ScanStatus, st.Loading, st.Error)
		}
		if len(st.Vulnerabilities) != 1 || st.Vulnerabilities[0].Title != "old" || !st.LastScan.Equal(lastScan) {
			t.Fatalf("previous results not retained: %+v lastScan=%v", st.Vulnerabilities, st.LastScan)
		}
	}
}

func TestPerformScanRejectsWhileInFlight(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		body:    []byte(`{"response":{"vulnerabilities":{"vulnerability":[]}}}`),
		block:   make(chan struct{}),
		entered: make(chan struct{}),
	}
	ps := newTestPatchStore(nil, src, nil)

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstErr = ps.PerformScan(context.Background())
	}()
	<-src.entered

	if st := ps.State(); st.ScanStatus != ScanScanning || !st.Loading {
		t.Fatalf("during scan status=%s loading=%v", st.ScanStatus, st.Loading)
	}
	if err := ps.PerformScan(context.Background()); !errors.Is(err, ErrScanInFlight) {
		t.Fatalf("second PerformScan error = %v, want ErrScanInFlight", err)
	}

	close(src.block)
	wg.Wait()
	if firstErr != nil {
		t.Fatalf("first PerformScan: %v", firstErr)
	}
	if src.calls != 1 {
		t.Fatalf("source calls = %d, want 1", src.calls)
	}
	if ps.Scanning() {
		t.Fatal("Scanning() = true after completion")
	}
}

func TestPerformScanTimeout(t *testing.T) {
	t.Parallel()

	src := &fakeSource{block: make(chan struct{})}
	ps := NewPatchStore(nil, PatchOptions{Source: src, Timeout: 20 * time.Millisecond, Logger: testLogger()})
	err := ps.PerformScan(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("PerformScan error = %v, want deadline exceeded", err)
	}
	if ps.State().ScanStatus != ScanFailed {
		t.Fatalf("status = %s, want failed", ps.State().ScanStatus)
	}
}

func TestPerformScanWithoutSource(t *testing.T) {
	t.Parallel()

	ps := NewPatchStore(nil, PatchOptions{Logger: testLogger()})
	if err := ps.PerformScan(context.Background()); !errors.Is(err, ErrNoScanner) {
		t.Fatalf("PerformScan error = %v, want ErrNoScanner", err)
	}
	if ps.State().ScanStatus != ScanIdle {
		t.Fatalf("status = %s, want idle", ps.State().ScanStatus)
	}
}

func TestPatchStatusAndCounts(t *testing.T) {
	t.Parallel()

	storage := kv.NewMemory()
	ps := newTestPatchStore(storage, nil, nil)
	ps.SetVulnerabilities([]Vulnerability{
		{ID: "v1", Severity: SeverityCritical, Status: VulnOpen},
		{ID: "v2", Severity: SeverityHigh, Status: VulnOpen},
		{ID: "v3", Severity: SeverityLow, Status: VulnOpen},
	})
	ps.SelectVulnerability("v1")
	ps.SetStatus("v1", VulnPatched)

	if sel := ps.State().Selected; sel == nil || sel.Status != VulnPatched {
		t.Fatalf("selected = %+v, want patched", sel)
	}
	c := ps.Counts()
	if c.Critical != 0 || c.High != 1 || c.Low != 1 || c.Patched != 1 || c.Open() != 2 {
		t.Fatalf("Counts() = %+v", c)
	}
	if got := c.HygieneScore(); got != 94 {
		t.Fatalf("HygieneScore() = %d, want 94", got)
	}

	again := newTestPatchStore(storage, nil, nil)
	if got := len(again.State().Vulnerabilities); got != 3 {
		t.Fatalf("rehydrated vulnerabilities = %d, want 3", got)
	}
	if again.State().ScanStatus != ScanIdle {
		t.Fatalf("rehydrated status = %s, want idle", again.State().ScanStatus)
	}
}

func TestHygieneScoreFloor(t *testing.T) {
	t.Parallel()

	if got := (SeverityCounts{Critical: 11}).HygieneScore(); got != 0 {
		t.Fatalf("HygieneScore() = %d, want 0", got)
	}
	if got := (SeverityCounts{}).HygieneScore(); got != 100 {
		t.Fatalf("HygieneScore() = %d, want 100", got)
	}
}
