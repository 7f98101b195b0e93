package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	gosync "sync"
	"testing"
	"time"

	"github.com/opsboard/opsboard/internal/state"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeUsers struct {
	users []state.DirectoryUser
	err   error
}

func (f fakeUsers) FetchUsers(context.Context) ([]state.DirectoryUser, error) {
	return f.users, f.err
}

type fakeSites struct {
	sites []state.UnifiSite
	err   error
}

func (f fakeSites) FetchSites(_ context.Context, at time.Time) ([]state.UnifiSite, error) {
	out := make([]state.UnifiSite, len(f.sites))
	for i, s := range f.sites {
		s.LastSeen = at
		out[i] = s
	}
	return out, f.err
}

type blockingConnector struct {
	entered chan struct{}
	release chan struct{}
}

func (blockingConnector) Name() string { return "blocking" }

func (b blockingConnector) Refresh(ctx context.Context) error {
	close(b.entered)
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var syncClock = time.Date(2026, 4, 1, 6, 0, 0, 0, time.UTC)

func clock() time.Time { return syncClock }

func TestRefresherReplacesSourcesAndNotifiesFailures(t *testing.T) {
	t.Parallel()

	app := state.NewApp(state.Options{Logger: discardLogger()})
	app.Users.AddUser(state.DirectoryUser{ID: "manual-1", Source: state.SourceManual})
	app.Users.AddUser(state.DirectoryUser{ID: "m365:old", Source: state.SourceM365})

	var mu gosync.Mutex
	var notes []string
	r := NewRefresher([]Connector{
		UserDirectory{Source: state.SourceM365, Fetcher: fakeUsers{users: []state.DirectoryUser{{ID: "m365:new"}}}, Store: app.Users, Now: clock},
		UserDirectory{Source: state.SourceGoogleWorkspace, Fetcher: fakeUsers{err: errors.New("403 forbidden")}, Store: app.Users, Now: clock},
		NetworkSites{Fetcher: fakeSites{sites: []state.UnifiSite{{ID: "s1", Status: state.SiteOnline}}}, Store: app.Network, Now: clock},
	}, RefresherOptions{
		Logger: discardLogger(),
		Notify: func(title, message string) {
			mu.Lock()
			notes = append(notes, title)
			mu.Unlock()
		},
	})

	err := r.RunOnce(context.Background())
	if err == nil {
		t.Fatal("RunOnce() err = nil, want google workspace failure")
	}

	users := app.Users.State().Users
	ids := map[string]bool{}
	for _, u := range users {
		ids[u.ID] = true
	}
	if !ids["manual-1"] || !ids["m365:new"] || ids["m365:old"] || len(users) != 2 {
		t.Fatalf("users = %+v, want manual-1 and m365:new", users)
	}
	if got := app.Network.State().Sites; len(got) != 1 || !got[0].LastSeen.Equal(syncClock) {
		t.Fatalf("sites = %+v", got)
	}
	if !app.Network.State().LastRefresh.Equal(syncClock) {
		t.Fatalf("LastRefresh = %v, want %v", app.Network.State().LastRefresh, syncClock)
	}
	if len(notes) != 1 || notes[0] != "google_workspace sync failed" {
		t.Fatalf("notifications = %v", notes)
	}
}

func TestRefresherRejectsConcurrentPass(t *testing.T) {
	t.Parallel()

	b := blockingConnector{entered: make(chan struct{}), release: make(chan struct{})}
	r := NewRefresher([]Connector{b}, RefresherOptions{Logger: discardLogger()})

	done := make(chan error, 1)
	go func() { done <- r.RunOnce(context.Background()) }()
	<-b.entered

	if err := r.RunOnce(context.Background()); !errors.Is(err, ErrSyncAlreadyRunning) {
		t.Fatalf("second RunOnce() err = %v, want ErrSyncAlreadyRunning", err)
	}
	close(b.release)
	if err := <-done; err != nil {
		t.Fatalf("first RunOnce() err = %v", err)
	}
}

func TestRefresherTimeout(t *testing.T) {
	t.Parallel()

	b := blockingConnector{entered: make(chan struct{}), release: make(chan struct{})}
	r := NewRefresher([]Connector{b}, RefresherOptions{Logger: discardLogger(), Timeout: 10 * time.Millisecond})
	if err := r.RunOnce(context.Background()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("RunOnce() err = %v, want deadline exceeded", err)
	}
}

func TestRefresherWithoutConnectors(t *testing.T) {
	t.Parallel()

	r := NewRefresher([]Connector{nil}, RefresherOptions{})
	if err := r.RunOnce(context.Background()); !errors.Is(err, ErrNoEnabledConnectors) {
		t.Fatalf("RunOnce() err = %v, want ErrNoEnabledConnectors", err)
	}
}

func TestUserDirectoryFailureSetsStoreError(t *testing.T) {
	t.Parallel()

	app := state.NewApp(state.Options{Logger: discardLogger()})
	d := UserDirectory{Source: state.SourceM365, Fetcher: fakeUsers{err: errors.New("boom")}, Store: app.Users}
	if err := d.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh() err = nil")
	}
	st := app.Users.State()
	if st.Error != "boom" || st.Loading {
		t.Fatalf("users error=%q loading=%v", st.Error, st.Loading)
	}
}

type scanBody []byte

func (b scanBody) FetchVulnerabilities(context.Context) ([]byte, error) { return b, nil }

func TestScanRunnerMapsSentinels(t *testing.T) {
	t.Parallel()

	noScanner := state.NewApp(state.Options{Logger: discardLogger()})
	if err := ScanRunner(noScanner.Patch).RunOnce(context.Background()); !errors.Is(err, ErrNoEnabledConnectors) {
		t.Fatalf("RunOnce() err = %v, want ErrNoEnabledConnectors", err)
	}

	app := state.NewApp(state.Options{Logger: discardLogger(), Scanner: scanBody(`{}`)})
	if err := NewCompositeRunner(ScanRunner(app.Patch), ScanRunner(noScanner.Patch)).RunOnce(context.Background()); err != nil {
		t.Fatalf("composite RunOnce() err = %v", err)
	}
	if app.Patch.State().ScanStatus != state.ScanSucceeded {
		t.Fatalf("scan status = %s, want succeeded", app.Patch.State().ScanStatus)
	}
}

func TestSchedulerRunsImmediatelyAndStops(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	runs := make(chan struct{}, 10)
	s := &Scheduler{
		Name:     "test",
		Interval: time.Hour,
		Logger:   discardLogger(),
		Runner: RunnerFunc(func(context.Context) error {
			runs <- struct{}{}
			return errors.New("ignored")
		}),
	}
	stopped := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(stopped)
	}()

	select {
	case <-runs:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not run at startup")
	}
	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
