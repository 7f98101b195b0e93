package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type stubRunner struct {
	err error
}

func (r stubRunner) RunOnce(context.Context) error {
	return r.err
}

func TestCompositeRunner_AggregatesStatuses(t *testing.T) {
	t.Parallel()

	hard := errors.New("hard-failure")

	tests := []struct {
		name    string
		runners []Runner
		want    error
	}{
		{
			name:    "hard error wins",
			runners: []Runner{stubRunner{err: nil}, stubRunner{err: hard}, stubRunner{err: ErrSyncAlreadyRunning}},
			want:    hard,
		},
		{
			name:    "success wins over busy",
			runners: []Runner{stubRunner{err: nil}, stubRunner{err: ErrSyncAlreadyRunning}},
			want:    nil,
		},
		{
			name:    "busy when nothing ran",
			runners: []Runner{stubRunner{err: ErrNoEnabledConnectors}, stubRunner{err: ErrSyncAlreadyRunning}},
			want:    ErrSyncAlreadyRunning,
		},
		{
			name:    "all disabled returns disabled",
			runners: []Runner{stubRunner{err: ErrNoEnabledConnectors}, stubRunner{err: fmt.Errorf("scan: %w", ErrNoEnabledConnectors)}},
			want:    ErrNoEnabledConnectors,
		},
		{
			name:    "joined disabled and hard error is hard",
			runners: []Runner{stubRunner{err: nil}, stubRunner{err: errors.Join(ErrNoEnabledConnectors, hard)}},
			want:    hard,
		},
		{
			name:    "no runners",
			runners: []Runner{nil},
			want:    ErrNoEnabledConnectors,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := NewCompositeRunner(tt.runners...).RunOnce(context.Background())
			if tt.want == nil {
				if err != nil {
					t.Fatalf("RunOnce() err = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("RunOnce() err = %v, want %v", err, tt.want)
			}
		})
	}
}
