package location

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportedSourceKeepsLatestReport(t *testing.T) {
	src := NewReportedSource()
	src.Report(Position{Coordinates: Coordinates{Latitude: 1, Longitude: 1}})
	src.Report(Position{Coordinates: Coordinates{Latitude: 2, Longitude: 2}})

	pos, err := src.CurrentPosition(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2.0, pos.Latitude)

	src.ReportError(ErrPermissionDenied)
	_, err = src.CurrentPosition(context.Background())
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestReportedSourceHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewReportedSource().CurrentPosition(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAcquire(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	tests := []struct {
		name    string
		report  func(s *ReportedSource)
		want    Coordinates
		wantErr error
	}{
		{
			name: "fresh fix",
			report: func(s *ReportedSource) {
				s.Report(Position{Coordinates: Coordinates{Latitude: 40, Longitude: -111}, Timestamp: now.Add(-time.Minute)})
			},
			want: Coordinates{Latitude: 40, Longitude: -111},
		},
		{
			name: "fix without timestamp",
			report: func(s *ReportedSource) {
				s.Report(Position{Coordinates: Coordinates{Latitude: 40, Longitude: -111}})
			},
			want: Coordinates{Latitude: 40, Longitude: -111},
		},
		{
			name: "stale fix",
			report: func(s *ReportedSource) {
				s.Report(Position{Coordinates: Coordinates{Latitude: 40, Longitude: -111}, Timestamp: now.Add(-6 * time.Minute)})
			},
			wantErr: ErrPositionUnavailable,
		},
		{
			name: "out of range",
			report: func(s *ReportedSource) {
				s.Report(Position{Coordinates: Coordinates{Latitude: 91, Longitude: 0}})
			},
			wantErr: ErrPositionUnavailable,
		},
		{
			name: "NaN",
			report: func(s *ReportedSource) {
				s.Report(Position{Coordinates: Coordinates{Latitude: math.NaN(), Longitude: 0}})
			},
			wantErr: ErrPositionUnavailable,
		},
		{
			name:    "denied",
			report:  func(s *ReportedSource) { s.ReportError(PositionErrorFromCode(1)) },
			wantErr: ErrPermissionDenied,
		},
		{
			name:    "browser timeout",
			report:  func(s *ReportedSource) { s.ReportError(PositionErrorFromCode(3)) },
			wantErr: ErrTimeout,
		},
		{
			name:    "unknown failure",
			report:  func(s *ReportedSource) { s.ReportError(errors.New("boom")) },
			wantErr: ErrPositionUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewReportedSource()
			tt.report(src)
			a := NewAcquirer(src, nil, WithClock(clock))

			got, err := a.Acquire(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAcquireTimesOut(t *testing.T) {
	a := NewAcquirer(NewReportedSource(), nil, WithTimeout(20*time.Millisecond))
	start := time.Now()
	_, err := a.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAcquireCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := NewAcquirer(NewReportedSource(), nil)
	_, err := a.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestAcquirerOptions(t *testing.T) {
	a := NewAcquirer(NewReportedSource(), nil)
	opts := a.Options()
	assert.True(t, opts.EnableHighAccuracy)
	assert.Equal(t, int64(10000), opts.TimeoutMs)
	assert.Equal(t, int64(300000), opts.MaximumAgeMs)
}

func TestAcquirerReverseGeocode(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		place   Place
		err     error
		want    string
		wantErr bool
	}{
		{name: "valid zip", place: Place{ZipCode: "84049"}, want: "84049"},
		{name: "zip plus four", place: Place{ZipCode: "84049-1234"}, want: "84049-1234"},
		{name: "no zip", place: Place{City: "Ocean"}, want: ""},
		{name: "foreign postcode", place: Place{ZipCode: "SW1A 1AA"}, want: ""},
		{name: "service error", err: ErrServiceUnavailable, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			geo := &mockReverseGeocoder{ReverseGeocodeFunc: func(ctx context.Context, lat, lon float64) (Place, error) {
				return tt.place, tt.err
			}}
			a := NewAcquirer(NewReportedSource(), geo)
			zip, err := a.ReverseGeocode(ctx, 40, -111)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, zip)
		})
	}
}

func TestAcquirerWithoutGeocoder(t *testing.T) {
	a := NewAcquirer(NewReportedSource(), nil)
	_, err := a.ReversePlace(context.Background(), 40, -111)
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}
