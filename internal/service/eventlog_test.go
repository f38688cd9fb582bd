package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"healthbox_bridge/internal/models"
)

func seededEventRepo() *recordingEventRepo {
	base := time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC)
	return &recordingEventRepo{events: []models.Event{
		{EventID: "a", OccurredAt: base, Type: EventBoostStart},
		{EventID: "b", OccurredAt: base.Add(time.Hour), Type: EventPollFailed},
		{EventID: "c", OccurredAt: base.Add(2 * time.Hour), Type: EventPollRecovered},
		{EventID: "d", OccurredAt: base.Add(3 * time.Hour), Type: EventBoostStop},
	}}
}

func eventIDs(events []models.Event) []string {
	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.EventID)
	}
	return ids
}

func TestNormalizeRange(t *testing.T) {
	t.Parallel()

	plus3 := time.FixedZone("UTC+3", 3*3600)
	cases := []struct {
		name     string
		from, to time.Time
		wantFrom time.Time
		wantTo   time.Time
		wantErr  error
	}{
		{name: "both open"},
		{
			name:     "converted to utc",
			from:     time.Date(2025, time.August, 1, 12, 0, 0, 0, plus3),
			wantFrom: time.Date(2025, time.August, 1, 9, 0, 0, 0, time.UTC),
		},
		{
			name:     "equal bounds allowed",
			from:     time.Date(2025, time.August, 1, 9, 0, 0, 0, time.UTC),
			to:       time.Date(2025, time.August, 1, 12, 0, 0, 0, plus3),
			wantFrom: time.Date(2025, time.August, 1, 9, 0, 0, 0, time.UTC),
			wantTo:   time.Date(2025, time.August, 1, 9, 0, 0, 0, time.UTC),
		},
		{
			name:    "reversed",
			from:    time.Date(2025, time.August, 2, 0, 0, 0, 0, time.UTC),
			to:      time.Date(2025, time.August, 1, 0, 0, 0, 0, time.UTC),
			wantErr: errInvalidTimeRange,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			from, to, err := normalizeRange(tc.from, tc.to)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if err != nil {
				return
			}
			if !from.Equal(tc.wantFrom) || !to.Equal(tc.wantTo) {
				t.Fatalf("got %v..%v, want %v..%v", from, to, tc.wantFrom, tc.wantTo)
			}
			if !from.IsZero() && from.Location() != time.UTC {
				t.Fatalf("from not in UTC: %v", from.Location())
			}
		})
	}
}

func TestNormalizeEventType(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{
		"":                   "",
		" boost_start ":      EventBoostStart,
		"Poll_Recovered":     EventPollRecovered,
		"API_KEY_ACTIVATED ": EventAPIKeyActivated,
	} {
		if got := normalizeEventType(in); got != want {
			t.Fatalf("normalizeEventType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEventLogService_List(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC)
	plus1 := time.FixedZone("CET", 3600)

	cases := []struct {
		name   string
		filter LogFilter
		want   []string
	}{
		{name: "everything", want: []string{"a", "b", "c", "d"}},
		{name: "type only", filter: LogFilter{Type: " poll_failed"}, want: []string{"b"}},
		{
			name:   "inclusive bounds in another zone",
			filter: LogFilter{From: base.Add(time.Hour).In(plus1), To: base.Add(2 * time.Hour).In(plus1)},
			want:   []string{"b", "c"},
		},
		{
			name:   "range and type",
			filter: LogFilter{From: base.Add(30 * time.Minute), Type: EventBoostStop},
			want:   []string{"d"},
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			repo := seededEventRepo()
			got, err := NewEventLogService(repo).List(context.Background(), tc.filter)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			ids := eventIDs(got)
			if len(ids) != len(tc.want) {
				t.Fatalf("got %v, want %v", ids, tc.want)
			}
			for i := range ids {
				if ids[i] != tc.want[i] {
					t.Fatalf("got %v, want %v", ids, tc.want)
				}
			}
			if !repo.listArgs.from.IsZero() && repo.listArgs.from.Location() != time.UTC {
				t.Fatalf("repository got non-UTC bound %v", repo.listArgs.from)
			}
		})
	}
}

func TestEventLogService_List_ReversedRangeSkipsRepository(t *testing.T) {
	t.Parallel()

	repo := seededEventRepo()
	_, err := NewEventLogService(repo).List(context.Background(), LogFilter{
		From: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if repo.listCalls != 0 {
		t.Fatalf("repository queried %d times", repo.listCalls)
	}
}

func TestEventLogService_List_RepositoryError(t *testing.T) {
	t.Parallel()

	repo := &recordingEventRepo{listErr: errors.New("database is locked")}
	_, err := NewEventLogService(repo).List(context.Background(), LogFilter{Type: "auth_failed"})
	if !errors.Is(err, repo.listErr) {
		t.Fatalf("expected repository error, got %v", err)
	}
	if repo.listArgs.typ != EventAuthFailed {
		t.Fatalf("type passed as %q", repo.listArgs.typ)
	}
}
