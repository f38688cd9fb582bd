package service

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"healthbox_bridge/internal/config"
	"healthbox_bridge/internal/healthbox"
	"healthbox_bridge/internal/logger"
	"healthbox_bridge/internal/models"
)

func newTestCoordinator(dev *fakeDevice, events *recordingEventRepo, cfg CoordinatorConfig, listeners ...SnapshotListener) *Coordinator {
	c := NewCoordinator(dev, cfg, events, logger.Nop(), listeners...)
	var mu sync.Mutex
	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	return c
}

func TestCoordinator_RefreshPublishesSnapshotWithBoost(t *testing.T) {
	dev := newFakeDevice()
	c := newTestCoordinator(dev, &recordingEventRepo{}, CoordinatorConfig{})

	if _, ok := c.Snapshot(); ok {
		t.Fatalf("no snapshot expected before the first poll")
	}

	snap, err := c.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := snap.RoomIDs(); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("room ids %v", got)
	}
	bath, _ := snap.Room(2)
	if bath.Boost == nil || bath.Boost.Level != 150 || !bath.Boost.Enabled || bath.Boost.Remaining != 300 {
		t.Fatalf("unexpected boost %+v", bath.Boost)
	}

	stored, ok := c.Snapshot()
	if !ok || !stored.FetchedAt.Equal(snap.FetchedAt) {
		t.Fatalf("published snapshot mismatch")
	}
	st := c.Status()
	if st.State != StateHealthy || st.PollTotal != 1 || st.FailureTotal != 0 || !st.LastSuccess.Equal(snap.FetchedAt) {
		t.Fatalf("unexpected status %+v", st)
	}
	if dev.boostCalls != 2 {
		t.Fatalf("expected one boost fetch per room, got %d", dev.boostCalls)
	}
}

func TestCoordinator_BoostFailureFailsWholeCycle(t *testing.T) {
	dev := newFakeDevice()
	events := &recordingEventRepo{}
	c := newTestCoordinator(dev, events, CoordinatorConfig{BoostPolicy: config.BoostPolicyFail})

	first, err := c.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	dev.set(func(f *fakeDevice) { f.boostErr[2] = deviceErr(healthbox.KindCommunication) })
	for i := 0; i < 2; i++ {
		if _, err := c.Refresh(context.Background()); !errors.Is(err, healthbox.ErrCommunication) {
			t.Fatalf("expected communication error, got %v", err)
		}
	}

	kept, _ := c.Snapshot()
	if !kept.FetchedAt.Equal(first.FetchedAt) {
		t.Fatalf("previous snapshot must be kept on failure")
	}
	st := c.Status()
	if st.State != StateFailing || st.ConsecutiveFailures != 2 || st.FailureTotal != 2 || st.PollTotal != 3 || st.LastError == "" {
		t.Fatalf("unexpected status %+v", st)
	}
	if got := events.types(); !reflect.DeepEqual(got, []string{EventPollFailed}) {
		t.Fatalf("expected a single POLL_FAILED event, got %v", got)
	}

	dev.set(func(f *fakeDevice) { delete(f.boostErr, 2) })
	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh after recovery: %v", err)
	}
	if got := events.types(); !reflect.DeepEqual(got, []string{EventPollFailed, EventPollRecovered}) {
		t.Fatalf("expected recovery event, got %v", got)
	}
	if st := c.Status(); st.State != StateHealthy || st.ConsecutiveFailures != 0 || st.LastError != "" {
		t.Fatalf("unexpected status after recovery %+v", st)
	}
}

func TestCoordinator_BoostFailureOmitPolicy(t *testing.T) {
	dev := newFakeDevice()
	dev.boostErr[2] = deviceErr(healthbox.KindCommunication)
	c := newTestCoordinator(dev, &recordingEventRepo{}, CoordinatorConfig{BoostPolicy: config.BoostPolicyOmit})

	snap, err := c.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	kitchen, _ := snap.Room(1)
	bath, _ := snap.Room(2)
	if kitchen.Boost == nil {
		t.Fatalf("kitchen boost should be present")
	}
	if bath.Boost != nil {
		t.Fatalf("bathroom boost should be omitted, got %+v", bath.Boost)
	}
}

func TestCoordinator_OmitPolicyStillFailsOnAuth(t *testing.T) {
	dev := newFakeDevice()
	dev.boostErr[1] = deviceErr(healthbox.KindAuthentication)
	c := newTestCoordinator(dev, &recordingEventRepo{}, CoordinatorConfig{BoostPolicy: config.BoostPolicyOmit})

	if _, err := c.Refresh(context.Background()); !errors.Is(err, healthbox.ErrAuthentication) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if !c.NeedsReauth() {
		t.Fatalf("expected needs_reauth")
	}
}

func TestCoordinator_MalformedPayloadIsTransient(t *testing.T) {
	dev := newFakeDevice()
	dev.data.Room["x"] = climateRoom("Bad", "1", "1")
	c := newTestCoordinator(dev, &recordingEventRepo{}, CoordinatorConfig{})

	_, err := c.Refresh(context.Background())
	if !errors.Is(err, healthbox.ErrClient) || healthbox.KindOf(err) != healthbox.KindUnknown {
		t.Fatalf("expected generic client error, got %v", err)
	}
	if _, ok := c.Snapshot(); ok {
		t.Fatalf("a malformed poll must not publish")
	}
	if st := c.Status(); st.State != StateFailing {
		t.Fatalf("unexpected state %q", st.State)
	}
}

func TestCoordinator_AuthFailureHaltsPollingUntilReauth(t *testing.T) {
	dev := newFakeDevice()
	dev.dataErr = deviceErr(healthbox.KindAuthentication)
	events := &recordingEventRepo{}
	c := newTestCoordinator(dev, events, CoordinatorConfig{Interval: 5 * time.Millisecond})

	if _, err := c.Refresh(context.Background()); !errors.Is(err, healthbox.ErrAuthentication) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if !c.NeedsReauth() {
		t.Fatalf("expected needs_reauth state, got %q", c.Status().State)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	time.Sleep(60 * time.Millisecond)
	if n := dev.fetches(); n != 1 {
		t.Fatalf("polling must stop while waiting for a new key, fetches=%d", n)
	}

	dev.set(func(f *fakeDevice) { f.dataErr = nil })
	if err := c.Reauthenticate(context.Background(), "new-key"); err != nil {
		t.Fatalf("Reauthenticate: %v", err)
	}
	if c.NeedsReauth() {
		t.Fatalf("reauth should clear the state")
	}
	if _, ok := c.Snapshot(); !ok {
		t.Fatalf("reauth should poll immediately")
	}

	deadline := time.Now().Add(time.Second)
	for dev.fetches() < 4 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if dev.fetches() < 4 {
		t.Fatalf("polling did not resume, fetches=%d", dev.fetches())
	}
	cancel()
	<-done

	if !reflect.DeepEqual(dev.activatedKeys, []string{"new-key"}) {
		t.Fatalf("activated keys %v", dev.activatedKeys)
	}
	types := events.types()
	if len(types) < 2 || types[0] != EventAuthFailed || types[1] != EventAPIKeyActivated {
		t.Fatalf("unexpected events %v", types)
	}
}

func TestCoordinator_RefreshRefusedWhileAwaitingNewKey(t *testing.T) {
	dev := newFakeDevice()
	dev.dataErr = deviceErr(healthbox.KindAuthentication)
	c := newTestCoordinator(dev, &recordingEventRepo{}, CoordinatorConfig{})
	mon := NewMonitoringService(c)

	if _, err := mon.Refresh(context.Background()); !errors.Is(err, healthbox.ErrAuthentication) {
		t.Fatalf("expected auth error, got %v", err)
	}
	dev.set(func(f *fakeDevice) { f.dataErr = nil })

	_, err := mon.Refresh(context.Background())
	if !errors.Is(err, healthbox.ErrAuthentication) || !errors.Is(err, ErrReauthRequired) {
		t.Fatalf("manual refresh must be refused, got %v", err)
	}
	if n := dev.fetches(); n != 1 {
		t.Fatalf("device polled while awaiting a new key, fetches=%d", n)
	}
	if st := c.Status(); st.State != StateNeedsReauth || st.PollTotal != 1 {
		t.Fatalf("state changed without a new key: %+v", st)
	}
	if _, ok := c.Snapshot(); ok {
		t.Fatalf("nothing should be published")
	}
	if len(dev.activatedKeys) != 0 {
		t.Fatalf("no key activated, got %v", dev.activatedKeys)
	}

	if err := c.Reauthenticate(context.Background(), "fresh-key"); err != nil {
		t.Fatalf("Reauthenticate: %v", err)
	}
	if _, err := mon.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh after reauth: %v", err)
	}
	if st := c.Status(); st.State != StateHealthy {
		t.Fatalf("state %q, want healthy", st.State)
	}
}

func TestCoordinator_ReauthenticateRejectedKeepsState(t *testing.T) {
	dev := newFakeDevice()
	dev.dataErr = deviceErr(healthbox.KindAuthentication)
	c := newTestCoordinator(dev, &recordingEventRepo{}, CoordinatorConfig{})
	_, _ = c.Refresh(context.Background())

	dev.set(func(f *fakeDevice) { f.activateErr = deviceErr(healthbox.KindAuthentication) })
	if err := c.Reauthenticate(context.Background(), "still-wrong"); !errors.Is(err, healthbox.ErrAuthentication) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if !c.NeedsReauth() {
		t.Fatalf("state must stay needs_reauth")
	}
}

func TestCoordinator_ConcurrentRefreshSharesOnePoll(t *testing.T) {
	dev := newFakeDevice()
	dev.gate = make(chan struct{})
	dev.entered = make(chan struct{}, 4)
	c := newTestCoordinator(dev, &recordingEventRepo{}, CoordinatorConfig{})

	var wg sync.WaitGroup
	results := make([]models.DeviceSnapshot, 3)
	errs := make([]error, 3)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = c.Refresh(context.Background())
	}()
	<-dev.entered

	for i := 1; i < 3; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = c.Refresh(context.Background())
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(dev.gate)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
		if !results[i].FetchedAt.Equal(results[0].FetchedAt) {
			t.Fatalf("caller %d got a different snapshot", i)
		}
	}
	if n := dev.fetches(); n != 1 {
		t.Fatalf("expected one shared poll, got %d", n)
	}
	if st := c.Status(); st.PollTotal != 1 {
		t.Fatalf("expected one recorded poll, got %d", st.PollTotal)
	}
}

func TestCoordinator_CancelledPollDoesNotPublish(t *testing.T) {
	dev := newFakeDevice()
	dev.gate = make(chan struct{})
	dev.entered = make(chan struct{}, 1)
	events := &recordingEventRepo{}
	c := newTestCoordinator(dev, events, CoordinatorConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := c.Refresh(ctx)
		errc <- err
	}()
	<-dev.entered
	cancel()

	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, ok := c.Snapshot(); ok {
		t.Fatalf("cancelled poll must not publish")
	}
	if st := c.Status(); st.FailureTotal != 0 || st.State != StateStarting {
		t.Fatalf("cancellation is not a failure: %+v", st)
	}
	if len(events.types()) != 0 {
		t.Fatalf("no events expected, got %v", events.types())
	}
}

func TestCoordinator_JoinedPollOutlivesCancelledOwner(t *testing.T) {
	dev := newFakeDevice()
	dev.gate = make(chan struct{})
	dev.entered = make(chan struct{}, 4)
	c := newTestCoordinator(dev, &recordingEventRepo{}, CoordinatorConfig{})

	ownerCtx, cancel := context.WithCancel(context.Background())
	ownerErr := make(chan error, 1)
	go func() {
		_, err := c.Refresh(ownerCtx)
		ownerErr <- err
	}()
	<-dev.entered

	type result struct {
		snap models.DeviceSnapshot
		err  error
	}
	tick := make(chan result, 1)
	go func() {
		snap, err := c.Refresh(context.Background())
		tick <- result{snap, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	if err := <-ownerErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("owner: expected context.Canceled, got %v", err)
	}
	close(dev.gate)

	res := <-tick
	if res.err != nil {
		t.Fatalf("joined caller lost its poll: %v", res.err)
	}
	if res.snap.Serial != "250424P0031" {
		t.Fatalf("unexpected snapshot %+v", res.snap)
	}
	if n := dev.fetches(); n != 2 {
		t.Fatalf("expected a second poll for the joined caller, fetches=%d", n)
	}
	if st := c.Status(); st.State != StateHealthy || st.FailureTotal != 0 {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestCoordinator_FirstRefresh(t *testing.T) {
	t.Run("activates configured key then polls", func(t *testing.T) {
		dev := newFakeDevice()
		c := newTestCoordinator(dev, &recordingEventRepo{}, CoordinatorConfig{APIKey: "k1"})

		if _, err := c.FirstRefresh(context.Background()); err != nil {
			t.Fatalf("FirstRefresh: %v", err)
		}
		if !reflect.DeepEqual(dev.activatedKeys, []string{"k1"}) || dev.fetches() != 1 {
			t.Fatalf("keys=%v fetches=%d", dev.activatedKeys, dev.fetches())
		}
	})

	t.Run("no key skips activation", func(t *testing.T) {
		dev := newFakeDevice()
		c := newTestCoordinator(dev, &recordingEventRepo{}, CoordinatorConfig{})
		if _, err := c.FirstRefresh(context.Background()); err != nil {
			t.Fatalf("FirstRefresh: %v", err)
		}
		if len(dev.activatedKeys) != 0 {
			t.Fatalf("unexpected activation %v", dev.activatedKeys)
		}
	})

	t.Run("rejected key fails setup", func(t *testing.T) {
		dev := newFakeDevice()
		dev.activateErr = deviceErr(healthbox.KindAuthentication)
		c := newTestCoordinator(dev, &recordingEventRepo{}, CoordinatorConfig{APIKey: "bad"})

		_, err := c.FirstRefresh(context.Background())
		if !errors.Is(err, healthbox.ErrAuthentication) {
			t.Fatalf("expected auth error, got %v", err)
		}
		if dev.fetches() != 0 || !c.NeedsReauth() {
			t.Fatalf("fetches=%d state=%q", dev.fetches(), c.Status().State)
		}
	})

	t.Run("unreachable device fails setup", func(t *testing.T) {
		dev := newFakeDevice()
		dev.dataErr = deviceErr(healthbox.KindCommunication)
		c := newTestCoordinator(dev, &recordingEventRepo{}, CoordinatorConfig{})

		if _, err := c.FirstRefresh(context.Background()); !errors.Is(err, healthbox.ErrCommunication) {
			t.Fatalf("expected communication error, got %v", err)
		}
	})
}

func TestCoordinator_ActionsDoNotTouchSnapshot(t *testing.T) {
	dev := newFakeDevice()
	c := newTestCoordinator(dev, &recordingEventRepo{}, CoordinatorConfig{})
	before, err := c.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	ctx := context.Background()
	if err := c.StartRoomBoost(ctx, 1, 120, 600); err != nil {
		t.Fatalf("StartRoomBoost: %v", err)
	}
	if err := c.StopRoomBoost(ctx, 1); err != nil {
		t.Fatalf("StopRoomBoost: %v", err)
	}
	if err := c.ChangeRoomProfile(ctx, 2, "Eco"); err != nil {
		t.Fatalf("ChangeRoomProfile: %v", err)
	}

	want := []string{`["start",1,120,600]`, `["stop",1]`, `["profile",2,"Eco"]`}
	if !reflect.DeepEqual(dev.actions, want) {
		t.Fatalf("actions %v, want %v", dev.actions, want)
	}
	after, _ := c.Snapshot()
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("snapshot changed by actions")
	}
	if dev.fetches() != 1 {
		t.Fatalf("actions must not poll, fetches=%d", dev.fetches())
	}
}

func TestCoordinator_ListenersReceivePublishedSnapshots(t *testing.T) {
	dev := newFakeDevice()
	var fromCtor, fromSubscribe []string
	c := newTestCoordinator(dev, &recordingEventRepo{}, CoordinatorConfig{}, func(_ context.Context, s models.DeviceSnapshot) {
		fromCtor = append(fromCtor, s.Serial)
	})
	c.Subscribe(func(_ context.Context, s models.DeviceSnapshot) {
		fromSubscribe = append(fromSubscribe, s.Serial)
	})

	_, _ = c.Refresh(context.Background())
	dev.set(func(f *fakeDevice) { f.dataErr = deviceErr(healthbox.KindCommunication) })
	_, _ = c.Refresh(context.Background())

	if !reflect.DeepEqual(fromCtor, []string{"250424P0031"}) || !reflect.DeepEqual(fromSubscribe, fromCtor) {
		t.Fatalf("listeners got %v / %v", fromCtor, fromSubscribe)
	}
}

func TestCoordinator_RunStopsOnCancel(t *testing.T) {
	dev := newFakeDevice()
	c := newTestCoordinator(dev, &recordingEventRepo{}, CoordinatorConfig{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for dev.fetches() < 2 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	if dev.fetches() < 2 {
		t.Fatalf("expected periodic polls, got %d", dev.fetches())
	}
}

func TestNewCoordinator_Defaults(t *testing.T) {
	c := NewCoordinator(newFakeDevice(), CoordinatorConfig{}, nil, nil)
	if c.cfg.Interval != DefaultPollInterval || c.cfg.BoostPolicy != config.BoostPolicyFail {
		t.Fatalf("unexpected defaults %+v", c.cfg)
	}
	if c.Status().State != StateStarting {
		t.Fatalf("unexpected initial state %q", c.Status().State)
	}
}
