package laundry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laundry-smart-queue/internal/auth"
	"laundry-smart-queue/internal/feed"
	"laundry-smart-queue/internal/model"
	"laundry-smart-queue/internal/store"
	"laundry-smart-queue/internal/testutil"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []feed.Event
}

func (p *recordingPublisher) Publish(ev feed.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) Events() []feed.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]feed.Event(nil), p.events...)
}

type chanNotifier chan string

func (n chanNotifier) Dispatch(machineID string) { n <- machineID }

var (
	alice = auth.Session{UserID: "u-alice", Name: "Alice", Role: auth.RoleUser}
	bob   = auth.Session{UserID: "u-bob", Name: "Bob", Role: auth.RoleUser}
	admin = auth.Session{UserID: "op", Name: "Operator", Role: auth.RoleAdmin}
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newService(t *testing.T, opts ...Option) (*Service, store.Store, *recordingPublisher) {
	t.Helper()
	gormDB := testutil.NewDB(t)
	testutil.SeedMachines(t, gormDB, "washer-1", "washer-2", "dryer-1")
	st := store.NewGormStore(gormDB)
	pub := &recordingPublisher{}

	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	svc := NewService(st, pub, opts...)
	t.Cleanup(svc.Close)
	return svc, st, pub
}

func validStart() StartRequest {
	return StartRequest{ProgramID: "quick-30", UserName: "  Alice  ", RoomNumber: " A-15 "}
}

func TestService_StartProgram(t *testing.T) {
	ctx := context.Background()
	svc, st, pub := newService(t)

	m, err := svc.StartProgram(ctx, alice, "washer-1", validStart())
	require.NoError(t, err)

	assert.Equal(t, model.StatusInUse, m.Status)
	require.True(t, m.HasProgram())
	assert.Equal(t, "Quick Wash", *m.CurrentProgramName)
	assert.Equal(t, 30, *m.CurrentProgramDuration)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), *m.EndTime, 5*time.Second)
	assert.Equal(t, 1, svc.PendingTimers())

	open, err := st.OpenUsage(ctx, "washer-1")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, "Alice", open.UserName)
	assert.Equal(t, "A-15", open.RoomNumber)
	require.NotNil(t, open.UserID)
	assert.Equal(t, "u-alice", *open.UserID)

	assert.Contains(t, pub.Events(), feed.MachineChanged("washer-1"))
	assert.Contains(t, pub.Events(), feed.UsageChanged("washer-1"))
}

func TestService_StartProgram_Validation(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newService(t)

	testCases := []struct {
		name      string
		machineID string
		req       StartRequest
		field     string
	}{
		{"blank name", "washer-1", StartRequest{ProgramID: "quick-30", UserName: "   ", RoomNumber: "A-15"}, "user_name"},
		{"room with space", "washer-1", StartRequest{ProgramID: "quick-30", UserName: "Alice", RoomNumber: "12 B"}, "room_number"},
		{"room too long", "washer-1", StartRequest{ProgramID: "quick-30", UserName: "Alice", RoomNumber: "ABCDEFGHIJK"}, "room_number"},
		{"unknown program", "washer-1", StartRequest{ProgramID: "spin-5", UserName: "Alice", RoomNumber: "A-15"}, "program_id"},
		{"dryer program on washer", "washer-1", StartRequest{ProgramID: "quick-45", UserName: "Alice", RoomNumber: "A-15"}, "program_id"},
		{"washer program on dryer", "dryer-1", StartRequest{ProgramID: "eco-90", UserName: "Alice", RoomNumber: "A-15"}, "program_id"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.StartProgram(ctx, alice, tc.machineID, tc.req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}

	records, err := st.ListUsage(ctx, store.UsageFilter{})
	require.NoError(t, err)
	assert.Empty(t, records)
	m, err := svc.GetMachine(ctx, "washer-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAvailable, m.Status)
}

func TestService_StartProgram_UnknownMachine(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.StartProgram(context.Background(), alice, "washer-99", validStart())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_StartProgram_Conflict(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	_, err := svc.StartProgram(ctx, alice, "washer-1", validStart())
	require.NoError(t, err)

	_, err = svc.StartProgram(ctx, bob, "washer-1", validStart())
	assert.ErrorIs(t, err, ErrConflict)
	assert.EqualError(t, err, "machine unavailable")
}

func TestService_StartProgram_ConcurrentStartsOneWins(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newService(t)

	const attempts = 6
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.StartProgram(ctx, alice, "washer-2", validStart())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrConflict)
	}
	assert.Equal(t, 1, wins)

	records, err := st.ListUsage(ctx, store.UsageFilter{MachineID: "washer-2"})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestService_TimerCompletesCycle(t *testing.T) {
	ctx := context.Background()
	notified := make(chanNotifier, 1)
	// A clock 31 minutes behind makes a 30 minute program already overdue.
	past := func() time.Time { return time.Now().Add(-31 * time.Minute) }
	svc, st, _ := newService(t, WithClock(past), WithNotifier(notified))

	_, err := svc.StartProgram(ctx, alice, "washer-1", validStart())
	require.NoError(t, err)

	select {
	case id := <-notified:
		assert.Equal(t, "washer-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("completion was not dispatched")
	}

	m, err := svc.GetMachine(ctx, "washer-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDone, m.Status)
	assert.True(t, m.HasProgram())

	open, err := st.OpenUsage(ctx, "washer-1")
	require.NoError(t, err)
	assert.Nil(t, open)

	t.Run("done machine rejects start until stopped", func(t *testing.T) {
		_, err := svc.StartProgram(ctx, bob, "washer-1", validStart())
		assert.ErrorIs(t, err, ErrConflict)

		_, err = svc.StopProgram(ctx, bob, "washer-1")
		require.NoError(t, err)

		_, err = svc.StartProgram(ctx, bob, "washer-1", StartRequest{ProgramID: "normal-60", UserName: "Bob", RoomNumber: "B-2"})
		require.NoError(t, err)
	})
}

func TestService_StopProgram(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newService(t)

	started, err := svc.StartProgram(ctx, alice, "washer-1", validStart())
	require.NoError(t, err)

	m, err := svc.StopProgram(ctx, bob, "washer-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAvailable, m.Status)
	assert.False(t, m.HasProgram())
	assert.Zero(t, svc.PendingTimers())

	records, err := st.ListUsage(ctx, store.UsageFilter{MachineID: "washer-1"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.NotNil(t, records[0].EndTime)

	t.Run("late timer fire is ignored", func(t *testing.T) {
		ok, err := svc.Complete(ctx, "washer-1", started.Cycle)
		require.NoError(t, err)
		assert.False(t, ok)

		m, err := svc.GetMachine(ctx, "washer-1")
		require.NoError(t, err)
		assert.Equal(t, model.StatusAvailable, m.Status)
	})

	t.Run("stop is idempotent", func(t *testing.T) {
		m, err := svc.StopProgram(ctx, bob, "washer-1")
		require.NoError(t, err)
		assert.Equal(t, model.StatusAvailable, m.Status)
	})

	t.Run("unknown machine", func(t *testing.T) {
		_, err := svc.StopProgram(ctx, bob, "washer-99")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

// interleavingStore runs afterStop once StopCycle has committed.
type interleavingStore struct {
	store.Store
	afterStop func()
}

func (s *interleavingStore) StopCycle(ctx context.Context, machineID string, at time.Time) (store.StopResult, error) {
	res, err := s.Store.StopCycle(ctx, machineID, at)
	if err == nil && s.afterStop != nil {
		s.afterStop()
	}
	return res, err
}

func TestService_StopProgram_KeepsTimerOfNextCycle(t *testing.T) {
	ctx := context.Background()
	gormDB := testutil.NewDB(t)
	testutil.SeedMachines(t, gormDB, "washer-1")
	st := &interleavingStore{Store: store.NewGormStore(gormDB)}
	svc := NewService(st, &recordingPublisher{}, WithLogger(quietLogger()))
	t.Cleanup(svc.Close)

	first, err := svc.StartProgram(ctx, alice, "washer-1", validStart())
	require.NoError(t, err)

	var next model.Machine
	st.afterStop = func() {
		st.afterStop = nil
		next, err = svc.StartProgram(ctx, bob, "washer-1", StartRequest{
			ProgramID: "normal-60", UserName: "Bob", RoomNumber: "B-2",
		})
		require.NoError(t, err)
	}

	_, err = svc.StopProgram(ctx, alice, "washer-1")
	require.NoError(t, err)
	require.Equal(t, first.Cycle+1, next.Cycle)

	cycle, ok := svc.sched.Pending("washer-1")
	require.True(t, ok, "timer for the new cycle must survive the stop")
	assert.Equal(t, next.Cycle, cycle)

	m, err := svc.GetMachine(ctx, "washer-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusInUse, m.Status)
	assert.Equal(t, next.Cycle, m.Cycle)
}

func TestService_StopProgram_OwnerPolicy(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t, WithStopPolicy(StopByOwner))

	_, err := svc.StartProgram(ctx, alice, "washer-1", validStart())
	require.NoError(t, err)

	_, err = svc.StopProgram(ctx, bob, "washer-1")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.StopProgram(ctx, alice, "washer-1")
	assert.NoError(t, err)

	_, err = svc.StartProgram(ctx, alice, "washer-1", validStart())
	require.NoError(t, err)
	_, err = svc.StopProgram(ctx, admin, "washer-1")
	assert.NoError(t, err, "admins bypass the owner policy")
}

func TestService_ForceStop(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	_, err := svc.StartProgram(ctx, alice, "dryer-1", StartRequest{ProgramID: "delicate-60", UserName: "Alice", RoomNumber: "7"})
	require.NoError(t, err)

	_, err = svc.ForceStop(ctx, alice, "dryer-1")
	assert.ErrorIs(t, err, ErrForbidden)

	m, err := svc.ForceStop(ctx, admin, "dryer-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAvailable, m.Status)
}

func TestService_ListUsage_Limit(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	for i := 0; i < 3; i++ {
		_, err := svc.StartProgram(ctx, alice, "washer-1", validStart())
		require.NoError(t, err)
		_, err = svc.StopProgram(ctx, alice, "washer-1")
		require.NoError(t, err)
	}

	records, err := svc.ListUsage(ctx, store.UsageFilter{})
	require.NoError(t, err)
	assert.Len(t, records, 3)

	records, err = svc.ListUsage(ctx, store.UsageFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, records, 1)

	records, err = svc.ListUsage(ctx, store.UsageFilter{Limit: 10_000})
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestService_EnsureArmed(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	m, err := svc.StartProgram(ctx, alice, "washer-1", validStart())
	require.NoError(t, err)

	assert.False(t, svc.EnsureArmed(m), "timer for the same cycle is already pending")

	svc.Close()
	assert.Zero(t, svc.PendingTimers())
	assert.False(t, svc.EnsureArmed(model.Machine{ID: "washer-2", Status: model.StatusAvailable}))
}

func TestService_Provision(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	err := svc.Provision(ctx, []model.Machine{{ID: "washer-3", Name: "Washer 3", Type: model.MachineTypeWasher}})
	require.NoError(t, err)

	m, err := svc.GetMachine(ctx, "washer-3")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAvailable, m.Status)

	err = svc.Provision(ctx, []model.Machine{{ID: "x", Type: "fridge"}})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}
