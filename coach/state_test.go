package coach

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConnectionStateFlags(t *testing.T) {
	boom := errors.New("boom")
	cases := []struct {
		name      string
		state     ConnectionState
		phase     Phase
		canSend   bool
		canDial   bool
		isLoading bool
	}{
		{"disconnected", Disconnected(), PhaseDisconnected, false, true, false},
		{"connecting", Connecting(), PhaseConnecting, false, false, true},
		{"connected", Connected(), PhaseConnected, true, false, false},
		{"streaming", Streaming(), PhaseStreaming, true, false, false},
		{"error", Failed(boom), PhaseError, false, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.phase, tc.state.Phase())
			require.Equal(t, tc.canSend, tc.state.CanSendMessage())
			require.Equal(t, tc.canDial, tc.state.CanConnect())
			require.Equal(t, tc.isLoading, tc.state.IsLoading())
			if tc.phase == PhaseError {
				require.Same(t, boom, tc.state.Err())
			} else {
				require.NoError(t, tc.state.Err())
			}
		})
	}
}

func TestConnectionStateZeroValueIsDisconnected(t *testing.T) {
	var s ConnectionState
	require.Equal(t, Disconnected(), s)
	require.True(t, s.CanConnect())
}

func TestFailedWithoutCauseCarriesError(t *testing.T) {
	s := Failed(nil)
	require.Error(t, s.Err())
	require.Equal(t, ErrorUnknown, CodeOf(s.Err()))
	require.Equal(t, "error(unknown: unknown error)", s.String())
}

func TestTransitionLegalPath(t *testing.T) {
	boom := errors.New("boom")
	s := Disconnected()
	steps := []struct {
		trigger Trigger
		want    Phase
	}{
		{TriggerConnect, PhaseConnecting},
		{TriggerOpened, PhaseConnected},
		{TriggerStreamStart, PhaseStreaming},
		{TriggerStreamEnd, PhaseConnected},
		{TriggerFail, PhaseError},
		{TriggerConnect, PhaseConnecting},
		{TriggerDisconnect, PhaseDisconnected},
	}
	for _, step := range steps {
		var err error
		s, err = Transition(s, step.trigger, boom)
		require.NoError(t, err, "trigger %s", step.trigger)
		require.Equal(t, step.want, s.Phase(), "trigger %s", step.trigger)
	}
}

func TestTransitionRejectsIllegal(t *testing.T) {
	cases := []struct {
		from    ConnectionState
		trigger Trigger
	}{
		{Disconnected(), TriggerStreamStart},
		{Disconnected(), TriggerOpened},
		{Disconnected(), TriggerDisconnect},
		{Connecting(), TriggerConnect},
		{Connecting(), TriggerStreamStart},
		{Connected(), TriggerConnect},
		{Connected(), TriggerStreamEnd},
		{Streaming(), TriggerConnect},
		{Streaming(), TriggerStreamStart},
		{Failed(nil), TriggerOpened},
		{Failed(nil), TriggerStreamStart},
	}
	for _, tc := range cases {
		next, err := Transition(tc.from, tc.trigger, nil)
		require.Error(t, err, "%s on %s", tc.trigger, tc.from.Phase())
		require.Equal(t, ErrorIllegalTransition, CodeOf(err))
		require.Equal(t, tc.from, next)
	}
}

func TestTransitionFailCarriesCause(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")

	s, err := Transition(Connected(), TriggerFail, first)
	require.NoError(t, err)
	require.Same(t, first, s.Err())

	s, err = Transition(s, TriggerFail, second)
	require.NoError(t, err)
	require.Same(t, second, s.Err())
}

func TestStateMachineNotifiesObservers(t *testing.T) {
	sm := NewStateMachine()
	var seen []StateEvent
	cancel := sm.OnChange(func(ev StateEvent) { seen = append(seen, ev) })

	_, err := sm.Fire(TriggerConnect, nil)
	require.NoError(t, err)
	_, err = sm.Fire(TriggerStreamStart, nil)
	require.Error(t, err)
	_, err = sm.Fire(TriggerOpened, nil)
	require.NoError(t, err)

	require.Len(t, seen, 2)
	require.Equal(t, PhaseDisconnected, seen[0].OldState.Phase())
	require.Equal(t, PhaseConnecting, seen[0].NewState.Phase())
	require.Equal(t, TriggerOpened, seen[1].Trigger)
	require.Equal(t, Connected(), sm.Current())

	cancel()
	_, err = sm.Fire(TriggerDisconnect, nil)
	require.NoError(t, err)
	require.Len(t, seen, 2)
}

func TestStateMachineObserverMayFire(t *testing.T) {
	sm := NewStateMachine()
	sm.OnChange(func(ev StateEvent) {
		if ev.NewState.Phase() == PhaseConnecting {
			_, _ = sm.Fire(TriggerOpened, nil)
		}
	})
	_, err := sm.Fire(TriggerConnect, nil)
	require.NoError(t, err)
	require.Equal(t, PhaseConnected, sm.Current().Phase())
}

func TestStateMachineConcurrentFire(t *testing.T) {
	sm := NewStateMachine()
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := sm.Fire(TriggerConnect, nil); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins)
	require.True(t, sm.Current().IsLoading())
}
