package guard

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prode/internal/domain"
	"prode/pkg/errors"
)

type saveCall struct {
	round          string
	hasPredictions bool
	edits          []domain.PredictionEdit
}

type fakeSaver struct {
	calls []saveCall
	err   error
}

func (f *fakeSaver) SavePredictions(_ context.Context, roundSlug string, hasPredictions bool, edits []domain.PredictionEdit) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, saveCall{round: roundSlug, hasPredictions: hasPredictions, edits: edits})
	return nil
}

func dirtyGuard(t *testing.T, saver *fakeSaver, policy DismissPolicy) *Guard {
	t.Helper()
	g := New(saver, policy, "r1", false)
	_, err := g.Adjust(10, domain.SideHome, 1)
	require.NoError(t, err)
	require.Equal(t, Dirty, g.State())
	return g
}

func TestGuard_EditMovesSavedToDirty(t *testing.T) {
	g := New(&fakeSaver{}, DismissClearsDirty, "r1", false)
	assert.Equal(t, Saved, g.State())

	edit, err := g.Adjust(7, domain.SideAway, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.PredictionEdit{MatchID: 7, AwayScore: 1}, edit)
	assert.Equal(t, Dirty, g.State())
}

func TestGuard_AdjustStartsFromBaselineAndFloorsAtZero(t *testing.T) {
	g := New(&fakeSaver{}, DismissClearsDirty, "r1", true)
	g.Reset("r1", true, []domain.PredictionEdit{{MatchID: 3, HomeScore: 2, AwayScore: 0}})

	edit, err := g.Adjust(3, domain.SideHome, -1)
	require.NoError(t, err)
	assert.Equal(t, 1, edit.HomeScore)

	edit, err = g.Adjust(3, domain.SideAway, -1)
	require.NoError(t, err)
	assert.Equal(t, 0, edit.AwayScore)
	assert.Equal(t, []domain.PredictionEdit{{MatchID: 3, HomeScore: 1, AwayScore: 0}}, g.Edits())
}

func TestGuard_AdjustRejectsBadInput(t *testing.T) {
	g := New(&fakeSaver{}, DismissClearsDirty, "r1", false)

	_, err := g.Adjust(0, domain.SideHome, 1)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	_, err = g.Adjust(1, domain.Side("left"), 1)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	_, err = g.Adjust(1, domain.SideHome, 2)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	assert.Equal(t, Saved, g.State())
}

func TestGuard_SwitchFromSavedIsImmediate(t *testing.T) {
	g := New(&fakeSaver{}, DismissClearsDirty, "r1", false)

	assert.Equal(t, SwitchNow, g.RequestSwitch("r2"))
	assert.Equal(t, Saved, g.State())
	assert.Equal(t, Unchanged, g.RequestSwitch("r1"))
}

func TestGuard_SwitchWhileDirtyPrompts(t *testing.T) {
	g := dirtyGuard(t, &fakeSaver{}, DismissClearsDirty)

	assert.Equal(t, Deferred, g.RequestSwitch("r2"))
	assert.Equal(t, PromptingSwitch, g.State())
	assert.Equal(t, "r2", g.PendingSwitch())
	assert.Equal(t, "r1", g.RoundSlug(), "active round must not change until the prompt is answered")

	assert.Equal(t, Deferred, g.RequestSwitch("r3"))
	assert.Equal(t, "r3", g.PendingSwitch())
}

func TestGuard_ResolveSave(t *testing.T) {
	saver := &fakeSaver{}
	g := dirtyGuard(t, saver, DismissClearsDirty)
	g.RequestSwitch("r2")

	target, err := g.Resolve(context.Background(), ChoiceSave)
	require.NoError(t, err)
	assert.Equal(t, "r2", target)
	assert.Equal(t, Saved, g.State())
	assert.Empty(t, g.Edits())

	require.Len(t, saver.calls, 1)
	assert.Equal(t, "r1", saver.calls[0].round)
	assert.False(t, saver.calls[0].hasPredictions)
	assert.Equal(t, []domain.PredictionEdit{{MatchID: 10, HomeScore: 1}}, saver.calls[0].edits)
}

func TestGuard_ResolveSaveFailureKeepsPrompt(t *testing.T) {
	saver := &fakeSaver{err: errors.NewExternalError("upstream down", stderrors.New("503"))}
	g := dirtyGuard(t, saver, DismissClearsDirty)
	g.RequestSwitch("r2")

	target, err := g.Resolve(context.Background(), ChoiceSave)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeExternal))
	assert.Empty(t, target)
	assert.Equal(t, PromptingSwitch, g.State())
	assert.Equal(t, "r2", g.PendingSwitch())
	assert.Len(t, g.Edits(), 1)
}

func TestGuard_ResolveDiscard(t *testing.T) {
	saver := &fakeSaver{}
	g := dirtyGuard(t, saver, DismissClearsDirty)
	g.RequestSwitch("r2")

	target, err := g.Resolve(context.Background(), ChoiceDiscard)
	require.NoError(t, err)
	assert.Equal(t, "r2", target)
	assert.Equal(t, Saved, g.State())
	assert.Empty(t, g.Edits())
	assert.Empty(t, saver.calls)
}

func TestGuard_ResolveDismiss(t *testing.T) {
	t.Run("default policy clears the dirty flag", func(t *testing.T) {
		g := dirtyGuard(t, &fakeSaver{}, DismissClearsDirty)
		g.RequestSwitch("r2")

		target, err := g.Resolve(context.Background(), ChoiceDismiss)
		require.NoError(t, err)
		assert.Empty(t, target)
		assert.Equal(t, Saved, g.State())
		assert.Empty(t, g.PendingSwitch())
		assert.Len(t, g.Edits(), 1, "edits stay in memory")
		assert.Equal(t, SwitchNow, g.RequestSwitch("r2"), "next switch is no longer guarded")
	})

	t.Run("keep-dirty policy returns to Dirty", func(t *testing.T) {
		g := dirtyGuard(t, &fakeSaver{}, DismissKeepsDirty)
		g.RequestSwitch("r2")

		_, err := g.Resolve(context.Background(), ChoiceDismiss)
		require.NoError(t, err)
		assert.Equal(t, Dirty, g.State())
		assert.Equal(t, Deferred, g.RequestSwitch("r2"))
	})
}

func TestGuard_ResolveWithoutPrompt(t *testing.T) {
	g := New(&fakeSaver{}, DismissClearsDirty, "r1", false)

	_, err := g.Resolve(context.Background(), ChoiceSave)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConflict))

	g = dirtyGuard(t, &fakeSaver{}, DismissClearsDirty)
	g.RequestSwitch("r2")
	_, err = g.Resolve(context.Background(), Choice("maybe"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	assert.Equal(t, PromptingSwitch, g.State())
}

func TestGuard_ExplicitSave(t *testing.T) {
	saver := &fakeSaver{}
	g := dirtyGuard(t, saver, DismissClearsDirty)

	require.NoError(t, g.Save(context.Background()))
	assert.Equal(t, Saved, g.State())
	require.Len(t, saver.calls, 1)

	// a second save of the same round updates instead of creating
	_, err := g.Adjust(10, domain.SideHome, 1)
	require.NoError(t, err)
	require.NoError(t, g.Save(context.Background()))
	require.Len(t, saver.calls, 2)
	assert.True(t, saver.calls[1].hasPredictions)
	assert.Equal(t, 2, saver.calls[1].edits[0].HomeScore)

	require.NoError(t, g.Save(context.Background()), "saving with nothing pending is a no-op")
	assert.Len(t, saver.calls, 2)
}

func TestGuard_SaveWhilePrompting(t *testing.T) {
	g := dirtyGuard(t, &fakeSaver{}, DismissClearsDirty)
	g.RequestSwitch("r2")

	err := g.Save(context.Background())
	assert.True(t, errors.IsType(err, errors.ErrorTypeConflict))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "saved", Saved.String())
	assert.Equal(t, "prompting_switch", PromptingSwitch.String())
	text, err := Dirty.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "dirty", string(text))
}

func TestDecision_String(t *testing.T) {
	assert.Equal(t, "switch_now", SwitchNow.String())
	assert.Equal(t, "deferred", Deferred.String())
	assert.Equal(t, "decision(9)", Decision(9).String())
}
