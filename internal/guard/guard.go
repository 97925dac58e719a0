// Package guard keeps a round screen from silently dropping prediction edits
// when the user switches rounds.
package guard

import (
	"context"
	"fmt"
	"sort"

	"prode/internal/domain"
	"prode/pkg/errors"
)

// State of the guard
type State int

const (
	Saved State = iota
	Dirty
	PromptingSwitch
)

func (s State) String() string {
	switch s {
	case Saved:
		return "saved"
	case Dirty:
		return "dirty"
	case PromptingSwitch:
		return "prompting_switch"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText lets views carry the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Decision is the outcome of a round-switch request
type Decision int

const (
	// SwitchNow means the caller should activate the target round immediately
	SwitchNow Decision = iota
	// Deferred means a confirmation prompt is open
	Deferred
	// Unchanged means the target is already the current round
	Unchanged
)

func (d Decision) String() string {
	switch d {
	case SwitchNow:
		return "switch_now"
	case Deferred:
		return "deferred"
	case Unchanged:
		return "unchanged"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// MarshalText encodes the decision by name
func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Choice is the user's answer to the switch prompt
type Choice string

const (
	ChoiceSave    Choice = "save"
	ChoiceDiscard Choice = "discard"
	ChoiceDismiss Choice = "dismiss"
)

// DismissPolicy controls what closing the prompt without a choice does
type DismissPolicy int

const (
	// DismissClearsDirty matches the shipped app: the dirty flag is dropped but the
	// edits stay in memory, unguarded.
	DismissClearsDirty DismissPolicy = iota
	// DismissKeepsDirty returns to Dirty so a later switch prompts again.
	DismissKeepsDirty
)

// Saver persists a round's edits. hasPredictions selects create vs update upstream.
type Saver interface {
	SavePredictions(ctx context.Context, roundSlug string, hasPredictions bool, edits []domain.PredictionEdit) error
}

// Guard is the per-screen unsaved-changes state machine. It is not safe for
// concurrent use; the owning session serializes access.
type Guard struct {
	saver          Saver
	policy         DismissPolicy
	state          State
	roundSlug      string
	hasPredictions bool
	baseline       map[int]domain.PredictionEdit
	edits          map[int]domain.PredictionEdit
	pending        string
}

// New creates a guard in the Saved state for roundSlug
func New(saver Saver, policy DismissPolicy, roundSlug string, hasPredictions bool) *Guard {
	g := &Guard{saver: saver, policy: policy}
	g.Reset(roundSlug, hasPredictions, nil)
	return g
}

// Reset starts over for a freshly shown round. baseline holds the already-saved
// predictions edits start from.
func (g *Guard) Reset(roundSlug string, hasPredictions bool, baseline []domain.PredictionEdit) {
	g.state = Saved
	g.roundSlug = roundSlug
	g.hasPredictions = hasPredictions
	g.pending = ""
	g.edits = make(map[int]domain.PredictionEdit)
	g.baseline = make(map[int]domain.PredictionEdit, len(baseline))
	for _, p := range baseline {
		g.baseline[p.MatchID] = p
	}
}

// State returns the current state
func (g *Guard) State() State { return g.state }

// RoundSlug returns the round the edits belong to
func (g *Guard) RoundSlug() string { return g.roundSlug }

// PendingSwitch returns the round waiting on the prompt, if any
func (g *Guard) PendingSwitch() string { return g.pending }

// Edits returns the in-memory edits ordered by match id
func (g *Guard) Edits() []domain.PredictionEdit {
	out := make([]domain.PredictionEdit, 0, len(g.edits))
	for _, e := range g.edits {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MatchID < out[j].MatchID })
	return out
}

// Adjust increments or decrements one side of a match prediction. Scores never
// go below zero. Any adjustment marks the screen dirty; while the prompt is open
// the state stays PromptingSwitch.
func (g *Guard) Adjust(matchID int, side domain.Side, delta int) (domain.PredictionEdit, error) {
	if matchID <= 0 {
		return domain.PredictionEdit{}, errors.NewValidationError("match id must be positive", nil)
	}
	if !side.Valid() {
		return domain.PredictionEdit{}, errors.NewValidationError("side must be home or away", map[string]interface{}{"side": string(side)})
	}
	if delta != 1 && delta != -1 {
		return domain.PredictionEdit{}, errors.NewValidationError("delta must be 1 or -1", map[string]interface{}{"delta": delta})
	}

	edit, ok := g.edits[matchID]
	if !ok {
		edit = g.baseline[matchID]
		edit.MatchID = matchID
	}
	switch side {
	case domain.SideHome:
		edit.HomeScore = max(0, edit.HomeScore+delta)
	case domain.SideAway:
		edit.AwayScore = max(0, edit.AwayScore+delta)
	}
	g.edits[matchID] = edit

	if g.state == Saved {
		g.state = Dirty
	}
	return edit, nil
}

// RequestSwitch asks to move to target. From Saved the switch happens at once;
// with pending edits a prompt opens and the active round does not change. The
// caller activates the round and calls Reset whenever a switch goes through.
func (g *Guard) RequestSwitch(target string) Decision {
	if target == g.roundSlug {
		return Unchanged
	}
	switch g.state {
	case Saved:
		return SwitchNow
	default:
		g.state = PromptingSwitch
		g.pending = target
		return Deferred
	}
}

// Resolve answers the open prompt. It returns the round to activate, or "" when
// no switch should happen.
func (g *Guard) Resolve(ctx context.Context, choice Choice) (string, error) {
	if g.state != PromptingSwitch {
		return "", errors.NewConflictError("no round switch is awaiting confirmation")
	}

	switch choice {
	case ChoiceSave:
		if err := g.persist(ctx); err != nil {
			return "", err
		}
		target := g.pending
		g.pending = ""
		g.state = Saved
		return target, nil

	case ChoiceDiscard:
		target := g.pending
		g.edits = make(map[int]domain.PredictionEdit)
		g.pending = ""
		g.state = Saved
		return target, nil

	case ChoiceDismiss:
		g.pending = ""
		if g.policy == DismissKeepsDirty && len(g.edits) > 0 {
			g.state = Dirty
		} else {
			g.state = Saved
		}
		return "", nil

	default:
		return "", errors.NewValidationError("unknown choice", map[string]interface{}{"choice": string(choice)})
	}
}

// Save persists pending edits without switching rounds
func (g *Guard) Save(ctx context.Context) error {
	if g.state == PromptingSwitch {
		return errors.NewConflictError("answer the round switch prompt first")
	}
	if len(g.edits) == 0 {
		g.state = Saved
		return nil
	}
	if err := g.persist(ctx); err != nil {
		return err
	}
	g.state = Saved
	return nil
}

func (g *Guard) persist(ctx context.Context) error {
	edits := g.Edits()
	if len(edits) > 0 {
		if err := g.saver.SavePredictions(ctx, g.roundSlug, g.hasPredictions, edits); err != nil {
			return fmt.Errorf("save predictions for %s: %w", g.roundSlug, err)
		}
		for _, e := range edits {
			g.baseline[e.MatchID] = e
		}
		g.hasPredictions = true
	}
	g.edits = make(map[int]domain.PredictionEdit)
	return nil
}
