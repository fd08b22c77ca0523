// Package flow turns a session's stored state into the one view the
// participant should see, running the gates and the intro and exit step
// sequences around them.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/playmatatu/experiment/internal/session"
	"github.com/playmatatu/experiment/internal/steps"
)

// Sequence names.
const (
	Intro = "intro"
	Exit  = "exit"
)

// Progress field names in the player's progress hash.
const (
	introIndexKey = "introStep"
	introDoneKey  = "introDone"
	exitIndexKey  = "exitStep"
	exitDoneKey   = "exitDone"
)

// ErrNotOnStep is returned when advancing a sequence the participant is not
// currently shown.
var ErrNotOnStep = errors.New("flow: participant is not on a step of this sequence")

// URLParamsWriter persists captured query parameters onto a player.
type URLParamsWriter interface {
	SetURLParams(ctx context.Context, playerID string, params map[string]string) (bool, error)
}

// ProgressFactory returns the progress markers for one player's sequence.
type ProgressFactory func(playerID, indexKey, doneKey string) steps.Progress

// View is what the participant is shown.
type View struct {
	Screen    session.Screen `json:"screen"`
	Reason    string         `json:"reason,omitempty"`
	Action    session.Action `json:"action,omitempty"`
	Resolving bool           `json:"resolving,omitempty"`
	Step      string         `json:"step,omitempty"`
	StepIndex int            `json:"step_index,omitempty"`
	StepCount int            `json:"step_count,omitempty"`
}

type Resolver struct {
	flags    session.Flags
	intro    steps.Source
	exit     steps.Source
	progress ProgressFactory
	params   URLParamsWriter
}

func NewResolver(flags session.Flags, intro, exit steps.Source, progress ProgressFactory, params URLParamsWriter) *Resolver {
	if intro == nil {
		intro = steps.Static()
	}
	if exit == nil {
		exit = steps.Static()
	}
	return &Resolver{flags: flags, intro: intro, exit: exit, progress: progress, params: params}
}

// Resolve picks the view for snap. rawQuery is the participant's current
// query string, captured onto the player the first time one is seen.
func (r *Resolver) Resolve(ctx context.Context, snap session.Snapshot, rawQuery string) (View, error) {
	return r.resolve(ctx, snap, rawQuery, true)
}

// Current picks the view for snap without capturing URL parameters.
func (r *Resolver) Current(ctx context.Context, snap session.Snapshot) (View, error) {
	return r.resolve(ctx, snap, "", false)
}

func (r *Resolver) resolve(ctx context.Context, snap session.Snapshot, rawQuery string, capture bool) (View, error) {
	d := session.Gate(snap, r.flags)
	player, _ := snap.Player.Get()

	if capture && d.CaptureURLParams {
		r.captureURLParams(ctx, player.ID, rawQuery)
	}

	switch d.Screen {
	case session.ScreenExit:
		return r.exitView(ctx, snap, d)
	case session.ScreenGame:
		v, done, err := r.stepView(ctx, snap, Intro)
		if err != nil || !done {
			return v, err
		}
		gd := session.GameGate(snap, r.flags)
		if gd.Screen == session.ScreenExit {
			return r.exitView(ctx, snap, gd)
		}
		return viewOf(gd), nil
	default:
		return viewOf(d), nil
	}
}

// Advance completes the current step of the named sequence. The participant
// must be looking at that sequence.
func (r *Resolver) Advance(ctx context.Context, snap session.Snapshot, sequence string) error {
	var want session.Screen
	switch sequence {
	case Intro:
		want = session.ScreenIntroStep
	case Exit:
		want = session.ScreenExitStep
	default:
		return fmt.Errorf("flow: unknown sequence %q", sequence)
	}

	v, err := r.resolve(ctx, snap, "", false)
	if err != nil {
		return err
	}
	if v.Screen != want {
		return ErrNotOnStep
	}
	seq, _ := r.sequence(snap, sequence)
	return seq.Advance(ctx)
}

func (r *Resolver) exitView(ctx context.Context, snap session.Snapshot, d session.Decision) (View, error) {
	v, done, err := r.stepView(ctx, snap, Exit)
	if err != nil || !done {
		return v, err
	}
	return View{Screen: session.ScreenFinished, Reason: d.Reason}, nil
}

// stepView returns the current step of a sequence, or done when it has
// nothing left to show.
func (r *Resolver) stepView(ctx context.Context, snap session.Snapshot, sequence string) (View, bool, error) {
	seq, screen := r.sequence(snap, sequence)
	name, index, done, err := seq.Current(ctx)
	if err != nil {
		return View{}, false, fmt.Errorf("%s steps: %w", sequence, err)
	}
	if done {
		return View{}, true, nil
	}
	return View{
		Screen:    screen,
		Action:    session.ActionAdvanceStep,
		Step:      name,
		StepIndex: index,
		StepCount: seq.Len(),
	}, false, nil
}

func (r *Resolver) sequence(snap session.Snapshot, sequence string) (*steps.Sequence, session.Screen) {
	player, _ := snap.Player.Get()
	sctx := steps.Context{PlayerID: player.ID, GameID: player.GameID}
	if sequence == Exit {
		return steps.New(r.exit(sctx), r.progress(player.ID, exitIndexKey, exitDoneKey)), session.ScreenExitStep
	}
	return steps.New(r.intro(sctx), r.progress(player.ID, introIndexKey, introDoneKey)), session.ScreenIntroStep
}

// captureURLParams stores the query string on the player. Failures are
// logged; the next evaluation tries again.
func (r *Resolver) captureURLParams(ctx context.Context, playerID, rawQuery string) {
	if r.params == nil || playerID == "" {
		return
	}
	params := session.ParseURLParams(rawQuery)
	written, err := r.params.SetURLParams(ctx, playerID, params)
	if err != nil {
		log.Printf("[GATE] capture url params for player %s: %v", playerID, err)
		return
	}
	if written {
		log.Printf("[GATE] captured %d url params for player %s", len(params), playerID)
	}
}

func viewOf(d session.Decision) View {
	return View{Screen: d.Screen, Reason: d.Reason, Action: d.Action, Resolving: d.Resolving}
}
