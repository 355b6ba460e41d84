// Package tracks turns the unordered set of published media tracks into the
// layout a participant sees. Resolve is pure and cheap, callers recompute it
// on every publish or unpublish.
package tracks

import "sort"

// Role is the role of the participant that owns a track or views the room.
type Role string

const (
	RoleTutor   Role = "tutor"
	RoleLearner Role = "learner"
)

// Kind is the media source of a track.
type Kind string

const (
	KindCamera Kind = "camera"
	KindScreen Kind = "screen"
)

// Track is one published video track.
type Track struct {
	Participant string `json:"participant"`
	Role        Role   `json:"role"`
	Kind        Kind   `json:"kind"`
	// Sequence is the order in which the owner published this track.
	Sequence int    `json:"sequence"`
	StreamID string `json:"stream_id"`
}

// SemanticRole is what a track shows.
type SemanticRole string

const (
	SemanticFace        SemanticRole = "face"
	SemanticPaper       SemanticRole = "paper"
	SemanticTutorCamera SemanticRole = "tutor-camera"
	SemanticScreen      SemanticRole = "screen"
)

// Slot is a place in the room layout.
type Slot string

const (
	SlotMain      Slot = "main"
	SlotPiPTop    Slot = "pip-top-right"
	SlotPiPBottom Slot = "pip-bottom-right"
)

// MainState tells whether the main slot has a track or waits for one.
type MainState string

const (
	MainShowing MainState = "showing"
	MainWaiting MainState = "waiting"
)

// ViewModel is the resolved layout for one viewer.
type ViewModel struct {
	Viewer Role `json:"viewer"`

	Face        *Track `json:"face,omitempty"`
	Paper       *Track `json:"paper,omitempty"`
	TutorCamera *Track `json:"tutor_camera,omitempty"`
	Screen      *Track `json:"screen,omitempty"`

	MainState MainState `json:"main_state"`
	Main      *Track    `json:"main,omitempty"`
	PiPTop    *Track    `json:"pip_top,omitempty"`
	PiPBottom *Track    `json:"pip_bottom,omitempty"`
}

// MainSurface is the annotation target: the stream shown in the main slot.
func (v ViewModel) MainSurface() string {
	if v.Main == nil {
		return ""
	}
	return v.Main.StreamID
}

// DualCamera reports whether the learner publishes both face and paper.
func (v ViewModel) DualCamera() bool {
	return v.Face != nil && v.Paper != nil
}

// RoleOf returns the semantic role assigned to a stream.
func (v ViewModel) RoleOf(streamID string) (SemanticRole, bool) {
	for _, c := range []struct {
		t    *Track
		role SemanticRole
	}{
		{v.Screen, SemanticScreen},
		{v.Face, SemanticFace},
		{v.Paper, SemanticPaper},
		{v.TutorCamera, SemanticTutorCamera},
	} {
		if c.t != nil && c.t.StreamID == streamID {
			return c.role, true
		}
	}
	return "", false
}

// Slots lists the occupied slots.
func (v ViewModel) Slots() map[Slot]Track {
	out := make(map[Slot]Track, 3)
	for slot, t := range map[Slot]*Track{SlotMain: v.Main, SlotPiPTop: v.PiPTop, SlotPiPBottom: v.PiPBottom} {
		if t != nil {
			out[slot] = *t
		}
	}
	return out
}

// Resolve assigns semantic roles and slots for the given viewer.
//
// The learner's first published camera is the face camera and the second
// the paper camera; a lone camera is treated as paper. Later cameras are
// ignored. A screen share from either side takes the main slot.
func Resolve(published []Track, viewer Role) ViewModel {
	var learnerCams, tutorCams, screens []Track
	for _, t := range published {
		switch {
		case t.Kind == KindScreen:
			screens = append(screens, t)
		case t.Kind == KindCamera && t.Role == RoleLearner:
			learnerCams = append(learnerCams, t)
		case t.Kind == KindCamera && t.Role == RoleTutor:
			tutorCams = append(tutorCams, t)
		}
	}
	sortByPublishOrder(learnerCams)
	sortByPublishOrder(tutorCams)
	sortByPublishOrder(screens)

	vm := ViewModel{Viewer: viewer, MainState: MainWaiting}
	switch len(learnerCams) {
	case 0:
	case 1:
		vm.Paper = ref(learnerCams[0])
	default:
		vm.Face = ref(learnerCams[0])
		vm.Paper = ref(learnerCams[1])
	}
	if len(tutorCams) > 0 {
		vm.TutorCamera = ref(tutorCams[0])
	}
	if len(screens) > 0 {
		vm.Screen = ref(screens[0])
	}

	switch {
	case vm.Screen != nil:
		vm.Main = vm.Screen
	case vm.Paper != nil:
		vm.Main = vm.Paper
	}
	if vm.Main != nil {
		vm.MainState = MainShowing
	}

	switch viewer {
	case RoleTutor:
		vm.PiPTop = vm.Face
		vm.PiPBottom = vm.TutorCamera
	case RoleLearner:
		vm.PiPTop = vm.TutorCamera
		vm.PiPBottom = vm.Face
	}
	return vm
}

func sortByPublishOrder(ts []Track) {
	sort.SliceStable(ts, func(i, j int) bool {
		if ts[i].Sequence != ts[j].Sequence {
			return ts[i].Sequence < ts[j].Sequence
		}
		return ts[i].StreamID < ts[j].StreamID
	})
}

func ref(t Track) *Track { return &t }
