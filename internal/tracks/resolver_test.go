package tracks

import (
	"errors"
	"math/rand"
	"testing"
)

func learnerCam(seq int, id string) Track {
	return Track{Participant: "STUDENT-42", Role: RoleLearner, Kind: KindCamera, Sequence: seq, StreamID: id}
}

func tutorCam(id string) Track {
	return Track{Participant: "PROF-7", Role: RoleTutor, Kind: KindCamera, StreamID: id}
}

func TestSingleLearnerCameraIsPaper(t *testing.T) {
	vm := Resolve([]Track{learnerCam(0, "only")}, RoleTutor)
	if vm.Paper == nil || vm.Paper.StreamID != "only" {
		t.Fatalf("Paper = %+v, want only", vm.Paper)
	}
	if vm.Face != nil {
		t.Fatalf("Face = %+v, want nil", vm.Face)
	}
	if vm.MainSurface() != "only" {
		t.Fatalf("MainSurface() = %q, want only", vm.MainSurface())
	}
}

func TestDualCameraOrderIgnoresArrivalOrder(t *testing.T) {
	base := []Track{learnerCam(0, "deviceA-stream"), learnerCam(1, "deviceB-stream"), tutorCam("prof-cam")}
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		in := append([]Track(nil), base...)
		r.Shuffle(len(in), func(a, b int) { in[a], in[b] = in[b], in[a] })

		vm := Resolve(in, RoleTutor)
		if vm.Face == nil || vm.Face.StreamID != "deviceA-stream" {
			t.Fatalf("Face = %+v, want deviceA-stream", vm.Face)
		}
		if vm.Paper == nil || vm.Paper.StreamID != "deviceB-stream" {
			t.Fatalf("Paper = %+v, want deviceB-stream", vm.Paper)
		}
	}
}

func TestExtraLearnerCamerasIgnored(t *testing.T) {
	vm := Resolve([]Track{learnerCam(2, "c"), learnerCam(0, "a"), learnerCam(1, "b")}, RoleTutor)
	if vm.Face.StreamID != "a" || vm.Paper.StreamID != "b" {
		t.Fatalf("Face/Paper = %s/%s, want a/b", vm.Face.StreamID, vm.Paper.StreamID)
	}
	if _, ok := vm.RoleOf("c"); ok {
		t.Fatalf("third camera got a role")
	}
}

func TestTutorLayout(t *testing.T) {
	vm := Resolve([]Track{learnerCam(0, "face"), learnerCam(1, "paper"), tutorCam("me")}, RoleTutor)
	if vm.Main.StreamID != "paper" || vm.MainState != MainShowing {
		t.Fatalf("Main = %+v state %s, want paper showing", vm.Main, vm.MainState)
	}
	if vm.PiPTop.StreamID != "face" {
		t.Fatalf("PiPTop = %s, want face", vm.PiPTop.StreamID)
	}
	if vm.PiPBottom.StreamID != "me" {
		t.Fatalf("PiPBottom = %s, want me", vm.PiPBottom.StreamID)
	}
}

func TestTutorWithoutCameraOmitsOwnPiP(t *testing.T) {
	vm := Resolve([]Track{learnerCam(0, "face"), learnerCam(1, "paper")}, RoleTutor)
	if vm.PiPBottom != nil {
		t.Fatalf("PiPBottom = %+v, want nil", vm.PiPBottom)
	}
	if len(vm.Slots()) != 2 {
		t.Fatalf("Slots() = %v, want main and top", vm.Slots())
	}
}

func TestLearnerLayout(t *testing.T) {
	single := Resolve([]Track{learnerCam(0, "mine"), tutorCam("prof")}, RoleLearner)
	if single.Main.StreamID != "mine" || single.PiPTop.StreamID != "prof" || single.PiPBottom != nil {
		t.Fatalf("single camera layout = %+v", single.Slots())
	}

	dual := Resolve([]Track{learnerCam(0, "face"), learnerCam(1, "paper"), tutorCam("prof")}, RoleLearner)
	if dual.Main.StreamID != "paper" || dual.PiPTop.StreamID != "prof" || dual.PiPBottom.StreamID != "face" {
		t.Fatalf("dual camera layout = %+v", dual.Slots())
	}
	if !dual.DualCamera() || single.DualCamera() {
		t.Fatalf("DualCamera() = %v/%v, want true/false", dual.DualCamera(), single.DualCamera())
	}
}

func TestScreenShareTakesMainSlot(t *testing.T) {
	screen := Track{Participant: "PROF-7", Role: RoleTutor, Kind: KindScreen, Sequence: 1, StreamID: "screen"}
	for _, viewer := range []Role{RoleTutor, RoleLearner} {
		vm := Resolve([]Track{learnerCam(0, "face"), learnerCam(1, "paper"), screen}, viewer)
		if vm.MainSurface() != "screen" {
			t.Fatalf("viewer %s MainSurface() = %q, want screen", viewer, vm.MainSurface())
		}
		if role, _ := vm.RoleOf("screen"); role != SemanticScreen {
			t.Fatalf("RoleOf(screen) = %q", role)
		}
	}
}

func TestWaitingPlaceholder(t *testing.T) {
	vm := Resolve([]Track{tutorCam("prof")}, RoleTutor)
	if vm.MainState != MainWaiting || vm.Main != nil || vm.MainSurface() != "" {
		t.Fatalf("main = %+v state %s, want waiting", vm.Main, vm.MainState)
	}
	if vm.PiPBottom == nil {
		t.Fatalf("tutor camera missing from PiP while waiting")
	}

	empty := Resolve(nil, RoleLearner)
	if empty.MainState != MainWaiting {
		t.Fatalf("empty MainState = %s, want waiting", empty.MainState)
	}
}

func TestCameraSetupPlan(t *testing.T) {
	plan, err := CameraSetup{Devices: []string{"a", "b"}, FaceDevice: "b", PaperDevice: "a"}.Plan()
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(plan) != 2 || plan[0].DeviceID != "b" || plan[0].Role != SemanticFace || plan[1].Role != SemanticPaper {
		t.Fatalf("Plan() = %+v", plan)
	}

	single, err := CameraSetup{Devices: []string{"only"}}.Plan()
	if err != nil || len(single) != 1 || single[0].Role != SemanticPaper {
		t.Fatalf("single Plan() = %+v, %v", single, err)
	}

	if _, err := (CameraSetup{Devices: []string{"a", "b"}, FaceDevice: "a", PaperDevice: "a"}).Plan(); !errors.Is(err, ErrInvalidCameraSetup) {
		t.Fatalf("Plan() error = %v, want ErrInvalidCameraSetup", err)
	}
}
