package tracks

import (
	"errors"
	"strings"
)

var ErrInvalidCameraSetup = errors.New("invalid camera setup")

// Publication is one camera the learner client should publish, in order.
type Publication struct {
	DeviceID string       `json:"device_id"`
	Role     SemanticRole `json:"role"`
	Width    int          `json:"width"`
	Height   int          `json:"height"`
}

// CameraSetup is the learner's choice made before entering the room.
type CameraSetup struct {
	Devices     []string
	FaceDevice  string
	PaperDevice string
}

// Plan returns the publications in the order the resolver expects them:
// face first, paper second. With a single device the camera is published
// alone and ends up as paper.
func (s CameraSetup) Plan() ([]Publication, error) {
	face := strings.TrimSpace(s.FaceDevice)
	paper := strings.TrimSpace(s.PaperDevice)

	if len(s.Devices) == 1 {
		return []Publication{{DeviceID: s.Devices[0], Role: SemanticPaper, Width: 1280, Height: 720}}, nil
	}
	if face == "" || paper == "" || face == paper {
		return nil, ErrInvalidCameraSetup
	}
	if !contains(s.Devices, face) || !contains(s.Devices, paper) {
		return nil, ErrInvalidCameraSetup
	}
	return []Publication{
		{DeviceID: face, Role: SemanticFace, Width: 1280, Height: 720},
		// Worksheets need the higher resolution.
		{DeviceID: paper, Role: SemanticPaper, Width: 1920, Height: 1080},
	}, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
