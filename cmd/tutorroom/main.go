// Command tutorroom joins a session room from the terminal: it publishes the
// local cameras, follows the layout and keeps the annotation overlay of the
// main surface, which it can write out as a PNG on exit.
package main

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/pion/webrtc/v3"
	flag "github.com/spf13/pflag"

	"github.com/tutorlink/tutorlink/internal/annotation"
	"github.com/tutorlink/tutorlink/internal/identity"
	"github.com/tutorlink/tutorlink/internal/logging"
	"github.com/tutorlink/tutorlink/internal/room"
	"github.com/tutorlink/tutorlink/internal/rtc"
	"github.com/tutorlink/tutorlink/internal/tracks"
)

func main() {
	var (
		baseURL    string
		token      string
		roomName   string
		role       string
		cameras    []string
		face       string
		paper      string
		whipURL    string
		overlayOut string
		width      int
		height     int
		debug      bool
	)
	flag.StringVar(&baseURL, "base-url", "http://127.0.0.1:8080", "tutorlink base URL")
	flag.StringVar(&token, "token", os.Getenv("TUTORLINK_TOKEN"), "account bearer token")
	flag.StringVar(&roomName, "room", "", "session room name")
	flag.StringVar(&role, "role", "learner", "tutor or learner")
	flag.StringSliceVar(&cameras, "camera", nil, "camera device ids to publish")
	flag.StringVar(&face, "face", "", "learner face camera (dual camera mode)")
	flag.StringVar(&paper, "paper", "", "learner paper camera (dual camera mode)")
	flag.StringVar(&whipURL, "whip-url", "", "media signalling endpoint (default <media url>/whip)")
	flag.StringVar(&overlayOut, "overlay-out", "", "write the main surface annotations to this PNG on exit")
	flag.IntVar(&width, "width", 1280, "rendered video width in pixels")
	flag.IntVar(&height, "height", 720, "rendered video height in pixels")
	flag.BoolVar(&debug, "debug", false, "verbose logging")
	flag.Parse()

	log := logging.NewConsole(debug, "room", false)
	if token == "" || roomName == "" {
		log.Fatal().Msg("--token and --room are required")
	}

	accountRole := identity.RoleLearner
	if role == "tutor" {
		accountRole = identity.RoleTutor
	}
	plan, err := publishPlan(accountRole, cameras, face, paper)
	if err != nil {
		log.Fatal().Err(err).Msg("camera setup")
	}

	var (
		mu       sync.Mutex
		overlays = map[string]*annotation.RasterSurface{}
	)
	ctrl := room.NewController(room.Options{
		RoomName: roomName,
		Role:     accountRole,
		Tokens:   room.HTTPTokenSource{BaseURL: baseURL, AuthToken: token},
		Connector: &rtc.Connector{
			Cameras:  plan,
			Signaler: rtc.HTTPSignaler{Endpoint: whipURL},
			OnLocalTrack: func(pub tracks.Publication, _ *webrtc.TrackLocalStaticSample) {
				log.Info().Str("device", pub.DeviceID).Str("role", string(pub.Role)).Msg("camera published")
			},
			Log: log,
		},
		Surfaces: func(streamID string) annotation.Surface {
			mu.Lock()
			defer mu.Unlock()
			s, ok := overlays[streamID]
			if !ok {
				s = annotation.NewRasterSurface(width, height)
				overlays[streamID] = s
			}
			return s
		},
		Log: log,
	})
	ctrl.OnChange(func(s room.ViewState) {
		line := fmt.Sprintf("%-10s main=%s (%s)", s.Status, s.View.MainSurface(), s.View.MainState)
		if s.Message != "" {
			line += " " + s.Message
		}
		fmt.Println(line)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	runErr := ctrl.Run(ctx)

	if overlayOut != "" {
		mu.Lock()
		s := overlays[ctrl.Annotations().Target()]
		mu.Unlock()
		if err := writeOverlay(overlayOut, s); err != nil {
			log.Error().Err(err).Msg("write overlay")
		}
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error().Err(runErr).Msg("room closed")
		os.Exit(1)
	}
}

// publishPlan orders the local cameras. Learners follow the face/paper
// setup; a tutor publishes at most one camera.
func publishPlan(role identity.Role, cameras []string, face, paper string) ([]tracks.Publication, error) {
	if len(cameras) == 0 {
		return nil, nil
	}
	if role == identity.RoleTutor {
		return []tracks.Publication{{DeviceID: cameras[0], Role: tracks.SemanticTutorCamera, Width: 1280, Height: 720}}, nil
	}
	return tracks.CameraSetup{Devices: cameras, FaceDevice: face, PaperDevice: paper}.Plan()
}

func writeOverlay(path string, s *annotation.RasterSurface) error {
	if s == nil {
		return errors.New("no annotation surface is active")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, s.Image()); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
