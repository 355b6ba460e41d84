package rtc

import (
	"errors"
	"testing"

	"github.com/pion/webrtc/v3"
)

func TestOpenIsBestEffort(t *testing.T) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("NewPeerConnection() error = %v", err)
	}
	defer pc.Close()

	ch, err := Open(pc, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if ch.Label() != AnnotationLabel {
		t.Fatalf("Label() = %q", ch.Label())
	}
	if ch.dc.Ordered() {
		t.Fatalf("Ordered() = true, want false")
	}
	if mr := ch.dc.MaxRetransmits(); mr == nil || *mr != 0 {
		t.Fatalf("MaxRetransmits() = %v, want 0", mr)
	}
	if err := ch.Send([]byte(`{"type":"clear","trackSid":"t"}`)); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("Send() before negotiation error = %v, want ErrNotOpen", err)
	}
}
