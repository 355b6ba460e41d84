// Package rtc wraps the WebRTC data channel that carries annotation events
// between the two participants of a session.
package rtc

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v3"

	"github.com/tutorlink/tutorlink/internal/logging"
)

const AnnotationLabel = "annotations"

var ErrNotOpen = errors.New("data channel not open")

// BestEffortInit is unordered with no retransmits: a lost stroke segment
// is cheaper than a stalled one.
func BestEffortInit() *webrtc.DataChannelInit {
	ordered := false
	var maxRetransmits uint16
	return &webrtc.DataChannelInit{Ordered: &ordered, MaxRetransmits: &maxRetransmits}
}

// DataChannel is a best-effort message pipe. It satisfies annotation.Transport.
type DataChannel struct {
	dc  *webrtc.DataChannel
	log *logging.Logger

	mu        sync.RWMutex
	onMessage func([]byte)
}

// Open creates the annotation channel on pc.
func Open(pc *webrtc.PeerConnection, log *logging.Logger) (*DataChannel, error) {
	dc, err := pc.CreateDataChannel(AnnotationLabel, BestEffortInit())
	if err != nil {
		return nil, err
	}
	return Wrap(dc, log), nil
}

// Wrap adopts a channel opened by the remote peer.
func Wrap(dc *webrtc.DataChannel, log *logging.Logger) *DataChannel {
	if log == nil {
		log = logging.Nop()
	}
	d := &DataChannel{dc: dc, log: log.Component("datachannel")}
	dc.OnOpen(func() {
		d.log.Debug().Str("label", dc.Label()).Msg("data channel opened")
	})
	dc.OnError(func(err error) {
		d.log.Error().Err(err).Str("label", dc.Label()).Msg("data channel error")
	})
	dc.OnClose(func() {
		d.log.Debug().Str("label", dc.Label()).Msg("data channel closed")
	})
	dc.OnMessage(func(m webrtc.DataChannelMessage) {
		if len(m.Data) == 0 {
			return
		}
		d.mu.RLock()
		fn := d.onMessage
		d.mu.RUnlock()
		if fn != nil {
			fn(m.Data)
		}
	})
	return d
}

func (d *DataChannel) Label() string { return d.dc.Label() }

func (d *DataChannel) Send(data []byte) error {
	if d.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrNotOpen
	}
	return d.dc.Send(data)
}

func (d *DataChannel) OnMessage(fn func([]byte)) {
	d.mu.Lock()
	d.onMessage = fn
	d.mu.Unlock()
}

func (d *DataChannel) Close() error { return d.dc.Close() }
