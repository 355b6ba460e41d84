package rtc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/pion/webrtc/v3"

	"github.com/tutorlink/tutorlink/internal/identity"
	"github.com/tutorlink/tutorlink/internal/logging"
	"github.com/tutorlink/tutorlink/internal/room"
	"github.com/tutorlink/tutorlink/internal/tracks"
)

var _ room.MediaConnection = (*Link)(nil)

var ErrUnknownTrack = errors.New("track not published on this link")

// Link adapts a peer connection to room.MediaConnection. Streams are named
// after the publishing participant ("PROF-7") and track ids carry kind and
// publish order ("camera-1", "screen-0"). Local publications are reported
// with the same stream id the peer derives, so both sides lay out alike.
type Link struct {
	pc  *webrtc.PeerConnection
	log *logging.Logger

	events chan room.Event
	done   chan struct{}
	once   sync.Once

	mu     sync.RWMutex
	dc     *DataChannel
	locals map[string]localTrack
}

type localTrack struct {
	track  tracks.Track
	sender *webrtc.RTPSender
}

// NewLink opens the annotation channel on pc and starts translating its
// callbacks into room events.
func NewLink(pc *webrtc.PeerConnection, log *logging.Logger) (*Link, error) {
	if log == nil {
		log = logging.Nop()
	}
	l := &Link{
		pc:     pc,
		log:    log.Component("link"),
		events: make(chan room.Event, 64),
		done:   make(chan struct{}),
		locals: make(map[string]localTrack),
	}
	dc, err := Open(pc, log)
	if err != nil {
		return nil, err
	}
	l.adopt(dc)

	pc.OnDataChannel(func(remote *webrtc.DataChannel) {
		if remote.Label() == AnnotationLabel {
			l.adopt(Wrap(remote, log))
		}
	})
	pc.OnTrack(func(tr *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		t, err := ParseTrack(tr.StreamID(), tr.ID())
		if err != nil {
			l.log.Debug().Err(err).Str("stream", tr.StreamID()).Msg("ignored remote track")
			return
		}
		l.emit(room.Event{Kind: room.EventTrackPublished, Track: t})
		go l.drain(tr, t)
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch {
		case terminalState(s):
			l.emit(room.Event{Kind: room.EventDisconnected, Err: fmt.Errorf("peer connection %s", s)})
		case s == webrtc.PeerConnectionStateDisconnected:
			l.log.Warn().Msg("peer connection interrupted, waiting for ICE to recover")
		}
	})
	return l, nil
}

// terminalState reports whether the connection cannot come back on its own.
// Disconnected is not terminal: ICE may still recover.
func terminalState(s webrtc.PeerConnectionState) bool {
	return s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed
}

// NewLocalTrack creates a VP8 sample track named the way ParseTrack expects.
func NewLocalTrack(participant string, kind tracks.Kind, seq int) (*webrtc.TrackLocalStaticSample, error) {
	return webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		fmt.Sprintf("%s-%d", kind, seq),
		participant,
	)
}

// Publish adds a local track to the connection and reports it as published.
func (l *Link) Publish(local webrtc.TrackLocal) (tracks.Track, error) {
	t, err := ParseTrack(local.StreamID(), local.ID())
	if err != nil {
		return tracks.Track{}, err
	}
	sender, err := l.pc.AddTrack(local)
	if err != nil {
		return tracks.Track{}, fmt.Errorf("add track %s: %w", t.StreamID, err)
	}
	// Read incoming RTCP packets
	go func() {
		rtcpBuf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(rtcpBuf); err != nil {
				return
			}
		}
	}()
	l.mu.Lock()
	l.locals[t.StreamID] = localTrack{track: t, sender: sender}
	l.mu.Unlock()

	l.log.Debug().Str("track", t.StreamID).Msg("published local track")
	l.emit(room.Event{Kind: room.EventTrackPublished, Track: t})
	return t, nil
}

// Unpublish removes a track added by Publish.
func (l *Link) Unpublish(streamID string) error {
	l.mu.Lock()
	lt, ok := l.locals[streamID]
	delete(l.locals, streamID)
	l.mu.Unlock()
	if !ok {
		return ErrUnknownTrack
	}
	if err := l.pc.RemoveTrack(lt.sender); err != nil {
		return fmt.Errorf("remove track %s: %w", streamID, err)
	}
	l.emit(room.Event{Kind: room.EventTrackUnpublished, Track: lt.track})
	return nil
}

func (l *Link) adopt(dc *DataChannel) {
	dc.OnMessage(func(data []byte) {
		l.emit(room.Event{Kind: room.EventData, Data: data})
	})
	l.mu.Lock()
	l.dc = dc
	l.mu.Unlock()
}

// drain consumes RTP until the remote track ends, then reports it gone.
func (l *Link) drain(tr *webrtc.TrackRemote, t tracks.Track) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := tr.Read(buf); err != nil {
			l.emit(room.Event{Kind: room.EventTrackUnpublished, Track: t})
			return
		}
	}
}

func (l *Link) emit(ev room.Event) {
	select {
	case l.events <- ev:
	case <-l.done:
	}
}

func (l *Link) Events() <-chan room.Event { return l.events }

func (l *Link) Send(data []byte) error {
	l.mu.RLock()
	dc := l.dc
	l.mu.RUnlock()
	if dc == nil {
		return ErrNotOpen
	}
	return dc.Send(data)
}

func (l *Link) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.pc.Close()
	})
	return err
}

// ParseTrack derives track metadata from the stream and track ids.
func ParseTrack(streamID, trackID string) (tracks.Track, error) {
	role, _, err := identity.Parse(streamID)
	if err != nil {
		return tracks.Track{}, err
	}
	kindPart, seqPart, ok := strings.Cut(trackID, "-")
	if !ok {
		return tracks.Track{}, fmt.Errorf("track id %q: missing sequence", trackID)
	}
	seq, err := strconv.Atoi(seqPart)
	if err != nil || seq < 0 {
		return tracks.Track{}, fmt.Errorf("track id %q: bad sequence", trackID)
	}
	t := tracks.Track{
		Participant: streamID,
		Kind:        tracks.Kind(kindPart),
		Sequence:    seq,
		StreamID:    streamID + "/" + trackID,
	}
	switch t.Kind {
	case tracks.KindCamera, tracks.KindScreen:
	default:
		return tracks.Track{}, fmt.Errorf("track id %q: unknown kind", trackID)
	}
	t.Role = tracks.RoleLearner
	if role == identity.RoleTutor {
		t.Role = tracks.RoleTutor
	}
	return t, nil
}
