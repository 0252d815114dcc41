package codec

import (
	"bytes"
	"fmt"
)

// oggDemuxer extracts raw Opus packets from a stream of Ogg pages. It keeps
// any trailing partial page across Feed calls so callers can push payloads
// as they arrive off the wire rather than buffering a whole file.
type oggDemuxer struct {
	pending    []byte
	sawOpus    bool
	headersLeft int
}

const oggPageMagic = "OggS"

func newOggDemuxer() *oggDemuxer {
	// Opus-in-Ogg streams start with an OpusHead page followed by an
	// OpusTags page before any audio data page.
	return &oggDemuxer{headersLeft: 2}
}

// Feed appends data to the demuxer's buffer and returns every Opus audio
// packet fully contained in complete pages found so far.
func (d *oggDemuxer) Feed(data []byte) ([][]byte, error) {
	d.pending = append(d.pending, data...)

	var packets [][]byte
	for {
		pkt, consumed, ok, err := d.nextPage()
		if err != nil {
			return packets, err
		}
		if !ok {
			break
		}
		d.pending = d.pending[consumed:]
		if pkt != nil {
			packets = append(packets, pkt...)
		}
	}
	return packets, nil
}

// nextPage parses one Ogg page out of d.pending, returning the contained
// packets (split on segment-table boundaries), how many bytes were
// consumed, and whether a full page was available.
func (d *oggDemuxer) nextPage() (packets [][]byte, consumed int, ok bool, err error) {
	buf := d.pending
	if len(buf) < 27 {
		return nil, 0, false, nil
	}
	if !bytes.Equal(buf[0:4], []byte(oggPageMagic)) {
		// Resync: drop everything up to the next "OggS" magic (or the whole
		// buffer if there is none) and keep parsing in this same Feed.
		idx := bytes.Index(buf[1:], []byte(oggPageMagic))
		if idx < 0 {
			return nil, len(buf), true, nil
		}
		return nil, idx + 1, true, nil
	}

	segCount := int(buf[26])
	headerLen := 27 + segCount
	if len(buf) < headerLen {
		return nil, 0, false, nil
	}
	segTable := buf[27:headerLen]

	bodyLen := 0
	for _, s := range segTable {
		bodyLen += int(s)
	}
	total := headerLen + bodyLen
	if len(buf) < total {
		return nil, 0, false, nil
	}

	body := buf[headerLen:total]
	pagePackets := splitSegments(segTable, body)

	for _, pkt := range pagePackets {
		if d.headersLeft > 0 {
			// OpusHead / OpusTags: consumed as framing, not audio.
			d.headersLeft--
			continue
		}
		packets = append(packets, pkt)
	}
	return packets, total, true, nil
}

// splitSegments reassembles Ogg lacing segments into packets: a run of
// 255-byte segments continues the same packet, terminated by a segment
// shorter than 255 (including zero).
func splitSegments(segTable, body []byte) [][]byte {
	var packets [][]byte
	var cur []byte
	off := 0
	for _, s := range segTable {
		cur = append(cur, body[off:off+int(s)]...)
		off += int(s)
		if s < 255 {
			packets = append(packets, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		packets = append(packets, cur)
	}
	return packets
}

// opusHeadChannels reads the channel count out of an OpusHead packet. The
// demuxer does not call it: nextPage skips the OpusHead packet without
// checking its channel count.
func opusHeadChannels(opusHead []byte) (int, error) {
	if len(opusHead) < 19 || !bytes.Equal(opusHead[0:8], []byte("OpusHead")) {
		return 0, fmt.Errorf("codec: not an OpusHead packet")
	}
	return int(opusHead[9]), nil
}
