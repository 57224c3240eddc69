package segment

import (
	"bytes"
	"encoding/binary"
)

// Minimal Ogg encapsulation for Opus packets (RFC 3533 + RFC 7845).
// Only what the encoder needs: one BOS page with the ID header, one page
// with the comment header, then audio pages.

var oggCRCTable = makeOggCRCTable()

func makeOggCRCTable() [256]uint32 {
	var table [256]uint32
	const poly = 0x04c11db7
	for i := 0; i < 256; i++ {
		r := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if r&0x80000000 != 0 {
				r = (r << 1) ^ poly
			} else {
				r <<= 1
			}
		}
		table[i] = r
	}
	return table
}

func oggCRC(b []byte) uint32 {
	var crc uint32
	for _, v := range b {
		crc = (crc << 8) ^ oggCRCTable[byte(crc>>24)^v]
	}
	return crc
}

type oggWriter struct {
	buf    bytes.Buffer
	serial uint32
	seq    uint32
}

const (
	oggFlagContinued = 0x01
	oggFlagBOS       = 0x02
	oggFlagEOS       = 0x04
)

// writePage emits one Ogg page containing the given packets. Packets larger
// than 255*255 bytes are not supported (Opus voice packets never get close).
func (w *oggWriter) writePage(flags byte, granule uint64, packets [][]byte) {
	var lacing []byte
	var payload []byte
	for _, p := range packets {
		n := len(p)
		for n >= 255 {
			lacing = append(lacing, 255)
			n -= 255
		}
		lacing = append(lacing, byte(n))
		payload = append(payload, p...)
	}

	header := make([]byte, 27, 27+len(lacing))
	copy(header, "OggS")
	header[4] = 0 // stream structure version
	header[5] = flags
	binary.LittleEndian.PutUint64(header[6:], granule)
	binary.LittleEndian.PutUint32(header[14:], w.serial)
	binary.LittleEndian.PutUint32(header[18:], w.seq)
	// bytes 22..25 hold the CRC, filled in below
	header[26] = byte(len(lacing))
	header = append(header, lacing...)

	page := append(header, payload...)
	crc := oggCRC(page)
	binary.LittleEndian.PutUint32(page[22:], crc)

	w.buf.Write(page)
	w.seq++
}

// opusIDHeader builds the "OpusHead" identification packet for mono input
// at the given rate. preSkip follows the 3840-sample (80ms at 48k) libopus
// convention scaled down; RFC 7845 recommends the encoder delay.
func opusIDHeader(inputRate int, preSkip uint16) []byte {
	h := make([]byte, 19)
	copy(h, "OpusHead")
	h[8] = 1 // version
	h[9] = TargetChannels
	binary.LittleEndian.PutUint16(h[10:], preSkip)
	binary.LittleEndian.PutUint32(h[12:], uint32(inputRate))
	// output gain 0, mapping family 0
	return h
}

func opusCommentHeader(vendor string) []byte {
	var b bytes.Buffer
	b.WriteString("OpusTags")
	binary.Write(&b, binary.LittleEndian, uint32(len(vendor)))
	b.WriteString(vendor)
	binary.Write(&b, binary.LittleEndian, uint32(0)) // no user comments
	return b.Bytes()
}

// muxOgg wraps encoded Opus packets into a complete Ogg stream. Each packet
// is assumed to carry frameGranule samples at the 48kHz granule clock.
func muxOgg(serial uint32, inputRate int, packets [][]byte, frameGranule uint64) []byte {
	w := &oggWriter{serial: serial}
	w.writePage(oggFlagBOS, 0, [][]byte{opusIDHeader(inputRate, 312)})
	w.writePage(0, 0, [][]byte{opusCommentHeader("voicepipe")})

	// Up to 50 packets per audio page keeps lacing under the 255-entry cap.
	const perPage = 50
	granule := uint64(0)
	for i := 0; i < len(packets); i += perPage {
		end := i + perPage
		if end > len(packets) {
			end = len(packets)
		}
		granule += uint64(end-i) * frameGranule
		flags := byte(0)
		if end == len(packets) {
			flags = oggFlagEOS
		}
		w.writePage(flags, granule, packets[i:end])
	}
	return w.buf.Bytes()
}
