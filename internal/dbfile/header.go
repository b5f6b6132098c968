// Package dbfile implements the packed, CRC-protected reference tables
// of spec §4.C / §6: plants.db, soils.db and irrigation.db on the flash
// filesystem mounted at /db. Loading validates magic, version,
// record-size and a CRC32 over the record body before any record is
// handed to a caller.
package dbfile

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/alexmihai1804/autowatering/internal/apperr"
)

// HeaderSize is the fixed 24-byte header from spec §6.
const HeaderSize = 24

// Magic values, exactly 4 bytes each with no NUL terminator.
var (
	MagicPlants     = [4]byte{'P', 'L', 'A', 'N'}
	MagicSoils      = [4]byte{'S', 'O', 'I', 'L'}
	MagicIrrigation = [4]byte{'I', 'R', 'R', 'G'}
)

// CurrentVersion is the only version this loader writes; any other
// version on disk, older or newer, is accepted with a warning
// (VERSION_MISMATCH).
const CurrentVersion = 1

// Header is the 24-byte little-endian file header from spec §6.
type Header struct {
	Magic       [4]byte
	Version     uint16
	RecordCount uint16
	RecordSize  uint16
	Reserved1   uint16
	CRC32       uint32
	Reserved2   uint64
}

// ParseHeader decodes the first HeaderSize bytes of data.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, apperr.New(apperr.InvalidData, "file shorter than header")
	}
	var h Header
	copy(h.Magic[:], data[0:4])
	h.Version = binary.LittleEndian.Uint16(data[4:6])
	h.RecordCount = binary.LittleEndian.Uint16(data[6:8])
	h.RecordSize = binary.LittleEndian.Uint16(data[8:10])
	h.Reserved1 = binary.LittleEndian.Uint16(data[10:12])
	h.CRC32 = binary.LittleEndian.Uint32(data[12:16])
	h.Reserved2 = binary.LittleEndian.Uint64(data[16:24])
	return h, nil
}

// EncodeHeader renders h back to its 24-byte wire form, used by tests
// and by the seed-data generator.
func EncodeHeader(h Header) []byte {
	out := make([]byte, HeaderSize)
	copy(out[0:4], h.Magic[:])
	binary.LittleEndian.PutUint16(out[4:6], h.Version)
	binary.LittleEndian.PutUint16(out[6:8], h.RecordCount)
	binary.LittleEndian.PutUint16(out[8:10], h.RecordSize)
	binary.LittleEndian.PutUint16(out[10:12], h.Reserved1)
	binary.LittleEndian.PutUint32(out[12:16], h.CRC32)
	binary.LittleEndian.PutUint64(out[16:24], h.Reserved2)
	return out
}

// CRC32 computes the spec's CRC — the standard reversed polynomial
// 0xEDB88320, which is exactly Go's crc32.IEEE table, over the record
// body only (never the header).
func CRC32(recordBytes []byte) uint32 {
	return crc32.ChecksumIEEE(recordBytes)
}

// ValidationError distinguishes the three outcomes spec §4.C names for
// a header mismatch.
type ValidationError int

const (
	ValidationOK ValidationError = iota
	ValidationInvalid
	ValidationCorrupt
	ValidationVersionMismatch
)

// Validate checks magic, version, record-size/count and the CRC of a
// full file (header + records) against an expected magic and record
// size. A VERSION_MISMATCH is reported but does not prevent loading
// (spec: "warning only").
func Validate(data []byte, expectedMagic [4]byte, expectedRecordSize uint16) (Header, ValidationError, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return Header{}, ValidationInvalid, err
	}
	if h.Magic != expectedMagic {
		return h, ValidationInvalid, apperr.New(apperr.InvalidData, "bad magic")
	}
	if h.RecordCount == 0 {
		return h, ValidationInvalid, apperr.New(apperr.InvalidData, "record_count must be > 0")
	}
	if h.RecordSize != expectedRecordSize {
		return h, ValidationInvalid, apperr.Newf(apperr.InvalidData,
			"record_size %d does not match expected %d", h.RecordSize, expectedRecordSize)
	}

	wantLen := HeaderSize + int(h.RecordCount)*int(h.RecordSize)
	if len(data) < wantLen {
		return h, ValidationCorrupt, apperr.New(apperr.DataCorrupt, "file truncated before last record")
	}

	body := data[HeaderSize:wantLen]
	if CRC32(body) != h.CRC32 {
		return h, ValidationCorrupt, apperr.New(apperr.DataCorrupt, "crc32 mismatch")
	}

	verr := ValidationOK
	if h.Version != CurrentVersion {
		verr = ValidationVersionMismatch
	}
	return h, verr, nil
}
