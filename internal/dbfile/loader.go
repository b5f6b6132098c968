package dbfile

import (
	"os"

	"github.com/alexmihai1804/autowatering/internal/apperr"
)

// PlantDB is the loaded, heap-resident contents of plants.db.
// Accessors are index-based: Plants[id] is plant id's record.
type PlantDB struct {
	Header Header
	Plants []Plant
}

// ByIndex returns the plant at the given id, or INVALID_DATA if the id
// is out of range.
func (d *PlantDB) ByIndex(id int) (Plant, error) {
	if id < 0 || id >= len(d.Plants) {
		return Plant{}, apperr.Newf(apperr.InvalidData, "plant id %d out of range [0,%d)", id, len(d.Plants))
	}
	return d.Plants[id], nil
}

// SoilDB is the loaded contents of soils.db, accessed by id.
type SoilDB struct {
	Header Header
	byID   map[uint16]Soil
}

func (d *SoilDB) ByID(id uint16) (Soil, error) {
	s, ok := d.byID[id]
	if !ok {
		return Soil{}, apperr.Newf(apperr.InvalidData, "soil id %d not found", id)
	}
	return s, nil
}

// IrrigationDB is the loaded contents of irrigation.db, accessed by id.
type IrrigationDB struct {
	Header Header
	byID   map[uint16]IrrigationMethod
}

func (d *IrrigationDB) ByID(id uint16) (IrrigationMethod, error) {
	m, ok := d.byID[id]
	if !ok {
		return IrrigationMethod{}, apperr.Newf(apperr.InvalidData, "irrigation method id %d not found", id)
	}
	return m, nil
}

func loadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrapf(err, apperr.Storage, "read %s", path)
	}
	return data, nil
}

// LoadPlantDB loads and validates plants.db.
func LoadPlantDB(path string) (*PlantDB, ValidationError, error) {
	data, err := loadFile(path)
	if err != nil {
		return nil, ValidationInvalid, err
	}
	h, verr, err := Validate(data, MagicPlants, PlantRecordSize)
	if err != nil {
		return nil, verr, err
	}
	plants := make([]Plant, h.RecordCount)
	for i := range plants {
		off := HeaderSize + i*PlantRecordSize
		plants[i] = DecodePlant(data[off : off+PlantRecordSize])
	}
	return &PlantDB{Header: h, Plants: plants}, verr, nil
}

// LoadSoilDB loads and validates soils.db.
func LoadSoilDB(path string) (*SoilDB, ValidationError, error) {
	data, err := loadFile(path)
	if err != nil {
		return nil, ValidationInvalid, err
	}
	h, verr, err := Validate(data, MagicSoils, SoilRecordSize)
	if err != nil {
		return nil, verr, err
	}
	byID := make(map[uint16]Soil, h.RecordCount)
	for i := 0; i < int(h.RecordCount); i++ {
		off := HeaderSize + i*SoilRecordSize
		s := DecodeSoil(data[off : off+SoilRecordSize])
		byID[s.ID] = s
	}
	return &SoilDB{Header: h, byID: byID}, verr, nil
}

// LoadIrrigationDB loads and validates irrigation.db.
func LoadIrrigationDB(path string) (*IrrigationDB, ValidationError, error) {
	data, err := loadFile(path)
	if err != nil {
		return nil, ValidationInvalid, err
	}
	h, verr, err := Validate(data, MagicIrrigation, IrrigationMethodRecordSize)
	if err != nil {
		return nil, verr, err
	}
	byID := make(map[uint16]IrrigationMethod, h.RecordCount)
	for i := 0; i < int(h.RecordCount); i++ {
		off := HeaderSize + i*IrrigationMethodRecordSize
		m := DecodeIrrigationMethod(data[off : off+IrrigationMethodRecordSize])
		byID[m.ID] = m
	}
	return &IrrigationDB{Header: h, byID: byID}, verr, nil
}

// EncodeFile assembles a full file (header + records) from a slice of
// already-encoded records, computing the CRC32 the same way Validate
// checks it. Used by the seed-data generator and by tests.
func EncodeFile(magic [4]byte, version uint16, records [][]byte) []byte {
	body := make([]byte, 0, len(records)*len(records[0]))
	for _, r := range records {
		body = append(body, r...)
	}
	h := Header{
		Magic:       magic,
		Version:     version,
		RecordCount: uint16(len(records)),
		RecordSize:  uint16(len(records[0])),
		CRC32:       CRC32(body),
	}
	return append(EncodeHeader(h), body...)
}
