package dbfile

import "encoding/binary"

// Plant is one row of plants.db. Plants are accessed by array index
// (the index *is* plant_id, per spec §4.C "accessors are index-based
// (plants)"), so the record itself carries no id field.
type Plant struct {
	Name                string
	KcIni               float32
	KcMid               float32
	KcEnd               float32
	StageInitDays       uint16
	StageDevDays        uint16
	StageMidDays        uint16
	StageEndDays        uint16
	DepletionFraction   float32 // base MAD, plant depletion fraction
	CanopyCoverMax      float32
	ToptMinC            float32
	ToptMaxC            float32
	RootDepthMaxMM      float32
	SpacingM            float32 // plant spacing, for area-per-plant fallback
	DefaultDensityPerM2 float32
}

// PlantRecordSize is the fixed on-disk size of a Plant record.
const PlantRecordSize = 24 /*name*/ + 4*3 /*Kc*/ + 2*4 /*stage days*/ + 4*7 /*floats*/

func encodeName(dst []byte, name string) {
	b := []byte(name)
	if len(b) > len(dst) {
		b = b[:len(dst)]
	}
	for i := range dst {
		dst[i] = 0
	}
	copy(dst, b)
}

func decodeName(src []byte) string {
	n := 0
	for n < len(src) && src[n] != 0 {
		n++
	}
	return string(src[:n])
}

// Encode renders p to its PlantRecordSize-byte wire form.
func (p Plant) Encode() []byte {
	out := make([]byte, PlantRecordSize)
	encodeName(out[0:24], p.Name)
	binary.LittleEndian.PutUint32(out[24:28], float32bits(p.KcIni))
	binary.LittleEndian.PutUint32(out[28:32], float32bits(p.KcMid))
	binary.LittleEndian.PutUint32(out[32:36], float32bits(p.KcEnd))
	binary.LittleEndian.PutUint16(out[36:38], p.StageInitDays)
	binary.LittleEndian.PutUint16(out[38:40], p.StageDevDays)
	binary.LittleEndian.PutUint16(out[40:42], p.StageMidDays)
	binary.LittleEndian.PutUint16(out[42:44], p.StageEndDays)
	binary.LittleEndian.PutUint32(out[44:48], float32bits(p.DepletionFraction))
	binary.LittleEndian.PutUint32(out[48:52], float32bits(p.CanopyCoverMax))
	binary.LittleEndian.PutUint32(out[52:56], float32bits(p.ToptMinC))
	binary.LittleEndian.PutUint32(out[56:60], float32bits(p.ToptMaxC))
	binary.LittleEndian.PutUint32(out[60:64], float32bits(p.RootDepthMaxMM))
	binary.LittleEndian.PutUint32(out[64:68], float32bits(p.SpacingM))
	binary.LittleEndian.PutUint32(out[68:72], float32bits(p.DefaultDensityPerM2))
	return out
}

// DecodePlant parses a PlantRecordSize-byte record.
func DecodePlant(data []byte) Plant {
	return Plant{
		Name:                decodeName(data[0:24]),
		KcIni:               float32frombits(binary.LittleEndian.Uint32(data[24:28])),
		KcMid:               float32frombits(binary.LittleEndian.Uint32(data[28:32])),
		KcEnd:               float32frombits(binary.LittleEndian.Uint32(data[32:36])),
		StageInitDays:       binary.LittleEndian.Uint16(data[36:38]),
		StageDevDays:        binary.LittleEndian.Uint16(data[38:40]),
		StageMidDays:        binary.LittleEndian.Uint16(data[40:42]),
		StageEndDays:        binary.LittleEndian.Uint16(data[42:44]),
		DepletionFraction:   float32frombits(binary.LittleEndian.Uint32(data[44:48])),
		CanopyCoverMax:      float32frombits(binary.LittleEndian.Uint32(data[48:52])),
		ToptMinC:            float32frombits(binary.LittleEndian.Uint32(data[52:56])),
		ToptMaxC:            float32frombits(binary.LittleEndian.Uint32(data[56:60])),
		RootDepthMaxMM:      float32frombits(binary.LittleEndian.Uint32(data[60:64])),
		SpacingM:            float32frombits(binary.LittleEndian.Uint32(data[64:68])),
		DefaultDensityPerM2: float32frombits(binary.LittleEndian.Uint32(data[68:72])),
	}
}

// Soil is one row of soils.db, looked up by id.
type Soil struct {
	ID                  uint16
	Name                string
	ThetaFC             float32 // field capacity, volumetric fraction
	ThetaWP             float32 // wilting point, volumetric fraction
	InfiltrationRateMMH float32
	Texture             uint8 // 0=sand, 1=loam, 2=clay
}

// SoilRecordSize is the fixed on-disk size of a Soil record.
const SoilRecordSize = 2 /*id*/ + 20 /*name*/ + 4*3 /*floats*/ + 1 /*texture*/ + 1 /*reserved*/

func (s Soil) Encode() []byte {
	out := make([]byte, SoilRecordSize)
	binary.LittleEndian.PutUint16(out[0:2], s.ID)
	encodeName(out[2:22], s.Name)
	binary.LittleEndian.PutUint32(out[22:26], float32bits(s.ThetaFC))
	binary.LittleEndian.PutUint32(out[26:30], float32bits(s.ThetaWP))
	binary.LittleEndian.PutUint32(out[30:34], float32bits(s.InfiltrationRateMMH))
	out[34] = s.Texture
	return out
}

func DecodeSoil(data []byte) Soil {
	return Soil{
		ID:                  binary.LittleEndian.Uint16(data[0:2]),
		Name:                decodeName(data[2:22]),
		ThetaFC:             float32frombits(binary.LittleEndian.Uint32(data[22:26])),
		ThetaWP:             float32frombits(binary.LittleEndian.Uint32(data[26:30])),
		InfiltrationRateMMH: float32frombits(binary.LittleEndian.Uint32(data[30:34])),
		Texture:             data[34],
	}
}

// Texture enum values matching Soil.Texture.
const (
	TextureSand uint8 = 0
	TextureLoam uint8 = 1
	TextureClay uint8 = 2
)

// IrrigationMethod is one row of irrigation.db, looked up by id.
type IrrigationMethod struct {
	ID                      uint16
	Name                    string
	Efficiency              float32 // application efficiency, 0..1
	DistributionUniformity  float32 // DU, 0..1
	WettingFraction         float32 // [0.10, 1.00]
	FlowRateLPerHourPerM2   float32 // nominal application rate
}

// IrrigationMethodRecordSize is the fixed on-disk size of an
// IrrigationMethod record.
const IrrigationMethodRecordSize = 2 + 20 + 4*4

func (m IrrigationMethod) Encode() []byte {
	out := make([]byte, IrrigationMethodRecordSize)
	binary.LittleEndian.PutUint16(out[0:2], m.ID)
	encodeName(out[2:22], m.Name)
	binary.LittleEndian.PutUint32(out[22:26], float32bits(m.Efficiency))
	binary.LittleEndian.PutUint32(out[26:30], float32bits(m.DistributionUniformity))
	binary.LittleEndian.PutUint32(out[30:34], float32bits(m.WettingFraction))
	binary.LittleEndian.PutUint32(out[34:38], float32bits(m.FlowRateLPerHourPerM2))
	return out
}

func DecodeIrrigationMethod(data []byte) IrrigationMethod {
	return IrrigationMethod{
		ID:                     binary.LittleEndian.Uint16(data[0:2]),
		Name:                   decodeName(data[2:22]),
		Efficiency:             float32frombits(binary.LittleEndian.Uint32(data[22:26])),
		DistributionUniformity: float32frombits(binary.LittleEndian.Uint32(data[26:30])),
		WettingFraction:        float32frombits(binary.LittleEndian.Uint32(data[30:34])),
		FlowRateLPerHourPerM2:  float32frombits(binary.LittleEndian.Uint32(data[34:38])),
	}
}
