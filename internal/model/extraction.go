package model

// PhotoAngle classifies which view of the vehicle a photo shows.
type PhotoAngle string

const (
	AngleFront    PhotoAngle = "front"
	AngleRear     PhotoAngle = "rear"
	AngleLeft     PhotoAngle = "left"
	AngleRight    PhotoAngle = "right"
	AngleInterior PhotoAngle = "interior"
	AngleOdometer PhotoAngle = "odometer"
	AngleVIN      PhotoAngle = "vin"
	AngleDamage   PhotoAngle = "damage"
	AngleUnknown  PhotoAngle = "unknown"
)

// RequiredAngles are the six views every complete submission must cover.
var RequiredAngles = []PhotoAngle{
	AngleFront, AngleRear, AngleLeft, AngleRight, AngleInterior, AngleOdometer,
}

// Valid reports whether a is one of the known angle values.
func (a PhotoAngle) Valid() bool {
	switch a {
	case AngleFront, AngleRear, AngleLeft, AngleRight, AngleInterior,
		AngleOdometer, AngleVIN, AngleDamage, AngleUnknown:
		return true
	}
	return false
}

// OdometerUnit is the unit an odometer reading was reported in.
type OdometerUnit string

const (
	UnitMiles OdometerUnit = "miles"
	UnitKM    OdometerUnit = "km"
)

// AngleReading is the vision model's angle classification for one photo.
type AngleReading struct {
	Angle      PhotoAngle `json:"angle"`
	Confidence float64    `json:"confidence"`
}

// OdometerReading is an extracted odometer value. Value is nil when the
// photo shows no readable odometer.
type OdometerReading struct {
	Value      *float64     `json:"value"`
	Unit       OdometerUnit `json:"unit,omitempty"`
	Confidence float64      `json:"confidence"`
}

// VINReading is an extracted VIN string. Text is empty when no VIN is visible.
type VINReading struct {
	Text       string  `json:"text,omitempty"`
	Confidence float64 `json:"confidence"`
}

// DamageObservation describes one damaged area found in a photo.
type DamageObservation struct {
	Description string  `json:"description"`
	Severity    string  `json:"severity"`
	Confidence  float64 `json:"confidence"`
}

// Extraction is the structured payload produced for a single photo.
type Extraction struct {
	PhotoAngle AngleReading        `json:"photo_angle"`
	Odometer   OdometerReading     `json:"odometer"`
	VIN        VINReading          `json:"vin"`
	Damage     []DamageObservation `json:"damage"`
}

// PhotoExtraction is the immutable per-photo result of the vision validator.
// A record with ValidationError set carries zero confidence everywhere and
// contributes nothing to scoring.
type PhotoExtraction struct {
	PhotoID              string     `json:"photo_id"`
	Extraction           Extraction `json:"extraction"`
	PlausibilityWarnings []string   `json:"plausibility_warnings,omitempty"`
	ValidationError      string     `json:"validation_error,omitempty"`
}

// DegradedExtraction builds the zero-confidence record returned when the
// vision capability could not produce a schema-valid extraction.
func DegradedExtraction(photoID, validationErr string) PhotoExtraction {
	return PhotoExtraction{
		PhotoID: photoID,
		Extraction: Extraction{
			PhotoAngle: AngleReading{Angle: AngleUnknown, Confidence: 0},
			Odometer:   OdometerReading{Value: nil, Confidence: 0},
			VIN:        VINReading{Confidence: 0},
			Damage:     []DamageObservation{},
		},
		ValidationError: validationErr,
	}
}
