package vision

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/appraisal-precheck/internal/model"
)

// envelope is the wire shape the vision model must return for one photo.
type envelope struct {
	PhotoID    string           `json:"photo_id"`
	Extraction model.Extraction `json:"extraction"`
}

// parseEnvelope decodes and validates a raw model response. The returned
// error text doubles as repair-prompt context, so it names every violated
// constraint.
func parseEnvelope(raw string) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal([]byte(stripFences(raw)), &env); err != nil {
		return nil, eris.Wrap(err, "vision: decode response")
	}

	var problems []string
	ex := &env.Extraction

	if !ex.PhotoAngle.Angle.Valid() {
		problems = append(problems, fmt.Sprintf("photo_angle.angle %q is not a known angle", ex.PhotoAngle.Angle))
	}
	if bad(ex.PhotoAngle.Confidence) {
		problems = append(problems, "photo_angle.confidence must be between 0 and 1")
	}
	if bad(ex.Odometer.Confidence) {
		problems = append(problems, "odometer.confidence must be between 0 and 1")
	}
	if ex.Odometer.Unit != "" && ex.Odometer.Unit != model.UnitMiles && ex.Odometer.Unit != model.UnitKM {
		problems = append(problems, fmt.Sprintf("odometer.unit %q must be miles or km", ex.Odometer.Unit))
	}
	if bad(ex.VIN.Confidence) {
		problems = append(problems, "vin.confidence must be between 0 and 1")
	}
	for i, d := range ex.Damage {
		if d.Description == "" {
			problems = append(problems, fmt.Sprintf("damage[%d].description must not be empty", i))
		}
		if bad(d.Confidence) {
			problems = append(problems, fmt.Sprintf("damage[%d].confidence must be between 0 and 1", i))
		}
	}

	if len(problems) > 0 {
		return nil, eris.New("vision: schema validation: " + strings.Join(problems, "; "))
	}

	if ex.Damage == nil {
		ex.Damage = []model.DamageObservation{}
	}
	return &env, nil
}

func bad(conf float64) bool { return conf < 0 || conf > 1 }

// stripFences removes a surrounding markdown code fence if the model added
// one despite the prompt.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
