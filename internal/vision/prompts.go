package vision

const extractionPrompt = `You are a vision assistant for auto appraisals.
Analyze the photo and extract vehicle information.

For photo angle classification, use one of: "front", "rear", "left", "right", "interior", "odometer", "vin", "damage", or "unknown"

- "front": Front view of the vehicle (showing front bumper, grille, headlights)
- "rear": Rear view of the vehicle (showing rear bumper, taillights, trunk)
- "left": Left side view of the vehicle (driver's side)
- "right": Right side view of the vehicle (passenger's side)
- "interior": Interior view (dashboard, seats, interior features)
- "odometer": Close-up photo of the odometer/dashboard showing mileage
- "vin": Close-up photo of the VIN plate/sticker (usually on dashboard or door jamb)
- "damage": Close-up photo specifically showing damage to the vehicle
- "unknown": If the angle cannot be determined

IMPORTANT: Return ONLY valid JSON matching this EXACT structure:
{
  "photo_id": "the-photo-id-provided",
  "extraction": {
    "photo_angle": {
      "angle": "front|rear|left|right|interior|odometer|vin|damage|unknown",
      "confidence": 0.0-1.0
    },
    "odometer": {
      "value": null or number,
      "unit": null or "miles|km",
      "confidence": 0.0-1.0
    },
    "vin": {
      "text": null or "VIN string",
      "confidence": 0.0-1.0
    },
    "damage": [
      {"description": "damage description", "severity": "minor|moderate|severe", "confidence": 0.0-1.0}
    ]
  }
}

If you don't find odometer/VIN/damage, set those fields to null or empty array. If uncertain, set confidence < 0.7.`

const repairPromptFmt = `The previous response had validation errors: %s

Please fix the JSON to match this EXACT structure:
{
  "photo_id": "string",
  "extraction": {
    "photo_angle": {"angle": "front|rear|left|right|interior|odometer|vin|damage|unknown", "confidence": 0.0-1.0},
    "odometer": {"value": null or number, "unit": null or "miles|km", "confidence": 0.0-1.0},
    "vin": {"text": null or "VIN string", "confidence": 0.0-1.0},
    "damage": [list of {"description": "string", "severity": "string", "confidence": 0.0-1.0}]
  }
}

Return only valid JSON matching this structure.`
