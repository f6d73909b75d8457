package schema

// GeoReading is a position that passed the accuracy gate. It is produced once per capture
// attempt and handed to the submission flow as the `location` field of a request.
type GeoReading struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
	Accuracy  float64 `json:"accuracy"`
}
