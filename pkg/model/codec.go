package model

import (
	"encoding/json"
	"fmt"
)

// DefaultCountry is applied to records written before keywords carried a
// country code.
const DefaultCountry = "us"

// Encode serializes a collection for storage.
func Encode(c Collection) ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode collection: %w", err)
	}
	return data, nil
}

// Decode deserializes a stored collection and applies defaults for fields
// that older records predate: missing keyword country, zero
// popularity/difficulty scores, and missing identifiers. A decode error
// means the payload is unusable as a whole; callers treat that as "no data".
func Decode(data []byte) (Collection, error) {
	var c Collection
	if err := json.Unmarshal(data, &c); err != nil {
		return Collection{}, fmt.Errorf("decode collection: %w", err)
	}
	applyDefaults(&c)
	return c, nil
}

func applyDefaults(c *Collection) {
	for i := range c.Apps {
		app := &c.Apps[i]
		if app.ID == "" {
			app.ID = NewID()
		}
		if app.LastUpdated.IsZero() {
			app.LastUpdated = app.DateAdded
		}
		for j := range app.Keywords {
			kw := &app.Keywords[j]
			if kw.ID == "" {
				kw.ID = NewID()
			}
			kw.Text = NormalizeKeyword(kw.Text)
			if kw.Country == "" {
				kw.Country = DefaultCountry
			}
			if kw.Popularity == 0 {
				kw.Popularity = PopularityScore(kw.Text)
			}
			if kw.Difficulty == 0 {
				kw.Difficulty = DifficultyScore(kw.Text)
			}
			for r := range kw.Rankings {
				if kw.Rankings[r].ID == "" {
					kw.Rankings[r].ID = NewID()
				}
			}
		}
		for r := range app.Ratings {
			if app.Ratings[r].ID == "" {
				app.Ratings[r].ID = NewID()
			}
		}
	}
}
