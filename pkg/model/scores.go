package model

import "hash/fnv"

// Popularity and difficulty are stable pseudo-random labels assigned once at
// keyword creation. They are derived deterministically from the keyword text
// so that the same keyword always receives the same scores; this stands in
// for a real ASO metrics provider.
//
// Scores are in [1,100]; zero is reserved so that records written before
// these fields existed can be recognised and backfilled on decode.

// PopularityScore returns the popularity label for a keyword text.
func PopularityScore(text string) int {
	return seededScore("popularity:" + NormalizeKeyword(text))
}

// DifficultyScore returns the difficulty label for a keyword text.
func DifficultyScore(text string) int {
	return seededScore("difficulty:" + NormalizeKeyword(text))
}

func seededScore(seed string) int {
	h := fnv.New32a()
	h.Write([]byte(seed))
	return int(h.Sum32()%100) + 1
}
