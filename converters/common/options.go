package common

import (
	"strings"
)

var candidateDelimiters = []rune{',', '\t', ';', '|'}

// DetectDelimiter guesses the field separator of a delimited text line by
// picking the candidate that occurs most often. Ties go to the earlier
// candidate and an empty line defaults to a comma.
func DetectDelimiter(line string) rune {
	if line == "" {
		return ','
	}

	maxCount := -1
	winner := ','
	for _, delim := range candidateDelimiters {
		count := strings.Count(line, string(delim))
		if count > maxCount {
			maxCount = count
			winner = delim
		}
	}
	return winner
}
