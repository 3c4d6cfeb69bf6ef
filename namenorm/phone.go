// ABOUTME: Phone number normalization to E.164 and min-match keys
// ABOUTME: Min-match compares the trailing digits so formatting and country prefixes do not matter
package namenorm

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
	"golang.org/x/text/language"
)

// MinMatchLength is how many trailing digits two numbers must share to match.
const MinMatchLength = 7

// NormalizePhone formats number as E.164. region is the ISO 3166 region used
// for numbers written without a country code. Numbers that cannot be parsed,
// or that are too short to be a subscriber number, keep their digits and a
// leading '+'.
func NormalizePhone(number, region string) string {
	digits := phoneDigits(number)
	if strings.TrimPrefix(digits, "+") == "" {
		return ""
	}
	num, err := phonenumbers.Parse(number, strings.ToUpper(region))
	if err != nil || !phonenumbers.IsPossibleNumber(num) {
		return digits
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

// MinMatch returns the last MinMatchLength digits of number, or all digits
// when there are fewer. Numbers with no digits yield "".
func MinMatch(number string) string {
	digits := strings.TrimPrefix(phoneDigits(number), "+")
	if len(digits) > MinMatchLength {
		digits = digits[len(digits)-MinMatchLength:]
	}
	return digits
}

// RegionForLocale returns the region of a locale such as "en-US", or "" when
// the locale names none and none can be guessed.
func RegionForLocale(locale string) string {
	tag, err := language.Parse(locale)
	if err != nil {
		return ""
	}
	region, conf := tag.Region()
	if conf == language.No {
		return ""
	}
	return region.String()
}

func phoneDigits(number string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(number) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}
