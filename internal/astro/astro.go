// Package astro computes zodiac facts from birth data. Everything here is
// pure table lookup; the heavyweight chart mathematics lives in an external
// service.
package astro

import (
	"errors"
	"fmt"
	"time"
)

type (
	// Sign is one of the twelve tropical zodiac signs
	Sign string

	cusp struct {
		month time.Month
		day   int
		sign  Sign
	}
)

const (
	Aries       Sign = "Aries"
	Taurus      Sign = "Taurus"
	Gemini      Sign = "Gemini"
	Cancer      Sign = "Cancer"
	Leo         Sign = "Leo"
	Virgo       Sign = "Virgo"
	Libra       Sign = "Libra"
	Scorpio     Sign = "Scorpio"
	Sagittarius Sign = "Sagittarius"
	Capricorn   Sign = "Capricorn"
	Aquarius    Sign = "Aquarius"
	Pisces      Sign = "Pisces"
)

// DateLayout is the wire format for birth dates
const DateLayout = "2006-01-02"

// ErrInvalidDate is returned when a birth date cannot be parsed
var ErrInvalidDate = errors.New("invalid birth date")

// cusps holds the first day of each sign in calendar order, starting after
// the Capricorn wrap
var cusps = []cusp{
	{time.January, 20, Aquarius},
	{time.February, 19, Pisces},
	{time.March, 21, Aries},
	{time.April, 20, Taurus},
	{time.May, 21, Gemini},
	{time.June, 21, Cancer},
	{time.July, 23, Leo},
	{time.August, 23, Virgo},
	{time.September, 23, Libra},
	{time.October, 23, Scorpio},
	{time.November, 22, Sagittarius},
	{time.December, 22, Capricorn},
}

var elements = map[Sign]string{
	Aries: "Fire", Leo: "Fire", Sagittarius: "Fire",
	Taurus: "Earth", Virgo: "Earth", Capricorn: "Earth",
	Gemini: "Air", Libra: "Air", Aquarius: "Air",
	Cancer: "Water", Scorpio: "Water", Pisces: "Water",
}

var modalities = map[Sign]string{
	Aries: "Cardinal", Cancer: "Cardinal",
	Libra: "Cardinal", Capricorn: "Cardinal",
	Taurus: "Fixed", Leo: "Fixed", Scorpio: "Fixed", Aquarius: "Fixed",
	Gemini: "Mutable", Virgo: "Mutable",
	Sagittarius: "Mutable", Pisces: "Mutable",
}

// SunSign returns the tropical sun sign for a calendar date
func SunSign(month time.Month, day int) Sign {
	sign := Capricorn
	for _, c := range cusps {
		if month > c.month || month == c.month && day >= c.day {
			sign = c.sign
		}
	}
	return sign
}

// SunSignFromDate parses a birth date in DateLayout form and returns its
// sun sign
func SunSignFromDate(date string) (Sign, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return SunSign(t.Month(), t.Day()), nil
}

// Element returns the classical element associated with a sign
func Element(s Sign) string {
	return elements[s]
}

// Modality returns the modality associated with a sign
func Modality(s Sign) string {
	return modalities[s]
}
