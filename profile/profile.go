package profile

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"
)

// Enumerations accepted by the create form.
var (
	DatingPurposes = []string{"fun", "serious", "marriage"}
	Educations     = []string{"doctorate", "masters", "bachelors", "hnd", "college", "leaver"}
	ZodiacSigns    = []string{
		"aries", "taurus", "gemini", "cancer", "leo", "virgo",
		"libra", "scorpio", "sagittarius", "capricorn", "aquarius", "pisces",
	}
	Substances  = []string{"none", "alcohol", "cigarettes_weed", "more_stuff"}
	Frequencies = []string{"none", "lightly", "medium", "heavily"}
	Personality = []string{
		"fat_vs_short",
		"hates_pets_vs_loves_pets",
		"no_humor_vs_laughs_everything",
		"talks_self_vs_never_shares",
		"average_loyal_vs_good_disloyal",
		"social_media_vs_no_presence",
		"stay_home_vs_never_home",
		"bad_taste_vs_judges_taste",
		"mommy_vs_daddy_issues",
		"no_ambition_vs_workaholic",
		"conspiracy_vs_fake_news",
		"know_all_vs_know_nothing",
		"spends_much_vs_frugal",
		"smart_poor_vs_dumb_rich",
		"rich_unethical_vs_poor_ethical",
	}
)

// MinimumAge is the youngest age allowed to create a profile.
const MinimumAge = 18

// AssetRef points at an uploaded image asset.
type AssetRef struct {
	Ref  string `json:"_ref,omitempty"`
	Type string `json:"_type,omitempty"`
}

// Image is one gallery entry. Uploading is done by the client; only the
// reference is stored.
type Image struct {
	Type  string    `json:"_type,omitempty"`
	Key   string    `json:"_key,omitempty"`
	URL   string    `json:"url,omitempty"`
	Alt   string    `json:"alt,omitempty"`
	Asset *AssetRef `json:"asset,omitempty"`
}

// Height is feet plus inches.
type Height struct {
	Feet   int `json:"feet"`
	Inches int `json:"inches"`
}

// Poisons is the lifestyle pair.
type Poisons struct {
	Substances string `json:"substances"`
	Frequency  string `json:"frequency"`
}

// Profile is the dating profile document.
type Profile struct {
	FirstName         string   `json:"firstName"`
	LastName          string   `json:"lastName"`
	DateOfBirth       string   `json:"dateOfBirth"`
	Postcode          string   `json:"postcode"`
	DatingPurpose     string   `json:"datingPurpose"`
	Gallery           []Image  `json:"gallery"`
	AboutMe           string   `json:"aboutMe"`
	AboutYou          string   `json:"aboutYou"`
	Height            Height   `json:"height"`
	Education         string   `json:"education"`
	Work              string   `json:"work"`
	Zodiac            string   `json:"zodiac,omitempty"`
	PoisonsOfChoice   Poisons  `json:"poisonsOfChoice"`
	Interests         []string `json:"interests"`
	PersonalityChoice string   `json:"personalityChoice"`
	DontShowMe        []string `json:"dontShowMe,omitempty"`
	DealBreakers      []string `json:"dealBreakers,omitempty"`
}

// DecodeProfile reads a profile payload. Unknown fields are ignored.
func DecodeProfile(payload map[string]any) (Profile, error) {
	var p Profile
	if err := decode(payload, &p); err != nil {
		return Profile{}, err
	}
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Postcode = strings.TrimSpace(p.Postcode)
	p.Work = strings.TrimSpace(p.Work)
	return p, nil
}

// Validate checks every rule against now and returns all failures at once.
func (p Profile) Validate(now time.Time) error {
	var errs FieldErrors

	checkLen(&errs, "firstName", p.FirstName, 1, 50)
	checkLen(&errs, "lastName", p.LastName, 1, 50)

	if dob, ok := ParseDate(p.DateOfBirth); !ok {
		errs.add("dateOfBirth", "must be a date (YYYY-MM-DD)")
	} else if Age(dob, now) < MinimumAge {
		errs.add("dateOfBirth", "must be at least 18 years old")
	}

	checkLen(&errs, "postcode", p.Postcode, 3, 10)
	checkEnum(&errs, "datingPurpose", p.DatingPurpose, DatingPurposes)

	switch n := len(p.Gallery); {
	case n < 1:
		errs.add("gallery", "at least 1 image is required")
	case n > 6:
		errs.add("gallery", "maximum 6 images allowed")
	}
	for _, img := range p.Gallery {
		if img.URL == "" && (img.Asset == nil || img.Asset.Ref == "") {
			errs.add("gallery", "every image needs a url or an asset reference")
			break
		}
	}

	checkLen(&errs, "aboutMe", p.AboutMe, 10, 1000)
	checkLen(&errs, "aboutYou", p.AboutYou, 10, 1000)

	if p.Height.Feet < 3 || p.Height.Feet > 8 {
		errs.add("height.feet", "must be between 3 and 8")
	}
	if p.Height.Inches < 0 || p.Height.Inches > 11 {
		errs.add("height.inches", "must be between 0 and 11")
	}

	checkEnum(&errs, "education", p.Education, Educations)
	checkLen(&errs, "work", p.Work, 1, 100)
	if p.Zodiac != "" {
		checkEnum(&errs, "zodiac", p.Zodiac, ZodiacSigns)
	}
	checkEnum(&errs, "poisonsOfChoice.substances", p.PoisonsOfChoice.Substances, Substances)
	checkEnum(&errs, "poisonsOfChoice.frequency", p.PoisonsOfChoice.Frequency, Frequencies)

	switch n := len(p.Interests); {
	case n < 1:
		errs.add("interests", "at least 1 interest is required")
	case n > 20:
		errs.add("interests", "maximum 20 interests allowed")
	}

	checkEnum(&errs, "personalityChoice", p.PersonalityChoice, Personality)

	if len(p.DontShowMe) > 3 {
		errs.add("dontShowMe", "maximum 3 entries allowed")
	}
	if len(p.DealBreakers) > 3 {
		errs.add("dealBreakers", "maximum 3 entries allowed")
	}

	return errs.orNil()
}

// Fields returns the stored document, keyed by the JSON field names.
func (p Profile) Fields() map[string]any {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// ParseDate accepts YYYY-MM-DD and RFC 3339 timestamps.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// Age is the number of whole years between birth and now.
func Age(birth, now time.Time) int {
	age := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		age--
	}
	return age
}

func checkLen(errs *FieldErrors, field, value string, minLen, maxLen int) {
	n := utf8.RuneCountInString(value)
	switch {
	case n < minLen && minLen == 1:
		errs.add(field, "is required")
	case n < minLen:
		errs.add(field, "is too short")
	case n > maxLen:
		errs.add(field, "is too long")
	}
}

func checkEnum(errs *FieldErrors, field, value string, allowed []string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	if value == "" {
		errs.add(field, "is required")
		return
	}
	errs.add(field, "is not an allowed value")
}
