package parse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid is wrapped by every parse failure so callers can answer 400.
var ErrInvalid = errors.New("invalid argument")

var (
	phoneRe  = regexp.MustCompile(`^\+?\d{7,15}$`)
	validate = validator.New()
)

func invalid(field, raw string) error {
	return fmt.Errorf("%w %s: %q", ErrInvalid, field, raw)
}

// ID parses a positive numeric identifier such as a subscriber id or order number.
func ID(field, raw string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n <= 0 {
		return 0, invalid(field, raw)
	}
	return n, nil
}

// ConfirmationCode parses a 4-digit confirmation code.
func ConfirmationCode(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1000 || n > 9999 {
		return 0, invalid("confirmation code", raw)
	}
	return n, nil
}

// DateTime combines a "2006-01-02" date and a "15:04" or "15:04:05" time of
// day into an instant in loc.
func DateTime(date, clock string, loc *time.Location) (time.Time, error) {
	date, clock = strings.TrimSpace(date), strings.TrimSpace(clock)
	layout := "2006-01-02 15:04:05"
	if strings.Count(clock, ":") == 1 {
		layout = "2006-01-02 15:04"
	}
	t, err := time.ParseInLocation(layout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, invalid("date/time", date+" "+clock)
	}
	return t, nil
}

// Month accepts 1-12 (with or without a leading zero) or an English month
// name or its three-letter abbreviation.
func Month(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 || n > 12 {
			return 0, invalid("month", raw)
		}
		return n, nil
	}
	s = strings.ToLower(s)
	if len(s) >= 3 {
		for m := time.January; m <= time.December; m++ {
			name := strings.ToLower(m.String())
			if s == name || s == name[:3] {
				return int(m), nil
			}
		}
	}
	return 0, invalid("month", raw)
}

// Year parses a four-digit year.
func Year(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1970 || n > 9999 {
		return 0, invalid("year", raw)
	}
	return n, nil
}

// Email validates a bare address and returns it lower-cased.
func Email(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if err := validate.Var(s, "required,email"); err != nil {
		return "", invalid("email", raw)
	}
	return strings.ToLower(s), nil
}

// Phone accepts 7 to 15 digits with an optional leading plus. Spaces and
// dashes are stripped first.
func Phone(raw string) (string, error) {
	s := strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(raw))
	if !phoneRe.MatchString(s) {
		return "", invalid("phone", raw)
	}
	return s, nil
}

// Flag reads an optional boolean; empty means false.
func Flag(raw string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && b
}
