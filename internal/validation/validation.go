package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/kjstillabower/weather-monitor/internal/models"
)

// ErrLocationNameEmpty is returned when the name is empty or whitespace-only after trim.
var ErrLocationNameEmpty = errors.New("location name is required")

// ErrLocationNameTooLong is returned when the name exceeds MaxNameLength runes.
var ErrLocationNameTooLong = errors.New("location name too long")

// ErrLocationNameInvalidChars is returned when the name contains disallowed characters.
var ErrLocationNameInvalidChars = errors.New("location name contains invalid characters")

// ErrCoordinatesOutOfRange is returned when latitude or longitude is outside its valid range.
var ErrCoordinatesOutOfRange = errors.New("coordinates out of range")

// MaxNameLength bounds location names in runes.
const MaxNameLength = 100

var validate = validator.New()

// ValidateLocation checks the struct tags on models.Location (name required,
// latitude in [-90, 90], longitude in [-180, 180]) and restricts the name to
// letters (Unicode), digits, space, comma, hyphen, period and parentheses.
func ValidateLocation(loc models.Location) error {
	name := strings.TrimSpace(loc.Name)
	if name == "" {
		return ErrLocationNameEmpty
	}
	if err := validate.Struct(loc); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed %q", ErrCoordinatesOutOfRange, verrs[0].Field(), verrs[0].Tag())
		}
		return err
	}
	r := []rune(name)
	if len(r) > MaxNameLength {
		return ErrLocationNameTooLong
	}
	for _, c := range r {
		if !isAllowedNameRune(c) {
			return ErrLocationNameInvalidChars
		}
	}
	return nil
}

// ValidateLocations validates every location and rejects duplicate names.
func ValidateLocations(locs []models.Location) error {
	seen := make(map[string]struct{}, len(locs))
	for i, loc := range locs {
		if err := ValidateLocation(loc); err != nil {
			return fmt.Errorf("location %d (%q): %w", i, loc.Name, err)
		}
		key := strings.ToLower(strings.TrimSpace(loc.Name))
		if _, dup := seen[key]; dup {
			return fmt.Errorf("location %d: duplicate name %q", i, loc.Name)
		}
		seen[key] = struct{}{}
	}
	return nil
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '(', ')':
		return true
	}
	return false
}
