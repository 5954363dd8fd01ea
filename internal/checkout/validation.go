package checkout

import (
	"regexp"
	"sort"
	"strings"

	"github.com/jogardn/craft-storefront/pkg/models"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^[\+]?[1-9][\d]{0,15}$`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// ValidationError lists the form fields that need correcting, keyed by the
// field's JSON name.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return "invalid customer details: " + strings.Join(names, ", ")
}

// Validate trims the form and checks required fields, the email address and
// the phone number. The trimmed form is returned even when invalid.
func Validate(info models.CustomerInfo) (models.CustomerInfo, error) {
	info.Name = strings.TrimSpace(info.Name)
	info.Email = strings.TrimSpace(info.Email)
	info.Phone = strings.TrimSpace(info.Phone)
	info.Address = strings.TrimSpace(info.Address)
	info.City = strings.TrimSpace(info.City)
	info.PostalCode = strings.TrimSpace(info.PostalCode)
	info.Notes = strings.TrimSpace(info.Notes)

	fields := map[string]string{}
	required := []struct {
		name  string
		value string
		label string
	}{
		{"name", info.Name, "Name"},
		{"email", info.Email, "Email"},
		{"phone", info.Phone, "Phone"},
		{"address", info.Address, "Address"},
		{"city", info.City, "City"},
	}
	for _, r := range required {
		if r.value == "" {
			fields[r.name] = r.label + " is required"
		}
	}

	if _, missing := fields["email"]; !missing && !emailPattern.MatchString(info.Email) {
		fields["email"] = "Please enter a valid email address"
	}
	if _, missing := fields["phone"]; !missing && !phonePattern.MatchString(whitespace.ReplaceAllString(info.Phone, "")) {
		fields["phone"] = "Please enter a valid phone number"
	}

	if len(fields) > 0 {
		return info, &ValidationError{Fields: fields}
	}
	return info, nil
}
