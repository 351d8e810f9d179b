package allocation

import (
	"fmt"
	"strings"

	"ms-distribution/internal/models"

	"github.com/asaskevich/govalidator"
)

const (
	maxNameLength  = 100
	maxEmailLength = 254
)

// NormalizeRequest validates citizen-supplied details and returns them in
// stored form: trimmed name, E.164 phone and a bare email address.
func NormalizeRequest(req models.RegistrationRequest) (models.RegistrationRequest, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return models.RegistrationRequest{}, invalidInput("name is required")
	}
	if !govalidator.StringLength(name, "1", fmt.Sprint(maxNameLength)) {
		return models.RegistrationRequest{}, invalidInput(fmt.Sprintf("name must be at most %d characters", maxNameLength))
	}

	email := strings.TrimSpace(req.Email)
	if email != "" {
		if !govalidator.StringLength(email, "3", fmt.Sprint(maxEmailLength)) || !govalidator.IsEmail(email) {
			return models.RegistrationRequest{}, invalidInput("email address is not valid")
		}
	}

	phone, err := NormalizeContact(req.Phone)
	if err != nil {
		return models.RegistrationRequest{}, err
	}
	return models.RegistrationRequest{Name: name, Phone: phone, Email: email}, nil
}
