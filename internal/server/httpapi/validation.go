package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
)

const maxBodyBytes = 1 << 20

var contentTypeRe = regexp.MustCompile(`^image/[a-z0-9.+-]+$`)

// decode reads a JSON body into dst and validates it when dst implements
// validation.Validatable.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed request body", common.ErrorValidation)
	}

	if v, ok := dst.(validation.Validatable); ok {
		if err := v.Validate(); err != nil {
			return invalid(err)
		}
	}
	return nil
}

// passwordRule requires at least one letter and one digit.
func passwordRule(value interface{}) error {
	v, isNil := validation.Indirect(value)
	if isNil {
		return nil
	}
	s, _ := v.(string)
	if s == "" {
		return nil
	}

	var letter, digit bool
	for _, c := range s {
		switch {
		case unicode.IsLetter(c):
			letter = true
		case unicode.IsDigit(c):
			digit = true
		}
	}
	if !letter || !digit {
		return errors.New("password must contain at least 1 letter and 1 number")
	}
	return nil
}

// requiredWithout makes a field mandatory when other is blank.
func requiredWithout(other string) validation.RuleFunc {
	return func(value interface{}) error {
		if other != "" {
			return nil
		}
		return validation.Required.Validate(value)
	}
}

var passwordRules = []validation.Rule{validation.Length(8, 72), validation.By(passwordRule)}

func required(rules ...validation.Rule) []validation.Rule {
	return append([]validation.Rule{validation.Required}, rules...)
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (r registerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, required(passwordRules...)...),
		validation.Field(&r.Name, validation.Required, validation.Length(1, 128)),
	)
}

type createUserRequest struct {
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Name     string      `json:"name"`
	Role     models.Role `json:"role"`
}

func (r createUserRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, required(passwordRules...)...),
		validation.Field(&r.Name, validation.Required, validation.Length(1, 128)),
		validation.Field(&r.Role, validation.Required, validation.In(models.RoleUser, models.RoleAdmin)),
	)
}

// loginRequest names the user either by email or by username.
type loginRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r loginRequest) identifier() string {
	if r.Email != "" {
		return r.Email
	}
	return r.Username
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, is.Email),
		validation.Field(&r.Username, validation.By(requiredWithout(r.Email))),
		validation.Field(&r.Password, validation.Required),
	)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (r refreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

type forgotPasswordRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
}

func (r forgotPasswordRequest) identifier() string {
	if r.Email != "" {
		return r.Email
	}
	return r.Username
}

func (r forgotPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, is.Email),
		validation.Field(&r.Username, validation.By(requiredWithout(r.Email))),
	)
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

func (r resetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, required(passwordRules...)...),
	)
}

type linkRequest struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

func (l linkRequest) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Title, validation.Required, validation.Length(1, 64)),
		validation.Field(&l.URL, validation.Required, validation.Length(1, 256), is.URL),
	)
}

type profileRequest struct {
	Bio      string        `json:"bio"`
	Birthday *time.Time    `json:"birthday"`
	Gender   models.Gender `json:"gender"`
	Links    []linkRequest `json:"links"`
}

func (p profileRequest) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Bio, validation.Length(0, 256)),
		validation.Field(&p.Gender, validation.In(models.GenderMale, models.GenderFemale, models.GenderOther)),
		validation.Field(&p.Links, validation.Length(0, 10), validation.By(validateLinks)),
	)
}

func validateLinks(value interface{}) error {
	links, _ := value.([]linkRequest)
	for i, l := range links {
		if err := l.Validate(); err != nil {
			return fmt.Errorf("link %d: %v", i, err)
		}
	}
	return nil
}

func (p profileRequest) toModel() models.Profile {
	out := models.Profile{
		Bio:    p.Bio,
		Gender: p.Gender,
		Links:  make([]models.Link, 0, len(p.Links)),
	}
	if out.Gender == "" {
		out.Gender = models.GenderOther
	}
	if p.Birthday != nil {
		t := p.Birthday.UTC()
		out.Birthday = &t
	}
	for _, l := range p.Links {
		out.Links = append(out.Links, models.Link{Title: l.Title, URL: l.URL})
	}
	return out
}

// updateUserRequest changes only the fields present in the body.
type updateUserRequest struct {
	Email    *string         `json:"email"`
	Name     *string         `json:"name"`
	Password *string         `json:"password"`
	Profile  *profileRequest `json:"profile"`
}

func (r updateUserRequest) Validate() error {
	if r.Email == nil && r.Name == nil && r.Password == nil && r.Profile == nil {
		return validation.Errors{"body": errors.New("at least one field must be provided")}
	}
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.NilOrNotEmpty, is.Email),
		validation.Field(&r.Name, validation.NilOrNotEmpty, validation.Length(1, 128)),
		validation.Field(&r.Password, append([]validation.Rule{validation.NilOrNotEmpty}, passwordRules...)...),
	)
	if r.Profile == nil {
		return err
	}

	perr := r.Profile.Validate()
	if perr == nil {
		return err
	}
	errs, ok := err.(validation.Errors)
	if err != nil && !ok {
		return err
	}
	if errs == nil {
		errs = validation.Errors{}
	}
	errs["profile"] = perr
	return errs
}

func (r updateUserRequest) toInput() services.UpdateUserInput {
	in := services.UpdateUserInput{Email: r.Email, Name: r.Name, Password: r.Password}
	if r.Profile != nil {
		p := r.Profile.toModel()
		in.Profile = &p
	}
	return in
}

type avatarRequest struct {
	ContentType string `json:"contentType"`
}

func (r avatarRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ContentType, validation.Required, validation.Match(contentTypeRe)),
	)
}
