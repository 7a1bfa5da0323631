package service

import (
	"errors"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/isdm-app/isdm-api/internal/models"
	appErrors "github.com/isdm-app/isdm-api/pkg/errors"
)

// BirthDateLayout is the DD/MM/YYYY form the student form collects.
const BirthDateLayout = "02/01/2006"

var (
	emailRegex      = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]{2,}$`)
	digitsRegex     = regexp.MustCompile(`^[0-9]+$`)
	personNameRegex = regexp.MustCompile(`^[A-Za-zÁÉÍÓÚÜÑáéíóúüñ' ]+$`)
)

// NewValidator returns a validator that reports JSON field names and knows the
// student form tags: isdmemail, dni, birthdate, career, studentstatus, personname.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("isdmemail", func(fl validator.FieldLevel) bool {
		return emailRegex.MatchString(strings.TrimSpace(fl.Field().String()))
	})
	_ = v.RegisterValidation("dni", func(fl validator.FieldLevel) bool {
		return digitsRegex.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("birthdate", func(fl validator.FieldLevel) bool {
		return validBirthDate(fl.Field().String())
	})
	_ = v.RegisterValidation("career", func(fl validator.FieldLevel) bool {
		return models.IsCareer(fl.Field().String())
	})
	_ = v.RegisterValidation("studentstatus", func(fl validator.FieldLevel) bool {
		return models.StudentStatus(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("personname", func(fl validator.FieldLevel) bool {
		return personNameRegex.MatchString(strings.TrimSpace(fl.Field().String()))
	})
	return v
}

// validBirthDate accepts DD/MM/YYYY dates that exist on the calendar.
func validBirthDate(value string) bool {
	if len(value) != len(BirthDateLayout) {
		return false
	}
	_, err := time.Parse(BirthDateLayout, value)
	return err == nil
}

// validationError converts validator output into the typed 400 error, naming the
// offending fields.
func validationError(err error, message string) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fields := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields = append(fields, fe.Field())
		}
		message = message + ": " + strings.Join(fields, ", ")
	}
	return appErrors.ErrValidation.With(err, message)
}

// formRule is the validate tag of one StudentInput field.
type formRule struct {
	index    int
	tag      string
	required bool
}

// studentFormRules indexes the StudentInput rules by document field name.
var studentFormRules = func() map[string]formRule {
	t := reflect.TypeOf(StudentInput{})
	rules := make(map[string]formRule, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("validate")
		if tag == "" {
			continue
		}
		key := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		rules[key] = formRule{index: i, tag: tag, required: strings.HasPrefix(tag, "required")}
	}
	return rules
}()

// validatePartial applies the full rules to the provided keys and only the
// required check to the fields carried over from the stored record.
func validatePartial(v *validator.Validate, merged StudentInput, fields models.StudentFields, message string) error {
	value := reflect.ValueOf(merged)
	var (
		failed   []string
		firstErr error
	)
	for key, rule := range studentFormRules {
		tag := rule.tag
		if _, provided := fields[key]; !provided {
			if !rule.required {
				continue
			}
			tag = "required"
		}
		if err := v.Var(value.Field(rule.index).Interface(), tag); err != nil {
			failed = append(failed, key)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if len(failed) == 0 {
		return nil
	}
	sort.Strings(failed)
	return appErrors.ErrValidation.With(firstErr, message+": "+strings.Join(failed, ", "))
}
