package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/isdm-app/isdm-api/internal/models"
	"github.com/isdm-app/isdm-api/internal/repository"
	appErrors "github.com/isdm-app/isdm-api/pkg/errors"
)

// StudentInput is the full student form.
type StudentInput struct {
	FirstName   string               `json:"firstName" validate:"required,personname,max=80"`
	LastName    string               `json:"lastName" validate:"required,personname,max=80"`
	DNI         string               `json:"dni" validate:"required,dni,max=12"`
	BirthDate   string               `json:"birthDate" validate:"required,birthdate"`
	Gender      string               `json:"gender,omitempty" validate:"omitempty,max=40"`
	PhoneMobile string               `json:"phoneMobile" validate:"required,max=30"`
	PhoneHome   string               `json:"phoneHome,omitempty" validate:"omitempty,max=30"`
	Email       string               `json:"email" validate:"required,isdmemail"`
	Career      string               `json:"career" validate:"required,career"`
	Status      models.StudentStatus `json:"status" validate:"required,studentstatus"`
	Avatar      string               `json:"avatar,omitempty" validate:"omitempty,url"`
}

func (in *StudentInput) normalize() {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.DNI = strings.TrimSpace(in.DNI)
	in.BirthDate = strings.TrimSpace(in.BirthDate)
	in.Gender = strings.TrimSpace(in.Gender)
	in.PhoneMobile = strings.TrimSpace(in.PhoneMobile)
	in.PhoneHome = strings.TrimSpace(in.PhoneHome)
	in.Email = strings.TrimSpace(in.Email)
	in.Career = strings.TrimSpace(in.Career)
	in.Status = models.StudentStatus(strings.TrimSpace(string(in.Status)))
	in.Avatar = strings.TrimSpace(in.Avatar)
}

func (in StudentInput) toModel() models.Student {
	return models.Student{
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		DNI:         in.DNI,
		BirthDate:   in.BirthDate,
		Gender:      in.Gender,
		PhoneMobile: in.PhoneMobile,
		PhoneHome:   in.PhoneHome,
		Email:       in.Email,
		Career:      in.Career,
		Status:      in.Status,
		Avatar:      in.Avatar,
	}
}

func inputFromModel(s models.Student) StudentInput {
	return StudentInput{
		FirstName:   s.FirstName,
		LastName:    s.LastName,
		DNI:         s.DNI,
		BirthDate:   s.BirthDate,
		Gender:      s.Gender,
		PhoneMobile: s.PhoneMobile,
		PhoneHome:   s.PhoneHome,
		Email:       s.Email,
		Career:      s.Career,
		Status:      s.Status,
		Avatar:      s.Avatar,
	}
}

// UpdateStudentRequest is a partial edit; nil fields are left untouched.
type UpdateStudentRequest struct {
	FirstName   *string               `json:"firstName"`
	LastName    *string               `json:"lastName"`
	DNI         *string               `json:"dni"`
	BirthDate   *string               `json:"birthDate"`
	Gender      *string               `json:"gender"`
	PhoneMobile *string               `json:"phoneMobile"`
	PhoneHome   *string               `json:"phoneHome"`
	Email       *string               `json:"email"`
	Career      *string               `json:"career"`
	Status      *models.StudentStatus `json:"status"`
	Avatar      *string               `json:"avatar"`
}

// Fields returns the provided values keyed by document field name.
func (r UpdateStudentRequest) Fields() models.StudentFields {
	fields := models.StudentFields{}
	set := func(key string, v *string) {
		if v != nil {
			fields[key] = strings.TrimSpace(*v)
		}
	}
	set("firstName", r.FirstName)
	set("lastName", r.LastName)
	set("dni", r.DNI)
	set("birthDate", r.BirthDate)
	set("gender", r.Gender)
	set("phoneMobile", r.PhoneMobile)
	set("phoneHome", r.PhoneHome)
	set("email", r.Email)
	set("career", r.Career)
	set("avatar", r.Avatar)
	if r.Status != nil {
		fields["status"] = models.StudentStatus(strings.TrimSpace(string(*r.Status)))
	}
	return fields
}

func (in *StudentInput) apply(fields models.StudentFields) {
	for key, value := range fields {
		var str string
		switch v := value.(type) {
		case string:
			str = v
		case models.StudentStatus:
			str = string(v)
		}
		switch key {
		case "firstName":
			in.FirstName = str
		case "lastName":
			in.LastName = str
		case "dni":
			in.DNI = str
		case "birthDate":
			in.BirthDate = str
		case "gender":
			in.Gender = str
		case "phoneMobile":
			in.PhoneMobile = str
		case "phoneHome":
			in.PhoneHome = str
		case "email":
			in.Email = str
		case "career":
			in.Career = str
		case "status":
			in.Status = models.StudentStatus(str)
		case "avatar":
			in.Avatar = str
		}
	}
}

// StudentService validates student forms and forwards writes to the record store.
// Writes are never retried; the live views pick up their effect from the next
// snapshot.
type StudentService struct {
	store     StudentStore
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewStudentService constructs the student service.
func NewStudentService(store StudentStore, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{store: store, validator: validate, metrics: metrics, logger: logger, now: time.Now}
}

// Get returns a single student.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrStudentNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.ErrInternal.With(err, "failed to load student")
	}
	return student, nil
}

// Create validates the form, stamps createdAt and stores the record.
func (s *StudentService) Create(ctx context.Context, input StudentInput) (*models.Student, error) {
	input.normalize()
	if err := s.validator.Struct(input); err != nil {
		return nil, validationError(err, "invalid student payload")
	}

	student := input.toModel()
	createdAt := s.now().UnixMilli()
	student.CreatedAt = &createdAt

	id, err := s.store.Create(ctx, student)
	s.metrics.ObserveStoreWrite("create", err)
	if err != nil {
		s.logger.Warn("create student failed", zap.Error(err))
		return nil, storeWriteError(err, "could not create the student")
	}
	student.ID = id
	s.logger.Info("student created", zap.String("id", id))
	return &student, nil
}

// Update merges the provided fields into the stored record and writes only those
// fields. Provided values must pass the form rules; untouched fields only need to
// be present, so legacy values such as a dotted DNI survive a status change.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	fields := req.Fields()
	if len(fields) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no fields to update")
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	merged := inputFromModel(*current)
	merged.apply(fields)
	if err := validatePartial(s.validator, merged, fields, "invalid student payload"); err != nil {
		return nil, err
	}

	err = s.store.Update(ctx, id, fields)
	s.metrics.ObserveStoreWrite("update", err)
	if err != nil {
		s.logger.Warn("update student failed", zap.String("id", id), zap.Error(err))
		return nil, storeWriteError(err, "could not update the student")
	}

	updated := merged.toModel()
	updated.ID = id
	updated.CreatedAt = current.CreatedAt
	return &updated, nil
}

// Remove deletes the record. Removing an id that no longer exists succeeds.
func (s *StudentService) Remove(ctx context.Context, id string) error {
	err := s.store.Remove(ctx, id)
	s.metrics.ObserveStoreWrite("remove", err)
	if err != nil {
		s.logger.Warn("remove student failed", zap.String("id", id), zap.Error(err))
		return storeWriteError(err, "could not delete the student")
	}
	s.logger.Info("student removed", zap.String("id", id))
	return nil
}

func storeWriteError(err error, message string) error {
	if errors.Is(err, repository.ErrStudentNotFound) {
		return appErrors.ErrNotFound.With(err, "student not found")
	}
	var writeErr *repository.WriteError
	if errors.As(err, &writeErr) {
		return appErrors.ErrStoreWrite.With(err, message)
	}
	return appErrors.ErrInternal.With(err, message)
}
