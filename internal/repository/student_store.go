package repository

import (
	"errors"
	"fmt"
	"sort"

	"github.com/isdm-app/isdm-api/internal/models"
)

// StudentsCollection is the default collection/table holding student records.
const StudentsCollection = "students"

// ErrStudentNotFound is returned by point reads and writes on a missing id.
var ErrStudentNotFound = errors.New("student not found")

// SnapshotFunc receives the complete, current student collection.
type SnapshotFunc func(students []models.Student)

// Unsubscribe releases a standing listener. It is safe to call more than once.
type Unsubscribe func()

// WriteError reports a create, update or remove rejected by the backend.
type WriteError struct {
	Op  string
	ID  string
	Err error
}

func (e *WriteError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s student: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s student %s: %v", e.Op, e.ID, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func writeErr(op, id string, err error) error {
	return &WriteError{Op: op, ID: id, Err: err}
}

// sortByName applies the ordering every backend requests from its store:
// lastName, then firstName, byte-wise like the stores compare strings.
func sortByName(students []models.Student) {
	sort.SliceStable(students, func(i, j int) bool {
		if students[i].LastName != students[j].LastName {
			return students[i].LastName < students[j].LastName
		}
		return students[i].FirstName < students[j].FirstName
	})
}

// documentFields flattens a record into the document shape, without the id.
func documentFields(s models.Student) map[string]interface{} {
	fields := map[string]interface{}{
		"firstName":   s.FirstName,
		"lastName":    s.LastName,
		"dni":         s.DNI,
		"birthDate":   s.BirthDate,
		"phoneMobile": s.PhoneMobile,
		"email":       s.Email,
		"career":      s.Career,
		"status":      string(s.Status),
	}
	if s.Gender != "" {
		fields["gender"] = s.Gender
	}
	if s.PhoneHome != "" {
		fields["phoneHome"] = s.PhoneHome
	}
	if s.Avatar != "" {
		fields["avatar"] = s.Avatar
	}
	if s.CreatedAt != nil {
		fields["createdAt"] = *s.CreatedAt
	}
	return fields
}

// applyFields merges a partial update into a record. Unknown keys are ignored.
func applyFields(s *models.Student, fields models.StudentFields) {
	for key, value := range fields {
		switch key {
		case "firstName":
			s.FirstName = asString(value)
		case "lastName":
			s.LastName = asString(value)
		case "dni":
			s.DNI = asString(value)
		case "birthDate":
			s.BirthDate = asString(value)
		case "gender":
			s.Gender = asString(value)
		case "phoneMobile":
			s.PhoneMobile = asString(value)
		case "phoneHome":
			s.PhoneHome = asString(value)
		case "email":
			s.Email = asString(value)
		case "career":
			s.Career = asString(value)
		case "status":
			s.Status = models.StudentStatus(asString(value))
		case "avatar":
			s.Avatar = asString(value)
		case "createdAt":
			if ts, ok := asInt64(value); ok {
				s.CreatedAt = &ts
			}
		}
	}
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case models.StudentStatus:
		return string(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func asInt64(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case float64:
		return int64(t), true
	case *int64:
		if t == nil {
			return 0, false
		}
		return *t, true
	}
	return 0, false
}

// studentFieldNames are the document keys a partial update may touch.
var studentFieldNames = map[string]struct{}{
	"firstName": {}, "lastName": {}, "dni": {}, "birthDate": {}, "gender": {},
	"phoneMobile": {}, "phoneHome": {}, "email": {}, "career": {}, "status": {},
	"avatar": {}, "createdAt": {},
}

// updateKeys returns the known keys of fields in a stable order.
func updateKeys(fields models.StudentFields) []string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		if _, ok := studentFieldNames[key]; ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// storedValue normalises a field value to what the backends persist.
func storedValue(v interface{}) interface{} {
	switch t := v.(type) {
	case models.StudentStatus:
		return string(t)
	case *int64:
		if t == nil {
			return nil
		}
		return *t
	}
	return v
}
