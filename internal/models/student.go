package models

// StudentStatus is the enrolment state shown on the status chip.
type StudentStatus string

const (
	StatusActive   StudentStatus = "activo"
	StatusPending  StudentStatus = "pendiente"
	StatusInactive StudentStatus = "inactivo"
)

// Valid reports whether the status belongs to the enumerated set.
func (s StudentStatus) Valid() bool {
	switch s {
	case StatusActive, StatusPending, StatusInactive:
		return true
	}
	return false
}

// Careers offered by the institute. Filters compare against these exact strings.
var Careers = []string{
	"Tec. Análisis de Sistemas",
	"Profesorado de Inglés",
	"Profesorado de Educación Inicial",
	"Profesorado de Educación Primaria",
	"Psicopedagogía",
	"Educación Especial (Discapacidad Intelectual)",
}

// IsCareer reports whether name is one of the offered careers.
func IsCareer(name string) bool {
	for _, c := range Careers {
		if c == name {
			return true
		}
	}
	return false
}

// Student is a record in the students collection. The store assigns ID; every
// other field is stored flat under the JSON name.
type Student struct {
	ID          string        `json:"id" firestore:"-" bson:"-" db:"id"`
	FirstName   string        `json:"firstName" firestore:"firstName" bson:"firstName" db:"first_name"`
	LastName    string        `json:"lastName" firestore:"lastName" bson:"lastName" db:"last_name"`
	DNI         string        `json:"dni" firestore:"dni" bson:"dni" db:"dni"`
	BirthDate   string        `json:"birthDate" firestore:"birthDate" bson:"birthDate" db:"birth_date"`
	Gender      string        `json:"gender,omitempty" firestore:"gender,omitempty" bson:"gender,omitempty" db:"gender"`
	PhoneMobile string        `json:"phoneMobile" firestore:"phoneMobile" bson:"phoneMobile" db:"phone_mobile"`
	PhoneHome   string        `json:"phoneHome,omitempty" firestore:"phoneHome,omitempty" bson:"phoneHome,omitempty" db:"phone_home"`
	Email       string        `json:"email" firestore:"email" bson:"email" db:"email"`
	Career      string        `json:"career" firestore:"career" bson:"career" db:"career"`
	Status      StudentStatus `json:"status" firestore:"status" bson:"status" db:"status"`
	Avatar      string        `json:"avatar,omitempty" firestore:"avatar,omitempty" bson:"avatar,omitempty" db:"avatar"`
	CreatedAt   *int64        `json:"createdAt,omitempty" firestore:"createdAt,omitempty" bson:"createdAt,omitempty" db:"created_at"`
}

// FullName is the "firstName lastName" key used for search and alphabetical sort.
func (s Student) FullName() string {
	return s.FirstName + " " + s.LastName
}

// DisplayStatus falls back to activo for values outside the enumeration.
func (s Student) DisplayStatus() StudentStatus {
	if s.Status.Valid() {
		return s.Status
	}
	return StatusActive
}

// CreatedAtOrZero returns the creation timestamp, treating a missing one as 0.
func (s Student) CreatedAtOrZero() int64 {
	if s.CreatedAt == nil {
		return 0
	}
	return *s.CreatedAt
}

// StudentFields is a partial update: only the keys present are written. Keys use
// the document field names (firstName, lastName, ...).
type StudentFields map[string]interface{}
