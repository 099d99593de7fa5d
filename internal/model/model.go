package model

// Event is a party or evening people can register for. At most one event
// is active at any time; creating a new one deactivates the others.
type Event struct {
	ID          int     `db:"id" json:"id"`
	Name        string  `db:"name" json:"name"`
	Description string  `db:"description,omitempty" json:"description,omitempty"`
	Price       float64 `db:"price" json:"price"`
	EventDate   string  `db:"event_date,omitempty" json:"event_date,omitempty"`
	CreatedAt   string  `db:"created_at" json:"created_at"`
	Active      bool    `db:"active" json:"active"`

	// Registered is a derived count, populated only by listing queries.
	Registered int `db:"-" json:"registered,omitempty"`
}

// Registration holds one admitted person. Phone is stored normalized
// (digits only) and the pair (phone, event) is unique. Which of the
// optional fields are filled depends on the configured registration
// profile: birth date and place for "anagrafica", age bracket and
// arrival time for "serata".
type Registration struct {
	ID          int    `db:"id" json:"id"`
	EventID     int    `db:"event_id" json:"event_id"`
	FirstName   string `db:"first_name" json:"first_name"`
	LastName    string `db:"last_name" json:"last_name"`
	Phone       string `db:"phone" json:"phone"`
	BirthDate   string `db:"birth_date,omitempty" json:"birth_date,omitempty"`
	BirthPlace  string `db:"birth_place,omitempty" json:"birth_place,omitempty"`
	AgeBracket  string `db:"age_bracket,omitempty" json:"age_bracket,omitempty"`
	ArrivalTime string `db:"arrival_time,omitempty" json:"arrival_time,omitempty"`
	CreatedAt   string `db:"created_at" json:"created_at"`
}

// AuditEntry is one row of the registration audit trail, written by the
// audit worker from messages published on admissions and deletions.
type AuditEntry struct {
	ID             int    `db:"id" json:"id"`
	Action         string `db:"action" json:"action"`
	EventID        int    `db:"event_id" json:"event_id"`
	RegistrationID int    `db:"registration_id" json:"registration_id"`
	Phone          string `db:"phone" json:"phone"`
	CreatedAt      string `db:"created_at" json:"created_at"`
}

// Stats aggregates the admin statistics page.
type Stats struct {
	TotalEvents        int
	TotalRegistrations int
	PerEvent           []LabelCount
	PerDay             []LabelCount
	PerAgeBracket      []LabelCount
}

// LabelCount is one aggregation bucket.
type LabelCount struct {
	Label string
	Count int
}
