package patient

// Defaults applied to fields a new patient has not filled in yet.
const (
	DefaultPhone  = "000000000"
	NotSelected   = "Not Selected"
	DefaultGender = NotSelected
	DefaultDOB    = NotSelected
)

type Address struct {
	Line1 string `json:"line1"`
	Line2 string `json:"line2"`
}

type User struct {
	ID           string  `json:"_id"`
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	PasswordHash string  `json:"-"`
	Image        string  `json:"image"`
	Phone        string  `json:"phone"`
	Address      Address `json:"address"`
	Gender       string  `json:"gender"`
	DOB          string  `json:"dob"`
}

// applyDefaults fills the profile fields registration does not collect.
func (u *User) applyDefaults() {
	if u.Phone == "" {
		u.Phone = DefaultPhone
	}
	if u.Gender == "" {
		u.Gender = DefaultGender
	}
	if u.DOB == "" {
		u.DOB = DefaultDOB
	}
}

// Snapshot is the copy of a patient embedded in an appointment. It is the
// user record minus the credential.
type Snapshot struct {
	ID      string  `json:"_id"`
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Image   string  `json:"image"`
	Phone   string  `json:"phone"`
	Address Address `json:"address"`
	Gender  string  `json:"gender"`
	DOB     string  `json:"dob"`
}

func (u *User) Snapshot() Snapshot {
	return Snapshot{
		ID:      u.ID,
		Name:    u.Name,
		Email:   u.Email,
		Image:   u.Image,
		Phone:   u.Phone,
		Address: u.Address,
		Gender:  u.Gender,
		DOB:     u.DOB,
	}
}
