package patient

import "context"

type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdateProfile(ctx context.Context, id string, p ProfileUpdate) error
	Count(ctx context.Context) (int, error)
}

// ProfileUpdate replaces the editable profile fields. An empty Image keeps
// the stored picture.
type ProfileUpdate struct {
	Name    string
	Phone   string
	Address Address
	DOB     string
	Gender  string
	Image   string
}
