package models

// Roles a back-office user can hold.
const (
	RoleInputter   = "inputter"
	RoleAuthoriser = "authoriser"
	RoleSuperAdmin = "super_admin"
)

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleInputter, RoleAuthoriser, RoleSuperAdmin:
		return true
	}
	return false
}

// UserFields holds a back-office account. PasswordHash is a bcrypt hash and
// is never serialized. Password is accepted on input only and is replaced by
// its hash before the fields reach a snapshot.
type UserFields struct {
	FirstName    *string `gorm:"size:100" json:"first_name"`
	LastName     *string `gorm:"size:100" json:"last_name"`
	Email        *string `gorm:"size:255;index" json:"email"`
	Role         *string `gorm:"size:30;index" json:"role"`
	PasswordHash *string `gorm:"size:255" json:"-"`
	Password     *string `gorm:"-" json:"password,omitempty"`
}

func (f *UserFields) Data() *UserFields { return f }

// User is a back-office account governed by the same approval workflow as
// the catalogue.
type User struct {
	EntityMeta
	UserFields
}

func (User) TableName() string { return "users" }

type PendingUser struct {
	PendingMeta
	UserFields
}

func (PendingUser) TableName() string { return "pending_users" }
