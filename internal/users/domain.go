package users

import "time"

// User represents an account shown on the admin dashboard.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	IsAdmin   bool      `json:"isAdmin"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewUser carries the fields accepted when creating a user.
type NewUser struct {
	Name    string
	Email   string
	IsAdmin bool
}

// UserPatch describes a partial update. Nil fields are left untouched.
type UserPatch struct {
	Name    *string
	Email   *string
	IsAdmin *bool
}

// Stats summarises the store for dashboards and metrics.
type Stats struct {
	Total  int
	Admins int
	Busy   bool
}

// SeedUsers returns the records the dashboard starts with.
func SeedUsers(now time.Time) []User {
	return []User{
		{ID: "1", Name: "Admin User", Email: "admin@example.com", IsAdmin: true, CreatedAt: now},
		{ID: "2", Name: "John Doe", Email: "john@example.com", CreatedAt: now.Add(-24 * time.Hour)},
		{ID: "3", Name: "Jane Smith", Email: "jane@example.com", CreatedAt: now.Add(-48 * time.Hour)},
	}
}

func (p UserPatch) apply(u *User) {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.IsAdmin != nil {
		u.IsAdmin = *p.IsAdmin
	}
}
