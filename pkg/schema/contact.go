package schema

import "time"

// Contact is a single address-book entry owned by one user.
// ID, UserID and CreatedAt are assigned by the platform and never change.
type Contact struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HasPhone reports whether the optional phone field is present.
func (c Contact) HasPhone() bool {
	return c.Phone != ""
}

// ContactInput is the insert payload for a new contact.
type ContactInput struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone,omitempty"`
}

// ContactPatch is the update payload for an existing contact.
type ContactPatch struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Apply returns a copy of c with the patched fields.
func (p ContactPatch) Apply(c Contact) Contact {
	c.Name = p.Name
	c.Email = p.Email
	c.Phone = p.Phone
	return c
}
