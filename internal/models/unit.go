package models

// Unit is an organizational unit of the office. Its lifecycle is owned elsewhere.
type Unit struct {
	ID     int64   `db:"id" json:"id"`
	Name   string  `db:"name" json:"name"`
	Email  *string `db:"email" json:"email,omitempty"`
	Active bool    `db:"active" json:"active"`
}
