package models

import "time"

type User struct {
	ID           int64     `json:"id" example:"1"`                          // User ID
	Email        string    `json:"email" example:"user@example.com"`        // User email
	Fullname     string    `json:"fullname" example:"Ali Valiyev"`          // Display name
	PhoneNumber  string    `json:"phone_number" example:"+998901234567"`    // Phone number
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// PendingRegistration is the signup payload held in the TTL store until the
// emailed code is confirmed.
type PendingRegistration struct {
	Email        string `json:"email"`
	Fullname     string `json:"fullname"`
	PhoneNumber  string `json:"phone_number"`
	PasswordHash string `json:"password_hash"`
	OTP          string `json:"otp"`
}
