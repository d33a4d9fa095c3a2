package models

import "time"

type Contact struct {
	ID          int64     `json:"id" db:"id" example:"7"`
	UserID      int64     `json:"user" db:"user_id" example:"1"`
	Fullname    string    `json:"fullname" db:"fullname" example:"Bobur Karimov"`
	PhoneNumber string    `json:"phone_number" db:"phone_number" example:"+998901112233"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
