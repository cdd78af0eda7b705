package model

import "time"

type User struct {
	ID           string    `json:"_id"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	PasswordHash string    `json:"-"`
	ProfilePic   string    `json:"profilePic"`
	Bio          string    `json:"bio"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UserPublic — пользователь без password_hash (сайдбар, ответы auth).
type UserPublic struct {
	ID         string    `json:"_id"`
	Email      string    `json:"email"`
	FullName   string    `json:"fullName"`
	ProfilePic string    `json:"profilePic"`
	Bio        string    `json:"bio"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:         u.ID,
		Email:      u.Email,
		FullName:   u.FullName,
		ProfilePic: u.ProfilePic,
		Bio:        u.Bio,
		CreatedAt:  u.CreatedAt,
	}
}
