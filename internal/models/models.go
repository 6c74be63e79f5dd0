package models

import "time"

// User is a registered end user of the web frontend. The PlayerID is the
// opaque player UUID used when talking to the bridge server; it is distinct
// from the account ID so a user can in principle be re-keyed against the
// game server without losing their account.
type User struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	Username     string    `json:"username" gorm:"uniqueIndex;size:20"`
	Email        string    `json:"email" gorm:"uniqueIndex;size:100"`
	PasswordHash string    `json:"-"`
	PlayerID     string    `json:"player_id" gorm:"uniqueIndex;size:36"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// GameRecord is the web layer's metadata about a game hosted on the bridge
// server. The game state itself always lives on the game server; this row
// only exists so games can be listed and attributed to their creator.
type GameRecord struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Name      string    `json:"name" gorm:"size:100"`
	CreatedBy string    `json:"created_by" gorm:"index;size:36"`
	CreatedAt time.Time `json:"created_at"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type CreateGameRequest struct {
	Name string `json:"name"`
}

type JoinGameRequest struct {
	Position *string `json:"position,omitempty"`
}
