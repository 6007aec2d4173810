package models

type User struct {
	ID           string `json:"id" bson:"_id,omitempty"`
	PublicID     string `json:"public_id" bson:"public_id"`
	Username     string `json:"username" bson:"username"`
	DisplayName  string `json:"display_name" bson:"display_name"`
	Email        string `json:"email" bson:"email"`
	PasswordHash string `json:"password_hash" bson:"password_hash"`
}

// Profile is the display-facing view of a user, cached for the lifetime of a
// resolver instance.
type Profile struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// DefaultProfile is returned whenever a user cannot be identified or fetched.
func DefaultProfile() Profile {
	return Profile{DisplayName: "Unknown User", Email: ""}
}
