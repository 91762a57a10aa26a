package models

import "time"

// User is a platform account. Any user may act as a provider (by publishing
// availability rules) or as a requester (by booking someone else's time).
type User struct {
	ID           string    `bson:"id" json:"id"`
	Name         string    `bson:"name" json:"name"`
	Email        string    `bson:"email" json:"email"`
	PasswordHash string    `bson:"password_hash" json:"-"`
	Timezone     string    `bson:"timezone" json:"timezone"` // IANA name; authoritative for the user's availability windows
	Credits      int       `bson:"credits" json:"credits"`   // derived balance, written only by the ledger repository
	FCMToken     string    `bson:"fcm_token,omitempty" json:"-"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updated_at"`
}
