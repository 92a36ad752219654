package domain

// PayoutStatus decides the platform fee tier of a creator
type PayoutStatus string

const (
	PayoutStatusRegular   PayoutStatus = "REGULAR"    // Default tier (10% fee)
	PayoutStatusHighValue PayoutStatus = "HIGH_VALUE" // Founding creators (5% fee)
)

// Profile roles
const (
	RoleUser  = "user"  // Regular reader or creator
	RoleAdmin = "admin" // Platform operator
)

// Profile Model
type Profile struct {
	ID           uint         `gorm:"primaryKey" json:"id"`                                    // Primary key
	Username     string       `gorm:"unique;not null" json:"username"`                         // Unique login name
	Password     string       `gorm:"not null" json:"-"`                                       // Hashed password
	DisplayName  string       `gorm:"size:200" json:"display_name"`                            // Name shown next to transactions
	Email        string       `gorm:"size:320" json:"email"`                                   // Contact email, prefilled on checkout
	Role         string       `gorm:"default:user" json:"role"`                                // Role: user or admin
	PayoutStatus PayoutStatus `gorm:"size:50;not null;default:REGULAR" json:"payout_status"`   // Platform fee tier
	Wallet       *Wallet      `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE" json:"-"` // Lazily created wallet
}
