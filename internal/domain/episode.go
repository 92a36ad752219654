package domain

import "time"

// EpisodeStatus is the publication state of an episode
type EpisodeStatus string

const (
	EpisodePublic     EpisodeStatus = "PUBLIC"
	EpisodePreRelease EpisodeStatus = "PRERELEASE"
	EpisodeDraft      EpisodeStatus = "DRAFT"
	EpisodeRemoved    EpisodeStatus = "REMOVED"
)

// Episode is the slice of the content model the ledger needs to sell access
type Episode struct {
	ID        uint          `gorm:"primaryKey" json:"id"`
	OwnerID   uint          `gorm:"not null;index" json:"owner_id"` // Owner of the series
	Title     string        `gorm:"size:100;not null" json:"title"`
	Status    EpisodeStatus `gorm:"size:10;not null" json:"status"`
	IsPremium bool          `gorm:"not null;default:false" json:"is_premium"`
	Price     int64         `gorm:"not null;default:0" json:"price"` // Coins
}

// CheckPurchasable returns ErrEpisodeNotPurchasable unless the episode is a
// public premium episode or a priced pre-release.
func (e *Episode) CheckPurchasable() error {
	switch {
	case e.Status == EpisodePublic && e.IsPremium:
		return nil
	case e.Status == EpisodePreRelease && e.Price > 0:
		return nil
	}
	return ErrEpisodeNotPurchasable
}

// EpisodePurchase grants a profile access to an episode
type EpisodePurchase struct {
	ID        uint      `gorm:"primaryKey"`
	EpisodeID uint      `gorm:"not null;uniqueIndex:idx_episode_purchase"`
	ProfileID uint      `gorm:"not null;uniqueIndex:idx_episode_purchase"`
	Episode   *Episode  `gorm:"constraint:OnDelete:CASCADE"`
	Profile   *Profile  `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}
