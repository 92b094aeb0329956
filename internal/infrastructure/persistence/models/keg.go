package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/taproom/kegledger/internal/domain/keg"
)

// KegModel is the persistence model for the Keg aggregate root.
type KegModel struct {
	AggregateModel
	TokenID        *string         `gorm:"type:varchar(128);uniqueIndex"`
	Brewery        string          `gorm:"type:varchar(200);not null"`
	BeerStyle      string          `gorm:"type:varchar(100)"`
	ABV            decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0"`
	SizeLiters     decimal.Decimal `gorm:"type:decimal(8,2);not null"`
	ExpectedPints  int             `gorm:"not null"`
	PintsSold      *int
	Variance       *int
	VarianceStatus *string `gorm:"type:varchar(16)"`
	IsEmpty        bool    `gorm:"not null;default:false;index"`
	CurrentHolder  string  `gorm:"type:varchar(128)"`
	LastScan       *time.Time
	LastLocation   string `gorm:"type:varchar(255)"`
	RetiredAt      *time.Time
}

// TableName returns the table name for GORM
func (KegModel) TableName() string {
	return "kegs"
}

// ToDomain converts the persistence model to a domain Keg.
func (m *KegModel) ToDomain() *keg.Keg {
	k := &keg.Keg{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		Brewery:           m.Brewery,
		BeerStyle:         m.BeerStyle,
		ABV:               m.ABV,
		SizeLiters:        m.SizeLiters,
		ExpectedPints:     m.ExpectedPints,
		PintsSold:         m.PintsSold,
		Variance:          m.Variance,
		IsEmpty:           m.IsEmpty,
		CurrentHolder:     m.CurrentHolder,
		LastScan:          m.LastScan,
		LastLocation:      m.LastLocation,
		RetiredAt:         m.RetiredAt,
	}
	if m.TokenID != nil {
		k.TokenID = *m.TokenID
	}
	if m.VarianceStatus != nil {
		status := keg.VarianceStatus(*m.VarianceStatus)
		k.VarianceStatus = &status
	}
	return k
}

// FromDomain populates the persistence model from a domain Keg.
func (m *KegModel) FromDomain(k *keg.Keg) {
	m.FromDomainAggregateRoot(k.BaseAggregateRoot)
	m.TokenID = nil
	if k.TokenID != "" {
		tokenID := k.TokenID
		m.TokenID = &tokenID
	}
	m.Brewery = k.Brewery
	m.BeerStyle = k.BeerStyle
	m.ABV = k.ABV
	m.SizeLiters = k.SizeLiters
	m.ExpectedPints = k.ExpectedPints
	m.PintsSold = k.PintsSold
	m.Variance = k.Variance
	m.VarianceStatus = nil
	if k.VarianceStatus != nil {
		status := string(*k.VarianceStatus)
		m.VarianceStatus = &status
	}
	m.IsEmpty = k.IsEmpty
	m.CurrentHolder = k.CurrentHolder
	m.LastScan = k.LastScan
	m.LastLocation = k.LastLocation
	m.RetiredAt = k.RetiredAt
}

// KegModelFromDomain creates a new persistence model from a domain Keg.
func KegModelFromDomain(k *keg.Keg) *KegModel {
	m := &KegModel{}
	m.FromDomain(k)
	return m
}
