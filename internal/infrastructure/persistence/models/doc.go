// Package models contains GORM persistence models for the keg ledger tables.
// Domain entities stay free of ORM tags; each model converts with ToDomain
// and FromDomain.
package models
