package models

import "time"

// RevokedCertificate is one entry of the installation-wide revocation list.
// The list is append-only: entries are never removed, and revocation never
// deletes the certificate itself.
type RevokedCertificate struct {
	// SerialNumber is the decimal serial of the revoked certificate.
	SerialNumber string `gorm:"primaryKey;column:serial_number" json:"serial"`
	// RevokedBy records which subject requested the revocation, for audit.
	RevokedBy string `gorm:"column:revoked_by" json:"revoked_by"`
	// RevokedAt is when the entry was added.
	RevokedAt time.Time `gorm:"column:revoked_at" json:"revoked_at"`
}

// TableName fixes the gorm table name.
func (RevokedCertificate) TableName() string {
	return "revoked_certificates"
}
