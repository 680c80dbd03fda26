package model

import "time"

// IdentityRecord is one row of the tabular store awaiting enrichment.
type IdentityRecord struct {
	FullName   string `json:"full_name"`
	NationalID string `json:"national_id"`
	Row        int    `json:"row"`
}

// Credential is one API identity used to open an oracle session.
// Its position in the credential file defines rotation order.
type Credential struct {
	Name    string `json:"name"`
	APIID   int    `json:"api_id"`
	APIHash string `json:"api_hash"`
}

// LimitHit records an oracle-issued service limit for a credential.
type LimitHit struct {
	Identity string    `json:"identity"`
	Reason   string    `json:"reason"`
	HitAt    time.Time `json:"hit_at"`
}
