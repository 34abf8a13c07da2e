package domain

// ReferenceKind distinguishes the lookup tables enriched during approval.
type ReferenceKind string

const (
	ReferenceCompany    ReferenceKind = "company"
	ReferenceProfession ReferenceKind = "profession"
)

// ReferenceEntity is a company or profession known to the organization.
type ReferenceEntity struct {
	ID   string        `json:"id"`
	Kind ReferenceKind `json:"kind"`
	Name string        `json:"name"`
}

type GeoLevel string

const (
	GeoLevelProvince GeoLevel = "province"
	GeoLevelCity     GeoLevel = "city"
	GeoLevelDistrict GeoLevel = "district"
	GeoLevelQuarter  GeoLevel = "quarter"
)

func (l GeoLevel) Valid() bool {
	switch l {
	case GeoLevelProvince, GeoLevelCity, GeoLevelDistrict, GeoLevelQuarter:
		return true
	}
	return false
}

// GeoEntry is a read-only geographic reference row.
type GeoEntry struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parent_id,omitempty"`
}
