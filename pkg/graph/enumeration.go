package graph

// Ordering selects the sort order for ReadMany and Enumerate. Ties are
// always broken by GUID so that pagination is stable across pages.
type Ordering string

const (
	OrderCreatedAscending  Ordering = "created_asc"
	OrderCreatedDescending Ordering = "created_desc"
	OrderNameAscending     Ordering = "name_asc"
	OrderNameDescending    Ordering = "name_desc"
	OrderGUIDAscending     Ordering = "guid_asc"
	OrderGUIDDescending    Ordering = "guid_desc"
)

// Valid reports whether o is a known ordering.
func (o Ordering) Valid() bool {
	switch o {
	case OrderCreatedAscending, OrderCreatedDescending,
		OrderNameAscending, OrderNameDescending,
		OrderGUIDAscending, OrderGUIDDescending:
		return true
	}
	return false
}

// DefaultMaxResults caps a page when the request does not set one.
const DefaultMaxResults = 100

// EnumerationRequest describes one page of an enumeration. Skip and
// ContinuationToken compose: the cursor establishes the resumption point
// and Skip moves forward relative to it.
type EnumerationRequest struct {
	TenantGUID string `json:"TenantGUID"`
	GraphGUID  string `json:"GraphGUID,omitempty"`

	// Labels filters to entities carrying every listed label.
	Labels []string `json:"Labels,omitempty"`
	// Tags filters to entities carrying every listed key/value pair.
	Tags map[string]string `json:"Tags,omitempty"`

	Ordering          Ordering `json:"Ordering,omitempty"`
	MaxResults        int      `json:"MaxResults,omitempty"`
	Skip              int      `json:"Skip,omitempty"`
	ContinuationToken string   `json:"ContinuationToken,omitempty"`

	// IncludeData loads free-form payloads; IncludeSubordinates loads
	// labels, tags, and vectors. Both default to false to bound cost.
	IncludeData         bool `json:"IncludeData,omitempty"`
	IncludeSubordinates bool `json:"IncludeSubordinates,omitempty"`
}

// EnumerationResult is one page plus resumption metadata. Concatenating
// pages obtained by following ContinuationToken until EndOfResults yields
// exactly TotalRecords rows, each once, in the requested order.
type EnumerationResult[T any] struct {
	Objects           []T    `json:"Objects"`
	MaxResults        int    `json:"MaxResults"`
	TotalRecords      int64  `json:"TotalRecords"`
	RecordsRemaining  int64  `json:"RecordsRemaining"`
	EndOfResults      bool   `json:"EndOfResults"`
	ContinuationToken string `json:"ContinuationToken,omitempty"`
}
