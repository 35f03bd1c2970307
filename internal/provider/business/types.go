package business

import (
	"strings"
	"time"
)

// Account is a business account the tenant has access to.
type Account struct {
	Name        string `json:"name"` // accounts/{id}
	AccountName string `json:"accountName"`
	Type        string `json:"type"`
}

// Address is the storefront address of a location.
type Address struct {
	RegionCode         string   `json:"regionCode"`
	PostalCode         string   `json:"postalCode"`
	AdministrativeArea string   `json:"administrativeArea"`
	Locality           string   `json:"locality"`
	AddressLines       []string `json:"addressLines"`
}

// String joins the address into a single display line.
func (a *Address) String() string {
	if a == nil {
		return ""
	}
	parts := make([]string, 0, len(a.AddressLines)+3)
	for _, l := range a.AddressLines {
		if l = strings.TrimSpace(l); l != "" {
			parts = append(parts, l)
		}
	}
	for _, p := range []string{a.Locality, a.AdministrativeArea, a.PostalCode} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// PhoneNumbers holds the published phone numbers of a location.
type PhoneNumbers struct {
	PrimaryPhone     string   `json:"primaryPhone"`
	AdditionalPhones []string `json:"additionalPhones"`
}

// Location is a business location as returned by the information API.
type Location struct {
	Name              string         `json:"name"` // locations/{id}
	Title             string         `json:"title"`
	StorefrontAddress *Address       `json:"storefrontAddress"`
	PhoneNumbers      *PhoneNumbers  `json:"phoneNumbers"`
	WebsiteURI        string         `json:"websiteUri"`
	Metadata          map[string]any `json:"metadata"`
}

// ExternalID returns the id part of the resource name.
func (l *Location) ExternalID() string {
	return lastSegment(l.Name)
}

// Phone returns the primary phone number, if any.
func (l *Location) Phone() string {
	if l.PhoneNumbers == nil {
		return ""
	}
	return l.PhoneNumbers.PrimaryPhone
}

// Reviewer identifies the author of a review.
type Reviewer struct {
	DisplayName     string `json:"displayName"`
	ProfilePhotoURL string `json:"profilePhotoUrl"`
	IsAnonymous     bool   `json:"isAnonymous"`
}

// ReviewReply is the owner's published reply to a review.
type ReviewReply struct {
	Comment    string    `json:"comment"`
	UpdateTime time.Time `json:"updateTime"`
}

// Review is a customer review of a location.
type Review struct {
	Name        string       `json:"name"` // accounts/{a}/locations/{l}/reviews/{r}
	ReviewID    string       `json:"reviewId"`
	Reviewer    Reviewer     `json:"reviewer"`
	StarRating  string       `json:"starRating"`
	Comment     string       `json:"comment"`
	CreateTime  time.Time    `json:"createTime"`
	UpdateTime  time.Time    `json:"updateTime"`
	ReviewReply *ReviewReply `json:"reviewReply"`
}

// ExternalID returns the review id, falling back to the resource name.
func (r *Review) ExternalID() string {
	if r.ReviewID != "" {
		return r.ReviewID
	}
	return lastSegment(r.Name)
}

// HasReply reports whether the provider shows a published owner reply.
func (r *Review) HasReply() bool {
	return r.ReviewReply != nil && r.ReviewReply.Comment != ""
}

var starRatings = map[string]int{
	"ONE":   1,
	"TWO":   2,
	"THREE": 3,
	"FOUR":  4,
	"FIVE":  5,
}

// StarRating maps the provider's rating enum to 1..5. Missing or unknown
// values map to 5.
func StarRating(s string) int {
	if n, ok := starRatings[s]; ok {
		return n
	}
	return 5
}

func lastSegment(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}

type accountsPage struct {
	Accounts      []Account `json:"accounts"`
	NextPageToken string    `json:"nextPageToken"`
}

type locationsPage struct {
	Locations     []Location `json:"locations"`
	NextPageToken string     `json:"nextPageToken"`
}

type reviewsPage struct {
	Reviews          []Review `json:"reviews"`
	AverageRating    float64  `json:"averageRating"`
	TotalReviewCount int      `json:"totalReviewCount"`
	NextPageToken    string   `json:"nextPageToken"`
}
