// Package models defines the selector/action data model shared by the
// extraction engine, the session layer and the protocol server.
package models

import "time"

// Role labels the semantic meaning of a selector, independent of its CSS form.
type Role string

const (
	RoleTitle         Role = "title"
	RolePrice         Role = "price"
	RoleOriginalPrice Role = "originalPrice"
	RoleSalePrice     Role = "salePrice"
	RoleURL           Role = "url"
	RoleImage         Role = "image"
	RoleNextPage      Role = "nextPage"
	RoleCustom        Role = "custom"
)

// ExtractionType selects how a value is read from a matched element.
type ExtractionType string

const (
	ExtractText      ExtractionType = "text"
	ExtractHref      ExtractionType = "href"
	ExtractSrc       ExtractionType = "src"
	ExtractAttribute ExtractionType = "attribute"
	ExtractInnerHTML ExtractionType = "innerHTML"
)

// AssignedSelector binds a CSS selector to a role. Selectors sharing a role
// are tried in ascending Priority order until one yields a non-empty value.
type AssignedSelector struct {
	Role           Role              `json:"role"`
	CSS            string            `json:"css"`
	TagName        string            `json:"tagName,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	ExtractionType ExtractionType    `json:"extractionType"`
	Priority       int               `json:"priority"`
	AttributeName  string            `json:"attributeName,omitempty"`
	CustomName     string            `json:"customName,omitempty"`
}

// FieldName returns the key this selector's value is stored under in a
// ScrapedItem: the custom name for custom roles, the role otherwise.
func (s AssignedSelector) FieldName() string {
	if s.Role == RoleCustom && s.CustomName != "" {
		return s.CustomName
	}
	return string(s.Role)
}

// ActionKind enumerates recorded pre-action kinds.
type ActionKind string

const (
	ActionClick  ActionKind = "click"
	ActionType   ActionKind = "type"
	ActionSelect ActionKind = "select"
)

// RecorderAction is one recorded UI interaction replayed before extraction.
// Every action is optional at replay time: an absent target is a skip, not a
// failure.
type RecorderAction struct {
	Type     ActionKind `json:"type"`
	Selector string     `json:"selector"`
	Value    string     `json:"value,omitempty"`
}

// PreActions wraps the ordered action list.
type PreActions struct {
	Actions []RecorderAction `json:"actions"`
}

// PaginationType selects the pagination mechanism.
type PaginationType string

const (
	PaginationURLPattern     PaginationType = "url_pattern"
	PaginationNextPage       PaginationType = "next_page"
	PaginationInfiniteScroll PaginationType = "infinite_scroll"
)

// OffsetDescriptor describes an offset-style query parameter.
type OffsetDescriptor struct {
	Key       string `json:"key"`
	Start     int    `json:"start"`
	Increment int    `json:"increment"`
}

// PaginationPattern describes how to advance to the next page of results.
// Either Selector (click-to-advance) or Pattern ({page}/{offset} template)
// is set, depending on Type.
type PaginationPattern struct {
	Type     PaginationType    `json:"type"`
	Selector string            `json:"selector,omitempty"`
	Pattern  string            `json:"pattern,omitempty"`
	Offset   *OffsetDescriptor `json:"offset,omitempty"`
	MaxPages int               `json:"maxPages,omitempty"`
}

// PriceFormat describes subunit-currency normalization applied after price
// extraction (e.g. prices reported in cents).
type PriceFormat struct {
	Multiplier     float64 `json:"multiplier,omitempty"`
	RemoveDecimals bool    `json:"removeDecimals,omitempty"`
}

// ScraperConfig fully describes one extraction run. It is immutable once
// handed to the engine.
type ScraperConfig struct {
	Name           string             `json:"name"`
	StartURL       string             `json:"startUrl"`
	Selectors      []AssignedSelector `json:"selectors"`
	ItemContainer  string             `json:"itemContainer,omitempty"`
	PreActions     *PreActions        `json:"preActions,omitempty"`
	Pagination     *PaginationPattern `json:"pagination,omitempty"`
	AutoScroll     bool               `json:"autoScroll,omitempty"`
	TargetProducts int                `json:"targetProducts,omitempty"`
	PriceFormat    *PriceFormat       `json:"priceFormat,omitempty"`
	HTMLToMarkdown bool               `json:"htmlToMarkdown,omitempty"`
}

// MaxPages returns the configured page bound, defaulting to 1.
func (c *ScraperConfig) MaxPages() int {
	if c.Pagination != nil && c.Pagination.MaxPages > 0 {
		return c.Pagination.MaxPages
	}
	return 1
}

// ScrapedItem maps role/custom field names to extracted values. A nil value
// means the field was requested but nothing matched.
type ScrapedItem map[string]*string

// ScrapeResult is the complete outcome of one execute() call. It is never
// mutated after return; a failed run still carries whatever items were
// collected before the failure.
type ScrapeResult struct {
	Success      bool          `json:"success"`
	Items        []ScrapedItem `json:"items"`
	PagesScraped int           `json:"pagesScraped"`
	Duration     time.Duration `json:"duration"`
	Errors       []string      `json:"errors,omitempty"`
}

// Viewport is the remote tab's layout size in CSS pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}
