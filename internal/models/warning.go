package models

// Warning is a single DWD weather warning decoded from an entity's attributes.
type Warning struct {
	Headline    string            `json:"headline"`
	Name        *string           `json:"name,omitempty"`
	Start       string            `json:"start"`
	End         string            `json:"end"`
	Color       string            `json:"color"`
	Type        interface{}       `json:"type,omitempty"` // string or integer code, only used for icon lookup
	Level       *int              `json:"level,omitempty"`
	Description *string           `json:"description,omitempty"`
	Instruction *string           `json:"instruction,omitempty"`
	Parameters  map[string]string `json:"parameters,omitempty"`
}

// WarningSet is the decoded view of one warning entity.
// len(Warnings) == WarningCount always holds.
type WarningSet struct {
	Warnings     []Warning `json:"warnings"`
	WarningCount int       `json:"warningCount"`
	LastUpdate   *string   `json:"lastUpdate,omitempty"`
}

// WarningView is a Warning enriched with presentation fields for a card.
type WarningView struct {
	Warning
	Icon         string `json:"icon"`
	DisplayTitle string `json:"displayTitle"`
}

// LayoutOptions mirrors the grid hints a dashboard host asks a card for.
type LayoutOptions struct {
	GridRows       int `json:"gridRows"`
	GridMinRows    int `json:"gridMinRows"`
	GridColumns    int `json:"gridColumns"`
	GridMinColumns int `json:"gridMinColumns"`
}

// CardView is the rendered state of one configured warning card.
type CardView struct {
	Card              string        `json:"card"`
	PrimarySourceID   string        `json:"primarySourceId"`
	SecondarySourceID string        `json:"secondarySourceId"`
	PrimaryFound      bool          `json:"primaryFound"`
	Primary           []WarningView `json:"primary"`
	Secondary         []WarningView `json:"secondary"`
	PrimaryCount      int           `json:"primaryCount"`
	SecondaryCount    int           `json:"secondaryCount"`
	LastUpdate        *string       `json:"lastUpdate,omitempty"`
	RegionName        *string       `json:"regionName,omitempty"`
	Attribution       *string       `json:"attribution,omitempty"`
	GridSize          int           `json:"gridSize"`
	Layout            LayoutOptions `json:"layout"`
	Recomputed        bool          `json:"recomputed"`
}
