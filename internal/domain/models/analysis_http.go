package models

// Requests for the analysis HTTP endpoints. Defined in domain for consistency and reuse.

type AnalyzeRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,alphanum,min=3,max=12"`
	Days   int    `query:"days" json:"days" default:"90" validate:"gte=10,lte=1000"`
}

type OverviewRequest struct {
	Top     int    `query:"top" json:"top" default:"10" validate:"gte=1,lte=100"`
	Days    int    `query:"days" json:"days" default:"90" validate:"gte=10,lte=1000"`
	Symbols string `query:"symbols" json:"symbols" validate:"omitempty,max=2000"`
}

type RefreshRequest struct {
	Symbol string `json:"symbol" validate:"required,alphanum,min=3,max=12"`
	Days   int    `json:"days" default:"90" validate:"gte=10,lte=1000"`
}
