package models

import "time"

// PriceBar is one daily OHLCV record for a listed symbol. Dates are calendar
// trading days; foreign buy/sell volumes are optional and zero when the feed
// does not carry them.
type PriceBar struct {
	Symbol      string
	Date        time.Time
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      int64
	ForeignBuy  int64
	ForeignSell int64
}

// Exchange codes of the Vietnamese market.
const (
	ExchangeHOSE  = "HOSE"
	ExchangeHNX   = "HNX"
	ExchangeUPCOM = "UPCOM"
)

// Sector taxonomy. Fixed set; metadata carrying anything else is rejected at
// the ingest boundary, not here.
const (
	SectorBanking      = "banking"
	SectorSecurities   = "securities"
	SectorRealEstate   = "real_estate"
	SectorSteel        = "steel"
	SectorOilGas       = "oil_gas"
	SectorRetail       = "retail"
	SectorFoodBeverage = "food_beverage"
	SectorTechnology   = "technology"
	SectorUtilities    = "utilities"
	SectorIndustrials  = "industrials"
	SectorHealthcare   = "healthcare"
	SectorAviation     = "aviation"
	SectorConstruction = "construction"
	SectorFisheries    = "fisheries"
)

// Sectors lists the full taxonomy in a stable order.
func Sectors() []string {
	return []string{
		SectorBanking, SectorSecurities, SectorRealEstate, SectorSteel,
		SectorOilGas, SectorRetail, SectorFoodBeverage, SectorTechnology,
		SectorUtilities, SectorIndustrials, SectorHealthcare, SectorAviation,
		SectorConstruction, SectorFisheries,
	}
}

// ValidSector reports whether s belongs to the taxonomy.
func ValidSector(s string) bool {
	for _, v := range Sectors() {
		if v == s {
			return true
		}
	}
	return false
}

// ValidExchange reports whether x is a known exchange code.
func ValidExchange(x string) bool {
	return x == ExchangeHOSE || x == ExchangeHNX || x == ExchangeUPCOM
}

// InstrumentMetadata describes a listed instrument. MarketCap is in VND.
type InstrumentMetadata struct {
	Symbol    string
	Sector    string
	Exchange  string
	MarketCap float64
	UpdatedAt time.Time
}
