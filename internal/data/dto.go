package data

import "github.com/quantgate/qmt-gateway/internal/gwerr"

// MarketDataRequest asks for candles over a range.
type MarketDataRequest struct {
	Codes           []string `json:"codes" msgpack:"codes"`
	Period          string   `json:"period" msgpack:"period"`
	Start           string   `json:"start,omitempty" msgpack:"start,omitempty"`
	End             string   `json:"end,omitempty" msgpack:"end,omitempty"`
	Count           int      `json:"count,omitempty" msgpack:"count,omitempty"`
	Fields          []string `json:"fields,omitempty" msgpack:"fields,omitempty"`
	Adjust          string   `json:"adjust,omitempty" msgpack:"adjust,omitempty"`
	Fill            string   `json:"fill,omitempty" msgpack:"fill,omitempty"`
	DisableDownload bool     `json:"disable_download,omitempty" msgpack:"disable_download,omitempty"`
}

func (r MarketDataRequest) validate(op string) error {
	if len(r.Codes) == 0 {
		return gwerr.New(gwerr.InvalidArgument, op, "codes is required")
	}
	if r.Period == "" {
		return gwerr.New(gwerr.InvalidArgument, op, "period is required")
	}
	return nil
}

// FinancialDataRequest asks for financial tables over a range.
type FinancialDataRequest struct {
	Codes           []string `json:"codes" msgpack:"codes"`
	Tables          []string `json:"tables" msgpack:"tables"`
	Start           string   `json:"start,omitempty" msgpack:"start,omitempty"`
	End             string   `json:"end,omitempty" msgpack:"end,omitempty"`
	DisableDownload bool     `json:"disable_download,omitempty" msgpack:"disable_download,omitempty"`
}

// CodesRequest is the common body of point-query endpoints.
type CodesRequest struct {
	Codes  []string `json:"codes" msgpack:"codes"`
	Start  string   `json:"start,omitempty" msgpack:"start,omitempty"`
	End    string   `json:"end,omitempty" msgpack:"end,omitempty"`
	Period string   `json:"period,omitempty" msgpack:"period,omitempty"`
}

// SectorRequest addresses one sector, optionally with codes.
type SectorRequest struct {
	Parent    string   `json:"parent,omitempty" msgpack:"parent,omitempty"`
	Sector    string   `json:"sector" msgpack:"sector"`
	Codes     []string `json:"codes,omitempty" msgpack:"codes,omitempty"`
	Overwrite bool     `json:"overwrite,omitempty" msgpack:"overwrite,omitempty"`
}

// IndexWeightRequest asks for the constituent weights of one index.
type IndexWeightRequest struct {
	IndexCode string `json:"index_code" msgpack:"index_code"`
}

// SymbolRows pairs one symbol with its transposed rows.
type SymbolRows struct {
	Code string `json:"code" msgpack:"code"`
	Rows []Row  `json:"rows" msgpack:"rows"`
}

// SymbolTables pairs one symbol with its per-table rows.
type SymbolTables struct {
	Code   string           `json:"code" msgpack:"code"`
	Tables map[string][]Row `json:"tables" msgpack:"tables"`
}

// ETFInfo is the fixed constituent summary for one ETF code.
type ETFInfo struct {
	ETFCode         string `json:"etf_code" msgpack:"etf_code"`
	ETFName         string `json:"etf_name" msgpack:"etf_name"`
	UnderlyingAsset string `json:"underlying_asset" msgpack:"underlying_asset"`
	CreationUnit    int64  `json:"creation_unit" msgpack:"creation_unit"`
	RedemptionUnit  int64  `json:"redemption_unit" msgpack:"redemption_unit"`
}

// DataDirInfo reports the vendor's local data directory.
type DataDirInfo struct {
	DataDir string `json:"data_dir" msgpack:"data_dir"`
}

// DownloadRequest triggers a vendor download.
type DownloadRequest struct {
	Codes  []string `json:"codes,omitempty" msgpack:"codes,omitempty"`
	Code   string   `json:"code,omitempty" msgpack:"code,omitempty"`
	Period string   `json:"period,omitempty" msgpack:"period,omitempty"`
	Start  string   `json:"start,omitempty" msgpack:"start,omitempty"`
	End    string   `json:"end,omitempty" msgpack:"end,omitempty"`
	Tables []string `json:"tables,omitempty" msgpack:"tables,omitempty"`
	Market string   `json:"market,omitempty" msgpack:"market,omitempty"`
}

// DownloadTask reports the outcome of a download trigger.
type DownloadTask struct {
	TaskID   string `json:"task_id" msgpack:"task_id"`
	Status   string `json:"status" msgpack:"status"` // completed / failed
	Progress int    `json:"progress" msgpack:"progress"`
	Message  string `json:"message,omitempty" msgpack:"message,omitempty"`
}
