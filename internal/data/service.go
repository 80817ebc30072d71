// Package data wraps the vendor market-data surface: point queries,
// range queries with an optional download step, sector writes and
// download triggers.
package data

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantgate/qmt-gateway/internal/executor"
	"github.com/quantgate/qmt-gateway/internal/gwerr"
	"github.com/quantgate/qmt-gateway/internal/qmt"
)

// Timeouts are the per-class budgets for data operations.
type Timeouts struct {
	MarketData time.Duration
	Financial  time.Duration
	Download   time.Duration
}

// Service implements the data operations over the executor.
type Service struct {
	api             qmt.DataAPI
	exec            *executor.Executor
	timeouts        Timeouts
	disableDownload bool
	logger          zerolog.Logger
}

// NewService wires the data service. disableDownload skips the download
// step of every range query.
func NewService(api qmt.DataAPI, exec *executor.Executor, t Timeouts, disableDownload bool, logger zerolog.Logger) *Service {
	return &Service{
		api:             api,
		exec:            exec,
		timeouts:        t,
		disableDownload: disableDownload,
		logger:          logger.With().Str("component", "data_service").Logger(),
	}
}

// run submits one blocking vendor call bounded by the caller's context.
func run[T any](ctx context.Context, s *Service, op string, fn func(qmt.DataAPI) (T, error)) (T, error) {
	return executor.Run(ctx, s.exec, op, func() (T, error) {
		v, err := fn(s.api)
		if err != nil {
			var zero T
			return zero, gwerr.Wrap(gwerr.VendorError, op, err)
		}
		return v, nil
	})
}

// ---- point queries ----

func (s *Service) InstrumentDetail(ctx context.Context, code string) (*qmt.InstrumentDetail, error) {
	return run(ctx, s, "data.instrument_detail", func(api qmt.DataAPI) (*qmt.InstrumentDetail, error) {
		return api.GetInstrumentDetail(code)
	})
}

func (s *Service) InstrumentType(ctx context.Context, code string) ([]string, error) {
	return run(ctx, s, "data.instrument_type", func(api qmt.DataAPI) ([]string, error) {
		return api.GetInstrumentType(code)
	})
}

func (s *Service) Holidays(ctx context.Context) ([]string, error) {
	return run(ctx, s, "data.holidays", func(api qmt.DataAPI) ([]string, error) {
		return api.GetHolidays()
	})
}

func (s *Service) TradingCalendar(ctx context.Context, year int) ([]string, error) {
	const op = "data.trading_calendar"
	if year < 1990 || year > 2100 {
		return nil, gwerr.Newf(gwerr.InvalidArgument, op, "year %d out of range", year)
	}
	return run(ctx, s, op, func(api qmt.DataAPI) ([]string, error) {
		return api.GetTradingCalendar(year)
	})
}

func (s *Service) SectorList(ctx context.Context) ([]string, error) {
	names, err := run(ctx, s, "data.sector_list", func(api qmt.DataAPI) ([]string, error) {
		return api.GetSectorList()
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (s *Service) SectorMembers(ctx context.Context, sector string) ([]string, error) {
	const op = "data.sector_members"
	if sector == "" {
		return nil, gwerr.New(gwerr.InvalidArgument, op, "sector is required")
	}
	return run(ctx, s, op, func(api qmt.DataAPI) ([]string, error) {
		return api.GetStockListInSector(sector)
	})
}

func (s *Service) IndexWeight(ctx context.Context, indexCode string) (map[string]float64, error) {
	const op = "data.index_weight"
	if indexCode == "" {
		return nil, gwerr.New(gwerr.InvalidArgument, op, "index_code is required")
	}
	return run(ctx, s, op, func(api qmt.DataAPI) (map[string]float64, error) {
		return api.GetIndexWeight(indexCode)
	})
}

func (s *Service) PeriodList(ctx context.Context) ([]string, error) {
	return run(ctx, s, "data.period_list", func(api qmt.DataAPI) ([]string, error) {
		return api.GetPeriodList()
	})
}

func (s *Service) IPOInfo(ctx context.Context, market string) ([]qmt.IPOInfo, error) {
	return run(ctx, s, "data.ipo_info", func(api qmt.DataAPI) ([]qmt.IPOInfo, error) {
		return api.GetIPOInfo(market)
	})
}

func (s *Service) CBInfo(ctx context.Context) ([]qmt.CBInfo, error) {
	return run(ctx, s, "data.cb_info", func(api qmt.DataAPI) ([]qmt.CBInfo, error) {
		return api.GetCBInfo()
	})
}

// ETFInfo answers the fixed constituent stub for an ETF code. The
// vendor exposes no ETF detail query.
func (s *Service) ETFInfo(code string) (*ETFInfo, error) {
	if code == "" {
		return nil, gwerr.New(gwerr.InvalidArgument, "data.etf_info", "etf_code is required")
	}
	return &ETFInfo{
		ETFCode:         code,
		ETFName:         "ETF" + code,
		UnderlyingAsset: "沪深300",
		CreationUnit:    1_000_000,
		RedemptionUnit:  1_000_000,
	}, nil
}

func (s *Service) DataDir(ctx context.Context) (*DataDirInfo, error) {
	dir, err := run(ctx, s, "data.data_dir", func(api qmt.DataAPI) (string, error) {
		return api.DataDir()
	})
	if err != nil {
		return nil, err
	}
	return &DataDirInfo{DataDir: dir}, nil
}

func (s *Service) DividFactors(ctx context.Context, req CodesRequest) ([]SymbolRows, error) {
	const op = "data.divid_factors"
	if len(req.Codes) == 0 {
		return nil, gwerr.New(gwerr.InvalidArgument, op, "codes is required")
	}
	out := make([]SymbolRows, 0, len(req.Codes))
	for _, code := range req.Codes {
		block, err := run(ctx, s, op, func(api qmt.DataAPI) (qmt.ColumnBlock, error) {
			return api.GetDividFactors(code, req.Start, req.End)
		})
		if err != nil {
			return nil, err
		}
		out = append(out, SymbolRows{Code: code, Rows: Transpose(block)})
	}
	return out, nil
}

func (s *Service) FullTick(ctx context.Context, req CodesRequest) (map[string]qmt.Tick, error) {
	const op = "data.full_tick"
	if len(req.Codes) == 0 {
		return nil, gwerr.New(gwerr.InvalidArgument, op, "codes is required")
	}
	return run(ctx, s, op, func(api qmt.DataAPI) (map[string]qmt.Tick, error) {
		return api.GetFullTick(req.Codes)
	})
}

// l2Query handles the three level-2 endpoints which share one shape.
func (s *Service) l2Query(ctx context.Context, op string, req CodesRequest, fn func(qmt.DataAPI, string) (qmt.ColumnBlock, error)) ([]SymbolRows, error) {
	if len(req.Codes) == 0 {
		return nil, gwerr.New(gwerr.InvalidArgument, op, "codes is required")
	}
	out := make([]SymbolRows, 0, len(req.Codes))
	for _, code := range req.Codes {
		block, err := run(ctx, s, op, func(api qmt.DataAPI) (qmt.ColumnBlock, error) {
			return fn(api, code)
		})
		if err != nil {
			// batch reads fail whole
			return nil, err
		}
		out = append(out, SymbolRows{Code: code, Rows: Transpose(block)})
	}
	return out, nil
}

func (s *Service) L2Quote(ctx context.Context, req CodesRequest) ([]SymbolRows, error) {
	return s.l2Query(ctx, "data.l2_quote", req, func(api qmt.DataAPI, code string) (qmt.ColumnBlock, error) {
		return api.GetL2Quote(code, req.Start, req.End)
	})
}

func (s *Service) L2Order(ctx context.Context, req CodesRequest) ([]SymbolRows, error) {
	return s.l2Query(ctx, "data.l2_order", req, func(api qmt.DataAPI, code string) (qmt.ColumnBlock, error) {
		return api.GetL2Order(code, req.Start, req.End)
	})
}

func (s *Service) L2Transaction(ctx context.Context, req CodesRequest) ([]SymbolRows, error) {
	return s.l2Query(ctx, "data.l2_transaction", req, func(api qmt.DataAPI, code string) (qmt.ColumnBlock, error) {
		return api.GetL2Transaction(code, req.Start, req.End)
	})
}

// ---- range queries ----

// download runs the optional download step under its own budget. The
// caller's retrieval deadline is untouched.
func (s *Service) download(op string, skip bool, fn func(qmt.DataAPI) error) error {
	if s.disableDownload || skip {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeouts.Download)
	defer cancel()
	_, err := s.exec.Submit(ctx, op+".download", func() (any, error) {
		if err := fn(s.api); err != nil {
			return nil, gwerr.Wrap(gwerr.VendorError, op, err)
		}
		return nil, nil
	})
	return err
}

// MarketData returns candles per symbol, downloading history first
// unless disabled.
func (s *Service) MarketData(ctx context.Context, req MarketDataRequest) ([]SymbolRows, error) {
	const op = "data.market_data"
	if err := req.validate(op); err != nil {
		return nil, err
	}
	if err := s.download(op, req.DisableDownload, func(api qmt.DataAPI) error {
		return api.DownloadHistoryDataBatch(req.Codes, req.Period, req.Start, req.End)
	}); err != nil {
		return nil, err
	}
	return s.rangeQuery(ctx, op, req, func(api qmt.DataAPI) (map[string]qmt.ColumnBlock, error) {
		return api.GetMarketData(req.Fields, req.Codes, req.Period, req.Start, req.End, req.Count, req.Adjust, req.Fill)
	})
}

// LocalData reads already-downloaded candles only.
func (s *Service) LocalData(ctx context.Context, req MarketDataRequest) ([]SymbolRows, error) {
	const op = "data.local_data"
	if err := req.validate(op); err != nil {
		return nil, err
	}
	return s.rangeQuery(ctx, op, req, func(api qmt.DataAPI) (map[string]qmt.ColumnBlock, error) {
		return api.GetLocalData(req.Fields, req.Codes, req.Period, req.Start, req.End, req.Count, req.Adjust, req.Fill)
	})
}

// FullKline downloads then reads the full candle set.
func (s *Service) FullKline(ctx context.Context, req MarketDataRequest) ([]SymbolRows, error) {
	const op = "data.full_kline"
	if err := req.validate(op); err != nil {
		return nil, err
	}
	if err := s.download(op, req.DisableDownload, func(api qmt.DataAPI) error {
		return api.DownloadHistoryDataBatch(req.Codes, req.Period, req.Start, req.End)
	}); err != nil {
		return nil, err
	}
	return s.rangeQuery(ctx, op, req, func(api qmt.DataAPI) (map[string]qmt.ColumnBlock, error) {
		return api.GetFullKline(req.Fields, req.Codes, req.Period, req.Start, req.End, req.Count, req.Adjust, req.Fill)
	})
}

func (s *Service) rangeQuery(ctx context.Context, op string, req MarketDataRequest, fn func(qmt.DataAPI) (map[string]qmt.ColumnBlock, error)) ([]SymbolRows, error) {
	blocks, err := run(ctx, s, op, fn)
	if err != nil {
		return nil, err
	}
	out := make([]SymbolRows, 0, len(req.Codes))
	for _, code := range req.Codes {
		block, ok := blocks[code]
		if !ok {
			return nil, gwerr.Newf(gwerr.VendorError, op, "no data returned for %s", code)
		}
		out = append(out, SymbolRows{Code: code, Rows: Transpose(block)})
	}
	return out, nil
}

// FinancialData returns financial tables per symbol.
func (s *Service) FinancialData(ctx context.Context, req FinancialDataRequest) ([]SymbolTables, error) {
	const op = "data.financial_data"
	if len(req.Codes) == 0 {
		return nil, gwerr.New(gwerr.InvalidArgument, op, "codes is required")
	}
	if len(req.Tables) == 0 {
		return nil, gwerr.New(gwerr.InvalidArgument, op, "tables is required")
	}
	if err := s.download(op, req.DisableDownload, func(api qmt.DataAPI) error {
		return api.DownloadFinancialData(req.Codes, req.Tables)
	}); err != nil {
		return nil, err
	}
	blocks, err := run(ctx, s, op, func(api qmt.DataAPI) (map[string]map[string]qmt.ColumnBlock, error) {
		return api.GetFinancialData(req.Codes, req.Tables, req.Start, req.End)
	})
	if err != nil {
		return nil, err
	}
	out := make([]SymbolTables, 0, len(req.Codes))
	for _, code := range req.Codes {
		perTable, ok := blocks[code]
		if !ok {
			return nil, gwerr.Newf(gwerr.VendorError, op, "no data returned for %s", code)
		}
		tables := make(map[string][]Row, len(perTable))
		for name, block := range perTable {
			tables[name] = Transpose(block)
		}
		out = append(out, SymbolTables{Code: code, Tables: tables})
	}
	return out, nil
}

// ---- sector writes ----

func (s *Service) SectorCreateFolder(ctx context.Context, req SectorRequest) error {
	_, err := run(ctx, s, "data.sector_create_folder", func(api qmt.DataAPI) (any, error) {
		return nil, api.CreateSectorFolder(req.Parent, req.Sector, req.Overwrite)
	})
	return err
}

func (s *Service) SectorCreate(ctx context.Context, req SectorRequest) error {
	const op = "data.sector_create"
	if req.Sector == "" {
		return gwerr.New(gwerr.InvalidArgument, op, "sector is required")
	}
	_, err := run(ctx, s, op, func(api qmt.DataAPI) (any, error) {
		return nil, api.CreateSector(req.Parent, req.Sector, req.Overwrite)
	})
	return err
}

func (s *Service) SectorAddStocks(ctx context.Context, req SectorRequest) error {
	const op = "data.sector_add_stocks"
	if req.Sector == "" || len(req.Codes) == 0 {
		return gwerr.New(gwerr.InvalidArgument, op, "sector and codes are required")
	}
	_, err := run(ctx, s, op, func(api qmt.DataAPI) (any, error) {
		return nil, api.AddSector(req.Sector, req.Codes)
	})
	return err
}

func (s *Service) SectorRemoveStocks(ctx context.Context, req SectorRequest) error {
	const op = "data.sector_remove_stocks"
	if req.Sector == "" || len(req.Codes) == 0 {
		return gwerr.New(gwerr.InvalidArgument, op, "sector and codes are required")
	}
	_, err := run(ctx, s, op, func(api qmt.DataAPI) (any, error) {
		return nil, api.RemoveStockFromSector(req.Sector, req.Codes)
	})
	return err
}

func (s *Service) SectorRemove(ctx context.Context, req SectorRequest) error {
	const op = "data.sector_remove"
	if req.Sector == "" {
		return gwerr.New(gwerr.InvalidArgument, op, "sector is required")
	}
	_, err := run(ctx, s, op, func(api qmt.DataAPI) (any, error) {
		return nil, api.RemoveSector(req.Sector)
	})
	return err
}

func (s *Service) SectorReset(ctx context.Context, req SectorRequest) error {
	const op = "data.sector_reset"
	if req.Sector == "" {
		return gwerr.New(gwerr.InvalidArgument, op, "sector is required")
	}
	_, err := run(ctx, s, op, func(api qmt.DataAPI) (any, error) {
		return nil, api.ResetSector(req.Sector, req.Codes)
	})
	return err
}

// ---- download triggers ----

// Download runs one named vendor download under the download budget
// and reports a task record.
func (s *Service) Download(kind string, req DownloadRequest) (*DownloadTask, error) {
	op := "data.download_" + kind
	var fn func(qmt.DataAPI) error
	switch kind {
	case "history-data":
		if req.Code == "" {
			return nil, gwerr.New(gwerr.InvalidArgument, op, "code is required")
		}
		fn = func(api qmt.DataAPI) error {
			return api.DownloadHistoryData(req.Code, req.Period, req.Start, req.End)
		}
	case "history-data-batch":
		if len(req.Codes) == 0 {
			return nil, gwerr.New(gwerr.InvalidArgument, op, "codes is required")
		}
		fn = func(api qmt.DataAPI) error {
			return api.DownloadHistoryDataBatch(req.Codes, req.Period, req.Start, req.End)
		}
	case "financial-data", "financial-data-batch":
		if len(req.Codes) == 0 {
			return nil, gwerr.New(gwerr.InvalidArgument, op, "codes is required")
		}
		fn = func(api qmt.DataAPI) error {
			return api.DownloadFinancialData(req.Codes, req.Tables)
		}
	case "sector-data":
		fn = qmt.DataAPI.DownloadSectorData
	case "index-weight":
		fn = qmt.DataAPI.DownloadIndexWeight
	case "cb-data":
		fn = qmt.DataAPI.DownloadCBData
	case "etf-info":
		fn = qmt.DataAPI.DownloadETFInfo
	case "holiday-data":
		fn = qmt.DataAPI.DownloadHolidayData
	case "history-contracts":
		fn = qmt.DataAPI.DownloadHistoryContracts
	default:
		return nil, gwerr.Newf(gwerr.InvalidArgument, "data.download", "unknown download kind %q", kind)
	}

	// Explicit triggers run even when range-query downloads are disabled.
	dctx, cancel := context.WithTimeout(context.Background(), s.timeouts.Download)
	defer cancel()
	task := &DownloadTask{TaskID: uuid.NewString(), Status: "completed", Progress: 100}
	_, err := s.exec.Submit(dctx, op, func() (any, error) {
		if err := fn(s.api); err != nil {
			return nil, gwerr.Wrap(gwerr.VendorError, op, err)
		}
		return nil, nil
	})
	if err != nil {
		task.Status = "failed"
		task.Progress = 0
		task.Message = err.Error()
		s.logger.Warn().Err(err).Str("kind", kind).Str("task_id", task.TaskID).Msg("Download failed")
		return task, nil
	}
	return task, nil
}
