package qmt

// Receiver is the vendor callback interface. Methods fire on vendor
// threads; implementations must only pack the event and enqueue.
type Receiver interface {
	OnConnected()
	OnDisconnected()
	OnAccountStatus(AccountStatus)
	OnAsset(Asset)
	OnOrder(Order)
	OnTrade(Trade)
	OnPosition(Position)
	OnOrderError(OrderError)
	OnCancelError(CancelError)
	OnOrderStockAsyncResponse(AsyncSeqResult)
	OnCancelOrderAsyncResponse(AsyncSeqResult)
}

// Trader is one vendor trading handle. All methods block; calls are
// non-reentrant per handle and must go through the executor.
type Trader interface {
	// RegisterCallback installs the callback receiver. Must precede Start.
	RegisterCallback(Receiver)
	// Start launches the vendor I/O thread.
	Start() error
	// Connect establishes the broker link. Non-zero means unavailable.
	Connect() int
	// SubscribeAccount enables callbacks for the account. Non-zero is failure.
	SubscribeAccount(accountID string) int
	// Stop tears the handle down. Safe to call more than once.
	Stop()

	QueryAsset(accountID string) (*Asset, error)
	QueryPositions(accountID string) ([]Position, error)
	QueryOrders(accountID string) ([]Order, error)
	QueryTrades(accountID string) ([]Trade, error)

	// OrderStock submits synchronously and returns the vendor order id,
	// negative on rejection.
	OrderStock(req OrderRequest) int64
	// CancelOrder cancels by vendor order id. Zero is success.
	CancelOrder(accountID string, orderID int64) int
	// CancelOrderSysID cancels by exchange order id. Zero is success.
	CancelOrderSysID(accountID, market, orderSysID string) int

	// OrderStockAsync submits and returns immediately; the ack arrives on
	// the Receiver carrying seq.
	OrderStockAsync(req OrderRequest, seq int64) error
	// CancelOrderAsync cancels and returns immediately; the ack arrives on
	// the Receiver carrying seq.
	CancelOrderAsync(accountID string, orderID int64, orderSysID string, seq int64) error
}

// TickHandler receives quote pushes on vendor threads.
type TickHandler func(code string, tick Tick)

// DataAPI is the vendor market-data surface. All methods block.
type DataAPI interface {
	// Point queries
	GetInstrumentDetail(code string) (*InstrumentDetail, error)
	GetInstrumentType(code string) ([]string, error)
	GetHolidays() ([]string, error)
	GetTradingCalendar(year int) ([]string, error)
	GetSectorList() ([]string, error)
	GetStockListInSector(sector string) ([]string, error)
	GetIndexWeight(indexCode string) (map[string]float64, error)
	GetPeriodList() ([]string, error)
	GetIPOInfo(market string) ([]IPOInfo, error)
	GetCBInfo() ([]CBInfo, error)
	GetDividFactors(code, start, end string) (ColumnBlock, error)
	GetFullTick(codes []string) (map[string]Tick, error)
	GetL2Quote(code, start, end string) (ColumnBlock, error)
	GetL2Order(code, start, end string) (ColumnBlock, error)
	GetL2Transaction(code, start, end string) (ColumnBlock, error)
	// DataDir reports the vendor's local data directory.
	DataDir() (string, error)

	// Range queries; one ColumnBlock per symbol (per table for financial)
	GetMarketData(fields []string, codes []string, period, start, end string, count int, adjust string, fill string) (map[string]ColumnBlock, error)
	GetLocalData(fields []string, codes []string, period, start, end string, count int, adjust string, fill string) (map[string]ColumnBlock, error)
	GetFullKline(fields []string, codes []string, period, start, end string, count int, adjust string, fill string) (map[string]ColumnBlock, error)
	GetFinancialData(codes []string, tables []string, start, end string) (map[string]map[string]ColumnBlock, error)

	// Download primitives
	DownloadHistoryData(code, period, start, end string) error
	DownloadHistoryDataBatch(codes []string, period, start, end string) error
	DownloadFinancialData(codes []string, tables []string) error
	DownloadSectorData() error
	DownloadIndexWeight() error
	DownloadCBData() error
	DownloadETFInfo() error
	DownloadHolidayData() error
	DownloadHistoryContracts() error

	// Sector writes
	CreateSectorFolder(parent, folder string, overwrite bool) error
	CreateSector(parent, sector string, overwrite bool) error
	AddSector(sector string, codes []string) error
	RemoveStockFromSector(sector string, codes []string) error
	RemoveSector(sector string) error
	ResetSector(sector string, codes []string) error

	// Quote push registration. The returned id is the vendor-side handle.
	SubscribeQuote(codes []string, period string, h TickHandler) (int, error)
	SubscribeWholeQuote(markets []string, h TickHandler) (int, error)
	UnsubscribeQuote(id int) error
}

// Driver opens vendor handles. Implementations are registered at init.
type Driver interface {
	// OpenData returns the market-data API bound to the userdata path.
	OpenData(userdataPath string) (DataAPI, error)
	// NewTrader returns a fresh trading handle for the account.
	NewTrader(userdataPath, accountID string) (Trader, error)
}
