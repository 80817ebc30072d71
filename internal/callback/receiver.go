package callback

import (
	"time"

	"github.com/quantgate/qmt-gateway/internal/qmt"
)

// Receiver adapts the vendor callback interface to the dispatcher.
// Each method runs on a vendor thread and does nothing beyond packing
// the event into a Record and handing it off.
type Receiver struct {
	accountID string
	d         *Dispatcher
}

// NewReceiver builds the vendor-facing adapter for one account.
func NewReceiver(accountID string, d *Dispatcher) *Receiver {
	return &Receiver{accountID: accountID, d: d}
}

var _ qmt.Receiver = (*Receiver)(nil)

func (r *Receiver) publish(kind Kind, account string, seq int64, data any) {
	r.d.Publish(Record{
		Kind:      kind,
		AccountID: account,
		Timestamp: time.Now().UTC(),
		Seq:       seq,
		Data:      data,
	})
}

func (r *Receiver) OnConnected() {
	r.publish(KindConnected, "", 0, map[string]any{"account_id": r.accountID})
}

func (r *Receiver) OnDisconnected() {
	r.publish(KindDisconnected, "", 0, map[string]any{"account_id": r.accountID})
}

func (r *Receiver) OnAccountStatus(s qmt.AccountStatus) {
	r.publish(KindAccountStatus, orDefault(s.AccountID, r.accountID), 0, s)
}

func (r *Receiver) OnAsset(a qmt.Asset) {
	r.publish(KindAsset, orDefault(a.AccountID, r.accountID), 0, a)
}

func (r *Receiver) OnOrder(o qmt.Order) {
	r.publish(KindOrder, orDefault(o.AccountID, r.accountID), 0, o)
}

func (r *Receiver) OnTrade(t qmt.Trade) {
	r.publish(KindTrade, orDefault(t.AccountID, r.accountID), 0, t)
}

func (r *Receiver) OnPosition(p qmt.Position) {
	r.publish(KindPosition, orDefault(p.AccountID, r.accountID), 0, p)
}

func (r *Receiver) OnOrderError(e qmt.OrderError) {
	r.publish(KindOrderError, orDefault(e.AccountID, r.accountID), 0, e)
}

func (r *Receiver) OnCancelError(e qmt.CancelError) {
	r.publish(KindCancelError, orDefault(e.AccountID, r.accountID), 0, e)
}

func (r *Receiver) OnOrderStockAsyncResponse(res qmt.AsyncSeqResult) {
	r.publish(KindAsyncOrder, orDefault(res.AccountID, r.accountID), res.Seq, res)
}

func (r *Receiver) OnCancelOrderAsyncResponse(res qmt.AsyncSeqResult) {
	r.publish(KindAsyncCancel, orDefault(res.AccountID, r.accountID), res.Seq, res)
}

func orDefault(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
