package backtest

// 默认成交参数
const (
	// DefaultMinOrderCash 现金必须严格大于该值才会买入
	DefaultMinOrderCash = 5000.0
	// DefaultInvestRatio 每次买入投入的现金比例，剩余部分作为手续费/滑点缓冲，永不动用
	DefaultInvestRatio = 0.99
)

// TradeType 交易方向
type TradeType string

const (
	TradeBuy  TradeType = "buy"
	TradeSell TradeType = "sell"
)

// Trade 交易记录
type Trade struct {
	Type      TradeType `json:"type"`
	Price     float64   `json:"price"`
	Amount    float64   `json:"amount"`
	Timestamp int64     `json:"timestamp"`
	Reason    string    `json:"reason"`
	Profit    *float64  `json:"profit,omitempty"` // 仅 sell 有值
}

// EquityPoint 权益快照
type EquityPoint struct {
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
}

// Ledger 单次回测的账本，只属于一次运行，不在运行之间共享
type Ledger struct {
	cash     float64
	position float64
	trades   []Trade
	equity   []EquityPoint

	minOrderCash float64
	investRatio  float64
}

// NewLedger 创建账本
func NewLedger(initialCapital, minOrderCash, investRatio float64) *Ledger {
	return &Ledger{
		cash:         initialCapital,
		trades:       make([]Trade, 0),
		equity:       make([]EquityPoint, 0),
		minOrderCash: minOrderCash,
		investRatio:  investRatio,
	}
}

// Buy 买入：现金大于最小下单金额时，投入 investRatio 比例的现金
// 已有持仓时也可以继续买入
func (l *Ledger) Buy(price float64, timestamp int64, reason string) bool {
	if l.cash <= l.minOrderCash {
		return false
	}

	amount := (l.cash * l.investRatio) / price
	l.cash -= amount * price
	l.position += amount

	l.trades = append(l.trades, Trade{
		Type:      TradeBuy,
		Price:     price,
		Amount:    amount,
		Timestamp: timestamp,
		Reason:    reason,
	})
	return true
}

// Sell 卖出全部持仓
// 盈亏只按最近一笔买入价计算：连续多次买入时，更早买入的成本被忽略
func (l *Ledger) Sell(price float64, timestamp int64, reason string) bool {
	if l.position <= 0 {
		return false
	}

	amount := l.position
	profit := (price - l.lastBuyPrice(price)) * amount

	l.cash += amount * price
	l.position = 0

	l.trades = append(l.trades, Trade{
		Type:      TradeSell,
		Price:     price,
		Amount:    amount,
		Timestamp: timestamp,
		Reason:    reason,
		Profit:    &profit,
	})
	return true
}

// lastBuyPrice 倒序查找最近一笔买入价，找不到时返回 fallback
func (l *Ledger) lastBuyPrice(fallback float64) float64 {
	for i := len(l.trades) - 1; i >= 0; i-- {
		if l.trades[i].Type == TradeBuy {
			return l.trades[i].Price
		}
	}
	return fallback
}

// Snapshot 记录权益快照：现金 + 持仓 * 收盘价
func (l *Ledger) Snapshot(timestamp int64, closePrice float64) {
	l.equity = append(l.equity, EquityPoint{
		Timestamp: timestamp,
		Value:     l.Value(closePrice),
	})
}

// Value 按给定价格计算的账户总值
func (l *Ledger) Value(price float64) float64 {
	return l.cash + l.position*price
}

// Cash 当前现金
func (l *Ledger) Cash() float64 { return l.cash }

// Position 当前持仓数量
func (l *Ledger) Position() float64 { return l.position }

// Trades 交易记录
func (l *Ledger) Trades() []Trade { return l.trades }

// Equity 权益曲线
func (l *Ledger) Equity() []EquityPoint { return l.equity }
