package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/latencyarb/internal/domain"
	"github.com/alanyoungcy/latencyarb/internal/platform/kalshi"
)

// DefaultLiquidityFloor is the per-side depth, in contracts, below which a
// market is flagged as thin.
const DefaultLiquidityFloor = 500

const (
	searchPageSize = 200
	searchMaxPages = 25
)

// Exchange is the read side of the exchange client.
type Exchange interface {
	Authenticate(ctx context.Context) (kalshi.AuthInfo, error)
	GetMarket(ctx context.Context, ticker string) (domain.Market, error)
	GetMarkets(ctx context.Context, q kalshi.MarketQuery) ([]domain.Market, string, error)
	GetOrderbook(ctx context.Context, ticker string) (domain.MarketSnapshot, error)
	GetBalance(ctx context.Context) (domain.Balance, error)
	GetPositions(ctx context.Context, ticker string) ([]domain.ExchangePosition, error)
}

// MarketService fetches market data and account state. Every call is timed
// and logged; latency is informational and never aborts a call.
type MarketService struct {
	exchange Exchange
	prices   *PriceService
	floor    int64
	logger   *slog.Logger
}

// NewMarketService creates a MarketService. prices may be nil.
func NewMarketService(exchange Exchange, prices *PriceService, liquidityFloor int64, logger *slog.Logger) *MarketService {
	if liquidityFloor <= 0 {
		liquidityFloor = DefaultLiquidityFloor
	}
	return &MarketService{
		exchange: exchange,
		prices:   prices,
		floor:    liquidityFloor,
		logger:   logger.With(slog.String("component", "market_service")),
	}
}

// LiquidityFloor returns the configured depth threshold.
func (s *MarketService) LiquidityFloor() int64 { return s.floor }

func (s *MarketService) timed(ctx context.Context, op, ticker string, start time.Time, err error) time.Duration {
	elapsed := time.Since(start)
	attrs := []any{
		slog.String("op", op),
		slog.Duration("latency", elapsed),
	}
	if ticker != "" {
		attrs = append(attrs, slog.String("ticker", ticker))
	}
	if err != nil {
		s.logger.WarnContext(ctx, "exchange call failed", append(attrs, slog.String("error", err.Error()))...)
	} else {
		s.logger.DebugContext(ctx, "exchange call", attrs...)
	}
	return elapsed
}

// Authenticate runs an explicit credential check.
func (s *MarketService) Authenticate(ctx context.Context) (kalshi.AuthInfo, error) {
	start := time.Now()
	info, err := s.exchange.Authenticate(ctx)
	s.timed(ctx, "authenticate", "", start, err)
	if err != nil {
		return kalshi.AuthInfo{}, fmt.Errorf("market_service: authenticate: %w", err)
	}
	return info, nil
}

// GetSnapshot fetches the orderbook for ticker and refreshes the reference
// prices from it.
func (s *MarketService) GetSnapshot(ctx context.Context, ticker string) (domain.MarketSnapshot, error) {
	start := time.Now()
	snap, err := s.exchange.GetOrderbook(ctx, ticker)
	snap.Latency = s.timed(ctx, "orderbook", ticker, start, err)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("market_service: snapshot %q: %w", ticker, err)
	}
	if s.prices != nil {
		if perr := s.prices.HandleSnapshot(ctx, snap); perr != nil {
			s.logger.WarnContext(ctx, "reference price update failed",
				slog.String("ticker", ticker),
				slog.String("error", perr.Error()),
			)
		}
	}
	return snap, nil
}

// GetDepth sums both sides of the book and flags each against the floor.
func (s *MarketService) GetDepth(ctx context.Context, ticker string) (domain.Depth, error) {
	snap, err := s.GetSnapshot(ctx, ticker)
	if err != nil {
		return domain.Depth{}, err
	}
	yes, no := snap.Depth(domain.SideYes), snap.Depth(domain.SideNo)
	return domain.Depth{
		Ticker:        ticker,
		YesDepth:      yes,
		NoDepth:       no,
		SufficientYes: yes >= s.floor,
		SufficientNo:  no >= s.floor,
		Latency:       snap.Latency,
	}, nil
}

// GetMarket returns market metadata for ticker.
func (s *MarketService) GetMarket(ctx context.Context, ticker string) (domain.Market, error) {
	start := time.Now()
	m, err := s.exchange.GetMarket(ctx, ticker)
	s.timed(ctx, "market", ticker, start, err)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: market %q: %w", ticker, err)
	}
	return m, nil
}

// SearchMarkets lists open markets whose ticker starts with prefix, walking
// the cursor until limit matches are found or the listing ends.
func (s *MarketService) SearchMarkets(ctx context.Context, prefix string, limit int) ([]domain.Market, error) {
	if limit <= 0 {
		limit = 50
	}
	prefix = strings.ToUpper(strings.TrimSpace(prefix))

	start := time.Now()
	out := make([]domain.Market, 0, limit)
	cursor := ""
	for page := 0; page < searchMaxPages; page++ {
		markets, next, err := s.exchange.GetMarkets(ctx, kalshi.MarketQuery{
			Status: "open",
			Limit:  searchPageSize,
			Cursor: cursor,
		})
		if err != nil {
			s.timed(ctx, "search", prefix, start, err)
			return nil, fmt.Errorf("market_service: search %q: %w", prefix, err)
		}
		for _, m := range markets {
			if strings.HasPrefix(strings.ToUpper(m.Ticker), prefix) {
				out = append(out, m)
				if len(out) == limit {
					s.timed(ctx, "search", prefix, start, nil)
					return out, nil
				}
			}
		}
		if next == "" {
			break
		}
		cursor = next
	}
	s.timed(ctx, "search", prefix, start, nil)
	return out, nil
}

// GetBalance returns the account balance.
func (s *MarketService) GetBalance(ctx context.Context) (domain.Balance, error) {
	start := time.Now()
	b, err := s.exchange.GetBalance(ctx)
	s.timed(ctx, "balance", "", start, err)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("market_service: balance: %w", err)
	}
	return b, nil
}

// GetExchangePositions returns exchange-side positions, narrowed to ticker
// when it is non-empty.
func (s *MarketService) GetExchangePositions(ctx context.Context, ticker string) ([]domain.ExchangePosition, error) {
	start := time.Now()
	ps, err := s.exchange.GetPositions(ctx, ticker)
	s.timed(ctx, "positions", ticker, start, err)
	if err != nil {
		return nil, fmt.Errorf("market_service: positions: %w", err)
	}
	if ticker == "" {
		return ps, nil
	}
	out := ps[:0]
	for _, p := range ps {
		if p.Ticker == ticker {
			out = append(out, p)
		}
	}
	return out, nil
}
