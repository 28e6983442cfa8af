package collector

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coinpaprika/coinpaprika-api-go-client/v2/coinpaprika"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"DipSentinel/internal/model"
)

// CoinpaprikaFetcher implements Fetcher with daily historical tickers from Coinpaprika.
// Each daily tick becomes a bar whose open, high, low and close equal the tick price.
type CoinpaprikaFetcher struct {
	http *http.Client

	mu  sync.Mutex
	ids map[string]string // symbol -> coin id, e.g. BTC -> btc-bitcoin
}

// NewCoinpaprikaFetcher creates a fetcher. apiKey selects the pro endpoint when set.
func NewCoinpaprikaFetcher(apiKey, proxyURL string) *CoinpaprikaFetcher {
	httpClient := newHTTPClient(proxyURL)
	if apiKey != "" {
		// WithAPIKey installs the auth transport on httpClient itself.
		coinpaprika.NewClient(httpClient, coinpaprika.WithAPIKey(apiKey))
	}
	return newCoinpaprikaFetcher(httpClient)
}

func newCoinpaprikaFetcher(httpClient *http.Client) *CoinpaprikaFetcher {
	return &CoinpaprikaFetcher{http: httpClient, ids: make(map[string]string)}
}

// contextTransport binds every outgoing request to ctx so the SDK calls honour cancellation.
type contextTransport struct {
	ctx  context.Context
	next http.RoundTripper
}

func (t contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.next.RoundTrip(req.WithContext(t.ctx))
}

// clientFor returns an SDK client whose requests are cancelled with ctx.
func (f *CoinpaprikaFetcher) clientFor(ctx context.Context) *coinpaprika.Client {
	hc := *f.http
	next := hc.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	hc.Transport = contextTransport{ctx: ctx, next: next}
	return coinpaprika.NewClient(&hc)
}

func (f *CoinpaprikaFetcher) Name() string { return "coinpaprika" }

// coinID resolves a ticker symbol to a coin id, trying a symbol search then a name search.
// Symbols that already look like coin ids are used as-is.
func (f *CoinpaprikaFetcher) coinID(client *coinpaprika.Client, symbol string) (string, error) {
	if strings.Contains(symbol, "-") {
		return strings.ToLower(symbol), nil
	}

	f.mu.Lock()
	id, ok := f.ids[symbol]
	f.mu.Unlock()
	if ok {
		return id, nil
	}

	result, err := client.Search.Search(&coinpaprika.SearchOptions{
		Query:      symbol,
		Categories: "currencies",
		Modifier:   "symbol_search",
	})
	if err != nil || len(result.Currencies) == 0 {
		log.WithField("instrument", symbol).Debug("no symbol match on coinpaprika, trying name search")
		result, err = client.Search.Search(&coinpaprika.SearchOptions{Query: symbol, Categories: "currencies"})
		if err != nil {
			return "", errors.Wrapf(err, "coinpaprika search %s", symbol)
		}
		if len(result.Currencies) == 0 || result.Currencies[0].ID == nil {
			return "", errors.Wrapf(ErrUnavailable, "coinpaprika has no coin for %s", symbol)
		}
	}

	id = *result.Currencies[0].ID
	f.mu.Lock()
	f.ids[symbol] = id
	f.mu.Unlock()
	return id, nil
}

func (f *CoinpaprikaFetcher) FetchDailyBars(ctx context.Context, symbol string, days int) ([]model.OHLCV, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client := f.clientFor(ctx)
	id, err := f.coinID(client, symbol)
	if err != nil {
		return nil, err
	}

	ticks, err := client.Tickers.GetHistoricalTickersByID(id, &coinpaprika.TickersHistoricalOptions{
		Quote:    "USD",
		Limit:    days,
		Interval: "1d",
		Start:    time.Now().UTC().AddDate(0, 0, -days),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "coinpaprika historical tickers for %s", id)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bars := make([]model.OHLCV, 0, len(ticks))
	for _, t := range ticks {
		if t == nil || t.Price == nil || t.Timestamp == nil {
			continue
		}
		p := *t.Price
		bars = append(bars, model.OHLCV{
			Time:   *t.Timestamp,
			Open:   p,
			High:   p,
			Low:    p,
			Close:  p,
			Volume: number(t.Volume24h),
		})
	}
	if len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	return bars, nil
}

func number[T ~int64 | ~float64](p *T) float64 {
	if p == nil {
		return 0
	}
	return float64(*p)
}
