package ledger

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"

	"kwh-exchange/domain"
)

// submitRequest/submitResponse mirror the external ledger's wire contract.
type submitRequest struct {
	TradeID  string `json:"trade_id"`
	Buyer    string `json:"buyer"`
	Seller   string `json:"seller"`
	Quantity int64  `json:"quantity"`
	Price    int64  `json:"price"`
	Fee      string `json:"fee"`
}

type submitResponse struct {
	Tx     string `json:"tx"`
	Status string `json:"status"` // "accepted" | "duplicate"
}

type statusResponse struct {
	State       string    `json:"state"` // "pending" | "confirmed" | "failed"
	ConfirmedAt time.Time `json:"confirmed_at"`
	Error       string    `json:"error"`
}

// HTTPClient submits trades to the external settlement ledger over REST,
// wrapped in a circuit breaker so a down ledger stops being hammered by
// every settlement worker at once.
type HTTPClient struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker[*resty.Response]
}

// NewHTTPClient builds a client against baseURL with the given request
// timeout. The breaker trips after 5 consecutive failures and probes again
// after 30s.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	breaker := gobreaker.NewCircuitBreaker[*resty.Response](gobreaker.Settings{
		Name:        "ledger",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &HTTPClient{http: httpClient, breaker: breaker}
}

func (c *HTTPClient) Submit(ctx context.Context, tradeID, buyer, seller string, quantity domain.Quantity, price domain.Price, fee decimal.Decimal) Outcome {
	req := submitRequest{
		TradeID:  tradeID,
		Buyer:    buyer,
		Seller:   seller,
		Quantity: int64(quantity),
		Price:    int64(price),
		Fee:      fee.String(),
	}

	var result submitResponse
	resp, err := c.breaker.Execute(func() (*resty.Response, error) {
		r, err := c.http.R().
			SetContext(ctx).
			SetBody(req).
			SetResult(&result).
			Post("/settlements")
		if err != nil {
			return r, err
		}
		if r.StatusCode() >= 500 {
			return r, fmt.Errorf("ledger 5xx: %s", r.Status())
		}
		return r, nil
	})

	if err != nil {
		if errIsBreakerOpenOrTimeout(err) {
			return Outcome{Kind: Transient, Err: err}
		}
		return Outcome{Kind: Transient, Err: fmt.Errorf("submit trade %s: %w", tradeID, err)}
	}

	switch resp.StatusCode() {
	case http.StatusOK, http.StatusCreated:
		kind := Accepted
		if result.Status == "duplicate" {
			kind = AlreadyExists
		}
		return Outcome{Kind: kind, Tx: result.Tx}
	case http.StatusConflict:
		return Outcome{Kind: AlreadyExists, Tx: result.Tx}
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return Outcome{Kind: Permanent, Err: fmt.Errorf("submit trade %s rejected: %s", tradeID, resp.String())}
	default:
		return Outcome{Kind: Transient, Err: fmt.Errorf("submit trade %s: unexpected status %d", tradeID, resp.StatusCode())}
	}
}

func (c *HTTPClient) Status(ctx context.Context, tx string) Status {
	var result statusResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/settlements/" + tx)
	if err != nil {
		return Status{Kind: Unknown, Err: err}
	}
	if resp.StatusCode() == http.StatusNotFound {
		return Status{Kind: Unknown}
	}
	if resp.StatusCode() != http.StatusOK {
		return Status{Kind: Unknown, Err: fmt.Errorf("status %s: unexpected status %d", tx, resp.StatusCode())}
	}

	switch result.State {
	case "pending":
		return Status{Kind: Pending}
	case "confirmed":
		return Status{Kind: Confirmed, ConfirmedAt: result.ConfirmedAt}
	case "failed":
		return Status{Kind: Failed, Err: fmt.Errorf("%s", result.Error)}
	default:
		return Status{Kind: Unknown}
	}
}

func errIsBreakerOpenOrTimeout(err error) bool {
	return err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests
}
