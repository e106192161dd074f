// Seeds a running node with demo activity over its REST API: deposits for
// two users, a cancelled order, three filled orders and ten resting orders
// per side, so a fresh frontend has something to show.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/jmallek/escrowdex/pkg/api"
	"github.com/jmallek/escrowdex/pkg/util"
)

// Base-unit scale for 6-decimal tokens.
const unit = 1_000_000

// user1 is the deployer (holds every token's initial supply).
const (
	user1 = "0xde00000000000000000000000000000000000001"
	user2 = "0xbe00000000000000000000000000000000000002"
)

func units(n uint64) uint64 { return n * unit }

type client struct {
	base string
	http *http.Client
	log  *zap.SugaredLogger
}

func (c *client) post(path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.http.Post(c.base+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr api.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("%s: %s %s (%d)", path, apiErr.Error, apiErr.Message, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *client) get(path string, out any) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) approveAndDeposit(user, token string, amount uint64) {
	if err := c.post("/api/v1/tokens/"+token+"/approve", api.ApproveRequest{Owner: user, Amount: amount}, nil); err != nil {
		c.log.Fatalw("approve_failed", "err", err)
	}
	c.log.Infow("approved", "user", user, "token", token, "amount", amount)

	if err := c.post("/api/v1/deposit", api.DepositRequest{From: user, Token: token, Amount: amount}, nil); err != nil {
		c.log.Fatalw("deposit_failed", "err", err)
	}
	c.log.Infow("deposited", "user", user, "token", token, "amount", amount)
}

func (c *client) makeOrder(user, tokenGet string, amountGet uint64, tokenGive string, amountGive uint64) uint64 {
	var resp api.MakeOrderResponse
	req := api.MakeOrderRequest{
		From:       user,
		TokenGet:   tokenGet,
		AmountGet:  amountGet,
		TokenGive:  tokenGive,
		AmountGive: amountGive,
	}
	if err := c.post("/api/v1/orders", req, &resp); err != nil {
		c.log.Fatalw("make_order_failed", "err", err)
	}
	c.log.Infow("order_made", "id", resp.ID, "user", user)
	return resp.ID
}

func main() {
	base := os.Getenv("API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}

	logger, err := util.NewLogger()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	c := &client{base: base, http: &http.Client{Timeout: 10 * time.Second}, log: logger.Sugar()}

	// Resolve token addresses by symbol.
	var tokens []api.TokenInfo
	if err := c.get("/api/v1/tokens", &tokens); err != nil {
		c.log.Fatalw("token_list_failed", "err", err)
	}
	bySymbol := make(map[string]string, len(tokens))
	for _, t := range tokens {
		bySymbol[t.Symbol] = t.Address
		c.log.Infow("token", "symbol", t.Symbol, "address", t.Address)
	}
	dapp, meth := bySymbol["DAPP"], bySymbol["mETH"]
	if dapp == "" || meth == "" {
		c.log.Fatal("node is missing demo tokens")
	}

	// Fund user2 with mETH from the deployer's supply.
	if err := c.post("/api/v1/tokens/"+meth+"/transfer", api.TransferRequest{From: user1, To: user2, Amount: units(10000)}, nil); err != nil {
		c.log.Fatalw("transfer_failed", "err", err)
	}
	c.log.Infow("transferred", "token", "mETH", "from", user1, "to", user2)

	// Escrow both sides.
	c.approveAndDeposit(user1, dapp, units(10000))
	c.approveAndDeposit(user2, meth, units(10000))

	// A cancelled order.
	id := c.makeOrder(user1, meth, units(100), dapp, units(5))
	if err := c.post(fmt.Sprintf("/api/v1/orders/%d/cancel", id), api.OrderActionRequest{From: user1}, nil); err != nil {
		c.log.Fatalw("cancel_failed", "err", err)
	}
	c.log.Infow("order_cancelled", "id", id)

	// Three filled orders.
	fills := []struct{ get, give uint64 }{
		{units(100), units(10)},
		{units(50), units(15)},
		{units(200), units(20)},
	}
	for _, f := range fills {
		id := c.makeOrder(user1, meth, f.get, dapp, f.give)
		if err := c.post(fmt.Sprintf("/api/v1/orders/%d/fill", id), api.OrderActionRequest{From: user2}, nil); err != nil {
			c.log.Fatalw("fill_failed", "err", err)
		}
		c.log.Infow("order_filled", "id", id)
		time.Sleep(time.Second)
	}

	// Resting orders on both sides of the book.
	for i := uint64(1); i <= 10; i++ {
		c.makeOrder(user1, meth, units(10*i), dapp, units(10))
		time.Sleep(time.Second)
	}
	for i := uint64(1); i <= 10; i++ {
		c.makeOrder(user2, dapp, units(10), meth, units(10*i))
		time.Sleep(time.Second)
	}

	c.log.Info("seed_complete")
}
