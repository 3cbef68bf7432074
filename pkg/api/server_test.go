package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/swapbook/pkg/asset"
	"github.com/uhyunpark/swapbook/pkg/book"
	"github.com/uhyunpark/swapbook/pkg/ledger"
)

const (
	adminHex = "0x00000000000000000000000000000000000000AD"
	feeHex   = "0x00000000000000000000000000000000000000FE"
	aliceHex = "0xAA00000000000000000000000000000000000000"
	bobHex   = "0xBB00000000000000000000000000000000000000"
)

// newTestServer wires a real ledger, journal and engine behind the router.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	custody := common.HexToAddress("0x0000000000000000000000000000000000000001")
	l, err := ledger.NewLedger(dir+"/ledger.db", custody)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	registry := asset.NewRegistry()
	for _, entry := range []struct {
		symbol string
		min    int64
	}{{"GOLD", 100}, {"SILVER", 10}} {
		a, err := asset.New(entry.symbol, entry.min, 2)
		if err != nil {
			t.Fatalf("asset: %v", err)
		}
		if err := registry.Register(a); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	journal, err := book.NewJournal(dir + "/book.db")
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	t.Cleanup(func() { journal.Close() })

	engine := book.NewEngine(l, registry, book.Config{
		MakerFeeBps:  book.DefaultMakerFeeBps,
		TakerFeeBps:  book.DefaultTakerFeeBps,
		Admin:        common.HexToAddress(adminHex),
		FeeRecipient: common.HexToAddress(feeHex),
		Custody:      custody,
	})
	engine.Journal = journal

	s := NewServer(engine, l, registry, zap.NewNop().Sugar())
	engine.OnEvent = s.OnEngineEvent
	return s
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func fundAndApprove(t *testing.T, h http.Handler, addr, assetSym string, amount int64) {
	t.Helper()
	body := TransferRequest{Asset: assetSym, Amount: amount}
	if rec := doJSON(t, h, "POST", "/api/v1/accounts/"+addr+"/deposit", body); rec.Code != http.StatusOK {
		t.Fatalf("deposit: status %d: %s", rec.Code, rec.Body.String())
	}
	if rec := doJSON(t, h, "POST", "/api/v1/accounts/"+addr+"/approve", body); rec.Code != http.StatusOK {
		t.Fatalf("approve: status %d: %s", rec.Code, rec.Body.String())
	}
}

func createOrder(t *testing.T, h http.Handler, maker string) string {
	t.Helper()
	rec := doJSON(t, h, "POST", "/api/v1/orders", CreateOrderRequest{
		Maker:           maker,
		OfferedAsset:    "GOLD",
		OfferedAmount:   600,
		RequestedAsset:  "SILVER",
		RequestedAmount: 20,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create: status %d: %s", rec.Code, rec.Body.String())
	}
	var resp CreateOrderResponse
	decode(t, rec, &resp)
	if resp.OrderID == "" {
		t.Fatal("create response missing order id")
	}
	return resp.OrderID
}

func TestHealth(t *testing.T) {
	h := newTestServer(t).Handler()
	rec := doJSON(t, h, "GET", "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGetAssets(t *testing.T) {
	h := newTestServer(t).Handler()

	rec := doJSON(t, h, "GET", "/api/v1/assets", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var assets []AssetInfo
	decode(t, rec, &assets)
	if len(assets) != 2 {
		t.Errorf("assets = %d, want 2", len(assets))
	}
}

func TestGetOrdersEmpty(t *testing.T) {
	h := newTestServer(t).Handler()

	rec := doJSON(t, h, "GET", "/api/v1/orders", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var orders []OrderInfo
	decode(t, rec, &orders)
	if len(orders) != 0 {
		t.Errorf("orders = %d, want 0", len(orders))
	}
}

// The whole lifecycle over HTTP: fund, create, look up by the returned id,
// execute, verify everyone's balances and the trade history.
func TestSwapLifecycle(t *testing.T) {
	h := newTestServer(t).Handler()

	fundAndApprove(t, h, aliceHex, "GOLD", 600)
	fundAndApprove(t, h, bobHex, "SILVER", 20)

	orderID := createOrder(t, h, aliceHex)

	var count CountResponse
	decode(t, doJSON(t, h, "GET", "/api/v1/orders/count", nil), &count)
	if count.Count != 1 {
		t.Fatalf("count = %d, want 1", count.Count)
	}

	rec := doJSON(t, h, "GET", "/api/v1/orders/"+orderID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get order: status %d: %s", rec.Code, rec.Body.String())
	}
	var info OrderInfo
	decode(t, rec, &info)
	if info.ID != orderID || info.OfferedAmount != 600 || info.RequestedAmount != 20 {
		t.Errorf("order info = %+v", info)
	}

	rec = doJSON(t, h, "POST", "/api/v1/orders/"+orderID+"/execute", ExecuteOrderRequest{Taker: bobHex})
	if rec.Code != http.StatusOK {
		t.Fatalf("execute: status %d: %s", rec.Code, rec.Body.String())
	}

	// 600 GOLD for 20 SILVER at 150/80 bps: fees 0 SILVER and 4 GOLD.
	checks := []struct {
		addr  string
		asset string
		want  int64
	}{
		{aliceHex, "SILVER", 20},
		{aliceHex, "GOLD", 0},
		{bobHex, "GOLD", 596},
		{bobHex, "SILVER", 0},
		{feeHex, "GOLD", 4},
	}
	for _, c := range checks {
		var balances BalancesResponse
		decode(t, doJSON(t, h, "GET", "/api/v1/accounts/"+c.addr+"/balances", nil), &balances)
		if got := balances.Balances[c.asset]; got != c.want {
			t.Errorf("%s %s = %d, want %d", c.addr, c.asset, got, c.want)
		}
	}

	decode(t, doJSON(t, h, "GET", "/api/v1/orders/count", nil), &count)
	if count.Count != 0 {
		t.Errorf("count after execute = %d, want 0", count.Count)
	}
	if rec := doJSON(t, h, "GET", "/api/v1/orders/"+orderID, nil); rec.Code != http.StatusNotFound {
		t.Errorf("executed order lookup: status %d, want 404", rec.Code)
	}

	var trades []TradeInfo
	decode(t, doJSON(t, h, "GET", "/api/v1/trades", nil), &trades)
	if len(trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(trades))
	}
	if trades[0].OrderID != orderID || trades[0].OfferedFee != 4 || trades[0].RequestedFee != 0 {
		t.Errorf("trade = %+v", trades[0])
	}
}

func TestCancelFlow(t *testing.T) {
	h := newTestServer(t).Handler()

	fundAndApprove(t, h, aliceHex, "GOLD", 600)
	orderID := createOrder(t, h, aliceHex)

	rec := doJSON(t, h, "POST", "/api/v1/orders/"+orderID+"/cancel", CancelOrderRequest{Caller: bobHex})
	if rec.Code != http.StatusForbidden {
		t.Errorf("non-maker cancel: status %d, want 403", rec.Code)
	}

	rec = doJSON(t, h, "POST", "/api/v1/orders/"+orderID+"/cancel", CancelOrderRequest{Caller: aliceHex})
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: status %d: %s", rec.Code, rec.Body.String())
	}

	if rec := doJSON(t, h, "GET", "/api/v1/orders/"+orderID, nil); rec.Code != http.StatusNotFound {
		t.Errorf("canceled order lookup: status %d, want 404", rec.Code)
	}

	// Deposit refunded in full.
	var balances BalancesResponse
	decode(t, doJSON(t, h, "GET", "/api/v1/accounts/"+aliceHex+"/balances", nil), &balances)
	if got := balances.Balances["GOLD"]; got != 600 {
		t.Errorf("refund = %d, want 600", got)
	}
}

func TestCreateOrderRejections(t *testing.T) {
	h := newTestServer(t).Handler()

	rec := doJSON(t, h, "POST", "/api/v1/orders", CreateOrderRequest{
		Maker: "not-an-address", OfferedAsset: "GOLD", OfferedAmount: 600,
		RequestedAsset: "SILVER", RequestedAmount: 20,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad maker: status %d, want 400", rec.Code)
	}

	// Valid address, no funds.
	rec = doJSON(t, h, "POST", "/api/v1/orders", CreateOrderRequest{
		Maker: aliceHex, OfferedAsset: "GOLD", OfferedAmount: 600,
		RequestedAsset: "SILVER", RequestedAmount: 20,
	})
	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("unfunded maker: status %d, want 402", rec.Code)
	}

	// Same asset on both legs.
	fundAndApprove(t, h, aliceHex, "GOLD", 600)
	rec = doJSON(t, h, "POST", "/api/v1/orders", CreateOrderRequest{
		Maker: aliceHex, OfferedAsset: "GOLD", OfferedAmount: 600,
		RequestedAsset: "GOLD", RequestedAmount: 20,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("same asset: status %d, want 400", rec.Code)
	}
}

func TestExecuteRejections(t *testing.T) {
	h := newTestServer(t).Handler()

	rec := doJSON(t, h, "POST", "/api/v1/orders/0xdead/execute", ExecuteOrderRequest{Taker: bobHex})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown order: status %d, want 404", rec.Code)
	}

	fundAndApprove(t, h, aliceHex, "GOLD", 600)
	orderID := createOrder(t, h, aliceHex)

	// Taker never funded SILVER.
	rec = doJSON(t, h, "POST", "/api/v1/orders/"+orderID+"/execute", ExecuteOrderRequest{Taker: bobHex})
	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("unfunded taker: status %d, want 402", rec.Code)
	}

	// The order survives the failed settlement.
	if rec := doJSON(t, h, "GET", "/api/v1/orders/"+orderID, nil); rec.Code != http.StatusOK {
		t.Errorf("order lost after failed execute: status %d", rec.Code)
	}
}

func TestSetFeeRecipientEndpoint(t *testing.T) {
	h := newTestServer(t).Handler()

	rec := doJSON(t, h, "POST", "/api/v1/admin/fee-recipient", FeeRecipientRequest{
		Caller: bobHex, Recipient: aliceHex,
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("non-admin: status %d, want 403", rec.Code)
	}

	rec = doJSON(t, h, "POST", "/api/v1/admin/fee-recipient", FeeRecipientRequest{
		Caller: adminHex, Recipient: aliceHex,
	})
	if rec.Code != http.StatusOK {
		t.Errorf("admin: status %d, want 200", rec.Code)
	}
}

func TestLedgerEndpointRejections(t *testing.T) {
	h := newTestServer(t).Handler()

	rec := doJSON(t, h, "POST", "/api/v1/accounts/nope/deposit", TransferRequest{Asset: "GOLD", Amount: 100})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad address: status %d, want 400", rec.Code)
	}

	rec = doJSON(t, h, "POST", "/api/v1/accounts/"+aliceHex+"/withdraw", TransferRequest{Asset: "GOLD", Amount: 100})
	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("over-withdraw: status %d, want 402", rec.Code)
	}
}
