package offers

import (
	"context"
	"errors"
	"sync"
	"testing"

	"signature-elite-server/apperror"
	"signature-elite-server/auth"
	"signature-elite-server/keylock"
	"signature-elite-server/models"
	"signature-elite-server/payment"
	"signature-elite-server/registry"
	"signature-elite-server/testutil"
	"signature-elite-server/trust"
	"signature-elite-server/users"

	"gorm.io/gorm"
)

var (
	agentClaim  = auth.Claim{Email: "agent@x.io", Name: "Agent", Role: models.RoleAgent}
	otherAgent  = auth.Claim{Email: "other@x.io", Role: models.RoleAgent}
	adminClaim  = auth.Claim{Email: "admin@x.io", Role: models.RoleAdmin}
	buyerClaim  = auth.Claim{Email: "buyer@x.io", Name: "Buyer", Role: models.RoleUser}
	buyer2Claim = auth.Claim{Email: "buyer2@x.io", Name: "Buyer Two", Role: models.RoleUser}
)

type fakeGateway struct {
	mu       sync.Mutex
	amounts  []int64
	metadata map[string]string
	err      error
}

func (g *fakeGateway) CreatePaymentIntent(_ context.Context, amountMinor int64, currency string, metadata map[string]string) (payment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.amounts = append(g.amounts, amountMinor)
	g.metadata = metadata
	if g.err != nil {
		return payment.Intent{}, g.err
	}
	return payment.Intent{ID: "pi_test", ClientSecret: "pi_test_secret", AmountMinor: amountMinor, Currency: currency}, nil
}

type fixture struct {
	db       *gorm.DB
	ledger   *Ledger
	registry *registry.Registry
	users    *users.Directory
	gateway  *fakeGateway
}

func newFixture(t *testing.T, locks keylock.Locker) fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	seed := []models.User{
		{Email: "agent@x.io", Name: "Agent", Role: models.RoleAgent},
		{Email: "other@x.io", Name: "Other", Role: models.RoleAgent},
		{Email: "admin@x.io", Role: models.RoleAdmin},
		{Email: "buyer@x.io", Role: models.RoleUser},
		{Email: "buyer2@x.io", Role: models.RoleUser},
	}
	if err := db.Create(&seed).Error; err != nil {
		t.Fatalf("seed users: %v", err)
	}
	dir := users.NewDirectory(db)
	reg := registry.New(db, dir, nil)
	gw := &fakeGateway{}
	ledger := NewLedger(db, reg, dir, payment.NewBridge(gw, "usd", nil), locks, nil)
	return fixture{db: db, ledger: ledger, registry: reg, users: dir, gateway: gw}
}

func (f fixture) property(t *testing.T, verify bool) models.Property {
	t.Helper()
	ctx := context.Background()
	p, err := f.registry.Create(ctx, agentClaim, registry.PropertyInput{Title: "Lake House", Location: "Sylhet", MinPrice: 90000, MaxPrice: 150000})
	if err != nil {
		t.Fatalf("create property: %v", err)
	}
	if verify {
		p, err = f.registry.SetVerification(ctx, adminClaim, p.ID, models.VerificationVerified)
		if err != nil {
			t.Fatalf("verify property: %v", err)
		}
	}
	return p
}

func (f fixture) submit(t *testing.T, claim auth.Claim, propertyID uint, amount float64) models.Offer {
	t.Helper()
	o, err := f.ledger.Submit(context.Background(), claim, SubmitRequest{PropertyID: propertyID, OfferAmount: amount})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return o
}

func (f fixture) status(t *testing.T, id uint) models.OfferStatus {
	t.Helper()
	var o models.Offer
	if err := f.db.First(&o, id).Error; err != nil {
		t.Fatalf("load offer %d: %v", id, err)
	}
	return o.Status
}

func TestSubmit(t *testing.T) {
	f := newFixture(t, nil)
	p := f.property(t, true)

	o := f.submit(t, buyerClaim, p.ID, 100000)
	if o.Status != models.OfferPending {
		t.Fatalf("status = %s, want pending", o.Status)
	}
	if o.PropertyTitle != "Lake House" || o.AgentEmail != "agent@x.io" || o.BuyerEmail != "buyer@x.io" || o.BuyerName != "Buyer" {
		t.Fatalf("snapshot not copied: %+v", o)
	}
}

func TestSubmitRejects(t *testing.T) {
	f := newFixture(t, nil)
	verified := f.property(t, true)
	pending := f.property(t, false)
	ctx := context.Background()

	tests := []struct {
		name  string
		claim auth.Claim
		req   SubmitRequest
		want  error
	}{
		{"no buyer", auth.Claim{}, SubmitRequest{PropertyID: verified.ID, OfferAmount: 10}, apperror.ErrInvalidInput},
		{"no property", buyerClaim, SubmitRequest{OfferAmount: 10}, apperror.ErrInvalidInput},
		{"no amount", buyerClaim, SubmitRequest{PropertyID: verified.ID}, apperror.ErrInvalidInput},
		{"negative amount", buyerClaim, SubmitRequest{PropertyID: verified.ID, OfferAmount: -1}, apperror.ErrInvalidInput},
		{"unknown property", buyerClaim, SubmitRequest{PropertyID: 999, OfferAmount: 10}, apperror.ErrNotFound},
		{"unverified property", buyerClaim, SubmitRequest{PropertyID: pending.ID, OfferAmount: 10}, apperror.ErrForbidden},
		{"agent cannot buy", otherAgent, SubmitRequest{PropertyID: verified.ID, OfferAmount: 10}, apperror.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.ledger.Submit(ctx, tt.claim, tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAcceptRejectsPendingSiblings(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	p := f.property(t, true)
	o1 := f.submit(t, buyerClaim, p.ID, 100000)
	o2 := f.submit(t, buyer2Claim, p.ID, 110000)

	got, err := f.ledger.Decide(ctx, agentClaim, o2.ID, models.OfferAccepted)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got.Status != models.OfferAccepted {
		t.Fatalf("status = %s, want accepted", got.Status)
	}
	if s := f.status(t, o1.ID); s != models.OfferRejected {
		t.Fatalf("sibling status = %s, want rejected", s)
	}
	if _, err := f.ledger.Decide(ctx, agentClaim, o1.ID, models.OfferAccepted); !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("accept rejected sibling = %v, want conflict", err)
	}
	if _, err := f.ledger.Decide(ctx, agentClaim, o2.ID, models.OfferRejected); !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("reject accepted = %v, want conflict", err)
	}
}

func TestDecideAuthorization(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	p := f.property(t, true)
	o := f.submit(t, buyerClaim, p.ID, 100000)

	for _, claim := range []auth.Claim{otherAgent, buyerClaim, {}} {
		if _, err := f.ledger.Decide(ctx, claim, o.ID, models.OfferAccepted); !errors.Is(err, apperror.ErrForbidden) {
			t.Fatalf("Decide as %+v = %v, want forbidden", claim, err)
		}
	}
	if _, err := f.ledger.Decide(ctx, agentClaim, o.ID, models.OfferStatus("bought")); !errors.Is(err, apperror.ErrInvalidInput) {
		t.Fatalf("bad decision = %v, want invalid input", err)
	}
	if _, err := f.ledger.Decide(ctx, agentClaim, 404, models.OfferAccepted); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("missing offer = %v, want not found", err)
	}
	got, err := f.ledger.Decide(ctx, adminClaim, o.ID, models.OfferRejected)
	if err != nil || got.Status != models.OfferRejected {
		t.Fatalf("admin reject = %+v, %v", got, err)
	}
}

func TestConcurrentAcceptsLeaveOneActive(t *testing.T) {
	f := newFixture(t, keylock.NewLocal())
	ctx := context.Background()
	p := f.property(t, true)

	const n = 8
	ids := make([]uint, n)
	for i := range ids {
		ids[i] = f.submit(t, buyerClaim, p.ID, float64(100000+i)).ID
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id uint) {
			defer wg.Done()
			_, errs[i] = f.ledger.Decide(ctx, agentClaim, id, models.OfferAccepted)
		}(i, id)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, apperror.ErrConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("%d accepts succeeded, want 1", wins)
	}
	var active int64
	f.db.Model(&models.Offer{}).Where("property_id = ? AND status IN ?", p.ID, models.ActiveOfferStatuses).Count(&active)
	if active != 1 {
		t.Fatalf("active offers = %d, want 1", active)
	}
}

func TestAcceptWithoutLockStillGuarded(t *testing.T) {
	f := newFixture(t, keylock.Nop{})
	ctx := context.Background()
	p := f.property(t, true)
	o1 := f.submit(t, buyerClaim, p.ID, 100000)
	o2 := f.submit(t, buyer2Claim, p.ID, 110000)

	if _, err := f.ledger.Decide(ctx, agentClaim, o1.ID, models.OfferAccepted); err != nil {
		t.Fatalf("accept: %v", err)
	}
	// Simulate a sibling that slipped past the cascade.
	if err := f.db.Model(&models.Offer{}).Where("id = ?", o2.ID).Update("status", models.OfferPending).Error; err != nil {
		t.Fatalf("reset sibling: %v", err)
	}
	if _, err := f.ledger.Decide(ctx, agentClaim, o2.ID, models.OfferAccepted); !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("second accept = %v, want conflict", err)
	}
	if s := f.status(t, o2.ID); s != models.OfferPending {
		t.Fatalf("sibling status = %s, want pending", s)
	}
}

func TestPaymentLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	p := f.property(t, true)
	o1 := f.submit(t, buyerClaim, p.ID, 100000)
	o2 := f.submit(t, buyer2Claim, p.ID, 110000)

	if _, err := f.ledger.RequestPayment(ctx, buyer2Claim, o2.ID, 0); !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("pay pending offer = %v, want conflict", err)
	}
	if _, err := f.ledger.Decide(ctx, agentClaim, o2.ID, models.OfferAccepted); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if _, err := f.ledger.RequestPayment(ctx, buyerClaim, o2.ID, 0); !errors.Is(err, apperror.ErrForbidden) {
		t.Fatalf("other buyer pays = %v, want forbidden", err)
	}
	intent, err := f.ledger.RequestPayment(ctx, buyer2Claim, o2.ID, 0)
	if err != nil {
		t.Fatalf("request payment: %v", err)
	}
	if intent.ClientSecret == "" || f.gateway.amounts[0] != 11000000 {
		t.Fatalf("intent = %+v, amounts = %v", intent, f.gateway.amounts)
	}
	if f.gateway.metadata[payment.MetadataOfferID] == "" {
		t.Fatal("intent carries no offer id")
	}
	if s := f.status(t, o2.ID); s != models.OfferAccepted {
		t.Fatalf("requesting payment changed status to %s", s)
	}

	paid, err := f.ledger.ConfirmPaymentAs(ctx, buyer2Claim, o2.ID, "tx1")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if paid.Status != models.OfferPaid || paid.TransactionID != "tx1" || paid.PaidAt == nil {
		t.Fatalf("paid offer = %+v", paid)
	}
	again, err := f.ledger.ConfirmPayment(ctx, o2.ID, "tx1")
	if err != nil {
		t.Fatalf("repeat confirm: %v", err)
	}
	if !again.PaidAt.Equal(*paid.PaidAt) {
		t.Fatal("repeat confirm rewrote the payment")
	}
	if _, err := f.ledger.ConfirmPayment(ctx, o2.ID, "tx2"); !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("confirm with other tx = %v, want conflict", err)
	}
	if _, err := f.ledger.ConfirmPayment(ctx, o1.ID, "tx3"); !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("confirm rejected offer = %v, want conflict", err)
	}
	if _, err := f.ledger.ConfirmPayment(ctx, o2.ID, " "); !errors.Is(err, apperror.ErrInvalidInput) {
		t.Fatalf("confirm without tx = %v, want invalid input", err)
	}
	if _, err := f.ledger.ConfirmPayment(ctx, 999, "tx4"); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("confirm missing offer = %v, want not found", err)
	}
}

func TestRequestPaymentGatewayDown(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	p := f.property(t, true)
	o := f.submit(t, buyerClaim, p.ID, 5000)
	if _, err := f.ledger.Decide(ctx, agentClaim, o.ID, models.OfferAccepted); err != nil {
		t.Fatalf("accept: %v", err)
	}
	f.gateway.err = errors.New("connection refused")
	if _, err := f.ledger.RequestPayment(ctx, buyerClaim, o.ID, 5000); !errors.Is(err, apperror.ErrUnavailable) {
		t.Fatalf("err = %v, want unavailable", err)
	}
	if _, err := f.ledger.RequestPayment(ctx, buyerClaim, o.ID, -3); !errors.Is(err, apperror.ErrInvalidInput) {
		t.Fatalf("negative amount = %v, want invalid input", err)
	}
}

func TestChargeMustMatchOfferAmount(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	p := f.property(t, true)
	o := f.submit(t, buyerClaim, p.ID, 110000)
	if _, err := f.ledger.Decide(ctx, agentClaim, o.ID, models.OfferAccepted); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if _, err := f.ledger.RequestPayment(ctx, buyerClaim, o.ID, 1); !errors.Is(err, apperror.ErrInvalidInput) {
		t.Fatalf("underpaying intent = %v, want invalid input", err)
	}
	if len(f.gateway.amounts) != 0 {
		t.Fatalf("gateway charged %v for a mismatched amount", f.gateway.amounts)
	}
	if _, err := f.ledger.RequestPayment(ctx, buyerClaim, o.ID, 110000); err != nil {
		t.Fatalf("exact amount: %v", err)
	}

	if _, err := f.ledger.ConfirmCharge(ctx, o.ID, "pi_short", 100); !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("short charge = %v, want conflict", err)
	}
	if s := f.status(t, o.ID); s != models.OfferAccepted {
		t.Fatalf("short charge moved offer to %s", s)
	}
	if _, err := f.ledger.ConfirmCharge(ctx, 999, "pi_none", 100); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("missing offer = %v, want not found", err)
	}
	paid, err := f.ledger.ConfirmCharge(ctx, o.ID, "pi_full", 11000000)
	if err != nil {
		t.Fatalf("full charge: %v", err)
	}
	if paid.Status != models.OfferPaid || paid.TransactionID != "pi_full" {
		t.Fatalf("paid offer = %+v", paid)
	}
}

func TestFraudAgentBlocksOffers(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	p := f.property(t, true)
	o := f.submit(t, buyerClaim, p.ID, 100000)

	agent, err := f.users.Get(ctx, agentClaim.Email)
	if err != nil {
		t.Fatalf("get agent: %v", err)
	}
	enforcer := trust.NewEnforcer(f.users, f.registry, nil)
	if _, err := enforcer.SetFraudFlag(ctx, adminClaim, agent.ID, true); err != nil {
		t.Fatalf("flag: %v", err)
	}

	if _, err := f.ledger.Submit(ctx, buyer2Claim, SubmitRequest{PropertyID: p.ID, OfferAmount: 1}); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("submit on removed listing = %v, want not found", err)
	}
	if _, err := f.ledger.Decide(ctx, agentClaim, o.ID, models.OfferAccepted); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("accept on removed listing = %v, want not found", err)
	}

	list, err := f.ledger.ListForBuyer(ctx, buyerClaim, buyerClaim.Email)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || !list[0].Orphaned {
		t.Fatalf("offer should survive as orphaned: %+v", list)
	}
}

func TestFraudFlagWithoutCascadeBlocksAccept(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	p := f.property(t, true)
	o := f.submit(t, buyerClaim, p.ID, 100000)

	agent, _ := f.users.Get(ctx, agentClaim.Email)
	if _, err := f.users.SetFraud(ctx, agent.ID, true); err != nil {
		t.Fatalf("set fraud: %v", err)
	}
	if _, err := f.ledger.Decide(ctx, agentClaim, o.ID, models.OfferAccepted); !errors.Is(err, apperror.ErrForbidden) {
		t.Fatalf("accept = %v, want forbidden", err)
	}
	if _, err := f.ledger.Submit(ctx, buyer2Claim, SubmitRequest{PropertyID: p.ID, OfferAmount: 1}); !errors.Is(err, apperror.ErrForbidden) {
		t.Fatalf("submit = %v, want forbidden", err)
	}
}

func TestListings(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	p := f.property(t, true)
	o := f.submit(t, buyerClaim, p.ID, 100000)
	f.submit(t, buyer2Claim, p.ID, 120000)

	mine, err := f.ledger.ListForBuyer(ctx, buyerClaim, "Buyer@X.io")
	if err != nil || len(mine) != 1 || mine[0].ID != o.ID {
		t.Fatalf("buyer list = %+v, %v", mine, err)
	}
	if _, err := f.ledger.ListForBuyer(ctx, buyer2Claim, buyerClaim.Email); !errors.Is(err, apperror.ErrForbidden) {
		t.Fatalf("other buyer list = %v, want forbidden", err)
	}
	agentList, err := f.ledger.ListForAgent(ctx, agentClaim, agentClaim.Email)
	if err != nil || len(agentList) != 2 {
		t.Fatalf("agent list = %d, %v", len(agentList), err)
	}
	if agentList[0].Orphaned {
		t.Fatal("live listing marked orphaned")
	}
	if _, err := f.ledger.ListForAgent(ctx, otherAgent, agentClaim.Email); !errors.Is(err, apperror.ErrForbidden) {
		t.Fatalf("other agent list = %v, want forbidden", err)
	}
	if _, err := f.ledger.Get(ctx, buyer2Claim, o.ID); !errors.Is(err, apperror.ErrForbidden) {
		t.Fatalf("read foreign offer = %v, want forbidden", err)
	}
	if got, err := f.ledger.Get(ctx, agentClaim, o.ID); err != nil || got.ID != o.ID {
		t.Fatalf("agent read = %+v, %v", got, err)
	}
}
