package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"pairtrader/internal/models"
)

func TestPaperBroker_FillOnAdvance(t *testing.T) {
	b := NewPaperBroker(PaperConfig{}, nil)

	var got []models.OrderEvent
	b.SubscribeOrders(func(ev models.OrderEvent) { got = append(got, ev) })

	ticket, err := b.PlaceMarketOrder(context.Background(), "ko", -10, "OPEN_SHORT_SPREAD_KO-PEP")
	if err != nil {
		t.Fatalf("PlaceMarketOrder: %v", err)
	}
	if ticket.Status != models.OrderStatusSubmitted || ticket.OrderID == "" {
		t.Fatalf("handle: %+v", ticket)
	}
	if ticket.Symbol != "KO" {
		t.Errorf("символ должен нормализоваться: %s", ticket.Symbol)
	}
	if len(got) != 0 {
		t.Fatal("исполнение не должно приходить синхронно с отправкой")
	}

	now := time.Date(2024, 1, 2, 16, 0, 0, 0, time.UTC)
	events := b.Advance(now, map[string]float64{"KO": 60.5})

	if len(events) != 1 || len(got) != 1 {
		t.Fatalf("ожидали одно событие, получили %d/%d", len(events), len(got))
	}
	ev := got[0]
	if ev.OrderID != ticket.OrderID || ev.Status != models.OrderStatusFilled {
		t.Errorf("событие: %+v", ev)
	}
	if ev.FilledQty != -10 || ev.AvgFillPrice != 60.5 || !ev.Time.Equal(now) {
		t.Errorf("данные исполнения: %+v", ev)
	}
	if b.PendingCount() != 0 {
		t.Errorf("ожидающих ордеров: %d", b.PendingCount())
	}
}

func TestPaperBroker_NoPriceStaysPending(t *testing.T) {
	b := NewPaperBroker(PaperConfig{}, nil)

	if _, err := b.PlaceMarketOrder(context.Background(), "PEP", 5, ""); err != nil {
		t.Fatalf("PlaceMarketOrder: %v", err)
	}

	if events := b.Advance(time.Now(), map[string]float64{"KO": 60}); len(events) != 0 {
		t.Fatalf("без цены ордер не должен исполняться: %+v", events)
	}
	if b.PendingCount() != 1 {
		t.Errorf("ордер должен остаться в ожидании")
	}

	if events := b.Advance(time.Now(), map[string]float64{"PEP": 170}); len(events) != 1 {
		t.Fatalf("ордер должен исполниться при появлении цены")
	}
}

func TestPaperBroker_RejectAndCancelSymbols(t *testing.T) {
	b := NewPaperBroker(PaperConfig{RejectSymbols: []string{"bad"}, CancelSymbols: []string{"HALT"}}, nil)

	_, err := b.PlaceMarketOrder(context.Background(), "BAD", 1, "")
	var brokerErr *BrokerError
	if !errors.As(err, &brokerErr) || brokerErr.Code != CodeRejected {
		t.Fatalf("ожидали BrokerError rejected, получили %v", err)
	}

	ticket, err := b.PlaceMarketOrder(context.Background(), "HALT", 1, "")
	if err != nil {
		t.Fatalf("PlaceMarketOrder: %v", err)
	}

	events := b.Advance(time.Now(), map[string]float64{"HALT": 10})
	if len(events) != 1 || events[0].Status != models.OrderStatusCanceled || events[0].OrderID != ticket.OrderID {
		t.Errorf("ожидали отмену, получили %+v", events)
	}
}

func TestPaperBroker_ZeroQuantityAndClosed(t *testing.T) {
	b := NewPaperBroker(PaperConfig{}, nil)

	if _, err := b.PlaceMarketOrder(context.Background(), "KO", 0, ""); !errors.Is(err, ErrZeroQuantity) {
		t.Errorf("ожидали ErrZeroQuantity, получили %v", err)
	}

	_ = b.Close()
	if _, err := b.PlaceMarketOrder(context.Background(), "KO", 1, ""); !errors.Is(err, ErrClosed) {
		t.Errorf("ожидали ErrClosed, получили %v", err)
	}
}

func TestPaperBroker_CancelOrder(t *testing.T) {
	b := NewPaperBroker(PaperConfig{}, nil)

	var got []models.OrderEvent
	b.SubscribeOrders(func(ev models.OrderEvent) { got = append(got, ev) })

	ticket, _ := b.PlaceMarketOrder(context.Background(), "KO", 1, "")

	if err := b.CancelOrder(ticket.OrderID, time.Now()); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if len(got) != 1 || got[0].Status != models.OrderStatusCanceled {
		t.Errorf("ожидали событие отмены: %+v", got)
	}
	if err := b.CancelOrder(ticket.OrderID, time.Now()); !errors.Is(err, ErrUnknownOrder) {
		t.Errorf("повторная отмена: ожидали ErrUnknownOrder, получили %v", err)
	}
	if b.PendingCount() != 0 {
		t.Errorf("ожидающих ордеров: %d", b.PendingCount())
	}
}

func TestPaperBroker_CanceledContext(t *testing.T) {
	b := NewPaperBroker(PaperConfig{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := b.PlaceMarketOrder(ctx, "KO", 1, ""); !errors.Is(err, context.Canceled) {
		t.Errorf("ожидали context.Canceled, получили %v", err)
	}
}
