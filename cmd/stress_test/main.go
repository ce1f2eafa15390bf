package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront-orders/internal/adapter/storage"
	"github.com/rl1809/storefront-orders/internal/core/domain"
	"github.com/rl1809/storefront-orders/internal/core/service"
	"github.com/rl1809/storefront-orders/internal/port"
)

const (
	initialStock  = 20
	totalRequests = 50
	queueSize     = 100
)

type store interface {
	port.CatalogReader
	port.OrderRepository
	SaveProduct(ctx context.Context, p domain.Product) error
}

func main() {
	ctx := context.Background()

	repo := openStore(ctx)
	productID := "stress-" + uuid.NewString()[:8]
	if err := repo.SaveProduct(ctx, domain.Product{
		ID: productID, Name: "Stress item", Price: decimal.NewFromInt(100), Stock: initialStock, IsActive: true,
	}); err != nil {
		log.Fatalf("failed to seed product: %v", err)
	}

	queue := service.NewEventQueue(queueSize, nil)
	defer queue.Close()

	// Drain the event queue in background
	go func() {
		for range queue.Events() {
		}
	}()

	orderService := service.NewOrderService(repo, repo, storage.NewMemoryCache(time.Minute), service.DefaultPricing(), queue, nil)

	address := domain.ShippingAddress{
		Name: "Stress", Phone: "9999999999", PostalCode: "560001",
		Line: "1 Test Street", City: "Bengaluru", State: "KA",
	}

	// Counters
	var successCount atomic.Int32
	var failCount atomic.Int32
	var unexpected atomic.Int32

	// Spawn concurrent requests
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(userID int) {
			defer wg.Done()

			caller := domain.Principal{ID: fmt.Sprintf("user-%d", userID)}
			_, err := orderService.PlaceOrder(ctx, caller, service.PlaceOrderInput{
				Items:         []service.PlaceOrderItem{{ProductID: productID, Quantity: 1}},
				Address:       address,
				PaymentMethod: string(domain.PaymentMethodCashOnDelivery),
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				failCount.Add(1)
			default:
				unexpected.Add(1)
				log.Printf("user-%d: %v", userID, err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	fail := failCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Out of stock:     %d\n", fail)
	fmt.Printf("Other errors:     %d\n", unexpected.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if success == int32(initialStock) && fail == int32(totalRequests-initialStock) {
		fmt.Printf("PASS: Exactly %d orders succeeded, %d failed\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d fail, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, fail)
	}

	// Verify final stock
	p, err := repo.GetProduct(ctx, productID)
	if err != nil || p == nil {
		log.Fatalf("failed to read final stock: %v", err)
	}
	fmt.Printf("Final Stock:      %d\n", p.Stock)

	if p.Stock == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %d\n", p.Stock)
	}
}

// openStore uses MySQL when MYSQL_DSN is set and an in-memory store otherwise.
func openStore(ctx context.Context) store {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		return storage.NewMemoryStore()
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}

	adapter := storage.NewMySQLAdapter(db)
	if err := adapter.EnsureSchema(ctx); err != nil {
		log.Fatalf("failed to ensure schema: %v", err)
	}
	return adapter
}
