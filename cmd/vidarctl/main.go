package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"vidar/internal/common"
	vidarnet "vidar/internal/net"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "Address of the gateway")
	account := flag.String("account", "", "Account UUID (generated when empty)")
	action := flag.String("action", "place", "Action to perform: ['place', 'cancel', 'book']")

	// Order parameters
	symbol := flag.String("symbol", "GSEC10Y", "Instrument symbol")
	sideStr := flag.String("side", "buy", "Order side: 'buy' or 'sell'")
	typeStr := flag.String("type", "limit", "Order type: 'limit' or 'market'")
	priceStr := flag.String("price", "", "Limit price (decimal string)")
	qtyStr := flag.String("qty", "10", "Quantity or comma-separated list (e.g. 10,20,50)")
	clientID := flag.String("client-id", "", "Client order id")

	// Cancel parameters
	orderID := flag.String("uuid", "", "UUID of the order to cancel")

	flag.Parse()

	accountID := uuid.New()
	if *account != "" {
		parsed, err := uuid.Parse(*account)
		if err != nil {
			log.Fatalf("Invalid -account uuid: %v", err)
		}
		accountID = parsed
	}

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("Failed to connect to gateway at %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("Connected to %s as account %s\n", *serverAddr, accountID)

	go readReports(conn)

	side := common.Buy
	if strings.ToLower(*sideStr) == "sell" {
		side = common.Sell
	}
	orderType := common.LimitOrder
	if strings.ToLower(*typeStr) == "market" {
		orderType = common.MarketOrder
	}

	switch strings.ToLower(*action) {
	case "place":
		var price *decimal.Decimal
		if *priceStr != "" {
			p, err := decimal.NewFromString(*priceStr)
			if err != nil {
				log.Fatalf("Invalid -price: %v", err)
			}
			price = &p
		}
		for _, q := range parseQuantities(*qtyStr) {
			msg := vidarnet.NewOrderMessage{
				Side:          side,
				OrderType:     orderType,
				AccountID:     accountID,
				UserID:        accountID,
				Symbol:        *symbol,
				Price:         price,
				Quantity:      q,
				ClientOrderID: *clientID,
			}
			if _, err := conn.Write(msg.Serialize()); err != nil {
				log.Printf("Failed to place order (qty %s): %v", q, err)
				continue
			}
			fmt.Printf("-> Sent %s %s %s %s @ %s\n",
				strings.ToUpper(*sideStr), *typeStr, *symbol, q, orPriceLabel(price))
			// Give the gateway a beat so sends stay in sequence.
			time.Sleep(5 * time.Millisecond)
		}

	case "cancel":
		if *orderID == "" {
			log.Fatal("Error: -uuid is required for cancellation")
		}
		id, err := uuid.Parse(*orderID)
		if err != nil {
			log.Fatalf("Invalid -uuid: %v", err)
		}
		msg := vidarnet.CancelOrderMessage{OrderID: id}
		if _, err := conn.Write(msg.Serialize()); err != nil {
			log.Printf("Failed to send cancel request: %v", err)
		} else {
			fmt.Printf("-> Sent cancel request for %s\n", id)
		}

	case "book":
		msg := vidarnet.BookQueryMessage{Symbol: *symbol}
		if _, err := conn.Write(msg.Serialize()); err != nil {
			log.Printf("Failed to send book query: %v", err)
		} else {
			fmt.Printf("-> Sent book query for %s\n", *symbol)
		}

	default:
		log.Fatalf("Unknown action: %s", *action)
	}

	fmt.Println("\nListening for reports... (Press Ctrl+C to exit)")
	select {}
}

func orPriceLabel(price *decimal.Decimal) string {
	if price == nil {
		return "market"
	}
	return price.String()
}

// parseQuantities splits a comma-separated string into decimals.
func parseQuantities(input string) []decimal.Decimal {
	var result []decimal.Decimal
	for _, p := range strings.Split(input, ",") {
		p = strings.TrimSpace(p)
		if val, err := decimal.NewFromString(p); err == nil {
			result = append(result, val)
		} else {
			log.Printf("Warning: invalid quantity %q, skipping.", p)
		}
	}
	return result
}

// readReports prints gateway report frames as they arrive.
func readReports(conn net.Conn) {
	buffer := make([]byte, 4096)
	for {
		n, err := conn.Read(buffer)
		if err != nil {
			if err != io.EOF {
				log.Printf("Read error: %v", err)
			}
			fmt.Println("Connection closed by gateway.")
			os.Exit(0)
		}

		report, err := vidarnet.ParseReport(buffer[:n])
		if err != nil {
			log.Printf("Bad report frame: %v", err)
			continue
		}
		printReport(report)
	}
}

func printReport(r vidarnet.Report) {
	at := time.Unix(0, int64(r.Timestamp)).Format(time.RFC3339Nano)
	switch r.TypeOf {
	case vidarnet.OrderAck:
		if r.ErrCode != "" {
			fmt.Printf("<- ACK %s [%s] at %s\n", r.OrderID, r.ErrCode, at)
		} else {
			fmt.Printf("<- ACK %s at %s\n", r.OrderID, at)
		}
	case vidarnet.ExecutionReport:
		fmt.Printf("<- FILL order %s trade %s: %s %s %s @ %s\n",
			r.OrderID, r.TradeID, r.Side, r.Symbol, r.Quantity, r.Price)
	case vidarnet.ErrorReport:
		fmt.Printf("<- ERROR [%s] %s\n", r.ErrCode, r.ErrDetail)
	case vidarnet.BookReport:
		fmt.Printf("<- BOOK\n%s", r.ErrDetail)
	default:
		fmt.Printf("<- Unknown report type %d\n", r.TypeOf)
	}
}
